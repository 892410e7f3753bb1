// Package queue serializes audio playback. Any number of goroutines may
// enqueue clips; exactly one consumer drains them into the sink, so at
// no instant are two jobs playing. That single consumer is the whole
// mechanism behind "concurrent callers never talk over each other".
//
// Jobs move queued → playing → done or failed. A queued job can still be
// cancelled by whoever holds its token; a playing job runs to completion
// because the sink contract is play-to-the-end, not preempt. One failing
// job never stops the consumer.
//
// [Queue.EnqueueNext] is the opt-out from ordering: urgent clips jump
// ahead of everything queued but still wait for the clip currently
// playing.
package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/haivivi/speakd/pkg/artifact"
	"github.com/haivivi/speakd/pkg/player"
)

var (
	// ErrClosed is returned by Enqueue after Close.
	ErrClosed = errors.New("queue: closed")

	// ErrQueueFull is returned when the intake lane is at capacity.
	ErrQueueFull = errors.New("queue: full")

	// ErrNotFound is returned for unknown job IDs.
	ErrNotFound = errors.New("queue: no such job")

	// ErrNotCancellable means the job has already started playing or
	// reached a terminal state.
	ErrNotCancellable = errors.New("queue: job not cancellable")

	// ErrBadToken means the cancel token does not match the job's.
	ErrBadToken = errors.New("queue: token mismatch")
)

// State is a playback job's lifecycle state.
type State string

const (
	StateQueued    State = "queued"
	StatePlaying   State = "playing"
	StateDone      State = "done"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether the state is final.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Source produces the audio bytes for a job when the consumer reaches
// it. Deferring the fetch keeps queued cache hits out of memory until
// they are about to play.
type Source func(ctx context.Context) ([]byte, error)

// Bytes is a Source over audio already in memory.
func Bytes(data []byte) Source {
	return func(context.Context) ([]byte, error) { return data, nil }
}

// FromStore is a Source that reads an artifact when the job starts.
func FromStore(store artifact.Store, ref string) Source {
	return func(ctx context.Context) ([]byte, error) {
		return store.Get(ctx, ref)
	}
}

// Job is a snapshot of one playback job. All timestamps are unix
// milliseconds, zero when the transition has not happened.
type Job struct {
	ID          uint64 `json:"id"`
	Token       string `json:"token,omitempty"`
	State       State  `json:"state"`
	Text        string `json:"text,omitempty"`
	SubmittedBy string `json:"submitted_by,omitempty"`
	Err         string `json:"error,omitempty"`
	EnqueuedAt  int64  `json:"enqueued_at"`
	StartedAt   int64  `json:"started_at,omitempty"`
	FinishedAt  int64  `json:"finished_at,omitempty"`
}

// Event is one job state transition, carrying the job snapshot after
// the transition.
type Event struct {
	Job Job `json:"job"`
}

// Submit describes a job to enqueue.
type Submit struct {
	// Source provides the audio. Required.
	Source Source

	// Text and SubmittedBy are carried for status reporting only.
	Text        string
	SubmittedBy string
}

// Options configures a Queue.
type Options struct {
	// Capacity bounds the FIFO lane. Zero means 1024.
	Capacity int

	// KeepFinished is how many terminal jobs stay visible in Snapshot.
	// Zero means 64.
	KeepFinished int

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

type job struct {
	Job
	source Source
}

// Queue is the serialized playback queue. Create with New, stop with
// Close. Safe for concurrent use.
type Queue struct {
	sink player.Sink
	log  *slog.Logger
	keep int

	fifo   chan uint64
	urgent chan uint64

	mu     sync.Mutex
	jobs   map[uint64]*job
	order  []uint64
	nextID uint64
	subs   map[uint64]chan Event
	subID  uint64
	closed bool

	stop       chan struct{}
	finished   chan struct{}
	playCtx    context.Context
	playCancel context.CancelFunc
}

// New creates a Queue draining into sink and starts its consumer.
func New(sink player.Sink, opts Options) *Queue {
	capacity := opts.Capacity
	if capacity <= 0 {
		capacity = 1024
	}
	keep := opts.KeepFinished
	if keep <= 0 {
		keep = 64
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	playCtx, playCancel := context.WithCancel(context.Background())
	q := &Queue{
		sink:       sink,
		log:        logger,
		keep:       keep,
		fifo:       make(chan uint64, capacity),
		urgent:     make(chan uint64, capacity),
		jobs:       make(map[uint64]*job),
		subs:       make(map[uint64]chan Event),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
		playCtx:    playCtx,
		playCancel: playCancel,
	}
	go q.consume()
	return q
}

// Enqueue adds a job to the FIFO lane and returns its snapshot without
// waiting for playback. The returned Job carries the cancel token.
func (q *Queue) Enqueue(sub Submit) (Job, error) {
	return q.enqueue(sub, q.fifo)
}

// EnqueueNext adds a job to the urgent lane: it plays after the current
// job finishes, ahead of everything in the FIFO lane. Urgent jobs among
// themselves keep their submission order.
func (q *Queue) EnqueueNext(sub Submit) (Job, error) {
	return q.enqueue(sub, q.urgent)
}

func (q *Queue) enqueue(sub Submit, lane chan uint64) (Job, error) {
	if sub.Source == nil {
		return Job{}, errors.New("queue: Submit.Source is required")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return Job{}, ErrClosed
	}
	q.nextID++
	j := &job{
		Job: Job{
			ID:          q.nextID,
			Token:       uuid.NewString(),
			State:       StateQueued,
			Text:        sub.Text,
			SubmittedBy: sub.SubmittedBy,
			EnqueuedAt:  time.Now().UnixMilli(),
		},
		source: sub.Source,
	}
	// The lane is buffered, so this send never blocks under the lock.
	select {
	case lane <- j.ID:
	default:
		q.nextID--
		return Job{}, fmt.Errorf("%w: %d jobs waiting", ErrQueueFull, cap(lane))
	}
	q.jobs[j.ID] = j
	q.order = append(q.order, j.ID)
	q.publishLocked(j.Job)
	return j.Job, nil
}

// Cancel moves a queued job to cancelled. Only the holder of the job's
// token may cancel it, and only before it starts playing.
func (q *Queue) Cancel(id uint64, token string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[id]
	if !ok {
		return fmt.Errorf("%w: %d", ErrNotFound, id)
	}
	if j.Token != token {
		return ErrBadToken
	}
	if j.State != StateQueued {
		return fmt.Errorf("%w: job %d is %s", ErrNotCancellable, id, j.State)
	}
	q.transitionLocked(j, StateCancelled, "")
	return nil
}

// Snapshot returns all tracked jobs ordered by ID, oldest first.
// Terminal jobs beyond the keep horizon have been dropped. Tokens are
// redacted; only the submitter holds them.
func (q *Queue) Snapshot() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Job, 0, len(q.order))
	for _, id := range q.order {
		if j, ok := q.jobs[id]; ok {
			snap := j.Job
			snap.Token = ""
			out = append(out, snap)
		}
	}
	return out
}

// Playing returns the snapshot of the currently playing job, if any.
func (q *Queue) Playing() (Job, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, id := range q.order {
		if j, ok := q.jobs[id]; ok && j.State == StatePlaying {
			snap := j.Job
			snap.Token = ""
			return snap, true
		}
	}
	return Job{}, false
}

// Waiting returns how many jobs are queued but not yet playing.
func (q *Queue) Waiting() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, j := range q.jobs {
		if j.State == StateQueued {
			n++
		}
	}
	return n
}

// Subscribe returns a channel of job state transitions and a function
// that ends the subscription. A subscriber that falls behind loses
// events rather than slowing playback down.
func (q *Queue) Subscribe() (<-chan Event, func()) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.subID++
	id := q.subID
	ch := make(chan Event, 256)
	q.subs[id] = ch
	return ch, func() {
		q.mu.Lock()
		defer q.mu.Unlock()
		if _, ok := q.subs[id]; ok {
			delete(q.subs, id)
			close(ch)
		}
	}
}

// Close stops intake immediately and shuts the consumer down. The
// currently playing job gets until ctx expires to finish; after that
// its playback context is cancelled. Jobs still queued never play.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		<-q.finished
		return nil
	}
	q.closed = true
	q.mu.Unlock()

	close(q.stop)
	select {
	case <-q.finished:
	case <-ctx.Done():
		q.playCancel()
		<-q.finished
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	for _, ch := range q.subs {
		close(ch)
	}
	q.subs = map[uint64]chan Event{}
	return nil
}

// consume is the single consumer loop. It prefers the urgent lane, then
// FIFO, and exits only on Close.
func (q *Queue) consume() {
	defer close(q.finished)
	for {
		// Stop takes priority over ready lanes. A plain three-way
		// select picks randomly among ready cases, which would let
		// queued jobs keep starting after Close.
		select {
		case <-q.stop:
			return
		default:
		}
		var id uint64
		select {
		case id = <-q.urgent:
		default:
			select {
			case id = <-q.urgent:
			case id = <-q.fifo:
			case <-q.stop:
				return
			}
		}
		// Close may have raced the dequeue above.
		select {
		case <-q.stop:
			return
		default:
		}
		q.run(id)
	}
}

// run plays a single job. Every failure path lands in StateFailed and
// returns normally; the loop above must survive any job.
func (q *Queue) run(id uint64) {
	q.mu.Lock()
	j, ok := q.jobs[id]
	if !ok || j.State != StateQueued || q.closed {
		// Cancelled while waiting, GC'd after cancellation, or Close
		// landed between dequeue and here. Close means only the job
		// already playing may finish; this one stays queued.
		q.mu.Unlock()
		return
	}
	q.transitionLocked(j, StatePlaying, "")
	source := j.source
	q.mu.Unlock()

	data, err := source(q.playCtx)
	if err != nil {
		q.finish(id, StateFailed, fmt.Sprintf("fetching audio: %v", err))
		return
	}
	if err := q.sink.Play(q.playCtx, data); err != nil {
		q.finish(id, StateFailed, err.Error())
		return
	}
	q.finish(id, StateDone, "")
}

func (q *Queue) finish(id uint64, state State, errMsg string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if j, ok := q.jobs[id]; ok {
		q.transitionLocked(j, state, errMsg)
	}
}

// transitionLocked records a state change, publishes it, and garbage
// collects old terminal jobs. Callers hold q.mu.
func (q *Queue) transitionLocked(j *job, state State, errMsg string) {
	now := time.Now().UnixMilli()
	j.State = state
	switch state {
	case StatePlaying:
		j.StartedAt = now
	case StateDone, StateFailed, StateCancelled:
		j.FinishedAt = now
		j.Err = errMsg
		j.source = nil
	}
	if state == StateFailed {
		q.log.Warn("playback job failed", "job", j.ID, "text", j.Text, "error", errMsg)
	}
	snap := j.Job
	q.publishLocked(snap)
	q.gcLocked()
}

func (q *Queue) publishLocked(snap Job) {
	snap.Token = ""
	for _, ch := range q.subs {
		select {
		case ch <- Event{Job: snap}:
		default: // slow subscriber, drop
		}
	}
}

// gcLocked trims terminal jobs beyond the keep horizon, oldest first.
func (q *Queue) gcLocked() {
	terminal := 0
	for _, j := range q.jobs {
		if j.State.Terminal() {
			terminal++
		}
	}
	if terminal <= q.keep {
		return
	}
	kept := q.order[:0]
	for _, id := range q.order {
		j, ok := q.jobs[id]
		if !ok {
			continue
		}
		if terminal > q.keep && j.State.Terminal() {
			delete(q.jobs, id)
			terminal--
			continue
		}
		kept = append(kept, id)
	}
	q.order = kept
}
