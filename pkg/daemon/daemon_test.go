package daemon_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/haivivi/speakd/pkg/artifact"
	"github.com/haivivi/speakd/pkg/daemon"
	"github.com/haivivi/speakd/pkg/embed"
	"github.com/haivivi/speakd/pkg/kv"
	"github.com/haivivi/speakd/pkg/player"
	"github.com/haivivi/speakd/pkg/queue"
	"github.com/haivivi/speakd/pkg/tts"
)

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	// A spread of deterministic but text-dependent vectors.
	v := make([]float32, 4)
	for i, r := range text {
		v[i%4] += float32(r)
	}
	return v, nil
}

func (stubEmbedder) Dimension() int { return 4 }

// testHarness runs one daemon over a real unix socket.
type testHarness struct {
	client *daemon.Client
	socket string
	cancel context.CancelFunc
	done   chan error
	synth  atomic.Int64
}

func newHarness(t *testing.T, mutate func(*daemon.Config)) *testHarness {
	t.Helper()
	dir := t.TempDir()
	h := &testHarness{
		socket: filepath.Join(dir, "speakd.sock"),
		done:   make(chan error, 1),
	}

	mux := tts.NewMux()
	mux.HandleFunc("stub", func(_ context.Context, req tts.Request) (*tts.Result, error) {
		h.synth.Add(1)
		return &tts.Result{Audio: []byte("audio:" + req.Text), MIME: tts.MIMEWAV}, nil
	})

	cfg := daemon.Config{
		SocketPath: h.socket,
		Router:     mux,
		Provider:   "stub",
		Version:    "test",
		NewEmbedder: func(context.Context) (embed.Embedder, error) {
			return stubEmbedder{}, nil
		},
		NewKV: func() (kv.Store, error) {
			return kv.NewBadger(kv.BadgerOptions{Dir: filepath.Join(dir, "kv")})
		},
		NewArtifacts: func() (artifact.Store, error) {
			return artifact.NewLocal(filepath.Join(dir, "artifacts"))
		},
		NewSink: func() (player.Sink, error) {
			return &noDecodeSink{}, nil
		},
	}
	if mutate != nil {
		mutate(&cfg)
	}

	d, err := daemon.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- d.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-h.done:
		case <-time.After(15 * time.Second):
			t.Error("daemon did not stop")
		}
	})

	var opts []daemon.ClientOption
	if cfg.APIKey != "" {
		opts = append(opts, daemon.WithAPIKey(cfg.APIKey))
	}
	h.client = daemon.NewClient(h.socket, opts...)

	waitCtx, waitCancel := context.WithTimeout(ctx, 10*time.Second)
	defer waitCancel()
	if err := h.client.WaitReady(waitCtx); err != nil {
		t.Fatalf("daemon never became ready: %v", err)
	}
	return h
}

// noDecodeSink accepts any bytes; the stub synthesizer does not emit a
// real container.
type noDecodeSink struct{}

func (*noDecodeSink) Play(context.Context, []byte) error { return nil }
func (*noDecodeSink) Close() error                       { return nil }

func TestSpeakMissThenExactHit(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	r1, err := h.client.Speak(ctx, daemon.SpeakRequest{Text: "deploy complete"})
	if err != nil {
		t.Fatal(err)
	}
	if r1.CacheHit {
		t.Fatal("first request hit an empty cache")
	}
	if r1.JobID == 0 || r1.Token == "" {
		t.Fatalf("response missing job id or token: %+v", r1)
	}

	r2, err := h.client.Speak(ctx, daemon.SpeakRequest{Text: "deploy complete"})
	if err != nil {
		t.Fatal(err)
	}
	if !r2.CacheHit || r2.Similarity == nil || *r2.Similarity != 1 {
		t.Fatalf("second request = %+v, want exact hit", r2)
	}
	if got := h.synth.Load(); got != 1 {
		t.Fatalf("synthesizer called %d times, want 1", got)
	}
}

func TestBadThresholdRejected(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	bad := float32(1.5)
	_, err := h.client.Speak(ctx, daemon.SpeakRequest{Text: "too strict", Threshold: &bad})
	if err == nil {
		t.Fatal("threshold 1.5 accepted")
	}
	if !strings.Contains(err.Error(), "threshold") {
		t.Fatalf("error does not name the threshold: %v", err)
	}
	if got := h.synth.Load(); got != 0 {
		t.Fatalf("synthesizer called %d times for a rejected request", got)
	}
}

func TestStatusReportsReady(t *testing.T) {
	h := newHarness(t, nil)

	st, err := h.client.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.State != daemon.StateReady {
		t.Fatalf("state = %s, want ready", st.State)
	}
	if !st.ModelsLoaded {
		t.Fatal("models_loaded = false after ready")
	}
	if st.PID == 0 || st.Provider != "stub" || st.Version != "test" {
		t.Fatalf("status = %+v", st)
	}
	if st.Cache == nil {
		t.Fatal("status missing cache stats")
	}
}

func TestQueueSnapshotAndCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	r, err := h.client.Speak(ctx, daemon.SpeakRequest{Text: "to be listed"})
	if err != nil {
		t.Fatal(err)
	}
	jobs, err := h.client.Queue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, j := range jobs {
		if j.ID == r.JobID {
			found = true
			if j.Token != "" {
				t.Fatal("queue listing leaks cancel tokens")
			}
		}
	}
	if !found {
		t.Fatalf("job %d not in queue listing %+v", r.JobID, jobs)
	}

	// By now the job likely played; cancelling should be rejected,
	// proving the token and state checks run.
	err = h.client.Cancel(ctx, r.JobID, "wrong-token")
	if err == nil {
		t.Fatal("cancel with wrong token succeeded")
	}
}

func TestAuthRejectsWithoutKey(t *testing.T) {
	h := newHarness(t, func(cfg *daemon.Config) { cfg.APIKey = "sesame" })
	ctx := context.Background()

	// The harness client carries the key.
	if _, err := h.client.Speak(ctx, daemon.SpeakRequest{Text: "authorized"}); err != nil {
		t.Fatal(err)
	}
	before := h.synth.Load()

	bare := daemon.NewClient(h.socket)
	_, err := bare.Speak(ctx, daemon.SpeakRequest{Text: "intruder"})
	if !errors.Is(err, daemon.ErrUnauthorized) {
		t.Fatalf("unauthenticated speak: %v, want ErrUnauthorized", err)
	}
	// The rejected request did no synthesis work.
	if got := h.synth.Load(); got != before {
		t.Fatalf("unauthorized request synthesized (%d calls)", got-before)
	}
}

func TestRestartKeepsCache(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.client.Speak(ctx, daemon.SpeakRequest{Text: "survive restart"}); err != nil {
		t.Fatal(err)
	}
	if err := h.client.Restart(ctx); err != nil {
		t.Fatal(err)
	}

	waitCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := h.client.WaitReady(waitCtx); err != nil {
		t.Fatalf("daemon not ready after restart: %v", err)
	}

	r, err := h.client.Speak(ctx, daemon.SpeakRequest{Text: "survive restart"})
	if err != nil {
		t.Fatal(err)
	}
	if !r.CacheHit || r.Similarity == nil || *r.Similarity != 1 {
		t.Fatalf("post-restart request = %+v, want exact hit", r)
	}
	if got := h.synth.Load(); got != 1 {
		t.Fatalf("synthesizer called %d times across restart, want 1", got)
	}
}

func TestShutdownViaClient(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := h.client.Stop(ctx); err != nil {
		t.Fatal(err)
	}
	select {
	case err := <-h.done:
		if err != nil {
			t.Fatalf("Run returned %v", err)
		}
	case <-time.After(15 * time.Second):
		t.Fatal("Run did not return after shutdown")
	}
	if h.client.Running(ctx) {
		t.Fatal("daemon still answering after shutdown")
	}
}

func TestSecondDaemonFailsFast(t *testing.T) {
	h := newHarness(t, nil)

	mux := tts.NewMux()
	mux.HandleFunc("stub", func(_ context.Context, req tts.Request) (*tts.Result, error) {
		return &tts.Result{Audio: []byte("x")}, nil
	})
	d2, err := daemon.New(daemon.Config{
		SocketPath:   h.socket,
		Router:       mux,
		Provider:     "stub",
		NewEmbedder:  func(context.Context) (embed.Embedder, error) { return stubEmbedder{}, nil },
		NewKV:        func() (kv.Store, error) { return kv.NewBadger(kv.BadgerOptions{InMemory: true}) },
		NewArtifacts: func() (artifact.Store, error) { return artifact.NewLocal(t.TempDir()) },
		NewSink:      func() (player.Sink, error) { return &noDecodeSink{}, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := d2.Run(context.Background()); !errors.Is(err, daemon.ErrAlreadyRunning) {
		t.Fatalf("second daemon: %v, want ErrAlreadyRunning", err)
	}
}

func TestNowaitGetsServiceUnavailable(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)

	dir := t.TempDir()
	socket := filepath.Join(dir, "speakd.sock")
	mux := tts.NewMux()
	mux.HandleFunc("stub", func(_ context.Context, req tts.Request) (*tts.Result, error) {
		return &tts.Result{Audio: []byte("x")}, nil
	})
	d, err := daemon.New(daemon.Config{
		SocketPath: socket,
		Router:     mux,
		Provider:   "stub",
		NewEmbedder: func(context.Context) (embed.Embedder, error) {
			started <- struct{}{}
			<-release // hold the daemon in starting
			return stubEmbedder{}, nil
		},
		NewKV:        func() (kv.Store, error) { return kv.NewBadger(kv.BadgerOptions{InMemory: true}) },
		NewArtifacts: func() (artifact.Store, error) { return artifact.NewLocal(filepath.Join(dir, "a")) },
		NewSink:      func() (player.Sink, error) { return &noDecodeSink{}, nil },
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()
	t.Cleanup(func() {
		close(release)
		cancel()
		<-done
	})
	<-started

	// Raw request with nowait=1 while the daemon is starting.
	httpc := &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
				var nd net.Dialer
				return nd.DialContext(ctx, "unix", socket)
			},
		},
		Timeout: 5 * time.Second,
	}
	resp, err := httpc.Get("http://speakd/v1/queue?nowait=1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("nowait status = %d, want 503", resp.StatusCode)
	}

	// Status still answers immediately while starting.
	client := daemon.NewClient(socket)
	st, err := client.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.State != daemon.StateStarting {
		t.Fatalf("state = %s, want starting", st.State)
	}
	if st.ModelsLoaded {
		t.Fatal("models_loaded = true while starting")
	}
}

func TestEventsFeed(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	events, stop, err := h.client.Events(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer stop()

	r, err := h.client.Speak(ctx, daemon.SpeakRequest{Text: "watched"})
	if err != nil {
		t.Fatal(err)
	}

	var sawDone bool
	deadline := time.After(10 * time.Second)
	for !sawDone {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("events channel closed early")
			}
			if ev.Job.ID == r.JobID && ev.Job.State == queue.StateDone {
				sawDone = true
			}
		case <-deadline:
			t.Fatal("never saw the done event")
		}
	}
}

func TestCachePurge(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	if _, err := h.client.Speak(ctx, daemon.SpeakRequest{Text: "purge me"}); err != nil {
		t.Fatal(err)
	}
	st, err := h.client.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Cache == nil || st.Cache.Entries != 1 {
		t.Fatalf("cache stats before purge = %+v, want 1 entry", st.Cache)
	}

	if err := h.client.PurgeCache(ctx); err != nil {
		t.Fatal(err)
	}
	st, err = h.client.Status(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Cache.Entries != 0 {
		t.Fatalf("cache has %d entries after purge", st.Cache.Entries)
	}

	// The purged phrase synthesizes again.
	r, err := h.client.Speak(ctx, daemon.SpeakRequest{Text: "purge me"})
	if err != nil {
		t.Fatal(err)
	}
	if r.CacheHit {
		t.Fatal("cache hit after purge")
	}
	if got := h.synth.Load(); got != 2 {
		t.Fatalf("synthesizer called %d times, want 2", got)
	}
}
