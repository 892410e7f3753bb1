// Package daemon is the long-lived speakd process: it loads the
// embedder and the semantic cache once, owns the single playback queue,
// and serves short-lived CLI invocations over a local HTTP interface on
// a unix socket (optionally also loopback TCP).
//
// Lifecycle is stopped → starting → ready → stopping → stopped. The
// starting phase covers model and index loading and can take a while;
// requests arriving then wait for readiness by default, or get a 503
// when the caller asked not to wait. Status requests are answered in
// every state. Restart replays the cycle in-process without dropping
// the listener.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/haivivi/speakd/pkg/artifact"
	"github.com/haivivi/speakd/pkg/cache"
	"github.com/haivivi/speakd/pkg/embed"
	"github.com/haivivi/speakd/pkg/engine"
	"github.com/haivivi/speakd/pkg/kv"
	"github.com/haivivi/speakd/pkg/player"
	"github.com/haivivi/speakd/pkg/queue"
	"github.com/haivivi/speakd/pkg/tts"
)

var (
	// ErrNotReady is returned to clients that declined to wait while
	// the daemon is still starting.
	ErrNotReady = errors.New("daemon: not ready")

	// ErrUnauthorized is returned when the API key is missing or wrong.
	ErrUnauthorized = errors.New("daemon: unauthorized")

	// ErrAlreadyRunning means another daemon holds the lock file.
	ErrAlreadyRunning = errors.New("daemon: already running")
)

// State is the daemon lifecycle state.
type State string

const (
	StateStopped  State = "stopped"
	StateStarting State = "starting"
	StateReady    State = "ready"
	StateStopping State = "stopping"
)

// shutdownGrace bounds how long stopping waits for the playing job
// before cutting it off.
const shutdownGrace = 10 * time.Second

// Config wires a Daemon. The component fields are factories, not
// instances: restart tears components down and builds them again
// without touching the listener.
type Config struct {
	// SocketPath is the unix socket the daemon serves on. Required.
	SocketPath string

	// HTTPAddr optionally adds a loopback TCP listener, e.g.
	// "127.0.0.1:7717".
	HTTPAddr string

	// APIKey, when set, must accompany every request as X-API-Key.
	APIKey string

	// Router maps provider names to synthesizers. Required.
	Router *tts.Mux

	// NewEmbedder, NewKV, NewArtifacts and NewSink build the
	// long-lived components during the starting phase. All required.
	NewEmbedder  func(ctx context.Context) (embed.Embedder, error)
	NewKV        func() (kv.Store, error)
	NewArtifacts func() (artifact.Store, error)
	NewSink      func() (player.Sink, error)

	// Provider and Voice are the defaults for requests naming none.
	Provider string
	Voice    string

	// Threshold is the default similarity floor; zero means the engine
	// default.
	Threshold float32

	// CacheDisabled runs the daemon without any cache at all.
	CacheDisabled bool

	// MaxTextLen bounds cacheable text; zero means the cache default.
	MaxTextLen int

	// QueueKeep is how many finished jobs stay in queue status output.
	QueueKeep int

	// Version string reported by status.
	Version string

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// components are everything rebuilt on each starting phase.
type components struct {
	kv        kv.Store
	artifacts artifact.Store
	cache     *cache.Cache
	sink      player.Sink
	queue     *queue.Queue
	engine    *engine.Engine
}

// Daemon is the process-wide singleton. Construct with New, drive with
// Run; everything else happens over the HTTP surface.
type Daemon struct {
	cfg Config
	log *slog.Logger

	mu        sync.RWMutex
	state     State
	ready     chan struct{} // closed when state becomes ready
	comp      *components
	startedAt time.Time

	ctl  chan ctlMsg
	lock *processLock
}

type ctlMsg int

const (
	ctlShutdown ctlMsg = iota
	ctlRestart
)

// New validates cfg and creates a stopped Daemon.
func New(cfg Config) (*Daemon, error) {
	if cfg.SocketPath == "" {
		return nil, errors.New("daemon: Config.SocketPath is required")
	}
	if cfg.Router == nil {
		return nil, errors.New("daemon: Config.Router is required")
	}
	if cfg.NewEmbedder == nil || cfg.NewKV == nil || cfg.NewArtifacts == nil || cfg.NewSink == nil {
		return nil, errors.New("daemon: all component factories are required")
	}
	if cfg.Provider == "" {
		return nil, errors.New("daemon: Config.Provider is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Daemon{
		cfg:   cfg,
		log:   cfg.Logger,
		state: StateStopped,
		ready: make(chan struct{}),
		ctl:   make(chan ctlMsg, 1),
	}, nil
}

// State returns the current lifecycle state.
func (d *Daemon) State() State {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.state
}

func (d *Daemon) setState(s State) {
	d.mu.Lock()
	prev := d.state
	d.state = s
	if s == StateReady {
		close(d.ready)
	}
	if s == StateStarting && prev != StateStarting {
		d.ready = make(chan struct{})
	}
	d.mu.Unlock()
	d.log.Info("daemon state", "from", string(prev), "to", string(s))
}

// awaitReady blocks until the daemon is ready or ctx expires. It
// re-reads the readiness channel each round because restart replaces
// it.
func (d *Daemon) awaitReady(ctx context.Context) error {
	for {
		d.mu.RLock()
		state, ready := d.state, d.ready
		d.mu.RUnlock()
		switch state {
		case StateReady:
			return nil
		case StateStopping, StateStopped:
			return ErrNotReady
		}
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Run serves the daemon until ctx is cancelled or a shutdown request
// arrives. It owns the lock file, the listeners and the component
// lifecycle. A startup failure (corrupt cache, unusable audio device)
// is returned as an error; the process should exit.
func (d *Daemon) Run(ctx context.Context) error {
	lock, err := acquireLock(lockPath(d.cfg.SocketPath))
	if err != nil {
		return err
	}
	d.lock = lock
	defer lock.release()

	// The lock guarantees no other daemon is serving, so a leftover
	// socket from a crashed process is safe to remove.
	_ = os.Remove(d.cfg.SocketPath)
	if err := os.MkdirAll(filepath.Dir(d.cfg.SocketPath), 0o700); err != nil {
		return fmt.Errorf("daemon: socket dir: %w", err)
	}
	ln, err := net.Listen("unix", d.cfg.SocketPath)
	if err != nil {
		return fmt.Errorf("daemon: listen: %w", err)
	}
	defer os.Remove(d.cfg.SocketPath)

	srv := &http.Server{Handler: d.handler()}
	serveErr := make(chan error, 2)
	go func() { serveErr <- srv.Serve(ln) }()
	if d.cfg.HTTPAddr != "" {
		tcp, err := net.Listen("tcp", d.cfg.HTTPAddr)
		if err != nil {
			srv.Close()
			return fmt.Errorf("daemon: listen %s: %w", d.cfg.HTTPAddr, err)
		}
		go func() { serveErr <- srv.Serve(tcp) }()
	}
	defer func() {
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutCtx)
	}()

	for {
		d.setState(StateStarting)
		comp, err := d.buildComponents(ctx)
		if err != nil {
			d.setState(StateStopped)
			return err
		}
		d.mu.Lock()
		d.comp = comp
		d.startedAt = time.Now()
		d.mu.Unlock()
		d.setState(StateReady)

		var msg ctlMsg
		select {
		case <-ctx.Done():
			msg = ctlShutdown
		case msg = <-d.ctl:
		case err := <-serveErr:
			if !errors.Is(err, http.ErrServerClosed) {
				d.log.Error("daemon: http server", "error", err)
			}
			msg = ctlShutdown
		}

		d.setState(StateStopping)
		d.teardown(comp)
		d.setState(StateStopped)

		if msg == ctlRestart {
			d.log.Info("daemon restarting")
			continue
		}
		return nil
	}
}

// buildComponents performs the starting phase: embedder, stores, cache
// (index rebuild), sink, queue, engine.
func (d *Daemon) buildComponents(ctx context.Context) (*components, error) {
	store, err := d.cfg.NewKV()
	if err != nil {
		return nil, fmt.Errorf("daemon: kv store: %w", err)
	}
	artifacts, err := d.cfg.NewArtifacts()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("daemon: artifact store: %w", err)
	}

	// The embedder is only needed by the cache; a cacheless daemon
	// runs without one.
	var c *cache.Cache
	if !d.cfg.CacheDisabled {
		emb, err := d.cfg.NewEmbedder(ctx)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("daemon: embedder: %w", err)
		}
		c, err = cache.Open(ctx, cache.Options{
			KV:         store,
			Artifacts:  artifacts,
			Embedder:   embed.NewCached(emb, 0),
			MaxTextLen: d.cfg.MaxTextLen,
			Logger:     d.log,
		})
		if err != nil {
			store.Close()
			return nil, err
		}
	}

	sink, err := d.cfg.NewSink()
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("daemon: audio sink: %w", err)
	}
	q := queue.New(sink, queue.Options{
		KeepFinished: d.cfg.QueueKeep,
		Logger:       d.log,
	})
	eng, err := engine.New(c, d.cfg.Router, q, artifacts, engine.Options{
		DefaultProvider:  d.cfg.Provider,
		DefaultVoice:     d.cfg.Voice,
		DefaultThreshold: d.cfg.Threshold,
		Logger:           d.log,
	})
	if err != nil {
		q.Close(ctx)
		sink.Close()
		store.Close()
		return nil, err
	}
	return &components{
		kv:        store,
		artifacts: artifacts,
		cache:     c,
		sink:      sink,
		queue:     q,
		engine:    eng,
	}, nil
}

// teardown drains the queue with a bounded grace, then releases the
// sink and the stores.
func (d *Daemon) teardown(comp *components) {
	graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := comp.queue.Close(graceCtx); err != nil {
		d.log.Warn("daemon: closing queue", "error", err)
	}
	if err := comp.sink.Close(); err != nil {
		d.log.Warn("daemon: closing sink", "error", err)
	}
	if err := comp.kv.Close(); err != nil {
		d.log.Warn("daemon: closing kv store", "error", err)
	}
	d.mu.Lock()
	d.comp = nil
	d.mu.Unlock()
}

// Shutdown asks the running daemon to stop. Non-blocking; Run returns
// once the stopping sequence completes.
func (d *Daemon) Shutdown() {
	select {
	case d.ctl <- ctlShutdown:
	default:
	}
}

// Restart asks the running daemon to stop and start again in-process.
func (d *Daemon) Restart() {
	select {
	case d.ctl <- ctlRestart:
	default:
	}
}

// engineAndQueue returns the live engine and queue, or ErrNotReady when
// components are down.
func (d *Daemon) engineAndQueue() (*engine.Engine, *queue.Queue, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.comp == nil {
		return nil, nil, ErrNotReady
	}
	return d.comp.engine, d.comp.queue, nil
}

// lockPath derives the lock file path from the socket path.
func lockPath(socket string) string {
	return socket + ".lock"
}

// DefaultSocketPath returns the per-user socket location:
// $XDG_RUNTIME_DIR/speakd/speakd.sock when available, otherwise a
// uid-scoped directory under the temp dir.
func DefaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "speakd", "speakd.sock")
	}
	return filepath.Join(os.TempDir(), fmt.Sprintf("speakd-%d", os.Getuid()), "speakd.sock")
}
