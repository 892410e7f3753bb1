package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/exec"
	"syscall"
	"time"

	gax "github.com/googleapis/gax-go/v2"
	"github.com/gorilla/websocket"

	"github.com/haivivi/speakd/pkg/queue"
)

// Client talks to a running daemon over its unix socket. The zero value
// is not usable; construct with NewClient.
type Client struct {
	socket string
	apiKey string
	httpc  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithAPIKey attaches the shared secret to every request.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

// NewClient creates a client for the daemon at socketPath.
func NewClient(socketPath string, opts ...ClientOption) *Client {
	c := &Client{
		socket: socketPath,
		httpc: &http.Client{
			Transport: &http.Transport{
				DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
					var d net.Dialer
					return d.DialContext(ctx, "unix", socketPath)
				},
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// call performs one request and decodes the envelope. A non-success
// envelope becomes an error carrying the daemon's message.
func (c *Client) call(ctx context.Context, method, path string, body, out any) error {
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	// The host is a placeholder; the transport dials the socket.
	req, err := http.NewRequestWithContext(ctx, method, "http://speakd"+path, rd)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set(headerAPIKey, c.apiKey)
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var env envelope
	raw := json.RawMessage{}
	env.Data = &raw
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("daemon: decoding response: %w", err)
	}
	if !env.Success {
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			return fmt.Errorf("%w: %s", ErrUnauthorized, env.Message)
		case http.StatusServiceUnavailable:
			return fmt.Errorf("%w: %s", ErrNotReady, env.Message)
		default:
			return fmt.Errorf("daemon: %s", env.Message)
		}
	}
	if out != nil && len(raw) > 0 {
		return json.Unmarshal(raw, out)
	}
	return nil
}

// Speak submits a speech request and returns once it is enqueued.
func (c *Client) Speak(ctx context.Context, req SpeakRequest) (*SpeakResponse, error) {
	path := "/v1/speak"
	if req.NoWait {
		path += "?nowait=1"
	}
	var out SpeakResponse
	if err := c.call(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status queries the daemon state. Answered in every lifecycle state.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.call(ctx, http.MethodGet, "/v1/status", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Queue returns the ordered job snapshot.
func (c *Client) Queue(ctx context.Context) ([]queue.Job, error) {
	var out QueueResponse
	if err := c.call(ctx, http.MethodGet, "/v1/queue", nil, &out); err != nil {
		return nil, err
	}
	return out.Jobs, nil
}

// Cancel cancels a queued job using its token.
func (c *Client) Cancel(ctx context.Context, id uint64, token string) error {
	path := fmt.Sprintf("/v1/queue/%d?token=%s", id, token)
	return c.call(ctx, http.MethodDelete, path, nil, nil)
}

// PurgeCache deletes every cache entry and its audio artifacts.
func (c *Client) PurgeCache(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/v1/cache/purge", nil, nil)
}

// Shutdown asks the daemon to stop.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/v1/shutdown", nil, nil)
}

// Restart asks the daemon to stop and start again in-process.
func (c *Client) Restart(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/v1/restart", nil, nil)
}

// Events opens the websocket feed of queue transitions. The returned
// channel closes when the connection drops; the close function hangs
// up from the client side.
func (c *Client) Events(ctx context.Context) (<-chan queue.Event, func(), error) {
	dialer := websocket.Dialer{
		NetDialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, "unix", c.socket)
		},
	}
	hdr := http.Header{}
	if c.apiKey != "" {
		hdr.Set(headerAPIKey, c.apiKey)
	}
	conn, _, err := dialer.DialContext(ctx, "ws://speakd/v1/events", hdr)
	if err != nil {
		return nil, nil, fmt.Errorf("daemon: events feed: %w", err)
	}

	events := make(chan queue.Event, 64)
	go func() {
		defer close(events)
		for {
			var ev queue.Event
			if err := conn.ReadJSON(&ev); err != nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return events, func() { conn.Close() }, nil
}

// Running reports whether a daemon is answering on the socket.
func (c *Client) Running(ctx context.Context) bool {
	_, err := c.Status(ctx)
	return err == nil
}

// WaitReady polls status with backoff until the daemon reports ready.
// The deadline comes from ctx; there is no built-in cap.
func (c *Client) WaitReady(ctx context.Context) error {
	bo := gax.Backoff{
		Initial:    50 * time.Millisecond,
		Max:        time.Second,
		Multiplier: 1.6,
	}
	for {
		st, err := c.Status(ctx)
		if err == nil && st.State == StateReady {
			return nil
		}
		if err := gax.Sleep(ctx, bo.Pause()); err != nil {
			return fmt.Errorf("daemon: waiting for ready: %w", err)
		}
	}
}

// EnsureRunning makes sure a daemon is up and ready, spawning one with
// the given command line when the socket is dead. spawn is typically
// the current binary with "daemon run" arguments.
func (c *Client) EnsureRunning(ctx context.Context, spawn []string) error {
	if c.Running(ctx) {
		return c.WaitReady(ctx)
	}
	if len(spawn) == 0 {
		return errors.New("daemon: not running and no spawn command given")
	}

	cmd := exec.Command(spawn[0], spawn[1:]...)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("daemon: spawning: %w", err)
	}
	// The daemon detaches; the spawner does not wait on it.
	if err := cmd.Process.Release(); err != nil {
		return fmt.Errorf("daemon: releasing spawned process: %w", err)
	}
	return c.WaitReady(ctx)
}

// Stop shuts the daemon down, escalating to signals when the polite
// request does not take effect before ctx expires: SIGTERM first, then
// SIGKILL after a short beat.
func (c *Client) Stop(ctx context.Context) error {
	if !c.Running(ctx) {
		return nil
	}
	// A dying daemon may drop the connection mid-response, so any other
	// error here just means we fall through to polling.
	if err := c.Shutdown(ctx); errors.Is(err, ErrUnauthorized) {
		return err
	}

	bo := gax.Backoff{Initial: 50 * time.Millisecond, Max: 500 * time.Millisecond, Multiplier: 1.5}
	for c.Running(ctx) {
		if err := gax.Sleep(ctx, bo.Pause()); err != nil {
			return c.forceKill()
		}
	}
	return nil
}

// forceKill terminates the daemon via the pid in the lock file.
func (c *Client) forceKill() error {
	pid := ReadLockedPID(c.socket)
	if pid == 0 {
		return errors.New("daemon: unresponsive and pid unknown")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return nil // already gone
	}
	time.Sleep(2 * time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if c.Running(ctx) {
		return proc.Kill()
	}
	return nil
}
