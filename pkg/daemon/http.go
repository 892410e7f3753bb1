package daemon

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/haivivi/speakd/pkg/cache"
	"github.com/haivivi/speakd/pkg/engine"
	"github.com/haivivi/speakd/pkg/jsontime"
	"github.com/haivivi/speakd/pkg/queue"
	"github.com/haivivi/speakd/pkg/tts"
)

// handler builds the HTTP surface. Status bypasses both auth gating
// order and readiness; everything else authenticates first, then waits
// for readiness unless the request opts out with ?nowait=1.
func (d *Daemon) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", d.handleStatus)
	mux.Handle("POST /v1/speak", d.gated(d.handleSpeak))
	mux.Handle("GET /v1/queue", d.gated(d.handleQueue))
	mux.Handle("DELETE /v1/queue/{id}", d.gated(d.handleCancel))
	mux.Handle("GET /v1/events", d.gated(d.handleEvents))
	mux.Handle("POST /v1/cache/purge", d.gated(d.handleCachePurge))
	mux.Handle("POST /v1/shutdown", d.authed(d.handleShutdown))
	mux.Handle("POST /v1/restart", d.authed(d.handleRestart))
	return mux
}

// authed rejects requests without the configured API key. No work
// happens on behalf of an unauthorized caller.
func (d *Daemon) authed(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if d.cfg.APIKey != "" {
			got := r.Header.Get(headerAPIKey)
			if subtle.ConstantTimeCompare([]byte(got), []byte(d.cfg.APIKey)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next(w, r)
	})
}

// gated is authed plus the readiness gate.
func (d *Daemon) gated(next http.HandlerFunc) http.Handler {
	return d.authed(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("nowait") == "1" {
			if d.State() != StateReady {
				writeError(w, http.StatusServiceUnavailable, "daemon not ready")
				return
			}
		} else if err := d.awaitReady(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, "daemon not ready")
			return
		}
		next(w, r)
	})
}

func (d *Daemon) handleStatus(w http.ResponseWriter, r *http.Request) {
	d.mu.RLock()
	state := d.state
	comp := d.comp
	startedAt := d.startedAt
	d.mu.RUnlock()

	resp := StatusResponse{
		State:    state,
		PID:      os.Getpid(),
		Version:  d.cfg.Version,
		Provider: d.cfg.Provider,
	}
	if comp != nil {
		resp.StartedAt = jsontime.Milli(startedAt)
		resp.Uptime = jsontime.FromDuration(time.Since(startedAt))
		resp.ModelsLoaded = true
		qs := &QueueStatus{Waiting: comp.queue.Waiting()}
		if j, ok := comp.queue.Playing(); ok {
			qs.Playing = &j.ID
		}
		resp.Queue = qs
		if comp.cache != nil {
			stats := comp.cache.Stats()
			resp.Cache = &stats
		}
	}
	writeData(w, resp)
}

func (d *Daemon) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req SpeakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	eng, _, err := d.engineAndQueue()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "daemon not ready")
		return
	}

	receipt, err := eng.Speak(r.Context(), engine.Request{
		Text:        req.Text,
		Provider:    req.Provider,
		Voice:       req.Voice,
		NoCache:     req.Cache != nil && !*req.Cache,
		Threshold:   req.Threshold,
		SkipQueue:   req.SkipQueue,
		SubmittedBy: req.SubmittedBy,
	})
	if err != nil {
		writeError(w, speakStatus(err), err.Error())
		return
	}
	writeData(w, SpeakResponse{
		JobID:       receipt.Job.ID,
		Token:       receipt.Job.Token,
		CacheHit:    receipt.CacheHit,
		Similarity:  receipt.Similarity,
		MatchedText: receipt.MatchedText,
		Uncacheable: receipt.Uncacheable,
		Provider:    receipt.Provider,
		Voice:       receipt.Voice,
	})
}

// speakStatus maps pipeline errors to HTTP codes.
func speakStatus(err error) int {
	switch {
	case errors.Is(err, cache.ErrEmptyText), errors.Is(err, engine.ErrBadThreshold):
		return http.StatusBadRequest
	case errors.Is(err, tts.ErrProviderUnknown):
		return http.StatusBadRequest
	case errors.Is(err, tts.ErrProviderUnavailable), errors.Is(err, tts.ErrSynthesisFailed):
		return http.StatusBadGateway
	case errors.Is(err, queue.ErrQueueFull):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func (d *Daemon) handleQueue(w http.ResponseWriter, r *http.Request) {
	_, q, err := d.engineAndQueue()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "daemon not ready")
		return
	}
	writeData(w, QueueResponse{Jobs: q.Snapshot()})
}

func (d *Daemon) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	_, q, err := d.engineAndQueue()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "daemon not ready")
		return
	}
	switch err := q.Cancel(id, r.URL.Query().Get("token")); {
	case err == nil:
		writeData(w, nil)
	case errors.Is(err, queue.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrBadToken):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, queue.ErrNotCancellable):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (d *Daemon) handleCachePurge(w http.ResponseWriter, r *http.Request) {
	d.mu.RLock()
	comp := d.comp
	d.mu.RUnlock()
	if comp == nil {
		writeError(w, http.StatusServiceUnavailable, "daemon not ready")
		return
	}
	if comp.cache == nil {
		writeError(w, http.StatusConflict, "cache is disabled")
		return
	}
	if err := comp.cache.Purge(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeData(w, nil)
}

func (d *Daemon) handleShutdown(w http.ResponseWriter, r *http.Request) {
	writeData(w, nil)
	d.Shutdown()
}

func (d *Daemon) handleRestart(w http.ResponseWriter, r *http.Request) {
	writeData(w, nil)
	d.Restart()
}

var upgrader = websocket.Upgrader{
	// The daemon serves loopback and unix sockets only.
	CheckOrigin: func(*http.Request) bool { return true },
}

// handleEvents streams queue state transitions over a websocket until
// the client hangs up or the components go down for restart.
func (d *Daemon) handleEvents(w http.ResponseWriter, r *http.Request) {
	_, q, err := d.engineAndQueue()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "daemon not ready")
		return
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	events, unsub := q.Subscribe()
	defer unsub()

	// Reader goroutine notices the client hanging up.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return // queue closed (shutdown or restart)
			}
			if err := conn.WriteJSON(ev); err != nil {
				return
			}
		case <-gone:
			return
		case <-r.Context().Done():
			return
		}
	}
}

func writeData(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(envelope{Success: false, Message: msg})
}
