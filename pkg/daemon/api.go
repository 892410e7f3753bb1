package daemon

import (
	"github.com/haivivi/speakd/pkg/cache"
	"github.com/haivivi/speakd/pkg/jsontime"
	"github.com/haivivi/speakd/pkg/queue"
)

// envelope is the JSON wrapper every endpoint responds with.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// headerAPIKey carries the shared secret when auth is enabled.
const headerAPIKey = "X-API-Key"

// SpeakRequest is the body of POST /v1/speak.
type SpeakRequest struct {
	Text     string `json:"text"`
	Voice    string `json:"voice,omitempty"`
	Provider string `json:"provider,omitempty"`

	// Cache defaults to true when absent.
	Cache *bool `json:"cache,omitempty"`

	// Threshold overrides the daemon's similarity floor, valid in
	// (0, 1]. Absent means the default.
	Threshold *float32 `json:"threshold,omitempty"`

	SkipQueue   bool   `json:"skip_queue,omitempty"`
	SubmittedBy string `json:"submitted_by,omitempty"`

	// NoWait fails with ErrNotReady instead of blocking when the
	// daemon is still starting. Sent as a query parameter.
	NoWait bool `json:"-"`
}

// SpeakResponse is the data of a successful POST /v1/speak.
type SpeakResponse struct {
	JobID       uint64   `json:"job_id"`
	Token       string   `json:"token"`
	CacheHit    bool     `json:"cache_hit"`
	Similarity  *float32 `json:"similarity"`
	MatchedText string   `json:"matched_text,omitempty"`
	Uncacheable bool     `json:"uncacheable,omitempty"`
	Provider    string   `json:"provider"`
	Voice       string   `json:"voice"`
}

// QueueStatus summarizes the playback queue inside StatusResponse.
type QueueStatus struct {
	Waiting int     `json:"waiting"`
	Playing *uint64 `json:"playing,omitempty"`
}

// StatusResponse is the data of GET /v1/status. It is served in every
// lifecycle state; fields beyond State are zero while starting.
type StatusResponse struct {
	State        State              `json:"state"`
	PID          int                `json:"pid"`
	Version      string             `json:"version,omitempty"`
	StartedAt    jsontime.Milli     `json:"started_at"`
	Uptime       *jsontime.Duration `json:"uptime,omitempty"`
	ModelsLoaded bool               `json:"models_loaded"`
	Provider     string             `json:"provider"`
	Queue        *QueueStatus       `json:"queue,omitempty"`
	Cache        *cache.Stats       `json:"cache,omitempty"`
}

// QueueResponse is the data of GET /v1/queue.
type QueueResponse struct {
	Jobs []queue.Job `json:"jobs"`
}
