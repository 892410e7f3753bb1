// Package player delivers synthesized audio clips to an output device.
//
// A [Sink] plays one complete encoded clip and blocks until it has been
// heard. The playback queue owns the only Sink in the process, which is
// what keeps concurrent callers from talking over each other.
//
// [Device] plays through the default PortAudio output device; clips are
// decoded (MP3, WAV or AIFF, sniffed from the bytes) and resampled to
// the device format first. [Silent] implements the same contract without
// touching any hardware, for tests and daemons on headless machines.
package player

import (
	"context"
	"errors"
)

var (
	// ErrUnknownFormat means the clip's encoding could not be sniffed.
	ErrUnknownFormat = errors.New("player: unknown audio format")

	// ErrClosed is returned by Play after Close.
	ErrClosed = errors.New("player: sink closed")
)

// Sink plays complete audio clips, one at a time.
type Sink interface {
	// Play decodes data and blocks until playback finishes. The context
	// aborts playback between buffer writes; the clip is then cut
	// short, not resumed.
	Play(ctx context.Context, data []byte) error

	// Close releases the output device. In-flight Play calls finish
	// first from the caller's point of view; the playback queue never
	// closes a sink mid-job.
	Close() error
}
