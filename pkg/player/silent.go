package player

import (
	"context"
	"sync"
	"time"
)

// Silent is a Sink that decodes clips and discards the samples. Daemons
// on machines without an output device (--no-audio) use it so the queue
// semantics stay identical; tests use it to run playback scenarios
// without hardware.
type Silent struct {
	// Realtime makes Play block for the clip's actual duration instead
	// of returning immediately. Off by default.
	Realtime bool

	mu     sync.Mutex
	closed bool
}

var _ Sink = (*Silent)(nil)

// Play implements the Sink interface. The clip is still decoded, so a
// corrupt clip fails here exactly as it would on real hardware.
func (s *Silent) Play(ctx context.Context, data []byte) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	pcm, format, err := Decode(data)
	if err != nil {
		return err
	}
	if !s.Realtime {
		return ctx.Err()
	}

	frames := len(pcm) / format.FrameBytes()
	d := time.Duration(frames) * time.Second / time.Duration(format.SampleRate)
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements the Sink interface.
func (s *Silent) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
