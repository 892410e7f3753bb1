package cli

import (
	"github.com/haivivi/speakd/pkg/buffer"
)

// LogBuffer is a thread-safe sliding window of recent lines.
type LogBuffer = buffer.RingBuffer[string]

// NewLogBuffer creates a new buffer keeping the last maxSize lines.
func NewLogBuffer(maxSize int) *LogBuffer {
	return buffer.RingN[string](maxSize)
}
