// Package resampler converts 16-bit PCM audio between sample rates and
// channel layouts.
//
// Synthesized speech rarely matches the playback device: cloud voices
// come back at 22.05kHz or 24kHz mono while output devices usually run
// 48kHz stereo. [New] wraps a decoded PCM stream and yields the same
// audio in the device format.
//
// It supports:
//   - Sample rate conversion (e.g. 24000Hz to 48000Hz)
//   - Channel conversion (mono to stereo or stereo to mono)
//   - Streaming via io.Reader
//
// Rate conversion uses a pure Go polyphase resampler, so the package
// builds without CGO.
package resampler

import (
	"encoding/binary"
	"fmt"
	"io"
	"math"

	resampling "github.com/tphakala/go-audio-resampling"
)

// Format describes a stream of 16-bit signed little-endian PCM.
type Format struct {
	// SampleRate in Hz, e.g. 22050 or 48000.
	SampleRate int

	// Stereo selects two interleaved channels when true, one when false.
	Stereo bool
}

// Channels returns the interleaved channel count.
func (f Format) Channels() int {
	if f.Stereo {
		return 2
	}
	return 1
}

// FrameBytes returns the byte size of one frame (one sample per channel).
func (f Format) FrameBytes() int { return 2 * f.Channels() }

// Stream reads 16-bit PCM from a source and converts it to a target
// format. It is not safe for concurrent use.
type Stream struct {
	src  io.Reader
	from Format
	to   Format

	conv    resampling.Resampler // nil when rates already match
	srcBuf  []byte               // channel-converted audio awaiting rate conversion
	mixBuf  []byte               // raw source scratch for stereo downmix
	pending []byte               // converted audio not yet delivered
	srcErr  error                // source error deferred until pending drains
	closed  bool
}

// New returns a Stream that reads PCM in the from format out of src and
// yields it in the to format. Channel conversion happens first, then rate
// conversion, so the converter always runs at the target channel count.
func New(src io.Reader, from, to Format) (*Stream, error) {
	s := &Stream{
		src:  newFrameReader(src, from.FrameBytes()),
		from: from,
		to:   to,
	}
	if from.SampleRate != to.SampleRate {
		conv, err := resampling.New(&resampling.Config{
			InputRate:  float64(from.SampleRate),
			OutputRate: float64(to.SampleRate),
			Channels:   to.Channels(),
			Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
		})
		if err != nil {
			return nil, fmt.Errorf("resampler: %w", err)
		}
		s.conv = conv
	}
	return s, nil
}

// Read fills p with converted audio. The returned count is always a
// multiple of the target frame size, except that a trailing partial
// frame in the source surfaces as io.ErrUnexpectedEOF.
func (s *Stream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, fmt.Errorf("resampler: %w", io.ErrClosedPipe)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if len(p) < s.to.FrameBytes() {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/s.to.FrameBytes()*s.to.FrameBytes()]

	if len(s.pending) > 0 {
		n := copy(p, s.pending)
		s.pending = s.pending[n:]
		return n, nil
	}
	if s.srcErr != nil {
		return 0, s.srcErr
	}
	if s.conv == nil {
		return s.readFrames(p)
	}
	return s.readResampled(p)
}

// Close discards buffered audio and releases the converter. Subsequent
// reads fail with io.ErrClosedPipe.
func (s *Stream) Close() error {
	s.closed = true
	s.conv = nil
	s.pending = nil
	return nil
}

// readFrames reads channel-converted source audio directly into dst and
// returns the byte count. dst must be a multiple of the target frame size.
func (s *Stream) readFrames(dst []byte) (int, error) {
	switch {
	case s.from.Stereo == s.to.Stereo:
		return s.src.Read(dst)
	case s.from.Stereo:
		// Downmix: two source bytes collapse into one.
		need := len(dst) * 2
		if cap(s.mixBuf) < need {
			s.mixBuf = make([]byte, need)
		}
		n, err := s.src.Read(s.mixBuf[:need])
		if n == 0 {
			return 0, err
		}
		return downmix(dst, s.mixBuf[:n]), err
	default:
		// Upmix: read mono into the front half, then expand in place.
		n, err := s.src.Read(dst[: len(dst)/2 : len(dst)/2])
		if n == 0 {
			return 0, err
		}
		return upmix(dst[:n*2]), err
	}
}

// readResampled pulls roughly enough source audio to fill p after rate
// conversion, runs it through the converter, and stashes any surplus in
// pending for the next call.
func (s *Stream) readResampled(p []byte) (int, error) {
	ratio := float64(s.from.SampleRate) / float64(s.to.SampleRate)
	want := int(float64(len(p))*ratio) + 4*s.to.FrameBytes()
	if cap(s.srcBuf) < want {
		s.srcBuf = make([]byte, want)
	}

	n, readErr := s.readFrames(s.srcBuf[:want])
	if n == 0 {
		if readErr != nil {
			return 0, readErr
		}
		return 0, io.EOF
	}

	in := make([]float64, n/2)
	for i := range in {
		in[i] = float64(int16(binary.LittleEndian.Uint16(s.srcBuf[i*2:]))) / 32768
	}
	out, err := s.conv.Process(in)
	if err != nil {
		return 0, fmt.Errorf("resampler: %w", err)
	}
	if len(out) == 0 {
		// The converter is still priming its filter.
		return 0, readErr
	}

	buf := make([]byte, len(out)*2)
	for i, v := range out {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(clamp16(v)))
	}
	buf = buf[:len(buf)/s.to.FrameBytes()*s.to.FrameBytes()]

	w := copy(p, buf)
	if w < len(buf) {
		s.pending = append(s.pending[:0], buf[w:]...)
		s.srcErr = readErr
		return w, nil
	}
	return w, readErr
}

func clamp16(v float64) int16 {
	switch {
	case v >= 1:
		return math.MaxInt16
	case v <= -1:
		return math.MinInt16
	}
	return int16(v * 32767)
}

// downmix averages interleaved stereo samples from src into mono samples
// in dst and returns the number of bytes written.
func downmix(dst, src []byte) int {
	frames := len(src) / 4
	for i := 0; i < frames; i++ {
		l := int16(binary.LittleEndian.Uint16(src[i*4:]))
		r := int16(binary.LittleEndian.Uint16(src[i*4+2:]))
		m := int16((int32(l) + int32(r)) / 2)
		binary.LittleEndian.PutUint16(dst[i*2:], uint16(m))
	}
	return frames * 2
}

// upmix expands mono samples packed in the front half of b into stereo
// frames filling all of b, duplicating each sample, and returns len(b).
// It walks backwards so the expansion never overwrites unread input.
func upmix(b []byte) int {
	for i := len(b)/4 - 1; i >= 0; i-- {
		lo, hi := b[i*2], b[i*2+1]
		b[i*4], b[i*4+1] = lo, hi
		b[i*4+2], b[i*4+3] = lo, hi
	}
	return len(b)
}
