package resampler

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
)

func pcm16(samples ...int16) []byte {
	b := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(b[i*2:], uint16(s))
	}
	return b
}

func TestFormat(t *testing.T) {
	mono := Format{SampleRate: 22050, Stereo: false}
	stereo := Format{SampleRate: 48000, Stereo: true}

	if got := mono.Channels(); got != 1 {
		t.Errorf("mono Channels() = %d, want 1", got)
	}
	if got := stereo.Channels(); got != 2 {
		t.Errorf("stereo Channels() = %d, want 2", got)
	}
	if got := mono.FrameBytes(); got != 2 {
		t.Errorf("mono FrameBytes() = %d, want 2", got)
	}
	if got := stereo.FrameBytes(); got != 4 {
		t.Errorf("stereo FrameBytes() = %d, want 4", got)
	}
}

func TestStream_Passthrough(t *testing.T) {
	fm := Format{SampleRate: 48000, Stereo: true}
	data := pcm16(100, -100, 200, -200)

	s, err := New(bytes.NewReader(data), fm, fm)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("passthrough got %v, want %v", got, data)
	}
}

func TestStream_MonoToStereo(t *testing.T) {
	src := Format{SampleRate: 48000, Stereo: false}
	dst := Format{SampleRate: 48000, Stereo: true}

	s, err := New(bytes.NewReader(pcm16(100, -200)), src, dst)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := pcm16(100, 100, -200, -200)
	if !bytes.Equal(got, want) {
		t.Fatalf("upmix got %v, want %v", got, want)
	}
}

func TestStream_StereoToMono(t *testing.T) {
	src := Format{SampleRate: 48000, Stereo: true}
	dst := Format{SampleRate: 48000, Stereo: false}

	s, err := New(bytes.NewReader(pcm16(100, 200, -100, -300)), src, dst)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	want := pcm16(150, -200)
	if !bytes.Equal(got, want) {
		t.Fatalf("downmix got %v, want %v", got, want)
	}
}

func TestStream_Upsample(t *testing.T) {
	src := Format{SampleRate: 24000, Stereo: false}
	dst := Format{SampleRate: 48000, Stereo: false}

	const frames = 4800 // 200ms at 24kHz
	in := make([]int16, frames)
	for i := range in {
		in[i] = int16(8000 * math.Sin(2*math.Pi*440*float64(i)/24000))
	}

	s, err := New(bytes.NewReader(pcm16(in...)), src, dst)
	if err != nil {
		t.Fatal(err)
	}
	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got)%2 != 0 {
		t.Fatalf("output not frame aligned: %d bytes", len(got))
	}

	// Doubling the rate should roughly double the frame count. The
	// converter's filter delay eats a little of the tail, so only bound
	// the result instead of pinning it.
	outFrames := len(got) / 2
	if outFrames <= frames || outFrames > 2*frames+64 {
		t.Fatalf("outFrames = %d, want within (%d, %d]", outFrames, frames, 2*frames+64)
	}
}

func TestStream_TruncatedSource(t *testing.T) {
	fm := Format{SampleRate: 48000, Stereo: false}

	// Three bytes: one whole frame and a torn one.
	s, err := New(bytes.NewReader([]byte{1, 2, 3}), fm, fm)
	if err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 8)
	n, err := s.Read(buf)
	if err != nil || n != 2 {
		t.Fatalf("first Read = (%d, %v), want (2, nil)", n, err)
	}
	if _, err := s.Read(buf); err != io.ErrUnexpectedEOF {
		t.Fatalf("second Read error = %v, want io.ErrUnexpectedEOF", err)
	}
}

func TestStream_ShortBuffer(t *testing.T) {
	fm := Format{SampleRate: 48000, Stereo: true}
	s, err := New(bytes.NewReader(pcm16(1, 2)), fm, fm)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := s.Read(make([]byte, 2)); err != io.ErrShortBuffer {
		t.Fatalf("Read error = %v, want io.ErrShortBuffer", err)
	}
}

func TestStream_Closed(t *testing.T) {
	fm := Format{SampleRate: 48000, Stereo: false}
	s, err := New(bytes.NewReader(pcm16(1, 2)), fm, fm)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Read(make([]byte, 4)); !errors.Is(err, io.ErrClosedPipe) {
		t.Fatalf("Read after Close = %v, want io.ErrClosedPipe", err)
	}
}
