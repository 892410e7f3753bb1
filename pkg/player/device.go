package player

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/gordonklaus/portaudio"

	"github.com/haivivi/speakd/pkg/audio/resampler"
)

// Device format: every clip is resampled to this before it reaches the
// hardware, so the output stream opens once and stays open.
const (
	deviceSampleRate = 48000
	framesPerBuffer  = 1024
)

var deviceFormat = resampler.Format{SampleRate: deviceSampleRate, Stereo: true}

// Device plays clips through the default PortAudio output device.
//
// The stream is opened once at construction and shared by all Play
// calls. Play calls are serialized with a mutex; interleaving two clips
// on one stream would defeat the point of the playback queue.
type Device struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []int16
	closed bool
}

var _ Sink = (*Device)(nil)

// OpenDevice initializes PortAudio and opens the default output device.
func OpenDevice() (*Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("player: init portaudio: %w", err)
	}
	buf := make([]int16, framesPerBuffer*deviceFormat.Channels())
	stream, err := portaudio.OpenDefaultStream(0, deviceFormat.Channels(), deviceSampleRate, framesPerBuffer, buf)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("player: open output stream: %w", err)
	}
	return &Device{stream: stream, buf: buf}, nil
}

// Play implements the Sink interface.
func (d *Device) Play(ctx context.Context, data []byte) error {
	pcm, format, err := Decode(data)
	if err != nil {
		return err
	}
	stream, err := resampler.New(bytes.NewReader(pcm), format, deviceFormat)
	if err != nil {
		return err
	}
	defer stream.Close()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return ErrClosed
	}

	if err := d.stream.Start(); err != nil {
		return fmt.Errorf("player: start stream: %w", err)
	}
	defer d.stream.Stop()

	chunk := make([]byte, len(d.buf)*2)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := io.ReadFull(stream, chunk)
		if n > 0 {
			for i := 0; i < n/2; i++ {
				d.buf[i] = int16(binary.LittleEndian.Uint16(chunk[i*2:]))
			}
			// Zero-fill a final partial buffer; the write always
			// covers framesPerBuffer frames.
			for i := n / 2; i < len(d.buf); i++ {
				d.buf[i] = 0
			}
			if werr := d.stream.Write(); werr != nil {
				return fmt.Errorf("player: write stream: %w", werr)
			}
		}
		switch err {
		case nil:
		case io.EOF, io.ErrUnexpectedEOF:
			return nil
		default:
			return fmt.Errorf("player: reading clip: %w", err)
		}
	}
}

// Close stops the stream and terminates PortAudio.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	err := d.stream.Close()
	portaudio.Terminate()
	return err
}
