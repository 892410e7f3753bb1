package tts

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// DefaultPiperVoice is used when neither the request nor the synthesizer
// names a voice.
const DefaultPiperVoice = "en_US-lessac-medium"

// Piper synthesizes speech on a local Piper server via the Wyoming
// protocol, one TCP connection per request. PCM chunks are collected and
// wrapped into a WAV container.
//
// Wyoming event framing:
//
//	<json_length> <payload_length>\n
//	<json_bytes>\n
//	<payload_bytes>   (payload_length bytes, may be zero)
type Piper struct {
	addr        string
	voice       string
	dialTimeout time.Duration
}

var _ Synthesizer = (*Piper)(nil)

// PiperOption is an option for configuring the Piper synthesizer.
type PiperOption func(*Piper)

// WithPiperVoice sets the voice model used when a request does not name
// one. Default "en_US-lessac-medium".
func WithPiperVoice(voice string) PiperOption {
	return func(p *Piper) { p.voice = voice }
}

// WithPiperDialTimeout bounds how long a connection attempt may take.
// Default 10s.
func WithPiperDialTimeout(d time.Duration) PiperOption {
	return func(p *Piper) { p.dialTimeout = d }
}

// NewPiper creates a Piper synthesizer talking to a Wyoming server at
// addr (host:port; the linuxserver/piper container listens on 10200).
func NewPiper(addr string, opts ...PiperOption) *Piper {
	addr = strings.TrimPrefix(addr, "tcp://")
	p := &Piper{
		addr:        addr,
		voice:       DefaultPiperVoice,
		dialTimeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Synthesize implements the Synthesizer interface.
func (p *Piper) Synthesize(ctx context.Context, req Request) (*Result, error) {
	voice := req.Voice
	if voice == "" {
		voice = p.voice
	}

	d := net.Dialer{Timeout: p.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", p.addr)
	if err != nil {
		return nil, fmt.Errorf("piper: %w: %v", ErrProviderUnavailable, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(30 * time.Second))
	}

	synth := wyomingEvent{
		Type: "synthesize",
		Data: map[string]any{
			"text":  req.Text,
			"voice": map[string]any{"name": voice},
		},
	}
	if err := writeWyoming(conn, synth, nil); err != nil {
		return nil, fmt.Errorf("piper: %w: sending synthesize: %v", ErrSynthesisFailed, err)
	}

	// Response events: audio-start, audio-chunk*, audio-stop.
	var (
		br         = bufio.NewReader(conn)
		pcm        bytes.Buffer
		sampleRate = 22050
		channels   = 1
		width      = 2
	)
	for {
		ev, payload, err := readWyoming(br)
		if err != nil {
			return nil, fmt.Errorf("piper: %w: %v", ErrSynthesisFailed, err)
		}
		switch ev.Type {
		case "audio-start":
			if v, ok := ev.Data["rate"].(float64); ok {
				sampleRate = int(v)
			}
			if v, ok := ev.Data["channels"].(float64); ok {
				channels = int(v)
			}
			if v, ok := ev.Data["width"].(float64); ok {
				width = int(v)
			}
		case "audio-chunk":
			pcm.Write(payload)
		case "audio-stop":
			return &Result{
				Audio: encodeWAV(pcm.Bytes(), sampleRate, channels, width),
				MIME:  MIMEWAV,
			}, nil
		case "error":
			msg := "unknown error"
			if v, ok := ev.Data["text"].(string); ok {
				msg = v
			}
			return nil, fmt.Errorf("piper: %w: %s", ErrSynthesisFailed, msg)
		default:
			// Servers may emit informational events between the audio ones.
		}
	}
}

type wyomingEvent struct {
	Type          string         `json:"type"`
	Data          map[string]any `json:"data,omitempty"`
	PayloadLength int            `json:"payload_length,omitempty"`
}

func writeWyoming(w io.Writer, ev wyomingEvent, payload []byte) error {
	ev.PayloadLength = 0 // the header line carries the authoritative length
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%d %d\n", len(body), len(payload))
	buf.Write(body)
	buf.WriteByte('\n')
	buf.Write(payload)

	_, err = w.Write(buf.Bytes())
	return err
}

func readWyoming(br *bufio.Reader) (*wyomingEvent, []byte, error) {
	line, err := br.ReadString('\n')
	if err != nil {
		return nil, nil, fmt.Errorf("reading header: %w", err)
	}
	jsonPart, payloadPart, ok := strings.Cut(strings.TrimSpace(line), " ")
	if !ok {
		return nil, nil, fmt.Errorf("malformed header %q", strings.TrimSpace(line))
	}
	jsonLen, err := strconv.Atoi(jsonPart)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing json length: %w", err)
	}
	payloadLen, err := strconv.Atoi(strings.TrimSpace(payloadPart))
	if err != nil {
		return nil, nil, fmt.Errorf("parsing payload length: %w", err)
	}

	body := make([]byte, jsonLen+1) // +1 for the trailing newline
	if _, err := io.ReadFull(br, body); err != nil {
		return nil, nil, fmt.Errorf("reading event json: %w", err)
	}
	var ev wyomingEvent
	if err := json.Unmarshal(body[:jsonLen], &ev); err != nil {
		return nil, nil, fmt.Errorf("decoding event json: %w", err)
	}

	var payload []byte
	if payloadLen > 0 {
		payload = make([]byte, payloadLen)
		if _, err := io.ReadFull(br, payload); err != nil {
			return nil, nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	return &ev, payload, nil
}
