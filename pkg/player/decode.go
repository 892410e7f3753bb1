package player

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	mp3 "github.com/hajimehoshi/go-mp3"

	"github.com/haivivi/speakd/pkg/audio/resampler"
)

// Decode sniffs the container from the leading bytes and returns
// 16-bit little-endian interleaved PCM plus its format. MP3, WAV and
// AIFF cover the built-in providers: OpenAI returns MP3, Gemini and
// Piper return WAV, macOS say returns AIFF.
func Decode(data []byte) ([]byte, resampler.Format, error) {
	switch {
	case len(data) >= 12 && string(data[:4]) == "RIFF" && string(data[8:12]) == "WAVE":
		return decodeWAV(data)
	case len(data) >= 12 && string(data[:4]) == "FORM" && string(data[8:12]) == "AIFF":
		return decodeAIFF(data)
	case len(data) >= 3 && (string(data[:3]) == "ID3" || (data[0] == 0xFF && data[1]&0xE0 == 0xE0)):
		return decodeMP3(data)
	default:
		return nil, resampler.Format{}, ErrUnknownFormat
	}
}

// decodeMP3 decodes with go-mp3, which always yields 16-bit stereo at
// the stream's sample rate.
func decodeMP3(data []byte) ([]byte, resampler.Format, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, resampler.Format{}, fmt.Errorf("player: mp3: %w", err)
	}
	pcm, err := io.ReadAll(dec)
	if err != nil {
		return nil, resampler.Format{}, fmt.Errorf("player: mp3: %w", err)
	}
	return pcm, resampler.Format{SampleRate: dec.SampleRate(), Stereo: true}, nil
}

// decodeWAV parses a RIFF/WAVE container and extracts the data chunk.
// Only uncompressed 16-bit PCM is accepted, which is what every
// provider in this repo and espeak produce.
func decodeWAV(data []byte) ([]byte, resampler.Format, error) {
	var (
		format     resampler.Format
		haveFmt    bool
		bitDepth   int
		formatTag  int
		channelCnt int
	)
	rest := data[12:]
	for len(rest) >= 8 {
		id := string(rest[:4])
		size := int(binary.LittleEndian.Uint32(rest[4:8]))
		if size < 0 || size > len(rest)-8 {
			return nil, resampler.Format{}, fmt.Errorf("player: wav: truncated %q chunk", id)
		}
		body := rest[8 : 8+size]
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, resampler.Format{}, fmt.Errorf("player: wav: short fmt chunk")
			}
			formatTag = int(binary.LittleEndian.Uint16(body[0:]))
			channelCnt = int(binary.LittleEndian.Uint16(body[2:]))
			format.SampleRate = int(binary.LittleEndian.Uint32(body[4:]))
			bitDepth = int(binary.LittleEndian.Uint16(body[14:]))
			format.Stereo = channelCnt == 2
			haveFmt = true
		case "data":
			if !haveFmt {
				return nil, resampler.Format{}, fmt.Errorf("player: wav: data chunk before fmt")
			}
			if formatTag != 1 || bitDepth != 16 {
				return nil, resampler.Format{}, fmt.Errorf("player: wav: unsupported encoding (tag %d, %d-bit)", formatTag, bitDepth)
			}
			if channelCnt != 1 && channelCnt != 2 {
				return nil, resampler.Format{}, fmt.Errorf("player: wav: %d channels", channelCnt)
			}
			return body, format, nil
		}
		// Chunks are word-aligned.
		rest = rest[8+size+size%2:]
	}
	return nil, resampler.Format{}, fmt.Errorf("player: wav: no data chunk")
}

// decodeAIFF parses FORM/AIFF as produced by macOS say: COMM for the
// format, SSND for big-endian signed 16-bit samples, byte-swapped here
// to little-endian.
func decodeAIFF(data []byte) ([]byte, resampler.Format, error) {
	var (
		format   resampler.Format
		haveComm bool
		channels int
		bitDepth int
	)
	rest := data[12:]
	for len(rest) >= 8 {
		id := string(rest[:4])
		size := int(binary.BigEndian.Uint32(rest[4:8]))
		if size < 0 || size > len(rest)-8 {
			return nil, resampler.Format{}, fmt.Errorf("player: aiff: truncated %q chunk", id)
		}
		body := rest[8 : 8+size]
		switch id {
		case "COMM":
			if size < 18 {
				return nil, resampler.Format{}, fmt.Errorf("player: aiff: short COMM chunk")
			}
			channels = int(binary.BigEndian.Uint16(body[0:]))
			bitDepth = int(binary.BigEndian.Uint16(body[6:]))
			format.SampleRate = int(ieeeExtended(body[8:18]))
			format.Stereo = channels == 2
			haveComm = true
		case "SSND":
			if !haveComm {
				return nil, resampler.Format{}, fmt.Errorf("player: aiff: SSND before COMM")
			}
			if bitDepth != 16 {
				return nil, resampler.Format{}, fmt.Errorf("player: aiff: unsupported %d-bit samples", bitDepth)
			}
			if channels != 1 && channels != 2 {
				return nil, resampler.Format{}, fmt.Errorf("player: aiff: %d channels", channels)
			}
			if size < 8 {
				return nil, resampler.Format{}, fmt.Errorf("player: aiff: short SSND chunk")
			}
			offset := int(binary.BigEndian.Uint32(body[0:4]))
			samples := body[8:]
			if offset > len(samples) {
				return nil, resampler.Format{}, fmt.Errorf("player: aiff: SSND offset out of range")
			}
			samples = samples[offset:]
			pcm := make([]byte, len(samples)/2*2)
			for i := 0; i+1 < len(samples); i += 2 {
				pcm[i], pcm[i+1] = samples[i+1], samples[i] // big to little endian
			}
			return pcm, format, nil
		}
		rest = rest[8+size+size%2:]
	}
	return nil, resampler.Format{}, fmt.Errorf("player: aiff: no SSND chunk")
}

// ieeeExtended converts the 80-bit extended float AIFF uses for sample
// rates. Values outside the sane audio range come back as 0.
func ieeeExtended(b []byte) float64 {
	exp := int(binary.BigEndian.Uint16(b[0:2]) & 0x7FFF)
	mantissa := binary.BigEndian.Uint64(b[2:10])
	if exp == 0 && mantissa == 0 {
		return 0
	}
	if exp == 0x7FFF {
		return 0 // Inf/NaN, not a sample rate
	}
	v := float64(mantissa) * math.Pow(2, float64(exp-16383-63))
	if b[0]&0x80 != 0 {
		return -v
	}
	return v
}
