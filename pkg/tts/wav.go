package tts

import "encoding/binary"

// encodeWAV wraps raw little-endian PCM in a minimal WAV container
// (44-byte canonical header, PCM format tag).
func encodeWAV(pcm []byte, sampleRate, channels, bytesPerSample int) []byte {
	var hdr [44]byte
	copy(hdr[0:], "RIFF")
	binary.LittleEndian.PutUint32(hdr[4:], uint32(36+len(pcm)))
	copy(hdr[8:], "WAVE")
	copy(hdr[12:], "fmt ")
	binary.LittleEndian.PutUint32(hdr[16:], 16)
	binary.LittleEndian.PutUint16(hdr[20:], 1) // PCM
	binary.LittleEndian.PutUint16(hdr[22:], uint16(channels))
	binary.LittleEndian.PutUint32(hdr[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(hdr[28:], uint32(sampleRate*channels*bytesPerSample))
	binary.LittleEndian.PutUint16(hdr[32:], uint16(channels*bytesPerSample))
	binary.LittleEndian.PutUint16(hdr[34:], uint16(8*bytesPerSample))
	copy(hdr[36:], "data")
	binary.LittleEndian.PutUint32(hdr[40:], uint32(len(pcm)))

	out := make([]byte, 0, len(hdr)+len(pcm))
	out = append(out, hdr[:]...)
	return append(out, pcm...)
}
