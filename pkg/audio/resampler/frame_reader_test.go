package resampler

import (
	"bytes"
	"io"
	"testing"
)

func TestFrameReader_ExactMultiple(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	r := newFrameReader(bytes.NewReader(data), 4)

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if n != 8 {
		t.Fatalf("Read returned %d, want 8", n)
	}
	if !bytes.Equal(buf[:n], data) {
		t.Fatalf("Read got %v, want %v", buf[:n], data)
	}
}

func TestFrameReader_DanglingBytes(t *testing.T) {
	// 6 bytes with frame size 4: one whole frame, then a torn tail.
	data := []byte{1, 2, 3, 4, 5, 6}
	r := newFrameReader(bytes.NewReader(data), 4)

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("first Read error: %v", err)
	}
	if n != 4 || !bytes.Equal(buf[:n], []byte{1, 2, 3, 4}) {
		t.Fatalf("first Read got %d bytes %v, want [1 2 3 4]", n, buf[:n])
	}

	n, err = r.Read(buf)
	if err != io.ErrUnexpectedEOF {
		t.Fatalf("second Read error = %v, want io.ErrUnexpectedEOF", err)
	}
	if n != 2 {
		t.Fatalf("second Read returned %d, want 2", n)
	}
}

func TestFrameReader_ShortBuffer(t *testing.T) {
	r := newFrameReader(bytes.NewReader([]byte{1, 2, 3, 4}), 4)

	buf := make([]byte, 2)
	if _, err := r.Read(buf); err != io.ErrShortBuffer {
		t.Fatalf("Read error = %v, want io.ErrShortBuffer", err)
	}
}

func TestFrameReader_TruncatesToFrames(t *testing.T) {
	r := newFrameReader(bytes.NewReader([]byte{1, 2, 3, 4, 5, 6, 7, 8}), 4)

	// A 6-byte destination holds one whole frame.
	buf := make([]byte, 6)
	n, err := r.Read(buf)
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if n != 4 {
		t.Fatalf("Read returned %d, want 4", n)
	}
}

func TestFrameReader_SequentialReads(t *testing.T) {
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}
	r := newFrameReader(bytes.NewReader(data), 4)

	buf := make([]byte, 4)
	for i := 0; i < 3; i++ {
		n, err := r.Read(buf)
		if err != nil {
			t.Fatalf("Read %d error: %v", i, err)
		}
		if n != 4 || !bytes.Equal(buf[:n], data[i*4:i*4+4]) {
			t.Fatalf("Read %d got %v, want %v", i, buf[:n], data[i*4:i*4+4])
		}
	}
	if _, err := r.Read(buf); err != io.EOF {
		t.Fatalf("final Read error = %v, want io.EOF", err)
	}
}

func TestFrameReader_Empty(t *testing.T) {
	r := newFrameReader(bytes.NewReader(nil), 4)

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	if err != io.EOF {
		t.Fatalf("Read error = %v, want io.EOF", err)
	}
	if n != 0 {
		t.Fatalf("Read returned %d, want 0", n)
	}
}

func TestFrameReader_CarriesRemainder(t *testing.T) {
	// The source hands out 5 bytes at a time with a frame size of 4, so
	// every read leaves one byte to carry into the next.
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	r := newFrameReader(&chunkReader{data: data, chunk: 5}, 4)

	buf := make([]byte, 8)
	n, err := r.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("first Read error: %v", err)
	}
	if n != 4 || !bytes.Equal(buf[:n], []byte{1, 2, 3, 4}) {
		t.Fatalf("first Read got %v, want [1 2 3 4]", buf[:n])
	}

	n, err = r.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("second Read error: %v", err)
	}
	if n != 4 || !bytes.Equal(buf[:n], []byte{5, 6, 7, 8}) {
		t.Fatalf("second Read got %v, want [5 6 7 8]", buf[:n])
	}
}

// chunkReader returns data in fixed-size chunks.
type chunkReader struct {
	data  []byte
	pos   int
	chunk int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if r.pos >= len(r.data) {
		return 0, io.EOF
	}
	end := min(r.pos+r.chunk, len(r.data), r.pos+len(p))
	n := copy(p, r.data[r.pos:end])
	r.pos += n
	if r.pos >= len(r.data) {
		return n, io.EOF
	}
	return n, nil
}
