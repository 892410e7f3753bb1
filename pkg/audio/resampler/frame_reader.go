package resampler

import "io"

// frameReader aligns reads from an underlying PCM stream to whole frames.
// A partial frame at the end of a short read is held back and prepended
// to the next read.
type frameReader struct {
	r    io.Reader
	size int

	rem []byte // partial frame carried between reads
}

func newFrameReader(r io.Reader, size int) *frameReader {
	return &frameReader{r: r, size: size, rem: make([]byte, 0, size-1)}
}

// Read returns zero bytes or a multiple of the frame size. A source that
// ends mid-frame yields the dangling bytes together with
// io.ErrUnexpectedEOF. Read fails with io.ErrShortBuffer when p cannot
// hold a single frame.
func (f *frameReader) Read(p []byte) (int, error) {
	if len(p) < f.size {
		return 0, io.ErrShortBuffer
	}
	p = p[:len(p)/f.size*f.size]

	n := copy(p, f.rem)
	f.rem = f.rem[:0]

	rn, err := f.r.Read(p[n:])
	n += rn
	if err != nil {
		if err == io.EOF && n%f.size != 0 {
			return n, io.ErrUnexpectedEOF
		}
		return n, err
	}
	if mod := n % f.size; mod != 0 {
		n -= mod
		f.rem = append(f.rem, p[n:n+mod]...)
	}
	return n, nil
}
