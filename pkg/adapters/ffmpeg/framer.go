package ffmpeg

import (
	"errors"
	"fmt"
	"io"
)

// Framer splits a byte stream into frames. ReadFrame returns io.EOF once
// the stream is exhausted and every complete frame has been returned.
type Framer interface {
	ReadFrame(r io.Reader) ([]byte, error)
}

// FixedFramer splits a stream into frames of a fixed size, such as raw
// NV12 images or PCM packets.
type FixedFramer struct {
	Size int
}

// ReadFrame reads exactly Size bytes. A trailing partial frame is dropped.
func (f FixedFramer) ReadFrame(r io.Reader) ([]byte, error) {
	if f.Size <= 0 {
		return nil, fmt.Errorf("ffmpeg: invalid frame size %d", f.Size)
	}
	buf := make([]byte, f.Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return buf, nil
}

// SplitFunc finds the next frame boundary in buf. It returns the offset of
// the boundary or -1 when buf holds no complete frame yet.
type SplitFunc func(buf []byte) int

// DelimitedFramer accumulates a stream and cuts it where Split says. The
// bytes left at EOF form the last frame.
type DelimitedFramer struct {
	Split SplitFunc

	buf  []byte
	tmp  []byte
	done bool
}

// NewDelimitedFramer creates a framer with the given boundary finder.
func NewDelimitedFramer(split SplitFunc) *DelimitedFramer {
	return &DelimitedFramer{Split: split, tmp: make([]byte, 64*1024)}
}

func (f *DelimitedFramer) ReadFrame(r io.Reader) ([]byte, error) {
	for {
		if i := f.Split(f.buf); i > 0 {
			frame := append([]byte(nil), f.buf[:i]...)
			f.buf = append(f.buf[:0], f.buf[i:]...)
			return frame, nil
		}
		if f.done {
			if len(f.buf) == 0 {
				return nil, io.EOF
			}
			frame := f.buf
			f.buf = nil
			return frame, nil
		}

		n, err := r.Read(f.tmp)
		f.buf = append(f.buf, f.tmp[:n]...)
		if err == io.EOF {
			f.done = true
		} else if err != nil {
			return nil, err
		}
	}
}
