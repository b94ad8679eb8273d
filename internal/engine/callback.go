package engine

import (
	"errors"
	"fmt"
	"io"
	"sync"
)

// OpenFunc is invoked once by Open1 before the first read.
type OpenFunc func(a *Archive, data any) Status

// ReadFunc returns the next block of the byte source.
//
// The returned n is the number of valid bytes in buf; 0 means the source is exhausted and a negative value means
// the read failed, in which case the callback must have recorded the cause with SetError. buf must remain valid until
// the next invocation.
type ReadFunc func(a *Archive, data any) (buf []byte, n int)

// SeekFunc repositions the byte source. whence is one of SeekSet, SeekCur, or SeekEnd. It returns the new absolute
// position, or a negative Status after recording the cause with SetError.
type SeekFunc func(a *Archive, data any, offset int64, whence int) int64

// CloseFunc is invoked once when the archive is closed.
type CloseFunc func(a *Archive, data any) Status

// WriteFunc consumes one block of archive output, returning the number of bytes consumed or a negative value after
// recording the cause with SetError.
type WriteFunc func(a *Archive, data any, p []byte) int

// Whence values passed to SeekFunc.
const (
	SeekSet = 0
	SeekCur = 1
	SeekEnd = 2
)

// errClient is returned internally when a client callback reported failure; the details are on the handle.
var errClient = errors.New("client callback failed")

// clientReader adapts the read and seek callbacks into io.Reader and io.Seeker.
type clientReader struct {
	a    *Archive
	read ReadFunc
	seek SeekFunc
	data any

	pending []byte
	eof     bool
	failed  bool

	// mu serialises ReadAt, which is implemented as a seek followed by reads.
	mu sync.Mutex
}

func (c *clientReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}

	for len(c.pending) == 0 {
		switch {
		case c.failed:
			return 0, errClient
		case c.eof:
			return 0, io.EOF
		}

		buf, n := c.read(c.a, c.data)
		switch {
		case n < 0:
			c.failed = true
			if !c.a.hasErr {
				c.a.SetError(ErrnoMisc, "read callback failed without recording an error")
			}
			return 0, errClient
		case n == 0:
			c.eof = true
		case n > len(buf):
			c.failed = true
			c.a.SetError(ErrnoProgrammer, "read callback returned %d bytes for a %d-byte block", n, len(buf))
			return 0, errClient
		default:
			c.pending = buf[:n]
		}
	}

	n := copy(p, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *clientReader) seekable() bool {
	return c.seek != nil
}

func (c *clientReader) Seek(offset int64, whence int) (int64, error) {
	if c.seek == nil {
		return 0, errors.New("byte source is not seekable")
	}
	if c.failed {
		return 0, errClient
	}

	var w int
	switch whence {
	case io.SeekStart:
		w = SeekSet
	case io.SeekCurrent:
		w = SeekCur
		offset -= int64(len(c.pending))
	case io.SeekEnd:
		w = SeekEnd
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}

	pos := c.seek(c.a, c.data, offset, w)
	if pos < 0 {
		c.failed = true
		if !c.a.hasErr {
			c.a.SetError(ErrnoMisc, "seek callback failed without recording an error")
		}
		return 0, errClient
	}

	c.pending, c.eof = nil, false
	return pos, nil
}

func (c *clientReader) ReadAt(p []byte, off int64) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.Seek(off, io.SeekStart); err != nil {
		return 0, err
	}

	n, err := io.ReadFull(c, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = io.EOF
	}

	return n, err
}

// size returns the total size of the source while preserving the current position.
func (c *clientReader) size() (int64, error) {
	cur, err := c.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}

	end, err := c.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}

	if _, err = c.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}

	return end, nil
}

// countingReader counts the bytes the format reader has consumed.
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (n int, err error) {
	n, err = c.r.Read(p)
	c.n += int64(n)
	return
}

// countingReaderAt counts the bytes random-access format readers have consumed.
type countingReaderAt struct {
	r io.ReaderAt
	n int64
}

func (c *countingReaderAt) ReadAt(p []byte, off int64) (n int, err error) {
	n, err = c.r.ReadAt(p, off)
	c.n += int64(n)
	return
}
