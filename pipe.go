package archivist

import (
	"errors"
	"io"
	"io/fs"
	"syscall"

	"github.com/nguyengg/archivist/internal/engine"
)

// pipeBufferSize is the size of the staging buffer handed to the engine on every read callback.
const pipeBufferSize = 8192

// maxZeroReads bounds the number of consecutive (0, nil) reads tolerated from a source before giving up.
const maxZeroReads = 100

// pipe bridges an io.Reader (and optionally an io.Seeker) to the engine's read, seek, and close callbacks.
//
// A pipe is registered as the callback data of exactly one engine handle and must not move or be shared.
type pipe struct {
	src    io.Reader
	seeker io.Seeker
	buf    []byte

	// pending is an error returned alongside data, reported on the next read.
	pending error

	// detached stops the close callback from closing src.
	detached bool
}

func newPipe(src io.Reader, seeker io.Seeker) *pipe {
	return &pipe{src: src, seeker: seeker, buf: make([]byte, pipeBufferSize)}
}

func (p *pipe) register(a *engine.Archive) engine.Status {
	if st := a.SetReadCallback(pipeRead); st != engine.OK {
		return st
	}
	if st := a.SetCloseCallback(pipeClose); st != engine.OK {
		return st
	}

	return a.SetCallbackData(p)
}

func pipeRead(a *engine.Archive, data any) ([]byte, int) {
	p := data.(*pipe)

	if err := p.pending; err != nil {
		p.pending = nil
		a.SetError(errnoOf(err), "read error: %v", err)
		return p.buf, int(engine.Fatal)
	}

	for range maxZeroReads {
		n, err := p.src.Read(p.buf)
		switch {
		case n > 0:
			if err != nil && !errors.Is(err, io.EOF) {
				p.pending = err
			}
			return p.buf, n
		case errors.Is(err, io.EOF):
			return p.buf, 0
		case err != nil:
			a.SetError(errnoOf(err), "read error: %v", err)
			return p.buf, int(engine.Fatal)
		}
	}

	a.SetError(engine.ErrnoMisc, "read error: %v", io.ErrNoProgress)
	return p.buf, int(engine.Fatal)
}

func pipeSeek(a *engine.Archive, data any, offset int64, whence int) int64 {
	p := data.(*pipe)

	if p.seeker == nil {
		a.SetError(engine.ErrnoProgrammer, "byte source is not seekable")
		return int64(engine.Fatal)
	}

	var w int
	switch whence {
	case engine.SeekSet:
		w = io.SeekStart
	case engine.SeekCur:
		w = io.SeekCurrent
	case engine.SeekEnd:
		w = io.SeekEnd
	default:
		a.SetError(engine.ErrnoProgrammer, "invalid whence %d", whence)
		return int64(engine.Fatal)
	}

	pos, err := p.seeker.Seek(offset, w)
	if err != nil {
		a.SetError(errnoOf(err), "seek error: %v", err)
		return int64(engine.Fatal)
	}

	// data staged before the seek no longer follows the new position.
	p.pending = nil
	return pos
}

func pipeClose(a *engine.Archive, data any) engine.Status {
	if err := data.(*pipe).release(); err != nil {
		a.SetError(errnoOf(err), "close error: %v", err)
		return engine.Fatal
	}

	return engine.OK
}

// release closes the source if it is an io.Closer that has not been detached.
func (p *pipe) release() error {
	if p.detached {
		return nil
	}

	if c, ok := p.src.(io.Closer); ok {
		return c.Close()
	}

	return nil
}

// errnoOf extracts an operating system error number from err, falling back to engine.ErrnoMisc.
func errnoOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return int(syscall.ENOENT)
	case errors.Is(err, fs.ErrPermission):
		return int(syscall.EACCES)
	default:
		return engine.ErrnoMisc
	}
}
