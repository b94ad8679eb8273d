package engine

import (
	"errors"
	"io"
	"os"
	"strings"
)

// WriteFormatCode names a container format the write side can produce.
type WriteFormatCode int

const (
	// WriteFormatTar lets the tar writer pick the most compatible of ustar, pax and GNU per member.
	WriteFormatTar WriteFormatCode = iota + 1
	WriteFormatPax
	WriteFormatUstar
	WriteFormatGnutar
	WriteFormatZip
	WriteFormatCpio
	WriteFormatAr
)

// writer holds the write-mode state of an Archive.
type writer struct {
	wformat  WriteFormatCode
	wopenCb  OpenFunc
	writeCb  WriteFunc
	wcloseCb CloseFunc
	wdata    any
	wopened  bool

	out *clientWriter
	fw  formatWriter
}

// clientWriter adapts the write callback into io.Writer.
type clientWriter struct {
	a      *Archive
	write  WriteFunc
	data   any
	failed bool
}

func (c *clientWriter) Write(p []byte) (int, error) {
	if c.failed {
		return 0, errClient
	}

	written := 0
	for written < len(p) {
		n := c.write(c.a, c.data, p[written:])
		if n <= 0 {
			c.failed = true
			if !c.a.hasErr {
				c.a.SetError(ErrnoMisc, "write callback failed without recording an error")
			}
			return written, errClient
		}

		written += n
	}

	return written, nil
}

// SetFormat selects the container format. It must be called before opening.
func (a *Archive) SetFormat(code WriteFormatCode) Status {
	if st := a.check(ModeWrite, stateNew, "archive_write_set_format"); st != OK {
		return st
	}

	if code < WriteFormatTar || code > WriteFormatAr {
		a.SetError(ErrnoProgrammer, "No such format code %d", int(code))
		return Fatal
	}

	a.wformat = code
	return OK
}

// OpenWrite opens the archive for writing through the given callbacks. open and close may be nil.
func (a *Archive) OpenWrite(data any, open OpenFunc, write WriteFunc, close CloseFunc) Status {
	if st := a.check(ModeWrite, stateNew, "archive_write_open"); st != OK {
		return st
	}

	a.ClearError()

	if a.wformat == 0 {
		a.SetError(ErrnoProgrammer, "Format must be set before you can write to an archive.")
		a.state = stateFatal
		return Fatal
	}

	if write == nil {
		a.SetError(ErrnoProgrammer, "No write callback is registered")
		a.state = stateFatal
		return Fatal
	}

	a.wopenCb, a.writeCb, a.wcloseCb, a.wdata = open, write, close, data
	if open != nil {
		if st := open(a, data); st != OK {
			if close != nil {
				close(a, data)
			}
			a.state = stateFatal
			return st
		}
	}

	a.wopened = true
	a.out = &clientWriter{a: a, write: write, data: data}
	a.fw = newFormatWriter(a.wformat, a.out)
	a.state = stateHeader
	return OK
}

// OpenWriteFilename creates or truncates the named file and writes the archive into it.
func (a *Archive) OpenWriteFilename(name string) Status {
	if st := a.check(ModeWrite, stateNew, "archive_write_open_filename"); st != OK {
		return st
	}

	if strings.IndexByte(name, 0) >= 0 {
		a.SetError(ErrnoProgrammer, "Invalid filename")
		a.state = stateFatal
		return Fatal
	}

	f, err := os.Create(name)
	if err != nil {
		a.SetError(errnoOf(err), "Failed to open '%s'", name)
		a.state = stateFatal
		return Fatal
	}

	return a.OpenWrite(f, nil, fileWrite, fileWriteClose)
}

func fileWrite(a *Archive, data any, p []byte) int {
	f := data.(*os.File)

	n, err := f.Write(p)
	if err != nil {
		a.SetError(errnoOf(err), "Write error on '%s': %v", f.Name(), err)
		return int(Fatal)
	}

	return n
}

func fileWriteClose(a *Archive, data any) Status {
	f := data.(*os.File)

	if err := f.Close(); err != nil {
		a.SetError(errnoOf(err), "Error closing '%s': %v", f.Name(), err)
		return Fatal
	}

	return OK
}

// WriteHeader starts a new member described by e, finishing the previous one first.
func (a *Archive) WriteHeader(e *Entry) Status {
	if st := a.check(ModeWrite, stateHeader|stateData, "archive_write_header"); st != OK {
		return st
	}

	a.ClearError()

	if e == nil || e.freed {
		a.SetError(ErrnoProgrammer, "Invalid entry")
		return Failed
	}

	if a.state == stateData {
		if st := a.finish(); st != OK {
			return st
		}
	}

	if len(e.Pathname()) == 0 {
		a.SetError(ErrnoFileFormat, "Can't record entry in %s archive without pathname", a.wformat)
		return Failed
	}

	if err := a.fw.writeHeader(e); err != nil {
		return a.writeFailure(err)
	}

	a.state = stateData
	return OK
}

// WriteData appends payload bytes to the current member.
func (a *Archive) WriteData(p []byte) (int, Status) {
	if st := a.check(ModeWrite, stateData, "archive_write_data"); st != OK {
		return 0, st
	}

	n, err := a.fw.write(p)
	if err != nil {
		return n, a.writeFailure(err)
	}

	return n, OK
}

// FinishEntry completes the current member, padding it as the format requires.
func (a *Archive) FinishEntry() Status {
	if st := a.check(ModeWrite, stateHeader|stateData, "archive_write_finish_entry"); st != OK {
		return st
	}

	if a.state != stateData {
		return OK
	}

	return a.finish()
}

func (a *Archive) finish() Status {
	if err := a.fw.finishEntry(); err != nil {
		return a.writeFailure(err)
	}

	a.state = stateHeader
	return OK
}

// writeFailure maps err to Fatal when the output is broken and Failed when only the current member is affected.
func (a *Archive) writeFailure(err error) Status {
	if errors.Is(err, errClient) || a.out.failed {
		a.state = stateFatal
		return Fatal
	}

	a.fail(err)
	return Failed
}

// WriteClose finishes the archive, writing any trailer, and invokes the close callback. Calling it again is a no-op.
func (a *Archive) WriteClose() Status {
	if st := a.check(ModeWrite, stateNew|stateHeader|stateData|stateEOF|stateClosed|stateFatal, "archive_write_close"); st != OK {
		return st
	}

	if a.state == stateClosed {
		return OK
	}

	st := OK
	if a.state == stateHeader || a.state == stateData {
		if a.state == stateData {
			st = a.finish()
		}
		if err := a.fw.close(); err != nil && st == OK {
			st = a.writeFailure(err)
		}
	}

	a.state = stateClosed
	a.generation++

	if a.wopened && a.wcloseCb != nil {
		if cst := a.wcloseCb(a, a.wdata); cst != OK && st == OK {
			st = cst
		}
	}
	a.wopened = false

	return st
}

// WriteFree releases the archive. Unless the archive is in the fatal state, WriteClose is invoked first.
func (a *Archive) WriteFree() Status {
	if a == nil {
		return OK
	}
	if a.freed || a.mode != ModeWrite {
		return a.check(ModeWrite, stateClosed, "archive_write_free")
	}

	st := OK
	if a.state != stateClosed && a.state != stateFatal {
		st = a.WriteClose()
	}

	a.release()
	return st
}

var _ io.Writer = &clientWriter{}
