package engine

import (
	"bytes"
	"errors"
	"io"
	"os"
)

// fileSource backs OpenFilename and OpenFd.
type fileSource struct {
	f   *os.File
	buf []byte
}

func fileRead(a *Archive, data any) ([]byte, int) {
	src := data.(*fileSource)

	n, err := src.f.Read(src.buf)
	if n > 0 {
		return src.buf, n
	}

	if err == nil || errors.Is(err, io.EOF) {
		return src.buf, 0
	}

	a.SetError(errnoOf(err), "Error reading '%s': %v", src.f.Name(), err)
	return src.buf, int(Fatal)
}

func fileSeek(a *Archive, data any, offset int64, whence int) int64 {
	src := data.(*fileSource)

	pos, err := src.f.Seek(offset, whence)
	if err != nil {
		a.SetError(errnoOf(err), "Error seeking in '%s': %v", src.f.Name(), err)
		return int64(Fatal)
	}

	return pos
}

func fileClose(a *Archive, data any) Status {
	src := data.(*fileSource)

	if err := src.f.Close(); err != nil {
		a.SetError(errnoOf(err), "Error closing '%s': %v", src.f.Name(), err)
		return Fatal
	}

	return OK
}

// memorySource backs OpenMemory.
type memorySource struct {
	r   *bytes.Reader
	buf []byte
}

func memoryRead(_ *Archive, data any) ([]byte, int) {
	src := data.(*memorySource)

	n, _ := src.r.Read(src.buf)
	return src.buf, n
}

func memorySeek(a *Archive, data any, offset int64, whence int) int64 {
	src := data.(*memorySource)

	pos, err := src.r.Seek(offset, whence)
	if err != nil {
		a.SetError(ErrnoProgrammer, "Error seeking in memory: %v", err)
		return int64(Fatal)
	}

	return pos
}
