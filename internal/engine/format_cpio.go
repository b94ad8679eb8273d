package engine

import (
	"bytes"
	"io"

	"github.com/cavaliergopher/cpio"
)

// cpioReader implements formatReader for SVR4 (newc and crc) cpio archives.
type cpioReader struct {
	cr *cpio.Reader
}

func openCpio(r io.Reader, _ io.ReaderAt, _ int64) (formatReader, error) {
	return &cpioReader{cr: cpio.NewReader(r)}, nil
}

func (f *cpioReader) next(e *Entry) (io.Reader, error) {
	hdr, err := f.cr.Next()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}

		return nil, newFormatError("Damaged cpio archive: %v", err)
	}

	mode := uint32(hdr.Mode)
	e.SetPathname([]byte(hdr.Name))
	e.SetFiletype(mode)
	e.SetPerm(mode)
	e.SetMtime(hdr.ModTime)
	if e.Filetype() == 0 {
		e.SetFiletype(IFREG)
	}

	if e.Filetype() != IFLNK {
		e.SetSize(hdr.Size)
		return f.cr, nil
	}

	// newc stores the symlink target as the payload.
	target := []byte(hdr.Linkname)
	if len(target) == 0 {
		if target, err = io.ReadAll(io.LimitReader(f.cr, 4096)); err != nil {
			return nil, newFormatError("Damaged cpio entry %q: %v", hdr.Name, err)
		}
	}

	e.SetSymlink(target)
	e.SetSize(0)
	return bytes.NewReader(nil), nil
}

func (f *cpioReader) close() error {
	return nil
}
