package engine

import (
	"archive/zip"
	"errors"
	"io"
	"io/fs"
	"strings"

	"github.com/krolaw/zipstream"
)

// zipReader implements formatReader for ZIP archives read through the central directory.
type zipReader struct {
	files []*zip.File
	i     int
	rc    io.ReadCloser
}

// zipStreamReader implements formatReader for ZIP archives read front to back from the local file headers.
type zipStreamReader struct {
	zr *zipstream.Reader
}

func openZip(r io.Reader, ra io.ReaderAt, size int64) (formatReader, error) {
	if ra == nil {
		return &zipStreamReader{zr: zipstream.NewReader(r)}, nil
	}

	zr, err := zip.NewReader(ra, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return nil, newFormatError("Damaged ZIP archive: %v", err)
	}

	return &zipReader{files: zr.File}, nil
}

func (f *zipReader) next(e *Entry) (io.Reader, error) {
	if err := f.closeCurrent(); err != nil {
		return nil, err
	}

	if f.i >= len(f.files) {
		return nil, io.EOF
	}

	zf := f.files[f.i]
	f.i++

	fillFromFileInfo(e, zf.Name, zf.Mode(), int64(zf.UncompressedSize64))
	e.SetMtime(zf.Modified)

	rc, err := zf.Open()
	if err != nil {
		return nil, newFormatError("Damaged ZIP entry %q: %v", zf.Name, err)
	}

	if e.Filetype() != IFLNK {
		f.rc = rc
		return rc, nil
	}

	// symlink targets are stored as the payload.
	target, err := io.ReadAll(io.LimitReader(rc, 4096))
	_ = rc.Close()
	if err != nil {
		return nil, newFormatError("Damaged ZIP entry %q: %v", zf.Name, err)
	}

	e.SetSymlink(target)
	e.SetSize(0)
	return strings.NewReader(""), nil
}

func (f *zipReader) closeCurrent() error {
	if f.rc == nil {
		return nil
	}

	err := f.rc.Close()
	f.rc = nil
	return err
}

func (f *zipReader) close() error {
	return f.closeCurrent()
}

func (f *zipStreamReader) next(e *Entry) (io.Reader, error) {
	fh, err := f.zr.Next()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}

		return nil, newFormatError("Damaged ZIP archive: %v", err)
	}

	fillFromFileInfo(e, fh.Name, fh.Mode(), int64(fh.UncompressedSize64))
	e.SetMtime(fh.Modified)

	// local file headers written in streaming mode carry the sizes in the trailing data descriptor.
	if fh.Flags&0x8 != 0 {
		e.UnsetSize()
	}

	if e.Filetype() == IFLNK {
		target, err := io.ReadAll(io.LimitReader(f.zr, 4096))
		if err != nil {
			return nil, newFormatError("Damaged ZIP entry %q: %v", fh.Name, err)
		}

		e.SetSymlink(target)
		e.SetSize(0)
		return strings.NewReader(""), nil
	}

	return f.zr, nil
}

func (f *zipStreamReader) close() error {
	return nil
}

// fillFromFileInfo fills the fields shared by formats whose libraries describe members with fs.FileMode.
func fillFromFileInfo(e *Entry, name string, mode fs.FileMode, size int64) {
	e.SetPathname([]byte(name))
	e.setFileMode(mode)

	// some writers only mark directories with a trailing slash.
	if strings.HasSuffix(name, "/") {
		e.SetFiletype(IFDIR)
	}

	if e.Filetype() == IFREG {
		e.SetSize(size)
	} else {
		e.SetSize(0)
	}
}
