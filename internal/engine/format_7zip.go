package engine

import (
	"io"

	"github.com/bodgit/sevenzip"
)

// sevenZipReader implements formatReader for 7-Zip archives.
type sevenZipReader struct {
	files []*sevenzip.File
	i     int
	rc    io.ReadCloser
}

func open7zip(_ io.Reader, ra io.ReaderAt, size int64) (formatReader, error) {
	zr, err := sevenzip.NewReader(ra, size)
	if err != nil {
		return nil, newFormatError("Damaged 7-Zip archive: %v", err)
	}

	return &sevenZipReader{files: zr.File}, nil
}

func (f *sevenZipReader) next(e *Entry) (io.Reader, error) {
	if err := f.closeCurrent(); err != nil {
		return nil, err
	}

	if f.i >= len(f.files) {
		return nil, io.EOF
	}

	zf := f.files[f.i]
	f.i++

	fi := zf.FileInfo()
	fillFromFileInfo(e, zf.Name, fi.Mode(), fi.Size())
	e.SetMtime(fi.ModTime())

	rc, err := zf.Open()
	if err != nil {
		return nil, newFormatError("Damaged 7-Zip entry %q: %v", zf.Name, err)
	}

	f.rc = rc
	if e.Filetype() == IFLNK {
		target, err := io.ReadAll(io.LimitReader(rc, 4096))
		if err != nil {
			return nil, newFormatError("Damaged 7-Zip entry %q: %v", zf.Name, err)
		}

		e.SetSymlink(target)
		e.SetSize(0)
	}

	return rc, nil
}

func (f *sevenZipReader) closeCurrent() error {
	if f.rc == nil {
		return nil
	}

	err := f.rc.Close()
	f.rc = nil
	return err
}

func (f *sevenZipReader) close() error {
	return f.closeCurrent()
}
