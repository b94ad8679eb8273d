package engine

import (
	"io"

	"github.com/nwaples/rardecode/v2"
)

// rarReader implements formatReader for RAR archives. Multi-volume and encrypted archives are not supported.
type rarReader struct {
	rr *rardecode.Reader
}

func openRar(r io.Reader, _ io.ReaderAt, _ int64) (formatReader, error) {
	rr, err := rardecode.NewReader(r)
	if err != nil {
		return nil, newFormatError("Damaged RAR archive: %v", err)
	}

	return &rarReader{rr: rr}, nil
}

func (f *rarReader) next(e *Entry) (io.Reader, error) {
	fh, err := f.rr.Next()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}

		return nil, newFormatError("Damaged RAR archive: %v", err)
	}

	fillFromFileInfo(e, fh.Name, fh.Mode(), fh.UnPackedSize)
	if fh.IsDir {
		e.SetFiletype(IFDIR)
		e.SetSize(0)
	}
	if fh.UnKnownSize {
		e.UnsetSize()
	}
	e.SetMtime(fh.ModificationTime)

	return f.rr, nil
}

func (f *rarReader) close() error {
	return nil
}
