package engine

import (
	"io"
	"strings"

	"github.com/blakesmith/ar"
)

// arReader implements formatReader for Unix ar archives.
type arReader struct {
	ar *ar.Reader
}

func openAr(r io.Reader, _ io.ReaderAt, _ int64) (formatReader, error) {
	return &arReader{ar: ar.NewReader(r)}, nil
}

func (f *arReader) next(e *Entry) (io.Reader, error) {
	hdr, err := f.ar.Next()
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}

		return nil, newFormatError("Damaged ar archive: %v", err)
	}

	// GNU ar terminates names with a slash.
	name := strings.TrimRight(hdr.Name, " ")
	if name != "/" && name != "//" {
		name = strings.TrimSuffix(name, "/")
	}

	e.SetPathname([]byte(name))
	e.SetFiletype(IFREG)
	e.SetPerm(uint32(hdr.Mode))
	e.SetSize(hdr.Size)
	e.SetMtime(hdr.ModTime)
	e.SetOwner(int64(hdr.Uid), int64(hdr.Gid), nil, nil)
	return f.ar, nil
}

func (f *arReader) close() error {
	return nil
}
