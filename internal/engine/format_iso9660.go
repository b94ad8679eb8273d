package engine

import (
	"io"
	"path"
	"strings"

	"github.com/kdomanski/iso9660"
)

// isoReader implements formatReader for ISO9660 images by walking the directory tree depth-first.
type isoReader struct {
	stack []isoNode
}

type isoNode struct {
	dir  string
	file *iso9660.File
}

func openIso9660(_ io.Reader, ra io.ReaderAt, _ int64) (formatReader, error) {
	img, err := iso9660.OpenImage(ra)
	if err != nil {
		return nil, newFormatError("Damaged ISO9660 image: %v", err)
	}

	root, err := img.RootDir()
	if err != nil {
		return nil, newFormatError("Damaged ISO9660 image: %v", err)
	}

	f := &isoReader{}
	if err = f.push("", root); err != nil {
		return nil, err
	}

	return f, nil
}

// push queues the children of dir so that they pop in directory order.
func (f *isoReader) push(dir string, file *iso9660.File) error {
	children, err := file.GetChildren()
	if err != nil {
		return newFormatError("Damaged ISO9660 directory %q: %v", dir, err)
	}

	for i := len(children) - 1; i >= 0; i-- {
		f.stack = append(f.stack, isoNode{dir: dir, file: children[i]})
	}

	return nil
}

func (f *isoReader) next(e *Entry) (io.Reader, error) {
	if len(f.stack) == 0 {
		return nil, io.EOF
	}

	n := f.stack[len(f.stack)-1]
	f.stack = f.stack[:len(f.stack)-1]

	name := path.Join(n.dir, strings.TrimSuffix(n.file.Name(), ";1"))
	e.SetMtime(n.file.ModTime())

	if n.file.IsDir() {
		e.SetPathname([]byte(name + "/"))
		e.SetFiletype(IFDIR)
		e.SetPerm(0o755)
		e.SetSize(0)
		if err := f.push(name, n.file); err != nil {
			return nil, err
		}

		return strings.NewReader(""), nil
	}

	e.SetPathname([]byte(name))
	e.SetFiletype(IFREG)
	e.SetPerm(uint32(n.file.Mode().Perm()))
	e.SetSize(n.file.Size())
	return n.file.Reader(), nil
}

func (f *isoReader) close() error {
	f.stack = nil
	return nil
}
