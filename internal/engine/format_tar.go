package engine

import (
	"archive/tar"
	"io"
)

// tarReader implements formatReader for tar archives, including the pax, ustar and GNU variants.
type tarReader struct {
	tr *tar.Reader
}

func openTar(r io.Reader, _ io.ReaderAt, _ int64) (formatReader, error) {
	return &tarReader{tr: tar.NewReader(r)}, nil
}

func (f *tarReader) next(e *Entry) (io.Reader, error) {
	for {
		hdr, err := f.tr.Next()
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}

			return nil, newFormatError("Damaged tar archive: %v", err)
		}

		// pax global headers describe the archive rather than a member.
		if hdr.Typeflag == tar.TypeXGlobalHeader {
			continue
		}

		fillFromTar(e, hdr)
		return f.tr, nil
	}
}

func (f *tarReader) close() error {
	return nil
}

func fillFromTar(e *Entry, hdr *tar.Header) {
	e.SetPathname([]byte(hdr.Name))
	e.SetPerm(uint32(hdr.Mode))
	e.SetMtime(hdr.ModTime)
	e.SetOwner(int64(hdr.Uid), int64(hdr.Gid), []byte(hdr.Uname), []byte(hdr.Gname))

	switch hdr.Typeflag {
	case tar.TypeDir:
		e.SetFiletype(IFDIR)
	case tar.TypeSymlink:
		e.SetFiletype(IFLNK)
		e.SetSymlink([]byte(hdr.Linkname))
	case tar.TypeLink:
		// hardlinks are regular files that share their payload with the target.
		e.SetFiletype(IFREG)
		e.SetHardlink([]byte(hdr.Linkname))
	case tar.TypeChar:
		e.SetFiletype(IFCHR)
	case tar.TypeBlock:
		e.SetFiletype(IFBLK)
	case tar.TypeFifo:
		e.SetFiletype(IFIFO)
	default:
		e.SetFiletype(IFREG)
	}

	if e.Filetype() == IFREG {
		e.SetSize(hdr.Size)
	} else {
		e.SetSize(0)
	}
}
