package engine

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/blakesmith/ar"
	"github.com/cavaliergopher/cpio"
	"github.com/klauspost/compress/flate"
)

func (c WriteFormatCode) String() string {
	switch c {
	case WriteFormatTar:
		return "tar"
	case WriteFormatPax:
		return "pax"
	case WriteFormatUstar:
		return "ustar"
	case WriteFormatGnutar:
		return "GNU tar"
	case WriteFormatZip:
		return "ZIP"
	case WriteFormatCpio:
		return "cpio"
	case WriteFormatAr:
		return "ar"
	default:
		return "unknown"
	}
}

// formatWriter produces one container.
type formatWriter interface {
	writeHeader(e *Entry) error
	write(p []byte) (int, error)
	finishEntry() error
	close() error
}

func newFormatWriter(code WriteFormatCode, w io.Writer) formatWriter {
	switch code {
	case WriteFormatPax:
		return &tarWriter{tw: tar.NewWriter(w), format: tar.FormatPAX}
	case WriteFormatUstar:
		return &tarWriter{tw: tar.NewWriter(w), format: tar.FormatUSTAR}
	case WriteFormatGnutar:
		return &tarWriter{tw: tar.NewWriter(w), format: tar.FormatGNU}
	case WriteFormatZip:
		return newZipWriter(w)
	case WriteFormatCpio:
		return &cpioWriter{cw: cpio.NewWriter(w)}
	case WriteFormatAr:
		return &arWriter{w: w}
	default:
		return &tarWriter{tw: tar.NewWriter(w)}
	}
}

// mtimeOf returns the modification time to record, substituting the Unix epoch for an unset time.
func mtimeOf(e *Entry) time.Time {
	if e.Mtime().IsZero() {
		return time.Unix(0, 0)
	}

	return e.Mtime()
}

type tarWriter struct {
	tw     *tar.Writer
	format tar.Format
}

func (w *tarWriter) writeHeader(e *Entry) error {
	hdr := &tar.Header{
		Name:    string(e.Pathname()),
		Mode:    int64(e.Perm()),
		ModTime: mtimeOf(e),
		Uid:     int(e.Uid()),
		Gid:     int(e.Gid()),
		Uname:   string(e.Uname()),
		Gname:   string(e.Gname()),
		Format:  w.format,
	}

	switch e.Filetype() {
	case IFDIR:
		hdr.Typeflag = tar.TypeDir
	case IFLNK:
		hdr.Typeflag = tar.TypeSymlink
		hdr.Linkname = string(e.Symlink())
	case IFCHR:
		hdr.Typeflag = tar.TypeChar
	case IFBLK:
		hdr.Typeflag = tar.TypeBlock
	case IFIFO:
		hdr.Typeflag = tar.TypeFifo
	case IFSOCK:
		return fmt.Errorf("tar format cannot archive socket %q", hdr.Name)
	default:
		if e.Hardlink() != nil {
			hdr.Typeflag = tar.TypeLink
			hdr.Linkname = string(e.Hardlink())
		} else {
			hdr.Typeflag = tar.TypeReg
			hdr.Size = e.Size()
		}
	}

	return w.tw.WriteHeader(hdr)
}

func (w *tarWriter) write(p []byte) (int, error) {
	return w.tw.Write(p)
}

func (w *tarWriter) finishEntry() error {
	// the tar writer pads the previous member when the next header or the trailer is written.
	return nil
}

func (w *tarWriter) close() error {
	return w.tw.Close()
}

type zipWriter struct {
	zw  *zip.Writer
	cur io.Writer
}

func newZipWriter(w io.Writer) *zipWriter {
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(w, flate.BestCompression)
	})

	return &zipWriter{zw: zw}
}

func (w *zipWriter) writeHeader(e *Entry) error {
	name := string(e.Pathname())
	if e.Hardlink() != nil {
		return fmt.Errorf("ZIP format cannot archive hardlink %q", name)
	}

	fh := &zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: mtimeOf(e),
	}
	fh.SetMode(e.fileMode())

	if e.Filetype() == IFDIR {
		fh.Method = zip.Store
		if !strings.HasSuffix(fh.Name, "/") {
			fh.Name += "/"
		}
	}

	fw, err := w.zw.CreateHeader(fh)
	if err != nil {
		return fmt.Errorf("create zip file error: %w", err)
	}

	w.cur = fw
	if e.Filetype() == IFLNK {
		// symlink targets are stored as the payload.
		_, err = fw.Write(e.Symlink())
	}

	return err
}

func (w *zipWriter) write(p []byte) (int, error) {
	if w.cur == nil {
		return 0, errors.New("no ZIP entry is open")
	}

	return w.cur.Write(p)
}

func (w *zipWriter) finishEntry() error {
	w.cur = nil
	return nil
}

func (w *zipWriter) close() error {
	return w.zw.Close()
}

type cpioWriter struct {
	cw *cpio.Writer
}

func (w *cpioWriter) writeHeader(e *Entry) error {
	filetype := e.Filetype()
	if filetype == 0 {
		filetype = IFREG
	}

	hdr := &cpio.Header{
		Name:    string(e.Pathname()),
		Mode:    cpio.FileMode(filetype | e.Perm()),
		ModTime: mtimeOf(e),
	}

	switch filetype {
	case IFREG:
		hdr.Size = e.Size()
	case IFLNK:
		// newc stores the symlink target as the payload.
		hdr.Size = int64(len(e.Symlink()))
	}

	if err := w.cw.WriteHeader(hdr); err != nil {
		return err
	}

	if filetype == IFLNK {
		_, err := w.cw.Write(e.Symlink())
		return err
	}

	return nil
}

func (w *cpioWriter) write(p []byte) (int, error) {
	return w.cw.Write(p)
}

func (w *cpioWriter) finishEntry() error {
	return nil
}

func (w *cpioWriter) close() error {
	return w.cw.Close()
}

// arWriter buffers each member because the ar writer pads after every odd-sized Write.
type arWriter struct {
	w    io.Writer
	aw   *ar.Writer
	size int64
	buf  bytes.Buffer
	open bool
}

func (w *arWriter) writeHeader(e *Entry) error {
	if ft := e.Filetype(); ft != IFREG && ft != 0 || e.Hardlink() != nil {
		return fmt.Errorf("ar format can only archive regular files, not %q", e.Pathname())
	}

	if w.aw == nil {
		w.aw = ar.NewWriter(w.w)
		if err := w.aw.WriteGlobalHeader(); err != nil {
			return err
		}
	}

	if err := w.aw.WriteHeader(&ar.Header{
		Name:    string(e.Pathname()),
		ModTime: mtimeOf(e),
		Uid:     int(e.Uid()),
		Gid:     int(e.Gid()),
		Mode:    int64(e.Perm()),
		Size:    e.Size(),
	}); err != nil {
		return err
	}

	w.size, w.open = e.Size(), true
	w.buf.Reset()
	return nil
}

func (w *arWriter) write(p []byte) (int, error) {
	if !w.open {
		return 0, errors.New("no ar entry is open")
	}

	if int64(w.buf.Len()+len(p)) > w.size {
		return 0, fmt.Errorf("ar entry is limited to %d bytes", w.size)
	}

	return w.buf.Write(p)
}

func (w *arWriter) finishEntry() error {
	if !w.open {
		return nil
	}

	w.open = false
	if int64(w.buf.Len()) != w.size {
		return fmt.Errorf("ar entry declared %d bytes but %d were written", w.size, w.buf.Len())
	}

	if w.size == 0 {
		return nil
	}

	_, err := w.aw.Write(w.buf.Bytes())
	return err
}

func (w *arWriter) close() error {
	if w.aw == nil {
		// an archive without members is just the global header.
		w.aw = ar.NewWriter(w.w)
		return w.aw.WriteGlobalHeader()
	}

	return nil
}
