package engine

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/nguyengg/archivist/codec"
)

const (
	// peekSize is the number of bytes offered to bidders.
	peekSize = 64 * 1024

	// maxFilterLayers bounds the number of stacked decompression filters.
	maxFilterLayers = 25

	// maxEmptyReads bounds the number of consecutive zero-byte reads tolerated from a format reader.
	maxEmptyReads = 100
)

// reader holds the read-mode state of an Archive.
type reader struct {
	formatSet  map[*format]bool
	filters    []codec.Codec
	filterKeys map[string]bool

	openCb  OpenFunc
	readCb  ReadFunc
	seekCb  SeekFunc
	closeCb CloseFunc
	data    any

	// name is the base name of the source when known; some filters match by extension.
	name string

	client   *clientReader
	opened   bool
	decoders []io.Closer
	spool    *os.File

	fr         formatReader
	formatName string
	counter    *countingReader
	counterAt  *countingReaderAt

	current    io.Reader
	pendingErr error
	dataOffset int64
	headerPos  int64
	block      []byte
}

// SetOpenCallback sets the callback invoked by Open1 before the first read.
func (a *Archive) SetOpenCallback(fn OpenFunc) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_set_open_callback"); st != OK {
		return st
	}

	a.openCb = fn
	return OK
}

// SetReadCallback sets the callback that supplies the bytes of the archive.
func (a *Archive) SetReadCallback(fn ReadFunc) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_set_read_callback"); st != OK {
		return st
	}

	a.readCb = fn
	return OK
}

// SetSeekCallback sets the callback used to reposition the source. It must be set before Open1.
func (a *Archive) SetSeekCallback(fn SeekFunc) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_set_seek_callback"); st != OK {
		return st
	}

	a.seekCb = fn
	return OK
}

// SetCloseCallback sets the callback invoked once when the archive is closed.
func (a *Archive) SetCloseCallback(fn CloseFunc) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_set_close_callback"); st != OK {
		return st
	}

	a.closeCb = fn
	return OK
}

// SetCallbackData sets the value passed to every callback.
func (a *Archive) SetCallbackData(data any) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_set_callback_data"); st != OK {
		return st
	}

	a.data = data
	return OK
}

// SetBlockSize sets the size of the blocks returned by ReadDataBlock. Non-positive values select DefaultBlockSize.
func (a *Archive) SetBlockSize(n int) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_set_block_size"); st != OK {
		return st
	}

	if n <= 0 {
		n = DefaultBlockSize
	}

	a.blockSize = n
	return OK
}

// Open1 opens the archive using the callbacks set previously.
//
// The filters and formats registered on the handle bid on the first bytes of the stream: matching filters are stacked
// until none matches, then the best format is selected. On failure the archive enters the fatal state; Close still
// releases the source through the close callback.
func (a *Archive) Open1() Status {
	if st := a.check(ModeRead, stateNew, "archive_read_open"); st != OK {
		return st
	}

	a.ClearError()

	if a.readCb == nil {
		a.SetError(ErrnoProgrammer, "No reader function provided to archive_read_open")
		a.state = stateFatal
		return Fatal
	}

	if a.openCb != nil {
		if st := a.openCb(a, a.data); st != OK {
			if a.closeCb != nil {
				a.closeCb(a, a.data)
			}
			a.state = stateFatal
			return st
		}
	}

	a.client = &clientReader{a: a, read: a.readCb, seek: a.seekCb, data: a.data}
	a.opened = true

	if len(a.formatSet) == 0 {
		a.SetError(ErrnoProgrammer, "No formats registered")
		a.state = stateFatal
		return Fatal
	}

	if err := a.openFormat(context.Background()); err != nil {
		a.fail(err)
		a.state = stateFatal
		return Fatal
	}

	a.state = stateHeader
	return OK
}

func (a *Archive) openFormat(ctx context.Context) (err error) {
	var (
		src  io.Reader
		peek []byte
	)

	if a.client.seekable() {
		if peek, err = peekSeekable(a.client); err != nil {
			return err
		}
		src = a.client
	} else {
		br := bufio.NewReaderSize(a.client, peekSize)
		if peek, err = peekBuffered(br); err != nil {
			return err
		}
		src = br
	}

	filtered := false
	fallbackUsed := false
	for layer := 0; ; layer++ {
		c := a.bidFilter(peek, !fallbackUsed && layer == 0)
		if c == nil {
			break
		}
		if layer == maxFilterLayers {
			return newFormatError("Input requires too many filters for decoding")
		}
		if codec.Fallback(c) {
			fallbackUsed = true
		}

		dec, err := c.NewDecoder(src)
		if err != nil {
			return fmt.Errorf("%s decoder error: %w", c.Name(), err)
		}
		a.decoders = append(a.decoders, dec)

		br := bufio.NewReaderSize(dec, peekSize)
		if peek, err = peekBuffered(br); err != nil {
			return fmt.Errorf("%s decoder error: %w", c.Name(), err)
		}
		src, filtered = br, true
	}

	f := a.bidFormat(ctx, peek)
	if f == nil {
		return newFormatError("Unrecognized archive format")
	}

	var (
		ra   io.ReaderAt
		size int64
	)
	switch {
	case f.access == sequential:
	case !filtered && a.client.seekable():
		if size, err = a.client.size(); err != nil {
			return err
		}
		ra = a.client
	case f.access == requireRandom:
		if a.spool, size, err = spool(src); err != nil {
			return err
		}
		ra = a.spool
	}

	a.counter = &countingReader{r: src}
	if ra != nil {
		a.counterAt = &countingReaderAt{r: ra}
		ra = a.counterAt
	}

	if a.fr, err = f.open(a.counter, ra, size); err != nil {
		return err
	}

	a.formatName = f.name
	return nil
}

// bidFilter returns the first registered filter matching peek. Fallback filters are only considered when allowed.
func (a *Archive) bidFilter(peek []byte, allowFallback bool) codec.Codec {
	if len(peek) == 0 {
		return nil
	}

	var fallback codec.Codec
	for _, c := range a.filters {
		if codec.Fallback(c) {
			if fallback == nil {
				fallback = c
			}
			continue
		}
		if c.Match(a.name, peek) {
			return c
		}
	}

	if allowFallback {
		return fallback
	}

	return nil
}

func (a *Archive) bidFormat(ctx context.Context, peek []byte) *format {
	for _, f := range formats {
		if a.formatSet[f] && f.bid != nil && f.bid(ctx, a.name, peek) {
			return f
		}
	}

	return nil
}

// peekSeekable reads the first bytes of a seekable source then rewinds it.
func peekSeekable(c *clientReader) ([]byte, error) {
	start, err := c.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, peekSize)
	n, err := io.ReadFull(c, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil, err
	}

	if _, err = c.Seek(start, io.SeekStart); err != nil {
		return nil, err
	}

	return buf[:n], nil
}

// peekBuffered returns up to peekSize bytes without consuming them.
func peekBuffered(br *bufio.Reader) ([]byte, error) {
	peek, err := br.Peek(peekSize)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, err
	}

	return peek, nil
}

// spool copies src into an unlinked-on-close temporary file for formats that need random access.
func spool(src io.Reader) (*os.File, int64, error) {
	f, err := os.CreateTemp("", "archivist-spool-*")
	if err != nil {
		return nil, 0, fmt.Errorf("create spool file error: %w", err)
	}

	n, err := io.Copy(f, src)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, 0, err
	}

	return f, n, nil
}

// OpenFilename opens the named file. The engine owns the file and closes it on ReadClose.
//
// blockSize is the read size used against the file and the block size of ReadDataBlock; non-positive values select
// DefaultBlockSize.
func (a *Archive) OpenFilename(name string, blockSize int) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_open_filename"); st != OK {
		return st
	}

	if strings.IndexByte(name, 0) >= 0 {
		a.SetError(ErrnoProgrammer, "Invalid filename")
		a.state = stateFatal
		return Fatal
	}

	f, err := os.Open(name)
	if err != nil {
		a.SetError(errnoOf(err), "Failed to open '%s'", name)
		a.state = stateFatal
		return Fatal
	}

	a.name = filepath.Base(name)
	return a.openFile(f, blockSize)
}

func (a *Archive) openFile(f *os.File, blockSize int) Status {
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	a.blockSize = blockSize

	src := &fileSource{f: f, buf: make([]byte, blockSize)}
	a.readCb, a.closeCb, a.data = fileRead, fileClose, src
	a.openCb, a.seekCb = nil, nil

	// pipes and character devices can only be read front to back.
	if fi, err := f.Stat(); err == nil && fi.Mode().IsRegular() {
		a.seekCb = fileSeek
	}

	return a.Open1()
}

// OpenMemory opens an archive held entirely in buf. buf must not be modified until the archive is closed.
func (a *Archive) OpenMemory(buf []byte) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_open_memory"); st != OK {
		return st
	}

	src := &memorySource{r: bytes.NewReader(buf), buf: make([]byte, a.blockSize)}
	a.readCb, a.seekCb, a.closeCb, a.data = memoryRead, memorySeek, nil, src
	a.openCb = nil
	return a.Open1()
}

// NextHeader advances to the next member and returns the archive's entry record, which is overwritten by the next
// call. Any unread payload of the previous member is skipped.
func (a *Archive) NextHeader() (*Entry, Status) {
	if st := a.check(ModeRead, stateHeader|stateData|stateEOF, "archive_read_next_header"); st != OK {
		return nil, st
	}

	a.generation++
	a.entry.Clear()
	a.current, a.pendingErr, a.dataOffset = nil, nil, 0

	if a.state == stateEOF {
		return nil, EOF
	}

	a.ClearError()
	pos := a.position()

	r, err := a.fr.next(a.entry)
	switch {
	case err == io.EOF:
		a.state = stateEOF
		return nil, EOF
	case err != nil:
		a.fail(err)
		a.state = stateFatal
		return nil, Fatal
	}

	a.headerPos = pos
	a.current = r
	a.state = stateData
	return a.entry, OK
}

func (a *Archive) position() int64 {
	n := a.counter.n
	if a.counterAt != nil {
		n += a.counterAt.n
	}

	return n
}

// HeaderPosition returns the number of bytes of the decompressed archive stream the format reader had consumed when
// the current header was delivered.
func (a *Archive) HeaderPosition() int64 {
	if st := a.check(ModeRead, stateHeader|stateData|stateEOF, "archive_read_header_position"); st != OK {
		return int64(st)
	}

	return a.headerPos
}

// FormatName returns the name of the format selected by Open1, or the empty string before a successful open.
func (a *Archive) FormatName() string {
	return a.formatName
}

// FilterCount returns the number of decompression filters stacked by Open1.
func (a *Archive) FilterCount() int {
	return len(a.decoders)
}

// ReadData reads payload bytes of the current member into p. It returns 0 with OK once the payload is exhausted.
func (a *Archive) ReadData(p []byte) (int, Status) {
	if st := a.check(ModeRead, stateData, "archive_read_data"); st != OK {
		return 0, st
	}

	return a.readData(p)
}

func (a *Archive) readData(p []byte) (int, Status) {
	if a.pendingErr != nil {
		err := a.pendingErr
		a.pendingErr = nil
		a.current = nil
		a.fail(err)
		a.state = stateFatal
		return 0, Fatal
	}

	if a.current == nil || len(p) == 0 {
		return 0, OK
	}

	for i := 0; ; i++ {
		n, err := a.current.Read(p)
		a.dataOffset += int64(n)

		switch {
		case err == io.EOF:
			a.current = nil
		case err != nil && n > 0:
			// deliver what was read now and the error on the next call.
			a.pendingErr = err
		case err != nil:
			a.current = nil
			a.fail(err)
			a.state = stateFatal
			return 0, Fatal
		}

		if n > 0 || a.current == nil {
			return n, OK
		}

		if i == maxEmptyReads {
			a.current = nil
			a.fail(io.ErrNoProgress)
			a.state = stateFatal
			return 0, Fatal
		}
	}
}

// ReadDataBlock returns the next block of payload and its offset within the member. The block is only valid until
// the next call on the archive. It returns EOF once the payload is exhausted.
func (a *Archive) ReadDataBlock() ([]byte, int64, Status) {
	if st := a.check(ModeRead, stateData, "archive_read_data_block"); st != OK {
		return nil, 0, st
	}

	if a.block == nil {
		a.block = make([]byte, a.blockSize)
	}

	offset := a.dataOffset
	n, st := a.readData(a.block)
	switch {
	case st != OK:
		return nil, offset, st
	case n == 0:
		return nil, offset, EOF
	default:
		return a.block[:n], offset, OK
	}
}

// ReadClose releases the format reader, the decompression filters, and the byte source through the close callback.
// Calling it again is a no-op.
func (a *Archive) ReadClose() Status {
	if st := a.check(ModeRead, stateNew|stateHeader|stateData|stateEOF|stateClosed|stateFatal, "archive_read_close"); st != OK {
		return st
	}

	if a.state == stateClosed {
		return OK
	}

	a.generation++
	a.state = stateClosed
	a.current, a.pendingErr, a.block = nil, nil, nil

	var errs []error
	if a.fr != nil {
		errs = append(errs, a.fr.close())
		a.fr = nil
	}

	for i := len(a.decoders) - 1; i >= 0; i-- {
		errs = append(errs, a.decoders[i].Close())
	}
	a.decoders = nil

	if a.spool != nil {
		errs = append(errs, a.spool.Close(), os.Remove(a.spool.Name()))
		a.spool = nil
	}

	st := OK
	if a.opened && a.closeCb != nil {
		st = a.closeCb(a, a.data)
	}
	a.opened = false
	a.client = nil

	if st != OK {
		return st
	}

	if err := errors.Join(errs...); err != nil {
		a.SetError(errnoOf(err), "%s", err.Error())
		return Fatal
	}

	return OK
}

// ReadFree releases the archive. Unless the archive is in the fatal state, ReadClose is invoked first; a fatal
// archive must be closed explicitly before it is freed or its byte source is leaked.
func (a *Archive) ReadFree() Status {
	if a == nil {
		return OK
	}
	if a.freed || a.mode != ModeRead {
		return a.check(ModeRead, stateClosed, "archive_read_free")
	}

	st := OK
	if a.state != stateClosed && a.state != stateFatal {
		st = a.ReadClose()
	}

	a.release()
	return st
}

func (a *Archive) release() {
	a.freed = true
	a.generation++
	a.entry = &Entry{}
	a.reader = reader{}
	a.writer = writer{}
	liveArchives.Add(-1)
}
