package archivist

import (
	"errors"
	"io"
	"strings"

	"github.com/nguyengg/archivist/internal/engine"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// ReaderOptions customises NewReaderBuilder.
type ReaderOptions struct {
	// Logger receives debug diagnostics such as registration warnings and teardown failures.
	//
	// By default, zap.NewNop is used.
	Logger *zap.Logger

	// Charset is used to decode the text fields of entries. By default, entries are expected to be UTF-8.
	Charset encoding.Encoding

	// BlockSize is the size of the blocks returned by Reader.ReadBlock, and of the reads issued against files opened
	// with OpenFile or OpenFd.
	//
	// By default, engine.DefaultBlockSize is used.
	BlockSize int
}

// ReaderBuilder registers the formats and filters a reader supports, then opens exactly one source.
//
// The builder is consumed by the first Open call whether it succeeds or not; every later call returns
// ErrBuilderConsumed.
type ReaderBuilder struct {
	h    *ArchiveHandle
	opts ReaderOptions
}

var _ Handle = &ReaderBuilder{}

// NewReaderBuilder allocates a read-mode engine handle.
//
// It returns *AllocationError if the engine could not allocate one.
func NewReaderBuilder(optFns ...func(*ReaderOptions)) (*ReaderBuilder, error) {
	opts := ReaderOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	h, err := newArchiveHandle(engine.ModeRead, opts.Logger)
	if err != nil {
		return nil, err
	}

	if opts.BlockSize > 0 {
		if st := h.a.SetBlockSize(opts.BlockSize); st != engine.OK {
			err = systemError(h)
			_ = h.Close()
			return nil, err
		}
	}

	return &ReaderBuilder{h: h, opts: opts}, nil
}

// MustNewReaderBuilder is a variant of NewReaderBuilder that panics on error.
func MustNewReaderBuilder(optFns ...func(*ReaderOptions)) *ReaderBuilder {
	b, err := NewReaderBuilder(optFns...)
	if err != nil {
		panic(err)
	}

	return b
}

// ErrCode returns the error number of the last failed registration, or 0. It returns 0 once the builder is consumed.
func (b *ReaderBuilder) ErrCode() int {
	if b.h == nil {
		return 0
	}

	return b.h.ErrCode()
}

// ErrMsg returns the message of the last failed registration. It returns the empty string once the builder is
// consumed.
func (b *ReaderBuilder) ErrMsg() string {
	if b.h == nil {
		return ""
	}

	return b.h.ErrMsg()
}

func (b *ReaderBuilder) handle() *engine.Archive {
	if b.h == nil {
		panic(ErrBuilderConsumed)
	}

	return b.h.handle()
}

// Close releases the builder if it has not been consumed by an Open call. Subsequent calls are no-ops.
func (b *ReaderBuilder) Close() error {
	h, err := b.take()
	if err != nil {
		return nil
	}

	return h.Close()
}

// SupportCompression registers a decompression filter by its legacy compression name.
func (b *ReaderBuilder) SupportCompression(c ReadCompression) error {
	return b.SupportFilter(c.filter)
}

// SupportFilter registers a decompression filter.
//
// Filters relying on an external program (lzop, lrzip, grzip) are registered but still report a *SystemError
// warning that the program will be used. The builder remains usable after a failure.
func (b *ReaderBuilder) SupportFilter(f ReadFilter) error {
	if b.h == nil {
		return ErrBuilderConsumed
	}

	return b.registered("filter", f.String(), f.register(b.handle()))
}

// SupportFormat registers a container format. The builder remains usable after a failure.
func (b *ReaderBuilder) SupportFormat(f ReadFormat) error {
	if b.h == nil {
		return ErrBuilderConsumed
	}

	return b.registered("format", f.String(), f.register(b.handle()))
}

func (b *ReaderBuilder) registered(kind, name string, st engine.Status) error {
	if st == engine.OK {
		return nil
	}

	err := systemError(b)
	b.opts.Logger.Debug("register "+kind+" error",
		zap.String(kind, name),
		zap.Stringer("status", st),
		zap.Error(err))
	return err
}

// take consumes the builder, returning its handle.
func (b *ReaderBuilder) take() (*ArchiveHandle, error) {
	if b.h == nil {
		return nil, ErrBuilderConsumed
	}

	h := b.h
	b.h = nil
	return h, nil
}

// abandon tears down h after a failed open, returning the error recorded by the open call.
func (b *ReaderBuilder) abandon(h *ArchiveHandle, err error) error {
	if err == nil {
		err = systemError(h)
	}

	b.opts.Logger.Debug("open archive error", zap.Error(err))
	if cerr := h.Close(); cerr != nil {
		var serr *SystemError
		if !errors.As(err, &serr) {
			err = errors.Join(err, cerr)
		}
	}

	return err
}

// abandonPipe is abandon for a pipe that the engine never took: the engine will not invoke the close callback so p
// releases its source itself.
func (b *ReaderBuilder) abandonPipe(h *ArchiveHandle, p *pipe) error {
	err := b.abandon(h, nil)
	if cerr := p.release(); cerr != nil {
		b.opts.Logger.Debug("close source error", zap.Error(cerr))
	}

	return err
}

func (b *ReaderBuilder) newReader(h *ArchiveHandle) reader {
	return reader{ArchiveHandle: h, charset: b.opts.Charset, logger: b.opts.Logger}
}

// OpenFile opens the named file and consumes the builder.
//
// Paths containing a NUL byte are rejected with *EncodingError before reaching the engine. Errors opening the file
// are *SystemError that unwrap to the syscall.Errno, so errors.Is(err, fs.ErrNotExist) works.
func (b *ReaderBuilder) OpenFile(name string) (*FileReader, error) {
	h, err := b.take()
	if err != nil {
		return nil, err
	}

	if strings.IndexByte(name, 0) >= 0 {
		return nil, b.abandon(h, &EncodingError{Field: "path", Value: []byte(name), Err: errNUL})
	}

	if st := h.a.OpenFilename(name, b.opts.BlockSize); st != engine.OK {
		return nil, b.abandon(h, nil)
	}

	b.opts.Logger.Debug("opened archive",
		zap.String("name", name),
		zap.String("format", h.a.FormatName()),
		zap.Int("filters", h.a.FilterCount()))
	return &FileReader{reader: b.newReader(h)}, nil
}

// OpenStream opens an archive read sequentially from src and consumes the builder.
//
// The reader owns src from then on, even if the open fails: src is closed with the reader if it implements
// io.Closer. Formats that require random access (7-Zip and ISO 9660) are spooled to a temporary file.
func (b *ReaderBuilder) OpenStream(src io.Reader) (*StreamReader, error) {
	h, err := b.take()
	if err != nil {
		return nil, err
	}

	return b.openPipe(h, newPipe(src, nil))
}

// OpenSeekable opens an archive from src, which the engine may seek to read random-access formats in place, and
// consumes the builder.
//
// The seek callback is registered before the open; if the engine rejects it, the open fails with that error and src
// is closed. Ownership of src is as with OpenStream.
func (b *ReaderBuilder) OpenSeekable(src io.ReadSeeker) (*StreamReader, error) {
	h, err := b.take()
	if err != nil {
		return nil, err
	}

	p := newPipe(src, src)
	if st := h.a.SetSeekCallback(pipeSeek); st != engine.OK {
		return nil, b.abandonPipe(h, p)
	}

	return b.openPipe(h, p)
}

func (b *ReaderBuilder) openPipe(h *ArchiveHandle, p *pipe) (*StreamReader, error) {
	if st := p.register(h.a); st != engine.OK {
		return nil, b.abandonPipe(h, p)
	}

	if st := h.a.Open1(); st != engine.OK {
		return nil, b.abandon(h, nil)
	}

	b.opts.Logger.Debug("opened archive stream",
		zap.Bool("seekable", p.seeker != nil),
		zap.String("format", h.a.FormatName()),
		zap.Int("filters", h.a.FilterCount()))
	return &StreamReader{reader: b.newReader(h), p: p}, nil
}
