package archivist

import (
	"io"
	"strings"

	"github.com/nguyengg/archivist/internal/engine"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// WriterOptions customises NewWriterBuilder.
type WriterOptions struct {
	// Logger receives debug diagnostics such as teardown failures.
	//
	// By default, zap.NewNop is used.
	Logger *zap.Logger

	// Charset is used by Writer.NewEntry to encode the text fields of entries. By default, UTF-8 is used.
	Charset encoding.Encoding
}

// WriterBuilder selects the format of a new archive, then opens exactly one destination.
//
// The builder is consumed by the first Open call whether it succeeds or not; every later call returns
// ErrBuilderConsumed.
type WriterBuilder struct {
	h    *ArchiveHandle
	opts WriterOptions
}

var _ Handle = &WriterBuilder{}

// NewWriterBuilder allocates a write-mode engine handle.
//
// It returns *AllocationError if the engine could not allocate one.
func NewWriterBuilder(optFns ...func(*WriterOptions)) (*WriterBuilder, error) {
	opts := WriterOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	h, err := newArchiveHandle(engine.ModeWrite, opts.Logger)
	if err != nil {
		return nil, err
	}

	return &WriterBuilder{h: h, opts: opts}, nil
}

// MustNewWriterBuilder is a variant of NewWriterBuilder that panics on error.
func MustNewWriterBuilder(optFns ...func(*WriterOptions)) *WriterBuilder {
	b, err := NewWriterBuilder(optFns...)
	if err != nil {
		panic(err)
	}

	return b
}

// ErrCode returns the error number of the last failed call, or 0. It returns 0 once the builder is consumed.
func (b *WriterBuilder) ErrCode() int {
	if b.h == nil {
		return 0
	}

	return b.h.ErrCode()
}

// ErrMsg returns the message of the last failed call. It returns the empty string once the builder is consumed.
func (b *WriterBuilder) ErrMsg() string {
	if b.h == nil {
		return ""
	}

	return b.h.ErrMsg()
}

func (b *WriterBuilder) handle() *engine.Archive {
	if b.h == nil {
		panic(ErrBuilderConsumed)
	}

	return b.h.handle()
}

// Close releases the builder if it has not been consumed by an Open call. Subsequent calls are no-ops.
func (b *WriterBuilder) Close() error {
	h, err := b.take()
	if err != nil {
		return nil
	}

	return h.Close()
}

// SetFormat selects the format of the archive. It must be called before opening.
func (b *WriterBuilder) SetFormat(f WriteFormat) error {
	if b.h == nil {
		return ErrBuilderConsumed
	}

	if st := b.handle().SetFormat(f.code()); st != engine.OK {
		return systemError(b)
	}

	return nil
}

func (b *WriterBuilder) take() (*ArchiveHandle, error) {
	if b.h == nil {
		return nil, ErrBuilderConsumed
	}

	h := b.h
	b.h = nil
	return h, nil
}

func (b *WriterBuilder) abandon(h *ArchiveHandle, err error) error {
	if err == nil {
		err = systemError(h)
	}

	b.opts.Logger.Debug("open archive for writing error", zap.Error(err))
	_ = h.Close()
	return err
}

// OpenFile creates or truncates the named file and consumes the builder.
func (b *WriterBuilder) OpenFile(name string) (*Writer, error) {
	h, err := b.take()
	if err != nil {
		return nil, err
	}

	if strings.IndexByte(name, 0) >= 0 {
		return nil, b.abandon(h, &EncodingError{Field: "path", Value: []byte(name), Err: errNUL})
	}

	if st := h.a.OpenWriteFilename(name); st != engine.OK {
		return nil, b.abandon(h, nil)
	}

	return &Writer{ArchiveHandle: h, charset: b.opts.Charset, logger: b.opts.Logger}, nil
}

// OpenStream writes the archive into dst and consumes the builder.
//
// dst is not closed by Writer.Close.
func (b *WriterBuilder) OpenStream(dst io.Writer) (*Writer, error) {
	h, err := b.take()
	if err != nil {
		return nil, err
	}

	if st := h.a.OpenWrite(&sink{w: dst}, nil, sinkWrite, nil); st != engine.OK {
		return nil, b.abandon(h, nil)
	}

	return &Writer{ArchiveHandle: h, charset: b.opts.Charset, logger: b.opts.Logger}, nil
}

// sink is the callback data of writers opened with OpenStream.
type sink struct {
	w io.Writer
}

func sinkWrite(a *engine.Archive, data any, p []byte) int {
	s := data.(*sink)

	n, err := s.w.Write(p)
	if err != nil {
		a.SetError(errnoOf(err), "write error: %v", err)
		return int(engine.Fatal)
	}

	return n
}

// Writer adds members to a new archive.
//
// Each member starts with WriteHeader followed by the payload written with Write. Close must be called to write the
// trailer of the archive. A Writer is not safe for concurrent use.
type Writer struct {
	*ArchiveHandle
	charset encoding.Encoding
	logger  *zap.Logger
}

// NewEntry returns a new OwnedEntry using the charset of the writer.
func (w *Writer) NewEntry() (*OwnedEntry, error) {
	return NewOwnedEntry(func(opts *EntryOptions) {
		opts.Charset = w.charset
	})
}

// WriteHeader starts a new member described by e, finishing the current one if any.
//
// Regular files must have their size set; the payload written afterward must match it.
func (w *Writer) WriteHeader(e Entry) error {
	if w.closed {
		return ErrClosed
	}

	rec := e.record()
	if rec == nil {
		return ErrStaleEntry
	}

	if st := w.handle().WriteHeader(rec); st != engine.OK {
		return systemError(w)
	}

	return nil
}

// Write appends payload bytes to the current member.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}

	n, st := w.handle().WriteData(p)
	if st != engine.OK {
		return n, systemError(w)
	}

	return n, nil
}

// FinishEntry completes the current member. Calling it is optional since WriteHeader and Close do so as needed.
func (w *Writer) FinishEntry() error {
	if w.closed {
		return ErrClosed
	}

	if st := w.handle().FinishEntry(); st != engine.OK {
		return systemError(w)
	}

	return nil
}
