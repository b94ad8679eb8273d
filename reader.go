package archivist

import (
	"io"
	"iter"
	"slices"

	"github.com/nguyengg/archivist/internal/engine"
	"go.uber.org/zap"
	"golang.org/x/text/encoding"
)

// Reader iterates the members of an archive opened by ReaderBuilder.
//
// Reader is implemented by *FileReader and *StreamReader. A Reader is not safe for concurrent use.
type Reader interface {
	Handle

	// NextHeader advances to the next member, skipping any unread payload of the current one.
	//
	// It returns io.EOF once the archive has no more members, and *SystemError on any other failure. The returned
	// entry is only valid until the next call to NextHeader or Close.
	NextHeader() (*BorrowedEntry, error)

	// Read reads the payload of the current member. It returns (0, io.EOF) once the payload is exhausted.
	Read(p []byte) (int, error)

	// ReadAll reads the remaining payload of the current member.
	ReadAll() ([]byte, error)

	// ReadBlock returns the next block of payload of the current member and its offset within the payload.
	//
	// The block aliases memory owned by the reader and is only valid until the next call. It returns io.EOF once
	// the payload is exhausted.
	ReadBlock() (block []byte, offset int64, err error)

	// HeaderPosition returns the number of bytes of the decompressed archive stream consumed when the current header
	// was read.
	HeaderPosition() int64

	// Entries returns an iterator over the remaining members. Iteration stops after the first error.
	Entries() iter.Seq2[*BorrowedEntry, error]

	// FormatName returns the name of the detected archive format, e.g. "tar" or "ZIP".
	FormatName() string

	// FilterCount returns the number of decompression filters applied to the archive stream.
	FilterCount() int

	// Close releases the reader and everything it opened. Subsequent calls are no-ops.
	Close() error
}

// readAllIncrement is the initial capacity of ReadAll and the minimum growth step.
const readAllIncrement = 4096

// reader implements the Reader methods shared by FileReader and StreamReader.
type reader struct {
	*ArchiveHandle
	charset encoding.Encoding
	logger  *zap.Logger
}

func (r *reader) NextHeader() (*BorrowedEntry, error) {
	if r.closed {
		return nil, ErrClosed
	}

	a := r.handle()
	rec, st := a.NextHeader()
	switch st {
	case engine.OK:
	case engine.Warn:
		r.logger.Debug("header read with warning", zap.String("warning", a.ErrorString()))
	case engine.EOF:
		return nil, io.EOF
	default:
		return nil, systemError(r)
	}

	return newBorrowedEntry(a, rec, r), nil
}

func (r *reader) Read(p []byte) (int, error) {
	if r.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	n, st := r.handle().ReadData(p)
	switch {
	case st != engine.OK:
		return 0, systemError(r)
	case n == 0:
		return 0, io.EOF
	default:
		return n, nil
	}
}

func (r *reader) ReadAll() ([]byte, error) {
	data := make([]byte, 0, readAllIncrement)
	for {
		if len(data) == cap(data) {
			data = slices.Grow(data, max(readAllIncrement, cap(data)))
		}

		n, err := r.Read(data[len(data):cap(data)])
		data = data[:len(data)+n]

		switch {
		case err == io.EOF:
			return data, nil
		case err != nil:
			return nil, err
		}
	}
}

func (r *reader) ReadBlock() ([]byte, int64, error) {
	if r.closed {
		return nil, 0, ErrClosed
	}

	block, offset, st := r.handle().ReadDataBlock()
	switch st {
	case engine.OK:
		return block, offset, nil
	case engine.EOF:
		return nil, offset, io.EOF
	default:
		return nil, offset, systemError(r)
	}
}

func (r *reader) HeaderPosition() int64 {
	if r.closed {
		return 0
	}

	return r.handle().HeaderPosition()
}

func (r *reader) Entries() iter.Seq2[*BorrowedEntry, error] {
	return func(yield func(*BorrowedEntry, error) bool) {
		for {
			e, err := r.NextHeader()
			if err == io.EOF {
				return
			}

			if !yield(e, err) || err != nil {
				return
			}
		}
	}
}

func (r *reader) FormatName() string {
	if r.closed {
		return ""
	}

	return r.handle().FormatName()
}

func (r *reader) FilterCount() int {
	if r.closed {
		return 0
	}

	return r.handle().FilterCount()
}

// FileReader reads an archive from a named file or a file descriptor. The engine owns the file it opened.
type FileReader struct {
	reader
}

var _ Reader = &FileReader{}

// StreamReader reads an archive from a caller-supplied io.Reader or io.ReadSeeker.
//
// The reader owns the source: Close closes it if it implements io.Closer. Use IntoInner to take it back.
type StreamReader struct {
	reader
	p *pipe
}

var _ Reader = &StreamReader{}

// IntoInner releases the reader without closing the source, and returns the source.
//
// The position of the source is unspecified since the engine reads ahead. If the reader was already closed, the
// source has been closed too.
func (r *StreamReader) IntoInner() io.Reader {
	r.p.detached = true
	if err := r.Close(); err != nil {
		r.logger.Debug("release reader error", zap.Error(err))
	}

	return r.p.src
}
