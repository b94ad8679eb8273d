package archivist

import (
	"errors"
	"fmt"
	"syscall"
)

var (
	// ErrBuilderConsumed is returned by the Open methods of a builder that has already opened a reader or writer.
	ErrBuilderConsumed = errors.New("archivist: builder has already been consumed")

	// ErrStaleEntry is returned by the setters of a BorrowedEntry whose header cycle has ended.
	ErrStaleEntry = errors.New("archivist: entry is no longer valid")

	// ErrClosed is returned when using a reader or writer that has been closed.
	ErrClosed = errors.New("archivist: handle is closed")

	errNUL         = errors.New("contains NUL byte")
	errInvalidUTF8 = errors.New("invalid UTF-8")
)

// AllocationError is returned when the engine could not allocate a handle or an entry.
type AllocationError struct {
	// What names the object that could not be allocated, e.g. "archive" or "entry".
	What string
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("archivist: failed to allocate %s", e.What)
}

// SystemError is a failure reported by the engine through the error slot of a handle.
type SystemError struct {
	// Code is the error number recorded by the engine. Positive values are operating system error numbers.
	Code int
	// Message is the error message recorded by the engine.
	Message string
}

func (e *SystemError) Error() string {
	return fmt.Sprintf("archivist: %s (errno %d)", e.Message, e.Code)
}

// Unwrap returns the syscall.Errno of a positive Code so that errors.Is(err, fs.ErrNotExist) and similar work.
func (e *SystemError) Unwrap() error {
	if e.Code > 0 {
		return syscall.Errno(e.Code)
	}

	return nil
}

// systemError reads the error slot of h. It must be called before any other engine call on h.
func systemError(h Handle) *SystemError {
	msg := h.ErrMsg()
	if msg == "" {
		msg = "unknown error"
	}

	return &SystemError{Code: h.ErrCode(), Message: msg}
}

// EncodingError is returned when a text value cannot be represented, e.g. a pathname that is not valid in the
// configured charset or that contains a NUL byte.
type EncodingError struct {
	// Field names the entry field or argument, e.g. "pathname".
	Field string
	// Value is the offending raw value.
	Value []byte
	// Err is the underlying cause.
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("archivist: %s %q is not representable: %v", e.Field, e.Value, e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}
