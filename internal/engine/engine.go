// Package engine is the handle-based archive engine consumed by the archivist package.
//
// The engine mirrors the call contract of a native multi-format archive library: every session is an opaque *Archive
// created by ReadNew or WriteNew, configured with Support* calls, opened against a filename, descriptor, memory
// buffer or a set of client callbacks, and torn down with Close then Free. Calls report a Status; failures are
// described out-of-band by an error number and message attached to the handle (see Errno and ErrorString), which
// remain valid only until the next call on the same handle.
//
// Container parsing and decompression are delegated to third-party libraries (see the format_*.go files and the
// codec package). The engine is not safe for concurrent use; use one *Archive per goroutine.
package engine

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync/atomic"
	"syscall"
)

// Status is the result code of an engine call.
type Status int

const (
	// EOF is returned by NextHeader and ReadDataBlock when there is nothing left to read.
	EOF Status = 1
	// OK means the operation succeeded.
	OK Status = 0
	// Retry means the operation may succeed if retried.
	Retry Status = -10
	// Warn means the operation succeeded but a non-critical problem was recorded on the handle.
	Warn Status = -20
	// Failed means the current operation cannot complete but the handle remains usable.
	Failed Status = -25
	// Fatal means no further operations are possible on the handle other than Close and Free.
	Fatal Status = -30
)

func (s Status) String() string {
	switch s {
	case EOF:
		return "EOF"
	case OK:
		return "OK"
	case Retry:
		return "RETRY"
	case Warn:
		return "WARN"
	case Failed:
		return "FAILED"
	case Fatal:
		return "FATAL"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Error numbers recorded by the engine itself. Errors coming from the operating system keep their own numbers.
const (
	// ErrnoMisc is used when no better error number is available.
	ErrnoMisc = -1
	// ErrnoProgrammer indicates the API was misused, e.g. calls made in the wrong state.
	ErrnoProgrammer = int(syscall.EINVAL)
	// ErrnoFileFormat indicates the input is not in a registered or well-formed format (EILSEQ on linux).
	ErrnoFileFormat = 84
)

// Mode tells whether a handle reads or writes archives.
type Mode int

const (
	ModeRead Mode = iota + 1
	ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	default:
		return "invalid"
	}
}

type state uint8

const (
	stateNew state = 1 << iota
	stateHeader
	stateData
	stateEOF
	stateClosed
	stateFatal
)

var stateNames = []struct {
	s    state
	name string
}{
	{stateNew, "new"},
	{stateHeader, "header"},
	{stateData, "data"},
	{stateEOF, "eof"},
	{stateClosed, "closed"},
	{stateFatal, "fatal"},
}

func (s state) String() string {
	names := make([]string, 0, 1)
	for _, n := range stateNames {
		if s&n.s != 0 {
			names = append(names, n.name)
		}
	}

	if len(names) == 0 {
		return "??"
	}

	return strings.Join(names, "/")
}

// Archive is one live engine session.
//
// The zero value is not usable; create instances with ReadNew or WriteNew.
type Archive struct {
	mode  Mode
	state state
	freed bool

	errno  int
	errStr string
	hasErr bool

	// generation changes every time the current entry record is invalidated.
	generation uint64

	entry     *Entry
	blockSize int

	reader
	writer
}

// DefaultBlockSize is the staging block size used when a caller passes a non-positive block size.
const DefaultBlockSize = 10240

var (
	liveArchives atomic.Int64
	liveEntries  atomic.Int64
	limit        atomic.Int64
)

// SetLimit caps the number of live archives and entries combined. Beyond the cap, ReadNew, WriteNew and EntryNew
// return nil. Zero or a negative value removes the cap. The previous cap is returned.
func SetLimit(n int64) int64 {
	return limit.Swap(n)
}

// LiveArchives returns the number of archives that have been created but not yet freed.
func LiveArchives() int64 {
	return liveArchives.Load()
}

// LiveEntries returns the number of entries created by EntryNew that have not yet been freed.
func LiveEntries() int64 {
	return liveEntries.Load()
}

func allocate(counter *atomic.Int64) bool {
	if l := limit.Load(); l > 0 && liveArchives.Load()+liveEntries.Load() >= l {
		return false
	}

	counter.Add(1)
	return true
}

func newArchive(mode Mode) *Archive {
	if !allocate(&liveArchives) {
		return nil
	}

	return &Archive{
		mode:      mode,
		state:     stateNew,
		entry:     &Entry{},
		blockSize: DefaultBlockSize,
	}
}

// ReadNew allocates a read-mode archive, or returns nil if the allocation limit has been reached.
func ReadNew() *Archive {
	return newArchive(ModeRead)
}

// WriteNew allocates a write-mode archive, or returns nil if the allocation limit has been reached.
func WriteNew() *Archive {
	return newArchive(ModeWrite)
}

// Mode returns the mode the archive was created with.
func (a *Archive) Mode() Mode {
	return a.mode
}

// Freed reports whether Free has been called on the archive.
func (a *Archive) Freed() bool {
	return a == nil || a.freed
}

// Generation identifies the current entry record. It changes on every NextHeader, Close and Free.
func (a *Archive) Generation() uint64 {
	return a.generation
}

// Errno returns the error number of the last error recorded on the handle, or 0.
func (a *Archive) Errno() int {
	return a.errno
}

// ErrorString returns the message of the last error recorded on the handle, or the empty string.
func (a *Archive) ErrorString() string {
	if !a.hasErr {
		return ""
	}

	return a.errStr
}

// SetError records an error on the handle, replacing any previous one.
func (a *Archive) SetError(errno int, format string, args ...any) {
	a.errno = errno
	a.errStr = fmt.Sprintf(format, args...)
	a.hasErr = true
}

// ClearError removes the error recorded on the handle.
func (a *Archive) ClearError() {
	a.errno, a.errStr, a.hasErr = 0, "", false
}

// check validates mode and state before a call named fn proceeds.
func (a *Archive) check(mode Mode, want state, fn string) Status {
	if a == nil {
		return Fatal
	}

	if a.freed || a.mode != mode {
		a.SetError(ErrnoProgrammer, "INTERNAL ERROR: Function '%s' invoked on a %s archive that is %s", fn, a.mode, freedString(a.freed))
		return Fatal
	}

	if a.state&want == 0 {
		a.SetError(ErrnoProgrammer, "INTERNAL ERROR: Function '%s' invoked with archive structure in state '%s', should be in state '%s'", fn, a.state, want)
		a.state = stateFatal
		return Fatal
	}

	return OK
}

func freedString(freed bool) string {
	if freed {
		return "already freed"
	}

	return "of the wrong mode"
}

// fail records err on the handle unless a client callback already recorded the cause.
func (a *Archive) fail(err error) {
	if a.client != nil && a.client.failed && a.hasErr {
		return
	}

	var fe *formatError
	if errors.As(err, &fe) {
		a.SetError(fe.errno, "%s", fe.msg)
		return
	}

	a.SetError(errnoOf(err), "%s", err.Error())
}

// errnoOf extracts an operating system error number from err, falling back to ErrnoMisc.
func errnoOf(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}

	switch {
	case errors.Is(err, fs.ErrNotExist):
		return int(syscall.ENOENT)
	case errors.Is(err, fs.ErrPermission):
		return int(syscall.EACCES)
	default:
		return ErrnoMisc
	}
}

// formatError carries an engine-chosen error number through format readers.
type formatError struct {
	errno int
	msg   string
}

func (e *formatError) Error() string {
	return e.msg
}

func newFormatError(format string, args ...any) error {
	return &formatError{errno: ErrnoFileFormat, msg: fmt.Sprintf(format, args...)}
}
