package archivist

import (
	"runtime"

	"github.com/nguyengg/archivist/internal/engine"
	"go.uber.org/zap"
)

// Handle is implemented by every type that owns an engine handle.
//
// The interface is sealed; only types of this package implement it.
type Handle interface {
	// ErrCode returns the error number of the last failure on the handle, or 0.
	ErrCode() int
	// ErrMsg returns the message of the last failure on the handle, or the empty string.
	ErrMsg() string

	handle() *engine.Archive
}

// ArchiveHandle exclusively owns one engine handle and tears it down exactly once.
//
// Teardown always closes then frees the engine handle, even when closing fails. Handles that become unreachable
// without Close are torn down by a runtime cleanup.
type ArchiveHandle struct {
	a       *engine.Archive
	mode    engine.Mode
	logger  *zap.Logger
	cleanup runtime.Cleanup
	closed  bool
}

var _ Handle = &ArchiveHandle{}

func newArchiveHandle(mode engine.Mode, logger *zap.Logger) (*ArchiveHandle, error) {
	var a *engine.Archive
	if mode == engine.ModeWrite {
		a = engine.WriteNew()
	} else {
		a = engine.ReadNew()
	}

	if a == nil {
		return nil, &AllocationError{What: "archive"}
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	h := &ArchiveHandle{a: a, mode: mode, logger: logger}
	h.cleanup = runtime.AddCleanup(h, func(a *engine.Archive) {
		teardown(a, mode, logger)
	}, a)
	return h, nil
}

// teardown closes then frees a, reporting the close failure if any.
func teardown(a *engine.Archive, mode engine.Mode, logger *zap.Logger) *SystemError {
	var st engine.Status
	if mode == engine.ModeWrite {
		st = a.WriteClose()
	} else {
		st = a.ReadClose()
	}

	var err *SystemError
	if st != engine.OK {
		err = &SystemError{Code: a.Errno(), Message: a.ErrorString()}
		if err.Message == "" {
			err.Message = "unknown error"
		}
		logger.Debug("close archive error",
			zap.Stringer("mode", mode),
			zap.Stringer("status", st),
			zap.Error(err))
	}

	if mode == engine.ModeWrite {
		st = a.WriteFree()
	} else {
		st = a.ReadFree()
	}
	if st != engine.OK {
		logger.Debug("free archive error",
			zap.Stringer("mode", mode),
			zap.Stringer("status", st),
			zap.String("error", a.ErrorString()))
	}

	return err
}

// ErrCode returns the error number of the last failure on the handle. It returns 0 after Close.
func (h *ArchiveHandle) ErrCode() int {
	if h.closed {
		return 0
	}

	return h.a.Errno()
}

// ErrMsg returns the message of the last failure on the handle. It returns the empty string after Close.
func (h *ArchiveHandle) ErrMsg() string {
	if h.closed {
		return ""
	}

	return h.a.ErrorString()
}

// Closed reports whether Close has been called.
func (h *ArchiveHandle) Closed() bool {
	return h.closed
}

// handle returns the engine handle. It panics with ErrClosed after Close.
func (h *ArchiveHandle) handle() *engine.Archive {
	if h.closed {
		panic(ErrClosed)
	}

	return h.a
}

// Close closes then frees the engine handle. The handle is freed even if closing fails, in which case the close
// failure is returned as a *SystemError. Subsequent calls are no-ops.
func (h *ArchiveHandle) Close() error {
	if h.closed {
		return nil
	}

	h.closed = true
	h.cleanup.Stop()

	if err := teardown(h.a, h.mode, h.logger); err != nil {
		return err
	}

	return nil
}
