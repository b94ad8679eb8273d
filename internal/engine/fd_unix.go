//go:build unix

package engine

import (
	"os"

	"golang.org/x/sys/unix"
)

// OpenFd opens the archive readable from descriptor fd. The engine reads from a duplicate of fd so the caller keeps
// ownership of fd and may close it once the archive is closed.
func (a *Archive) OpenFd(fd int, blockSize int) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_open_fd"); st != OK {
		return st
	}

	dup, err := unix.Dup(fd)
	if err != nil {
		a.SetError(errnoOf(err), "Failed to duplicate descriptor %d: %v", fd, err)
		a.state = stateFatal
		return Fatal
	}
	unix.CloseOnExec(dup)

	return a.openFile(os.NewFile(uintptr(dup), "fd"), blockSize)
}
