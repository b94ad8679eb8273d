//go:build !unix

package engine

// OpenFd is only available on unix platforms.
func (a *Archive) OpenFd(fd int, _ int) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_open_fd"); st != OK {
		return st
	}

	a.SetError(ErrnoMisc, "Opening descriptor %d is not supported on this platform", fd)
	a.state = stateFatal
	return Fatal
}
