//go:build unix

package archivist

import (
	"github.com/nguyengg/archivist/internal/engine"
	"go.uber.org/zap"
)

// OpenFd opens the archive readable from descriptor fd and consumes the builder.
//
// The reader works on a duplicate of fd: the caller keeps ownership of fd and may close it once the reader is closed.
func (b *ReaderBuilder) OpenFd(fd int) (*FileReader, error) {
	h, err := b.take()
	if err != nil {
		return nil, err
	}

	if st := h.a.OpenFd(fd, b.opts.BlockSize); st != engine.OK {
		return nil, b.abandon(h, nil)
	}

	b.opts.Logger.Debug("opened archive descriptor",
		zap.Int("fd", fd),
		zap.String("format", h.a.FormatName()),
		zap.Int("filters", h.a.FilterCount()))
	return &FileReader{reader: b.newReader(h)}, nil
}
