package archivist

import (
	"context"
	"fmt"
	"io"
)

// defaultCopyBufferSize is the size of the buffer copyWithContext allocates when given none.
const defaultCopyBufferSize = 32 * 1024

// copyWithContext is a variant of io.CopyBuffer that checks ctx after every write.
//
// It never uses io.WriterTo or io.ReaderFrom since those cannot be cancelled. A small buffer adds overhead while a
// large one delays cancellation.
func copyWithContext(ctx context.Context, dst io.Writer, src io.Reader, buf []byte) (written int64, err error) {
	if buf == nil {
		buf = make([]byte, defaultCopyBufferSize)
	}

	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)

			switch {
			case werr != nil:
				return written, werr
			case nw != nr:
				return written, fmt.Errorf("%w: wrote %d of %d bytes", io.ErrShortWrite, nw, nr)
			}

			if err = ctx.Err(); err != nil {
				return written, err
			}
		}

		switch {
		case rerr == io.EOF:
			return written, nil
		case rerr != nil:
			return written, rerr
		}
	}
}
