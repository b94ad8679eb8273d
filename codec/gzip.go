package codec

import (
	"io"

	"github.com/klauspost/compress/gzip"
)

// Gzip implements Codec and Encoder for gzip compression algorithm.
type Gzip struct {
}

var _ Codec = Gzip{}

func (c Gzip) Name() string {
	return "gzip"
}

func (c Gzip) Match(_ string, peek []byte) bool {
	// deflate is the only compression method in use.
	return hasPrefix(peek, 0x1f, 0x8b, 0x08)
}

func (c Gzip) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	return gzip.NewReader(src)
}

var _ Encoder = Gzip{}

func (c Gzip) NewEncoder(dst io.Writer) (io.WriteCloser, error) {
	return gzip.NewWriterLevel(dst, gzip.BestCompression)
}
