// Package codec contains the decompression filters the engine stacks in front of format readers.
package codec

import (
	"bytes"
	"io"
)

// Codec identifies and decodes one compression or encoding layer.
type Codec interface {
	// Name returns the name reported in diagnostics, e.g. "gzip".
	Name() string

	// Match reports whether the stream whose first bytes are peek is encoded with this codec.
	//
	// name is the base name of the source if known, empty otherwise. Most codecs only look at peek.
	Match(name string, peek []byte) bool

	// NewDecoder creates a decoder to decompress contents from the given io.Reader.
	NewDecoder(src io.Reader) (io.ReadCloser, error)
}

// Encoder is implemented by codecs that can also compress.
type Encoder interface {
	// NewEncoder creates an encoder to compress contents to the given io.Writer.
	NewEncoder(dst io.Writer) (io.WriteCloser, error)
}

// Fallback reports whether c accepts any input. Such codecs should only be tried after every other codec declined.
func Fallback(c Codec) bool {
	p, ok := c.(*Program)
	return ok && len(p.Signature) == 0
}

func hasPrefix(peek []byte, magic ...byte) bool {
	return bytes.HasPrefix(peek, magic)
}
