package codec

import (
	"encoding/binary"
	"io"

	"github.com/ulikunitz/xz"
	"github.com/ulikunitz/xz/lzma"
)

// Xz implements Codec and Encoder for xz compression algorithm.
type Xz struct {
}

var _ Codec = Xz{}

func (c Xz) Name() string {
	return "xz"
}

func (c Xz) Match(_ string, peek []byte) bool {
	return hasPrefix(peek, 0xfd, '7', 'z', 'X', 'Z', 0x00)
}

func (c Xz) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	r, err := xz.NewReader(src)
	if err != nil {
		return nil, err
	}

	return io.NopCloser(r), nil
}

var _ Encoder = Xz{}

func (c Xz) NewEncoder(dst io.Writer) (io.WriteCloser, error) {
	return xz.NewWriter(dst)
}

// Lzma implements Codec and Encoder for the legacy lzma_alone format.
type Lzma struct {
}

var _ Codec = Lzma{}

func (c Lzma) Name() string {
	return "lzma"
}

// Match recognises the header produced by lzma_alone encoders: the properties byte used by every common preset, a
// dictionary size of at least 4 KiB, and an uncompressed size that is either unknown or plausible.
func (c Lzma) Match(_ string, peek []byte) bool {
	if len(peek) < 13 || peek[0] != 0x5d {
		return false
	}

	if dictSize := binary.LittleEndian.Uint32(peek[1:5]); dictSize < 1<<12 {
		return false
	}

	size := binary.LittleEndian.Uint64(peek[5:13])
	return size == ^uint64(0) || size < 1<<40
}

func (c Lzma) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	r, err := lzma.NewReader(src)
	if err != nil {
		return nil, err
	}

	return io.NopCloser(r), nil
}

var _ Encoder = Lzma{}

func (c Lzma) NewEncoder(dst io.Writer) (io.WriteCloser, error) {
	return lzma.NewWriter(dst)
}
