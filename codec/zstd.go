package codec

import (
	"io"

	"github.com/klauspost/compress/zstd"
)

// Zstd implements Codec and Encoder for zstd compression algorithm.
type Zstd struct{}

var _ Codec = Zstd{}

func (c Zstd) Name() string {
	return "zstd"
}

func (c Zstd) Match(_ string, peek []byte) bool {
	return hasPrefix(peek, 0x28, 0xb5, 0x2f, 0xfd)
}

func (c Zstd) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	dec, err := zstd.NewReader(src)
	if err != nil {
		return nil, err
	}

	return &zstdDecoder{dec}, nil
}

type zstdDecoder struct {
	*zstd.Decoder
}

func (d *zstdDecoder) Close() error {
	d.Decoder.Close()
	return nil
}

var _ Encoder = Zstd{}

func (c Zstd) NewEncoder(dst io.Writer) (io.WriteCloser, error) {
	return zstd.NewWriter(dst, zstd.WithEncoderLevel(zstd.SpeedBestCompression))
}
