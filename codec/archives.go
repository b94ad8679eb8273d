package codec

import (
	"bytes"
	"context"
	"io"

	"github.com/mholt/archives"
)

// decompressor is the subset of archives.Compression used by Archives.
type decompressor interface {
	Match(ctx context.Context, filename string, stream io.Reader) (archives.MatchResult, error)
	OpenReader(r io.Reader) (io.ReadCloser, error)
}

// Archives implements Codec by delegating to one of the compression formats of github.com/mholt/archives.
type Archives struct {
	name   string
	d      decompressor
	byName bool
}

var _ Codec = &Archives{}

// Bzip2 returns the bzip2 Codec.
func Bzip2() *Archives {
	return &Archives{name: "bzip2", d: archives.Bz2{}}
}

// Lz4 returns the lz4 frame Codec.
func Lz4() *Archives {
	return &Archives{name: "lz4", d: archives.Lz4{}}
}

// Lzip returns the lzip Codec.
func Lzip() *Archives {
	return &Archives{name: "lzip", d: archives.Lzip{}}
}

// Brotli returns the brotli Codec.
//
// Brotli streams have no magic number so the Codec only matches by file name extension.
func Brotli() *Archives {
	return &Archives{name: "brotli", d: archives.Brotli{}, byName: true}
}

// Snappy returns the framed snappy/s2 Codec.
func Snappy() *Archives {
	return &Archives{name: "snappy", d: archives.Sz{}}
}

func (c *Archives) Name() string {
	return c.name
}

func (c *Archives) Match(name string, peek []byte) bool {
	if c.byName && name == "" {
		return false
	}

	res, err := c.d.Match(context.Background(), name, bytes.NewReader(peek))
	if err != nil {
		return false
	}

	if c.byName {
		return res.ByName
	}

	return res.ByStream
}

func (c *Archives) NewDecoder(src io.Reader) (io.ReadCloser, error) {
	return c.d.OpenReader(src)
}
