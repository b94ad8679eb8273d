package engine

import (
	"bytes"
	"context"
	"io"

	"github.com/mholt/archives"
)

// formatReader iterates the members of one container.
type formatReader interface {
	// next fills e with the metadata of the next member and returns the reader of its payload, or io.EOF if there
	// are no more members. The returned reader is only valid until the next call.
	next(e *Entry) (io.Reader, error)

	// close releases resources owned by the format reader. It does not close the underlying source.
	close() error
}

// access describes how a format wants to consume its input.
type access int

const (
	// sequential formats read the (possibly decompressed) stream front to back.
	sequential access = iota
	// preferRandom formats use io.ReaderAt when the source is seekable and unfiltered, and fall back to sequential.
	preferRandom
	// requireRandom formats need io.ReaderAt; non-seekable input is spooled into a temporary file first.
	requireRandom
)

type format struct {
	code   FormatCode
	name   string
	access access

	// bid reports whether peek, the first bytes of the decompressed stream, looks like this format.
	bid func(ctx context.Context, name string, peek []byte) bool

	// open creates the reader. ra is nil unless access is not sequential and random access is available.
	open func(r io.Reader, ra io.ReaderAt, size int64) (formatReader, error)
}

// formats lists every format in bidding order: formats with strong signatures come first, raw comes last.
var formats = []*format{
	{code: Format7zip, name: "7-Zip", access: requireRandom, bid: matchArchives(archives.SevenZip{}), open: open7zip},
	{code: FormatRar, name: "RAR", bid: matchArchives(archives.Rar{}), open: openRar},
	{code: FormatZip, name: "ZIP", access: preferRandom, bid: matchArchives(archives.Zip{}), open: openZip},
	{code: FormatIso9660, name: "ISO9660", access: requireRandom, bid: bidIso9660, open: openIso9660},
	{code: FormatCpio, name: "cpio", bid: bidCpio, open: openCpio},
	{code: FormatAr, name: "ar", bid: bidAr, open: openAr},
	{code: FormatTar, name: "tar", bid: bidTar, open: openTar},
	{code: FormatEmpty, name: "empty", bid: bidEmpty, open: openEmpty},
	{code: FormatRaw, name: "raw", bid: bidRaw, open: openRaw},
	{code: FormatCab, name: "CAB"},
	{code: FormatLha, name: "LHA"},
	{code: FormatMtree, name: "mtree"},
	{code: FormatXar, name: "xar"},
}

var formatsByCode = func() map[FormatCode]*format {
	m := make(map[FormatCode]*format, len(formats)+1)
	for _, f := range formats {
		m[f.code] = f
	}

	// GNU tar extensions are handled by the tar reader.
	m[FormatGnutar] = m[FormatTar]
	return m
}()

// matcher is the subset of archives.Archival used for bidding.
type matcher interface {
	Match(ctx context.Context, filename string, stream io.Reader) (archives.MatchResult, error)
}

// matchArchives bids using the stream signature check of a github.com/mholt/archives format. The file name is not
// consulted so that a misnamed file is identified by its content only.
func matchArchives(m matcher) func(context.Context, string, []byte) bool {
	return func(ctx context.Context, _ string, peek []byte) bool {
		res, err := m.Match(ctx, "", bytes.NewReader(peek))
		return err == nil && res.ByStream
	}
}

func bidTar(ctx context.Context, name string, peek []byte) bool {
	// an archive made only of end-of-archive blocks is still a valid tar.
	if len(peek) >= 512 && allZero(peek[:512]) {
		return true
	}

	return matchArchives(archives.Tar{})(ctx, name, peek)
}

func bidCpio(_ context.Context, _ string, peek []byte) bool {
	return bytes.HasPrefix(peek, []byte("070701")) || bytes.HasPrefix(peek, []byte("070702"))
}

func bidAr(_ context.Context, _ string, peek []byte) bool {
	return bytes.HasPrefix(peek, []byte("!<arch>\n"))
}

// iso9660 images start with 16 system sectors followed by the volume descriptors.
const isoMagicOffset = 16*2048 + 1

func bidIso9660(_ context.Context, _ string, peek []byte) bool {
	return len(peek) >= isoMagicOffset+5 && string(peek[isoMagicOffset:isoMagicOffset+5]) == "CD001"
}

func bidEmpty(_ context.Context, _ string, peek []byte) bool {
	return len(peek) == 0
}

func bidRaw(_ context.Context, _ string, peek []byte) bool {
	return len(peek) > 0
}

func allZero(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}

	return true
}

// emptyReader implements formatReader for an input with no bytes at all.
type emptyReader struct{}

func openEmpty(io.Reader, io.ReaderAt, int64) (formatReader, error) {
	return emptyReader{}, nil
}

func (emptyReader) next(*Entry) (io.Reader, error) {
	return nil, io.EOF
}

func (emptyReader) close() error {
	return nil
}

// rawReader implements formatReader by presenting the whole stream as a single member named "data".
type rawReader struct {
	r    io.Reader
	done bool
}

func openRaw(r io.Reader, _ io.ReaderAt, _ int64) (formatReader, error) {
	return &rawReader{r: r}, nil
}

func (f *rawReader) next(e *Entry) (io.Reader, error) {
	if f.done {
		return nil, io.EOF
	}

	f.done = true
	e.SetPathname([]byte("data"))
	e.SetFiletype(IFREG)
	e.SetPerm(0o644)
	return f.r, nil
}

func (f *rawReader) close() error {
	return nil
}
