package archivist

import (
	"bytes"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/nguyengg/archivist/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderBuilder_Support(t *testing.T) {
	tests := []struct {
		name    string
		support func(b *ReaderBuilder) error
		wantErr string
	}{
		{
			name:    "format all",
			support: func(b *ReaderBuilder) error { return b.SupportFormat(ReadFormatAll) },
		},
		{
			name:    "format tar",
			support: func(b *ReaderBuilder) error { return b.SupportFormat(ReadFormatTar) },
		},
		{
			name:    "format cab",
			support: func(b *ReaderBuilder) error { return b.SupportFormat(ReadFormatCab) },
			wantErr: "CAB format is not supported by this engine",
		},
		{
			name:    "format xar",
			support: func(b *ReaderBuilder) error { return b.SupportFormat(ReadFormatXar) },
			wantErr: "xar format is not supported by this engine",
		},
		{
			name:    "undefined format",
			support: func(b *ReaderBuilder) error { return b.SupportFormat(ReadFormat(1000)) },
			wantErr: "Unknown format code 0",
		},
		{
			name:    "filter all",
			support: func(b *ReaderBuilder) error { return b.SupportFilter(FilterAll) },
		},
		{
			name:    "filter none",
			support: func(b *ReaderBuilder) error { return b.SupportFilter(FilterNone) },
		},
		{
			name:    "filter zstd",
			support: func(b *ReaderBuilder) error { return b.SupportFilter(FilterZstd) },
		},
		{
			name:    "filter lzop",
			support: func(b *ReaderBuilder) error { return b.SupportFilter(FilterLzop) },
			wantErr: "Using external lzop program",
		},
		{
			name:    "filter uu",
			support: func(b *ReaderBuilder) error { return b.SupportFilter(FilterUu) },
			wantErr: "uu filter is not supported by this engine",
		},
		{
			name:    "filter program",
			support: func(b *ReaderBuilder) error { return b.SupportFilter(FilterProgram("cat")) },
		},
		{
			name:    "empty filter program",
			support: func(b *ReaderBuilder) error { return b.SupportFilter(FilterProgramSignature("", []byte{1})) },
			wantErr: "Program command is empty",
		},
		{
			name:    "compression xz",
			support: func(b *ReaderBuilder) error { return b.SupportCompression(CompressionXz) },
		},
		{
			name:    "compression compress",
			support: func(b *ReaderBuilder) error { return b.SupportCompression(CompressionCompress) },
			wantErr: "compress (.Z) filter is not supported by this engine",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := MustNewReaderBuilder()
			defer b.Close()

			err := tt.support(b)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}

			var serr *SystemError
			require.ErrorAs(t, err, &serr)
			assert.Equal(t, tt.wantErr, serr.Message)
			assert.Equal(t, tt.wantErr, b.ErrMsg())
		})
	}
}

func TestReaderBuilder_UsableAfterFailure(t *testing.T) {
	data := writeArchive(t, WriteFormatTar, member{name: "a.txt", ft: FileTypeRegularFile, data: "hello"})

	b := MustNewReaderBuilder()
	assert.Error(t, b.SupportFormat(ReadFormatLha))
	assert.Error(t, b.SupportFilter(FilterRpm))
	require.NoError(t, b.SupportFormat(ReadFormatTar))

	r, err := b.OpenStream(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []member{{name: "a.txt", ft: FileTypeRegularFile, data: "hello"}}, readMembers(t, r))
}

func TestReaderBuilder_Consumed(t *testing.T) {
	data := writeArchive(t, WriteFormatTar, member{name: "a.txt", ft: FileTypeRegularFile, data: "hello"})

	b := MustNewReaderBuilder()
	require.NoError(t, b.SupportFormat(ReadFormatAll))
	r, err := b.OpenStream(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	_, err = b.OpenStream(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrBuilderConsumed)
	_, err = b.OpenSeekable(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrBuilderConsumed)
	_, err = b.OpenFile("archive.tar")
	assert.ErrorIs(t, err, ErrBuilderConsumed)
	assert.ErrorIs(t, b.SupportFormat(ReadFormatTar), ErrBuilderConsumed)
	assert.ErrorIs(t, b.SupportFilter(FilterGzip), ErrBuilderConsumed)
	assert.Equal(t, 0, b.ErrCode())
	assert.Equal(t, "", b.ErrMsg())
	assert.NoError(t, b.Close())

	// a failed open consumes the builder too.
	b = MustNewReaderBuilder()
	_, err = b.OpenStream(bytes.NewReader(data))
	var serr *SystemError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "No formats registered", serr.Message)
	_, err = b.OpenStream(bytes.NewReader(data))
	assert.ErrorIs(t, err, ErrBuilderConsumed)
}

func TestReaderBuilder_OpenFile(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "archive.tar")
	require.NoError(t, os.WriteFile(name, writeArchive(t, WriteFormatTar,
		member{name: "a.txt", ft: FileTypeRegularFile, data: "hello"},
		member{name: "b", ft: FileTypeSymbolicLink, link: "a.txt"}), 0644))

	r, err := OpenFile(name)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, "tar", r.FormatName())
	assert.Equal(t, []member{
		{name: "a.txt", ft: FileTypeRegularFile, data: "hello"},
		{name: "b", ft: FileTypeSymbolicLink, link: "a.txt"},
	}, readMembers(t, r))
}

func TestReaderBuilder_OpenFile_Errors(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "does-not-exist.tar"))
	var serr *SystemError
	require.ErrorAs(t, err, &serr)
	assert.True(t, errors.Is(err, fs.ErrNotExist))
	assert.Contains(t, serr.Message, "Failed to open")

	_, err = OpenFile("bad\x00name.tar")
	var eerr *EncodingError
	require.ErrorAs(t, err, &eerr)
	assert.Equal(t, "path", eerr.Field)

	dir := t.TempDir()
	name := filepath.Join(dir, "not-an-archive.txt")
	require.NoError(t, os.WriteFile(name, []byte("hello, world"), 0644))
	_, err = OpenFile(name)
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, "Unrecognized archive format", serr.Message)
}

// trackingReader records whether Close was called.
type trackingReader struct {
	io.Reader
	closed bool
}

func (r *trackingReader) Close() error {
	r.closed = true
	return nil
}

func TestStreamReader_Ownership(t *testing.T) {
	data := writeArchive(t, WriteFormatTar, member{name: "a.txt", ft: FileTypeRegularFile, data: "hello"})

	t.Run("close closes the source", func(t *testing.T) {
		src := &trackingReader{Reader: bytes.NewReader(data)}
		r, err := OpenStream(src)
		require.NoError(t, err)

		require.NoError(t, r.Close())
		assert.True(t, src.closed)
	})

	t.Run("failed open closes the source", func(t *testing.T) {
		src := &trackingReader{Reader: strings.NewReader("not an archive")}
		_, err := OpenStream(src)
		assert.Error(t, err)
		assert.True(t, src.closed)
	})

	t.Run("into inner detaches the source", func(t *testing.T) {
		src := &trackingReader{Reader: bytes.NewReader(data)}
		r, err := OpenStream(src)
		require.NoError(t, err)

		_, err = r.NextHeader()
		require.NoError(t, err)

		assert.Same(t, src, r.IntoInner())
		assert.False(t, src.closed)
		assert.True(t, r.Closed())

		_, err = r.NextHeader()
		assert.ErrorIs(t, err, ErrClosed)
	})
}

// trackingReadSeeker records whether Close was called.
type trackingReadSeeker struct {
	*bytes.Reader
	closed bool
}

func (r *trackingReadSeeker) Close() error {
	r.closed = true
	return nil
}

func TestReaderBuilder_OpenSeekable_RegistrationFailure(t *testing.T) {
	data := writeArchive(t, WriteFormatTar, member{name: "a.txt", ft: FileTypeRegularFile, data: "hello"})

	b := MustNewReaderBuilder()
	require.NoError(t, b.SupportFormat(ReadFormatAll))

	// an engine that is already open rejects the seek callback.
	require.Equal(t, engine.OK, b.handle().OpenMemory(data))

	src := &trackingReadSeeker{Reader: bytes.NewReader(data)}
	_, err := b.OpenSeekable(src)

	var serr *SystemError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Message, "archive_read_set_seek_callback")
	assert.True(t, src.closed)

	_, err = b.OpenSeekable(src)
	assert.ErrorIs(t, err, ErrBuilderConsumed)
}

// badSeeker fails every seek.
type badSeeker struct {
	*bytes.Reader
}

func (badSeeker) Seek(int64, int) (int64, error) {
	return 0, errors.New("illegal seek")
}

func TestReaderBuilder_OpenSeekable_SeekFailure(t *testing.T) {
	data := writeArchive(t, WriteFormatZip, member{name: "a.txt", ft: FileTypeRegularFile, data: "hello"})

	b := MustNewReaderBuilder()
	require.NoError(t, b.SupportFormat(ReadFormatAll))
	_, err := b.OpenSeekable(badSeeker{bytes.NewReader(data)})

	var serr *SystemError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Message, "illegal seek")
}

func TestReaderBuilder_OpenSeekable_Zip(t *testing.T) {
	// zip archives opened with a seekable source are read through their central directory, so members are
	// discovered even when the local headers carry no sizes.
	data := writeArchive(t, WriteFormatZip,
		member{name: "a.txt", ft: FileTypeRegularFile, data: "hello"},
		member{name: "b.txt", ft: FileTypeRegularFile, data: "world"})

	b := MustNewReaderBuilder()
	require.NoError(t, b.SupportFormat(ReadFormatZip))
	r, err := b.OpenSeekable(bytes.NewReader(data))
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, []member{
		{name: "a.txt", ft: FileTypeRegularFile, data: "hello"},
		{name: "b.txt", ft: FileTypeRegularFile, data: "world"},
	}, readMembers(t, r))
}

func TestReaderBuilder_AllocationFailure(t *testing.T) {
	// a zero limit means no limit, so keep at least one allocation alive.
	keep := MustNewOwnedEntry()
	defer keep.Free()

	prev := engine.SetLimit(engine.LiveArchives() + engine.LiveEntries())
	defer engine.SetLimit(prev)

	_, err := NewReaderBuilder()
	var aerr *AllocationError
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "archive", aerr.What)

	_, err = NewWriterBuilder()
	assert.ErrorAs(t, err, &aerr)

	_, err = NewOwnedEntry()
	require.ErrorAs(t, err, &aerr)
	assert.Equal(t, "entry", aerr.What)

	assert.Panics(t, func() {
		MustNewOwnedEntry()
	})
}

// openFds returns the number of open descriptors of the process, or -1 if it cannot be determined.
func openFds() int {
	entries, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		return -1
	}

	return len(entries)
}

func TestReader_CloseMidIteration(t *testing.T) {
	dir := t.TempDir()
	name := filepath.Join(dir, "archive.tar")
	require.NoError(t, os.WriteFile(name, writeArchive(t, WriteFormatTar,
		member{name: "a", ft: FileTypeRegularFile, data: strings.Repeat("a", 20000)},
		member{name: "b", ft: FileTypeRegularFile, data: "b"},
		member{name: "c", ft: FileTypeRegularFile, data: "c"}), 0644))

	archives, entries, fds := engine.LiveArchives(), engine.LiveEntries(), openFds()

	for range 10 {
		r, err := OpenFile(name)
		require.NoError(t, err)

		_, err = r.NextHeader()
		require.NoError(t, err)
		_, err = r.Read(make([]byte, 100))
		require.NoError(t, err)

		require.NoError(t, r.Close())
	}

	assert.Equal(t, archives, engine.LiveArchives())
	assert.Equal(t, entries, engine.LiveEntries())
	if fds >= 0 {
		assert.Equal(t, fds, openFds())
	}
}

func TestReader_ReleasedWithoutClose(t *testing.T) {
	data := writeArchive(t, WriteFormatTar, member{name: "a", ft: FileTypeRegularFile, data: "a"})
	archives := engine.LiveArchives()

	func() {
		r, err := OpenStream(bytes.NewReader(data))
		require.NoError(t, err)
		_, err = r.NextHeader()
		require.NoError(t, err)
	}()

	// cleanups run on a separate goroutine after the reader has been collected.
	assert.Eventually(t, func() bool {
		runtime.GC()
		return engine.LiveArchives() == archives
	}, 5*time.Second, 10*time.Millisecond)
}
