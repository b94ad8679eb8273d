package archivist

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriter_OpenFile(t *testing.T) {
	name := filepath.Join(t.TempDir(), "out.zip")

	b := MustNewWriterBuilder()
	require.NoError(t, b.SetFormat(WriteFormatZip))
	w, err := b.OpenFile(name)
	require.NoError(t, err)

	e, err := w.NewEntry()
	require.NoError(t, err)
	defer e.Free()
	require.NoError(t, e.SetPathname("hello.txt"))
	require.NoError(t, e.SetFileType(FileTypeRegularFile))
	require.NoError(t, e.SetSize(5))
	require.NoError(t, w.WriteHeader(e))
	_, err = w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = os.Stat(name)
	require.NoError(t, err)

	r, err := OpenFile(name)
	require.NoError(t, err)
	defer r.Close()
	assert.Equal(t, "ZIP", r.FormatName())
	assert.Equal(t, []member{{name: "hello.txt", ft: FileTypeRegularFile, data: "hello"}}, readMembers(t, r))
}

func TestWriter_Errors(t *testing.T) {
	t.Run("format must be set", func(t *testing.T) {
		_, err := MustNewWriterBuilder().OpenStream(&bytes.Buffer{})
		var serr *SystemError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "Format must be set before you can write to an archive.", serr.Message)
	})

	t.Run("consumed", func(t *testing.T) {
		b := MustNewWriterBuilder()
		require.NoError(t, b.SetFormat(WriteFormatTar))
		assert.Equal(t, 0, b.ErrCode())
		assert.Empty(t, b.ErrMsg())

		w, err := b.OpenStream(&bytes.Buffer{})
		require.NoError(t, err)
		defer w.Close()

		assert.Equal(t, 0, b.ErrCode())
		assert.Empty(t, b.ErrMsg())
		assert.ErrorIs(t, b.SetFormat(WriteFormatZip), ErrBuilderConsumed)
		_, err = b.OpenStream(&bytes.Buffer{})
		assert.ErrorIs(t, err, ErrBuilderConsumed)
	})

	t.Run("missing pathname", func(t *testing.T) {
		b := MustNewWriterBuilder()
		require.NoError(t, b.SetFormat(WriteFormatUstar))
		w, err := b.OpenStream(&bytes.Buffer{})
		require.NoError(t, err)
		defer w.Close()

		e := MustNewOwnedEntry()
		defer e.Free()
		require.NoError(t, e.SetFileType(FileTypeRegularFile))

		err = w.WriteHeader(e)
		var serr *SystemError
		require.ErrorAs(t, err, &serr)
		assert.Equal(t, "Can't record entry in ustar archive without pathname", serr.Message)

		// the writer is still usable.
		require.NoError(t, e.SetPathname("a"))
		assert.NoError(t, w.WriteHeader(e))
	})

	t.Run("ar rejects directories", func(t *testing.T) {
		b := MustNewWriterBuilder()
		require.NoError(t, b.SetFormat(WriteFormatAr))
		w, err := b.OpenStream(&bytes.Buffer{})
		require.NoError(t, err)
		defer w.Close()

		e := MustNewOwnedEntry()
		defer e.Free()
		require.NoError(t, e.SetPathname("dir"))
		require.NoError(t, e.SetFileType(FileTypeDirectory))

		var serr *SystemError
		assert.ErrorAs(t, w.WriteHeader(e), &serr)
	})

	t.Run("stale entry", func(t *testing.T) {
		b := MustNewWriterBuilder()
		require.NoError(t, b.SetFormat(WriteFormatTar))
		w, err := b.OpenStream(&bytes.Buffer{})
		require.NoError(t, err)
		defer w.Close()

		e := MustNewOwnedEntry()
		e.Free()
		assert.ErrorIs(t, w.WriteHeader(e), ErrStaleEntry)
		assert.ErrorIs(t, w.WriteHeader(&BorrowedEntry{}), ErrStaleEntry)
	})

	t.Run("closed", func(t *testing.T) {
		b := MustNewWriterBuilder()
		require.NoError(t, b.SetFormat(WriteFormatTar))
		w, err := b.OpenStream(&bytes.Buffer{})
		require.NoError(t, err)
		require.NoError(t, w.Close())
		require.NoError(t, w.Close())

		_, err = w.Write([]byte("a"))
		assert.ErrorIs(t, err, ErrClosed)
		assert.ErrorIs(t, w.FinishEntry(), ErrClosed)
	})
}

// brokenWriter fails every write.
type brokenWriter struct{}

func (brokenWriter) Write([]byte) (int, error) {
	return 0, errors.New("disk full")
}

func TestWriter_BrokenDestination(t *testing.T) {
	b := MustNewWriterBuilder()
	require.NoError(t, b.SetFormat(WriteFormatTar))
	w, err := b.OpenStream(brokenWriter{})
	require.NoError(t, err)

	e := MustNewOwnedEntry()
	defer e.Free()
	require.NoError(t, e.SetPathname("a"))
	require.NoError(t, e.SetFileType(FileTypeRegularFile))
	require.NoError(t, e.SetSize(1))

	err = w.WriteHeader(e)
	var serr *SystemError
	require.ErrorAs(t, err, &serr)
	assert.Contains(t, serr.Message, "disk full")

	// the trailer cannot be written either but the writer is still released.
	_ = w.Close()
	assert.True(t, w.Closed())
}
