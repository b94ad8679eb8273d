package archivist

import (
	"io/fs"
	"testing"
	"time"

	"github.com/nguyengg/archivist/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBorrowedEntry_Default(t *testing.T) {
	var e BorrowedEntry

	assert.False(t, e.Valid())
	assert.Equal(t, FileTypeUnknown, e.FileType())
	assert.Nil(t, e.PathnameRaw())
	assert.Equal(t, int64(0), e.Size())
	assert.Equal(t, fs.FileMode(0), e.Mode())
	assert.True(t, e.ModTime().IsZero())

	name, err := e.Pathname()
	assert.NoError(t, err)
	assert.Equal(t, "", name)

	_, ok, err := e.Symlink()
	assert.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = e.Hardlink()
	assert.NoError(t, err)
	assert.False(t, ok)

	assert.ErrorIs(t, e.SetPathname("a"), ErrStaleEntry)
	assert.ErrorIs(t, e.SetFileType(FileTypeRegularFile), ErrStaleEntry)
	assert.ErrorIs(t, e.SetLink("a"), ErrStaleEntry)
}

func TestBorrowedEntry_Stale(t *testing.T) {
	data := writeArchive(t, WriteFormatTar,
		member{name: "a", ft: FileTypeRegularFile, data: "a"},
		member{name: "b", ft: FileTypeDirectory})
	r := openBytes(t, data, ReadFormatTar)

	first, err := r.NextHeader()
	require.NoError(t, err)
	assert.True(t, first.Valid())

	// the view is writable during its header cycle.
	require.NoError(t, first.SetPathname("renamed"))
	name, err := first.Pathname()
	require.NoError(t, err)
	assert.Equal(t, "renamed", name)

	kept := MustNewOwnedEntry()
	defer kept.Free()
	require.NoError(t, kept.CopyFrom(first))

	second, err := r.NextHeader()
	require.NoError(t, err)
	assert.False(t, first.Valid())
	assert.Equal(t, FileTypeUnknown, first.FileType())
	assert.Nil(t, first.PathnameRaw())
	assert.ErrorIs(t, first.SetPathname("x"), ErrStaleEntry)
	assert.ErrorIs(t, kept.CopyFrom(first), ErrStaleEntry)

	assert.Equal(t, FileTypeDirectory, second.FileType())

	name, err = kept.Pathname()
	require.NoError(t, err)
	assert.Equal(t, "renamed", name)
	assert.Equal(t, FileTypeRegularFile, kept.FileType())
	assert.Equal(t, int64(1), kept.Size())
}

func TestOwnedEntry(t *testing.T) {
	mtime := time.Date(2024, 2, 29, 12, 0, 0, 0, time.UTC)

	e, err := NewOwnedEntry()
	require.NoError(t, err)
	defer e.Free()

	assert.Equal(t, FileTypeUnknown, e.FileType())

	require.NoError(t, e.SetPathname("dir/file.txt"))
	require.NoError(t, e.SetFileType(FileTypeRegularFile))
	require.NoError(t, e.SetSize(42))
	require.NoError(t, e.SetPerm(0o755))
	require.NoError(t, e.SetModTime(mtime))

	name, err := e.Pathname()
	require.NoError(t, err)
	assert.Equal(t, "dir/file.txt", name)
	assert.Equal(t, []byte("dir/file.txt"), e.PathnameRaw())
	assert.Equal(t, FileTypeRegularFile, e.FileType())
	assert.Equal(t, int64(42), e.Size())
	assert.Equal(t, fs.FileMode(0o755), e.Mode())
	assert.True(t, mtime.Equal(e.ModTime()))

	// SetLink sets a hardlink unless the entry is a symlink.
	require.NoError(t, e.SetLink("other.txt"))
	target, ok, err := e.Hardlink()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "other.txt", target)
	assert.Nil(t, e.SymlinkRaw())

	require.NoError(t, e.SetFileType(FileTypeSymbolicLink))
	require.NoError(t, e.SetLink("target"))
	target, ok, err = e.Symlink()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "target", target)
	assert.Nil(t, e.HardlinkRaw())
	assert.Equal(t, fs.ModeSymlink|0o755, e.Mode())
}

func TestOwnedEntry_EncodingErrors(t *testing.T) {
	e := MustNewOwnedEntry()
	defer e.Free()

	tests := []struct {
		name  string
		set   func() error
		field string
	}{
		{name: "pathname with NUL", set: func() error { return e.SetPathname("a\x00b") }, field: "pathname"},
		{name: "link with NUL", set: func() error { return e.SetLink("a\x00b") }, field: "hardlink"},
		{name: "symlink with NUL", set: func() error { return e.SetSymlink("\x00") }, field: "symlink"},
		{name: "invalid UTF-8", set: func() error { return e.SetPathname("\xff\xfe") }, field: "pathname"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var eerr *EncodingError
			require.ErrorAs(t, tt.set(), &eerr)
			assert.Equal(t, tt.field, eerr.Field)
		})
	}

	// the raw form never fails.
	e.record().SetPathname([]byte("\xff\xfe"))
	assert.Equal(t, []byte("\xff\xfe"), e.PathnameRaw())
	_, err := e.Pathname()
	var eerr *EncodingError
	require.ErrorAs(t, err, &eerr)
	assert.ErrorIs(t, err, errInvalidUTF8)
}

func TestOwnedEntry_Charset(t *testing.T) {
	latin1, err := LookupCharset("latin1")
	require.NoError(t, err)
	require.NotNil(t, latin1)

	e := MustNewOwnedEntry(func(opts *EntryOptions) {
		opts.Charset = latin1
	})
	defer e.Free()

	require.NoError(t, e.SetPathname("café"))
	assert.Equal(t, []byte("caf\xe9"), e.PathnameRaw())

	name, err := e.Pathname()
	require.NoError(t, err)
	assert.Equal(t, "café", name)

	var eerr *EncodingError
	assert.ErrorAs(t, e.SetPathname("日本"), &eerr)
}

func TestLookupCharset(t *testing.T) {
	enc, err := LookupCharset("UTF-8")
	assert.NoError(t, err)
	assert.Nil(t, enc)

	enc, err = LookupCharset("shift_jis")
	assert.NoError(t, err)
	assert.NotNil(t, enc)

	_, err = LookupCharset("no-such-charset")
	assert.Error(t, err)
}

func TestOwnedEntry_Free(t *testing.T) {
	entries := engine.LiveEntries()

	e := MustNewOwnedEntry()
	assert.Equal(t, entries+1, engine.LiveEntries())

	e.Free()
	e.Free()
	assert.Equal(t, entries, engine.LiveEntries())

	assert.Equal(t, FileTypeUnknown, e.FileType())
	assert.ErrorIs(t, e.SetPathname("a"), ErrStaleEntry)
}

func TestFileType(t *testing.T) {
	tests := []struct {
		ft   FileType
		name string
		mode fs.FileMode
	}{
		{ft: FileTypeBlockDevice, name: "block device", mode: fs.ModeDevice},
		{ft: FileTypeCharacterDevice, name: "character device", mode: fs.ModeDevice | fs.ModeCharDevice},
		{ft: FileTypeSymbolicLink, name: "symbolic link", mode: fs.ModeSymlink},
		{ft: FileTypeDirectory, name: "directory", mode: fs.ModeDir},
		{ft: FileTypeNamedPipe, name: "named pipe", mode: fs.ModeNamedPipe},
		{ft: FileTypeMount, name: "mount", mode: fs.ModeIrregular},
		{ft: FileTypeRegularFile, name: "regular file"},
		{ft: FileTypeSocket, name: "socket", mode: fs.ModeSocket},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := MustNewOwnedEntry()
			defer e.Free()

			require.NoError(t, e.SetFileType(tt.ft))
			assert.Equal(t, tt.ft, e.FileType())
			assert.Equal(t, tt.name, tt.ft.String())
			assert.Equal(t, tt.mode, e.Mode().Type())
		})
	}
}

func TestFileType_Undefined(t *testing.T) {
	e := MustNewOwnedEntry()
	defer e.Free()

	e.record().SetFiletype(0o110000)
	assert.PanicsWithValue(t, "undefined filetype 0110000", func() {
		e.FileType()
	})
}
