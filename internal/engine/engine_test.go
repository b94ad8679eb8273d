package engine

import (
	"bytes"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/nguyengg/archivist/codec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type member struct {
	name     string
	filetype uint32
	link     string
	data     string
}

// writeArchive produces an archive with the engine's own writer.
func writeArchive(t *testing.T, code WriteFormatCode, members ...member) []byte {
	t.Helper()

	buf := &bytes.Buffer{}
	a := WriteNew()
	require.NotNil(t, a)
	defer a.WriteFree()

	require.Equal(t, OK, a.SetFormat(code))
	require.Equal(t, OK, a.OpenWrite(buf, nil, func(_ *Archive, data any, p []byte) int {
		n, _ := data.(*bytes.Buffer).Write(p)
		return n
	}, nil), a.ErrorString())

	for _, m := range members {
		e := EntryNew()
		require.NotNil(t, e)

		e.SetPathname([]byte(m.name))
		e.SetFiletype(m.filetype)
		e.SetPerm(0o644)
		if m.link != "" {
			e.SetLink([]byte(m.link))
		}
		if m.filetype == IFREG && m.link == "" {
			e.SetSize(int64(len(m.data)))
		}

		require.Equalf(t, OK, a.WriteHeader(e), "WriteHeader(%s): %s", m.name, a.ErrorString())
		if m.data != "" {
			n, st := a.WriteData([]byte(m.data))
			require.Equal(t, OK, st, a.ErrorString())
			require.Equal(t, len(m.data), n)
		}
		require.Equal(t, OK, a.FinishEntry(), a.ErrorString())
		e.Free()
	}

	require.Equal(t, OK, a.WriteClose(), a.ErrorString())
	return buf.Bytes()
}

// readAll iterates every member of an opened archive.
func readAll(t *testing.T, a *Archive) []member {
	t.Helper()

	var members []member
	for {
		e, st := a.NextHeader()
		if st == EOF {
			return members
		}
		require.Equal(t, OK, st, a.ErrorString())

		m := member{name: string(e.Pathname()), filetype: e.Filetype()}
		if e.Symlink() != nil {
			m.link = string(e.Symlink())
		} else if e.Hardlink() != nil {
			m.link = string(e.Hardlink())
		}

		var data bytes.Buffer
		p := make([]byte, 3)
		for {
			n, st := a.ReadData(p)
			require.Equal(t, OK, st, a.ErrorString())
			if n == 0 {
				break
			}
			data.Write(p[:n])
		}
		m.data = data.String()
		members = append(members, m)
	}
}

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		write   WriteFormatCode
		read    FormatCode
		members []member
	}{
		{
			name:  "tar",
			write: WriteFormatTar,
			read:  FormatTar,
			members: []member{
				{name: "dir/", filetype: IFDIR},
				{name: "dir/a.txt", filetype: IFREG, data: "hello"},
				{name: "b", filetype: IFLNK, link: "dir/a.txt"},
				{name: "c", filetype: IFREG, link: "dir/a.txt"},
			},
		},
		{
			name:  "ustar",
			write: WriteFormatUstar,
			read:  FormatTar,
			members: []member{
				{name: "a.txt", filetype: IFREG, data: "hello"},
				{name: "empty.txt", filetype: IFREG},
			},
		},
		{
			name:  "gnutar",
			write: WriteFormatGnutar,
			read:  FormatGnutar,
			members: []member{
				{name: "a.txt", filetype: IFREG, data: "hello"},
			},
		},
		{
			name:  "pax",
			write: WriteFormatPax,
			read:  FormatTar,
			members: []member{
				{name: "ünïcödé.txt", filetype: IFREG, data: "hello"},
			},
		},
		{
			name:  "zip",
			write: WriteFormatZip,
			read:  FormatZip,
			members: []member{
				{name: "dir/", filetype: IFDIR},
				{name: "dir/a.txt", filetype: IFREG, data: "hello, world"},
				{name: "b", filetype: IFLNK, link: "dir/a.txt"},
			},
		},
		{
			name:  "cpio",
			write: WriteFormatCpio,
			read:  FormatCpio,
			members: []member{
				{name: "a.txt", filetype: IFREG, data: "hello"},
				{name: "dir", filetype: IFDIR},
			},
		},
		{
			name:  "ar",
			write: WriteFormatAr,
			read:  FormatAr,
			members: []member{
				{name: "a.txt", filetype: IFREG, data: "hello!"},
				{name: "b.txt", filetype: IFREG, data: "world!"},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := writeArchive(t, tt.write, tt.members...)

			a := ReadNew()
			require.NotNil(t, a)
			defer a.ReadFree()

			require.Equal(t, OK, a.SupportFormat(tt.read))
			require.Equal(t, OK, a.OpenMemory(data), a.ErrorString())

			got := readAll(t, a)
			assert.Equal(t, tt.members, got)
			assert.Equal(t, OK, a.ReadClose())
		})
	}
}

func TestFilters(t *testing.T) {
	tarball := writeArchive(t, WriteFormatTar, member{name: "a.txt", filetype: IFREG, data: "hello"})

	tests := []struct {
		name   string
		filter FilterCode
		enc    codec.Encoder
	}{
		{name: "gzip", filter: FilterGzip, enc: codec.Gzip{}},
		{name: "xz", filter: FilterXz, enc: codec.Xz{}},
		{name: "zstd", filter: FilterZstd, enc: codec.Zstd{}},
		{name: "lzma", filter: FilterLzma, enc: codec.Lzma{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			w, err := tt.enc.NewEncoder(buf)
			require.NoError(t, err)
			_, err = w.Write(tarball)
			require.NoError(t, err)
			require.NoError(t, w.Close())

			a := ReadNew()
			defer a.ReadFree()

			require.Equal(t, OK, a.SupportFilter(tt.filter))
			require.Equal(t, OK, a.SupportFormat(FormatTar))
			require.Equal(t, OK, a.OpenMemory(buf.Bytes()), a.ErrorString())
			assert.Equal(t, 1, a.FilterCount())
			assert.Equal(t, "tar", a.FormatName())

			assert.Equal(t, []member{{name: "a.txt", filetype: IFREG, data: "hello"}}, readAll(t, a))
		})
	}
}

func TestStackedFilters(t *testing.T) {
	tarball := writeArchive(t, WriteFormatTar, member{name: "a.txt", filetype: IFREG, data: "hello"})

	xzBuf := &bytes.Buffer{}
	w, err := codec.Xz{}.NewEncoder(xzBuf)
	require.NoError(t, err)
	_, _ = w.Write(tarball)
	require.NoError(t, w.Close())

	gzBuf := &bytes.Buffer{}
	w, err = codec.Gzip{}.NewEncoder(gzBuf)
	require.NoError(t, err)
	_, _ = w.Write(xzBuf.Bytes())
	require.NoError(t, w.Close())

	a := ReadNew()
	defer a.ReadFree()

	require.Equal(t, OK, a.SupportFilterAll())
	require.Equal(t, OK, a.SupportFormatAll())
	require.Equal(t, OK, a.OpenMemory(gzBuf.Bytes()), a.ErrorString())
	assert.Equal(t, 2, a.FilterCount())
	assert.Equal(t, []member{{name: "a.txt", filetype: IFREG, data: "hello"}}, readAll(t, a))
}

func TestProgramFilter(t *testing.T) {
	if _, err := exec.LookPath("cat"); err != nil {
		t.Skip("cat is not available")
	}

	tarball := writeArchive(t, WriteFormatTar, member{name: "a.txt", filetype: IFREG, data: "hello"})

	a := ReadNew()
	defer a.ReadFree()

	require.Equal(t, OK, a.SupportFilterProgram("cat"))
	require.Equal(t, OK, a.SupportFormat(FormatTar))
	require.Equal(t, OK, a.OpenMemory(tarball), a.ErrorString())
	assert.Equal(t, 1, a.FilterCount())
	assert.Equal(t, []member{{name: "a.txt", filetype: IFREG, data: "hello"}}, readAll(t, a))
	assert.Equal(t, OK, a.ReadClose())
}

func TestUnrecognizedFormat(t *testing.T) {
	zipped := writeArchive(t, WriteFormatZip, member{name: "a.txt", filetype: IFREG, data: "hello"})

	a := ReadNew()
	defer a.ReadFree()

	require.Equal(t, OK, a.SupportFormat(FormatTar))
	assert.Equal(t, Fatal, a.OpenMemory(zipped))
	assert.Equal(t, ErrnoFileFormat, a.Errno())
	assert.Equal(t, "Unrecognized archive format", a.ErrorString())

	_, st := a.NextHeader()
	assert.Equal(t, Fatal, st)
}

func TestNoFormats(t *testing.T) {
	a := ReadNew()
	defer a.ReadFree()

	assert.Equal(t, Fatal, a.OpenMemory([]byte("hello")))
	assert.Equal(t, "No formats registered", a.ErrorString())
}

func TestEmptyAndRaw(t *testing.T) {
	a := ReadNew()
	defer a.ReadFree()

	require.Equal(t, OK, a.SupportFormatAll())
	require.Equal(t, OK, a.OpenMemory(nil), a.ErrorString())
	_, st := a.NextHeader()
	assert.Equal(t, EOF, st)
	_, st = a.NextHeader()
	assert.Equal(t, EOF, st)

	b := ReadNew()
	defer b.ReadFree()

	require.Equal(t, OK, b.SupportFormat(FormatRaw))
	require.Equal(t, OK, b.OpenMemory([]byte("just some bytes")), b.ErrorString())
	assert.Equal(t, []member{{name: "data", filetype: IFREG, data: "just some bytes"}}, readAll(t, b))
}

func TestStateChecks(t *testing.T) {
	a := ReadNew()
	defer a.ReadFree()

	n, st := a.ReadData(make([]byte, 10))
	assert.Equal(t, 0, n)
	assert.Equal(t, Fatal, st)
	assert.Equal(t, ErrnoProgrammer, a.Errno())
	assert.Contains(t, a.ErrorString(), "INTERNAL ERROR: Function 'archive_read_data' invoked with archive structure in state 'new'")

	// the fatal state only allows close and free.
	assert.Equal(t, Fatal, a.SupportFormat(FormatTar))
	assert.Equal(t, OK, a.ReadClose())
}

func TestRegistrationAfterOpen(t *testing.T) {
	tarball := writeArchive(t, WriteFormatTar, member{name: "a.txt", filetype: IFREG, data: "hello"})

	a := ReadNew()
	defer a.ReadFree()

	require.Equal(t, OK, a.SupportFormat(FormatTar))
	require.Equal(t, OK, a.OpenMemory(tarball))
	assert.Equal(t, Fatal, a.SetSeekCallback(memorySeek))
	assert.Contains(t, a.ErrorString(), "archive_read_set_seek_callback")
}

func TestUnsupported(t *testing.T) {
	a := ReadNew()
	defer a.ReadFree()

	for _, code := range []FormatCode{FormatCab, FormatLha, FormatMtree, FormatXar} {
		assert.Equalf(t, Failed, a.SupportFormat(code), "SupportFormat(%d)", code)
		assert.Contains(t, a.ErrorString(), "not supported by this engine")
	}

	for _, code := range []FilterCode{FilterCompress, FilterUu, FilterRpm} {
		assert.Equalf(t, Failed, a.SupportFilter(code), "SupportFilter(%s)", code)
	}

	assert.Equal(t, Warn, a.SupportFilter(FilterLzop))
	assert.Equal(t, "Using external lzop program", a.ErrorString())

	// failed registrations leave the handle usable.
	assert.Equal(t, OK, a.SupportFormat(FormatTar))
}

func TestReadDataBlock(t *testing.T) {
	payload := bytes.Repeat([]byte("0123456789"), 5000)
	tarball := writeArchive(t, WriteFormatTar, member{name: "a.bin", filetype: IFREG, data: string(payload)})

	a := ReadNew()
	defer a.ReadFree()

	require.Equal(t, OK, a.SupportFormat(FormatTar))
	require.Equal(t, OK, a.SetBlockSize(4096))
	require.Equal(t, OK, a.OpenMemory(tarball))

	e, st := a.NextHeader()
	require.Equal(t, OK, st)
	assert.Equal(t, int64(len(payload)), e.Size())
	assert.Equal(t, int64(0), a.HeaderPosition())

	var (
		got  []byte
		last int64 = -1
	)
	for {
		block, offset, st := a.ReadDataBlock()
		if st == EOF {
			break
		}
		require.Equal(t, OK, st)
		assert.LessOrEqual(t, len(block), 4096)
		assert.Greater(t, offset, last)
		assert.Equal(t, int64(len(got)), offset)
		last = offset
		got = append(got, block...)
	}

	assert.Equal(t, payload, got)
}

func TestClientCallbacks(t *testing.T) {
	tarball := writeArchive(t, WriteFormatTar,
		member{name: "a.txt", filetype: IFREG, data: "hello"},
		member{name: "b.txt", filetype: IFREG, data: "world"})

	t.Run("read and close", func(t *testing.T) {
		r := bytes.NewReader(tarball)
		buf := make([]byte, 7)
		closed := 0

		a := ReadNew()
		require.Equal(t, OK, a.SupportFormat(FormatTar))
		require.Equal(t, OK, a.SetReadCallback(func(_ *Archive, _ any) ([]byte, int) {
			n, _ := r.Read(buf)
			return buf, n
		}))
		require.Equal(t, OK, a.SetCloseCallback(func(*Archive, any) Status {
			closed++
			return OK
		}))
		require.Equal(t, OK, a.Open1(), a.ErrorString())

		assert.Len(t, readAll(t, a), 2)
		assert.Equal(t, OK, a.ReadClose())
		assert.Equal(t, OK, a.ReadClose())
		assert.Equal(t, OK, a.ReadFree())
		assert.Equal(t, 1, closed)
	})

	t.Run("read failure", func(t *testing.T) {
		a := ReadNew()
		defer a.ReadFree()

		require.Equal(t, OK, a.SupportFormat(FormatTar))
		require.Equal(t, OK, a.SetReadCallback(func(a *Archive, _ any) ([]byte, int) {
			a.SetError(5, "boom")
			return nil, int(Fatal)
		}))
		assert.Equal(t, Fatal, a.Open1())
		assert.Equal(t, 5, a.Errno())
		assert.Equal(t, "boom", a.ErrorString())
	})

	t.Run("seek failure", func(t *testing.T) {
		r := bytes.NewReader(tarball)
		buf := make([]byte, 512)

		a := ReadNew()
		defer a.ReadFree()

		require.Equal(t, OK, a.SupportFormat(FormatTar))
		require.Equal(t, OK, a.SetReadCallback(func(_ *Archive, _ any) ([]byte, int) {
			n, _ := r.Read(buf)
			return buf, n
		}))
		require.Equal(t, OK, a.SetSeekCallback(func(a *Archive, _ any, _ int64, _ int) int64 {
			a.SetError(29, "Illegal seek")
			return int64(Fatal)
		}))
		assert.Equal(t, Fatal, a.Open1())
		assert.Equal(t, "Illegal seek", a.ErrorString())
	})
}

func TestOpenFilename(t *testing.T) {
	name := filepath.Join(t.TempDir(), "test.tar")
	require.NoError(t, os.WriteFile(name, writeArchive(t, WriteFormatTar, member{name: "a.txt", filetype: IFREG, data: "hello"}), 0o644))

	a := ReadNew()
	defer a.ReadFree()

	require.Equal(t, OK, a.SupportFormatAll())
	require.Equal(t, OK, a.OpenFilename(name, 0), a.ErrorString())
	assert.Equal(t, []member{{name: "a.txt", filetype: IFREG, data: "hello"}}, readAll(t, a))

	b := ReadNew()
	defer b.ReadFree()

	require.Equal(t, OK, b.SupportFormatAll())
	assert.Equal(t, Fatal, b.OpenFilename(filepath.Join(t.TempDir(), "does-not-exist"), 0))
	assert.Equal(t, 2, b.Errno())
}

func TestLiveCounters(t *testing.T) {
	archives, entries := LiveArchives(), LiveEntries()

	a := ReadNew()
	e := EntryNew()
	assert.Equal(t, archives+1, LiveArchives())
	assert.Equal(t, entries+1, LiveEntries())

	e.Free()
	e.Free()
	assert.Equal(t, OK, a.ReadFree())
	assert.Equal(t, Fatal, a.ReadFree())
	assert.Equal(t, archives, LiveArchives())
	assert.Equal(t, entries, LiveEntries())

	prev := SetLimit(LiveArchives() + LiveEntries())
	defer SetLimit(prev)

	assert.Nil(t, ReadNew())
	assert.Nil(t, WriteNew())
	assert.Nil(t, EntryNew())
}

func TestWriterErrors(t *testing.T) {
	a := WriteNew()
	defer a.WriteFree()

	assert.Equal(t, Fatal, a.OpenWrite(&bytes.Buffer{}, nil, func(*Archive, any, []byte) int { return 0 }, nil))
	assert.Contains(t, a.ErrorString(), "Format must be set")

	b := WriteNew()
	defer b.WriteFree()

	require.Equal(t, OK, b.SetFormat(WriteFormatAr))
	require.Equal(t, OK, b.OpenWrite(io.Discard, nil, func(_ *Archive, _ any, p []byte) int { return len(p) }, nil))

	e := EntryNew()
	defer e.Free()

	assert.Equal(t, Failed, b.WriteHeader(e))
	assert.Contains(t, b.ErrorString(), "without pathname")

	e.SetPathname([]byte("dir"))
	e.SetFiletype(IFDIR)
	assert.Equal(t, Failed, b.WriteHeader(e))
	assert.Equal(t, OK, b.WriteClose())
}
