//go:build unix

package archivist

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderBuilder_OpenFd(t *testing.T) {
	name := filepath.Join(t.TempDir(), "archive.cpio")
	require.NoError(t, os.WriteFile(name, writeArchive(t, WriteFormatCpio,
		member{name: "a.txt", ft: FileTypeRegularFile, data: "hello"}), 0644))

	f, err := os.Open(name)
	require.NoError(t, err)
	defer f.Close()

	b := MustNewReaderBuilder()
	require.NoError(t, b.SupportFormat(ReadFormatCpio))
	r, err := b.OpenFd(int(f.Fd()))
	require.NoError(t, err)

	assert.Equal(t, []member{{name: "a.txt", ft: FileTypeRegularFile, data: "hello"}}, readMembers(t, r))
	require.NoError(t, r.Close())

	// the caller's descriptor is still open.
	_, err = f.Stat()
	assert.NoError(t, err)
}
