package archivist

import (
	"path/filepath"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveStem(t *testing.T) {
	tests := []struct {
		name     string
		path     string
		wantStem string
		wantExt  string
	}{
		{
			name:     "test.zip",
			path:     "C:\\Users\\test.zip",
			wantStem: "test",
			wantExt:  ".zip",
		},
		{
			name:     "test.tar.gz",
			path:     "/path/to/test.tar.gz",
			wantStem: "test",
			wantExt:  ".tar.gz",
		},
		{
			name:     "upper case",
			path:     "/path/to/TEST.TAR.ZST",
			wantStem: "TEST",
			wantExt:  ".TAR.ZST",
		},
		{
			name:     "dotted stem",
			path:     "backup.2024-02-29.tgz",
			wantStem: "backup.2024-02-29",
			wantExt:  ".tgz",
		},
		{
			name:     "unknown extension",
			path:     "/path/to/test.txt",
			wantStem: "test.txt",
			wantExt:  "",
		},
		{
			name:     "extension only",
			path:     ".zip",
			wantStem: ".zip",
			wantExt:  "",
		},
		{
			name:     "no extension",
			path:     "ab",
			wantStem: "ab",
			wantExt:  "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotStem, gotExt := ArchiveStem(tt.path)
			assert.Equalf(t, tt.wantStem, gotStem, "ArchiveStem() gotStem = %v, want %v", gotStem, tt.wantStem)
			assert.Equalf(t, tt.wantExt, gotExt, "ArchiveStem() gotExt = %v, want %v", gotExt, tt.wantExt)
		})
	}
}

func TestMkExclDir(t *testing.T) {
	fs := afero.NewMemMapFs()

	for _, want := range []string{"test", "test-1", "test-2"} {
		name, err := MkExclDir(fs, "out", "test")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join("out", want), name)

		ok, err := afero.DirExists(fs, name)
		require.NoError(t, err)
		assert.True(t, ok)
	}

	_, err := MkExclDir(afero.NewReadOnlyFs(fs), "out", "other")
	assert.Error(t, err)
}
