package archivist

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/afero"
)

// archiveExts are the extensions ArchiveStem strips, longest first.
var archiveExts = []string{
	".tar.bz2", ".tar.zst", ".tar.lz4", ".tar.lzma", ".tar.gz", ".tar.xz", ".tar.lz", ".tar.br", ".tar.sz", ".tar.Z",
	".cpio.gz", ".cpio.xz",
	".tbz2", ".tgz", ".txz", ".tzst", ".tar", ".zip", ".7z", ".rar", ".iso", ".cpio", ".ar", ".deb", ".jar",
	".gz", ".xz", ".zst", ".bz2", ".lz4", ".lzma",
}

// ArchiveStem returns the base name of path without its archive extension.
//
// For example, the stem of "/path/to/backup.tar.gz" is "backup" and its extension ".tar.gz", where filepath.Ext would
// only find ".gz". Extensions are matched case-insensitively. If no known extension is found, ext is empty.
func ArchiveStem(path string) (stem, ext string) {
	base := filepath.Base(filepath.ToSlash(path))
	if i := strings.LastIndexAny(base, `\/`); i >= 0 {
		base = base[i+1:]
	}

	lower := strings.ToLower(base)
	for _, e := range archiveExts {
		if strings.HasSuffix(lower, strings.ToLower(e)) && len(base) > len(e) {
			return base[:len(base)-len(e)], base[len(base)-len(e):]
		}
	}

	return base, ""
}

// MkExclDir creates a new child directory of parent that did not exist prior to this call.
//
// stem is the desired name of the directory; if it is taken, numeric suffixes stem-1, stem-2, etc. are tried. The
// returned name is the path to the newly created directory, created with perm 0755.
func MkExclDir(fs afero.Fs, parent, stem string) (name string, err error) {
	name = filepath.Join(parent, stem)
	for i := 0; ; {
		switch err = fs.Mkdir(name, 0755); {
		case err == nil:
			return name, nil
		case errors.Is(err, os.ErrExist):
			i++
			name = filepath.Join(parent, stem+"-"+strconv.Itoa(i))
		default:
			return "", fmt.Errorf("create directory error: %w", err)
		}
	}
}
