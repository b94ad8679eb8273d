package config

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/go-ini/ini"
)

// FileName is the name of the configuration file that Loader.Load looks for.
const FileName = ".archivist"

// Loader can be used for loading .archivist configuration as well as overridden with default settings.
type Loader struct {
	// Profile is the AWS profile to use, taking precedence over bucket-based AWS profile setting.
	Profile string

	// Dir is the directory to start looking for the .archivist file. By default, the working directory is used.
	Dir string

	cfg           *ini.File
	s3clientCache sync.Map
}

// Load will traverse the directory hierarchy upwards to find the first ".archivist" file available and load its
// contents into the Loader.
//
// The name of the .archivist file is returned, or the empty string if there is none in which case every setting has
// its default value.
func (l *Loader) Load(ctx context.Context) (string, error) {
	l.cfg = ini.Empty()

	cur := l.Dir
	if cur == "" {
		var err error
		if cur, err = os.Getwd(); err != nil {
			return "", err
		}
	}
	cur, err := filepath.Abs(cur)
	if err != nil {
		return "", err
	}

	for {
		if err = ctx.Err(); err != nil {
			return "", err
		}

		name := filepath.Join(cur, FileName)
		fi, err := os.Stat(name)
		switch {
		case err == nil && !fi.IsDir():
			cfg, err := ini.Load(name)
			if err != nil {
				return name, err
			}

			l.cfg = cfg
			return name, nil
		case err != nil && !errors.Is(err, fs.ErrNotExist):
			return "", err
		}

		parent := filepath.Dir(cur)
		if parent == cur {
			return "", nil
		}
		cur = parent
	}
}

// LoadProfile is a convenient method to set Loader.Profile then call Load.
func (l *Loader) LoadProfile(ctx context.Context, profile string) (string, error) {
	l.Profile = profile
	return l.Load(ctx)
}

// DefaultLoader is the default Loader instance for package-level methods.
var DefaultLoader = &Loader{cfg: ini.Empty()}

// Load calls Loader.Load on the DefaultLoader instance.
func Load(ctx context.Context) (string, error) {
	return DefaultLoader.Load(ctx)
}

// LoadProfile calls Loader.LoadProfile on the DefaultLoader instance.
func LoadProfile(ctx context.Context, profile string) (string, error) {
	return DefaultLoader.LoadProfile(ctx, profile)
}

func (l *Loader) file() *ini.File {
	if l.cfg == nil {
		return ini.Empty()
	}

	return l.cfg
}
