package archivist

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ErrUnsafePath is returned by Extract for members whose path is absolute, escapes the target directory, or passes
// through a symlink created by the extraction.
var ErrUnsafePath = errors.New("archivist: unsafe path")

// ExtractOptions customises Extract.
type ExtractOptions struct {
	// Fs is the filesystem to extract into.
	//
	// By default, afero.NewOsFs is used. Symlinks are only created if Fs implements afero.Linker.
	Fs afero.Fs

	// Dir is the directory to extract into, created if necessary. By default, the current directory is used.
	Dir string

	// StripRoot is removed from the start of every member path, typically the value returned by FindRoot. Members
	// outside StripRoot are extracted as is.
	StripRoot string

	// Progress receives a copy of every payload byte extracted, e.g. a progress bar.
	Progress io.Writer

	// Logger receives periodic progress at info level and skipped members at debug level.
	//
	// By default, zap.NewNop is used.
	Logger *zap.Logger

	// BufferSize is the size of the buffer used to copy payloads. By default, 32 KiB.
	BufferSize int
}

// ExtractStats summarises a successful Extract.
type ExtractStats struct {
	// Members is the number of headers read.
	Members int
	// Files is the number of regular files and hardlinks written.
	Files int
	// Bytes is the number of payload bytes written.
	Bytes int64
	// Skipped is the number of members that could not be represented, e.g. devices or symlinks on a filesystem
	// without symlink support.
	Skipped int
}

// Extract writes every remaining member of r into a directory.
//
// Directories, regular files, hardlinks (as copies of their targets), and symlinks are extracted; other types are
// skipped. Existing files are never overwritten. Extraction stops at the first error, which is returned along with the
// stats so far.
func Extract(ctx context.Context, r Reader, optFns ...func(*ExtractOptions)) (stats ExtractStats, err error) {
	opts := &ExtractOptions{}
	for _, fn := range optFns {
		fn(opts)
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Dir == "" {
		opts.Dir = "."
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = defaultCopyBufferSize
	}

	x := &extractor{
		ExtractOptions: opts,
		buf:            make([]byte, opts.BufferSize),
		symlinks:       make(map[string]bool),
	}

	if err = x.Fs.MkdirAll(x.Dir, 0755); err != nil {
		return stats, fmt.Errorf(`create directory "%s" error: %w`, x.Dir, err)
	}

	sometimes := rate.Sometimes{Interval: 5 * time.Second}
	for e, err := range r.Entries() {
		if err != nil {
			return x.stats, err
		}

		x.stats.Members++
		if err = x.extract(ctx, r, e); err != nil {
			return x.stats, err
		}

		if err = ctx.Err(); err != nil {
			return x.stats, err
		}

		sometimes.Do(func() {
			x.Logger.Info("extracting",
				zap.Int("members", x.stats.Members),
				zap.String("size", humanize.IBytes(uint64(x.stats.Bytes))))
		})
	}

	return x.stats, nil
}

type extractor struct {
	*ExtractOptions
	buf   []byte
	stats ExtractStats

	// symlinks holds the cleaned relative paths of the symlinks created so far.
	symlinks map[string]bool
}

func (x *extractor) extract(ctx context.Context, r Reader, e *BorrowedEntry) error {
	name, err := e.Pathname()
	if err != nil {
		return err
	}

	rel, err := x.relPath(name)
	if err != nil {
		return err
	}
	if rel == "" {
		return nil
	}

	target := filepath.Join(x.Dir, filepath.FromSlash(rel))

	switch ft := e.FileType(); ft {
	case FileTypeDirectory:
		if err = x.Fs.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf(`create directory "%s" error: %w`, target, err)
		}
		return nil

	case FileTypeSymbolicLink:
		link, _, err := e.Symlink()
		if err != nil {
			return err
		}

		return x.symlink(rel, target, link)

	case FileTypeRegularFile, FileTypeUnknown:
		if link, ok, err := e.Hardlink(); err != nil {
			return err
		} else if ok {
			return x.hardlink(ctx, target, link)
		}

		if ft == FileTypeUnknown {
			x.skip(name, ft)
			return nil
		}

		return x.create(ctx, target, e.Mode().Perm(), e.ModTime(), r)

	default:
		x.skip(name, ft)
		return nil
	}
}

// relPath returns the cleaned slash-separated path of name relative to the target directory, or "" if there is
// nothing to extract.
func (x *extractor) relPath(name string) (string, error) {
	slashed := strings.ReplaceAll(name, `\`, "/")
	if x.StripRoot != "" {
		root := strings.TrimSuffix(x.StripRoot, "/")
		if slashed == root {
			return "", nil
		}
		slashed = strings.TrimPrefix(slashed, root+"/")
	}

	if path.IsAbs(slashed) || filepath.IsAbs(name) || filepath.VolumeName(name) != "" {
		return "", fmt.Errorf("%w: %q is absolute", ErrUnsafePath, name)
	}

	rel := path.Clean(slashed)
	switch {
	case rel == ".":
		return "", nil
	case rel == ".." || strings.HasPrefix(rel, "../"):
		return "", fmt.Errorf("%w: %q escapes the target directory", ErrUnsafePath, name)
	}

	for dir := path.Dir(rel); dir != "."; dir = path.Dir(dir) {
		if x.symlinks[dir] {
			return "", fmt.Errorf("%w: %q passes through symlink %q", ErrUnsafePath, name, dir)
		}
	}

	return rel, nil
}

func (x *extractor) create(ctx context.Context, target string, perm os.FileMode, mtime time.Time, src io.Reader) error {
	if err := x.Fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf(`create path to file "%s" error: %w`, target, err)
	}

	if perm == 0 {
		perm = 0644
	}

	f, err := x.Fs.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm|0200)
	if err != nil {
		return fmt.Errorf(`create file "%s" error: %w`, target, err)
	}

	var dst io.Writer = f
	if x.Progress != nil {
		dst = io.MultiWriter(f, x.Progress)
	}

	n, err := copyWithContext(ctx, dst, src, x.buf)
	x.stats.Bytes += n
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return fmt.Errorf(`write to file "%s" error: %w`, target, err)
	}

	x.stats.Files++
	if !mtime.IsZero() {
		if err = x.Fs.Chtimes(target, mtime, mtime); err != nil {
			return fmt.Errorf(`change mod time of "%s" error: %w`, target, err)
		}
	}

	return nil
}

// hardlink copies the already extracted member link to target.
func (x *extractor) hardlink(ctx context.Context, target, link string) error {
	rel, err := x.relPath(link)
	if err != nil {
		return err
	}
	if rel == "" {
		return fmt.Errorf("%w: hardlink to %q", ErrUnsafePath, link)
	}

	if x.symlinks[rel] {
		return fmt.Errorf("%w: hardlink to symlink %q", ErrUnsafePath, link)
	}

	src := filepath.Join(x.Dir, filepath.FromSlash(rel))
	if lstater, ok := x.Fs.(afero.Lstater); ok {
		fi, _, err := lstater.LstatIfPossible(src)
		if err != nil {
			return fmt.Errorf(`stat hardlink target "%s" error: %w`, src, err)
		}
		if !fi.Mode().IsRegular() {
			return fmt.Errorf("%w: hardlink to %q which is not a regular file", ErrUnsafePath, link)
		}
	}

	f, err := x.Fs.Open(src)
	if err != nil {
		return fmt.Errorf(`open hardlink target "%s" error: %w`, src, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf(`stat hardlink target "%s" error: %w`, src, err)
	}

	return x.create(ctx, target, fi.Mode().Perm(), fi.ModTime(), f)
}

func (x *extractor) symlink(rel, target, link string) error {
	linker, ok := x.Fs.(afero.Linker)
	if !ok {
		x.skip(rel, FileTypeSymbolicLink)
		return nil
	}

	if err := x.Fs.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf(`create path to symlink "%s" error: %w`, target, err)
	}

	if err := linker.SymlinkIfPossible(link, target); err != nil {
		return fmt.Errorf(`create symlink "%s" error: %w`, target, err)
	}

	x.symlinks[rel] = true
	return nil
}

func (x *extractor) skip(name string, ft FileType) {
	x.stats.Skipped++
	x.Logger.Debug("skip member", zap.String("name", name), zap.Stringer("type", ft))
}

var sep = regexp.MustCompile(`[\\/]`)

// FindRoot consumes r and returns the top-level directory shared by every member, with a trailing slash, e.g.
// "backup/". It returns the empty string if any member is at the top level or if members have different top-level
// directories.
//
// Pass the result as ExtractOptions.StripRoot to a second reader of the same archive.
func FindRoot(r Reader) (string, error) {
	find := newRootFinder()

	root, ok := "", true
	for e, err := range r.Entries() {
		if err != nil {
			return "", err
		}

		name, err := e.Pathname()
		if err != nil {
			return "", err
		}

		if root, ok = find(name, e.FileType() == FileTypeDirectory); !ok {
			return "", nil
		}
	}

	if root == "" {
		return "", nil
	}

	return root + "/", nil
}

// newRootFinder returns a function that is passed the member paths one at a time and returns the common top-level
// directory so far. Once it returns false, there is no common root and every later call returns "", false.
func newRootFinder() func(name string, isDir bool) (root string, ok bool) {
	noRoot, root := false, ""

	return func(name string, isDir bool) (string, bool) {
		if noRoot {
			return "", false
		}

		name = strings.TrimPrefix(name, "./")
		paths := sep.Split(name, 2)
		if len(paths) == 1 && !isDir {
			// a file at the top level so there is no root for sure.
			noRoot = true
			return "", false
		}

		switch root {
		case paths[0]:
		case "":
			root = paths[0]
		default:
			noRoot = true
			return "", false
		}

		return root, true
	}
}
