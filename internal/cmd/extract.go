package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/archivist"
	"github.com/nguyengg/archivist/s3source"
	"go.uber.org/zap"
)

type Extract struct {
	Output      string `short:"o" long:"output" description:"the directory in which a new directory is created for every archive" default:"."`
	NoStripRoot bool   `long:"no-strip-root" description:"keep the top-level directory that every member shares instead of extracting its contents directly"`
	NoProgress  bool   `long:"no-progress" description:"do not show a progress bar even if stderr is a terminal"`
	Args        struct {
		Archives []string `positional-arg-name:"archive" description:"local paths, S3 URIs in format s3://bucket/key, or - for standard input" required:"yes"`
	} `positional-args:"yes"`

	env *env
}

func (c *Extract) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	success := 0
	n := len(c.Args.Archives)
	for i, name := range c.Args.Archives {
		logger := fileLogger(c.env.logger, i, n, name)
		logger.Info("start extracting")

		dir, err := c.extract(ctx, name, logger)
		if err == nil {
			logger.Info("done extracting", zap.String("dir", dir))
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		logger.Error("extract error", zap.Error(err))
	}

	c.env.logger.Info(fmt.Sprintf("successfully extracted %d/%d archives", success, n))
	if success != n {
		return fmt.Errorf("successfully extracted %d/%d archives", success, n)
	}

	return nil
}

func (c *Extract) extract(ctx context.Context, name string, logger *zap.Logger) (dir string, err error) {
	src, err := c.env.open(ctx, name, logger)
	if err != nil {
		return "", err
	}
	defer src.Close()

	var root string
	if !c.NoStripRoot && src.rewindable() {
		if root, err = archivist.FindRoot(src); err != nil {
			return "", fmt.Errorf("find root error: %w", err)
		}
		if err = c.env.rewind(src, logger); err != nil {
			return "", err
		}
	}

	stem := root
	if stem == "" {
		stem = outputStem(name)
	}

	// the new directory is removed if extraction fails so that a retry starts from a clean slate.
	if dir, err = archivist.MkExclDir(c.env.fs, c.Output, strings.TrimSuffix(stem, "/")); err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = c.env.fs.RemoveAll(dir)
		}
	}()

	var progress io.Writer
	if c.env.interactive && !c.NoProgress {
		bar := newBytesBar(c.env.stderr, -1, "extracting")
		defer bar.Close()
		progress = bar
	}

	var stats archivist.ExtractStats
	stats, err = archivist.Extract(ctx, src, func(opts *archivist.ExtractOptions) {
		opts.Fs = c.env.fs
		opts.Dir = dir
		opts.StripRoot = root
		opts.Progress = progress
		opts.Logger = logger
	})
	if err != nil {
		return dir, err
	}

	logger.Info("extracted",
		zap.Int("members", stats.Members),
		zap.Int("files", stats.Files),
		zap.String("size", humanize.IBytes(uint64(stats.Bytes))),
		zap.Int("skipped", stats.Skipped))
	return dir, nil
}

// outputStem returns the name of the directory to extract name into if its members do not share a root.
func outputStem(name string) string {
	switch {
	case name == stdin:
		return "archive"
	case s3source.IsURI(name):
		if _, key, err := s3source.ParseURI(name); err == nil {
			name = key
		}
	}

	stem, _ := archivist.ArchiveStem(name)
	return stem
}
