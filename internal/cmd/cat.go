package cmd

import (
	"context"
	"fmt"
	"io"
	"maps"
	"os"
	"os/signal"
	"slices"
	"strings"

	"github.com/nguyengg/archivist"
	"go.uber.org/zap"
)

type Cat struct {
	Args struct {
		Archive string   `positional-arg-name:"archive" description:"local path, S3 URI in format s3://bucket/key, or - for standard input" required:"yes"`
		Members []string `positional-arg-name:"member" description:"the members to write in archive order; every regular file if none is given"`
	} `positional-args:"yes"`

	env *env
}

func (c *Cat) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	logger := fileLogger(c.env.logger, 0, 1, c.Args.Archive)
	if err := c.cat(ctx, logger); err != nil {
		logger.Error("cat error", zap.Error(err))
		return err
	}

	return nil
}

func (c *Cat) cat(ctx context.Context, logger *zap.Logger) error {
	src, err := c.env.open(ctx, c.Args.Archive, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	missing := make(map[string]bool, len(c.Args.Members))
	for _, m := range c.Args.Members {
		missing[m] = true
	}

	for e, err := range src.Entries() {
		if err != nil {
			return err
		}

		name, err := e.Pathname()
		if err != nil {
			return err
		}

		switch {
		case len(c.Args.Members) != 0 && !missing[name]:
			continue
		case e.FileType() != archivist.FileTypeRegularFile:
			if len(c.Args.Members) != 0 {
				return fmt.Errorf(`member "%s" is a %s`, name, e.FileType())
			}
			continue
		}

		delete(missing, name)

		n, err := io.Copy(c.env.stdout, src)
		if err != nil {
			return fmt.Errorf(`write member "%s" error: %w`, name, err)
		}
		logger.Debug("wrote member", zap.String("name", name), zap.Int64("size", n))

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	if len(missing) != 0 {
		return fmt.Errorf("members not found: %s", strings.Join(slices.Sorted(maps.Keys(missing)), ", "))
	}

	return nil
}
