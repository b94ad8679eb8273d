package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/nguyengg/archivist"
	"go.uber.org/zap"
)

type List struct {
	Long bool `short:"l" long:"long" description:"also show the type, size, and modification time of every member"`
	Args struct {
		Archives []string `positional-arg-name:"archive" description:"local paths, S3 URIs in format s3://bucket/key, or - for standard input" required:"yes"`
	} `positional-args:"yes"`

	env *env
}

func (c *List) Execute(args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("unknown positional arguments: %s", strings.Join(args, " "))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	success := 0
	n := len(c.Args.Archives)
	for i, name := range c.Args.Archives {
		logger := fileLogger(c.env.logger, i, n, name)

		if n > 1 {
			if i > 0 {
				_, _ = fmt.Fprintln(c.env.stdout)
			}
			_, _ = fmt.Fprintf(c.env.stdout, "%s:\n", name)
		}

		err := c.list(ctx, name, logger)
		if err == nil {
			success++
			continue
		}

		if errors.Is(err, context.Canceled) {
			break
		}

		logger.Error("list error", zap.Error(err))
	}

	if success != n {
		return fmt.Errorf("successfully listed %d/%d archives", success, n)
	}

	return nil
}

func (c *List) list(ctx context.Context, name string, logger *zap.Logger) error {
	src, err := c.env.open(ctx, name, logger)
	if err != nil {
		return err
	}
	defer src.Close()

	var (
		w       = tabwriter.NewWriter(c.env.stdout, 0, 4, 1, ' ', tabwriter.AlignRight)
		members int
		size    int64
	)
	for e, err := range src.Entries() {
		if err != nil {
			_ = w.Flush()
			return err
		}

		if err = ctx.Err(); err != nil {
			_ = w.Flush()
			return err
		}

		members++
		size += e.Size()

		if err = writeMember(w, e, c.Long); err != nil {
			return err
		}
	}

	if err = w.Flush(); err != nil {
		return err
	}

	logger.Info("done listing",
		zap.String("format", src.FormatName()),
		zap.Int("members", members),
		zap.String("size", humanize.IBytes(uint64(size))))
	return nil
}

// writeMember writes a line describing e in the style of ls.
func writeMember(w io.Writer, e archivist.Entry, long bool) error {
	name, err := e.Pathname()
	if err != nil {
		// names that cannot be decoded are shown escaped.
		name = strconv.Quote(string(e.PathnameRaw()))
	}

	if !long {
		_, err = fmt.Fprintf(w, "%s\n", name)
		return err
	}

	size := "-"
	if e.FileType() == archivist.FileTypeRegularFile {
		size = humanize.IBytes(uint64(e.Size()))
	}

	mtime := "-"
	if t := e.ModTime(); !t.IsZero() {
		mtime = t.Local().Format("2006-01-02 15:04")
	}

	if target, ok, _ := e.Symlink(); ok {
		name += " -> " + target
	} else if target, ok, _ = e.Hardlink(); ok {
		name += " link to " + target
	}

	_, err = fmt.Fprintf(w, "%s\t%s\t%s\t %s\n", e.Mode(), size, mtime, name)
	return err
}
