package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dustin/go-humanize"
	"github.com/nguyengg/archivist"
	"github.com/nguyengg/archivist/internal/config"
	"github.com/nguyengg/archivist/s3source"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// stdin is the source name that reads the archive from standard input.
const stdin = "-"

// env is shared by every command and completed by the parser's CommandHandler before the command runs.
type env struct {
	logger *zap.Logger
	loader *config.Loader
	fs     afero.Fs
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	// spool downloads S3 sources to a temporary file instead of reading them with ranged GetObject calls.
	spool bool
	// interactive is true if stderr is a terminal that can show progress bars.
	interactive bool
}

// source is an opened archive.
type source struct {
	archivist.Reader

	// path is the local file backing the reader, empty for standard input and seekable S3 sources.
	path string
	// seekable is true for seekable S3 sources.
	seekable bool
	// cleanup releases whatever backs the reader, e.g. a spooled temporary file.
	cleanup func()
}

// rewindable returns true if env.rewind can read s again from the start.
func (s *source) rewindable() bool {
	return s.path != "" || s.seekable
}

func (s *source) Close() (err error) {
	if s.Reader != nil {
		err = s.Reader.Close()
	}
	if s.cleanup != nil {
		s.cleanup()
	}
	return err
}

// open opens the archive at name which is either a local path, an S3 URI, or "-" for standard input.
func (e *env) open(ctx context.Context, name string, logger *zap.Logger) (*source, error) {
	b, err := e.newReaderBuilder(logger)
	if err != nil {
		return nil, err
	}
	defer b.Close()

	switch {
	case name == stdin:
		r, err := b.OpenStream(io.NopCloser(e.stdin))
		if err != nil {
			return nil, fmt.Errorf("open standard input error: %w", err)
		}
		return &source{Reader: r}, nil

	case s3source.IsURI(name):
		bucket, key, err := s3source.ParseURI(name)
		if err != nil {
			return nil, err
		}

		if e.spool {
			return e.openSpooled(ctx, b, bucket, key, logger)
		}

		client, err := e.loader.NewS3ClientForBucket(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("create s3 client error: %w", err)
		}

		rs, err := s3source.New(ctx, client, bucket, key, func(opts *s3source.Options) {
			opts.ExpectedBucketOwner = aws.ToString(e.loader.ForBucket(bucket).ExpectedBucketOwner)
		})
		if err != nil {
			return nil, err
		}

		r, err := b.OpenSeekable(rs)
		if err != nil {
			return nil, fmt.Errorf(`open "%s" error: %w`, name, err)
		}
		return &source{Reader: r, seekable: true}, nil

	default:
		r, err := b.OpenFile(name)
		if err != nil {
			return nil, fmt.Errorf(`open "%s" error: %w`, name, err)
		}
		return &source{Reader: r, path: name}, nil
	}
}

// rewind replaces the reader of s with a new one positioned at the first member.
//
// Only sources backed by a local file or a seekable S3 object can be rewound; see source.rewindable.
func (e *env) rewind(s *source, logger *zap.Logger) (err error) {
	var rs io.ReadSeeker
	switch r := s.Reader.(type) {
	case *archivist.StreamReader:
		var ok bool
		if rs, ok = r.IntoInner().(io.ReadSeeker); !ok {
			return fmt.Errorf("source is not seekable")
		}
		if _, err = rs.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind error: %w", err)
		}
	default:
		if err = r.Close(); err != nil {
			return err
		}
	}
	s.Reader = nil

	b, err := e.newReaderBuilder(logger)
	if err != nil {
		return err
	}
	defer b.Close()

	var r archivist.Reader
	if rs != nil {
		r, err = b.OpenSeekable(rs)
	} else {
		r, err = b.OpenFile(s.path)
	}
	if err != nil {
		return fmt.Errorf("reopen error: %w", err)
	}

	s.Reader = r
	return nil
}

// newReaderBuilder registers the formats and filters from the [read] section of the configuration file.
func (e *env) newReaderBuilder(logger *zap.Logger) (*archivist.ReaderBuilder, error) {
	rc, err := e.loader.ForRead()
	if err != nil {
		return nil, fmt.Errorf("read configuration error: %w", err)
	}

	charset, err := archivist.LookupCharset(rc.Charset)
	if rc.Charset != "" && err != nil {
		return nil, fmt.Errorf("read configuration error: %w", err)
	}

	b, err := archivist.NewReaderBuilder(func(opts *archivist.ReaderOptions) {
		opts.Logger = logger
		opts.Charset = charset
		opts.BlockSize = rc.BlockSize
	})
	if err != nil {
		return nil, err
	}

	for _, f := range rc.Filters {
		if err = b.SupportFilter(f); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf(`register filter "%s" error: %w`, f, err)
		}
	}
	for _, cmd := range rc.Programs {
		if err = b.SupportFilter(archivist.FilterProgram(cmd)); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf(`register program "%s" error: %w`, cmd, err)
		}
	}
	for _, f := range rc.Formats {
		if err = b.SupportFormat(f); err != nil {
			_ = b.Close()
			return nil, fmt.Errorf(`register format "%s" error: %w`, f, err)
		}
	}

	return b, nil
}

// openSpooled downloads the S3 object to a temporary file with the transfer manager and opens the file.
func (e *env) openSpooled(ctx context.Context, b *archivist.ReaderBuilder, bucket, key string, logger *zap.Logger) (*source, error) {
	client, err := e.loader.NewS3ClientForBucket(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("create s3 client error: %w", err)
	}

	f, err := os.CreateTemp("", "archivist-*")
	if err != nil {
		return nil, fmt.Errorf("create temporary file error: %w", err)
	}
	name := f.Name()
	cleanup := func() {
		_ = os.Remove(name)
	}

	downloader := manager.NewDownloader(&partLogger{DownloadAPIClient: client, logger: logger})
	n, err := downloader.Download(ctx, f, &s3.GetObjectInput{
		Bucket:              aws.String(bucket),
		Key:                 aws.String(key),
		ExpectedBucketOwner: e.loader.ForBucket(bucket).ExpectedBucketOwner,
	})
	if _ = f.Close(); err != nil {
		cleanup()
		return nil, fmt.Errorf("download s3://%s/%s error: %w", bucket, key, err)
	}
	logger.Info("downloaded", zap.String("size", humanize.IBytes(uint64(n))))

	r, err := b.OpenFile(name)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("open s3://%s/%s error: %w", bucket, key, err)
	}

	return &source{Reader: r, path: name, cleanup: cleanup}, nil
}

// partLogger logs every part that the transfer manager downloads successfully.
//
// GetObject may be called from any of the goroutines that download parts in parallel.
type partLogger struct {
	manager.DownloadAPIClient
	logger *zap.Logger
	n      atomic.Int32
}

func (l *partLogger) GetObject(ctx context.Context, input *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	output, err := l.DownloadAPIClient.GetObject(ctx, input, optFns...)
	if err == nil {
		l.logger.Debug("downloaded part", zap.Int32("parts", l.n.Add(1)), zap.Stringp("range", input.Range))
	}

	return output, err
}

var _ manager.DownloadAPIClient = &partLogger{}
