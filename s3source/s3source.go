// Package s3source exposes an S3 object as a seekable byte source for archivist.ReaderBuilder.OpenSeekable.
//
// Seeking is free; every Read that runs out of buffered data makes one ranged GetObject call. Formats that need random
// access (ZIP, 7-Zip, ISO9660) can therefore be listed or extracted without downloading the whole object first.
package s3source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Client abstracts the S3 APIs that are needed to implement ReadSeeker.
type Client interface {
	GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(context.Context, *s3.HeadObjectInput, ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// DefaultBufferSize is the default value for Options.BufferSize.
const DefaultBufferSize = 1024 * 1024

// Options customises New.
type Options struct {
	// BufferSize is the minimum number of bytes to request with every GetObject call.
	//
	// By default, DefaultBufferSize is used so that the many small reads an archive format makes do not each turn
	// into their own GetObject call. Pass zero or a negative value to request only what each Read asks for.
	BufferSize int

	// ExpectedBucketOwner is passed to every GetObject and HeadObject call if not empty.
	ExpectedBucketOwner string
}

// ErrSeekBeforeFirstByte is returned by Seek if the resulting offset would be negative.
var ErrSeekBeforeFirstByte = errors.New("seek ends up before first byte")

// ReadSeeker uses ranged GetObject to implement io.ReadSeeker and io.ReaderAt.
//
// The zero value is not usable; use New. ReadSeeker is not safe for concurrent use except ReadAt.
type ReadSeeker struct {
	ctx         context.Context
	client      Client
	bucket, key string
	owner       *string
	bufferSize  int

	off, size int64
	// buf holds the bytes starting at off that have been fetched but not yet returned by Read.
	buf bytes.Buffer
}

// New makes a HeadObject call to determine the size of the object and returns a ReadSeeker positioned at its start.
//
// ctx is used for every subsequent GetObject call.
func New(ctx context.Context, client Client, bucket, key string, optFns ...func(*Options)) (*ReadSeeker, error) {
	opts := &Options{BufferSize: DefaultBufferSize}
	for _, fn := range optFns {
		fn(opts)
	}

	r := &ReadSeeker{
		ctx:        ctx,
		client:     client,
		bucket:     bucket,
		key:        key,
		bufferSize: opts.BufferSize,
	}
	if opts.ExpectedBucketOwner != "" {
		r.owner = aws.String(opts.ExpectedBucketOwner)
	}

	headObjectOutput, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket:              aws.String(bucket),
		Key:                 aws.String(key),
		ExpectedBucketOwner: r.owner,
	})
	if err != nil {
		return nil, fmt.Errorf("determine size of s3://%s/%s error: %w", bucket, key, err)
	}

	r.size = aws.ToInt64(headObjectOutput.ContentLength)
	return r, nil
}

// Size returns the size of the S3 object that was determined from the initial HeadObject.
func (r *ReadSeeker) Size() int64 {
	return r.size
}

func (r *ReadSeeker) Read(p []byte) (n int, err error) {
	m := len(p)
	if m == 0 {
		return 0, nil
	}

	if r.buf.Len() == 0 {
		if r.off >= r.size {
			return 0, io.EOF
		}

		// the next GetObject call fetches at least bufferSize bytes.
		rangeEnd := min(r.size, r.off+int64(max(m, r.bufferSize))) - 1
		if err = r.fetch(&r.buf, r.off, rangeEnd); err != nil {
			r.buf.Reset()
			return 0, err
		}
	}

	n, _ = r.buf.Read(p)
	r.off += int64(n)
	return n, nil
}

func (r *ReadSeeker) ReadAt(p []byte, off int64) (n int, err error) {
	m := int64(len(p))
	switch {
	case off < 0:
		return 0, ErrSeekBeforeFirstByte
	case m == 0:
		return 0, nil
	case off >= r.size:
		return 0, io.EOF
	}

	rangeEnd := min(r.size, off+m) - 1
	buf := bytes.NewBuffer(p[:0])
	if err = r.fetch(buf, off, rangeEnd); err != nil {
		return 0, err
	}

	// bytes.Buffer may have reallocated if the response was longer than asked.
	n = copy(p, buf.Bytes())
	if int64(n) < m {
		return n, io.EOF
	}

	return n, nil
}

func (r *ReadSeeker) Seek(offset int64, whence int) (int64, error) {
	var off int64
	switch whence {
	case io.SeekStart:
		off = offset
	case io.SeekCurrent:
		off = r.off + offset
	case io.SeekEnd:
		off = r.size + offset
	default:
		return r.off, fmt.Errorf("invalid whence %d", whence)
	}

	if off < 0 {
		return r.off, ErrSeekBeforeFirstByte
	}

	// skipping forward within the buffered bytes avoids a GetObject call.
	if d := off - r.off; d >= 0 && d <= int64(r.buf.Len()) {
		r.buf.Next(int(d))
	} else {
		r.buf.Reset()
	}

	r.off = off
	return off, nil
}

// fetch appends bytes [start, end] of the object to buf.
func (r *ReadSeeker) fetch(buf *bytes.Buffer, start, end int64) error {
	getObjectOutput, err := r.client.GetObject(r.ctx, &s3.GetObjectInput{
		Bucket:              aws.String(r.bucket),
		Key:                 aws.String(r.key),
		Range:               aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
		ExpectedBucketOwner: r.owner,
	})
	if err != nil {
		return fmt.Errorf("get s3://%s/%s range %d-%d error: %w", r.bucket, r.key, start, end, err)
	}

	_, err = buf.ReadFrom(getObjectOutput.Body)
	if _ = getObjectOutput.Body.Close(); err != nil {
		return fmt.Errorf("read s3://%s/%s range %d-%d error: %w", r.bucket, r.key, start, end, err)
	}

	return nil
}

// ParseURI parses an S3 URI in the form "s3://bucket/key".
//
// The key must not be empty and is returned without its leading slash.
func ParseURI(rawURI string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(rawURI, "s3://")
	if !ok {
		return "", "", fmt.Errorf(`"%s" is not an S3 URI`, rawURI)
	}

	bucket, key, _ = strings.Cut(rest, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf(`"%s" is missing bucket or key`, rawURI)
	}

	return bucket, key, nil
}

// IsURI returns true if name looks like an S3 URI.
func IsURI(name string) bool {
	return strings.HasPrefix(name, "s3://")
}
