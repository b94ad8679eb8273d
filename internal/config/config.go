package config

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/nguyengg/archivist"
)

// ReadConfig contains the reader settings from the [read] section.
type ReadConfig struct {
	// Formats are the formats to register, ReadFormatAll if the file lists none.
	Formats []archivist.ReadFormat
	// Filters are the filters to register, FilterAll if the file lists none.
	Filters []archivist.ReadFilter
	// Programs are external commands registered with archivist.FilterProgram.
	Programs []string
	// Charset is the IANA name of the charset of member names, empty for UTF-8.
	Charset string
	// BlockSize is the read size for local files, zero for the default.
	BlockSize int
}

// ForRead returns configuration for opening archives.
//
// An error is returned if the section names an unknown format or filter, or has an invalid block size.
func (l *Loader) ForRead() (c ReadConfig, err error) {
	c.Formats = []archivist.ReadFormat{archivist.ReadFormatAll}
	c.Filters = []archivist.ReadFilter{archivist.FilterAll}

	sec, err := l.file().GetSection("read")
	if err != nil {
		return c, nil
	}

	if names := sec.Key("formats").Strings(","); len(names) != 0 {
		c.Formats = c.Formats[:0]
		for _, name := range names {
			f, ok := archivist.ParseReadFormat(strings.ToLower(name))
			if !ok {
				return c, fmt.Errorf(`unknown format "%s"`, name)
			}
			c.Formats = append(c.Formats, f)
		}
	}

	if names := sec.Key("filters").Strings(","); len(names) != 0 {
		c.Filters = c.Filters[:0]
		for _, name := range names {
			f, ok := archivist.ParseReadFilter(strings.ToLower(name))
			if !ok {
				return c, fmt.Errorf(`unknown filter "%s"`, name)
			}
			c.Filters = append(c.Filters, f)
		}
	}

	c.Programs = sec.Key("programs").Strings(",")
	c.Charset = sec.Key("charset").String()

	if k := sec.Key("block-size"); k.String() != "" {
		if c.BlockSize, err = k.Int(); err != nil || c.BlockSize < 0 {
			return c, fmt.Errorf(`invalid block-size "%s"`, k.String())
		}
	}

	return c, nil
}

// ForRead calls Loader.ForRead on the DefaultLoader instance.
func ForRead() (ReadConfig, error) {
	return DefaultLoader.ForRead()
}

// BucketConfig contains configuration settings for a specific bucket.
type BucketConfig struct {
	Bucket              string
	AWSProfile          string
	ExpectedBucketOwner *string
}

// ForBucket returns configuration for a specific bucket from its [s3://bucket] section.
func (l *Loader) ForBucket(bucket string) (c BucketConfig) {
	c.Bucket = bucket

	sec, err := l.file().GetSection("s3://" + bucket)
	if err != nil {
		return c
	}

	c.AWSProfile = sec.Key("aws-profile").String()
	if v := sec.Key("expected-bucket-owner").String(); v != "" {
		c.ExpectedBucketOwner = aws.String(v)
	}

	return
}

// ForBucket calls Loader.ForBucket on the DefaultLoader instance.
func ForBucket(bucket string) (c BucketConfig) {
	return DefaultLoader.ForBucket(bucket)
}
