// Package archivist reads and writes archives (tar, ZIP, 7-Zip, RAR, cpio, ar, ISO 9660) that may be compressed
// (gzip, bzip2, xz, lzma, lzip, zstd, lz4, brotli, snappy, or any external program).
//
// Readers are created by a ReaderBuilder, which registers the formats and filters to recognise, then opens exactly
// one source: a file, a file descriptor, an io.Reader, or an io.ReadSeeker. Members are visited with
// Reader.NextHeader or Reader.Entries, and their payload is read with Reader.Read, Reader.ReadAll, or
// Reader.ReadBlock:
//
//	r, err := archivist.OpenFile("backup.tar.gz")
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//
//	for e, err := range r.Entries() {
//		if err != nil {
//			return err
//		}
//
//		name, _ := e.Pathname()
//		fmt.Println(name, e.FileType(), e.Size())
//	}
//
// The BorrowedEntry returned for each member is only valid until the next header is read; copy it into an OwnedEntry
// to keep it longer. Writers are created by a WriterBuilder and add members described by OwnedEntry values.
//
// Failures reported by the archive engine are returned as *SystemError carrying the engine's error number and
// message. Readers and writers must be closed; those that are garbage collected without Close are still released,
// but their close errors are lost.
package archivist

import (
	"io"
)

// OpenFile opens the named archive with every filter and format registered, except the raw format.
func OpenFile(name string, optFns ...func(*ReaderOptions)) (*FileReader, error) {
	b, err := newDefaultReaderBuilder(optFns...)
	if err != nil {
		return nil, err
	}

	return b.OpenFile(name)
}

// OpenStream opens the archive read from src with every filter and format registered, except the raw format.
//
// The returned reader owns src; see ReaderBuilder.OpenStream.
func OpenStream(src io.Reader, optFns ...func(*ReaderOptions)) (*StreamReader, error) {
	b, err := newDefaultReaderBuilder(optFns...)
	if err != nil {
		return nil, err
	}

	return b.OpenStream(src)
}

func newDefaultReaderBuilder(optFns ...func(*ReaderOptions)) (*ReaderBuilder, error) {
	b, err := NewReaderBuilder(optFns...)
	if err != nil {
		return nil, err
	}

	if err = b.SupportFilter(FilterAll); err == nil {
		err = b.SupportFormat(ReadFormatAll)
	}
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	return b, nil
}
