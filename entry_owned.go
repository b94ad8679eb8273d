package archivist

import (
	"runtime"

	"github.com/nguyengg/archivist/internal/engine"
	"golang.org/x/text/encoding"
)

// OwnedEntry is an entry allocated independently of any archive, typically populated with setters and passed to
// Writer.WriteHeader.
//
// Call Free once the entry is no longer needed; entries that become unreachable are freed by a runtime cleanup.
type OwnedEntry struct {
	entryView
	cleanup runtime.Cleanup
}

var _ Entry = &OwnedEntry{}

// EntryOptions customises NewOwnedEntry.
type EntryOptions struct {
	// Charset is used to encode text set on the entry and decode text read from it. Defaults to UTF-8.
	Charset encoding.Encoding
}

// NewOwnedEntry allocates a new entry. It returns *AllocationError if the engine could not allocate one.
func NewOwnedEntry(optFns ...func(*EntryOptions)) (*OwnedEntry, error) {
	opts := &EntryOptions{}
	for _, fn := range optFns {
		fn(opts)
	}

	rec := engine.EntryNew()
	if rec == nil {
		return nil, &AllocationError{What: "entry"}
	}

	e := &OwnedEntry{entryView: entryView{rec: rec, charset: opts.Charset}}
	e.cleanup = runtime.AddCleanup(e, (*engine.Entry).Free, rec)
	return e, nil
}

// MustNewOwnedEntry is a variant of NewOwnedEntry that panics on error.
func MustNewOwnedEntry(optFns ...func(*EntryOptions)) *OwnedEntry {
	e, err := NewOwnedEntry(optFns...)
	if err != nil {
		panic(err)
	}

	return e
}

// Free releases the entry. Subsequent calls are no-ops, and the entry then behaves like an empty one.
func (e *OwnedEntry) Free() {
	if e.rec == nil {
		return
	}

	e.cleanup.Stop()
	e.rec.Free()
	e.rec = nil
}

// CopyFrom replaces every field of e with those of src, e.g. to keep the metadata of a BorrowedEntry beyond its
// header cycle.
func (e *OwnedEntry) CopyFrom(src Entry) error {
	dst := e.record()
	if dst == nil {
		return ErrStaleEntry
	}

	rec := src.record()
	if rec == nil {
		return ErrStaleEntry
	}

	dst.CopyFrom(rec)
	return nil
}
