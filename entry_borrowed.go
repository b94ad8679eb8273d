package archivist

import (
	"github.com/nguyengg/archivist/internal/engine"
)

// BorrowedEntry is a view of the current header of a reader.
//
// The view is valid for exactly one header cycle: once the reader advances, closes, or is garbage collected, the view
// behaves like the zero BorrowedEntry, which reports FileTypeUnknown and zero values and whose setters return
// ErrStaleEntry. Use OwnedEntry.CopyFrom to keep the metadata longer.
type BorrowedEntry struct {
	entryView
}

var _ Entry = &BorrowedEntry{}

func newBorrowedEntry(a *engine.Archive, rec *engine.Entry, r *reader) *BorrowedEntry {
	return &BorrowedEntry{entryView: entryView{rec: rec, charset: r.charset, owner: a, gen: a.Generation()}}
}

// Valid reports whether the view still refers to the current header of its reader.
func (e *BorrowedEntry) Valid() bool {
	return e.record() != nil
}
