package archivist

import (
	"fmt"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// LookupCharset returns the encoding with the given IANA name or alias, e.g. "shift_jis", "cp437", or "latin1".
//
// UTF-8 returns a nil encoding, which ReaderOptions, WriterOptions, and EntryOptions treat as strict UTF-8.
func LookupCharset(name string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unknown charset %q: %w", name, err)
	}

	if canonical, _ := htmlindex.Name(enc); canonical == "utf-8" {
		return nil, nil
	}

	return enc, nil
}
