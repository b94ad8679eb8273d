package archivist

import (
	"io/fs"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nguyengg/archivist/internal/engine"
	"golang.org/x/text/encoding"
)

// Entry is the metadata of one archive member.
//
// Text getters decode the raw bytes recorded in the archive as UTF-8, or through the charset configured on the reader
// or entry. Their Raw variants never fail. Setters reject values that contain NUL bytes or that cannot be encoded in
// the charset with *EncodingError.
//
// Entry is implemented by *OwnedEntry and *BorrowedEntry only.
type Entry interface {
	// FileType returns the type of the member. It panics if the engine reports a type outside the closed set.
	FileType() FileType
	// Pathname returns the path of the member.
	Pathname() (string, error)
	// PathnameRaw returns the path of the member as recorded in the archive, or nil if unset.
	PathnameRaw() []byte
	// Hardlink returns the hardlink target. ok is false if the member is not a hardlink.
	Hardlink() (target string, ok bool, err error)
	// HardlinkRaw returns the raw hardlink target, or nil if the member is not a hardlink.
	HardlinkRaw() []byte
	// Symlink returns the symlink target. ok is false if the member is not a symlink.
	Symlink() (target string, ok bool, err error)
	// SymlinkRaw returns the raw symlink target, or nil if the member is not a symlink.
	SymlinkRaw() []byte
	// Size returns the size of the payload, or 0 if it is unknown.
	Size() int64
	// Mode returns the type and permission bits as an fs.FileMode.
	Mode() fs.FileMode
	// ModTime returns the modification time, or the zero time if unset.
	ModTime() time.Time

	// SetFileType sets the type of the member.
	SetFileType(t FileType) error
	// SetPathname sets the path of the member.
	SetPathname(name string) error
	// SetLink sets the symlink target if the member is a symlink, the hardlink target otherwise.
	SetLink(target string) error

	record() *engine.Entry
}

// entryView implements the accessors shared by OwnedEntry and BorrowedEntry.
type entryView struct {
	rec     *engine.Entry
	charset encoding.Encoding

	// owner is the archive whose current header rec is; nil for owned entries.
	owner *engine.Archive
	gen   uint64
}

// record returns the engine entry, or nil if there is none or if the header cycle it belongs to has ended.
func (v *entryView) record() *engine.Entry {
	if v.rec == nil {
		return nil
	}

	if v.owner != nil && (v.owner.Freed() || v.owner.Generation() != v.gen) {
		return nil
	}

	return v.rec
}

func (v *entryView) FileType() FileType {
	if e := v.record(); e != nil {
		return fileTypeOf(e.Filetype())
	}

	return FileTypeUnknown
}

func (v *entryView) Pathname() (string, error) {
	return v.decode("pathname", v.PathnameRaw())
}

func (v *entryView) PathnameRaw() []byte {
	if e := v.record(); e != nil {
		return e.Pathname()
	}

	return nil
}

func (v *entryView) Hardlink() (string, bool, error) {
	raw := v.HardlinkRaw()
	if raw == nil {
		return "", false, nil
	}

	s, err := v.decode("hardlink", raw)
	return s, true, err
}

func (v *entryView) HardlinkRaw() []byte {
	if e := v.record(); e != nil {
		return e.Hardlink()
	}

	return nil
}

func (v *entryView) Symlink() (string, bool, error) {
	raw := v.SymlinkRaw()
	if raw == nil {
		return "", false, nil
	}

	s, err := v.decode("symlink", raw)
	return s, true, err
}

func (v *entryView) SymlinkRaw() []byte {
	if e := v.record(); e != nil {
		return e.Symlink()
	}

	return nil
}

func (v *entryView) Size() int64 {
	if e := v.record(); e != nil {
		return e.Size()
	}

	return 0
}

func (v *entryView) Mode() fs.FileMode {
	mode := fs.FileMode(0)
	e := v.record()
	if e == nil {
		return mode
	}

	mode = fs.FileMode(e.Perm() & 0o777)
	switch fileTypeOf(e.Filetype()) {
	case FileTypeDirectory:
		mode |= fs.ModeDir
	case FileTypeSymbolicLink:
		mode |= fs.ModeSymlink
	case FileTypeNamedPipe:
		mode |= fs.ModeNamedPipe
	case FileTypeSocket:
		mode |= fs.ModeSocket
	case FileTypeCharacterDevice:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case FileTypeBlockDevice:
		mode |= fs.ModeDevice
	case FileTypeMount:
		mode |= fs.ModeIrregular
	}

	return mode
}

func (v *entryView) ModTime() time.Time {
	if e := v.record(); e != nil {
		return e.Mtime()
	}

	return time.Time{}
}

func (v *entryView) SetFileType(t FileType) error {
	e := v.record()
	if e == nil {
		return ErrStaleEntry
	}

	e.SetFiletype(t.code())
	return nil
}

func (v *entryView) SetPathname(name string) error {
	e := v.record()
	if e == nil {
		return ErrStaleEntry
	}

	raw, err := v.encode("pathname", name)
	if err != nil {
		return err
	}

	e.SetPathname(raw)
	return nil
}

func (v *entryView) SetLink(target string) error {
	e := v.record()
	if e == nil {
		return ErrStaleEntry
	}

	field := "hardlink"
	if e.Filetype() == engine.IFLNK {
		field = "symlink"
	}

	raw, err := v.encode(field, target)
	if err != nil {
		return err
	}

	e.SetLink(raw)
	return nil
}

// SetSymlink sets the symlink target regardless of the file type.
func (v *entryView) SetSymlink(target string) error {
	e := v.record()
	if e == nil {
		return ErrStaleEntry
	}

	raw, err := v.encode("symlink", target)
	if err != nil {
		return err
	}

	e.SetSymlink(raw)
	return nil
}

// SetHardlink sets the hardlink target regardless of the file type.
func (v *entryView) SetHardlink(target string) error {
	e := v.record()
	if e == nil {
		return ErrStaleEntry
	}

	raw, err := v.encode("hardlink", target)
	if err != nil {
		return err
	}

	e.SetHardlink(raw)
	return nil
}

// SetSize sets the size of the payload. Writers require it for regular files.
func (v *entryView) SetSize(n int64) error {
	e := v.record()
	if e == nil {
		return ErrStaleEntry
	}

	e.SetSize(n)
	return nil
}

// SetPerm sets the permission bits.
func (v *entryView) SetPerm(perm fs.FileMode) error {
	e := v.record()
	if e == nil {
		return ErrStaleEntry
	}

	e.SetPerm(uint32(perm.Perm()))
	return nil
}

// SetModTime sets the modification time.
func (v *entryView) SetModTime(t time.Time) error {
	e := v.record()
	if e == nil {
		return ErrStaleEntry
	}

	e.SetMtime(t)
	return nil
}

func (v *entryView) decode(field string, raw []byte) (string, error) {
	if raw == nil {
		return "", nil
	}

	if v.charset != nil {
		b, err := v.charset.NewDecoder().Bytes(raw)
		if err != nil {
			return "", &EncodingError{Field: field, Value: clone(raw), Err: err}
		}

		return string(b), nil
	}

	if !utf8.Valid(raw) {
		return "", &EncodingError{Field: field, Value: clone(raw), Err: errInvalidUTF8}
	}

	return string(raw), nil
}

func (v *entryView) encode(field, s string) ([]byte, error) {
	if strings.IndexByte(s, 0) >= 0 {
		return nil, &EncodingError{Field: field, Value: []byte(s), Err: errNUL}
	}

	if v.charset != nil {
		b, err := v.charset.NewEncoder().Bytes([]byte(s))
		if err != nil {
			return nil, &EncodingError{Field: field, Value: []byte(s), Err: err}
		}

		return b, nil
	}

	if !utf8.ValidString(s) {
		return nil, &EncodingError{Field: field, Value: []byte(s), Err: errInvalidUTF8}
	}

	return []byte(s), nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
