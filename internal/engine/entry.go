package engine

import (
	"io/fs"
	"time"
)

// File type codes stored in Entry. These match the POSIX st_mode type bits.
const (
	IFMT   = 0o170000
	IFREG  = 0o100000
	IFLNK  = 0o120000
	IFSOCK = 0o140000
	IFCHR  = 0o020000
	IFBLK  = 0o060000
	IFDIR  = 0o040000
	IFIFO  = 0o010000
)

// Entry is the metadata record of one archive member.
//
// Text fields are raw bytes; a nil slice means the field is unset. The record attached to a read-mode archive is
// reused across NextHeader calls.
type Entry struct {
	pathname []byte
	symlink  []byte
	hardlink []byte

	filetype uint32
	perm     uint32
	size     int64
	sizeSet  bool
	mtime    time.Time
	uid, gid int64
	uname    []byte
	gname    []byte

	owned bool
	freed bool
}

// EntryNew allocates a standalone entry, or returns nil if the allocation limit has been reached.
func EntryNew() *Entry {
	if !allocate(&liveEntries) {
		return nil
	}

	return &Entry{owned: true}
}

// Free releases an entry returned by EntryNew. Freeing twice, or freeing an archive's own record, is a no-op.
func (e *Entry) Free() {
	if e == nil || !e.owned || e.freed {
		return
	}

	e.freed = true
	e.Clear()
	liveEntries.Add(-1)
}

// Clear resets every field.
func (e *Entry) Clear() {
	owned, freed := e.owned, e.freed
	*e = Entry{owned: owned, freed: freed}
}

// Pathname returns the raw pathname, or nil if unset.
func (e *Entry) Pathname() []byte {
	return e.pathname
}

// SetPathname copies name into the entry. A nil name unsets the pathname.
func (e *Entry) SetPathname(name []byte) {
	e.pathname = clone(name)
}

// Symlink returns the raw symlink target, or nil if the entry is not a symlink.
func (e *Entry) Symlink() []byte {
	return e.symlink
}

// SetSymlink copies target into the entry and clears any hardlink target.
func (e *Entry) SetSymlink(target []byte) {
	e.symlink = clone(target)
	if target != nil {
		e.hardlink = nil
	}
}

// Hardlink returns the raw hardlink target, or nil if the entry is not a hardlink.
func (e *Entry) Hardlink() []byte {
	return e.hardlink
}

// SetHardlink copies target into the entry and clears any symlink target.
func (e *Entry) SetHardlink(target []byte) {
	e.hardlink = clone(target)
	if target != nil {
		e.symlink = nil
	}
}

// SetLink sets the symlink target if the entry is a symlink, the hardlink target otherwise.
func (e *Entry) SetLink(target []byte) {
	if e.filetype == IFLNK {
		e.SetSymlink(target)
	} else {
		e.SetHardlink(target)
	}
}

// Filetype returns one of the IF* codes, or 0 if unset.
func (e *Entry) Filetype() uint32 {
	return e.filetype
}

// SetFiletype stores the type bits of code.
func (e *Entry) SetFiletype(code uint32) {
	e.filetype = code & IFMT
}

// Perm returns the permission bits.
func (e *Entry) Perm() uint32 {
	return e.perm
}

// SetPerm stores the permission bits of perm.
func (e *Entry) SetPerm(perm uint32) {
	e.perm = perm & 0o7777
}

// Mode returns the type and permission bits combined.
func (e *Entry) Mode() uint32 {
	return e.filetype | e.perm
}

// Size returns the payload size, or 0 if it is unknown.
func (e *Entry) Size() int64 {
	if !e.sizeSet {
		return 0
	}

	return e.size
}

// SizeIsSet reports whether the payload size is known.
func (e *Entry) SizeIsSet() bool {
	return e.sizeSet
}

// SetSize records the payload size.
func (e *Entry) SetSize(n int64) {
	e.size, e.sizeSet = n, true
}

// UnsetSize marks the payload size as unknown.
func (e *Entry) UnsetSize() {
	e.size, e.sizeSet = 0, false
}

// Mtime returns the modification time, or the zero time if unset.
func (e *Entry) Mtime() time.Time {
	return e.mtime
}

// SetMtime records the modification time.
func (e *Entry) SetMtime(t time.Time) {
	e.mtime = t
}

// Uid returns the owner id.
func (e *Entry) Uid() int64 {
	return e.uid
}

// Gid returns the group id.
func (e *Entry) Gid() int64 {
	return e.gid
}

// SetOwner records owner and group ids and names. Nil names are left unset.
func (e *Entry) SetOwner(uid, gid int64, uname, gname []byte) {
	e.uid, e.gid = uid, gid
	e.uname, e.gname = clone(uname), clone(gname)
}

// Uname returns the raw owner name, or nil if unset.
func (e *Entry) Uname() []byte {
	return e.uname
}

// Gname returns the raw group name, or nil if unset.
func (e *Entry) Gname() []byte {
	return e.gname
}

// CopyFrom copies every field of src except ownership bookkeeping.
func (e *Entry) CopyFrom(src *Entry) {
	owned, freed := e.owned, e.freed
	*e = *src
	e.owned, e.freed = owned, freed
	e.pathname = clone(src.pathname)
	e.symlink = clone(src.symlink)
	e.hardlink = clone(src.hardlink)
	e.uname = clone(src.uname)
	e.gname = clone(src.gname)
}

// setFileMode fills type and permission bits from an fs.FileMode.
func (e *Entry) setFileMode(mode fs.FileMode) {
	switch {
	case mode.IsDir():
		e.filetype = IFDIR
	case mode&fs.ModeSymlink != 0:
		e.filetype = IFLNK
	case mode&fs.ModeNamedPipe != 0:
		e.filetype = IFIFO
	case mode&fs.ModeSocket != 0:
		e.filetype = IFSOCK
	case mode&fs.ModeCharDevice != 0:
		e.filetype = IFCHR
	case mode&fs.ModeDevice != 0:
		e.filetype = IFBLK
	default:
		e.filetype = IFREG
	}

	e.perm = uint32(mode.Perm())
	if mode&fs.ModeSetuid != 0 {
		e.perm |= 0o4000
	}
	if mode&fs.ModeSetgid != 0 {
		e.perm |= 0o2000
	}
	if mode&fs.ModeSticky != 0 {
		e.perm |= 0o1000
	}
}

// fileMode converts the type and permission bits into an fs.FileMode.
func (e *Entry) fileMode() fs.FileMode {
	mode := fs.FileMode(e.perm & 0o777)
	switch e.filetype {
	case IFDIR:
		mode |= fs.ModeDir
	case IFLNK:
		mode |= fs.ModeSymlink
	case IFIFO:
		mode |= fs.ModeNamedPipe
	case IFSOCK:
		mode |= fs.ModeSocket
	case IFCHR:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case IFBLK:
		mode |= fs.ModeDevice
	}

	if e.perm&0o4000 != 0 {
		mode |= fs.ModeSetuid
	}
	if e.perm&0o2000 != 0 {
		mode |= fs.ModeSetgid
	}
	if e.perm&0o1000 != 0 {
		mode |= fs.ModeSticky
	}

	return mode
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}

	return append(make([]byte, 0, len(b)), b...)
}
