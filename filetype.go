package archivist

import (
	"fmt"

	"github.com/nguyengg/archivist/internal/engine"
)

// FileType is the type of an archive member.
type FileType int

const (
	// FileTypeUnknown is reported when the type is unset, including by stale or default BorrowedEntry.
	FileTypeUnknown FileType = iota
	FileTypeBlockDevice
	FileTypeCharacterDevice
	FileTypeSymbolicLink
	FileTypeDirectory
	FileTypeNamedPipe
	FileTypeMount
	FileTypeRegularFile
	FileTypeSocket
)

func (t FileType) String() string {
	switch t {
	case FileTypeBlockDevice:
		return "block device"
	case FileTypeCharacterDevice:
		return "character device"
	case FileTypeSymbolicLink:
		return "symbolic link"
	case FileTypeDirectory:
		return "directory"
	case FileTypeNamedPipe:
		return "named pipe"
	case FileTypeMount:
		return "mount"
	case FileTypeRegularFile:
		return "regular file"
	case FileTypeSocket:
		return "socket"
	default:
		return "unknown"
	}
}

// fileTypeOf maps an engine type code. Codes outside the closed set are a broken invariant and panic.
func fileTypeOf(code uint32) FileType {
	switch code {
	case 0:
		return FileTypeUnknown
	case engine.IFBLK:
		return FileTypeBlockDevice
	case engine.IFCHR:
		return FileTypeCharacterDevice
	case engine.IFLNK:
		return FileTypeSymbolicLink
	case engine.IFDIR:
		return FileTypeDirectory
	case engine.IFIFO:
		return FileTypeNamedPipe
	case engine.IFMT:
		return FileTypeMount
	case engine.IFREG:
		return FileTypeRegularFile
	case engine.IFSOCK:
		return FileTypeSocket
	default:
		panic(fmt.Sprintf("undefined filetype %#o", code))
	}
}

// code returns the engine type code of t.
func (t FileType) code() uint32 {
	switch t {
	case FileTypeBlockDevice:
		return engine.IFBLK
	case FileTypeCharacterDevice:
		return engine.IFCHR
	case FileTypeSymbolicLink:
		return engine.IFLNK
	case FileTypeDirectory:
		return engine.IFDIR
	case FileTypeNamedPipe:
		return engine.IFIFO
	case FileTypeMount:
		return engine.IFMT
	case FileTypeRegularFile:
		return engine.IFREG
	case FileTypeSocket:
		return engine.IFSOCK
	default:
		return 0
	}
}
