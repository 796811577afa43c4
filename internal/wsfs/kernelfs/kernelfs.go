// Package kernelfs declares the boundary this bridge shares with the kernel
// filesystem interface: the low-level callback table the kernel side
// invokes and the reply shapes the kernel side expects back. Mounting and
// dispatching into a real kernel are out of scope here — this package is
// only the stated interface, treated as an external collaborator.
//
// The method names and cancel-first signatures below are modeled on
// github.com/hanwen/go-fuse/v2/fuse.RawFileSystem, the same way a VM-backed
// hypervisor boundary is typically declared as a narrow interface rather
// than importing a concrete implementation.
package kernelfs

import "syscall"

// Ino is the inode identifier assigned by the remote provider. Inode 1 is
// always the root of a mounted filesystem.
type Ino uint64

// RootIno is the synthesized root inode of every Mountpoint.
const RootIno Ino = 1

// Handle is the opaque 64-bit file handle returned by a remote open reply
// and carried unchanged through read/release.
type Handle uint64

// EntryType is the kernel-facing file type.
type EntryType int

const (
	TypeFile EntryType = iota
	TypeDir
	TypeLink
)

func (t EntryType) String() string {
	switch t {
	case TypeDir:
		return "dir"
	case TypeLink:
		return "link"
	default:
		return "file"
	}
}

// ParseEntryType maps the wire string to an EntryType; unrecognized strings
// default to TypeFile.
func ParseEntryType(s string) EntryType {
	switch s {
	case "dir":
		return TypeDir
	case "link":
		return TypeLink
	default:
		return TypeFile
	}
}

// Errno is a POSIX error number translated to the kernel boundary. Every
// remote failure is mapped to one of these near the boundary and never
// leaks upward as a wire-level error.
type Errno int

const (
	OK     Errno = 0
	ENOENT       = Errno(syscall.ENOENT)
	EIO          = Errno(syscall.EIO)
	EACCES       = Errno(syscall.EACCES)
	EINVAL       = Errno(syscall.EINVAL)
)

// EntryOut is the reply to lookup/getattr.
type EntryOut struct {
	Inode Ino
	Mode  uint32
	Type  EntryType
	Size  uint64
}

// RootEntry is the synthesized attrs for inode 1: mode 0755, type dir, no
// RPC issued.
func RootEntry() EntryOut {
	return EntryOut{Inode: RootIno, Mode: 0755, Type: TypeDir}
}

// DirEntry is one readdir result entry.
type DirEntry struct {
	Name  string
	Inode Ino
}

// DirEntrySize returns the encoded size in bytes of a directory entry as the
// kernel reply buffer would lay it out: an 8-byte inode, a 2-byte name
// length, the name bytes, padded up to 8-byte alignment. fsops owns
// growing/writing the buffer; this package owns the size calculation the
// kernel side would otherwise provide.
func DirEntrySize(name string) int {
	raw := 8 + 2 + len(name)
	return align8(raw)
}

func align8(n int) int {
	if n%8 == 0 {
		return n
	}
	return n + (8 - n%8)
}

// OpenOut is the reply to open.
type OpenOut struct {
	Handle Handle
}

// ReadFormat is the byte-encoding used for a read reply's data field.
type ReadFormat string

const (
	FormatIdentity ReadFormat = "identity"
	FormatBase64   ReadFormat = "base64"
)

// ReadOut is the reply to read.
type ReadOut struct {
	Data   []byte
	Format ReadFormat
	Count  int
}
