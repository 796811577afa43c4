package kernelfs

import "context"

// Callbacks is the low-level FUSE-compatible callback table the kernel side
// invokes per mounted filesystem. The kernel glue that wires these into a
// real mount is external to this package; anything implementing Callbacks —
// real or, in tests, a fake — is a valid collaborator.
//
// Every method takes a context so a cancelled/closed session can unwind an
// in-flight kernel callback without the kernel glue needing a separate
// cancellation channel.
type Callbacks interface {
	// Lookup resolves name inside parent. Concurrent lookups for distinct
	// (parent, name) pairs may run in parallel; lookups for the same pair are
	// not deduplicated.
	Lookup(ctx context.Context, parent Ino, name string) (EntryOut, Errno)

	// GetAttr returns the attributes of inode. GetAttr(RootIno) always
	// succeeds locally without an RPC.
	GetAttr(ctx context.Context, inode Ino) (EntryOut, Errno)

	// ReadDir returns a directory listing buffer windowed to
	// [offset, offset+size). Buffer construction/growth is this bridge's own
	// job (fsops); the kernel side only ever sees the windowed slice.
	ReadDir(ctx context.Context, inode Ino, size int, offset uint64) ([]byte, Errno)

	// Open opens inode with the given kernel open flags and returns an
	// opaque file handle.
	Open(ctx context.Context, inode Ino, flags uint32) (OpenOut, Errno)

	// Read reads up to size bytes at offset from the file identified by
	// (inode, handle).
	Read(ctx context.Context, inode Ino, handle Handle, offset uint64, size int) (ReadOut, Errno)

	// Release is fire-and-forget: the kernel does not wait for a reply. At
	// most one Release is emitted per successful Open.
	Release(ctx context.Context, inode Ino, handle Handle)
}

// StubCallbacks implements every Callbacks method as a failing stub, for
// embedding into an implementation that overrides only some of them. It has
// no methods beyond the Callbacks set. Every method returns EIO (there is no
// ENOSYS in this package's errno set) or does nothing.
type StubCallbacks struct{}

func (StubCallbacks) Lookup(context.Context, Ino, string) (EntryOut, Errno)  { return EntryOut{}, EIO }
func (StubCallbacks) GetAttr(context.Context, Ino) (EntryOut, Errno)         { return EntryOut{}, EIO }
func (StubCallbacks) ReadDir(context.Context, Ino, int, uint64) ([]byte, Errno) {
	return nil, EIO
}
func (StubCallbacks) Open(context.Context, Ino, uint32) (OpenOut, Errno) { return OpenOut{}, EIO }
func (StubCallbacks) Read(context.Context, Ino, Handle, uint64, int) (ReadOut, Errno) {
	return ReadOut{}, EIO
}
func (StubCallbacks) Release(context.Context, Ino, Handle) {}
