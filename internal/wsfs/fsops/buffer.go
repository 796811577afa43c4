package fsops

import (
	"encoding/binary"

	"github.com/webfuse/adapter/internal/wsfs/kernelfs"
)

// dirBuffer is the growable readdir buffer: starts at 1024 bytes, doubles on
// overflow, entries are appended at a cursor, and the final reply is a
// windowed slice of it.
type dirBuffer struct {
	buf    []byte
	cursor int
}

const dirBufferInitialSize = 1024

func newDirBuffer() *dirBuffer {
	return &dirBuffer{buf: make([]byte, dirBufferInitialSize)}
}

// append writes one entry at the cursor, growing (doubling) the buffer until
// it fits.
func (d *dirBuffer) append(e kernelfs.DirEntry) {
	size := kernelfs.DirEntrySize(e.Name)
	for d.cursor+size > len(d.buf) {
		d.grow()
	}
	binary.LittleEndian.PutUint64(d.buf[d.cursor:], uint64(e.Inode))
	binary.LittleEndian.PutUint16(d.buf[d.cursor+8:], uint16(len(e.Name)))
	copy(d.buf[d.cursor+10:], e.Name)
	d.cursor += size
}

func (d *dirBuffer) grow() {
	d.buf = append(d.buf, make([]byte, len(d.buf))...)
}

// window returns the slice [offset, min(end, offset+size)) of the written
// portion of the buffer. If offset is past the end, the result is empty
// (EOF).
func (d *dirBuffer) window(offset uint64, size int) []byte {
	end := d.cursor
	if int(offset) >= end {
		return nil
	}
	hi := int(offset) + size
	if hi > end {
		hi = end
	}
	return d.buf[offset:hi]
}
