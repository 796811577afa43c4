// Package fsops implements the filesystem operation layer: it turns each
// kernel low-level callback into a JSON-RPC call over a session's proxy and
// marshals the reply back into the kernel's expected reply shape, one
// JSON-RPC method per kernel callback.
package fsops

import (
	"context"
	"encoding/base64"
	"log"

	"github.com/dustin/go-humanize"

	"github.com/webfuse/adapter/internal/wsfs/jsonview"
	"github.com/webfuse/adapter/internal/wsfs/kernelfs"
	"github.com/webfuse/adapter/internal/wsfs/rpcproxy"
	"github.com/webfuse/adapter/internal/wsfs/wire"
)

// Bridge implements kernelfs.Callbacks for one mounted filesystem, backed by
// a single session's JSON-RPC proxy.
type Bridge struct {
	fsName   string
	proxy    *rpcproxy.Proxy
	logLabel string
}

// New creates a Bridge that issues RPCs for filesystem fsName through proxy.
func New(fsName string, proxy *rpcproxy.Proxy) *Bridge {
	return &Bridge{fsName: fsName, proxy: proxy}
}

// SetLogLabel sets a prefix used in diagnostic log lines.
func (b *Bridge) SetLogLabel(label string) {
	b.logLabel = label
}

// invoke blocks the calling goroutine until the RPC completes or ctx is
// done, translating the proxy's callback-based Invoke into the
// call-then-wait shape each Callbacks method needs. This mirrors
// internal/lifecycle/demuxer.go's Call, which blocks on a response channel
// guarded by a ctx.Done() select.
func (b *Bridge) invoke(ctx context.Context, method string, params []byte) (jsonview.View, *wire.Error) {
	type outcome struct {
		result jsonview.View
		err    *wire.Error
	}
	done := make(chan outcome, 1)
	b.proxy.Invoke(method, params, func(result jsonview.View, err *wire.Error) {
		done <- outcome{result, err}
	})

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return jsonview.Null(), wire.NewError(wire.ConnectionClosed, ctx.Err().Error())
	}
}

// Lookup implements kernelfs.Callbacks.
func (b *Bridge) Lookup(ctx context.Context, parent kernelfs.Ino, name string) (kernelfs.EntryOut, kernelfs.Errno) {
	result, err := b.invoke(ctx, "lookup", rpcproxy.Params(b.fsName, uint64(parent), name))
	if err != nil {
		return kernelfs.EntryOut{}, kernelfs.ENOENT
	}
	entry, ok := decodeEntry(result)
	if !ok {
		return kernelfs.EntryOut{}, kernelfs.ENOENT
	}
	return entry, kernelfs.OK
}

// GetAttr implements kernelfs.Callbacks. Inode 1 always resolves locally to
// a synthesized root entry without issuing an RPC.
func (b *Bridge) GetAttr(ctx context.Context, inode kernelfs.Ino) (kernelfs.EntryOut, kernelfs.Errno) {
	if inode == kernelfs.RootIno {
		return kernelfs.RootEntry(), kernelfs.OK
	}
	result, err := b.invoke(ctx, "getattr", rpcproxy.Params(b.fsName, uint64(inode)))
	if err != nil {
		return kernelfs.EntryOut{}, kernelfs.ENOENT
	}
	entry, ok := decodeEntry(result)
	if !ok {
		return kernelfs.EntryOut{}, kernelfs.ENOENT
	}
	return entry, kernelfs.OK
}

// ReadDir implements kernelfs.Callbacks. Every call re-fetches the full
// listing from the remote and rebuilds the growable buffer from scratch —
// there is no cross-call directory cache.
func (b *Bridge) ReadDir(ctx context.Context, inode kernelfs.Ino, size int, offset uint64) ([]byte, kernelfs.Errno) {
	result, err := b.invoke(ctx, "readdir", rpcproxy.Params(b.fsName, uint64(inode)))
	if err != nil {
		return nil, kernelfs.ENOENT
	}
	if !result.IsArray() {
		return nil, kernelfs.ENOENT
	}

	buf := newDirBuffer()
	n := result.ArrayLen()
	for i := 0; i < n; i++ {
		entry := result.Index(i)
		buf.append(kernelfs.DirEntry{
			Name:  entry.Get("name").String(),
			Inode: kernelfs.Ino(entry.Get("inode").Int()),
		})
	}
	if b.logLabel != "" {
		log.Printf("fsops[%s]: readdir inode=%d produced %s buffer", b.logLabel, inode, humanize.Bytes(uint64(buf.cursor)))
	}
	return buf.window(offset, size), kernelfs.OK
}

// Open implements kernelfs.Callbacks.
func (b *Bridge) Open(ctx context.Context, inode kernelfs.Ino, flags uint32) (kernelfs.OpenOut, kernelfs.Errno) {
	result, err := b.invoke(ctx, "open", rpcproxy.Params(b.fsName, uint64(inode), flags))
	if err != nil {
		return kernelfs.OpenOut{}, kernelfs.EIO
	}
	handleField := result.Get("handle")
	if !handleField.Exists() {
		return kernelfs.OpenOut{}, kernelfs.EIO
	}
	return kernelfs.OpenOut{Handle: kernelfs.Handle(handleField.Int())}, kernelfs.OK
}

// Read implements kernelfs.Callbacks, decoding the wire "identity"/"base64"
// format into raw bytes.
func (b *Bridge) Read(ctx context.Context, inode kernelfs.Ino, handle kernelfs.Handle, offset uint64, size int) (kernelfs.ReadOut, kernelfs.Errno) {
	result, err := b.invoke(ctx, "read", rpcproxy.Params(b.fsName, uint64(inode), uint64(handle), offset, size))
	if err != nil {
		return kernelfs.ReadOut{}, kernelfs.EIO
	}
	if !result.Get("data").Exists() {
		return kernelfs.ReadOut{}, kernelfs.EIO
	}

	format := result.Get("format").String()
	data := result.Get("data").String()
	var raw []byte
	switch format {
	case "base64", string(kernelfs.FormatBase64):
		decoded, decErr := base64.StdEncoding.DecodeString(data)
		if decErr != nil {
			return kernelfs.ReadOut{}, kernelfs.EIO
		}
		raw = decoded
	default:
		raw = []byte(data)
	}

	count := int(result.Get("count").Int())
	if count == 0 {
		count = len(raw)
	}
	if b.logLabel != "" {
		log.Printf("fsops[%s]: read inode=%d handle=%d returned %s", b.logLabel, inode, handle, humanize.Bytes(uint64(len(raw))))
	}
	return kernelfs.ReadOut{Data: raw, Format: kernelfs.ReadFormat(format), Count: count}, kernelfs.OK
}

// Release implements kernelfs.Callbacks. It is fire-and-forget: the caller
// does not wait for a reply.
func (b *Bridge) Release(ctx context.Context, inode kernelfs.Ino, handle kernelfs.Handle) {
	b.proxy.Invoke("close", rpcproxy.Params(b.fsName, uint64(inode), uint64(handle)), func(jsonview.View, *wire.Error) {
		// No kernel reply is expected for release; any error is diagnostic only.
	})
}

// decodeEntry decodes an {inode, mode, type, size?} result into an EntryOut,
// defaulting size to 0 when absent. ok is false when inode, mode, or type is
// missing — an ill-formed result is treated the same as a failed call by the
// caller, never surfaced as a zero-valued entry.
func decodeEntry(result jsonview.View) (out kernelfs.EntryOut, ok bool) {
	if !result.Get("inode").Exists() || !result.Get("mode").Exists() || !result.Get("type").Exists() {
		return kernelfs.EntryOut{}, false
	}
	return kernelfs.EntryOut{
		Inode: kernelfs.Ino(result.Get("inode").Int()),
		Mode:  uint32(result.Get("mode").Int()),
		Type:  kernelfs.ParseEntryType(result.Get("type").String()),
		Size:  uint64(result.Get("size").Int()),
	}, true
}
