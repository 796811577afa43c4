package fsops

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/webfuse/adapter/internal/wsfs/kernelfs"
	"github.com/webfuse/adapter/internal/wsfs/rpcproxy"
	"github.com/webfuse/adapter/internal/wsfs/wire"
)

// fakeRemote answers every outgoing request with a canned response keyed by
// method.
type fakeRemote struct {
	mu      sync.Mutex
	replies map[string]string // method -> raw JSON result
	proxy   *rpcproxy.Proxy
}

func newFakeRemote() *fakeRemote {
	fr := &fakeRemote{replies: make(map[string]string)}
	fr.proxy = rpcproxy.New(func(frame []byte) error {
		var req wire.Request
		if err := json.Unmarshal(frame, &req); err != nil {
			return err
		}
		fr.mu.Lock()
		raw, ok := fr.replies[req.Method]
		fr.mu.Unlock()
		if !ok {
			return nil // simulate the remote never answering (caller must timeout)
		}
		resp := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":%s}`, req.ID, raw)
		go fr.proxy.OnMessage([]byte(resp))
		return nil
	})
	return fr
}

func (fr *fakeRemote) set(method, resultJSON string) {
	fr.mu.Lock()
	fr.replies[method] = resultJSON
	fr.mu.Unlock()
}

func TestGetAttrRootNeverIssuesRPC(t *testing.T) {
	fr := newFakeRemote() // no replies configured at all
	b := New("test", fr.proxy)

	entry, errno := b.GetAttr(context.Background(), kernelfs.RootIno)
	if errno != kernelfs.OK {
		t.Fatalf("errno = %v, want OK", errno)
	}
	if entry.Mode != 0755 || entry.Type != kernelfs.TypeDir {
		t.Fatalf("entry = %+v, want mode 0755 dir", entry)
	}
}

func TestLookupSmallFile(t *testing.T) {
	fr := newFakeRemote()
	fr.set("lookup", `{"inode":2,"mode":420,"type":"file","size":1}`)
	b := New("test", fr.proxy)

	entry, errno := b.Lookup(context.Background(), kernelfs.RootIno, "a.file")
	if errno != kernelfs.OK {
		t.Fatalf("errno = %v, want OK", errno)
	}
	if entry.Inode != 2 || entry.Type != kernelfs.TypeFile || entry.Size != 1 {
		t.Fatalf("entry = %+v, want inode=2 file size=1", entry)
	}
}

func TestReadIdentityFormat(t *testing.T) {
	fr := newFakeRemote()
	fr.set("read", `{"data":"*","format":"identity","count":1}`)
	b := New("test", fr.proxy)

	out, errno := b.Read(context.Background(), 2, kernelfs.Handle(7), 0, 1)
	if errno != kernelfs.OK {
		t.Fatalf("errno = %v, want OK", errno)
	}
	if string(out.Data) != "*" || out.Count != 1 {
		t.Fatalf("out = %+v, want data=* count=1", out)
	}
}

func TestReaddirOneEntry(t *testing.T) {
	fr := newFakeRemote()
	fr.set("readdir", `[{"name":"foo","inode":23}]`)
	b := New("test", fr.proxy)

	buf, errno := b.ReadDir(context.Background(), kernelfs.RootIno, 4096, 0)
	if errno != kernelfs.OK {
		t.Fatalf("errno = %v, want OK", errno)
	}
	if len(buf) == 0 {
		t.Fatal("readdir buffer empty, want entry for foo")
	}
}

func TestReaddirWindowThenRemainder(t *testing.T) {
	fr := newFakeRemote()
	var entries []byte
	entries = append(entries, '[')
	for i := 0; i < 50; i++ {
		if i > 0 {
			entries = append(entries, ',')
		}
		entries = append(entries, []byte(fmt.Sprintf(`{"name":"file-%02d","inode":%d}`, i, i+10))...)
	}
	entries = append(entries, ']')
	fr.set("readdir", string(entries))
	b := New("test", fr.proxy)

	const window = 64
	first, errno := b.ReadDir(context.Background(), kernelfs.RootIno, window, 0)
	if errno != kernelfs.OK {
		t.Fatalf("errno = %v, want OK", errno)
	}
	if len(first) != window {
		t.Fatalf("len(first) = %d, want exactly %d", len(first), window)
	}

	second, errno := b.ReadDir(context.Background(), kernelfs.RootIno, 1<<20, window)
	if errno != kernelfs.OK {
		t.Fatalf("errno = %v, want OK", errno)
	}
	if len(second) == 0 {
		t.Fatal("remainder window empty, want remaining entries")
	}
}

func TestLookupRemoteErrorMapsToENOENT(t *testing.T) {
	fr := newFakeRemote() // "lookup" unconfigured: proxy will time out
	fr.proxy.SetTimeout(0)
	b := New("test", fr.proxy)

	_, errno := b.Lookup(context.Background(), kernelfs.RootIno, "missing")
	if errno != kernelfs.ENOENT {
		t.Fatalf("errno = %v, want ENOENT", errno)
	}
}

func TestOpenRemoteErrorMapsToEIO(t *testing.T) {
	fr := newFakeRemote()
	fr.proxy.SetTimeout(0)
	b := New("test", fr.proxy)

	_, errno := b.Open(context.Background(), 2, 0)
	if errno != kernelfs.EIO {
		t.Fatalf("errno = %v, want EIO", errno)
	}
}

func TestLookupIllFormedResultMapsToENOENT(t *testing.T) {
	fr := newFakeRemote()
	fr.set("lookup", `{}`)
	b := New("test", fr.proxy)

	_, errno := b.Lookup(context.Background(), kernelfs.RootIno, "a.file")
	if errno != kernelfs.ENOENT {
		t.Fatalf("errno = %v, want ENOENT for a result missing inode/mode/type", errno)
	}
}

func TestGetAttrIllFormedResultMapsToENOENT(t *testing.T) {
	fr := newFakeRemote()
	fr.set("getattr", `{"inode":2}`) // mode and type still missing
	b := New("test", fr.proxy)

	_, errno := b.GetAttr(context.Background(), 2)
	if errno != kernelfs.ENOENT {
		t.Fatalf("errno = %v, want ENOENT for a result missing mode/type", errno)
	}
}

func TestOpenIllFormedResultMapsToEIO(t *testing.T) {
	fr := newFakeRemote()
	fr.set("open", `{}`) // handle missing
	b := New("test", fr.proxy)

	_, errno := b.Open(context.Background(), 2, 0)
	if errno != kernelfs.EIO {
		t.Fatalf("errno = %v, want EIO for a result missing handle", errno)
	}
}
