package rpcproxy

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/webfuse/adapter/internal/wsfs/jsonview"
	"github.com/webfuse/adapter/internal/wsfs/wire"
)

// harness wires a Proxy to an in-memory "remote" that can be told how to
// reply to each outgoing request, mirroring the mockChannel pattern in
// internal/lifecycle/demuxer_test.go.
type harness struct {
	mu  sync.Mutex
	sent []wire.Request
	p   *Proxy
}

func newHarness() *harness {
	h := &harness{}
	h.p = New(func(frame []byte) error {
		var req wire.Request
		if err := json.Unmarshal(frame, &req); err != nil {
			return err
		}
		h.mu.Lock()
		h.sent = append(h.sent, req)
		h.mu.Unlock()
		return nil
	})
	return h
}

func (h *harness) lastSent() wire.Request {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sent[len(h.sent)-1]
}

func TestInvokeSuccessCompletesOnce(t *testing.T) {
	h := newHarness()

	var calls int
	var gotResult jsonview.View
	var gotErr *wire.Error
	done := make(chan struct{})

	h.p.Invoke("lookup", Params("test", 1, "a.file"), func(result jsonview.View, err *wire.Error) {
		calls++
		gotResult = result
		gotErr = err
		close(done)
	})

	id := h.lastSent().ID
	resp := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{"inode":2}}`, id)
	h.p.OnMessage([]byte(resp))

	<-done
	if calls != 1 {
		t.Fatalf("completion called %d times, want 1", calls)
	}
	if gotErr != nil {
		t.Fatalf("got error %v, want nil", gotErr)
	}
	if gotResult.Get("inode").Int() != 2 {
		t.Fatalf("result.inode = %d, want 2", gotResult.Get("inode").Int())
	}
}

func TestInvokeErrorCompletesOnce(t *testing.T) {
	h := newHarness()

	var gotErr *wire.Error
	done := make(chan struct{})
	h.p.Invoke("getattr", Params("test", 99), func(result jsonview.View, err *wire.Error) {
		gotErr = err
		close(done)
	})

	id := h.lastSent().ID
	resp := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"error":{"code":42,"message":"nope"}}`, id)
	h.p.OnMessage([]byte(resp))

	<-done
	if gotErr == nil || gotErr.Code != 42 {
		t.Fatalf("gotErr = %v, want code 42", gotErr)
	}
}

func TestUnmatchedResponseDiscardedSilently(t *testing.T) {
	h := newHarness()
	// No panics, no effect: there is no pending request for id 9999.
	h.p.OnMessage([]byte(`{"jsonrpc":"2.0","id":9999,"result":{}}`))
}

func TestMalformedResponseYieldsBadFormat(t *testing.T) {
	h := newHarness()
	var gotErr *wire.Error
	done := make(chan struct{})
	h.p.Invoke("open", Params("test", 2, 0), func(result jsonview.View, err *wire.Error) {
		gotErr = err
		close(done)
	})

	id := h.lastSent().ID
	// Neither result nor error present.
	resp := fmt.Sprintf(`{"jsonrpc":"2.0","id":%d}`, id)
	h.p.OnMessage([]byte(resp))

	<-done
	if gotErr == nil || wire.Code(gotErr.Code) != wire.BadFormat {
		t.Fatalf("gotErr = %v, want BAD_FORMAT", gotErr)
	}
}

func TestTimeoutFiresAndLateResponseDiscarded(t *testing.T) {
	h := newHarness()
	h.p.SetTimeout(10 * time.Millisecond)

	var gotErr *wire.Error
	done := make(chan struct{})
	h.p.Invoke("read", Params("test", 2, 0, 0, 10), func(result jsonview.View, err *wire.Error) {
		gotErr = err
		close(done)
	})

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timeout completion never fired")
	}
	if gotErr == nil || wire.Code(gotErr.Code) != wire.Timeout {
		t.Fatalf("gotErr = %v, want TIMEOUT", gotErr)
	}

	// A response arriving after timeout must be discarded, not double-complete.
	id := h.lastSent().ID
	h.p.OnMessage([]byte(fmt.Sprintf(`{"jsonrpc":"2.0","id":%d,"result":{}}`, id)))
}

func TestDisposeFailsAllPendingExactlyOnce(t *testing.T) {
	h := newHarness()

	const n = 5
	results := make([]*wire.Error, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		i := i
		h.p.Invoke("readdir", Params("test", 1), func(result jsonview.View, err *wire.Error) {
			results[i] = err
			wg.Done()
		})
	}

	h.p.Dispose()
	wg.Wait()

	for i, err := range results {
		if err == nil || wire.Code(err.Code) != wire.ProxyDisposed {
			t.Fatalf("results[%d] = %v, want PROXY_DISPOSED", i, err)
		}
	}

	// Further invokes after Dispose fail synchronously.
	var calledSync bool
	h.p.Invoke("lookup", Params("test", 1, "x"), func(result jsonview.View, err *wire.Error) {
		calledSync = true
		if wire.Code(err.Code) != wire.ProxyDisposed {
			t.Fatalf("post-dispose err = %v, want PROXY_DISPOSED", err)
		}
	})
	if !calledSync {
		t.Fatal("Invoke after Dispose did not complete synchronously")
	}
}

func TestIDsMonotonicallyIncrease(t *testing.T) {
	h := newHarness()
	noop := func(jsonview.View, *wire.Error) {}

	h.p.Invoke("getattr", Params("test", 1), noop)
	first := h.lastSent().ID
	h.p.Invoke("getattr", Params("test", 2), noop)
	second := h.lastSent().ID

	if second <= first {
		t.Fatalf("second id %d did not exceed first id %d", second, first)
	}
}
