// Package rpcproxy implements the JSON-RPC proxy: it issues requests over a
// frame-oriented transport and correlates replies by numeric id.
//
// It follows the same shape as a typical channel-based demuxer: a
// pending-table keyed by id and guarded by a mutex, a single Sender through
// which every frame leaves (called outside that mutex), and a Stop/Dispose
// path that fails everything still outstanding. Unlike a
// demuxer that blocks the calling goroutine until a response arrives, this
// proxy is callback-based: callers get a Go closure instead of a blocking
// call.
package rpcproxy

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/webfuse/adapter/internal/wsfs/deadline"
	"github.com/webfuse/adapter/internal/wsfs/jsonview"
	"github.com/webfuse/adapter/internal/wsfs/wire"
)

// DefaultTimeout is the per-call deadline used when SetTimeout is never
// called.
const DefaultTimeout = 30 * time.Second

// state is the proxy's lifecycle state.
type state int

const (
	stateActive state = iota
	stateShuttingDown
	stateDisposed
)

// Finish is the completion signature: exactly one of result/err is non-nil.
// result is the zero View (Valid()==false) when err is set.
type Finish func(result jsonview.View, err *wire.Error)

// Sender ships one serialized JSON-RPC frame to the transport. Proxies never
// talk to a transport directly — this indirection is what lets the
// connection driver route bytes through a framequeue instead.
type Sender func(frame []byte) error

// pendingRequest tracks one in-flight call awaiting a matching response.
type pendingRequest struct {
	id       int64
	onFinish Finish
	deadline time.Time
}

// Proxy is the client side of the JSON-RPC correlation layer for one
// connection.
type Proxy struct {
	send Sender

	mu       sync.Mutex
	state    state
	nextID   int64
	pending  map[int64]*pendingRequest
	timeout  time.Duration
	timer    *deadline.Timer
	logLabel string
}

// New creates a Proxy that ships frames via send.
func New(send Sender) *Proxy {
	return &Proxy{
		send:    send,
		nextID:  1,
		pending: make(map[int64]*pendingRequest),
		timeout: DefaultTimeout,
		timer:   deadline.New(),
	}
}

// SetLogLabel sets a prefix used in diagnostic log lines (e.g. a session id).
func (p *Proxy) SetLogLabel(label string) {
	p.mu.Lock()
	p.logLabel = label
	p.mu.Unlock()
}

// SetTimeout sets the per-call deadline for subsequently invoked calls.
func (p *Proxy) SetTimeout(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = d
}

// Params builds a JSON-RPC params array from positional arguments, matching
// the "[fs_name, inode, ...]" shape used by every filesystem method.
func Params(args ...any) json.RawMessage {
	raw, err := json.Marshal(args)
	if err != nil {
		// Marshaling a slice of basic/JSON-able args cannot fail in practice;
		// fall back to an empty array rather than panicking a caller.
		return json.RawMessage("[]")
	}
	return raw
}

// Invoke enqueues a JSON-RPC request and arranges for onFinished to be called
// exactly once with the response.
//
// The request is accepted iff the proxy is not disposed/shutting down;
// otherwise onFinished fires synchronously with PROXY_DISPOSED.
func (p *Proxy) Invoke(method string, params json.RawMessage, onFinished Finish) {
	p.mu.Lock()
	if p.state != stateActive {
		p.mu.Unlock()
		onFinished(jsonview.Null(), wire.NewError(wire.ProxyDisposed, "proxy disposed"))
		return
	}

	id := p.nextID
	p.nextID++

	pr := &pendingRequest{
		id:       id,
		onFinish: onFinished,
		deadline: time.Now().Add(p.timeout),
	}
	p.pending[id] = pr
	p.rearmTimerLocked()
	p.mu.Unlock()

	req := wire.Request{
		JSONRPC: wire.ProtocolVersion,
		Method:  method,
		Params:  params,
		ID:      id,
	}
	frame, err := json.Marshal(req)
	if err != nil {
		p.complete(id, jsonview.Null(), wire.NewError(wire.BadFormat, fmt.Sprintf("encode request: %v", err)))
		return
	}

	if err := p.send(frame); err != nil {
		p.complete(id, jsonview.Null(), wire.NewError(wire.ConnectionClosed, err.Error()))
	}
}

// OnMessage is fed raw bytes from the transport. It parses a JSON-RPC
// response and, if the id matches a pending request, completes it. Unmatched
// ids are discarded silently.
func (p *Proxy) OnMessage(raw []byte) {
	v := jsonview.Parse(raw)
	if !v.IsObject() {
		return // not a response we understand; dispatcher may own it instead
	}

	idView := v.Get("id")
	if !idView.IsNumber() {
		return
	}
	id := idView.Int()

	hasResult := v.Get("result").Exists()
	hasError := v.Get("error").Exists()
	if hasResult == hasError {
		// Missing both, or both present: not a well-formed response.
		p.complete(id, jsonview.Null(), wire.NewError(wire.BadFormat, "response has neither or both of result/error"))
		return
	}

	if hasError {
		errView := v.Get("error")
		code := wire.Code(errView.Get("code").Int())
		msg := errView.Get("message").String()
		var rpcErr *wire.Error
		if code != 0 {
			rpcErr = wire.NewError(code, msg)
		} else {
			rpcErr = &wire.Error{Code: 0, Message: msg}
		}
		p.complete(id, jsonview.Null(), rpcErr)
		return
	}

	p.complete(id, v.Get("result"), nil)
}

// complete detaches the pending request for id (if any) and invokes
// its completion exactly once. Unknown ids are silently ignored, matching
// the "unmatched (unknown or expired)" discard rule.
func (p *Proxy) complete(id int64, result jsonview.View, err *wire.Error) {
	p.mu.Lock()
	pr, ok := p.pending[id]
	if ok {
		delete(p.pending, id)
		p.rearmTimerLocked()
	}
	p.mu.Unlock()
	if !ok {
		return
	}
	pr.onFinish(result, err)
}

// rearmTimerLocked re-arms the single deadline timer to the next-earliest
// pending deadline, or cancels it if nothing is pending. Caller holds p.mu.
func (p *Proxy) rearmTimerLocked() {
	var earliest time.Time
	for _, pr := range p.pending {
		if earliest.IsZero() || pr.deadline.Before(earliest) {
			earliest = pr.deadline
		}
	}
	if earliest.IsZero() {
		p.timer.Cancel()
		return
	}
	d := time.Until(earliest)
	if d < 0 {
		d = 0
	}
	p.timer.Arm(d, p.onTimerFire)
}

// onTimerFire runs when the deadline timer expires. It completes every
// pending request whose deadline has passed with TIMEOUT, then rearms for
// whatever remains.
func (p *Proxy) onTimerFire() {
	now := time.Now()
	p.mu.Lock()
	var expired []*pendingRequest
	for id, pr := range p.pending {
		if !pr.deadline.After(now) {
			expired = append(expired, pr)
			delete(p.pending, id)
		}
	}
	p.rearmTimerLocked()
	label := p.logLabel
	p.mu.Unlock()

	for _, pr := range expired {
		if label != "" {
			log.Printf("rpcproxy[%s]: call id=%d timed out", label, pr.id)
		}
		pr.onFinish(jsonview.Null(), wire.NewError(wire.Timeout, "request timed out"))
	}
}

// Dispose transitions the proxy through SHUTTING_DOWN to DISPOSED, failing
// every pending request with PROXY_DISPOSED exactly once, then rejects all
// further Invoke calls synchronously.
func (p *Proxy) Dispose() {
	p.disposeWithReason(wire.ProxyDisposed, "proxy disposed")
}

// CloseConnection is the teardown-path variant of Dispose: the session
// manager calls this when the underlying transport is gone, so pending calls
// fail with CONNECTION_CLOSED instead of PROXY_DISPOSED, while the proxy
// otherwise behaves identically — further Invoke calls fail synchronously,
// and no completion fires more than once.
func (p *Proxy) CloseConnection() {
	p.disposeWithReason(wire.ConnectionClosed, "connection closed")
}

func (p *Proxy) disposeWithReason(code wire.Code, message string) {
	p.mu.Lock()
	if p.state == stateDisposed {
		p.mu.Unlock()
		return
	}
	p.state = stateShuttingDown
	pending := p.pending
	p.pending = make(map[int64]*pendingRequest)
	p.timer.Cancel()
	p.mu.Unlock()

	for _, pr := range pending {
		pr.onFinish(jsonview.Null(), wire.NewError(code, message))
	}

	p.mu.Lock()
	p.state = stateDisposed
	p.mu.Unlock()
}

// PendingCount returns the number of requests currently awaiting a response.
// Used by the session manager's status RPC.
func (p *Proxy) PendingCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}
