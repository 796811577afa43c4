// Package rpcserver implements the JSON-RPC server dispatcher: it parses
// inbound requests, routes them to a registered method handler, and
// produces a reply.
//
// The dispatch shape — parse method, call handler, marshal a
// {"result"|"error"} response — is generalized into a named-method
// registry, the same way a mux.HandleFunc table generalizes one HTTP
// method+path into many.
package rpcserver

import (
	"encoding/json"
	"sync"

	"github.com/webfuse/adapter/internal/wsfs/jsonview"
	"github.com/webfuse/adapter/internal/wsfs/wire"
)

// Reply is called by a Handler exactly once to deliver its result or error.
type Reply func(result any, rpcErr *wire.Error)

// Handler processes one request's params. It may reply synchronously or
// asynchronously (e.g. after an internal async operation), but must call
// reply exactly once. ctx is an opaque per-connection value the caller
// threads through (e.g. the owning *session.Session) — handlers type-assert
// it to whatever context their registrant passed to Register.
type Handler func(params jsonview.View, reply Reply, ctx any)

// Dispatcher is a per-connection (or process-wide, if stateless) registry of
// named method handlers.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// New creates an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{handlers: make(map[string]Handler)}
}

// Register binds a method name to a handler. Registering the same name twice
// replaces the previous handler.
func (d *Dispatcher) Register(method string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[method] = h
}

// Dispatch parses raw as a JSON-RPC request and routes it to the matching
// handler, calling onReply with the serialized response frame. Requests on
// one connection are dispatched in arrival order by the caller (this method
// does not buffer or reorder); replies may come back out of order since
// onReply is whatever the handler's Reply ultimately invokes.
func (d *Dispatcher) Dispatch(raw []byte, ctx any, onReply func(frame []byte)) {
	v := jsonview.Parse(raw)
	if !v.IsObject() || !v.Get("method").IsString() || !v.Get("id").IsNumber() {
		onReply(encodeResponse(rawID(v), nil, wire.NewError(wire.InvalidRequest, "malformed JSON-RPC request")))
		return
	}

	method := v.Get("method").String()
	id := v.Get("id").Raw()
	params := v.Get("params")
	if params.Exists() && !params.IsArray() {
		onReply(encodeResponse(id, nil, wire.NewError(wire.InvalidParams, "params must be an array")))
		return
	}

	d.mu.RLock()
	h, ok := d.handlers[method]
	d.mu.RUnlock()
	if !ok {
		onReply(encodeResponse(id, nil, wire.NewError(wire.MethodNotFound, "unknown method: "+method)))
		return
	}

	h(params, func(result any, rpcErr *wire.Error) {
		onReply(encodeResponse(id, result, rpcErr))
	}, ctx)
}

// rawID extracts the raw JSON for id when the top level didn't fully parse
// as a well-formed request, so the error response can still echo it back
// when present.
func rawID(v jsonview.View) []byte {
	id := v.Get("id")
	if id.IsNumber() {
		return id.Raw()
	}
	return []byte("null")
}

func encodeResponse(id []byte, result any, rpcErr *wire.Error) []byte {
	resp := wire.Response{JSONRPC: wire.ProtocolVersion, ID: json.RawMessage(id)}
	if rpcErr != nil {
		resp.Error = rpcErr
	} else {
		raw, err := json.Marshal(result)
		if err != nil {
			resp.Error = wire.NewError(wire.BadFormat, "failed to encode result")
		} else {
			resp.Result = raw
		}
	}
	frame, err := json.Marshal(resp)
	if err != nil {
		// Fall back to a minimal, always-encodable error frame.
		frame, _ = json.Marshal(wire.Response{
			JSONRPC: wire.ProtocolVersion,
			ID:      json.RawMessage(id),
			Error:   wire.NewError(wire.BadFormat, "failed to encode response"),
		})
	}
	return frame
}

// IsRequest reports whether raw looks like a JSON-RPC request (has "method")
// as opposed to a response (has "result"/"error"), used by the wsd driver to
// route an inbound frame to the dispatcher vs. the proxy.
func IsRequest(raw []byte) bool {
	v := jsonview.Parse(raw)
	return v.IsObject() && v.Get("method").Exists()
}
