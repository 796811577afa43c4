// Package session implements the mountpoint & session manager:
// per-connection state (transport, authenticated principal, mounted
// filesystems, embedded proxy and dispatcher) and the provider-facing RPC
// methods that mutate it.
//
// The manager follows the same shape as a typical mutex-guarded registry of
// live objects keyed by id, with per-object teardown that releases external
// resources before the object is forgotten. A Session plays the role of one
// such live object; a Mountpoint plays the role of one of its resource
// handles.
package session

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/webfuse/adapter/internal/wsfs/auth"
	"github.com/webfuse/adapter/internal/wsfs/fsops"
	"github.com/webfuse/adapter/internal/wsfs/jsonview"
	"github.com/webfuse/adapter/internal/wsfs/rpcproxy"
	"github.com/webfuse/adapter/internal/wsfs/rpcserver"
	"github.com/webfuse/adapter/internal/wsfs/wire"
)

// filesystemNamePattern rejects path separators and empty names: an
// add_filesystem call with a name containing /, .., or the empty string
// must fail with INVALID_PARAMS.
var filesystemNamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

func validFilesystemName(name string) bool {
	if name == "" || name == "." || strings.Contains(name, "..") {
		return false
	}
	return filesystemNamePattern.MatchString(name)
}

// Transport is the outbound half of a Session's connection, satisfied by
// the wsd driver.
type Transport interface {
	Send(frame []byte) error
}

// MountHandle is the kernel-side handle to one mounted directory, returned
// by a MountpointFactory. Unmount releases whatever the factory allocated.
type MountHandle interface {
	Unmount() error
}

// MountpointFactory creates and mounts a kernel filesystem at localPath for
// fsName, routing its callbacks through bridge. Returning a nil handle and a
// nil error is treated as a mount failure, rejecting add_filesystem.
type MountpointFactory func(fsName, localPath string, bridge *fsops.Bridge) (MountHandle, error)

// Mountpoint is one mounted remote filesystem.
type Mountpoint struct {
	Name      string
	LocalPath string
	Handle    MountHandle
	Bridge    *fsops.Bridge
}

// Session is the per-connection state: transport, principal, mounted
// filesystems, and an embedded proxy + dispatcher.
type Session struct {
	mu sync.Mutex

	ID        string
	transport Transport
	principal string

	mountpoints map[string]*Mountpoint
	proxy       *rpcproxy.Proxy
	dispatcher  *rpcserver.Dispatcher

	baseDir           string
	mountpointFactory MountpointFactory
	authRegistry      *auth.Registry

	closed bool
}

// New creates a Session for an accepted connection. baseDir is where
// per-filesystem mountpoint directories are created, as <base>/<name>;
// registry is consulted by authenticate.
func New(transport Transport, baseDir string, factory MountpointFactory, registry *auth.Registry) *Session {
	s := &Session{
		ID:                uuid.NewString(),
		transport:         transport,
		principal:         "anonymous",
		mountpoints:       make(map[string]*Mountpoint),
		dispatcher:        rpcserver.New(),
		baseDir:           baseDir,
		mountpointFactory: factory,
		authRegistry:      registry,
	}
	s.proxy = rpcproxy.New(func(frame []byte) error {
		return s.transport.Send(frame)
	})
	s.proxy.SetLogLabel(s.shortID())
	s.registerHandlers()
	return s
}

// shortID is the short log prefix used throughout a session's lifetime,
// matching the practice of prefixing instance logs with the instance id.
func (s *Session) shortID() string {
	if len(s.ID) >= 8 {
		return s.ID[:8]
	}
	return s.ID
}

func (s *Session) registerHandlers() {
	s.dispatcher.Register("add_filesystem", s.handleAddFilesystem)
	s.dispatcher.Register("remove_filesystem", s.handleRemoveFilesystem)
	s.dispatcher.Register("authenticate", s.handleAuthenticate)
	s.dispatcher.Register("status", s.handleStatus)
}

// HandleFrame routes one inbound frame to the proxy (it's a response) or the
// dispatcher (it's a request), and ships any reply the dispatcher produces
// back out through send.
func (s *Session) HandleFrame(raw []byte, send func(frame []byte) error) {
	if rpcserver.IsRequest(raw) {
		s.dispatcher.Dispatch(raw, s, func(frame []byte) {
			if err := send(frame); err != nil {
				log.Printf("session[%s]: failed to send reply: %v", s.shortID(), err)
			}
		})
		return
	}
	s.proxy.OnMessage(raw)
}

// Proxy exposes the session's RPC proxy — the same proxy every Mountpoint's
// Bridge is constructed with in handleAddFilesystem.
func (s *Session) Proxy() *rpcproxy.Proxy { return s.proxy }

// Principal returns the currently authenticated principal, or "anonymous".
func (s *Session) Principal() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.principal
}

// handleAddFilesystem implements add_filesystem: validate name, create
// <base>/<name>, call the mountpoint factory, register the Mountpoint.
func (s *Session) handleAddFilesystem(params jsonview.View, reply rpcserver.Reply, _ any) {
	name := params.Index(0).String()
	if name == "" || !validFilesystemName(name) {
		reply(nil, wire.NewError(wire.InvalidParams, "invalid filesystem name"))
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		reply(nil, wire.NewError(wire.ConnectionClosed, "session is closed"))
		return
	}
	if _, exists := s.mountpoints[name]; exists {
		s.mu.Unlock()
		reply(nil, wire.NewError(wire.InvalidParams, "filesystem already mounted: "+name))
		return
	}
	s.mu.Unlock()

	localPath := filepath.Join(s.baseDir, name)
	if err := os.MkdirAll(localPath, 0755); err != nil {
		reply(nil, wire.NewError(wire.MountFailed, fmt.Sprintf("create mountpoint directory: %v", err)))
		return
	}

	bridge := fsops.New(name, s.proxy)
	bridge.SetLogLabel(s.shortID())

	handle, err := s.mountpointFactory(name, localPath, bridge)
	if err != nil || handle == nil {
		os.Remove(localPath)
		msg := "mountpoint factory rejected filesystem"
		if err != nil {
			msg = err.Error()
		}
		reply(nil, wire.NewError(wire.MountFailed, msg))
		return
	}

	mp := &Mountpoint{Name: name, LocalPath: localPath, Handle: handle, Bridge: bridge}

	s.mu.Lock()
	s.mountpoints[name] = mp
	s.mu.Unlock()

	log.Printf("session[%s]: mounted filesystem %q at %s", s.shortID(), name, localPath)
	reply(map[string]any{"id": name}, nil)
}

// handleRemoveFilesystem implements remove_filesystem: unmount and forget a
// filesystem the session previously added.
func (s *Session) handleRemoveFilesystem(params jsonview.View, reply rpcserver.Reply, _ any) {
	name := params.Index(0).String()
	if name == "" {
		reply(nil, wire.NewError(wire.InvalidParams, "missing filesystem name"))
		return
	}

	s.mu.Lock()
	mp, ok := s.mountpoints[name]
	if ok {
		delete(s.mountpoints, name)
	}
	s.mu.Unlock()
	if !ok {
		reply(nil, wire.NewError(wire.NoFilesystem, "no such filesystem: "+name))
		return
	}

	s.teardownMountpoint(mp)
	reply(map[string]any{"id": name}, nil)
}

// handleAuthenticate implements authenticate: look up the scheme in the
// authenticator registry, run the verifier, set the session principal on
// success.
func (s *Session) handleAuthenticate(params jsonview.View, reply rpcserver.Reply, _ any) {
	scheme := params.Index(0).String()
	if scheme == "" {
		reply(nil, wire.NewError(wire.InvalidParams, "missing authentication scheme"))
		return
	}
	credentials := params.Index(1).Raw()

	principal, err := s.authRegistry.Verify(scheme, credentials)
	if err != nil {
		reply(nil, wire.NewError(wire.AuthFailed, err.Error()))
		return
	}

	s.mu.Lock()
	s.principal = principal
	s.mu.Unlock()

	log.Printf("session[%s]: authenticated as %q via scheme %q", s.shortID(), principal, scheme)
	reply(map[string]any{"principal": principal}, nil)
}

// handleStatus implements status: a read-only snapshot of session state.
func (s *Session) handleStatus(_ jsonview.View, reply rpcserver.Reply, _ any) {
	s.mu.Lock()
	principal := s.principal
	names := make([]string, 0, len(s.mountpoints))
	for name := range s.mountpoints {
		names = append(names, name)
	}
	s.mu.Unlock()

	reply(map[string]any{
		"principal":   principal,
		"filesystems": names,
		"pending":     s.proxy.PendingCount(),
	}, nil)
}

// Close tears a session down: stop accepting new requests, fail all pending
// proxy calls with CONNECTION_CLOSED, unmount every Mountpoint, remove the
// local directories this session created.
func (s *Session) Close(ctx context.Context) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	mountpoints := s.mountpoints
	s.mountpoints = make(map[string]*Mountpoint)
	s.mu.Unlock()

	s.proxy.CloseConnection()

	for _, mp := range mountpoints {
		s.teardownMountpoint(mp)
	}
	log.Printf("session[%s]: torn down (%d filesystem(s) unmounted)", s.shortID(), len(mountpoints))
}

func (s *Session) teardownMountpoint(mp *Mountpoint) {
	if err := mp.Handle.Unmount(); err != nil {
		log.Printf("session[%s]: unmount %q: %v", s.shortID(), mp.Name, err)
	}
	if err := os.RemoveAll(mp.LocalPath); err != nil {
		log.Printf("session[%s]: remove %q: %v", s.shortID(), mp.LocalPath, err)
	}
}

// Manager owns every live Session, keyed by id, mirroring
// internal/lifecycle/manager.go's Manager/instances map.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates an empty session manager.
func NewManager() *Manager {
	return &Manager{sessions: make(map[string]*Session)}
}

// Create registers and returns a new Session for an accepted connection.
func (m *Manager) Create(transport Transport, baseDir string, factory MountpointFactory, registry *auth.Registry) *Session {
	s := New(transport, baseDir, factory, registry)
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

// Remove tears down and forgets the session with the given id, called on
// disconnect.
func (m *Manager) Remove(ctx context.Context, id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if ok {
		s.Close(ctx)
	}
}

// Len reports the number of live sessions, for diagnostics.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown tears down every live session, used by the driver's graceful
// shutdown path.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.Close(ctx)
	}
}
