// Package wsd is the server / event-loop driver: it owns the listening
// socket, accepts WebSocket connections, creates a Session per connection,
// and pumps frames between the transport and that session's
// proxy/dispatcher.
//
// The server is an *http.Server wrapping a listener goroutine, started with
// ListenAndServe and torn down with Shutdown(ctx). Where a plain TCP relay
// would forward bytes directly, this driver upgrades each connection to a
// WebSocket and hands it to one per-connection goroutine — a cooperative
// event loop that runs one task per session; the only state shared across
// sessions is the session manager's mutex-guarded map.
package wsd

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/webfuse/adapter/internal/wsfs/auth"
	"github.com/webfuse/adapter/internal/wsfs/framequeue"
	"github.com/webfuse/adapter/internal/wsfs/session"
)

// subprotocolServer and subprotocolProvider are the negotiated WebSocket
// subprotocol names.
const (
	subprotocolServer   = "fs.webfuse.adapter-server"
	subprotocolProvider = "fs.webfuse.provider-client"
)

// Server is the event-loop driver: an HTTP(S) server that upgrades the
// filesystem bridge endpoint to WebSocket and serves DocumentRoot (if set)
// as plain static content.
type Server struct {
	cfg      Config
	registry *auth.Registry
	sessions *session.Manager

	httpServer *http.Server
}

// New creates a Server from cfg, routing authenticate calls through
// registry. cfg.MountpointFactory must be non-nil.
func New(cfg Config, registry *auth.Registry) *Server {
	if cfg.MountpointFactory == nil {
		log.Fatalf("wsd: Config.MountpointFactory is required")
	}

	s := &Server{
		cfg:      cfg,
		registry: registry,
		sessions: session.NewManager(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleRequest)
	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}
	return s
}

// ListenAndServe starts the listener and blocks until it stops, splitting
// between http.Server's ListenAndServe and ListenAndServeTLS depending on
// whether TLS paths are configured.
func (s *Server) ListenAndServe() error {
	log.Printf("wsd: listening on %s (vhost=%s)", s.httpServer.Addr, s.cfg.VHostName)
	if s.cfg.TLSCertPath != "" && s.cfg.TLSKeyPath != "" {
		err := s.httpServer.ListenAndServeTLS(s.cfg.TLSCertPath, s.cfg.TLSKeyPath)
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("wsd: serve tls: %w", err)
		}
		return nil
	}
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("wsd: serve: %w", err)
	}
	return nil
}

// Shutdown stops the listener and tears down every live session; the two
// run concurrently in one errgroup, and the listener's shutdown error, if
// any, is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return s.httpServer.Shutdown(gctx)
	})
	g.Go(func() error {
		s.sessions.Shutdown(gctx)
		return nil
	})
	return g.Wait()
}

// SessionCount reports the number of live sessions, for diagnostics.
func (s *Server) SessionCount() int { return s.sessions.Len() }

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Upgrade") != "" {
		s.handleUpgrade(w, r)
		return
	}
	if s.cfg.DocumentRoot != "" {
		http.FileServer(http.Dir(s.cfg.DocumentRoot)).ServeHTTP(w, r)
		return
	}
	http.NotFound(w, r)
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{subprotocolServer, subprotocolProvider},
	})
	if err != nil {
		log.Printf("wsd: upgrade failed: %v", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	transport := newConnTransport(conn)
	go transport.drainLoop(ctx)

	sess := s.sessions.Create(transport, s.cfg.BaseDir, s.cfg.MountpointFactory, s.registry)
	log.Printf("wsd: session %s connected (subprotocol=%q)", sess.ID, conn.Subprotocol())
	defer s.sessions.Remove(context.Background(), sess.ID)

	s.readLoop(ctx, conn, sess, transport)
}

// readLoop is the per-connection event loop: it reads frames until the
// transport errors or the peer closes, handing each one to the session.
// Replies the dispatcher produces synchronously are queued through
// transport exactly like proxy-initiated calls, so both paths share the
// same outbound frame queue.
func (s *Server) readLoop(ctx context.Context, conn *websocket.Conn, sess *session.Session, transport *connTransport) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) == -1 {
				log.Printf("wsd: session %s transport error: %v", sess.ID, err)
			}
			return
		}
		sess.HandleFrame(data, func(frame []byte) error {
			transport.queue.Push(frame)
			return nil
		})
	}
}

// connTransport adapts a *websocket.Conn to session.Transport, queuing
// outbound frames through a framequeue.Queue instead of writing inline:
// Send only enqueues and signals, and a dedicated drainLoop goroutine is the
// one writer per connection, draining the outbound queue whenever it has
// something to send — coder/websocket's blocking Write plays the role of
// "transport becomes writable" here.
type connTransport struct {
	conn  *websocket.Conn
	queue *framequeue.Queue
}

func newConnTransport(conn *websocket.Conn) *connTransport {
	return &connTransport{conn: conn, queue: framequeue.New()}
}

func (t *connTransport) Send(frame []byte) error {
	t.queue.Push(frame)
	return nil
}

func (t *connTransport) drainLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.queue.Writable():
			err := t.queue.DrainAll(func(frame []byte) error {
				return t.conn.Write(ctx, websocket.MessageText, frame)
			})
			if err != nil {
				log.Printf("wsd: drain outbound queue: %v", err)
				return
			}
		}
	}
}
