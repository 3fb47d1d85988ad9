// Package ipc implements the broker's loopback WebSocket endpoint: a
// TCP accept loop, WebSocket upgrade, an auth handshake gate, and a
// framed binary message loop dispatching to the rest of the broker's
// actors and clients. The accept loop follows a net.Listener plus one
// goroutine per accepted connection, with an explicit per-connection
// state machine instead of implicit goroutine-local state.
package ipc

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/juju/loggo/v2"

	"github.com/TonyMarkham/opencode-tauri/internal/appconfig"
	"github.com/TonyMarkham/opencode-tauri/internal/errs"
	"github.com/TonyMarkham/opencode-tauri/internal/metrics"
	"github.com/TonyMarkham/opencode-tauri/internal/state"
)

var logger = loggo.GetLogger("deskbroker.ipc")

// Deps is everything a connection's dispatch table needs to reach the
// rest of the broker. Binary is the configured assistant executable
// name used by discovery and spawn.
type Deps struct {
	StateActor  *state.Actor
	ConfigActor *appconfig.Actor
	Binary      string
	Catalog     appconfig.Catalog

	// Metrics is optional; a nil Registry disables instrumentation
	// entirely rather than requiring every dispatch call site to be
	// guarded by a feature flag.
	Metrics *metrics.Registry
}

// Server accepts loopback-only WebSocket connections and authenticates
// each one against Token before admitting it to the dispatch loop.
type Server struct {
	listener net.Listener
	token    string
	deps     Deps
	upgrader websocket.Upgrader

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
}

// New binds a TCP listener on 127.0.0.1:port (port 0 lets the OS pick)
// and returns a Server ready to Serve. If token is empty, a random
// version-4 UUID is generated and logged once, never the value itself
// beyond this one line — just its length.
func New(port uint16, token string, deps Deps) (*Server, error) {
	addr := net.JoinHostPort("127.0.0.1", portString(port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errs.Wrap(errs.FamilyIPC, "Io", "failed to bind ipc listener on "+addr, err)
	}

	if token == "" {
		token = uuid.NewString()
		logger.Infof("generated ipc auth token (%d bytes)", len(token))
	}

	return &Server{
		listener: ln,
		token:    token,
		deps:     deps,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}, nil
}

// Addr returns the bound listener address, letting callers that asked
// for port 0 discover the OS-assigned port.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Token returns the auth token connecting clients must present.
func (s *Server) Token() string { return s.token }

// Serve accepts connections until ctx is canceled or the listener is
// closed, spawning one handler goroutine per accepted connection.
// Non-loopback peers are rejected immediately; this endpoint is
// loopback-only by design.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = s.listener.Close()
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleUpgrade)
	httpServer := &http.Server{Handler: mux}

	err := httpServer.Serve(s.listener)
	s.wg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if err != nil && err != http.ErrServerClosed {
		return errs.Wrap(errs.FamilyIPC, "Io", "ipc accept loop exited", err)
	}
	return nil
}

// Close stops accepting new connections. In-flight connections are
// left to drain on their own; Serve's caller should give them a grace
// period before the process exits.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.listener.Close()
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if !isLoopback(host) {
		logger.Warningf("rejected non-loopback ipc peer")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Debugf("ipc websocket upgrade failed: %v", err)
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ConnectionsAccepted.Inc()
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		newConnection(conn, s.token, s.deps).run()
	}()
}

func isLoopback(host string) bool {
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func portString(port uint16) string {
	return strconv.Itoa(int(port))
}
