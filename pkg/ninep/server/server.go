//go:build linux

// Package server owns the listen/accept loop that turns configured
// endpoints (TCP, Unix-domain sockets, or a pre-connected fd pair) into
// running conn.Conn instances, and drains them gracefully when the Serve
// context is cancelled (signal handling itself lives in cmd/diod). Grounded on the teacher's NFSAdapter accept loop
// (pkg/adapter/nfs/nfs_adapter.go): per-connection goroutine, a shutdown
// channel, sync.Once-guarded teardown, and activeConns tracked with a
// WaitGroup — generalized here to many listeners instead of one.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/diod/internal/logger"
	"github.com/marmos91/diod/pkg/auth"
	"github.com/marmos91/diod/pkg/backend"
	"github.com/marmos91/diod/pkg/backend/ctl"
	"github.com/marmos91/diod/pkg/export"
	"github.com/marmos91/diod/pkg/identity"
	"github.com/marmos91/diod/pkg/ninep/conn"
	"github.com/marmos91/diod/pkg/ninep/respool"
	"github.com/marmos91/diod/pkg/ninep/transport"
)

// Config bundles everything the server needs to start listening and to
// build a conn.Config for each accepted connection.
type Config struct {
	// Listen is a set of "host:port" or "/path/to/socket" endpoints, also
	// accepted with an explicit "tcp:" or "unix:" prefix (spec.md §6
	// `--listen`). At least one of Listen or
	// RfdNo/WfdNo must be set.
	Listen []string

	// RfdNo/WfdNo, both non-zero, make the server serve exactly one
	// connection over pre-connected fds instead of listening (spec.md §6
	// `--rfdno`/`--wfdno`, used when spawned under inetd/an agent).
	RfdNo, WfdNo int

	MaxMsize   uint32
	NumWorkers int

	Exports  *export.List
	Identity *identity.Store
	Auth     auth.Provider
	CtlCfg   ctl.Config

	NoAuth    bool
	AllSquash bool
}

// activeConn pairs a running conn.Conn with the uuid-derived label it is
// reported under in Connections() and log lines, so operators can correlate
// a log entry with a ctl/connections row even across reconnects.
type activeConn struct {
	label string
	conn  *conn.Conn
}

// Server accepts connections on every configured listener and runs one
// conn.Conn per accepted socket until Shutdown is called.
type Server struct {
	cfg Config
	ctl backend.Backend

	listeners []net.Listener

	poolsMu sync.Mutex
	pools   map[string]*respool.PathPool

	connsMu sync.Mutex
	conns   map[uint64]*activeConn
	nextID  uint64

	active sync.WaitGroup

	shutdownOnce sync.Once
	shutdown     chan struct{}
}

// New builds a Server from cfg without opening any sockets yet.
func New(cfg Config) *Server {
	s := &Server{
		cfg:      cfg,
		pools:    make(map[string]*respool.PathPool),
		conns:    make(map[uint64]*activeConn),
		shutdown: make(chan struct{}),
	}
	if cfg.CtlCfg.Connections == nil {
		cfg.CtlCfg.Connections = s.Connections
	}
	s.ctl = ctl.NewBackend(cfg.CtlCfg)
	return s
}

// poolFor returns the process-wide PathPool for entry's export path,
// creating it on first use; handleAccepted uses it for sharepath exports.
func (s *Server) poolFor(entry export.Entry) *respool.PathPool {
	s.poolsMu.Lock()
	defer s.poolsMu.Unlock()
	pool, ok := s.pools[entry.Path]
	if !ok {
		pool = respool.NewPathPool()
		s.pools[entry.Path] = pool
	}
	return pool
}

// Serve opens every configured listener (or the pre-connected fd pair) and
// accepts connections until ctx is cancelled, at which point it drains
// gracefully: stop accepting, then wait for every in-flight Conn.Serve to
// return.
func (s *Server) Serve(ctx context.Context) error {
	if s.cfg.RfdNo != 0 && s.cfg.WfdNo != 0 {
		return s.serveFD(ctx)
	}
	if len(s.cfg.Listen) == 0 {
		return fmt.Errorf("server: no listen endpoints and no rfdno/wfdno configured")
	}

	for _, endpoint := range s.cfg.Listen {
		ln, err := listen(endpoint)
		if err != nil {
			s.closeListeners()
			return fmt.Errorf("server: listen %s: %w", endpoint, err)
		}
		s.listeners = append(s.listeners, ln)
		logger.Info("listening", "endpoint", endpoint)
	}

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received", "error", ctx.Err())
		s.initiateShutdown()
	}()

	g, _ := errgroup.WithContext(ctx)
	for _, ln := range s.listeners {
		ln := ln
		g.Go(func() error {
			return s.acceptLoop(ctx, ln)
		})
	}
	err := g.Wait()

	s.active.Wait()
	return err
}

func listen(endpoint string) (net.Listener, error) {
	if strings.HasPrefix(endpoint, "/") {
		_ = os.Remove(endpoint)
		return net.Listen("unix", endpoint)
	}
	network, addr, ok := strings.Cut(endpoint, ":")
	if !ok {
		return nil, fmt.Errorf("malformed endpoint %q, want host:port or a socket path", endpoint)
	}
	switch network {
	case "unix":
		_ = os.Remove(addr)
		return net.Listen("unix", addr)
	case "tcp":
		return net.Listen("tcp", addr)
	default:
		return net.Listen("tcp", endpoint)
	}
}

func (s *Server) acceptLoop(ctx context.Context, ln net.Listener) error {
	for {
		nc, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return nil
			default:
				logger.Debug("accept error", "listener", ln.Addr(), "error", err)
				continue
			}
		}
		s.handleAccepted(ctx, transport.NewStream(nc), peerIsPrivileged(nc))
	}
}

func (s *Server) serveFD(ctx context.Context) error {
	r := os.NewFile(uintptr(s.cfg.RfdNo), "rfdno")
	w := os.NewFile(uintptr(s.cfg.WfdNo), "wfdno")
	t := transport.NewPairedFD(r, w, func() error {
		rerr := r.Close()
		werr := w.Close()
		if rerr != nil {
			return rerr
		}
		return werr
	})
	s.handleAccepted(ctx, t, false)
	s.active.Wait()
	return nil
}

// peerIsPrivileged reports whether nc's remote endpoint used a port below
// 1024, the signal export.Entry.RequirePrivPort enforces at Tattach (spec.md
// §9 Open Question resolution). Unix-domain peers have no port concept and
// are treated as privileged, since they already crossed a filesystem
// permission boundary to connect at all.
func peerIsPrivileged(nc net.Conn) bool {
	addr, ok := nc.RemoteAddr().(*net.TCPAddr)
	if !ok {
		return true
	}
	return addr.Port < 1024
}

func (s *Server) handleAccepted(ctx context.Context, t transport.Transport, peerPriv bool) {
	s.connsMu.Lock()
	id := s.nextID
	s.nextID++
	s.connsMu.Unlock()

	label := uuid.New().String()

	// Exports without sharepath get one PathPool per connection.
	var connPoolsMu sync.Mutex
	connPools := make(map[string]*respool.PathPool)
	poolFor := func(entry export.Entry) *respool.PathPool {
		if entry.SharePath {
			return s.poolFor(entry)
		}
		connPoolsMu.Lock()
		defer connPoolsMu.Unlock()
		pool, ok := connPools[entry.Path]
		if !ok {
			pool = respool.NewPathPool()
			connPools[entry.Path] = pool
		}
		return pool
	}

	c := conn.New(conn.Config{
		ID:         id,
		MaxMsize:   s.cfg.MaxMsize,
		NumWorkers: s.cfg.NumWorkers,
		Exports:    s.cfg.Exports,
		Ctl:        s.ctl,
		PoolFor:    poolFor,
		Identity:   s.cfg.Identity,
		Auth:       s.cfg.Auth,
		NoAuth:     s.cfg.NoAuth,
		AllSquash:  s.cfg.AllSquash,
		PeerIsPriv: peerPriv,
	}, t)

	s.connsMu.Lock()
	s.conns[id] = &activeConn{label: label, conn: c}
	s.connsMu.Unlock()

	s.active.Add(1)
	go func() {
		defer func() {
			s.connsMu.Lock()
			delete(s.conns, id)
			s.connsMu.Unlock()
			s.active.Done()
		}()
		if err := c.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn("connection ended with error", "conn", label, "error", err)
		}
	}()
}

// Connections lists a human-readable identifier per active connection, fed
// into ctl/connections (SPEC_FULL.md §5). The label is a uuid assigned at
// accept time so a connection keeps one identity across the lifetime of
// ctl/connections listings even though the internal id counter is reused
// after a server restart.
func (s *Server) Connections() []string {
	s.connsMu.Lock()
	defer s.connsMu.Unlock()
	out := make([]string, 0, len(s.conns))
	for _, ac := range s.conns {
		out = append(out, fmt.Sprintf("conn-%s", ac.label))
	}
	return out
}

func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		s.closeListeners()
	})
}

func (s *Server) closeListeners() {
	for _, ln := range s.listeners {
		_ = ln.Close()
	}
}
