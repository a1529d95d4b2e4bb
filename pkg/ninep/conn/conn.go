//go:build linux

// Package conn implements the per-connection 9P2000.L state machine
// (spec.md §3 "Connection", §4.2–§4.6): version negotiation, the tag ->
// in-flight-request map that makes Tflush possible, dispatch into the
// backend/worker layers, and synthesized teardown when the transport
// closes or the server drains.
package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/marmos91/diod/internal/logger"
	"github.com/marmos91/diod/pkg/auth"
	"github.com/marmos91/diod/pkg/backend"
	"github.com/marmos91/diod/pkg/export"
	"github.com/marmos91/diod/pkg/identity"
	"github.com/marmos91/diod/pkg/ninep/fidtable"
	"github.com/marmos91/diod/pkg/ninep/respool"
	"github.com/marmos91/diod/pkg/ninep/transport"
	"github.com/marmos91/diod/pkg/ninep/wire"
	"github.com/marmos91/diod/pkg/ninep/worker"
)

// SupportedVersion is the only protocol version string this server
// negotiates (spec.md §4.1). A client proposing anything else is rejected
// with Rversion{Version: "unknown"}, per the 9P version-negotiation
// convention, rather than an error reply.
const SupportedVersion = "9P2000.L"

// state is the connection's lifecycle (spec.md §3 "Connection":
// "negotiating -> active -> draining -> dead").
type state int32

const (
	stateNegotiating state = iota
	stateActive
	stateDraining
	stateDead
)

// Config bundles everything a Conn needs beyond the raw transport. Server
// owns one shared Config (modulo PeerIsPriv, which is per-accept) and
// builds a Conn per accepted connection.
type Config struct {
	ID         uint64
	MaxMsize   uint32
	NumWorkers int

	Exports  *export.List
	Ctl      backend.Backend
	PoolFor  func(export.Entry) *respool.PathPool
	Identity *identity.Store
	Auth     auth.Provider

	NoAuth     bool
	AllSquash  bool
	PeerIsPriv bool // whether the client connected from a port < 1024
}

// Conn drives one client connection end to end.
type Conn struct {
	cfg       Config
	transport transport.Transport
	fids      *fidtable.Table
	workers   *worker.Pool

	msize   uint32
	version string

	mu      sync.Mutex
	pending map[uint16]pendingReq
	wg      sync.WaitGroup

	state atomic.Int32

	afids map[uint32]*afidState
}

// afidState tracks an in-progress Tauth handshake: the blob accumulated via
// Twrite to the afid, closed out by the matching Tattach (spec.md §5.3).
type afidState struct {
	blob []byte
}

// pendingReq is what the tag map tracks for one in-flight request: cancel
// signals the handler's ctx so it can stop cooperatively, and done is
// closed only after the handler goroutine has actually returned (and so
// has sent whatever reply it was going to send). handleFlush waits on done
// before replying, which is what keeps Rflush from ever beating the
// original response onto the wire (spec.md §4.5).
type pendingReq struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Conn bound to t. Call Serve to run it.
func New(cfg Config, t transport.Transport) *Conn {
	c := &Conn{
		cfg:       cfg,
		transport: t,
		fids:      fidtable.New(),
		workers:   worker.NewPool(cfg.NumWorkers),
		pending:   make(map[uint16]pendingReq),
		afids:     make(map[uint32]*afidState),
	}
	c.state.Store(int32(stateNegotiating))
	return c
}

// Serve reads frames until the transport closes or ctx is cancelled,
// dispatching each to its own goroutine so long-running requests (Tread,
// Twrite, blocking Tlock) don't stall the reader — the tag map is what lets
// a later Tflush find and cancel them (spec.md §4.5).
func (c *Conn) Serve(ctx context.Context) error {
	defer c.teardown()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		frame, err := c.transport.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, transport.ErrClosed) {
				return nil
			}
			return fmt.Errorf("conn %d: recv: %w", c.cfg.ID, err)
		}
		msg, err := wire.Decode(frame)
		if err != nil {
			logger.Warn("dropping unparsable frame", "conn", c.cfg.ID, logger.Err(err))
			continue
		}
		c.handle(ctx, msg)
	}
}

// handle dispatches one decoded message. Tversion is special: it must be
// answered before anything else proceeds, and it resets the connection's
// negotiated msize, so it runs synchronously on the reader goroutine rather
// than being handed to the tag-tracked async path (spec.md §4.6).
func (c *Conn) handle(ctx context.Context, msg *wire.Message) {
	if msg.Type == wire.Tversion {
		c.handleVersion(msg)
		return
	}

	if state(c.state.Load()) == stateNegotiating {
		c.sendError(msg.Header.Tag, fmt.Errorf("%w: request before Tversion", wire.ErrMalformed))
		return
	}

	if msg.Type == wire.Tflush {
		// handleFlush blocks until the flushed request's handler has
		// returned, so it must never run on the reader goroutine itself —
		// that would stall every other tag on the connection for as long
		// as the flush waits (spec.md §4.5).
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.handleFlush(msg)
		}()
		return
	}

	reqCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	c.mu.Lock()
	c.pending[msg.Header.Tag] = pendingReq{cancel: cancel, done: done}
	c.mu.Unlock()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(done)
		defer func() {
			c.mu.Lock()
			delete(c.pending, msg.Header.Tag)
			c.mu.Unlock()
			cancel()
		}()
		c.dispatch(reqCtx, msg)
	}()
}

func (c *Conn) handleVersion(msg *wire.Message) {
	req, ok := msg.Body.(*wire.TversionBody)
	if !ok {
		return
	}
	if req.Version != SupportedVersion {
		c.reply(wire.Rversion, msg.Header.Tag, &wire.RversionBody{Msize: wire.MinMsize, Version: "unknown"})
		return
	}

	negotiated := req.Msize
	if negotiated > c.cfg.MaxMsize {
		negotiated = c.cfg.MaxMsize
	}
	if negotiated < wire.MinMsize {
		negotiated = wire.MinMsize
	}
	c.msize = negotiated
	c.version = SupportedVersion
	c.state.Store(int32(stateActive))

	// A Tversion mid-connection resets all state (spec.md §4.6: "the
	// server clunks every outstanding fid" as if the connection were
	// fresh), since the protocol allows re-negotiation at any time.
	c.fids.Foreach(func(f *fidtable.Fid) {
		if f.File != nil {
			_ = f.File.Close()
		}
	})
	c.fids = fidtable.New()

	logger.Debug("version negotiated", "conn", c.cfg.ID, logger.Msize(c.msize))
	c.reply(wire.Rversion, msg.Header.Tag, &wire.RversionBody{Msize: c.msize, Version: SupportedVersion})
}

func (c *Conn) handleFlush(msg *wire.Message) {
	req, ok := msg.Body.(*wire.TflushBody)
	if !ok {
		return
	}
	c.mu.Lock()
	pr, found := c.pending[req.Oldtag]
	c.mu.Unlock()
	if found {
		pr.cancel()
		<-pr.done // the original handler has returned, reply sent or not
	}
	// Rflush replies even if oldtag was already finished or unknown
	// (spec.md §4.5: flush is idempotent from the client's perspective),
	// but never before the original response, if any, reached the wire.
	c.reply(wire.Rflush, msg.Header.Tag, &wire.RflushBody{})
}

// doAs runs fn under ident's fsuid/fsgid/groups on a worker thread, blocking
// the calling goroutine until it completes or ctx is cancelled. This is the
// single choke point through which every fs-touching operation passes, so
// the credential switch in pkg/ninep/worker is never bypassed.
//
// It reports whether fn actually ran to completion. A Tflush-driven
// cancellation unblocks the caller without waiting for fn (the worker
// thread is mid-syscall and can't be preempted, so fn keeps running and
// its result is simply discarded) — callers must treat a false return as
// "do not reply", since handleFlush has already sent Rflush for this tag
// and the 9P wire only tolerates one reply per tag (spec.md §4.5).
func (c *Conn) doAs(ctx context.Context, ident auth.Identity, fn func()) bool {
	done := make(chan struct{})
	c.workers.Submit(worker.Job{Identity: ident, Run: func() {
		defer close(done)
		fn()
	}})
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

func (c *Conn) reply(typ wire.MType, tag uint16, body wire.Body) {
	frame, err := wire.Encode(typ, tag, body, c.msize)
	if err != nil {
		logger.Error("encode reply", "conn", c.cfg.ID, logger.Tag(tag), logger.Err(err))
		c.sendError(tag, err)
		return
	}
	if err := c.transport.Send(frame); err != nil {
		logger.Debug("send reply", "conn", c.cfg.ID, logger.Tag(tag), logger.Err(err))
	}
}

func (c *Conn) sendError(tag uint16, err error) {
	body := &wire.RerrorBody{Ename: err.Error(), Errno: errno(err)}
	frame, encErr := wire.Encode(wire.Rerror, tag, body, c.msize)
	if encErr != nil {
		logger.Error("encode Rerror", "conn", c.cfg.ID, logger.Tag(tag), logger.Err(encErr))
		return
	}
	if err := c.transport.Send(frame); err != nil {
		logger.Debug("send Rerror", "conn", c.cfg.ID, logger.Tag(tag), logger.Err(err))
	}
}

// teardown synthesizes a clunk for every remaining fid and closes the
// transport, matching what a real client disconnect implies (spec.md §4.4:
// "the server behaves as if every open fid received a Tclunk").
func (c *Conn) teardown() {
	c.state.Store(int32(stateDraining))
	c.wg.Wait()

	c.fids.Foreach(func(f *fidtable.Fid) {
		if f.File != nil {
			if err := f.File.Close(); err != nil {
				logger.Debug("close fid on teardown", "conn", c.cfg.ID, logger.Fid(f.Num), logger.Err(err))
			}
		}
	})
	c.workers.Close()
	_ = c.transport.Close()
	c.state.Store(int32(stateDead))
}
