// Package respool implements the interned-path and shared-open-file pools
// described in spec.md §3 ("Path", "IOCtx") and §4.8: a process-wide or
// per-connection map from canonical path to a refcounted Path record, and
// per-Path map from open-flags to a refcounted IOCtx wrapping one host file
// descriptor.
package respool

import (
	"fmt"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// PathHandle is a refcounted interned pathname. Two Fids on the same
// connection (or across connections, under sharepath) share one
// PathHandle for the same canonical path.
type PathHandle struct {
	pool     *PathPool
	key      string
	mu       sync.Mutex
	refcount int
	removed  bool // set when the path is unlinked through this server

	ioctxMu sync.Mutex
	ioctx   map[uint32]*IOCtxHandle // keyed by normalized open flags
}

// Canonical returns the interned path string this handle was created for.
func (p *PathHandle) Canonical() string { return p.key }

// MarkRemoved flags the path as unlinked: already-open fids continue to
// work, but new walks to it must fail with ENOENT (spec.md §4.8).
func (p *PathHandle) MarkRemoved() {
	p.mu.Lock()
	p.removed = true
	p.mu.Unlock()
}

// Removed reports whether MarkRemoved was called.
func (p *PathHandle) Removed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.removed
}

// HashKey returns a stable 64-bit hash of the canonical path, used by the
// POSIX backend as the QID.Path of the object.
func (p *PathHandle) HashKey() uint64 {
	return xxhash.Sum64String(p.key)
}

// PathPool is the intern table described in spec.md §4.8. One instance is
// process-wide when an export has `sharepath` set; otherwise one instance
// is created per Connection.
type PathPool struct {
	mu    sync.Mutex
	paths map[string]*PathHandle
}

// NewPathPool returns an empty pool.
func NewPathPool() *PathPool {
	return &PathPool{paths: make(map[string]*PathHandle)}
}

// Intern increments refcount if canonical is already present, else inserts
// it with refcount 1.
func (pp *PathPool) Intern(canonical string) *PathHandle {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	if h, ok := pp.paths[canonical]; ok {
		h.mu.Lock()
		h.refcount++
		h.mu.Unlock()
		return h
	}
	h := &PathHandle{pool: pp, key: canonical, refcount: 1, ioctx: make(map[uint32]*IOCtxHandle)}
	pp.paths[canonical] = h
	return h
}

// Release decrements h's refcount; at zero the entry is removed from the
// pool. The caller must not use h afterward.
func (pp *PathPool) Release(h *PathHandle) {
	h.mu.Lock()
	h.refcount--
	zero := h.refcount == 0
	h.mu.Unlock()
	if !zero {
		return
	}
	pp.mu.Lock()
	delete(pp.paths, h.key)
	pp.mu.Unlock()
}

// Len reports the number of distinct interned paths (diagnostics).
func (pp *PathPool) Len() int {
	pp.mu.Lock()
	defer pp.mu.Unlock()
	return len(pp.paths)
}

// IOCtxHandle is a shared open host file descriptor for a (Path, flags)
// pair (spec.md §3 "IOCtx", §4.8). Reads and writes against a shared
// IOCtx MUST use pread/pwrite so concurrent fids sharing it don't race on
// the kernel file offset.
type IOCtxHandle struct {
	File     *os.File
	Flags    uint32
	mu       sync.Mutex
	refcount int
}

// ReadAt/WriteAt delegate to the underlying *os.File's positional I/O,
// which is always pread/pwrite on Linux — never Seek+Read.
func (c *IOCtxHandle) ReadAt(p []byte, off int64) (int, error)  { return c.File.ReadAt(p, off) }
func (c *IOCtxHandle) WriteAt(p []byte, off int64) (int, error) { return c.File.WriteAt(p, off) }

// normalizeFlags masks an open-flags value down to the bits that matter
// for IOCtx sharing compatibility: access mode, append, direct-io
// (spec.md §4.8: "two opens with the same (path, flags masked to access
// mode + append + direct-io) reuse the same IOCtx when sharefd is set").
func normalizeFlags(flags uint32) uint32 {
	const mask = 0x3 /* O_RDONLY|O_WRONLY|O_RDWR */ | 0x400 /* O_APPEND */ | 0x4000 /* O_DIRECT */
	return flags & mask
}

// Open returns the shared IOCtxHandle for (path, flags) when sharefd is
// true and a compatible one already exists, bumping its refcount;
// otherwise it calls openFn to create a fresh host descriptor and installs
// a new handle. When sharefd is false every call creates a fresh handle
// regardless of what's cached.
func Open(path *PathHandle, flags uint32, sharefd bool, openFn func() (*os.File, error)) (*IOCtxHandle, error) {
	key := normalizeFlags(flags)

	if sharefd {
		path.ioctxMu.Lock()
		if h, ok := path.ioctx[key]; ok {
			h.mu.Lock()
			h.refcount++
			h.mu.Unlock()
			path.ioctxMu.Unlock()
			return h, nil
		}
		path.ioctxMu.Unlock()
	}

	f, err := openFn()
	if err != nil {
		return nil, fmt.Errorf("respool: open %s: %w", path.Canonical(), err)
	}
	h := &IOCtxHandle{File: f, Flags: flags, refcount: 1}

	if sharefd {
		path.ioctxMu.Lock()
		if existing, ok := path.ioctx[key]; ok {
			// Lost the race to another opener; use theirs, close ours.
			existing.mu.Lock()
			existing.refcount++
			existing.mu.Unlock()
			path.ioctxMu.Unlock()
			_ = f.Close()
			return existing, nil
		}
		path.ioctx[key] = h
		path.ioctxMu.Unlock()
	}
	return h, nil
}

// Release drops one reference to h; when the refcount reaches zero the
// underlying descriptor is closed and, if shared, removed from path's
// ioctx map.
func Release(path *PathHandle, h *IOCtxHandle) error {
	h.mu.Lock()
	h.refcount--
	zero := h.refcount == 0
	h.mu.Unlock()
	if !zero {
		return nil
	}

	key := normalizeFlags(h.Flags)
	path.ioctxMu.Lock()
	if existing, ok := path.ioctx[key]; ok && existing == h {
		delete(path.ioctx, key)
	}
	path.ioctxMu.Unlock()

	return h.File.Close()
}
