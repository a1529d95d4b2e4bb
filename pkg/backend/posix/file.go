//go:build linux

package posix

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/marmos91/diod/pkg/backend"
	"github.com/marmos91/diod/pkg/ninep/respool"
	"github.com/marmos91/diod/pkg/ninep/wire"
)

// file adapts a respool.IOCtxHandle (the possibly-shared open host
// descriptor) to backend.File, including the whole-file-only BSD-style
// advisory locking spec.md §9's Open Question resolves in favor of:
// sub-range lock/getlock requests are rejected with ENOSYS rather than
// silently widened to cover the whole file.
type file struct {
	path  *respool.PathHandle
	pool  *respool.PathPool
	ioctx *respool.IOCtxHandle
}

func (f *file) ReadAt(p []byte, off int64) (int, error)  { return f.ioctx.ReadAt(p, off) }
func (f *file) WriteAt(p []byte, off int64) (int, error) { return f.ioctx.WriteAt(p, off) }

func (f *file) Fsync() error {
	if err := f.ioctx.File.Sync(); err != nil {
		return fmt.Errorf("%w: fsync: %v", backend.ErrInvalid, err)
	}
	return nil
}

func (f *file) Close() error {
	return respool.Release(f.path, f.ioctx)
}

// isWholeFile reports whether start/length name the entire file, per the
// whole-file-only locking policy.
func isWholeFile(start, length uint64) bool {
	return start == 0 && (length == 0 || length == ^uint64(0))
}

func (f *file) Lock(req wire.TlockBody) (uint8, error) {
	if !isWholeFile(req.Start, req.Length) {
		return wire.LockStatusError, fmt.Errorf("%w: partial-range lock", backend.ErrNotSupported)
	}
	fd := int(f.ioctx.File.Fd())
	var how int
	switch req.Type {
	case wire.LockTypeRdlck:
		how = unix.LOCK_SH
	case wire.LockTypeWrlck:
		how = unix.LOCK_EX
	case wire.LockTypeUnlck:
		how = unix.LOCK_UN
	default:
		return wire.LockStatusError, fmt.Errorf("%w: unknown lock type %d", backend.ErrInvalid, req.Type)
	}
	nonblock := req.Flags&1 == 0 // LOCK_FLAGS_BLOCK bit unset means non-blocking, per 9P2000.L
	if nonblock {
		how |= unix.LOCK_NB
	}
	if err := unix.Flock(fd, how); err != nil {
		if err == unix.EWOULDBLOCK {
			return wire.LockStatusBlocked, nil
		}
		return wire.LockStatusError, fmt.Errorf("%w: flock: %v", backend.ErrInvalid, err)
	}
	return wire.LockStatusSuccess, nil
}

func (f *file) Getlock(req wire.TgetlockBody) (wire.RgetlockBody, error) {
	if !isWholeFile(req.Start, req.Length) {
		return wire.RgetlockBody{}, fmt.Errorf("%w: partial-range getlock", backend.ErrNotSupported)
	}
	// flock(2) carries no "who holds this lock" query; the POSIX backend
	// only reports whether the type requested is currently free by
	// attempting (and immediately releasing) a non-blocking lock of that
	// type, per the whole-file-only semantics documented on isWholeFile.
	fd := int(f.ioctx.File.Fd())
	how := unix.LOCK_EX | unix.LOCK_NB
	if req.Type == wire.LockTypeRdlck {
		how = unix.LOCK_SH | unix.LOCK_NB
	}
	if err := unix.Flock(fd, how); err != nil {
		return wire.RgetlockBody{Type: wire.LockTypeWrlck, Start: req.Start, Length: req.Length}, nil
	}
	_ = unix.Flock(fd, unix.LOCK_UN)
	return wire.RgetlockBody{Type: wire.LockTypeUnlck, Start: req.Start, Length: req.Length}, nil
}
