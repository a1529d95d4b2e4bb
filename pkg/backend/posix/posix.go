//go:build linux

// Package posix implements the POSIX directory-backed backend (spec.md
// §4.10): every Object method is a small wrapper around the corresponding
// host syscall, using the worker's currently-assumed fsuid/fsgid/groups
// (pkg/ninep/worker) as the sole access-control mechanism — this package
// never checks permissions itself.
package posix

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"github.com/marmos91/diod/pkg/backend"
	"github.com/marmos91/diod/pkg/ninep/respool"
	"github.com/marmos91/diod/pkg/ninep/wire"
)

// object is a POSIX-backend filesystem object: an interned host path plus
// the export-level sharing options that govern how its IOCtx pool behaves.
type object struct {
	path     *respool.PathHandle
	pool     *respool.PathPool
	readOnly bool
	shareFD  bool
	root     string // export root; Walk(".." ) never ascends above this

	// xattrSize is the declared length set by the most recent
	// XattrCreate on this object, used to bound XattrWrite offsets.
	xattrSize uint64
}

// NewRoot builds the root Object for an export: pool is the PathPool to
// use for interning (process-wide under sharepath, per-connection
// otherwise — the caller decides which to pass), hostPath is the export's
// absolute directory.
func NewRoot(pool *respool.PathPool, hostPath string, readOnly, shareFD bool) (backend.Object, error) {
	clean := filepath.Clean(hostPath)
	if _, err := os.Lstat(clean); err != nil {
		return nil, fmt.Errorf("posix: export root %s: %w", clean, err)
	}
	return &object{
		path:     pool.Intern(clean),
		pool:     pool,
		readOnly: readOnly,
		shareFD:  shareFD,
		root:     clean,
	}, nil
}

func (o *object) Qid() wire.QID {
	fi, err := os.Lstat(o.path.Canonical())
	if err != nil {
		return wire.QID{Path: o.path.HashKey()}
	}
	return qidFromFileInfo(fi, o.path.HashKey())
}

func qidFromFileInfo(fi os.FileInfo, path uint64) wire.QID {
	var typ uint8
	mode := fi.Mode()
	switch {
	case mode.IsDir():
		typ = wire.QTDIR
	case mode&os.ModeSymlink != 0:
		typ = wire.QTSYMLINK
	case mode&os.ModeAppend != 0:
		typ = wire.QTAPPEND
	default:
		typ = wire.QTFILE
	}
	// Version increases whenever the file's data or metadata changes;
	// mtime nanoseconds is a cheap, monotonic-enough proxy that avoids
	// needing a persistent generation counter per inode.
	version := uint32(fi.ModTime().UnixNano())
	return wire.QID{Type: typ, Version: version, Path: path}
}

func (o *object) Walk(name string) (backend.Object, error) {
	switch name {
	case ".":
		return o, nil
	case "..":
		parent := filepath.Dir(o.path.Canonical())
		if len(o.path.Canonical()) <= len(o.root) {
			parent = o.path.Canonical() // already at export root; ".." is a no-op
		}
		return &object{path: o.pool.Intern(parent), pool: o.pool, readOnly: o.readOnly, shareFD: o.shareFD, root: o.root}, nil
	}
	if strings.Contains(name, "/") {
		return nil, fmt.Errorf("%w: walk name %q contains a separator", backend.ErrInvalid, name)
	}
	fi, err := os.Lstat(o.path.Canonical())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrNotFound, err)
	}
	if !fi.IsDir() {
		return nil, backend.ErrNotDir
	}
	child := filepath.Join(o.path.Canonical(), name)
	if _, err := os.Lstat(child); err != nil {
		return nil, fmt.Errorf("%w: %v", backend.ErrNotFound, err)
	}
	return &object{path: o.pool.Intern(child), pool: o.pool, readOnly: o.readOnly, shareFD: o.shareFD, root: o.root}, nil
}

func (o *object) Getattr(_ uint64) (wire.RgetattrBody, error) {
	var st unix.Stat_t
	if err := unix.Lstat(o.path.Canonical(), &st); err != nil {
		return wire.RgetattrBody{}, fmt.Errorf("%w: %v", backend.ErrNotFound, err)
	}
	return wire.RgetattrBody{
		Valid:   wire.GetattrBasic,
		Qid:     qidFromStat(st, o.path.HashKey()),
		Mode:    st.Mode,
		UID:     st.Uid,
		GID:     st.Gid,
		Nlink:   uint64(st.Nlink),
		Rdev:    st.Rdev,
		Size:    uint64(st.Size),
		Blksize: uint64(st.Blksize),
		Blocks:  uint64(st.Blocks),
		Atime:   int64(st.Atim.Sec),
		AtimeN:  int64(st.Atim.Nsec),
		Mtime:   int64(st.Mtim.Sec),
		MtimeN:  int64(st.Mtim.Nsec),
		Ctime:   int64(st.Ctim.Sec),
		CtimeN:  int64(st.Ctim.Nsec),
	}, nil
}

func qidFromStat(st unix.Stat_t, path uint64) wire.QID {
	var typ uint8
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		typ = wire.QTDIR
	case unix.S_IFLNK:
		typ = wire.QTSYMLINK
	default:
		typ = wire.QTFILE
	}
	return wire.QID{Type: typ, Version: uint32(st.Mtim.Sec), Path: path}
}

func (o *object) Setattr(req wire.TsetattrBody) error {
	p := o.path.Canonical()
	if req.Valid&wire.SetattrMode != 0 {
		if err := os.Chmod(p, os.FileMode(req.Mode&0o7777)); err != nil {
			return fmt.Errorf("%w: chmod: %v", backend.ErrPermission, err)
		}
	}
	if req.Valid&(wire.SetattrUID|wire.SetattrGID) != 0 {
		uid, gid := -1, -1
		if req.Valid&wire.SetattrUID != 0 {
			uid = int(req.UID)
		}
		if req.Valid&wire.SetattrGID != 0 {
			gid = int(req.GID)
		}
		if err := os.Lchown(p, uid, gid); err != nil {
			return fmt.Errorf("%w: chown: %v", backend.ErrPermission, err)
		}
	}
	if req.Valid&wire.SetattrSize != 0 {
		if err := os.Truncate(p, int64(req.Size)); err != nil {
			return fmt.Errorf("%w: truncate: %v", backend.ErrInvalid, err)
		}
	}
	if req.Valid&(wire.SetattrAtime|wire.SetattrMtime) != 0 {
		fi, err := os.Lstat(p)
		if err != nil {
			return fmt.Errorf("%w: %v", backend.ErrNotFound, err)
		}
		atime, mtime := time.Now(), fi.ModTime()
		if req.Valid&wire.SetattrAtimeSet != 0 {
			atime = time.Unix(req.Atime, req.AtimeN)
		}
		if req.Valid&wire.SetattrMtimeSet != 0 {
			mtime = time.Unix(req.Mtime, req.MtimeN)
		} else if req.Valid&wire.SetattrMtime != 0 {
			mtime = time.Now()
		}
		if err := os.Chtimes(p, atime, mtime); err != nil {
			return fmt.Errorf("%w: chtimes: %v", backend.ErrInvalid, err)
		}
	}
	return nil
}

func (o *object) Readlink() (string, error) {
	target, err := os.Readlink(o.path.Canonical())
	if err != nil {
		return "", fmt.Errorf("%w: %v", backend.ErrNotFound, err)
	}
	return target, nil
}

func (o *object) Statfs() (wire.RstatfsBody, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(o.path.Canonical(), &st); err != nil {
		return wire.RstatfsBody{}, fmt.Errorf("%w: statfs: %v", backend.ErrInvalid, err)
	}
	return wire.RstatfsBody{
		Type:    uint32(st.Type),
		Bsize:   uint32(st.Bsize),
		Blocks:  st.Blocks,
		Bfree:   st.Bfree,
		Bavail:  st.Bavail,
		Files:   st.Files,
		Ffree:   st.Ffree,
		Namelen: uint32(st.Namelen),
	}, nil
}

func (o *object) Remove() error {
	if o.readOnly {
		return backend.ErrPermission
	}
	if err := os.Remove(o.path.Canonical()); err != nil {
		return fmt.Errorf("%w: remove: %v", backend.ErrNotFound, err)
	}
	o.path.MarkRemoved()
	o.pool.Release(o.path)
	return nil
}

func (o *object) Rename(newParent backend.Object, newName string) error {
	if o.readOnly {
		return backend.ErrPermission
	}
	np, ok := newParent.(*object)
	if !ok {
		return fmt.Errorf("%w: rename across backends", backend.ErrInvalid)
	}
	dst := filepath.Join(np.path.Canonical(), newName)
	if err := os.Rename(o.path.Canonical(), dst); err != nil {
		return fmt.Errorf("%w: rename: %v", backend.ErrInvalid, err)
	}
	return nil
}

func (o *object) Link(newParent backend.Object, newName string) error {
	if o.readOnly {
		return backend.ErrPermission
	}
	np, ok := newParent.(*object)
	if !ok {
		return fmt.Errorf("%w: link across backends", backend.ErrInvalid)
	}
	dst := filepath.Join(np.path.Canonical(), newName)
	if err := os.Link(o.path.Canonical(), dst); err != nil {
		return fmt.Errorf("%w: link: %v", backend.ErrInvalid, err)
	}
	return nil
}

func (o *object) Symlink(name, target string, _ uint32) (backend.Object, error) {
	if o.readOnly {
		return nil, backend.ErrPermission
	}
	dst := filepath.Join(o.path.Canonical(), name)
	if err := os.Symlink(target, dst); err != nil {
		return nil, fmt.Errorf("%w: symlink: %v", backend.ErrInvalid, err)
	}
	return &object{path: o.pool.Intern(dst), pool: o.pool, readOnly: o.readOnly, shareFD: o.shareFD, root: o.root}, nil
}

func (o *object) Mknod(name string, mode, major, minor, _ uint32) (backend.Object, error) {
	if o.readOnly {
		return nil, backend.ErrPermission
	}
	dst := filepath.Join(o.path.Canonical(), name)
	dev := unix.Mkdev(major, minor)
	if err := unix.Mknod(dst, mode, int(dev)); err != nil {
		return nil, fmt.Errorf("%w: mknod: %v", backend.ErrInvalid, err)
	}
	return &object{path: o.pool.Intern(dst), pool: o.pool, readOnly: o.readOnly, shareFD: o.shareFD, root: o.root}, nil
}
