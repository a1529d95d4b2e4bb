// Package backend defines the filesystem object interface the connection
// and worker layers drive (spec.md §4.10): every 9P operation that
// ultimately touches a file becomes a method call on an Object. Two
// implementations exist: pkg/backend/posix (host directory passthrough)
// and pkg/backend/ctl (synthetic diagnostic files).
package backend

import (
	"errors"

	"github.com/marmos91/diod/pkg/ninep/wire"
)

// Standard backend errors, mapped to Rerror/errno by pkg/ninep/conn.
var (
	ErrNotDir      = errors.New("backend: not a directory")
	ErrIsDir       = errors.New("backend: is a directory")
	ErrNotSupported = errors.New("backend: operation not supported")
	ErrNotFound    = errors.New("backend: no such file or directory")
	ErrPermission  = errors.New("backend: permission denied")
	ErrExists      = errors.New("backend: file exists")
	ErrInvalid     = errors.New("backend: invalid argument")
)

// File is a backend's open-file handle, bound into an IOCtx by the fid
// table once Topen/Tcreate succeeds. Lock/Getlock live here rather than on
// Object because POSIX locking is a property of an open description, not
// of the path (spec.md §4.10: "Lock and getlock support BSD-style
// whole-file advisory locks").
type File interface {
	ReadAt(p []byte, off int64) (int, error)
	WriteAt(p []byte, off int64) (int, error)
	Fsync() error
	Close() error

	Lock(req wire.TlockBody) (uint8, error)
	Getlock(req wire.TgetlockBody) (wire.RgetlockBody, error)
}

// Object is one filesystem entity: directory, regular file, symlink,
// device node, or (in the ctl backend) a synthetic diagnostic file. Every
// method corresponds to one or more 9P2000.L message types (spec.md
// §4.10's operation list).
type Object interface {
	Qid() wire.QID

	Getattr(mask uint64) (wire.RgetattrBody, error)
	Setattr(req wire.TsetattrBody) error

	// Walk resolves a single path component relative to this object (".."
	// included). The caller loops this once per Twalk name component so
	// that partial-success semantics (spec.md §4.4) fall out naturally.
	Walk(name string) (Object, error)

	Open(flags uint32) (File, uint32, error)
	Create(name string, flags uint32, mode uint32, gid uint32) (Object, File, uint32, error)

	Readdir(offset uint64, count uint32) ([]wire.DirEntry, error)

	Remove() error
	Rename(newParent Object, newName string) error
	Link(newParent Object, newName string) error
	Symlink(name, target string, gid uint32) (Object, error)
	Mknod(name string, mode, major, minor, gid uint32) (Object, error)
	Readlink() (string, error)

	Statfs() (wire.RstatfsBody, error)

	// Xattrwalk clones this object into an xattr-reading fid for `name`
	// and reports its current size (spec.md §4.10).
	Xattrwalk(name string) (size uint64, err error)
	// XattrCreate starts an xattr write of name with declared length size.
	// The POSIX backend writes each XattrWrite through to the host
	// attribute at once and uses size only to reject offsets beyond it.
	XattrCreate(name string, size uint64, flags uint32) error
	XattrRead(name string, offset uint64, count uint32) ([]byte, error)
	XattrWrite(name string, offset uint64, data []byte) (uint32, error)
}

// Backend resolves an export's aname to its root Object.
type Backend interface {
	Root(aname string) (Object, error)
}
