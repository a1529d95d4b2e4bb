package ctl

import (
	"fmt"

	"github.com/marmos91/diod/pkg/backend"
	"github.com/marmos91/diod/pkg/ninep/wire"
)

// fileObject is one leaf of the ctl tree. read is called fresh on every
// Open and Getattr so content like ctl/date or ctl/stats always reflects
// the server's current state rather than a snapshot taken at startup.
// write is nil for read-only files (version, connections, exports, zero,
// date, stats); null and loglevel supply one.
type fileObject struct {
	node
	read  func() []byte
	write func([]byte) (int, error)
}

func newFile(name string, parent *dirObject, read func() []byte, write func([]byte) (int, error)) *fileObject {
	f := &fileObject{read: read, write: write}
	f.name, f.parent, f.qtype = name, parent, wire.QTFILE
	return f
}

func (f *fileObject) Walk(name string) (backend.Object, error) {
	if name == "." {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %q is not a directory", backend.ErrNotDir, f.name)
}

func (f *fileObject) Getattr(mask uint64) (wire.RgetattrBody, error) {
	attr, _ := f.node.Getattr(mask)
	if f.read != nil {
		attr.Size = uint64(len(f.read()))
	}
	return attr, nil
}

func (f *fileObject) Open(flags uint32) (backend.File, uint32, error) {
	if f.write == nil && flags&0x3 != 0 /* not O_RDONLY */ {
		return nil, 0, fmt.Errorf("%w: %q is read-only", backend.ErrPermission, f.name)
	}
	var snapshot []byte
	if f.read != nil {
		snapshot = f.read()
	}
	return &fileHandle{obj: f, snapshot: snapshot}, defaultIounit, nil
}

func (f *fileObject) Create(string, uint32, uint32, uint32) (backend.Object, backend.File, uint32, error) {
	return nil, nil, 0, fmt.Errorf("%w: create under %q", errNotSupported, f.name)
}

func (f *fileObject) Readdir(uint64, uint32) ([]wire.DirEntry, error) {
	return nil, fmt.Errorf("%w: readdir on %q", backend.ErrNotDir, f.name)
}

// fileHandle is the backend.File bound to a fid once Open succeeds. Reads
// serve the snapshot taken at Open time; writes are buffered and handed to
// the owning fileObject's write func as they land, matching how a single
// ctl file write (e.g. "info\n" to loglevel) typically arrives in one
// Twrite.
type fileHandle struct {
	obj      *fileObject
	snapshot []byte
	pending  []byte
}

func (h *fileHandle) ReadAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(h.snapshot)) {
		return 0, nil
	}
	n := copy(p, h.snapshot[off:])
	return n, nil
}

func (h *fileHandle) WriteAt(p []byte, off int64) (int, error) {
	if h.obj.write == nil {
		return 0, fmt.Errorf("%w: %q is read-only", backend.ErrPermission, h.obj.name)
	}
	need := int(off) + len(p)
	if need > len(h.pending) {
		grown := make([]byte, need)
		copy(grown, h.pending)
		h.pending = grown
	}
	copy(h.pending[off:], p)
	return h.obj.write(h.pending)
}

func (h *fileHandle) Fsync() error { return nil }
func (h *fileHandle) Close() error { return nil }

func (h *fileHandle) Lock(wire.TlockBody) (uint8, error) {
	return wire.LockStatusError, fmt.Errorf("%w: lock %q", errNotSupported, h.obj.name)
}

func (h *fileHandle) Getlock(wire.TgetlockBody) (wire.RgetlockBody, error) {
	return wire.RgetlockBody{}, fmt.Errorf("%w: getlock %q", errNotSupported, h.obj.name)
}
