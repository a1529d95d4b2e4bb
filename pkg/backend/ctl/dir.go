package ctl

import (
	"fmt"
	"sort"

	"github.com/marmos91/diod/pkg/backend"
	"github.com/marmos91/diod/pkg/ninep/wire"
)

// dirObject is a static directory in the ctl tree: the root itself, since
// every file the original diod ctl backend exposes lives directly under
// ctl/ with no further nesting.
type dirObject struct {
	node
	children map[string]backend.Object
	order    []string
}

func newDir(name string, parent *dirObject) *dirObject {
	d := &dirObject{children: map[string]backend.Object{}}
	d.name, d.parent, d.qtype = name, parent, wire.QTDIR
	return d
}

func (d *dirObject) add(name string, obj backend.Object) {
	d.children[name] = obj
	d.order = append(d.order, name)
}

func (d *dirObject) Walk(name string) (backend.Object, error) {
	switch name {
	case ".":
		return d, nil
	case "..":
		if d.parent != nil {
			return d.parent, nil
		}
		return d, nil
	}
	child, ok := d.children[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", backend.ErrNotFound, name)
	}
	return child, nil
}

func (d *dirObject) Open(_ uint32) (backend.File, uint32, error) {
	return &dirHandle{dir: d}, defaultIounit, nil
}

func (d *dirObject) Create(string, uint32, uint32, uint32) (backend.Object, backend.File, uint32, error) {
	return nil, nil, 0, fmt.Errorf("%w: create in ctl directory %q", errNotSupported, d.name)
}

// Readdir returns the tree's fixed child list, clamped to fit count bytes
// once encoded — mirrors pkg/backend/posix's Readdir so both backends
// paginate identically from the connection layer's point of view.
func (d *dirObject) Readdir(offset uint64, count uint32) ([]wire.DirEntry, error) {
	names := append([]string(nil), d.order...)
	sort.Strings(names)

	var entries []wire.DirEntry
	var used uint32
	for i, name := range names {
		cookie := uint64(i + 1)
		if cookie <= offset {
			continue
		}
		child := d.children[name]
		entry := wire.DirEntry{Qid: child.Qid(), Offset: cookie, Type: child.Qid().Type, Name: name}
		size := uint32(len(wire.EncodeDirEntry(nil, entry)))
		if used+size > count && len(entries) > 0 {
			break
		}
		entries = append(entries, entry)
		used += size
	}
	return entries, nil
}

const defaultIounit = 32 * 1024

// dirHandle is the backend.File returned by Open on a ctl directory.
// Directory content is read through Readdir, not ReadAt/WriteAt — every
// byte-level method here exists only to satisfy the interface.
type dirHandle struct{ dir *dirObject }

func (h *dirHandle) ReadAt([]byte, int64) (int, error)  { return 0, backend.ErrIsDir }
func (h *dirHandle) WriteAt([]byte, int64) (int, error) { return 0, backend.ErrIsDir }
func (h *dirHandle) Fsync() error                       { return nil }
func (h *dirHandle) Close() error                       { return nil }
func (h *dirHandle) Lock(wire.TlockBody) (uint8, error) {
	return wire.LockStatusError, fmt.Errorf("%w: lock a directory", errNotSupported)
}
func (h *dirHandle) Getlock(req wire.TgetlockBody) (wire.RgetlockBody, error) {
	return wire.RgetlockBody{}, fmt.Errorf("%w: getlock a directory", errNotSupported)
}
