//go:build linux

package posix

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/marmos91/diod/pkg/backend"
	"github.com/marmos91/diod/pkg/ninep/respool"
	"github.com/marmos91/diod/pkg/ninep/wire"
)

// defaultIounit is advertised when the negotiated msize leaves no tighter
// bound; callers in pkg/ninep/conn may recompute a smaller value from the
// connection's actual msize.
const defaultIounit = 32 * 1024

func (o *object) Open(flags uint32) (backend.File, uint32, error) {
	const accessModeMask = 0x3 // O_RDONLY=0, O_WRONLY=1, O_RDWR=2
	if o.readOnly && flags&accessModeMask != 0 {
		return nil, 0, backend.ErrPermission
	}
	ioctx, err := respool.Open(o.path, flags, o.shareFD, func() (*os.File, error) {
		return os.OpenFile(o.path.Canonical(), int(flags), 0)
	})
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", backend.ErrNotFound, err)
	}
	return &file{path: o.path, pool: o.pool, ioctx: ioctx}, defaultIounit, nil
}

func (o *object) Create(name string, flags uint32, mode uint32, gid uint32) (backend.Object, backend.File, uint32, error) {
	if o.readOnly {
		return nil, nil, 0, backend.ErrPermission
	}
	dst := filepath.Join(o.path.Canonical(), name)
	f, err := os.OpenFile(dst, int(flags)|os.O_CREATE|os.O_EXCL, os.FileMode(mode&0o7777))
	if err != nil {
		return nil, nil, 0, fmt.Errorf("%w: create: %v", backend.ErrExists, err)
	}
	if gid != 0 {
		_ = f.Chown(-1, int(gid))
	}
	child := o.pool.Intern(dst)
	ioctx, err := respool.Open(child, flags, o.shareFD, func() (*os.File, error) { return f, nil })
	if err != nil {
		_ = f.Close()
		return nil, nil, 0, fmt.Errorf("%w: %v", backend.ErrInvalid, err)
	}
	obj := &object{path: child, pool: o.pool, readOnly: o.readOnly, shareFD: o.shareFD, root: o.root}
	return obj, &file{path: child, pool: o.pool, ioctx: ioctx}, defaultIounit, nil
}

func (o *object) Readdir(offset uint64, count uint32) ([]wire.DirEntry, error) {
	entries, err := os.ReadDir(o.path.Canonical())
	if err != nil {
		return nil, fmt.Errorf("%w: readdir: %v", backend.ErrNotDir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	// The 9P readdir cookie is opaque to the client; using the 1-based
	// index of "next entry to return" as the cookie is sufficient since
	// this backend never reorders a directory's listing mid-read.
	var out []wire.DirEntry
	var used uint32
	for i := offset; i < uint64(len(entries)); i++ {
		e := entries[i]
		info, err := e.Info()
		if err != nil {
			continue
		}
		typ := uint8(wire.QTFILE >> 4)
		if info.IsDir() {
			typ = uint8(wire.QTDIR >> 4)
		}
		qid := qidFromFileInfo(info, o.pool.Intern(filepath.Join(o.path.Canonical(), e.Name())).HashKey())
		entryBuf := wire.EncodeDirEntry(nil, wire.DirEntry{Qid: qid, Offset: i + 1, Type: typ, Name: e.Name()})
		if used+uint32(len(entryBuf)) > count {
			break
		}
		used += uint32(len(entryBuf))
		out = append(out, wire.DirEntry{Qid: qid, Offset: i + 1, Type: typ, Name: e.Name()})
	}
	return out, nil
}
