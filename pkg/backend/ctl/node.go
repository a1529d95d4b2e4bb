package ctl

import (
	"errors"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/marmos91/diod/pkg/backend"
	"github.com/marmos91/diod/pkg/ninep/wire"
)

var errNotSupported = errors.New("ctl: operation not supported on the ctl backend")

// node carries the state every ctl Object shares: its name, parent (for
// ".."  and qid hashing), and a mode bit (dir vs file). Embedding node and
// overriding only what differs keeps dirObject/fileObject from each having
// to restate the dozen no-op Object methods the static ctl tree doesn't
// support (rename, link, mknod, xattrs, ...).
type node struct {
	name   string
	parent *dirObject
	qtype  uint8
}

func (n *node) qidPath() uint64 {
	full := n.name
	for p := n.parent; p != nil; p = p.parent {
		full = p.name + "/" + full
	}
	return xxhash.Sum64String(full)
}

func (n *node) Qid() wire.QID {
	return wire.QID{Type: n.qtype, Path: n.qidPath()}
}

func (n *node) Getattr(_ uint64) (wire.RgetattrBody, error) {
	mode := uint32(0o444)
	if n.qtype == wire.QTDIR {
		mode = 0o755 | 0040000
	}
	return wire.RgetattrBody{
		Valid: wire.GetattrBasic,
		Qid:   n.Qid(),
		Mode:  mode,
		Nlink: 1,
	}, nil
}

func (n *node) Setattr(wire.TsetattrBody) error {
	return fmt.Errorf("%w: setattr on ctl node %q", errNotSupported, n.name)
}

func (n *node) Remove() error { return fmt.Errorf("%w: remove %q", errNotSupported, n.name) }

func (n *node) Rename(backend.Object, string) error {
	return fmt.Errorf("%w: rename %q", errNotSupported, n.name)
}

func (n *node) Link(backend.Object, string) error {
	return fmt.Errorf("%w: link into %q", errNotSupported, n.name)
}

func (n *node) Symlink(string, string, uint32) (backend.Object, error) {
	return nil, fmt.Errorf("%w: symlink in %q", errNotSupported, n.name)
}

func (n *node) Mknod(string, uint32, uint32, uint32, uint32) (backend.Object, error) {
	return nil, fmt.Errorf("%w: mknod in %q", errNotSupported, n.name)
}

func (n *node) Readlink() (string, error) {
	return "", fmt.Errorf("%w: readlink %q", errNotSupported, n.name)
}

func (n *node) Statfs() (wire.RstatfsBody, error) {
	return wire.RstatfsBody{Bsize: 4096, Namelen: 255}, nil
}

func (n *node) Xattrwalk(string) (uint64, error) {
	return 0, fmt.Errorf("%w: xattrs on ctl node %q", errNotSupported, n.name)
}

func (n *node) XattrCreate(string, uint64, uint32) error {
	return fmt.Errorf("%w: xattrs on ctl node %q", errNotSupported, n.name)
}

func (n *node) XattrRead(string, uint64, uint32) ([]byte, error) {
	return nil, fmt.Errorf("%w: xattrs on ctl node %q", errNotSupported, n.name)
}

func (n *node) XattrWrite(string, uint64, []byte) (uint32, error) {
	return 0, fmt.Errorf("%w: xattrs on ctl node %q", errNotSupported, n.name)
}
