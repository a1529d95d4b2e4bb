// Package fidtable implements the per-connection fid table (spec.md §3
// "Fid", §4.4): a map from protocol-level fid numbers to live server-side
// resources, with walk/clone/clunk semantics and atomicity guarantees.
package fidtable

import (
	"errors"
	"fmt"
	"sync"

	"github.com/marmos91/diod/pkg/auth"
	"github.com/marmos91/diod/pkg/backend"
	"github.com/marmos91/diod/pkg/ninep/wire"
)

// Errors surfaced as Rerror by the connection layer.
var (
	ErrFidInUse  = errors.New("fidtable: fid in use")
	ErrNoSuchFid = errors.New("fidtable: no such fid")
	ErrFidOpen   = errors.New("fidtable: fid is open")
)

// Fid is a protocol-level handle: the owning identity, the backend object
// it currently references, and open-mode state once Topen/Tcreate succeeds
// (spec.md §3 "Fid"). It is deliberately backend-agnostic — Object/File are
// the pkg/backend interfaces, so the same Table serves both the POSIX and
// ctl backends without knowing which one is behind a given fid.
type Fid struct {
	Num    uint32
	User   auth.Identity
	Object backend.Object
	File   backend.File // nil until opened
	Qid    wire.QID
	Opened bool
	Flags  uint32
	Iounit uint32

	// XattrName/XattrSize track an Txattrwalk/Txattrcreate-derived fid,
	// which behaves like an opened fid for read/write but is not backed by
	// a File (spec.md §4.10): xattr I/O goes through Object.XattrRead/Write
	// instead.
	XattrName string
	XattrSize uint64
}

// IsOpen reports whether the fid has been opened (and so may not be used as
// a walk source, spec.md §4.4).
func (f *Fid) IsOpen() bool { return f.Opened }

// IsXattr reports whether this fid was derived from Txattrwalk/Txattrcreate.
func (f *Fid) IsXattr() bool { return f.XattrName != "" }

// Table is the per-connection fid → Fid map.
type Table struct {
	mu   sync.RWMutex
	fids map[uint32]*Fid
}

// New returns an empty Table.
func New() *Table {
	return &Table{fids: make(map[uint32]*Fid)}
}

// Insert adds fid under num, failing with ErrFidInUse if already present.
func (t *Table) Insert(num uint32, fid *Fid) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.fids[num]; exists {
		return fmt.Errorf("%w: %d", ErrFidInUse, num)
	}
	fid.Num = num
	t.fids[num] = fid
	return nil
}

// Lookup returns the Fid for num, or ErrNoSuchFid.
func (t *Table) Lookup(num uint32) (*Fid, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fid, ok := t.fids[num]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchFid, num)
	}
	return fid, nil
}

// Remove deletes num from the table, returning the removed Fid (or
// ErrNoSuchFid). Callers are responsible for closing the Fid's File, if
// any — Remove itself does no resource teardown, matching the layering
// where fidtable owns only the handle-number namespace (spec.md §4.4).
func (t *Table) Remove(num uint32) (*Fid, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	fid, ok := t.fids[num]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrNoSuchFid, num)
	}
	delete(t.fids, num)
	return fid, nil
}

// Foreach calls fn for every Fid currently in the table. Used at connection
// teardown to synthesize a clunk for every remaining fid (spec.md §4.4).
// fn must not call back into the Table (Insert/Remove) — it is invoked
// under the table's read lock.
func (t *Table) Foreach(fn func(*Fid)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, fid := range t.fids {
		fn(fid)
	}
}

// Len returns the number of live fids, used for diagnostics (ctl/stats).
func (t *Table) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.fids)
}

// Clone allocates a new Fid carrying the same User and Object as src, used
// by Twalk when newfid != fid (spec.md §4.4: "A clone allocates a new Fid
// ... on full success installs it under the target fid"). The caller
// installs the returned Fid into the table only after a successful walk; on
// partial failure the clone is discarded and never reaches Insert,
// preserving walk atomicity (spec.md §8 property 7).
func Clone(src *Fid) *Fid {
	return &Fid{
		User:   src.User,
		Object: src.Object,
		Qid:    src.Qid,
	}
}
