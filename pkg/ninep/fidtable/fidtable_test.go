package fidtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/diod/pkg/auth"
)

func TestInsertLookupRemove(t *testing.T) {
	tbl := New()
	fid := &Fid{User: auth.Identity{UID: 1000}}
	require.NoError(t, tbl.Insert(1, fid))

	got, err := tbl.Lookup(1)
	require.NoError(t, err)
	assert.Equal(t, fid, got)

	removed, err := tbl.Remove(1)
	require.NoError(t, err)
	assert.Equal(t, fid, removed)

	_, err = tbl.Lookup(1)
	assert.ErrorIs(t, err, ErrNoSuchFid)
}

func TestInsertDuplicateFails(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Insert(1, &Fid{}))
	err := tbl.Insert(1, &Fid{})
	assert.ErrorIs(t, err, ErrFidInUse)
}

func TestRemoveUnknownFails(t *testing.T) {
	tbl := New()
	_, err := tbl.Remove(99)
	assert.ErrorIs(t, err, ErrNoSuchFid)
}

func TestForeachVisitsAllFids(t *testing.T) {
	tbl := New()
	require.NoError(t, tbl.Insert(1, &Fid{}))
	require.NoError(t, tbl.Insert(2, &Fid{}))

	seen := map[uint32]bool{}
	tbl.Foreach(func(f *Fid) { seen[f.Num] = true })
	assert.Equal(t, map[uint32]bool{1: true, 2: true}, seen)
	assert.Equal(t, 2, tbl.Len())
}

func TestCloneCopiesUserNotNum(t *testing.T) {
	src := &Fid{Num: 5, User: auth.Identity{UID: 42}}
	clone := Clone(src)
	assert.Equal(t, src.User, clone.User)
	assert.Equal(t, uint32(0), clone.Num)
}
