package export

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveExactMatch(t *testing.T) {
	l := NewList([]Entry{{Path: "/export"}}, false)
	e, err := l.Resolve("/export")
	require.NoError(t, err)
	assert.Equal(t, "/export", e.Path)
}

func TestResolveDescendant(t *testing.T) {
	l := NewList([]Entry{{Path: "/export"}}, false)
	e, err := l.Resolve("/export/etc/hostname")
	require.NoError(t, err)
	assert.Equal(t, "/export", e.Path)
}

func TestResolveLongestPrefixWins(t *testing.T) {
	l := NewList([]Entry{
		{Path: "/export", ReadOnly: false},
		{Path: "/export/ro", ReadOnly: true},
	}, false)
	e, err := l.Resolve("/export/ro/file")
	require.NoError(t, err)
	assert.True(t, e.ReadOnly)
}

func TestResolveRejectsUnexportedPath(t *testing.T) {
	l := NewList([]Entry{{Path: "/export"}}, false)
	_, err := l.Resolve("/etc/shadow")
	assert.ErrorIs(t, err, ErrNotExported)
}

func TestResolveExportAllSynthesizesEntry(t *testing.T) {
	l := NewList(nil, true)
	e, err := l.Resolve("/mnt/whatever")
	require.NoError(t, err)
	assert.Equal(t, "/mnt/whatever", e.Path)
}

func TestEntryAllowsEmptyUsersPermitsAll(t *testing.T) {
	e := Entry{}
	assert.True(t, e.Allows("anyone"))
}

func TestEntryAllowsRestrictsToList(t *testing.T) {
	e := Entry{Users: []string{"alice", "bob"}}
	assert.True(t, e.Allows("bob"))
	assert.False(t, e.Allows("eve"))
}

func TestParseOpts(t *testing.T) {
	e := ParseOpts("sharefd,privport,ro")
	assert.True(t, e.ShareFD)
	assert.True(t, e.RequirePrivPort)
	assert.True(t, e.ReadOnly)
	assert.False(t, e.SharePath)
}

func TestEntriesReturnsSnapshot(t *testing.T) {
	l := NewList([]Entry{{Path: "/a"}}, false)
	snap := l.Entries()
	snap[0].Path = "/mutated"
	again, err := l.Resolve("/a")
	require.NoError(t, err)
	assert.Equal(t, "/a", again.Path)
}
