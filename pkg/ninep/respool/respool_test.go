package respool

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathPoolInternReusesEntry(t *testing.T) {
	pp := NewPathPool()
	a := pp.Intern("/export/etc/hostname")
	b := pp.Intern("/export/etc/hostname")
	assert.Same(t, a, b)
	assert.Equal(t, 1, pp.Len())
}

func TestPathPoolReleaseRemovesAtZero(t *testing.T) {
	pp := NewPathPool()
	h := pp.Intern("/export/etc/hostname")
	pp.Intern("/export/etc/hostname") // refcount 2
	pp.Release(h)
	assert.Equal(t, 1, pp.Len())
	pp.Release(h)
	assert.Equal(t, 0, pp.Len())
}

func TestPathPoolDistinctPathsDistinctHandles(t *testing.T) {
	pp := NewPathPool()
	a := pp.Intern("/export/a")
	b := pp.Intern("/export/b")
	assert.NotSame(t, a, b)
}

func TestIOCtxSharedOpenOneDescriptor(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))

	pp := NewPathPool()
	path := pp.Intern(file)

	opens := 0
	openFn := func() (*os.File, error) {
		opens++
		return os.Open(file)
	}

	h1, err := Open(path, 0 /* O_RDONLY */, true, openFn)
	require.NoError(t, err)
	h2, err := Open(path, 0, true, openFn)
	require.NoError(t, err)

	assert.Same(t, h1, h2)
	assert.Equal(t, 1, opens)

	require.NoError(t, Release(path, h1))
	buf := make([]byte, 5)
	_, err = h2.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf))

	require.NoError(t, Release(path, h2))
}

func TestIOCtxNotSharedWithoutSharefd(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(file, []byte("hi"), 0o644))

	pp := NewPathPool()
	path := pp.Intern(file)

	opens := 0
	openFn := func() (*os.File, error) {
		opens++
		return os.Open(file)
	}

	h1, err := Open(path, 0, false, openFn)
	require.NoError(t, err)
	h2, err := Open(path, 0, false, openFn)
	require.NoError(t, err)

	assert.NotSame(t, h1, h2)
	assert.Equal(t, 2, opens)

	require.NoError(t, Release(path, h1))
	require.NoError(t, Release(path, h2))
}

func TestPathHandleHashKeyStable(t *testing.T) {
	pp := NewPathPool()
	h := pp.Intern("/ctl/version")
	assert.Equal(t, h.HashKey(), h.HashKey())
}

func TestMarkRemoved(t *testing.T) {
	pp := NewPathPool()
	h := pp.Intern("/export/gone")
	assert.False(t, h.Removed())
	h.MarkRemoved()
	assert.True(t, h.Removed())
}
