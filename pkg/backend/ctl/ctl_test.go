package ctl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/diod/pkg/backend"
)

func readAll(t *testing.T, obj backend.Object) string {
	t.Helper()
	f, _, err := obj.Open(0)
	require.NoError(t, err)
	defer f.Close()

	buf := make([]byte, 4096)
	n, _ := f.ReadAt(buf, 0)
	return string(buf[:n])
}

func TestVersionFileReportsConfiguredVersion(t *testing.T) {
	root := NewRoot(Config{Version: "9.9.9"})
	f, err := root.Walk("version")
	require.NoError(t, err)
	assert.Equal(t, "9.9.9\n", readAll(t, f))
}

func TestConnectionsAndExportsJoinLines(t *testing.T) {
	root := NewRoot(Config{
		Connections: func() []string { return []string{"10.0.0.1:5000", "10.0.0.2:5001"} },
		Exports:     func() []string { return []string{"/srv/a", "/srv/b"} },
	})

	conns, err := root.Walk("connections")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1:5000\n10.0.0.2:5001\n", readAll(t, conns))

	exports, err := root.Walk("exports")
	require.NoError(t, err)
	assert.Equal(t, "/srv/a\n/srv/b\n", readAll(t, exports))
}

func TestNullDiscardsWrites(t *testing.T) {
	root := NewRoot(Config{})
	null, err := root.Walk("null")
	require.NoError(t, err)

	f, _, err := null.Open(1)
	require.NoError(t, err)
	n, err := f.WriteAt([]byte("anything"), 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestZeroReturnsZeroBytes(t *testing.T) {
	root := NewRoot(Config{})
	zero, err := root.Walk("zero")
	require.NoError(t, err)

	f, _, err := zero.Open(0)
	require.NoError(t, err)
	buf := make([]byte, 16)
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	for i := 0; i < n; i++ {
		assert.Equal(t, byte(0), buf[i])
	}
}

func TestLoglevelWriteInvokesSetter(t *testing.T) {
	var got string
	root := NewRoot(Config{SetLogLevel: func(level string) error {
		got = level
		return nil
	}})
	ll, err := root.Walk("loglevel")
	require.NoError(t, err)

	f, _, err := ll.Open(1)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte("debug\n"), 0)
	require.NoError(t, err)
	assert.Equal(t, "debug", got)
}

func TestReadOnlyFileRejectsWriteOpen(t *testing.T) {
	root := NewRoot(Config{Version: "1.0"})
	v, err := root.Walk("version")
	require.NoError(t, err)

	_, _, err = v.Open(1 /* O_WRONLY */)
	assert.ErrorIs(t, err, backend.ErrPermission)
}

func TestReaddirListsAllCtlFiles(t *testing.T) {
	root := NewRoot(Config{})
	entries, err := root.Readdir(0, 65536)
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, e := range entries {
		names[e.Name] = true
	}
	for _, want := range []string{"version", "connections", "exports", "null", "zero", "date", "stats", "loglevel"} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestWalkUnknownNameFails(t *testing.T) {
	root := NewRoot(Config{})
	_, err := root.Walk("nonexistent")
	assert.ErrorIs(t, err, backend.ErrNotFound)
}

func TestWalkDotDotOnFileFails(t *testing.T) {
	root := NewRoot(Config{Version: "1.0"})
	v, err := root.Walk("version")
	require.NoError(t, err)
	_, err = v.Walk("..")
	assert.ErrorIs(t, err, backend.ErrNotDir)
}

func TestBackendRootReturnsCtlTreeRegardlessOfAname(t *testing.T) {
	b := NewBackend(Config{Version: "1.0"})
	root, err := b.Root("ctl")
	require.NoError(t, err)
	assert.Equal(t, uint8(0x80), root.Qid().Type) // QTDIR
}
