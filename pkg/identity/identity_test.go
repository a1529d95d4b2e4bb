package identity

import (
	"os/user"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func currentUsername(t *testing.T) string {
	t.Helper()
	u, err := user.Current()
	require.NoError(t, err)
	return u.Username
}

func TestResolveUnameCachesEntry(t *testing.T) {
	s, err := NewStore(Options{SquashUser: currentUsername(t)})
	require.NoError(t, err)

	uname := currentUsername(t)
	first, err := s.ResolveUname(uname)
	require.NoError(t, err)

	second, err := s.ResolveUname(uname)
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestResolveUnameMissReturnsErrNoSuchUser(t *testing.T) {
	s, err := NewStore(Options{SquashUser: currentUsername(t)})
	require.NoError(t, err)

	_, err = s.ResolveUname("definitely-not-a-real-user-zzz")
	assert.ErrorIs(t, err, ErrNoSuchUser)
}

func TestNoUserDBFabricatesFromNumericUname(t *testing.T) {
	s, err := NewStore(Options{NoUserDB: true, SquashUser: "65534"})
	require.NoError(t, err)

	u, err := s.ResolveUname("1000")
	require.NoError(t, err)
	assert.Equal(t, uint32(1000), u.UID)
	assert.Equal(t, uint32(1000), u.GID)
	assert.Empty(t, u.Groups)
}

func TestNoUserDBRejectsNonNumericUname(t *testing.T) {
	s, err := NewStore(Options{NoUserDB: true, SquashUser: "65534"})
	require.NoError(t, err)

	_, err = s.ResolveUname("alice")
	assert.ErrorIs(t, err, ErrNoSuchUser)
}

func TestPurgeForcesRefetch(t *testing.T) {
	s, err := NewStore(Options{SquashUser: currentUsername(t)})
	require.NoError(t, err)

	uname := currentUsername(t)
	first, err := s.ResolveUname(uname)
	require.NoError(t, err)

	s.Purge()

	second, err := s.ResolveUname(uname)
	require.NoError(t, err)
	assert.Equal(t, first.UID, second.UID)
	assert.NotSame(t, first, second)
}

func TestSquashUserResolvedAtConstruction(t *testing.T) {
	uname := currentUsername(t)
	s, err := NewStore(Options{SquashUser: uname})
	require.NoError(t, err)
	assert.Equal(t, uname, s.SquashUser().Uname)
}

func TestNewStoreFailsOnUnresolvableSquashUser(t *testing.T) {
	_, err := NewStore(Options{SquashUser: "definitely-not-a-real-user-zzz"})
	assert.Error(t, err)
}
