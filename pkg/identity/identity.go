// Package identity resolves 9P attach identities (uname/uid) against the
// host passwd/group database, with a bounded cache keyed by both uname and
// uid (spec.md §4.3). Lookups never synthesize a user: a miss is a hard
// error unless the server is running in no-userdb mode.
package identity

import (
	"errors"
	"fmt"
	"os/user"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// User is a resolved identity: uname plus the uid/gid/supplementary-group
// set the worker pool assumes while servicing requests on its behalf
// (spec.md §3 "User").
type User struct {
	Uname  string
	UID    uint32
	GID    uint32
	Groups []uint32
}

// ErrNoSuchUser is returned on a cache/host lookup miss. Per spec.md §4.3,
// the resolver never fabricates a user for a name or uid it cannot find.
var ErrNoSuchUser = errors.New("identity: no such user")

// Store resolves and caches Users. It is safe for concurrent use: the
// underlying LRU caches are internally locked (Purge empties them in
// place), and mu guards only the squash-user field.
type Store struct {
	mu         sync.RWMutex
	byUID      *lru.Cache[uint32, *User]
	byName     *lru.Cache[string, *User]
	noUserDB   bool
	cacheSize  int
	squashUser *User
}

// Options configures a new Store.
type Options struct {
	// CacheSize bounds the number of entries per index (uid, uname).
	CacheSize int

	// NoUserDB makes Resolve fabricate uid==gid==parsed-uname with no
	// supplementary groups instead of consulting the host database
	// (spec.md §4.3: "used only when the host has no usable passwd
	// database").
	NoUserDB bool

	// SquashUser names the identity substituted for root-squash and
	// allsquash policies (default "nobody"), resolved once at startup.
	SquashUser string
}

// NewStore builds a Store and eagerly resolves the squash user, failing
// fast if it cannot be found — a squash policy with no valid target is a
// misconfiguration, not a runtime condition to discover lazily.
func NewStore(opts Options) (*Store, error) {
	size := opts.CacheSize
	if size <= 0 {
		size = 1024
	}
	byUID, err := lru.New[uint32, *User](size)
	if err != nil {
		return nil, fmt.Errorf("identity: allocate uid cache: %w", err)
	}
	byName, err := lru.New[string, *User](size)
	if err != nil {
		return nil, fmt.Errorf("identity: allocate uname cache: %w", err)
	}

	s := &Store{
		byUID:     byUID,
		byName:    byName,
		noUserDB:  opts.NoUserDB,
		cacheSize: size,
	}

	squashName := opts.SquashUser
	if squashName == "" {
		squashName = "nobody"
	}
	squash, err := s.ResolveUname(squashName)
	if err != nil {
		return nil, fmt.Errorf("identity: resolve squash user %q: %w", squashName, err)
	}
	s.mu.Lock()
	s.squashUser = squash
	s.mu.Unlock()
	return s, nil
}

// SquashUser returns the identity used for allsquash/root-squash.
func (s *Store) SquashUser() *User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.squashUser
}

// ResolveUID returns the User for uid, consulting the cache first.
func (s *Store) ResolveUID(uid uint32) (*User, error) {
	if u, ok := s.byUID.Get(uid); ok {
		return u, nil
	}
	if s.noUserDB {
		u := &User{Uname: strconv.FormatUint(uint64(uid), 10), UID: uid, GID: uid}
		s.store(u)
		return u, nil
	}
	osUser, err := user.LookupId(strconv.FormatUint(uint64(uid), 10))
	if err != nil {
		return nil, fmt.Errorf("%w: uid %d: %v", ErrNoSuchUser, uid, err)
	}
	u, err := fromOSUser(osUser)
	if err != nil {
		return nil, err
	}
	s.store(u)
	return u, nil
}

// ResolveUname returns the User for uname, consulting the cache first.
func (s *Store) ResolveUname(uname string) (*User, error) {
	if u, ok := s.byName.Get(uname); ok {
		return u, nil
	}
	if s.noUserDB {
		uid, err := strconv.ParseUint(uname, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%w: no-userdb mode requires a numeric uname, got %q", ErrNoSuchUser, uname)
		}
		u := &User{Uname: uname, UID: uint32(uid), GID: uint32(uid)}
		s.store(u)
		return u, nil
	}
	osUser, err := user.Lookup(uname)
	if err != nil {
		return nil, fmt.Errorf("%w: uname %q: %v", ErrNoSuchUser, uname, err)
	}
	u, err := fromOSUser(osUser)
	if err != nil {
		return nil, err
	}
	s.store(u)
	return u, nil
}

func (s *Store) store(u *User) {
	s.byUID.Add(u.UID, u)
	s.byName.Add(u.Uname, u)
}

// Purge drops every cached entry so the next lookup refetches from the host
// database. Called on SIGHUP (spec.md §4.3, §6: strict invalidation was
// chosen over best-effort unreferenced-only eviction).
func (s *Store) Purge() {
	s.byUID.Purge()
	s.byName.Purge()
}

func fromOSUser(osUser *user.User) (*User, error) {
	uid, err := strconv.ParseUint(osUser.Uid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("identity: unparsable uid %q for %q: %w", osUser.Uid, osUser.Username, err)
	}
	gid, err := strconv.ParseUint(osUser.Gid, 10, 32)
	if err != nil {
		return nil, fmt.Errorf("identity: unparsable gid %q for %q: %w", osUser.Gid, osUser.Username, err)
	}
	gidStrs, err := osUser.GroupIds()
	if err != nil {
		return nil, fmt.Errorf("identity: supplementary groups for %q: %w", osUser.Username, err)
	}
	groups := make([]uint32, 0, len(gidStrs))
	for _, gs := range gidStrs {
		g, err := strconv.ParseUint(gs, 10, 32)
		if err != nil {
			continue
		}
		groups = append(groups, uint32(g))
	}
	return &User{
		Uname:  osUser.Username,
		UID:    uint32(uid),
		GID:    uint32(gid),
		Groups: groups,
	}, nil
}
