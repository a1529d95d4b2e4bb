package auth

// Identity is the Unix-style credential a connection authenticates as:
// either the user resolved from Tattach's uname (or from n_uname when
// uname is empty), or one resolved by a Provider from an afid blob.
type Identity struct {
	// Uname is the user name of the resolved identity; export user lists
	// are matched against it.
	Uname string

	UID uint32
	GID uint32

	// Groups holds supplementary group IDs applied during setgroups before
	// a request executes, per spec.md §5.4.
	Groups []uint32

	// Anonymous marks an identity that was never challenged (no-auth
	// exports, or NoUserDB mode falling back to the squash identity).
	Anonymous bool
}

// Resolver maps a numeric uid to the full Identity (primary gid and
// supplementary groups) the worker pool should assume while servicing
// requests on that uid's behalf. Implementations back this with the host
// passwd/group database, a static table, or a squash-everyone policy,
// depending on config (internal/config.Config.NoUserDB / AllSquash).
type Resolver interface {
	// Resolve returns the Identity for uid, consulting the group database.
	// Implementations may cache entries (spec.md §5.2's lru-backed user
	// cache); an error here becomes Rlerror EIO, never a authentication
	// failure, since uid resolution and authentication are distinct steps.
	Resolve(uid uint32) (Identity, error)
}
