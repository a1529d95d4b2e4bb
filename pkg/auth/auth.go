// Package auth implements the afid authentication handshake described in
// spec.md §5.3: a client optionally walks an afid through Tauth, then writes
// an opaque credential blob to it before Tattach references it. The
// historical diod implementation expects a MUNGE-encoded blob; this package
// is deliberately pluggable so a deployment can swap that for any other
// blob format without touching the connection or fid-table code.
package auth

import (
	"context"
	"errors"
)

// Provider validates an opaque credential blob written to an afid and
// produces the Unix identity it asserts. Implementations must be safe for
// concurrent use: the worker pool calls Authenticate from many goroutines.
type Provider interface {
	// Name identifies the provider for logging ("munge", "none").
	Name() string

	// Authenticate validates blob (the bytes written to the afid across one
	// or more Twrite calls before Tattach) and returns the identity it
	// asserts, or an error wrapping ErrAuthFailed / ErrInvalidCredentials.
	Authenticate(ctx context.Context, blob []byte) (*Result, error)
}

// Result is the outcome of a successful afid authentication.
type Result struct {
	Identity Identity
	Provider string
}

// Standard authentication errors. Callers should use errors.Is against
// these rather than matching on provider-specific error text.
var (
	ErrAuthFailed           = errors.New("auth: authentication failed")
	ErrUnsupportedMechanism = errors.New("auth: unsupported authentication mechanism")
	ErrInvalidCredentials   = errors.New("auth: invalid or truncated credential blob")
)

// NoneProvider implements Provider for exports served with -n (no-auth):
// every afid is accepted and asserts the identity supplied by the Tattach
// uname/n_uname fields directly, with no blob validation at all.
type NoneProvider struct{}

func (NoneProvider) Name() string { return "none" }

func (NoneProvider) Authenticate(_ context.Context, _ []byte) (*Result, error) {
	return &Result{Identity: Identity{Anonymous: true}, Provider: "none"}, nil
}
