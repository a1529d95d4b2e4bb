//go:build linux

package conn

import (
	"errors"

	"golang.org/x/sys/unix"

	"github.com/marmos91/diod/pkg/auth"
	"github.com/marmos91/diod/pkg/backend"
	"github.com/marmos91/diod/pkg/export"
	"github.com/marmos91/diod/pkg/identity"
	"github.com/marmos91/diod/pkg/ninep/fidtable"
)

// errno maps a Go error from the backend/identity/export/auth layers to the
// Linux errno carried in Rerror (spec.md §6's 9P2000.L extension: Rerror
// always includes both ename and errno). Anything that matches none of the
// known sentinels falls back to EIO — "something went wrong we don't have
// a dedicated code for" is closer to an I/O failure than any more specific
// errno would be.
func errno(err error) uint32 {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, backend.ErrNotFound):
		return uint32(unix.ENOENT)
	case errors.Is(err, backend.ErrPermission):
		return uint32(unix.EPERM)
	case errors.Is(err, backend.ErrExists):
		return uint32(unix.EEXIST)
	case errors.Is(err, backend.ErrNotDir):
		return uint32(unix.ENOTDIR)
	case errors.Is(err, backend.ErrIsDir):
		return uint32(unix.EISDIR)
	case errors.Is(err, backend.ErrInvalid):
		return uint32(unix.EINVAL)
	case errors.Is(err, backend.ErrNotSupported):
		return uint32(unix.ENOSYS)
	case errors.Is(err, fidtable.ErrNoSuchFid), errors.Is(err, fidtable.ErrFidInUse):
		return uint32(unix.EBADF)
	case errors.Is(err, fidtable.ErrFidOpen):
		return uint32(unix.EBUSY)
	case errors.Is(err, export.ErrNotExported), errors.Is(err, export.ErrUserNotAllowed):
		return uint32(unix.EPERM)
	case errors.Is(err, identity.ErrNoSuchUser):
		return uint32(unix.EINVAL)
	case errors.Is(err, auth.ErrAuthFailed), errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUnsupportedMechanism):
		return uint32(unix.EPERM)
	default:
		return uint32(unix.EIO)
	}
}
