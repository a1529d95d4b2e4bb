package logger

import (
	"log/slog"
)

// Standard field keys for structured logging across the 9P2000.L server.
// Use these consistently so log lines from conn, ops, and the backends can
// be joined on the same keys.
const (
	// ========================================================================
	// Distributed Tracing
	// ========================================================================
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// ========================================================================
	// Protocol & Operation
	// ========================================================================
	KeyMType  = "mtype"  // Tmessage/Rmessage type name
	KeyTag    = "tag"    // 9P tag multiplexing this request
	KeyFid    = "fid"    // fid handle a request operates on
	KeyAname  = "aname"  // attach name (export path or "ctl")
	KeyStatus = "status" // Rerror errno, when applicable

	// ========================================================================
	// File System Operations
	// ========================================================================
	KeyPath       = "path"        // host-side path
	KeyFilename   = "filename"    // basename of a walk component
	KeyParentPath = "parent_path" // parent directory path
	KeyOldPath    = "old_path"    // source path for rename
	KeyNewPath    = "new_path"    // destination path for rename
	KeyType       = "type"        // qid type: file, dir, symlink, etc.
	KeySize       = "size"        // file size in bytes
	KeyMode       = "mode"        // Unix mode/permissions

	// ========================================================================
	// I/O Operations
	// ========================================================================
	KeyOffset       = "offset"        // read/write offset
	KeyCount        = "count"         // bytes requested
	KeyBytesRead    = "bytes_read"    // bytes actually read
	KeyBytesWritten = "bytes_written" // bytes actually written

	// ========================================================================
	// Identity
	// ========================================================================
	KeyClientIP = "client_ip"
	KeyUID      = "uid" // effective uid after credential switching
	KeyGID      = "gid" // effective primary gid
	KeyUname    = "uname"

	// ========================================================================
	// Connection
	// ========================================================================
	KeyConn   = "conn"   // connection label (uuid)
	KeyMsize  = "msize"  // negotiated msize

	// ========================================================================
	// Operation Metadata
	// ========================================================================
	KeyDurationMs = "duration_ms"
	KeyError      = "error"
	KeyErrorCode  = "error_code"

	// ========================================================================
	// Directory Operations
	// ========================================================================
	KeyEntries   = "entries"   // readdir entries returned
	KeyCookie    = "cookie"    // readdir continuation cookie

	// ========================================================================
	// Link Operations
	// ========================================================================
	KeyLinkTarget = "link_target"
	KeyLinkCount  = "link_count"

	// ========================================================================
	// Locking
	// ========================================================================
	KeyLockType   = "lock_type"
	KeyLockOffset = "lock_offset"
	KeyLockLength = "lock_length"
	KeyLockOwner  = "lock_owner"
)

// TraceID returns a slog.Attr for the OpenTelemetry trace ID.
func TraceID(id string) slog.Attr { return slog.String(KeyTraceID, id) }

// SpanID returns a slog.Attr for the OpenTelemetry span ID.
func SpanID(id string) slog.Attr { return slog.String(KeySpanID, id) }

// MType returns a slog.Attr for a 9P message type name.
func MType(name string) slog.Attr { return slog.String(KeyMType, name) }

// Tag returns a slog.Attr for a 9P tag.
func Tag(tag uint16) slog.Attr { return slog.Any(KeyTag, tag) }

// Fid returns a slog.Attr for a fid handle.
func Fid(fid uint32) slog.Attr { return slog.Any(KeyFid, fid) }

// Aname returns a slog.Attr for an attach name.
func Aname(name string) slog.Attr { return slog.String(KeyAname, name) }

// Path returns a slog.Attr for a host-side path.
func Path(p string) slog.Attr { return slog.String(KeyPath, p) }

// Filename returns a slog.Attr for a walk component's basename.
func Filename(name string) slog.Attr { return slog.String(KeyFilename, name) }

// OldPath returns a slog.Attr for rename's source path.
func OldPath(p string) slog.Attr { return slog.String(KeyOldPath, p) }

// NewPath returns a slog.Attr for rename's destination path.
func NewPath(p string) slog.Attr { return slog.String(KeyNewPath, p) }

// Size returns a slog.Attr for a file size.
func Size(s uint64) slog.Attr { return slog.Uint64(KeySize, s) }

// Mode returns a slog.Attr for a Unix mode.
func Mode(m uint32) slog.Attr { return slog.Any(KeyMode, m) }

// Offset returns a slog.Attr for a read/write offset.
func Offset(off uint64) slog.Attr { return slog.Uint64(KeyOffset, off) }

// Count returns a slog.Attr for a byte count requested.
func Count(c uint32) slog.Attr { return slog.Any(KeyCount, c) }

// BytesRead returns a slog.Attr for bytes actually read.
func BytesRead(n int) slog.Attr { return slog.Int(KeyBytesRead, n) }

// BytesWritten returns a slog.Attr for bytes actually written.
func BytesWritten(n int) slog.Attr { return slog.Int(KeyBytesWritten, n) }

// ClientIP returns a slog.Attr for the connection's peer address.
func ClientIP(addr string) slog.Attr { return slog.String(KeyClientIP, addr) }

// UID returns a slog.Attr for an effective uid.
func UID(uid uint32) slog.Attr { return slog.Any(KeyUID, uid) }

// GID returns a slog.Attr for an effective gid.
func GID(gid uint32) slog.Attr { return slog.Any(KeyGID, gid) }

// Uname returns a slog.Attr for an attach-time username.
func Uname(name string) slog.Attr { return slog.String(KeyUname, name) }

// Conn returns a slog.Attr for a connection's uuid label.
func Conn(label string) slog.Attr { return slog.String(KeyConn, label) }

// Msize returns a slog.Attr for a negotiated msize.
func Msize(size uint32) slog.Attr { return slog.Any(KeyMsize, size) }

// DurationMs returns a slog.Attr for an operation's duration in ms.
func DurationMs(ms float64) slog.Attr { return slog.Float64(KeyDurationMs, ms) }

// Err returns a slog.Attr for an error, or a zero Attr for nil.
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String(KeyError, err.Error())
}

// ErrorCode returns a slog.Attr for a numeric errno.
func ErrorCode(code int) slog.Attr { return slog.Int(KeyErrorCode, code) }

// Entries returns a slog.Attr for the number of readdir entries returned.
func Entries(n int) slog.Attr { return slog.Int(KeyEntries, n) }

// Cookie returns a slog.Attr for a readdir continuation cookie.
func Cookie(cookie uint64) slog.Attr { return slog.Uint64(KeyCookie, cookie) }

// LinkTarget returns a slog.Attr for a symlink's target path.
func LinkTarget(target string) slog.Attr { return slog.String(KeyLinkTarget, target) }

// LinkCount returns a slog.Attr for a hard link count.
func LinkCount(count uint32) slog.Attr { return slog.Any(KeyLinkCount, count) }

// LockType returns a slog.Attr for a lock type (read, write, unlock).
func LockType(t string) slog.Attr { return slog.String(KeyLockType, t) }

// LockOffset returns a slog.Attr for a lock range start.
func LockOffset(off uint64) slog.Attr { return slog.Uint64(KeyLockOffset, off) }

// LockLength returns a slog.Attr for a lock range length.
func LockLength(length uint64) slog.Attr { return slog.Uint64(KeyLockLength, length) }

// LockOwner returns a slog.Attr for a lock owner identifier.
func LockOwner(owner string) slog.Attr { return slog.String(KeyLockOwner, owner) }
