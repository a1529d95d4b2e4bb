package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context carried alongside a 9P
// request's context.Context, so a deeply nested call (a backend syscall
// wrapper, say) can log without threading tag/fid/uid through every
// signature.
type LogContext struct {
	TraceID   string    // OpenTelemetry trace ID
	SpanID    string    // OpenTelemetry span ID
	MType     string    // 9P message type name (Tread, Twrite, ...)
	Aname     string    // attach name the request's fid descends from
	ClientIP  string    // client peer address (without port)
	UID       uint32    // effective uid after credential switching
	GID       uint32    // effective primary gid
	StartTime time.Time // for duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the given client IP
func NewLogContext(clientIP string) *LogContext {
	return &LogContext{
		ClientIP:  clientIP,
		StartTime: time.Now(),
	}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	return &LogContext{
		TraceID:   lc.TraceID,
		SpanID:    lc.SpanID,
		MType:     lc.MType,
		Aname:     lc.Aname,
		ClientIP:  lc.ClientIP,
		UID:       lc.UID,
		GID:       lc.GID,
		StartTime: lc.StartTime,
	}
}

// WithMType returns a copy with the message type set
func (lc *LogContext) WithMType(mtype string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.MType = mtype
	}
	return clone
}

// WithAname returns a copy with the attach name set
func (lc *LogContext) WithAname(aname string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Aname = aname
	}
	return clone
}

// WithIdentity returns a copy with the effective uid/gid set
func (lc *LogContext) WithIdentity(uid, gid uint32) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.UID = uid
		clone.GID = gid
	}
	return clone
}

// WithTrace returns a copy with trace info set
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
