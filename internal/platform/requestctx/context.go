package requestctx

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/requestctx/logger"
	traceContextKey  contextKey = "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/requestctx/trace"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	if !ok {
		return TraceInfo{}, false
	}
	return info, true
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, ok := Trace(ctx)
	if !ok {
		return ""
	}
	return info.TraceID
}

const metaContextKey contextKey = "github.com/Prince-Affedzie/Freshy-Food-Backend/internal/platform/requestctx/meta"

// Meta carries values discovered by inner middleware back to the outer request logger.
type Meta struct {
	mu     sync.Mutex
	userID string
}

// WithMeta attaches a fresh Meta to the context.
func WithMeta(ctx context.Context) (context.Context, *Meta) {
	if ctx == nil {
		ctx = context.Background()
	}
	meta := &Meta{}
	return context.WithValue(ctx, metaContextKey, meta), meta
}

// MetaFrom returns the request Meta, or nil outside a logged request.
func MetaFrom(ctx context.Context) *Meta {
	if ctx == nil {
		return nil
	}
	meta, _ := ctx.Value(metaContextKey).(*Meta)
	return meta
}

// SetUserID records the authenticated caller.
func (m *Meta) SetUserID(id string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	m.userID = id
	m.mu.Unlock()
}

// UserID returns the authenticated caller, if any.
func (m *Meta) UserID() string {
	if m == nil {
		return ""
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.userID
}
