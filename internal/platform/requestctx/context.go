// Package requestctx carries per-request values shared between middleware and handlers.
package requestctx

import (
	"context"

	"go.uber.org/zap"
)

type ctxKey string

const (
	keyLogger  ctxKey = "logger"
	keyTrace   ctxKey = "trace"
	keySession ctxKey = "editor-session"
)

var nop = zap.NewNop()

// TraceInfo is the trace metadata resolved from inbound headers.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger attaches logger to ctx. A nil logger stores the no-op logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = nop
	}
	return context.WithValue(ctx, keyLogger, logger)
}

// Logger returns the request logger, or a no-op logger when none was attached.
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := loggerFrom(ctx); ok {
		return logger
	}
	return nop
}

// HasLogger reports whether middleware attached a real logger to ctx.
func HasLogger(ctx context.Context) bool {
	logger, ok := loggerFrom(ctx)
	return ok && logger != nop
}

func loggerFrom(ctx context.Context) (*zap.Logger, bool) {
	if ctx == nil {
		return nil, false
	}
	logger, ok := ctx.Value(keyLogger).(*zap.Logger)
	return logger, ok && logger != nil
}

// WithTrace attaches trace metadata to ctx.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return context.WithValue(ctx, keyTrace, info)
}

// Trace returns the trace metadata attached to ctx.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(keyTrace).(TraceInfo)
	return info, ok
}

// TraceID is shorthand for Trace(ctx).TraceID.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithEditorSession scopes ctx to one editor session and tags the request logger with its id.
func WithEditorSession(ctx context.Context, sessionID string) context.Context {
	ctx = context.WithValue(ctx, keySession, sessionID)
	if sessionID == "" {
		return ctx
	}
	return WithLogger(ctx, Logger(ctx).With(zap.String("session_id", sessionID)))
}

// EditorSession returns the editor session id the request is scoped to.
func EditorSession(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(keySession).(string)
	return id
}
