package requestctx

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLoggerFallsBackToNop(t *testing.T) {
	ctx := context.Background()
	if HasLogger(ctx) {
		t.Fatalf("expected no logger on empty context")
	}
	if Logger(ctx) == nil {
		t.Fatalf("expected no-op logger")
	}
	if HasLogger(WithLogger(ctx, nil)) {
		t.Fatalf("nil logger should not count as attached")
	}
}

func TestWithEditorSessionTagsLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := WithLogger(context.Background(), zap.New(core))
	ctx = WithEditorSession(ctx, "sess-1")

	if got := EditorSession(ctx); got != "sess-1" {
		t.Fatalf("expected session id, got %q", got)
	}
	Logger(ctx).Info("edited")

	entries := logs.FilterMessage("edited").All()
	if len(entries) != 1 {
		t.Fatalf("expected one entry, got %d", len(entries))
	}
	if entries[0].ContextMap()["session_id"] != "sess-1" {
		t.Fatalf("expected session_id field, got %v", entries[0].ContextMap())
	}
}

func TestTraceRoundTrip(t *testing.T) {
	ctx := WithTrace(context.Background(), TraceInfo{TraceID: "abc", ProjectID: "p"})
	if TraceID(ctx) != "abc" {
		t.Fatalf("expected trace id")
	}
	if _, ok := Trace(context.Background()); ok {
		t.Fatalf("expected no trace on empty context")
	}
}
