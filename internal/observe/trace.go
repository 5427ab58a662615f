package observe

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/MrWong99/voicecanvas"

// Tracer returns the voicecanvas tracer from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(tracerName)
}

// StartSpan starts a span on [Tracer]. The caller must end it.
func StartSpan(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, trace.Span) {
	return Tracer().Start(ctx, name, opts...)
}

// CorrelationID returns the trace id of the span in ctx, or "" without one.
// The HTTP middleware echoes it as X-Correlation-ID.
func CorrelationID(ctx context.Context) string {
	sc := trace.SpanContextFromContext(ctx)
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// ── Session scope ────────────────────────────────────────────────────────────

type sessionKey struct{}

// SessionScope identifies the realtime session a context belongs to.
type SessionScope struct {
	SessionID string
	VoiceID   string
}

// WithSession returns a copy of ctx carrying s. [Logger] adds it to every
// record logged with the returned context.
func WithSession(ctx context.Context, s SessionScope) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

// SessionFromContext returns the session scope stored in ctx.
func SessionFromContext(ctx context.Context) (SessionScope, bool) {
	s, ok := ctx.Value(sessionKey{}).(SessionScope)
	return s, ok
}

// Logger returns the default logger with the trace and session attributes
// found in ctx. An empty voice id is logged as "default".
func Logger(ctx context.Context) *slog.Logger {
	l := slog.Default()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		l = l.With(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	if s, ok := SessionFromContext(ctx); ok {
		voice := s.VoiceID
		if voice == "" {
			voice = "default"
		}
		l = l.With(slog.String("session_id", s.SessionID), slog.String("voice_id", voice))
	}
	return l
}
