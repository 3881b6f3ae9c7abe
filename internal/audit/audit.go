// Package audit is the append-only sink for security-relevant events. Every
// denial and every refresh-reuse detection is recorded before the HTTP
// response is written, so monitoring never misses an event because of a later
// failure. Sink errors are reported to the log but never fail the request.
package audit

import (
	"context"
	"strings"
	"time"

	"github.com/vertyll/fastprod-auth/internal/obs"
)

// Event kinds emitted by the auth core.
const (
	KindLoginSuccess      = "login.success"
	KindLoginFailure      = "login.failure"
	KindTokenRefresh      = "token.refresh"
	KindTokenReuse        = "token.reuse_detected"
	KindFamilyRevoked     = "family.revoked"
	KindPermissionDenied  = "permission.denied"
	KindResetRequested    = "reset.requested"
	KindResetConsumed     = "reset.consumed"
	KindAccountRegistered = "account.registered"
	KindAccountVerified   = "account.verified"
	KindPasswordChanged   = "password.changed"
)

// AnonymousActor marks events with no authenticated subject.
const AnonymousActor = "anonymous"

// Event is one append-only record. Never mutated after Record; retention is
// an external concern.
type Event struct {
	OccurredAt time.Time         `json:"occurred_at"`
	Actor      string            `json:"actor"`
	Kind       string            `json:"kind"`
	Outcome    string            `json:"outcome"`
	RequestID  string            `json:"request_id,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Sink accepts events. Implementations must be safe for concurrent use.
type Sink interface {
	Record(ctx context.Context, event Event) error
}

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier used to correlate audit
// events with request logs.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext extracts the audit request id, if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogSink writes events as JSON lines through the shared service logger.
type LogSink struct {
	now func() time.Time
}

// NewLogSink returns a sink backed by obs.Logger.
func NewLogSink() *LogSink {
	return &LogSink{now: time.Now}
}

// Record emits the event as one structured line.
func (s *LogSink) Record(ctx context.Context, event Event) error {
	normalize(&event, s.now, ctx)
	entry := map[string]any{
		"ts":    event.OccurredAt.Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event.Kind,
		"actor": event.Actor,
	}
	if event.Outcome != "" {
		entry["outcome"] = event.Outcome
	}
	if event.RequestID != "" {
		entry["request_id"] = event.RequestID
	}
	if len(event.Metadata) > 0 {
		entry["fields"] = event.Metadata
	}
	obs.Emit(entry)
	return nil
}

// Recorder fans an event out to every configured sink. A failing sink is
// logged and skipped so a storage hiccup cannot suppress the log line.
type Recorder struct {
	sinks []Sink
	now   func() time.Time
}

// NewRecorder builds a fan-out recorder. Nil sinks are dropped.
func NewRecorder(sinks ...Sink) *Recorder {
	r := &Recorder{now: time.Now}
	for _, s := range sinks {
		if s != nil {
			r.sinks = append(r.sinks, s)
		}
	}
	return r
}

// Record delivers the event to all sinks synchronously.
func (r *Recorder) Record(ctx context.Context, event Event) error {
	normalize(&event, r.now, ctx)
	for _, s := range r.sinks {
		if err := s.Record(ctx, event); err != nil {
			obs.Log("error", "audit sink failed", map[string]any{
				"event": event.Kind,
				"error": err.Error(),
			})
		}
	}
	return nil
}

// NopSink discards events. Used when a component is constructed without audit
// wiring, e.g. in tests.
type NopSink struct{}

func (NopSink) Record(context.Context, Event) error { return nil }

func normalize(event *Event, now func() time.Time, ctx context.Context) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = now().UTC()
	}
	if event.Actor == "" {
		event.Actor = AnonymousActor
	}
	if event.RequestID == "" {
		event.RequestID = RequestIDFromContext(ctx)
	}
}
