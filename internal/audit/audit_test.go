package audit

import (
	"context"
	"errors"
	"testing"
	"time"
)

type memorySink struct {
	events []Event
	err    error
}

func (s *memorySink) Record(_ context.Context, event Event) error {
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

func TestRecorderNormalizesEvents(t *testing.T) {
	sink := &memorySink{}
	rec := NewRecorder(sink)
	rec.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }

	ctx := WithRequestID(context.Background(), "req-7")
	if err := rec.Record(ctx, Event{Kind: KindLoginFailure, Outcome: "bad_password"}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if len(sink.events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(sink.events))
	}
	got := sink.events[0]
	if got.Actor != AnonymousActor {
		t.Fatalf("actor %q, expected anonymous default", got.Actor)
	}
	if got.RequestID != "req-7" {
		t.Fatalf("request id %q not taken from context", got.RequestID)
	}
	if got.OccurredAt.IsZero() {
		t.Fatal("timestamp not filled")
	}
}

func TestRecorderFanOutSurvivesFailingSink(t *testing.T) {
	broken := &memorySink{err: errors.New("storage down")}
	working := &memorySink{}
	rec := NewRecorder(broken, working)

	if err := rec.Record(context.Background(), Event{Kind: KindTokenReuse}); err != nil {
		t.Fatalf("Record must not propagate sink errors: %v", err)
	}
	if len(working.events) != 1 {
		t.Fatal("healthy sink skipped after broken one")
	}
}

func TestRecorderDropsNilSinks(t *testing.T) {
	rec := NewRecorder(nil, &memorySink{}, nil)
	if len(rec.sinks) != 1 {
		t.Fatalf("expected 1 sink, got %d", len(rec.sinks))
	}
}

func TestRequestIDContext(t *testing.T) {
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("empty context returned %q", got)
	}
	ctx := WithRequestID(context.Background(), "  ")
	if got := RequestIDFromContext(ctx); got != "" {
		t.Fatalf("blank id stored: %q", got)
	}
	ctx = WithRequestID(context.Background(), "abc")
	if got := RequestIDFromContext(ctx); got != "abc" {
		t.Fatalf("got %q", got)
	}
}
