package mail

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

func TestSendRetriesTransientFailure(t *testing.T) {
	m := NewSMTP("localhost", 2525, "", "", "auth@example.com")
	m.backoff = time.Millisecond

	calls := 0
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		if calls < 3 {
			return errors.New("451 try again")
		}
		return nil
	}

	if err := m.Send(context.Background(), "user@example.com", "Reset", "link"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if calls != 3 {
		t.Fatalf("expected 3 attempts, got %d", calls)
	}
}

func TestSendGivesUpAfterMaxAttempts(t *testing.T) {
	m := NewSMTP("localhost", 2525, "", "", "auth@example.com")
	m.backoff = time.Millisecond

	calls := 0
	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		calls++
		return errors.New("connection refused")
	}

	err := m.Send(context.Background(), "user@example.com", "Reset", "link")
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != maxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxAttempts, calls)
	}
}

func TestSendStopsOnCanceledContext(t *testing.T) {
	m := NewSMTP("localhost", 2525, "", "", "auth@example.com")
	m.backoff = time.Minute

	m.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		return errors.New("transient")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := m.Send(ctx, "user@example.com", "Reset", "link"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestBuildMessageHeaders(t *testing.T) {
	msg := string(buildMessage("auth@example.com", "user@example.com", "Verify your account", "click"))
	for _, want := range []string{
		"From: auth@example.com\r\n",
		"To: user@example.com\r\n",
		"Subject: Verify your account\r\n",
		"\r\n\r\nclick",
	} {
		if !strings.Contains(msg, want) {
			t.Fatalf("message missing %q:\n%s", want, msg)
		}
	}
}
