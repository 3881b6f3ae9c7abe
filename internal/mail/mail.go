// Package mail delivers the transactional messages the auth flows produce:
// verification links and password reset links. Delivery runs off the request
// path; failures are logged and retried, never surfaced to the caller.
package mail

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/vertyll/fastprod-auth/internal/obs"
)

const (
	maxAttempts  = 3
	retryBackoff = 2 * time.Second
)

// SMTPMailer sends plain-text mail over authenticated SMTP with a bounded
// retry on transient failures.
type SMTPMailer struct {
	addr     string
	from     string
	auth     smtp.Auth
	send     func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	backoff  time.Duration
	attempts int
}

// NewSMTP configures a mailer against host:port. Username may be empty for
// unauthenticated relays.
func NewSMTP(host string, port int, username, password, from string) *SMTPMailer {
	m := &SMTPMailer{
		addr:     fmt.Sprintf("%s:%d", host, port),
		from:     from,
		send:     smtp.SendMail,
		backoff:  retryBackoff,
		attempts: maxAttempts,
	}
	if username != "" {
		m.auth = smtp.PlainAuth("", username, password, host)
	}
	return m
}

// Send delivers one message, retrying transient failures with a fixed
// backoff. The context bounds the whole attempt loop.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	msg := buildMessage(m.from, to, subject, body)
	var lastErr error
	for attempt := 1; attempt <= m.attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = m.send(m.addr, m.auth, m.from, []string{to}, msg)
		if lastErr == nil {
			return nil
		}
		obs.Log("warn", "smtp delivery failed", map[string]any{
			"attempt": attempt,
			"error":   lastErr.Error(),
		})
		if attempt < m.attempts {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(m.backoff):
			}
		}
	}
	return fmt.Errorf("smtp: %d attempts failed: %w", m.attempts, lastErr)
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}

// LogMailer writes messages to the service log instead of delivering them.
// Default in development so flows are testable without an SMTP relay.
type LogMailer struct{}

// Send logs the message envelope and body.
func (LogMailer) Send(_ context.Context, to, subject, body string) error {
	obs.Log("info", "mail (log only)", map[string]any{
		"to":      to,
		"subject": subject,
		"body":    body,
	})
	return nil
}
