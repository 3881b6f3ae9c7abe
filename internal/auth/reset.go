package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vertyll/fastprod-auth/internal/audit"
)

const defaultResetTTL = 15 * time.Minute

// Mailer is the external mail collaborator. Delivery, templating and retry
// policy live behind this interface; the orchestrator only hands messages
// off and never blocks a response on delivery.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}

// ResetOrchestrator issues and consumes single-use password reset tokens.
type ResetOrchestrator struct {
	identities IdentityStore
	resets     ResetTokenStore
	tokens     *TokenService
	mailer     Mailer
	sink       audit.Sink

	ttl      time.Duration
	now      func() time.Time
	dispatch func(func())
}

// ResetOption configures a ResetOrchestrator.
type ResetOption func(*ResetOrchestrator)

// WithResetTTL overrides the reset token lifetime.
func WithResetTTL(ttl time.Duration) ResetOption {
	return func(o *ResetOrchestrator) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithResetClock overrides the time source.
func WithResetClock(fn func() time.Time) ResetOption {
	return func(o *ResetOrchestrator) {
		if fn != nil {
			o.now = fn
		}
	}
}

// WithResetAudit sets the audit sink.
func WithResetAudit(sink audit.Sink) ResetOption {
	return func(o *ResetOrchestrator) {
		if sink != nil {
			o.sink = sink
		}
	}
}

// WithResetDispatch overrides the async hand-off used for mail sends. Tests
// pass a synchronous function.
func WithResetDispatch(fn func(func())) ResetOption {
	return func(o *ResetOrchestrator) {
		if fn != nil {
			o.dispatch = fn
		}
	}
}

// NewResetOrchestrator wires the reset flow.
func NewResetOrchestrator(identities IdentityStore, resets ResetTokenStore, tokens *TokenService, mailer Mailer, opts ...ResetOption) (*ResetOrchestrator, error) {
	if identities == nil || resets == nil || tokens == nil || mailer == nil {
		return nil, errors.New("auth: reset orchestrator requires identity store, reset store, token service and mailer")
	}
	o := &ResetOrchestrator{
		identities: identities,
		resets:     resets,
		tokens:     tokens,
		mailer:     mailer,
		sink:       audit.NopSink{},
		ttl:        defaultResetTTL,
		now:        time.Now,
		dispatch:   func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// RequestReset issues a fresh single-use token and hands the reset email off
// to the mailer. The response is identical whether or not the handle exists;
// on a miss the orchestrator burns equivalent hash work instead, so neither
// content nor timing reveals account existence.
func (o *ResetOrchestrator) RequestReset(ctx context.Context, loginHandle string) error {
	loginHandle = strings.TrimSpace(strings.ToLower(loginHandle))
	if loginHandle == "" {
		return nil
	}
	identity, err := o.identities.FindByLoginHandle(ctx, loginHandle)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			VerifyPasswordDummy(loginHandle)
			return nil
		}
		return err
	}

	// A new token invalidates any outstanding ones for the subject.
	if err := o.resets.InvalidateForSubject(ctx, identity.ID); err != nil {
		return err
	}
	value, id, hash, err := newOpaqueToken()
	if err != nil {
		return err
	}
	record := &PasswordResetToken{
		ID:        id,
		SubjectID: identity.ID,
		TokenHash: hash,
		ExpiresAt: o.now().UTC().Add(o.ttl),
	}
	if err := o.resets.Create(ctx, record); err != nil {
		return err
	}

	o.audit(ctx, audit.Event{Actor: identity.ID, Kind: audit.KindResetRequested, Outcome: "ok"})

	to := identity.LoginHandle
	o.dispatch(func() {
		body := fmt.Sprintf("A password reset was requested for your account.\n\nReset token: %s\n\nThe token expires in %s. If you did not request this, ignore this message.", value, o.ttl)
		if err := o.mailer.Send(context.WithoutCancel(ctx), to, "Password reset", body); err != nil {
			// Delivery retry is the mailer's concern; here we only record
			// the terminal failure.
			_ = o.sink.Record(context.WithoutCancel(ctx), audit.Event{
				Actor: record.SubjectID, Kind: audit.KindResetRequested, Outcome: "mail_failed",
			})
		}
	})
	return nil
}

// ConsumeReset validates the token, installs the new password and revokes
// every refresh-token family of the subject, ending all existing sessions.
func (o *ResetOrchestrator) ConsumeReset(ctx context.Context, tokenValue, newPassword string) error {
	if strings.TrimSpace(newPassword) == "" {
		return fmt.Errorf("%w: new password is required", ErrInvalidInput)
	}
	id, secret, err := splitOpaqueToken(tokenValue)
	if err != nil {
		return ErrResetTokenNotFound
	}
	record, err := o.resets.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrResetTokenNotFound
		}
		return err
	}
	if !opaqueHashMatches(record.TokenHash, secret) {
		return ErrResetTokenNotFound
	}
	if record.ConsumedAt != nil {
		return ErrResetTokenAlreadyUsed
	}
	if o.now().After(record.ExpiresAt) {
		return ErrResetTokenExpired
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	// Conditional consume: a concurrent attempt with the same token loses.
	ok, err := o.resets.Consume(ctx, record.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrResetTokenAlreadyUsed
	}
	if err := o.identities.UpdatePasswordHash(ctx, record.SubjectID, hash, HashAlgoBcrypt); err != nil {
		return err
	}
	if err := o.tokens.RevokeSubject(ctx, record.SubjectID); err != nil {
		return err
	}
	o.audit(ctx, audit.Event{Actor: record.SubjectID, Kind: audit.KindResetConsumed, Outcome: "ok"})
	return nil
}

func (o *ResetOrchestrator) audit(ctx context.Context, event audit.Event) {
	event.OccurredAt = o.now().UTC()
	_ = o.sink.Record(ctx, event)
}
