package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vertyll/fastprod-auth/internal/audit"
	"github.com/vertyll/fastprod-auth/internal/ids"
)

const defaultVerificationTTL = 24 * time.Hour

// AccountService owns registration, account activation and authenticated
// password changes.
type AccountService struct {
	identities    IdentityStore
	roles         RoleStore
	verifications VerificationTokenStore
	tokens        *TokenService
	mailer        Mailer
	sink          audit.Sink

	defaultRole string
	ttl         time.Duration
	now         func() time.Time
	dispatch    func(func())
}

// AccountOption configures an AccountService.
type AccountOption func(*AccountService)

// WithDefaultRole names the role assigned to every new registration.
func WithDefaultRole(name string) AccountOption {
	return func(s *AccountService) { s.defaultRole = strings.TrimSpace(name) }
}

// WithVerificationTTL overrides the activation token lifetime.
func WithVerificationTTL(ttl time.Duration) AccountOption {
	return func(s *AccountService) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithAccountClock overrides the time source.
func WithAccountClock(fn func() time.Time) AccountOption {
	return func(s *AccountService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAccountAudit sets the audit sink.
func WithAccountAudit(sink audit.Sink) AccountOption {
	return func(s *AccountService) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// WithAccountDispatch overrides the async mail hand-off.
func WithAccountDispatch(fn func(func())) AccountOption {
	return func(s *AccountService) {
		if fn != nil {
			s.dispatch = fn
		}
	}
}

// NewAccountService wires the account flows.
func NewAccountService(identities IdentityStore, roles RoleStore, verifications VerificationTokenStore, tokens *TokenService, mailer Mailer, opts ...AccountOption) (*AccountService, error) {
	if identities == nil || roles == nil || verifications == nil || tokens == nil || mailer == nil {
		return nil, errors.New("auth: account service requires identity, role and verification stores, token service and mailer")
	}
	s := &AccountService{
		identities:    identities,
		roles:         roles,
		verifications: verifications,
		tokens:        tokens,
		mailer:        mailer,
		sink:          audit.NopSink{},
		ttl:           defaultVerificationTTL,
		now:           time.Now,
		dispatch:      func(fn func()) { go fn() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Register creates an identity in pending-verification status, assigns the
// default role and mails an activation token. Login stays blocked until the
// token is consumed.
func (s *AccountService) Register(ctx context.Context, loginHandle, password string) (*Identity, error) {
	loginHandle = strings.TrimSpace(strings.ToLower(loginHandle))
	if loginHandle == "" || !strings.Contains(loginHandle, "@") {
		return nil, fmt.Errorf("%w: valid login handle is required", ErrInvalidInput)
	}
	if len(password) < 8 {
		return nil, fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	identity := &Identity{
		ID:           ids.New(),
		LoginHandle:  loginHandle,
		PasswordHash: hash,
		HashAlgo:     HashAlgoBcrypt,
		Status:       StatusPendingVerification,
	}
	if err := s.identities.Create(ctx, identity); err != nil {
		return nil, err
	}
	if s.defaultRole != "" {
		role, err := s.findRoleByName(ctx, s.defaultRole)
		switch {
		case err == nil:
			if err := s.roles.Assign(ctx, identity.ID, role.ID); err != nil {
				return nil, err
			}
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
	}
	if err := s.issueVerification(ctx, identity); err != nil {
		return nil, err
	}
	s.audit(ctx, audit.Event{Actor: identity.ID, Kind: audit.KindAccountRegistered, Outcome: "ok"})
	return identity, nil
}

// VerifyAccount consumes an activation token and flips the account to active.
func (s *AccountService) VerifyAccount(ctx context.Context, tokenValue string) error {
	id, secret, err := splitOpaqueToken(tokenValue)
	if err != nil {
		return ErrVerificationNotFound
	}
	record, err := s.verifications.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrVerificationNotFound
		}
		return err
	}
	if !opaqueHashMatches(record.TokenHash, secret) {
		return ErrVerificationNotFound
	}
	if record.ConsumedAt != nil {
		return ErrVerificationAlreadyUsed
	}
	if s.now().After(record.ExpiresAt) {
		return ErrVerificationExpired
	}
	ok, err := s.verifications.Consume(ctx, record.ID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrVerificationAlreadyUsed
	}
	if err := s.identities.SetStatus(ctx, record.SubjectID, StatusActive); err != nil {
		return err
	}
	s.audit(ctx, audit.Event{Actor: record.SubjectID, Kind: audit.KindAccountVerified, Outcome: "ok"})
	return nil
}

// ResendVerification issues a fresh activation token, invalidating prior
// ones. Like RequestReset it never reveals whether the handle exists.
func (s *AccountService) ResendVerification(ctx context.Context, loginHandle string) error {
	loginHandle = strings.TrimSpace(strings.ToLower(loginHandle))
	if loginHandle == "" {
		return nil
	}
	identity, err := s.identities.FindByLoginHandle(ctx, loginHandle)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if identity.Status != StatusPendingVerification {
		return nil
	}
	return s.issueVerification(ctx, identity)
}

// ChangePassword verifies the current password, installs the new hash and
// ends every existing session of the identity.
func (s *AccountService) ChangePassword(ctx context.Context, identityID, currentPassword, newPassword string) error {
	if len(newPassword) < 8 {
		return fmt.Errorf("%w: password must be at least 8 characters", ErrInvalidInput)
	}
	identity, err := s.identities.Find(ctx, identityID)
	if err != nil {
		return err
	}
	if err := VerifyPassword(identity.PasswordHash, currentPassword); err != nil {
		return ErrUnauthenticated
	}
	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.identities.UpdatePasswordHash(ctx, identity.ID, hash, HashAlgoBcrypt); err != nil {
		return err
	}
	if err := s.tokens.RevokeSubject(ctx, identity.ID); err != nil {
		return err
	}
	s.audit(ctx, audit.Event{Actor: identity.ID, Kind: audit.KindPasswordChanged, Outcome: "ok"})
	return nil
}

func (s *AccountService) issueVerification(ctx context.Context, identity *Identity) error {
	if err := s.verifications.InvalidateForSubject(ctx, identity.ID); err != nil {
		return err
	}
	value, id, hash, err := newOpaqueToken()
	if err != nil {
		return err
	}
	record := &VerificationToken{
		ID:        id,
		SubjectID: identity.ID,
		TokenHash: hash,
		ExpiresAt: s.now().UTC().Add(s.ttl),
	}
	if err := s.verifications.Create(ctx, record); err != nil {
		return err
	}
	to := identity.LoginHandle
	s.dispatch(func() {
		body := fmt.Sprintf("Welcome!\n\nActivation token: %s\n\nThe token expires in %s.", value, s.ttl)
		_ = s.mailer.Send(context.WithoutCancel(ctx), to, "Account activation", body)
	})
	return nil
}

func (s *AccountService) findRoleByName(ctx context.Context, name string) (*Role, error) {
	roles, err := s.roles.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if role.Name == name {
			return role, nil
		}
	}
	return nil, ErrNotFound
}

func (s *AccountService) audit(ctx context.Context, event audit.Event) {
	event.OccurredAt = s.now().UTC()
	_ = s.sink.Record(ctx, event)
}
