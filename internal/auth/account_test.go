package auth_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vertyll/fastprod-auth/internal/auth"
)

func newAccountEnv(t *testing.T) (*tokenEnv, *auth.AccountService, *recordingMailer) {
	t.Helper()
	env := newTokenEnv(t)
	mailer := &recordingMailer{}
	accounts, err := auth.NewAccountService(env.store.Identities(), env.store.Roles(),
		env.store.VerificationTokens(), env.tokens, mailer,
		auth.WithDefaultRole("member"),
		auth.WithAccountClock(env.clock.Now),
		auth.WithAccountDispatch(func(fn func()) { fn() }))
	if err != nil {
		t.Fatalf("NewAccountService: %v", err)
	}
	return env, accounts, mailer
}

func TestRegisterStartsPending(t *testing.T) {
	env, accounts, mailer := newAccountEnv(t)
	ctx := context.Background()

	identity, err := accounts.Register(ctx, "Erin@Example.COM", "long enough pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if identity.LoginHandle != "erin@example.com" {
		t.Fatalf("handle not normalized: %q", identity.LoginHandle)
	}
	if identity.Status != auth.StatusPendingVerification {
		t.Fatalf("status %q", identity.Status)
	}
	if mailer.count() != 1 {
		t.Fatalf("expected 1 activation mail, got %d", mailer.count())
	}
	if _, _, err := env.tokens.Login(ctx, "erin@example.com", "long enough pw"); !errors.Is(err, auth.ErrIdentityDisabled) {
		t.Fatalf("login before verification: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	_, accounts, _ := newAccountEnv(t)
	ctx := context.Background()

	if _, err := accounts.Register(ctx, "no-at-sign", "long enough pw"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("bad handle: %v", err)
	}
	if _, err := accounts.Register(ctx, "ok@example.com", "short"); !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("short password: %v", err)
	}
	if _, err := accounts.Register(ctx, "dana@example.com", "long enough pw"); !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("duplicate handle: %v", err)
	}
}

type faultyRoleStore struct {
	auth.RoleStore
	listErr error
}

func (s *faultyRoleStore) List(context.Context) ([]*auth.Role, error) { return nil, s.listErr }

func TestRegisterSurfacesRoleStoreFailure(t *testing.T) {
	env := newTokenEnv(t)
	mailer := &recordingMailer{}
	boom := errors.New("role store down")
	accounts, err := auth.NewAccountService(env.store.Identities(),
		&faultyRoleStore{RoleStore: env.store.Roles(), listErr: boom},
		env.store.VerificationTokens(), env.tokens, mailer,
		auth.WithDefaultRole("member"),
		auth.WithAccountClock(env.clock.Now),
		auth.WithAccountDispatch(func(fn func()) { fn() }))
	if err != nil {
		t.Fatalf("NewAccountService: %v", err)
	}

	if _, err := accounts.Register(context.Background(), "erin@example.com", "long enough pw"); !errors.Is(err, boom) {
		t.Fatalf("expected role store error, got %v", err)
	}
	if mailer.count() != 0 {
		t.Fatal("activation mail sent for failed registration")
	}
}

func TestRegisterToleratesMissingDefaultRole(t *testing.T) {
	env := newTokenEnv(t)
	mailer := &recordingMailer{}
	accounts, err := auth.NewAccountService(env.store.Identities(), env.store.Roles(),
		env.store.VerificationTokens(), env.tokens, mailer,
		auth.WithDefaultRole("nonexistent"),
		auth.WithAccountClock(env.clock.Now),
		auth.WithAccountDispatch(func(fn func()) { fn() }))
	if err != nil {
		t.Fatalf("NewAccountService: %v", err)
	}

	identity, err := accounts.Register(context.Background(), "erin@example.com", "long enough pw")
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	roles, err := env.store.Roles().RolesForIdentity(context.Background(), identity.ID)
	if err != nil {
		t.Fatalf("RolesForIdentity: %v", err)
	}
	if len(roles) != 0 {
		t.Fatalf("unexpected roles %v", roles)
	}
}

func TestVerifyActivatesAndAssignsDefaultRole(t *testing.T) {
	env, accounts, mailer := newAccountEnv(t)
	ctx := context.Background()

	if _, err := accounts.Register(ctx, "erin@example.com", "long enough pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token := mailer.token(t)
	if err := accounts.VerifyAccount(ctx, token); err != nil {
		t.Fatalf("VerifyAccount: %v", err)
	}

	pair, identity, err := env.tokens.Login(ctx, "erin@example.com", "long enough pw")
	if err != nil {
		t.Fatalf("Login after verification: %v", err)
	}
	claims, err := env.tokens.VerifyAccess(ctx, pair.AccessToken)
	if err != nil {
		t.Fatalf("VerifyAccess: %v", err)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "member" {
		t.Fatalf("default role not in snapshot: %v (identity %s)", claims.Roles, identity.ID)
	}

	if err := accounts.VerifyAccount(ctx, token); !errors.Is(err, auth.ErrVerificationAlreadyUsed) {
		t.Fatalf("reused verification token: %v", err)
	}
}

func TestVerificationTokenExpires(t *testing.T) {
	env, accounts, mailer := newAccountEnv(t)
	ctx := context.Background()

	if _, err := accounts.Register(ctx, "erin@example.com", "long enough pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	token := mailer.token(t)
	env.clock.Advance(25 * time.Hour)
	if err := accounts.VerifyAccount(ctx, token); !errors.Is(err, auth.ErrVerificationExpired) {
		t.Fatalf("expected ErrVerificationExpired, got %v", err)
	}
}

func TestResendVerification(t *testing.T) {
	_, accounts, mailer := newAccountEnv(t)
	ctx := context.Background()

	if _, err := accounts.Register(ctx, "erin@example.com", "long enough pw"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	stale := mailer.token(t)

	if err := accounts.ResendVerification(ctx, "erin@example.com"); err != nil {
		t.Fatalf("ResendVerification: %v", err)
	}
	fresh := mailer.token(t)

	if err := accounts.VerifyAccount(ctx, stale); !errors.Is(err, auth.ErrVerificationAlreadyUsed) {
		t.Fatalf("stale token should be invalidated: %v", err)
	}
	if err := accounts.VerifyAccount(ctx, fresh); err != nil {
		t.Fatalf("fresh token rejected: %v", err)
	}

	// Verified and unknown handles are both silent no-ops.
	before := mailer.count()
	if err := accounts.ResendVerification(ctx, "erin@example.com"); err != nil {
		t.Fatalf("resend after verification: %v", err)
	}
	if err := accounts.ResendVerification(ctx, "ghost@example.com"); err != nil {
		t.Fatalf("resend for unknown: %v", err)
	}
	if mailer.count() != before {
		t.Fatal("mail sent for non-pending handle")
	}
}

func TestChangePassword(t *testing.T) {
	env, accounts, _ := newAccountEnv(t)
	ctx := context.Background()

	pair, _, err := env.tokens.Login(ctx, "dana@example.com", "correct horse battery")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	if err := accounts.ChangePassword(ctx, env.identity.ID, "wrong", "new password 99"); !errors.Is(err, auth.ErrUnauthenticated) {
		t.Fatalf("wrong current password: %v", err)
	}
	if err := accounts.ChangePassword(ctx, env.identity.ID, "correct horse battery", "new password 99"); err != nil {
		t.Fatalf("ChangePassword: %v", err)
	}

	// Every pre-change session is dead.
	if _, _, err := env.tokens.Rotate(ctx, pair.RefreshToken); !errors.Is(err, auth.ErrRefreshTokenReused) {
		t.Fatalf("old session survived password change: %v", err)
	}
	if _, _, err := env.tokens.Login(ctx, "dana@example.com", "new password 99"); err != nil {
		t.Fatalf("login with new password: %v", err)
	}
}
