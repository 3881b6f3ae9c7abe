package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/vertyll/fastprod-auth/internal/audit"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 14 * 24 * time.Hour
)

// AccessClaims is the signed claim set carried by an access token. Roles are
// the snapshot taken at issuance; permission changes apply from the next
// rotation, not retroactively to in-flight tokens.
type AccessClaims struct {
	Roles    []string `json:"roles"`
	FamilyID string   `json:"fam"`
	jwt.RegisteredClaims
}

// TokenService issues, verifies and rotates access/refresh token pairs.
// All collaborators arrive through the constructor; there is no ambient
// registry.
type TokenService struct {
	identities IdentityStore
	refresh    RefreshTokenStore
	resolver   *Resolver
	revoked    RevocationSet
	keys       *Keyring
	sink       audit.Sink

	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// TokenOption configures a TokenService.
type TokenOption func(*TokenService)

// WithIssuer sets the iss claim on minted tokens.
func WithIssuer(issuer string) TokenOption {
	return func(s *TokenService) { s.issuer = strings.TrimSpace(issuer) }
}

// WithAccessTTL overrides the access token lifetime.
func WithAccessTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.accessTTL = ttl
		}
	}
}

// WithRefreshTTL overrides the refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) TokenOption {
	return func(s *TokenService) {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) TokenOption {
	return func(s *TokenService) {
		if fn != nil {
			s.now = fn
		}
	}
}

// WithAudit sets the audit sink.
func WithAudit(sink audit.Sink) TokenOption {
	return func(s *TokenService) {
		if sink != nil {
			s.sink = sink
		}
	}
}

// NewTokenService wires the token service with its collaborators.
func NewTokenService(identities IdentityStore, refresh RefreshTokenStore, resolver *Resolver, revoked RevocationSet, keys *Keyring, opts ...TokenOption) (*TokenService, error) {
	if identities == nil || refresh == nil || resolver == nil || revoked == nil || keys == nil {
		return nil, errors.New("auth: token service requires identity store, refresh store, resolver, revocation set and keyring")
	}
	s := &TokenService{
		identities: identities,
		refresh:    refresh,
		resolver:   resolver,
		revoked:    revoked,
		keys:       keys,
		sink:       audit.NopSink{},
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// AccessTTL reports the configured access token lifetime.
func (s *TokenService) AccessTTL() time.Duration { return s.accessTTL }

// Login authenticates credentials and issues a fresh token pair in a new
// family. The password is verified before the status check so a disabled
// account cannot be probed without knowing its password.
func (s *TokenService) Login(ctx context.Context, loginHandle, password string) (TokenPair, *Identity, error) {
	loginHandle = strings.TrimSpace(strings.ToLower(loginHandle))
	if loginHandle == "" || password == "" {
		return TokenPair{}, nil, ErrUnauthenticated
	}
	identity, err := s.identities.FindByLoginHandle(ctx, loginHandle)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			VerifyPasswordDummy(password)
			s.audit(ctx, audit.Event{Kind: audit.KindLoginFailure, Outcome: "unknown_handle"})
			return TokenPair{}, nil, ErrUnauthenticated
		}
		return TokenPair{}, nil, err
	}
	if err := VerifyPassword(identity.PasswordHash, password); err != nil {
		s.audit(ctx, audit.Event{Actor: identity.ID, Kind: audit.KindLoginFailure, Outcome: "bad_password"})
		return TokenPair{}, nil, ErrUnauthenticated
	}
	if identity.Status != StatusActive {
		s.audit(ctx, audit.Event{Actor: identity.ID, Kind: audit.KindLoginFailure, Outcome: identity.Status})
		return TokenPair{}, nil, ErrIdentityDisabled
	}
	roles, err := s.resolver.RolesForIdentity(ctx, identity.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	pair, err := s.Issue(ctx, identity, roles)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.audit(ctx, audit.Event{Actor: identity.ID, Kind: audit.KindLoginSuccess, Outcome: "ok"})
	return pair, identity, nil
}

// Issue mints an access/refresh pair in a brand-new token family, embedding
// the given role snapshot. Fails with ErrIdentityDisabled unless the account
// is active.
func (s *TokenService) Issue(ctx context.Context, identity *Identity, roles []string) (TokenPair, error) {
	if identity == nil {
		return TokenPair{}, fmt.Errorf("%w: identity is required", ErrInvalidInput)
	}
	if identity.Status != StatusActive {
		return TokenPair{}, ErrIdentityDisabled
	}
	familyID := uuid.NewString()
	return s.mint(ctx, identity.ID, familyID, roles)
}

// VerifyAccess checks signature, expiry and family revocation, returning the
// verified claims.
func (s *TokenService) VerifyAccess(ctx context.Context, token string) (*AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrTokenInvalid
	}
	parseOpts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		parseOpts = append(parseOpts, jwt.WithIssuer(s.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &AccessClaims{}, s.keys.Keyfunc, parseOpts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrTokenInvalid
	}
	if claims.FamilyID != "" {
		revoked, err := s.revoked.IsRevoked(ctx, claims.FamilyID)
		if err != nil {
			return nil, err
		}
		if revoked {
			return nil, ErrTokenRevoked
		}
	}
	return claims, nil
}

// Rotate exchanges a refresh token for a new pair in the same family,
// re-snapshotting the subject's roles. Presenting an already-used value is
// treated as a theft signal: the whole family is revoked and the call fails
// with ErrRefreshTokenReused.
func (s *TokenService) Rotate(ctx context.Context, refreshValue string) (TokenPair, *Identity, error) {
	id, secret, err := splitOpaqueToken(refreshValue)
	if err != nil {
		return TokenPair{}, nil, ErrRefreshTokenNotFound
	}
	record, err := s.refresh.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrRefreshTokenNotFound
		}
		return TokenPair{}, nil, err
	}
	if !opaqueHashMatches(record.TokenHash, secret) {
		return TokenPair{}, nil, ErrRefreshTokenNotFound
	}
	if record.UsedAt != nil {
		return TokenPair{}, nil, s.reuseDetected(ctx, record)
	}
	if s.now().After(record.ExpiresAt) {
		return TokenPair{}, nil, ErrRefreshTokenExpired
	}

	// Atomic check-and-set: exactly one of two concurrent rotations wins.
	ok, err := s.refresh.MarkUsed(ctx, record.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	if !ok {
		return TokenPair{}, nil, s.reuseDetected(ctx, record)
	}

	identity, err := s.identities.Find(ctx, record.SubjectID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return TokenPair{}, nil, ErrRefreshTokenNotFound
		}
		return TokenPair{}, nil, err
	}
	if identity.Status != StatusActive {
		return TokenPair{}, nil, ErrIdentityDisabled
	}
	roles, err := s.resolver.RolesForIdentity(ctx, identity.ID)
	if err != nil {
		return TokenPair{}, nil, err
	}
	pair, err := s.mint(ctx, identity.ID, record.FamilyID, roles)
	if err != nil {
		return TokenPair{}, nil, err
	}
	s.audit(ctx, audit.Event{Actor: identity.ID, Kind: audit.KindTokenRefresh, Outcome: "ok", Metadata: map[string]string{
		"family_id": record.FamilyID,
	}})
	return pair, identity, nil
}

// Logout revokes the family of the presented refresh token. Unknown,
// malformed or already-burned values succeed silently so logout stays
// idempotent.
func (s *TokenService) Logout(ctx context.Context, refreshValue string) error {
	id, secret, err := splitOpaqueToken(refreshValue)
	if err != nil {
		return nil
	}
	record, err := s.refresh.Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	if !opaqueHashMatches(record.TokenHash, secret) {
		return nil
	}
	return s.RevokeFamily(ctx, record.FamilyID)
}

// RevokeFamily kills one session lineage: every refresh record in the family
// is marked used and verifyAccess rejects the family's access tokens until
// they would have expired anyway.
func (s *TokenService) RevokeFamily(ctx context.Context, familyID string) error {
	familyID = strings.TrimSpace(familyID)
	if familyID == "" {
		return fmt.Errorf("%w: family id is required", ErrInvalidInput)
	}
	if err := s.refresh.MarkFamilyUsed(ctx, familyID); err != nil {
		return err
	}
	if err := s.revoked.Revoke(ctx, familyID, s.now().Add(s.accessTTL)); err != nil {
		return err
	}
	s.audit(ctx, audit.Event{Kind: audit.KindFamilyRevoked, Outcome: "ok", Metadata: map[string]string{
		"family_id": familyID,
	}})
	return nil
}

// RevokeSubject revokes every active family of the subject. Used by
// logout-all and after any password change.
func (s *TokenService) RevokeSubject(ctx context.Context, subjectID string) error {
	families, err := s.refresh.ActiveFamilies(ctx, subjectID)
	if err != nil {
		return err
	}
	sort.Strings(families)
	for _, fam := range families {
		if err := s.RevokeFamily(ctx, fam); err != nil {
			return err
		}
	}
	return nil
}

// ActiveSessions lists the subject's live session families: one entry per
// lineage that still holds an unused, unexpired refresh token.
func (s *TokenService) ActiveSessions(ctx context.Context, subjectID string) ([]string, error) {
	families, err := s.refresh.ActiveFamilies(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	sort.Strings(families)
	return families, nil
}

func (s *TokenService) reuseDetected(ctx context.Context, record *RefreshToken) error {
	s.audit(ctx, audit.Event{Actor: record.SubjectID, Kind: audit.KindTokenReuse, Outcome: "family_revoked", Metadata: map[string]string{
		"family_id": record.FamilyID,
	}})
	if err := s.RevokeFamily(ctx, record.FamilyID); err != nil {
		return err
	}
	return ErrRefreshTokenReused
}

func (s *TokenService) mint(ctx context.Context, subjectID, familyID string, roles []string) (TokenPair, error) {
	now := s.now().UTC()
	accessExp := now.Add(s.accessTTL)

	claims := AccessClaims{
		Roles:    normalizeRoles(roles),
		FamilyID: familyID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(accessExp),
			ID:        uuid.NewString(),
		},
	}
	if s.issuer != "" {
		claims.Issuer = s.issuer
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	active := s.keys.Active()
	token.Header["kid"] = active.Kid
	signed, err := token.SignedString(active.Secret)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}

	refreshValue, refreshID, refreshHash, err := newOpaqueToken()
	if err != nil {
		return TokenPair{}, err
	}
	refreshRec := &RefreshToken{
		ID:        refreshID,
		FamilyID:  familyID,
		SubjectID: subjectID,
		TokenHash: refreshHash,
		ExpiresAt: now.Add(s.refreshTTL),
	}
	if err := s.refresh.Create(ctx, refreshRec); err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:      signed,
		RefreshToken:     refreshValue,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshRec.ExpiresAt,
	}, nil
}

func (s *TokenService) audit(ctx context.Context, event audit.Event) {
	event.OccurredAt = s.now().UTC()
	_ = s.sink.Record(ctx, event)
}

func normalizeRoles(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	var out []string
	for _, role := range roles {
		role = strings.TrimSpace(role)
		if role == "" {
			continue
		}
		if _, ok := seen[role]; ok {
			continue
		}
		seen[role] = struct{}{}
		out = append(out, role)
	}
	sort.Strings(out)
	return out
}
