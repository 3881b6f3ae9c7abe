// Package memstore provides in-memory implementations of the auth store
// contracts. They back the test suites and local development; production
// uses the pg package.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vertyll/fastprod-auth/internal/auth"
	"github.com/vertyll/fastprod-auth/internal/ids"
)

// Store bundles every in-memory aggregate behind one mutex.
type Store struct {
	mu sync.Mutex

	identities map[string]*auth.Identity
	byHandle   map[string]string

	roles       map[string]*auth.Role
	assignments map[string]map[string]struct{} // identity id -> role ids

	refresh       map[string]*auth.RefreshToken
	resets        map[string]*auth.PasswordResetToken
	verifications map[string]*auth.VerificationToken

	now func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		identities:    make(map[string]*auth.Identity),
		byHandle:      make(map[string]string),
		roles:         make(map[string]*auth.Role),
		assignments:   make(map[string]map[string]struct{}),
		refresh:       make(map[string]*auth.RefreshToken),
		resets:        make(map[string]*auth.PasswordResetToken),
		verifications: make(map[string]*auth.VerificationToken),
		now:           time.Now,
	}
}

// SetClock overrides the time source.
func (s *Store) SetClock(fn func() time.Time) { s.now = fn }

// Identities returns the identity store view.
func (s *Store) Identities() auth.IdentityStore { return (*identityView)(s) }

// Roles returns the role store view.
func (s *Store) Roles() auth.RoleStore { return (*roleView)(s) }

// RefreshTokens returns the refresh token store view.
func (s *Store) RefreshTokens() auth.RefreshTokenStore { return (*refreshView)(s) }

// ResetTokens returns the reset token store view.
func (s *Store) ResetTokens() auth.ResetTokenStore { return (*resetView)(s) }

// VerificationTokens returns the verification token store view.
func (s *Store) VerificationTokens() auth.VerificationTokenStore { return (*verificationView)(s) }

type identityView Store

func (v *identityView) Create(_ context.Context, identity *auth.Identity) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byHandle[identity.LoginHandle]; exists {
		return auth.ErrConflict
	}
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	now := s.now().UTC()
	identity.CreatedAt = now
	identity.UpdatedAt = now
	cp := *identity
	s.identities[identity.ID] = &cp
	s.byHandle[identity.LoginHandle] = identity.ID
	return nil
}

func (v *identityView) Find(_ context.Context, id string) (*auth.Identity, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (v *identityView) FindByLoginHandle(ctx context.Context, handle string) (*auth.Identity, error) {
	s := (*Store)(v)
	s.mu.Lock()
	id, ok := s.byHandle[handle]
	s.mu.Unlock()
	if !ok {
		return nil, auth.ErrNotFound
	}
	return v.Find(ctx, id)
}

func (v *identityView) UpdatePasswordHash(_ context.Context, id, hash, algo string) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.PasswordHash = hash
	identity.HashAlgo = algo
	identity.UpdatedAt = s.now().UTC()
	return nil
}

func (v *identityView) SetStatus(_ context.Context, id, status string) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return auth.ErrNotFound
	}
	identity.Status = status
	identity.UpdatedAt = s.now().UTC()
	return nil
}

type roleView Store

func (v *roleView) Create(_ context.Context, role *auth.Role) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if existing.Name == role.Name {
			return auth.ErrConflict
		}
	}
	if role.ParentID != "" {
		if _, ok := s.roles[role.ParentID]; !ok {
			return auth.ErrNotFound
		}
	}
	if role.ID == "" {
		role.ID = ids.New()
	}
	now := s.now().UTC()
	role.CreatedAt = now
	role.UpdatedAt = now
	cp := *role
	cp.Permissions = append([]string(nil), role.Permissions...)
	s.roles[role.ID] = &cp
	return nil
}

func (v *roleView) Find(_ context.Context, id string) (*auth.Role, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *role
	cp.Permissions = append([]string(nil), role.Permissions...)
	return &cp, nil
}

func (v *roleView) List(_ context.Context) ([]*auth.Role, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.Role, 0, len(s.roles))
	for _, role := range s.roles {
		cp := *role
		cp.Permissions = append([]string(nil), role.Permissions...)
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (v *roleView) SetPermissions(_ context.Context, roleID string, codes []string) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[roleID]
	if !ok {
		return auth.ErrNotFound
	}
	role.Permissions = append([]string(nil), codes...)
	role.UpdatedAt = s.now().UTC()
	return nil
}

func (v *roleView) Assign(_ context.Context, identityID, roleID string) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.identities[identityID]; !ok {
		return auth.ErrNotFound
	}
	if _, ok := s.roles[roleID]; !ok {
		return auth.ErrNotFound
	}
	set, ok := s.assignments[identityID]
	if !ok {
		set = make(map[string]struct{})
		s.assignments[identityID] = set
	}
	set[roleID] = struct{}{}
	return nil
}

func (v *roleView) Unassign(_ context.Context, identityID, roleID string) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.assignments[identityID]
	if !ok {
		return auth.ErrNotFound
	}
	if _, ok := set[roleID]; !ok {
		return auth.ErrNotFound
	}
	delete(set, roleID)
	return nil
}

func (v *roleView) RolesForIdentity(_ context.Context, identityID string) ([]string, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for roleID := range s.assignments[identityID] {
		if role, ok := s.roles[roleID]; ok {
			names = append(names, role.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

type refreshView Store

func (v *refreshView) Create(_ context.Context, tok *auth.RefreshToken) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.refresh[tok.ID]; exists {
		return auth.ErrConflict
	}
	tok.CreatedAt = s.now().UTC()
	cp := *tok
	s.refresh[tok.ID] = &cp
	return nil
}

func (v *refreshView) Find(_ context.Context, id string) (*auth.RefreshToken, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.refresh[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (v *refreshView) MarkUsed(_ context.Context, id string) (bool, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.refresh[id]
	if !ok {
		return false, auth.ErrNotFound
	}
	if tok.UsedAt != nil {
		return false, nil
	}
	now := s.now().UTC()
	tok.UsedAt = &now
	return true, nil
}

func (v *refreshView) MarkFamilyUsed(_ context.Context, familyID string) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	for _, tok := range s.refresh {
		if tok.FamilyID == familyID && tok.UsedAt == nil {
			t := now
			tok.UsedAt = &t
		}
	}
	return nil
}

func (v *refreshView) ActiveFamilies(_ context.Context, subjectID string) ([]string, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	seen := make(map[string]struct{})
	for _, tok := range s.refresh {
		if tok.SubjectID == subjectID && tok.UsedAt == nil && tok.ExpiresAt.After(now) {
			seen[tok.FamilyID] = struct{}{}
		}
	}
	families := make([]string, 0, len(seen))
	for fam := range seen {
		families = append(families, fam)
	}
	sort.Strings(families)
	return families, nil
}

type resetView Store

func (v *resetView) Create(_ context.Context, tok *auth.PasswordResetToken) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	tok.CreatedAt = s.now().UTC()
	cp := *tok
	s.resets[tok.ID] = &cp
	return nil
}

func (v *resetView) Find(_ context.Context, id string) (*auth.PasswordResetToken, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.resets[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (v *resetView) Consume(_ context.Context, id string) (bool, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.resets[id]
	if !ok {
		return false, auth.ErrNotFound
	}
	if tok.ConsumedAt != nil {
		return false, nil
	}
	now := s.now().UTC()
	tok.ConsumedAt = &now
	return true, nil
}

func (v *resetView) InvalidateForSubject(_ context.Context, subjectID string) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	for _, tok := range s.resets {
		if tok.SubjectID == subjectID && tok.ConsumedAt == nil {
			t := now
			tok.ConsumedAt = &t
		}
	}
	return nil
}

type verificationView Store

func (v *verificationView) Create(_ context.Context, tok *auth.VerificationToken) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	tok.CreatedAt = s.now().UTC()
	cp := *tok
	s.verifications[tok.ID] = &cp
	return nil
}

func (v *verificationView) Find(_ context.Context, id string) (*auth.VerificationToken, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.verifications[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *tok
	return &cp, nil
}

func (v *verificationView) Consume(_ context.Context, id string) (bool, error) {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.verifications[id]
	if !ok {
		return false, auth.ErrNotFound
	}
	if tok.ConsumedAt != nil {
		return false, nil
	}
	now := s.now().UTC()
	tok.ConsumedAt = &now
	return true, nil
}

func (v *verificationView) InvalidateForSubject(_ context.Context, subjectID string) error {
	s := (*Store)(v)
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now().UTC()
	for _, tok := range s.verifications {
		if tok.SubjectID == subjectID && tok.ConsumedAt == nil {
			t := now
			tok.ConsumedAt = &t
		}
	}
	return nil
}
