package auth

import "context"

// IdentityStore is the credential store contract. The single source of truth
// for accounts; identities referenced by live sessions are soft-disabled via
// SetStatus, never deleted.
type IdentityStore interface {
	Create(ctx context.Context, identity *Identity) error
	Find(ctx context.Context, id string) (*Identity, error)
	FindByLoginHandle(ctx context.Context, handle string) (*Identity, error)
	UpdatePasswordHash(ctx context.Context, id, hash, algo string) error
	SetStatus(ctx context.Context, id, status string) error
}

// RoleStore manages the role graph and identity assignments.
type RoleStore interface {
	Create(ctx context.Context, role *Role) error
	Find(ctx context.Context, id string) (*Role, error)
	// List returns every role with its own permission codes and parent link
	// preloaded; the resolver builds its adjacency structure from this.
	List(ctx context.Context) ([]*Role, error)
	SetPermissions(ctx context.Context, roleID string, codes []string) error
	Assign(ctx context.Context, identityID, roleID string) error
	Unassign(ctx context.Context, identityID, roleID string) error
	RolesForIdentity(ctx context.Context, identityID string) ([]string, error)
}

// RefreshTokenStore persists refresh records. MarkUsed must be a conditional
// update on the unused flag so concurrent rotations of the same value cannot
// both succeed.
type RefreshTokenStore interface {
	Create(ctx context.Context, tok *RefreshToken) error
	Find(ctx context.Context, id string) (*RefreshToken, error)
	// MarkUsed reports false when the record was already used.
	MarkUsed(ctx context.Context, id string) (bool, error)
	MarkFamilyUsed(ctx context.Context, familyID string) error
	// ActiveFamilies lists family ids with at least one unused token.
	ActiveFamilies(ctx context.Context, subjectID string) ([]string, error)
}

// ResetTokenStore persists password reset tokens. Consume is the same
// conditional check-and-set as RefreshTokenStore.MarkUsed.
type ResetTokenStore interface {
	Create(ctx context.Context, tok *PasswordResetToken) error
	Find(ctx context.Context, id string) (*PasswordResetToken, error)
	Consume(ctx context.Context, id string) (bool, error)
	InvalidateForSubject(ctx context.Context, subjectID string) error
}

// VerificationTokenStore persists account activation tokens.
type VerificationTokenStore interface {
	Create(ctx context.Context, tok *VerificationToken) error
	Find(ctx context.Context, id string) (*VerificationToken, error)
	Consume(ctx context.Context, id string) (bool, error)
	InvalidateForSubject(ctx context.Context, subjectID string) error
}
