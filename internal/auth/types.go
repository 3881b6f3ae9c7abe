package auth

import "time"

const (
	StatusActive              = "active"
	StatusLocked              = "locked"
	StatusPendingVerification = "pending-verification"
	StatusDisabled            = "disabled"
)

// Identity is a user account as seen by the auth core. Domain entities
// (employees, production records) live behind other services; the core only
// owns the credential and status of the account itself.
type Identity struct {
	ID           string    `json:"id"`
	LoginHandle  string    `json:"login_handle"`
	PasswordHash string    `json:"-"`
	HashAlgo     string    `json:"-"`
	Status       string    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role groups permission codes. ParentID points at an optional ancestor whose
// permissions the role inherits.
type Role struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	ParentID    string    `json:"parent_id,omitempty"`
	Permissions []string  `json:"permissions,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Permission is an opaque capability code such as "employee:write".
type Permission struct {
	Key         string    `json:"key"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// RoleAssignment links an identity to a role.
type RoleAssignment struct {
	IdentityID string    `json:"identity_id"`
	RoleID     string    `json:"role_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// RefreshToken is the persisted half of a refresh credential. Only the SHA-256
// of the random secret is stored; the wire form is "<id>.<secret>".
type RefreshToken struct {
	ID        string
	FamilyID  string
	SubjectID string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	UsedAt    *time.Time
}

// PasswordResetToken is a persisted single-use credential for the reset flow.
type PasswordResetToken struct {
	ID         string
	SubjectID  string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// VerificationToken activates a freshly registered account. Same mechanics as
// a reset token, separate lifecycle.
type VerificationToken struct {
	ID         string
	SubjectID  string
	TokenHash  string
	ExpiresAt  time.Time
	CreatedAt  time.Time
	ConsumedAt *time.Time
}

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
