package auth

import "errors"

// Per-request failures are surfaced to the caller as structured errors; only
// ErrRoleHierarchyCycle is fatal, detected when the role graph is loaded.
var (
	ErrUnauthenticated = errors.New("auth: missing or malformed credential")

	ErrTokenInvalid = errors.New("auth: access token invalid")
	ErrTokenExpired = errors.New("auth: access token expired")
	ErrTokenRevoked = errors.New("auth: access token revoked")

	ErrRefreshTokenNotFound = errors.New("auth: refresh token not found")
	ErrRefreshTokenExpired  = errors.New("auth: refresh token expired")
	ErrRefreshTokenReused   = errors.New("auth: refresh token reused")

	ErrResetTokenNotFound    = errors.New("auth: reset token not found")
	ErrResetTokenExpired     = errors.New("auth: reset token expired")
	ErrResetTokenAlreadyUsed = errors.New("auth: reset token already used")

	ErrVerificationNotFound    = errors.New("auth: verification token not found")
	ErrVerificationExpired     = errors.New("auth: verification token expired")
	ErrVerificationAlreadyUsed = errors.New("auth: verification token already used")

	ErrIdentityDisabled   = errors.New("auth: identity is not active")
	ErrPermissionDenied   = errors.New("auth: permission denied")
	ErrRoleHierarchyCycle = errors.New("auth: role hierarchy contains a cycle")

	ErrNotFound     = errors.New("auth: not found")
	ErrConflict     = errors.New("auth: already exists")
	ErrInvalidInput = errors.New("auth: invalid input")
)
