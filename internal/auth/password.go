package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// HashAlgoBcrypt tags password hashes produced by this package.
const HashAlgoBcrypt = "bcrypt"

// HashPassword hashes a plaintext password with bcrypt.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword compares a plaintext password with a stored hash. bcrypt's
// comparison does not short-circuit on early mismatch.
func VerifyPassword(hash, password string) error {
	if hash == "" {
		return errors.New("password hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}

// dummyHash is a valid bcrypt hash of an unguessable value, compared against
// on the unknown-account path so lookup misses cost the same as mismatches.
var dummyHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// VerifyPasswordDummy burns the same work as a failed VerifyPassword.
func VerifyPasswordDummy(password string) {
	_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
}
