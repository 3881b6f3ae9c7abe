package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vertyll/fastprod-auth/internal/auth"
	"github.com/vertyll/fastprod-auth/internal/ids"
)

type identityStore struct{ db *sql.DB }

var _ auth.IdentityStore = (*identityStore)(nil)

const identityColumns = `id, login_handle, password_hash, hash_algo, status, created_at, updated_at`

// Create inserts an identity. A duplicate login handle maps to ErrConflict.
func (s *identityStore) Create(ctx context.Context, identity *auth.Identity) error {
	if identity.ID == "" {
		identity.ID = ids.New()
	}
	row := s.db.QueryRowContext(ctx, `
		insert into identities (id, login_handle, password_hash, hash_algo, status)
		values ($1, $2, $3, $4, $5)
		returning created_at, updated_at
	`, identity.ID, identity.LoginHandle, identity.PasswordHash, identity.HashAlgo, identity.Status)
	if err := row.Scan(&identity.CreatedAt, &identity.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

// Find loads an identity by id.
func (s *identityStore) Find(ctx context.Context, id string) (*auth.Identity, error) {
	return scanIdentity(s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where id = $1`, id))
}

// FindByLoginHandle loads an identity by its unique handle.
func (s *identityStore) FindByLoginHandle(ctx context.Context, handle string) (*auth.Identity, error) {
	return scanIdentity(s.db.QueryRowContext(ctx,
		`select `+identityColumns+` from identities where login_handle = $1`, handle))
}

// UpdatePasswordHash installs a new hash and its algorithm tag.
func (s *identityStore) UpdatePasswordHash(ctx context.Context, id, hash, algo string) error {
	res, err := s.db.ExecContext(ctx, `
		update identities set password_hash = $2, hash_algo = $3, updated_at = now()
		where id = $1
	`, id, hash, algo)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// SetStatus transitions the account status. Identities are soft-disabled,
// never deleted, while sessions may still reference them.
func (s *identityStore) SetStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `
		update identities set status = $2, updated_at = now()
		where id = $1
	`, id, status)
	if err != nil {
		return err
	}
	return requireRow(res)
}

func scanIdentity(row *sql.Row) (*auth.Identity, error) {
	var identity auth.Identity
	err := row.Scan(
		&identity.ID, &identity.LoginHandle, &identity.PasswordHash, &identity.HashAlgo,
		&identity.Status, &identity.CreatedAt, &identity.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &identity, nil
}
