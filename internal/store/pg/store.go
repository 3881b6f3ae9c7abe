// Package pg implements the auth store contracts on PostgreSQL through
// database/sql and the pgx stdlib driver. Rotation and consumption use
// conditional updates so concurrent attempts against the same record resolve
// to exactly one winner without advisory locks.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/vertyll/fastprod-auth/internal/auth"
)

const (
	pgErrUniqueViolation     = "23505"
	pgErrForeignKeyViolation = "23503"
)

// Store holds the shared connection pool and hands out per-aggregate store
// implementations.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL with pool defaults tuned for the auth
// workload (short point queries, no long scans).
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing pool; used by tests with sqlmock.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

// Close releases the pool.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the pool for the readiness probe and the migration runner.
func (s *Store) DB() *sql.DB { return s.db }

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Identities returns the credential store.
func (s *Store) Identities() auth.IdentityStore { return &identityStore{db: s.db} }

// Roles returns the role graph store.
func (s *Store) Roles() auth.RoleStore { return &roleStore{db: s.db} }

// RefreshTokens returns the refresh token store.
func (s *Store) RefreshTokens() auth.RefreshTokenStore { return &refreshTokenStore{db: s.db} }

// ResetTokens returns the password reset token store.
func (s *Store) ResetTokens() auth.ResetTokenStore { return &resetTokenStore{db: s.db} }

// VerificationTokens returns the account activation token store.
func (s *Store) VerificationTokens() auth.VerificationTokenStore {
	return &verificationTokenStore{db: s.db}
}

// EnsurePermissions seeds catalog entries idempotently.
func (s *Store) EnsurePermissions(ctx context.Context, perms []auth.Permission) error {
	return (&roleStore{db: s.db}).ensurePermissions(ctx, perms)
}

func maybePgError(err error) (*pgconn.PgError, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr, true
	}
	return nil, false
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return auth.ErrNotFound
	}
	return nil
}
