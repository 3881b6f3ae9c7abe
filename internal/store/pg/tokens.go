package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vertyll/fastprod-auth/internal/auth"
)

type refreshTokenStore struct{ db *sql.DB }

var _ auth.RefreshTokenStore = (*refreshTokenStore)(nil)

// Create persists a refresh token record. Only the secret's hash is stored.
func (s *refreshTokenStore) Create(ctx context.Context, token *auth.RefreshToken) error {
	row := s.db.QueryRowContext(ctx, `
		insert into refresh_tokens (id, family_id, subject_id, token_hash, expires_at)
		values ($1, $2, $3, $4, $5)
		returning created_at
	`, token.ID, token.FamilyID, token.SubjectID, token.TokenHash, token.ExpiresAt)
	if err := row.Scan(&token.CreatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrUniqueViolation {
			return auth.ErrConflict
		}
		return err
	}
	return nil
}

// Find loads one refresh token by id, used or not.
func (s *refreshTokenStore) Find(ctx context.Context, id string) (*auth.RefreshToken, error) {
	var token auth.RefreshToken
	err := s.db.QueryRowContext(ctx, `
		select id, family_id, subject_id, token_hash, expires_at, created_at, used_at
		from refresh_tokens where id = $1
	`, id).Scan(&token.ID, &token.FamilyID, &token.SubjectID, &token.TokenHash,
		&token.ExpiresAt, &token.CreatedAt, &token.UsedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// MarkUsed stamps the token's used_at only if it is still unused. The
// returned bool reports whether this caller won; a false result with no
// error means another rotation got there first.
func (s *refreshTokenStore) MarkUsed(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update refresh_tokens set used_at = now()
		where id = $1 and used_at is null
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkFamilyUsed burns every remaining live token in a family.
func (s *refreshTokenStore) MarkFamilyUsed(ctx context.Context, familyID string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_tokens set used_at = now()
		where family_id = $1 and used_at is null
	`, familyID)
	return err
}

// ActiveFamilies lists family ids with at least one live, unexpired token
// for the subject.
func (s *refreshTokenStore) ActiveFamilies(ctx context.Context, subjectID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select distinct family_id
		from refresh_tokens
		where subject_id = $1 and used_at is null and expires_at > now()
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var families []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		families = append(families, id)
	}
	return families, rows.Err()
}

type resetTokenStore struct{ db *sql.DB }

var _ auth.ResetTokenStore = (*resetTokenStore)(nil)

func (s *resetTokenStore) Create(ctx context.Context, token *auth.PasswordResetToken) error {
	row := s.db.QueryRowContext(ctx, `
		insert into password_reset_tokens (id, subject_id, token_hash, expires_at)
		values ($1, $2, $3, $4)
		returning created_at
	`, token.ID, token.SubjectID, token.TokenHash, token.ExpiresAt)
	return row.Scan(&token.CreatedAt)
}

func (s *resetTokenStore) Find(ctx context.Context, id string) (*auth.PasswordResetToken, error) {
	var token auth.PasswordResetToken
	err := s.db.QueryRowContext(ctx, `
		select id, subject_id, token_hash, expires_at, created_at, consumed_at
		from password_reset_tokens where id = $1
	`, id).Scan(&token.ID, &token.SubjectID, &token.TokenHash,
		&token.ExpiresAt, &token.CreatedAt, &token.ConsumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// Consume stamps consumed_at once; concurrent confirms race on the same
// conditional update and exactly one wins.
func (s *resetTokenStore) Consume(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update password_reset_tokens set consumed_at = now()
		where id = $1 and consumed_at is null
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// InvalidateForSubject burns the subject's outstanding reset tokens so only
// the most recently requested link works.
func (s *resetTokenStore) InvalidateForSubject(ctx context.Context, subjectID string) error {
	_, err := s.db.ExecContext(ctx, `
		update password_reset_tokens set consumed_at = now()
		where subject_id = $1 and consumed_at is null
	`, subjectID)
	return err
}

type verificationTokenStore struct{ db *sql.DB }

var _ auth.VerificationTokenStore = (*verificationTokenStore)(nil)

func (s *verificationTokenStore) Create(ctx context.Context, token *auth.VerificationToken) error {
	row := s.db.QueryRowContext(ctx, `
		insert into verification_tokens (id, subject_id, token_hash, expires_at)
		values ($1, $2, $3, $4)
		returning created_at
	`, token.ID, token.SubjectID, token.TokenHash, token.ExpiresAt)
	return row.Scan(&token.CreatedAt)
}

func (s *verificationTokenStore) Find(ctx context.Context, id string) (*auth.VerificationToken, error) {
	var token auth.VerificationToken
	err := s.db.QueryRowContext(ctx, `
		select id, subject_id, token_hash, expires_at, created_at, consumed_at
		from verification_tokens where id = $1
	`, id).Scan(&token.ID, &token.SubjectID, &token.TokenHash,
		&token.ExpiresAt, &token.CreatedAt, &token.ConsumedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (s *verificationTokenStore) Consume(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		update verification_tokens set consumed_at = now()
		where id = $1 and consumed_at is null
	`, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *verificationTokenStore) InvalidateForSubject(ctx context.Context, subjectID string) error {
	_, err := s.db.ExecContext(ctx, `
		update verification_tokens set consumed_at = now()
		where subject_id = $1 and consumed_at is null
	`, subjectID)
	return err
}
