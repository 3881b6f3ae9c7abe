package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/vertyll/fastprod-auth/internal/auth"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewWithDB(db), mock
}

func TestIdentityCreateConflict(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("insert into identities").
		WithArgs(sqlmock.AnyArg(), "alice@example.com", sqlmock.AnyArg(), "bcrypt", auth.StatusPendingVerification).
		WillReturnError(&pgconn.PgError{Code: pgErrUniqueViolation})

	err := store.Identities().Create(context.Background(), &auth.Identity{
		LoginHandle:  "alice@example.com",
		PasswordHash: "$2a$10$hash",
		HashAlgo:     "bcrypt",
		Status:       auth.StatusPendingVerification,
	})
	if !errors.Is(err, auth.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestIdentityFindNotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("select id, login_handle").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"id", "login_handle", "password_hash", "hash_algo", "status", "created_at", "updated_at"}))

	_, err := store.Identities().Find(context.Background(), "missing")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestIdentitySetStatusMissingRow(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update identities set status").
		WithArgs("gone", auth.StatusDisabled).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.Identities().SetStatus(context.Background(), "gone", auth.StatusDisabled)
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRefreshMarkUsedRace(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update refresh_tokens set used_at").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update refresh_tokens set used_at").
		WithArgs("tok-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tokens := store.RefreshTokens()
	won, err := tokens.MarkUsed(context.Background(), "tok-1")
	if err != nil || !won {
		t.Fatalf("first MarkUsed should win: won=%v err=%v", won, err)
	}
	won, err = tokens.MarkUsed(context.Background(), "tok-1")
	if err != nil {
		t.Fatalf("second MarkUsed: %v", err)
	}
	if won {
		t.Fatal("second MarkUsed must lose the conditional update")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRefreshFind(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC().Truncate(time.Second)
	used := now.Add(-time.Minute)
	mock.ExpectQuery("select id, family_id, subject_id").
		WithArgs("tok-2").
		WillReturnRows(sqlmock.NewRows([]string{"id", "family_id", "subject_id", "token_hash", "expires_at", "created_at", "used_at"}).
			AddRow("tok-2", "fam-1", "sub-1", "abc", now.Add(time.Hour), now.Add(-time.Hour), used))

	token, err := store.RefreshTokens().Find(context.Background(), "tok-2")
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if token.FamilyID != "fam-1" || token.UsedAt == nil || !token.UsedAt.Equal(used) {
		t.Fatalf("unexpected token: %+v", token)
	}
}

func TestResetConsumeOnce(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("update password_reset_tokens set consumed_at").
		WithArgs("reset-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("update password_reset_tokens set consumed_at").
		WithArgs("reset-1").
		WillReturnResult(sqlmock.NewResult(0, 0))

	resets := store.ResetTokens()
	won, err := resets.Consume(context.Background(), "reset-1")
	if err != nil || !won {
		t.Fatalf("first Consume should win: won=%v err=%v", won, err)
	}
	won, err = resets.Consume(context.Background(), "reset-1")
	if err != nil || won {
		t.Fatalf("second Consume must lose: won=%v err=%v", won, err)
	}
}

func TestRolesListPreloadsPermissions(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now().UTC()
	mock.ExpectQuery("select id, name, description, parent_id").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "parent_id", "created_at", "updated_at"}).
			AddRow("r-admin", "admin", "", "r-user", now, now).
			AddRow("r-user", "user", "", nil, now, now))
	mock.ExpectQuery("select rp.role_id, p.key").
		WillReturnRows(sqlmock.NewRows([]string{"role_id", "key"}).
			AddRow("r-admin", "role:manage").
			AddRow("r-user", "identity:read"))

	roles, err := store.Roles().List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(roles) != 2 {
		t.Fatalf("expected 2 roles, got %d", len(roles))
	}
	if roles[0].ParentID != "r-user" {
		t.Fatalf("parent link lost: %+v", roles[0])
	}
	if len(roles[0].Permissions) != 1 || roles[0].Permissions[0] != "role:manage" {
		t.Fatalf("permissions not preloaded: %+v", roles[0])
	}
}

func TestRoleAssignUnknownIdentity(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("insert into identity_roles").
		WithArgs("ghost", "r-user").
		WillReturnError(&pgconn.PgError{Code: pgErrForeignKeyViolation})

	err := store.Roles().Assign(context.Background(), "ghost", "r-user")
	if !errors.Is(err, auth.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
