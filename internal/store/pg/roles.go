package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vertyll/fastprod-auth/internal/auth"
	"github.com/vertyll/fastprod-auth/internal/ids"
)

type roleStore struct{ db *sql.DB }

var _ auth.RoleStore = (*roleStore)(nil)

// Create inserts a role with an optional parent link.
func (s *roleStore) Create(ctx context.Context, role *auth.Role) error {
	if role.ID == "" {
		role.ID = ids.New()
	}
	var parent any
	if role.ParentID != "" {
		parent = role.ParentID
	}
	row := s.db.QueryRowContext(ctx, `
		insert into roles (id, name, description, parent_id)
		values ($1, $2, $3, $4)
		returning created_at, updated_at
	`, role.ID, role.Name, role.Description, parent)
	if err := row.Scan(&role.CreatedAt, &role.UpdatedAt); err != nil {
		if pgErr, ok := maybePgError(err); ok {
			switch pgErr.Code {
			case pgErrUniqueViolation:
				return auth.ErrConflict
			case pgErrForeignKeyViolation:
				return auth.ErrNotFound
			}
		}
		return err
	}
	return nil
}

// Find loads one role without its permission codes.
func (s *roleStore) Find(ctx context.Context, id string) (*auth.Role, error) {
	var (
		role   auth.Role
		parent sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, parent_id, created_at, updated_at
		from roles where id = $1
	`, id).Scan(&role.ID, &role.Name, &role.Description, &parent, &role.CreatedAt, &role.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, auth.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	role.ParentID = parent.String
	return &role, nil
}

// List returns every role with parent link and own permission codes
// preloaded, the shape the resolver builds its adjacency structure from.
func (s *roleStore) List(ctx context.Context) ([]*auth.Role, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, name, description, parent_id, created_at, updated_at
		from roles order by name
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		result []*auth.Role
		byID   = make(map[string]*auth.Role)
	)
	for rows.Next() {
		var (
			role   auth.Role
			parent sql.NullString
		)
		if err := rows.Scan(&role.ID, &role.Name, &role.Description, &parent, &role.CreatedAt, &role.UpdatedAt); err != nil {
			return nil, err
		}
		role.ParentID = parent.String
		result = append(result, &role)
		byID[role.ID] = &role
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	permRows, err := s.db.QueryContext(ctx, `
		select rp.role_id, p.key
		from role_permissions rp
		join permissions p on p.id = rp.permission_id
		order by rp.role_id, p.key
	`)
	if err != nil {
		return nil, err
	}
	defer permRows.Close()
	for permRows.Next() {
		var roleID, key string
		if err := permRows.Scan(&roleID, &key); err != nil {
			return nil, err
		}
		if role, ok := byID[roleID]; ok {
			role.Permissions = append(role.Permissions, key)
		}
	}
	return result, permRows.Err()
}

// SetPermissions replaces the role's permission codes inside one
// transaction. Unknown codes are created on the fly in the catalog.
func (s *roleStore) SetPermissions(ctx context.Context, roleID string, codes []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `delete from role_permissions where role_id = $1`, roleID); err != nil {
		return err
	}
	for _, code := range codes {
		if _, err := tx.ExecContext(ctx, `
			insert into permissions (id, key) values ($1, $2)
			on conflict (key) do nothing
		`, ids.New(), code); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `
			insert into role_permissions (role_id, permission_id)
			select $1, id from permissions where key = $2
		`, roleID, code); err != nil {
			if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
				return auth.ErrNotFound
			}
			return err
		}
	}
	return tx.Commit()
}

// Assign grants a role to an identity; repeat grants are no-ops.
func (s *roleStore) Assign(ctx context.Context, identityID, roleID string) error {
	_, err := s.db.ExecContext(ctx, `
		insert into identity_roles (identity_id, role_id)
		values ($1, $2)
		on conflict do nothing
	`, identityID, roleID)
	if pgErr, ok := maybePgError(err); ok && pgErr.Code == pgErrForeignKeyViolation {
		return auth.ErrNotFound
	}
	return err
}

// Unassign removes a role from an identity.
func (s *roleStore) Unassign(ctx context.Context, identityID, roleID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from identity_roles where identity_id = $1 and role_id = $2
	`, identityID, roleID)
	if err != nil {
		return err
	}
	return requireRow(res)
}

// RolesForIdentity lists the identity's assigned role names.
func (s *roleStore) RolesForIdentity(ctx context.Context, identityID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		select r.name
		from identity_roles ir
		join roles r on r.id = ir.role_id
		where ir.identity_id = $1
		order by r.name
	`, identityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *roleStore) ensurePermissions(ctx context.Context, perms []auth.Permission) error {
	for _, p := range perms {
		if _, err := s.db.ExecContext(ctx, `
			insert into permissions (id, key, description)
			values ($1, $2, $3)
			on conflict (key) do nothing
		`, ids.New(), p.Key, p.Description); err != nil {
			return err
		}
	}
	return nil
}
