package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/vertyll/fastprod-auth/internal/ids"
)

// Admin is the management surface for the role graph. Every mutation reloads
// the resolver so permission changes are visible to the next issued or
// rotated token (in-flight access tokens keep their snapshot).
type Admin struct {
	roles    RoleStore
	resolver *Resolver
}

// NewAdmin wires the management service.
func NewAdmin(roles RoleStore, resolver *Resolver) (*Admin, error) {
	if roles == nil || resolver == nil {
		return nil, fmt.Errorf("%w: role store and resolver are required", ErrInvalidInput)
	}
	return &Admin{roles: roles, resolver: resolver}, nil
}

// CreateRole adds a role, optionally under a parent. The reload rejects a
// hierarchy that the new link would make cyclic.
func (a *Admin) CreateRole(ctx context.Context, name, description, parentID string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{
		ID:          ids.New(),
		Name:        name,
		Description: strings.TrimSpace(description),
		ParentID:    strings.TrimSpace(parentID),
	}
	if err := a.roles.Create(ctx, role); err != nil {
		return nil, err
	}
	if err := a.resolver.Reload(ctx); err != nil {
		return nil, err
	}
	return role, nil
}

// SetRolePermissions replaces the role's own permission codes.
func (a *Admin) SetRolePermissions(ctx context.Context, roleID string, codes []string) error {
	roleID = strings.TrimSpace(roleID)
	if roleID == "" {
		return fmt.Errorf("%w: role id is required", ErrInvalidInput)
	}
	seen := make(map[string]struct{}, len(codes))
	cleaned := make([]string, 0, len(codes))
	for _, code := range codes {
		code = strings.TrimSpace(code)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		cleaned = append(cleaned, code)
	}
	if err := a.roles.SetPermissions(ctx, roleID, cleaned); err != nil {
		return err
	}
	return a.resolver.Reload(ctx)
}

// AssignRole grants a role to an identity.
func (a *Admin) AssignRole(ctx context.Context, identityID, roleID string) error {
	identityID = strings.TrimSpace(identityID)
	roleID = strings.TrimSpace(roleID)
	if identityID == "" || roleID == "" {
		return fmt.Errorf("%w: identity id and role id are required", ErrInvalidInput)
	}
	if err := a.roles.Assign(ctx, identityID, roleID); err != nil {
		return err
	}
	a.resolver.Invalidate()
	return nil
}

// UnassignRole removes a role from an identity.
func (a *Admin) UnassignRole(ctx context.Context, identityID, roleID string) error {
	identityID = strings.TrimSpace(identityID)
	roleID = strings.TrimSpace(roleID)
	if identityID == "" || roleID == "" {
		return fmt.Errorf("%w: identity id and role id are required", ErrInvalidInput)
	}
	if err := a.roles.Unassign(ctx, identityID, roleID); err != nil {
		return err
	}
	a.resolver.Invalidate()
	return nil
}

// IdentityPermissions returns the current effective permission codes for an
// identity, freshly resolved (not a token snapshot).
func (a *Admin) IdentityPermissions(ctx context.Context, identityID string) ([]string, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, fmt.Errorf("%w: identity id is required", ErrInvalidInput)
	}
	return a.resolver.IdentityPermissions(ctx, identityID)
}
