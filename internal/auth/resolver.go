package auth

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Resolver maps role names to effective permission sets. The role graph is
// loaded once (and on demand via Reload) into an explicit parent adjacency
// map; a cycle anywhere in the graph fails the load with
// ErrRoleHierarchyCycle rather than surfacing at request time.
//
// Effective permissions of a role = its own codes plus those of every
// ancestor. Per-role results are memoized; the memo is an optimization only
// and Reload always recomputes from the store.
type Resolver struct {
	store RoleStore

	mu      sync.RWMutex
	parents map[string]string   // role name -> parent role name
	own     map[string][]string // role name -> own permission codes
	memo    map[string]map[string]struct{}
}

// NewResolver loads the role graph and fails fast on a hierarchy cycle.
func NewResolver(ctx context.Context, store RoleStore) (*Resolver, error) {
	r := &Resolver{store: store}
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload rebuilds the adjacency structure from the store and clears the memo.
func (r *Resolver) Reload(ctx context.Context) error {
	roles, err := r.store.List(ctx)
	if err != nil {
		return err
	}

	nameByID := make(map[string]string, len(roles))
	for _, role := range roles {
		nameByID[role.ID] = role.Name
	}
	parents := make(map[string]string, len(roles))
	own := make(map[string][]string, len(roles))
	for _, role := range roles {
		own[role.Name] = append([]string(nil), role.Permissions...)
		if role.ParentID == "" {
			continue
		}
		parent, ok := nameByID[role.ParentID]
		if !ok {
			return fmt.Errorf("%w: role %q references unknown parent %s", ErrInvalidInput, role.Name, role.ParentID)
		}
		parents[role.Name] = parent
	}
	if err := detectCycles(parents); err != nil {
		return err
	}

	r.mu.Lock()
	r.parents = parents
	r.own = own
	r.memo = make(map[string]map[string]struct{})
	r.mu.Unlock()
	return nil
}

// Invalidate drops memoized permission sets without reloading the graph.
func (r *Resolver) Invalidate() {
	r.mu.Lock()
	r.memo = make(map[string]map[string]struct{})
	r.mu.Unlock()
}

// EffectivePermissions returns the union of the named roles' effective sets.
// Unknown role names contribute nothing; a token snapshot may legitimately
// reference a role deleted after issuance.
func (r *Resolver) EffectivePermissions(roleNames []string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, name := range roleNames {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		for code := range r.rolePermissions(name) {
			out[code] = struct{}{}
		}
	}
	return out
}

// HasPermission reports whether any of the roles grants the code.
func (r *Resolver) HasPermission(roleNames []string, code string) bool {
	_, ok := r.EffectivePermissions(roleNames)[code]
	return ok
}

// IdentityPermissions resolves an identity's assigned roles and returns the
// sorted effective permission codes.
func (r *Resolver) IdentityPermissions(ctx context.Context, identityID string) ([]string, error) {
	roles, err := r.store.RolesForIdentity(ctx, identityID)
	if err != nil {
		return nil, err
	}
	set := r.EffectivePermissions(roles)
	out := make([]string, 0, len(set))
	for code := range set {
		out = append(out, code)
	}
	sort.Strings(out)
	return out, nil
}

// RolesForIdentity returns the identity's assigned role names.
func (r *Resolver) RolesForIdentity(ctx context.Context, identityID string) ([]string, error) {
	return r.store.RolesForIdentity(ctx, identityID)
}

func (r *Resolver) rolePermissions(name string) map[string]struct{} {
	r.mu.RLock()
	if set, ok := r.memo[name]; ok {
		r.mu.RUnlock()
		return set
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if set, ok := r.memo[name]; ok {
		return set
	}
	set := make(map[string]struct{})
	// The ancestor chain is cycle-free after Reload, so the walk terminates.
	for cur := name; cur != ""; cur = r.parents[cur] {
		for _, code := range r.own[cur] {
			set[code] = struct{}{}
		}
	}
	r.memo[name] = set
	return set
}

func detectCycles(parents map[string]string) error {
	safe := make(map[string]bool, len(parents))
	for start := range parents {
		if safe[start] {
			continue
		}
		seen := make(map[string]bool)
		cur := start
		for cur != "" && !safe[cur] {
			if seen[cur] {
				return fmt.Errorf("%w: via role %q", ErrRoleHierarchyCycle, cur)
			}
			seen[cur] = true
			cur = parents[cur]
		}
		for name := range seen {
			safe[name] = true
		}
	}
	return nil
}
