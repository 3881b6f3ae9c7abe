package auth_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vertyll/fastprod-auth/internal/auth"
	"github.com/vertyll/fastprod-auth/internal/store/memstore"
)

// graphStore serves a canned role graph, used to drive the resolver into
// states the real stores refuse to persist (dangling parents, cycles).
type graphStore struct {
	auth.RoleStore
	roles []*auth.Role
}

func (s *graphStore) List(context.Context) ([]*auth.Role, error) { return s.roles, nil }

func buildGraph(t *testing.T) (*memstore.Store, *auth.Resolver) {
	t.Helper()
	ctx := context.Background()
	store := memstore.New()

	viewer := &auth.Role{Name: "viewer"}
	if err := store.Roles().Create(ctx, viewer); err != nil {
		t.Fatalf("create viewer: %v", err)
	}
	editor := &auth.Role{Name: "editor", ParentID: viewer.ID}
	if err := store.Roles().Create(ctx, editor); err != nil {
		t.Fatalf("create editor: %v", err)
	}
	owner := &auth.Role{Name: "owner", ParentID: editor.ID}
	if err := store.Roles().Create(ctx, owner); err != nil {
		t.Fatalf("create owner: %v", err)
	}
	for id, codes := range map[string][]string{
		viewer.ID: {"doc:read"},
		editor.ID: {"doc:write"},
		owner.ID:  {"doc:delete"},
	} {
		if err := store.Roles().SetPermissions(ctx, id, codes); err != nil {
			t.Fatalf("set permissions: %v", err)
		}
	}

	resolver, err := auth.NewResolver(ctx, store.Roles())
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	return store, resolver
}

func TestEffectivePermissionsUnionAncestors(t *testing.T) {
	_, resolver := buildGraph(t)

	perms := resolver.EffectivePermissions([]string{"owner"})
	for _, code := range []string{"doc:read", "doc:write", "doc:delete"} {
		if _, ok := perms[code]; !ok {
			t.Fatalf("owner missing inherited %q", code)
		}
	}

	perms = resolver.EffectivePermissions([]string{"viewer"})
	if _, ok := perms["doc:write"]; ok {
		t.Fatal("viewer must not inherit downward")
	}
	if len(perms) != 1 {
		t.Fatalf("viewer perms = %v", perms)
	}
}

func TestEffectivePermissionsUnknownRoleContributesNothing(t *testing.T) {
	_, resolver := buildGraph(t)

	perms := resolver.EffectivePermissions([]string{"viewer", "deleted-role"})
	if len(perms) != 1 {
		t.Fatalf("perms = %v", perms)
	}
}

func TestResolverRejectsCycle(t *testing.T) {
	cyclic := &graphStore{roles: []*auth.Role{
		{ID: "a", Name: "a", ParentID: "b"},
		{ID: "b", Name: "b", ParentID: "c"},
		{ID: "c", Name: "c", ParentID: "a"},
	}}
	_, err := auth.NewResolver(context.Background(), cyclic)
	if !errors.Is(err, auth.ErrRoleHierarchyCycle) {
		t.Fatalf("expected ErrRoleHierarchyCycle, got %v", err)
	}
}

func TestResolverRejectsSelfParent(t *testing.T) {
	cyclic := &graphStore{roles: []*auth.Role{
		{ID: "a", Name: "a", ParentID: "a"},
	}}
	_, err := auth.NewResolver(context.Background(), cyclic)
	if !errors.Is(err, auth.ErrRoleHierarchyCycle) {
		t.Fatalf("expected ErrRoleHierarchyCycle, got %v", err)
	}
}

func TestResolverRejectsDanglingParent(t *testing.T) {
	dangling := &graphStore{roles: []*auth.Role{
		{ID: "a", Name: "a", ParentID: "ghost"},
	}}
	_, err := auth.NewResolver(context.Background(), dangling)
	if !errors.Is(err, auth.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestReloadPicksUpPermissionChanges(t *testing.T) {
	store, resolver := buildGraph(t)
	ctx := context.Background()

	if resolver.HasPermission([]string{"viewer"}, "doc:export") {
		t.Fatal("unexpected grant before change")
	}

	roles, err := store.Roles().List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	for _, role := range roles {
		if role.Name == "viewer" {
			if err := store.Roles().SetPermissions(ctx, role.ID, []string{"doc:read", "doc:export"}); err != nil {
				t.Fatalf("SetPermissions: %v", err)
			}
		}
	}
	if err := resolver.Reload(ctx); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !resolver.HasPermission([]string{"viewer"}, "doc:export") {
		t.Fatal("reload did not pick up the new grant")
	}
	// The grant flows up the chain too.
	if !resolver.HasPermission([]string{"owner"}, "doc:export") {
		t.Fatal("inheritance broken after reload")
	}
}
