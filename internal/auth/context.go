package auth

import "context"

// Principal is the authenticated caller for the lifetime of one request. The
// role snapshot embedded in the access token is authoritative here; a role
// revoked mid-session takes effect on the next rotation, not retroactively.
type Principal struct {
	SubjectID   string
	Roles       []string
	FamilyID    string
	Permissions map[string]struct{}
}

// HasPermission reports whether the principal holds the permission code.
func (p Principal) HasPermission(code string) bool {
	_, ok := p.Permissions[code]
	return ok
}

// NewPrincipal builds a principal from verified claims and the permissions
// resolved from its role snapshot.
func NewPrincipal(claims *AccessClaims, perms map[string]struct{}) Principal {
	if perms == nil {
		perms = map[string]struct{}{}
	}
	return Principal{
		SubjectID:   claims.Subject,
		Roles:       append([]string(nil), claims.Roles...),
		FamilyID:    claims.FamilyID,
		Permissions: perms,
	}
}

type principalContextKey struct{}

// ContextWithPrincipal attaches the authenticated principal to the context.
func ContextWithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, &principal)
}

// PrincipalFromContext extracts the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	v, ok := ctx.Value(principalContextKey{}).(*Principal)
	if !ok || v == nil {
		return Principal{}, false
	}
	return *v, true
}
