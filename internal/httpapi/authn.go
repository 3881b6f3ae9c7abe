package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"github.com/vertyll/fastprod-auth/internal/audit"
	"github.com/vertyll/fastprod-auth/internal/auth"
	"github.com/vertyll/fastprod-auth/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/login",
	"/v1/auth/refresh",
	"/v1/auth/logout",
	"/v1/auth/register",
	"/v1/auth/verify",
	"/v1/auth/resend-verification",
	"/v1/auth/password-reset/request",
	"/v1/auth/password-reset/confirm",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
}

// withAuth verifies the bearer token on protected paths, resolves the
// embedded role snapshot to effective permissions and installs the principal
// in the request context. The snapshot in the token is authoritative for
// role membership; only the permission *codes* behind those roles are
// resolved live.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, "missing_token", err.Error())
			return
		}

		claims, err := a.tokens.VerifyAccess(r.Context(), token)
		if err != nil {
			obs.ObserveTokenVerification("rejected")
			switch {
			case errors.Is(err, auth.ErrTokenExpired):
				unauthorized(w, r, "token_expired", "access token expired")
			case errors.Is(err, auth.ErrTokenRevoked):
				unauthorized(w, r, "token_revoked", "access token revoked")
			case errors.Is(err, auth.ErrTokenInvalid):
				unauthorized(w, r, "token_invalid", "access token is invalid")
			default:
				writeError(w, r, http.StatusInternalServerError, "internal", "authentication error")
			}
			return
		}
		obs.ObserveTokenVerification("ok")

		perms := a.resolver.EffectivePermissions(claims.Roles)
		principal := auth.NewPrincipal(claims, perms)
		next.ServeHTTP(w, r.WithContext(auth.ContextWithPrincipal(r.Context(), principal)))
	})
}

// ensurePermission enforces one permission code, recording the denial before
// the 403 is written.
func (a *API) ensurePermission(w http.ResponseWriter, r *http.Request, code string) bool {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		unauthorized(w, r, "missing_token", "authentication required")
		return false
	}
	if !principal.HasPermission(code) {
		a.recordAudit(r.Context(), audit.Event{
			Actor:   principal.SubjectID,
			Kind:    audit.KindPermissionDenied,
			Outcome: "denied",
			Metadata: map[string]string{
				"permission": code,
				"path":       r.URL.Path,
			},
		})
		obs.ObservePermissionDenial()
		writeError(w, r, http.StatusForbidden, "permission_denied", "permission denied")
		return false
	}
	return true
}

func unauthorized(w http.ResponseWriter, r *http.Request, code, message string) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="fastprod"`)
	writeError(w, r, http.StatusUnauthorized, code, message)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
