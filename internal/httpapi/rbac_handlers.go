package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/vertyll/fastprod-auth/internal/auth"
)

type createRoleRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	ParentID    string `json:"parent_id"`
}

type updateRolePermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleRoles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, auth.PermRoleManage) {
		return
	}
	var req createRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	role, err := a.admin.CreateRole(r.Context(), req.Name, req.Description, req.ParentID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/v1/roles/%s", role.ID))
	writeJSON(w, http.StatusCreated, role)
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] != "permissions" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	roleID := parts[0]
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	if !a.ensurePermission(w, r, auth.PermRoleManage) {
		return
	}
	var req updateRolePermissionsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if err := a.admin.SetRolePermissions(r.Context(), roleID, req.Permissions); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleIdentityResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/identities/"), "/")
	parts := strings.Split(path, "/")
	if len(parts) < 2 || parts[0] == "" {
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	identityID := parts[0]
	switch parts[1] {
	case "roles":
		switch len(parts) {
		case 2:
			a.handleIdentityRoles(w, r, identityID)
		case 3:
			a.handleIdentityRole(w, r, identityID, parts[2])
		default:
			writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
		}
	case "permissions":
		if len(parts) != 2 {
			writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
			return
		}
		a.handleIdentityPermissions(w, r, identityID)
	default:
		writeError(w, r, http.StatusNotFound, "not_found", "resource not found")
	}
}

func (a *API) handleIdentityRoles(w http.ResponseWriter, r *http.Request, identityID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.ensurePermission(w, r, auth.PermRoleAssign) {
		return
	}
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_input", err.Error())
		return
	}
	if err := a.admin.AssignRole(r.Context(), identityID, req.RoleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleIdentityRole(w http.ResponseWriter, r *http.Request, identityID, roleID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if !a.ensurePermission(w, r, auth.PermRoleAssign) {
		return
	}
	if err := a.admin.UnassignRole(r.Context(), identityID, roleID); err != nil {
		handleAuthError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleIdentityPermissions(w http.ResponseWriter, r *http.Request, identityID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.ensurePermission(w, r, auth.PermIdentityRead) {
		return
	}
	perms, err := a.admin.IdentityPermissions(r.Context(), identityID)
	if err != nil {
		handleAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"identity_id": identityID,
		"permissions": perms,
	})
}
