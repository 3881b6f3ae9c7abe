package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                                   "/",
		"/metrics":                           "/metrics",
		"/v1/auth/login":                     "/v1/auth/login",
		"/v1/roles/01ABC/permissions":        "/v1/roles/:id/permissions",
		"/v1/identities/01ABC/roles":         "/v1/identities/:id/roles",
		"/v1/identities/01ABC/roles/01XYZ":   "/v1/identities/:id/roles/:role_id",
		"/v1/identities/01ABC/permissions":   "/v1/identities/:id/permissions",
		"/v1/identities/01ABC/other":         "/v1/identities/01ABC/other",
		"/v1/roles/01ABC/permissions?page=2": "/v1/roles/:id/permissions",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
