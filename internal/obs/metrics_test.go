package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"": "/",
		"/metrics":                        "/metrics",
		"/v1/workspaces/01J8ABC":          "/v1/workspaces/:id",
		"/v1/workspaces/01J8ABC/members":  "/v1/workspaces/:id/members",
		"/v1/projects/01J8XYZ/members/u1": "/v1/projects/:id/members/:id",
		"/v1/auth/verify-account/tok123":  "/v1/auth/verify-account/:token",
		"/v1/auth/reset-password/tok456":  "/v1/auth/reset-password/:token",
		"/v1/auth/login":                  "/v1/auth/login",
		"/v1/auth/login?next=1":           "/v1/auth/login",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
