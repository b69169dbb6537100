package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"tasknest.org/internal/membership"
)

func createWorkspace(t *testing.T, h http.Handler, cookies []*http.Cookie, name string) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/workspaces", map[string]string{"name": name}, cookies)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create workspace: status %d body %s", rec.Code, rec.Body.String())
	}
	var ws struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &ws); err != nil {
		t.Fatalf("decode workspace: %v", err)
	}
	return ws.ID
}

func TestWorkspaceMemberLifecycleOverHTTP(t *testing.T) {
	_, h := newTestAPI(t)
	_, owner := registerAndLogin(t, h, "owner@example.com", "Owner")
	memberID, member := registerAndLogin(t, h, "member@example.com", "Member")

	wsID := createWorkspace(t, h, owner, "Acme")

	// Add, duplicate add conflicts.
	rec := doJSON(t, h, http.MethodPost, "/v1/workspaces/"+wsID+"/members",
		map[string]string{"userId": memberID, "role": "member"}, owner)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add member: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodPost, "/v1/workspaces/"+wsID+"/members",
		map[string]string{"userId": memberID, "role": "member"}, owner)
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate add: status %d", rec.Code)
	}

	// The member can read the roster but not manage it.
	rec = doJSON(t, h, http.MethodGet, "/v1/workspaces/"+wsID+"/members", nil, member)
	if rec.Code != http.StatusOK {
		t.Fatalf("list members as member: status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodDelete, "/v1/workspaces/"+wsID+"/members/nobody", nil, member)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("member managed roster: status %d", rec.Code)
	}

	// Remove, then the roster is hidden from the removed member.
	rec = doJSON(t, h, http.MethodDelete, "/v1/workspaces/"+wsID+"/members/"+memberID, nil, owner)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove member: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/workspaces/"+wsID+"/members", nil, member)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("inactive member read roster: status %d", rec.Code)
	}

	// Reactivate restores access.
	rec = doJSON(t, h, http.MethodPost, "/v1/workspaces/"+wsID+"/members/"+memberID+"/reactivate", nil, owner)
	if rec.Code != http.StatusOK {
		t.Fatalf("reactivate: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = doJSON(t, h, http.MethodGet, "/v1/workspaces/"+wsID+"/members", nil, member)
	if rec.Code != http.StatusOK {
		t.Fatalf("reactivated member read roster: status %d", rec.Code)
	}
}

func TestOwnerImmutabilityOverHTTP(t *testing.T) {
	_, h := newTestAPI(t)
	ownerID, owner := registerAndLogin(t, h, "own@example.com", "Own")
	adminID, admin := registerAndLogin(t, h, "adm@example.com", "Adm")

	wsID := createWorkspace(t, h, owner, "Acme")
	rec := doJSON(t, h, http.MethodPost, "/v1/workspaces/"+wsID+"/members",
		map[string]string{"userId": adminID, "role": "admin"}, owner)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add admin: status %d", rec.Code)
	}

	rec = doJSON(t, h, http.MethodDelete, "/v1/workspaces/"+wsID+"/members/"+ownerID, nil, admin)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("owner removed: status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPatch, "/v1/workspaces/"+wsID+"/members/"+ownerID,
		map[string]string{"role": "member"}, admin)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("owner demoted: status %d", rec.Code)
	}
	rec = doJSON(t, h, http.MethodPatch, "/v1/workspaces/"+wsID+"/members/"+adminID,
		map[string]string{"role": "owner"}, owner)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("owner role assigned: status %d", rec.Code)
	}
}

func TestProjectAddLazilyEnrollsOverHTTP(t *testing.T) {
	api, h := newTestAPI(t)
	_, owner := registerAndLogin(t, h, "po@example.com", "Po")
	outsiderID, _ := registerAndLogin(t, h, "out@example.com", "Out")

	wsID := createWorkspace(t, h, owner, "Acme")
	rec := doJSON(t, h, http.MethodPost, "/v1/workspaces/"+wsID+"/projects",
		map[string]string{"name": "Launch"}, owner)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create project: status %d body %s", rec.Code, rec.Body.String())
	}
	var project struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &project); err != nil {
		t.Fatalf("decode project: %v", err)
	}

	rec = doJSON(t, h, http.MethodPost, "/v1/projects/"+project.ID+"/members",
		map[string]string{"userId": outsiderID, "role": "member"}, owner)
	if rec.Code != http.StatusCreated {
		t.Fatalf("add project member: status %d body %s", rec.Code, rec.Body.String())
	}

	// The outsider was lazily enrolled into the owning workspace.
	presence, err := api.ledger.WorkspacePresence(context.Background(), wsID, outsiderID)
	if err != nil {
		t.Fatalf("WorkspacePresence: %v", err)
	}
	if presence != membership.PresenceActive {
		t.Fatalf("expected active workspace enrollment, got %v", presence)
	}
}

func TestAddUnknownMemberIsNotFound(t *testing.T) {
	_, h := newTestAPI(t)
	_, owner := registerAndLogin(t, h, "un@example.com", "Un")
	wsID := createWorkspace(t, h, owner, "Acme")

	rec := doJSON(t, h, http.MethodPost, "/v1/workspaces/"+wsID+"/members",
		map[string]string{"userId": "ghost-user", "role": "member"}, owner)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown target, got %d body %s", rec.Code, rec.Body.String())
	}
}

func TestUnknownWorkspaceIsNotFound(t *testing.T) {
	_, h := newTestAPI(t)
	_, owner := registerAndLogin(t, h, "nf@example.com", "Enef")

	rec := doJSON(t, h, http.MethodGet, "/v1/workspaces/ghost/members", nil, owner)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
