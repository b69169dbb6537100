package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"tasknest.org/internal/access"
	"tasknest.org/internal/audit"
	"tasknest.org/internal/events"
	"tasknest.org/internal/membership"
	"tasknest.org/internal/session"
)

type createWorkspaceRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type addMemberRequest struct {
	UserID string `json:"userId"`
	Role   string `json:"role"`
}

type updateRoleRequest struct {
	Role string `json:"role"`
}

func (a *API) handleWorkspaces(w http.ResponseWriter, r *http.Request) {
	pid, ok := session.PrincipalIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, authFailedMsg)
		return
	}
	switch r.Method {
	case http.MethodGet:
		workspaces, err := a.ledger.WorkspacesFor(r.Context(), pid)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"workspaces": workspaces})
	case http.MethodPost:
		var req createWorkspaceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		ws, err := a.ledger.CreateWorkspace(r.Context(), pid, req.Name, req.Description)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "workspace.create", map[string]any{"workspace_id": ws.ID})
		w.Header().Set("Location", fmt.Sprintf("/v1/workspaces/%s", ws.ID))
		writeJSON(w, http.StatusCreated, ws)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleWorkspaceScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/workspaces/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	workspaceID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleWorkspaceDetail(w, r, workspaceID)
	case parts[1] == "projects" && len(parts) == 2:
		a.handleWorkspaceProjects(w, r, workspaceID)
	case parts[1] == "members":
		a.handleScopeMembers(w, r, access.ScopeWorkspace, workspaceID, parts[2:])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleProjectScoped(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/projects/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	projectID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleProjectDetail(w, r, projectID)
	case parts[1] == "members":
		a.handleScopeMembers(w, r, access.ScopeProject, projectID, parts[2:])
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleWorkspaceDetail(w http.ResponseWriter, r *http.Request, workspaceID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireActiveMembership(w, r, access.ScopeWorkspace, workspaceID) {
		return
	}
	ws, err := a.ledger.Workspace(r.Context(), workspaceID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (a *API) handleProjectDetail(w http.ResponseWriter, r *http.Request, projectID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if !a.requireActiveMembership(w, r, access.ScopeProject, projectID) {
		return
	}
	p, err := a.ledger.Project(r.Context(), projectID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) handleWorkspaceProjects(w http.ResponseWriter, r *http.Request, workspaceID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	pid, ok := session.PrincipalIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, authFailedMsg)
		return
	}
	var req createProjectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := a.ledger.CreateProject(r.Context(), pid, workspaceID, req.Name, req.Description)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "project.create", map[string]any{
		"workspace_id": workspaceID,
		"project_id":   p.ID,
	})
	w.Header().Set("Location", fmt.Sprintf("/v1/projects/%s", p.ID))
	writeJSON(w, http.StatusCreated, p)
}

// handleScopeMembers serves both scopes:
//
//	GET    .../members
//	POST   .../members
//	DELETE .../members/{userId}
//	PATCH  .../members/{userId}
//	POST   .../members/{userId}/reactivate
func (a *API) handleScopeMembers(w http.ResponseWriter, r *http.Request, scope access.Scope, scopeID string, rest []string) {
	pid, ok := session.PrincipalIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, authFailedMsg)
		return
	}

	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			a.listMembers(w, r, scope, scopeID)
		case http.MethodPost:
			var req addMemberRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			if err := a.ledger.AddMember(r.Context(), scope, scopeID, pid, req.UserID, access.Role(req.Role)); err != nil {
				handleServiceError(w, r, err)
				return
			}
			a.memberEvent(r, scope, scopeID, "member.added", req.UserID, pid)
			writeJSON(w, http.StatusCreated, map[string]any{"status": "member added"})
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
		}
	case 1:
		targetID := rest[0]
		switch r.Method {
		case http.MethodDelete:
			if err := a.ledger.RemoveMember(r.Context(), scope, scopeID, pid, targetID); err != nil {
				handleServiceError(w, r, err)
				return
			}
			a.memberEvent(r, scope, scopeID, "member.removed", targetID, pid)
			w.WriteHeader(http.StatusNoContent)
		case http.MethodPatch:
			var req updateRoleRequest
			if err := decodeJSON(w, r, &req); err != nil {
				writeError(w, r, http.StatusBadRequest, err.Error())
				return
			}
			if err := a.ledger.UpdateRole(r.Context(), scope, scopeID, pid, targetID, access.Role(req.Role)); err != nil {
				handleServiceError(w, r, err)
				return
			}
			a.memberEvent(r, scope, scopeID, "member.role_updated", targetID, pid)
			writeJSON(w, http.StatusOK, map[string]any{"status": "role updated"})
		default:
			methodNotAllowed(w, r, http.MethodDelete, http.MethodPatch)
		}
	case 2:
		if rest[1] != "reactivate" {
			writeError(w, r, http.StatusNotFound, "resource not found")
			return
		}
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		targetID := rest[0]
		if err := a.ledger.ReactivateMember(r.Context(), scope, scopeID, pid, targetID); err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.memberEvent(r, scope, scopeID, "member.reactivated", targetID, pid)
		writeJSON(w, http.StatusOK, map[string]any{"status": "member reactivated"})
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) listMembers(w http.ResponseWriter, r *http.Request, scope access.Scope, scopeID string) {
	if !a.requireActiveMembership(w, r, scope, scopeID) {
		return
	}
	switch scope {
	case access.ScopeWorkspace:
		members, err := a.ledger.WorkspaceMembers(r.Context(), scopeID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members})
	case access.ScopeProject:
		members, err := a.ledger.ProjectMembers(r.Context(), scopeID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"members": members})
	}
}

// requireActiveMembership resolves whether the caller may read the scope.
// Missing scope is 404; absent or inactive membership is 403.
func (a *API) requireActiveMembership(w http.ResponseWriter, r *http.Request, scope access.Scope, scopeID string) bool {
	pid, ok := session.PrincipalIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, authFailedMsg)
		return false
	}
	var (
		presence membership.Presence
		err      error
	)
	switch scope {
	case access.ScopeWorkspace:
		if _, err = a.ledger.Workspace(r.Context(), scopeID); err == nil {
			presence, err = a.ledger.WorkspacePresence(r.Context(), scopeID, pid)
		}
	case access.ScopeProject:
		if _, err = a.ledger.Project(r.Context(), scopeID); err == nil {
			presence, err = a.ledger.ProjectPresence(r.Context(), scopeID, pid)
		}
	}
	if err != nil {
		handleServiceError(w, r, err)
		return false
	}
	if presence != membership.PresenceActive {
		writeError(w, r, http.StatusForbidden, "forbidden")
		return false
	}
	return true
}

func (a *API) memberEvent(r *http.Request, scope access.Scope, scopeID, kind, targetID, actorID string) {
	eventType := string(scope) + "." + kind
	_ = audit.LogEvent(r.Context(), eventType, map[string]any{
		"scope_id":  scopeID,
		"target_id": targetID,
	})
	if a.bus == nil {
		return
	}
	a.bus.Publish(events.Event{
		Type: eventType,
		Data: map[string]any{
			"scopeId": scopeID,
			"userId":  targetID,
			"actorId": actorID,
			"scope":   string(scope),
		},
		Recipients: []string{targetID},
	})
}
