package membership

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tasknest.org/internal/access"
	"tasknest.org/internal/ids"
	"tasknest.org/internal/obs"
)

// Ledger owns workspace and project membership records and the cascading
// add/remove/reactivate/update-role algorithms. Every mutating operation
// authorizes the actor against the target scope before touching rows.
//
// Cascades run as a sequence of independent writes, not one transaction.
// Each step only flips rows that are in the wrong state, so a cascade that
// stopped partway can be re-run to completion.
type Ledger struct {
	store      Store
	principals PrincipalDirectory
	now        func() time.Time
}

// LedgerOption configures optional ledger behavior.
type LedgerOption func(*Ledger)

// WithClock overrides the time source, used by tests.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) { l.now = now }
}

// NewLedger constructs the membership ledger.
func NewLedger(store Store, principals PrincipalDirectory, opts ...LedgerOption) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("membership: store is required")
	}
	if principals == nil {
		return nil, errors.New("membership: principal directory is required")
	}
	l := &Ledger{store: store, principals: principals, now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// CreateWorkspace creates a workspace owned by ownerID together with the
// owner's active membership row.
func (l *Ledger) CreateWorkspace(ctx context.Context, ownerID, name, description string) (*Workspace, error) {
	if ownerID == "" || name == "" {
		return nil, fmt.Errorf("%w: owner and name are required", ErrInvalidInput)
	}
	now := l.now().UTC()
	w := &Workspace{
		ID:          ids.New(),
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		MemberCount: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.store.CreateWorkspace(ctx, w); err != nil {
		return nil, err
	}
	m := &WorkspaceMembership{
		WorkspaceID: w.ID,
		PrincipalID: ownerID,
		Role:        access.RoleOwner,
		Permissions: access.Evaluate(access.ScopeWorkspace, access.RoleOwner),
		IsActive:    true,
		JoinedAt:    now,
		InvitedBy:   ownerID,
	}
	if err := l.store.CreateWorkspaceMembership(ctx, m); err != nil {
		return nil, err
	}
	return w, nil
}

// CreateProject creates a project under a workspace. The actor needs an
// active workspace membership with the create-projects bit and becomes the
// project owner.
func (l *Ledger) CreateProject(ctx context.Context, actorID, workspaceID, name, description string) (*Project, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}
	if _, err := l.store.FindWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	actor, err := l.store.FindWorkspaceMembership(ctx, workspaceID, actorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrForbidden
		}
		return nil, err
	}
	if !actor.IsActive || !actor.Permissions.CanCreateProjects {
		return nil, ErrForbidden
	}
	now := l.now().UTC()
	p := &Project{
		ID:          ids.New(),
		WorkspaceID: workspaceID,
		Name:        name,
		Description: description,
		OwnerID:     actorID,
		MemberCount: 1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := l.store.CreateProject(ctx, p); err != nil {
		return nil, err
	}
	m := &ProjectMembership{
		ProjectID:   p.ID,
		PrincipalID: actorID,
		Role:        access.RoleOwner,
		Permissions: access.Evaluate(access.ScopeProject, access.RoleOwner),
		IsActive:    true,
		JoinedAt:    now,
		AddedBy:     actorID,
	}
	if err := l.store.CreateProjectMembership(ctx, m); err != nil {
		return nil, err
	}
	return p, nil
}

// AddMember adds target to the scope with the given role. The target must be
// a registered principal; an unknown id is not found. A duplicate membership,
// active or inactive, is a conflict. Adding to a project lazily enrolls the
// target into the owning workspace when they have no row there; an inactive
// workspace row must be reactivated explicitly first.
func (l *Ledger) AddMember(ctx context.Context, scope access.Scope, scopeID, actorID, targetID string, role access.Role) error {
	if targetID == "" {
		return fmt.Errorf("%w: target is required", ErrInvalidInput)
	}
	if !access.ValidRole(scope, role) || role == access.RoleOwner {
		return fmt.Errorf("%w: role %q not assignable in %s scope", ErrInvalidInput, role, scope)
	}
	now := l.now().UTC()

	switch scope {
	case access.ScopeWorkspace:
		if _, err := l.store.FindWorkspace(ctx, scopeID); err != nil {
			return err
		}
		if err := l.requireWorkspaceManager(ctx, scopeID, actorID); err != nil {
			return err
		}
		if err := l.requirePrincipal(ctx, targetID); err != nil {
			return err
		}
		if _, err := l.store.FindWorkspaceMembership(ctx, scopeID, targetID); err == nil {
			return ErrConflict
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		m := &WorkspaceMembership{
			WorkspaceID: scopeID,
			PrincipalID: targetID,
			Role:        role,
			Permissions: access.Evaluate(access.ScopeWorkspace, role),
			IsActive:    true,
			JoinedAt:    now,
			InvitedBy:   actorID,
		}
		if err := l.store.CreateWorkspaceMembership(ctx, m); err != nil {
			return err
		}
		return l.store.AddWorkspaceMemberCount(ctx, scopeID, 1)

	case access.ScopeProject:
		project, err := l.store.FindProject(ctx, scopeID)
		if err != nil {
			return err
		}
		if err := l.requireProjectManager(ctx, scopeID, actorID); err != nil {
			return err
		}
		if err := l.requirePrincipal(ctx, targetID); err != nil {
			return err
		}
		if _, err := l.store.FindProjectMembership(ctx, scopeID, targetID); err == nil {
			return ErrConflict
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}

		ws, err := l.store.FindWorkspaceMembership(ctx, project.WorkspaceID, targetID)
		switch {
		case errors.Is(err, ErrNotFound):
			// Lazy enrollment into the owning workspace.
			enroll := &WorkspaceMembership{
				WorkspaceID: project.WorkspaceID,
				PrincipalID: targetID,
				Role:        access.RoleMember,
				Permissions: access.Evaluate(access.ScopeWorkspace, access.RoleMember),
				IsActive:    true,
				JoinedAt:    now,
				InvitedBy:   actorID,
			}
			if err := l.store.CreateWorkspaceMembership(ctx, enroll); err != nil {
				return err
			}
			if err := l.store.AddWorkspaceMemberCount(ctx, project.WorkspaceID, 1); err != nil {
				return err
			}
		case err != nil:
			return err
		case !ws.IsActive:
			// Deactivated workspace members need an explicit reactivation
			// before rejoining any project.
			return ErrForbidden
		}

		m := &ProjectMembership{
			ProjectID:   scopeID,
			PrincipalID: targetID,
			Role:        role,
			Permissions: access.Evaluate(access.ScopeProject, role),
			IsActive:    true,
			JoinedAt:    now,
			AddedBy:     actorID,
		}
		if err := l.store.CreateProjectMembership(ctx, m); err != nil {
			return err
		}
		return l.store.AddProjectMemberCount(ctx, scopeID, 1)
	}
	return fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, scope)
}

// RemoveMember deactivates target's membership in the scope. Owners cannot
// be removed. Removing a workspace member also deactivates their active
// memberships in every project of that workspace.
func (l *Ledger) RemoveMember(ctx context.Context, scope access.Scope, scopeID, actorID, targetID string) error {
	switch scope {
	case access.ScopeWorkspace:
		if err := l.requireWorkspaceManager(ctx, scopeID, actorID); err != nil {
			return err
		}
		m, err := l.store.FindWorkspaceMembership(ctx, scopeID, targetID)
		if err != nil {
			return err
		}
		if m.Role == access.RoleOwner {
			return ErrForbidden
		}
		if !m.IsActive {
			return ErrConflict
		}
		m.IsActive = false
		if err := l.store.UpdateWorkspaceMembership(ctx, m); err != nil {
			return err
		}
		if err := l.store.AddWorkspaceMemberCount(ctx, scopeID, -1); err != nil {
			return l.cascadeFailed("workspace remove", scopeID, targetID, err)
		}
		return l.cascadeDeactivate(ctx, scopeID, targetID)

	case access.ScopeProject:
		if err := l.requireProjectManager(ctx, scopeID, actorID); err != nil {
			return err
		}
		m, err := l.store.FindProjectMembership(ctx, scopeID, targetID)
		if err != nil {
			return err
		}
		if m.Role == access.RoleOwner {
			return ErrForbidden
		}
		if !m.IsActive {
			return ErrConflict
		}
		m.IsActive = false
		if err := l.store.UpdateProjectMembership(ctx, m); err != nil {
			return err
		}
		return l.store.AddProjectMemberCount(ctx, scopeID, -1)
	}
	return fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, scope)
}

// ReactivateMember re-enables a previously deactivated membership, refreshing
// the join timestamp and inviter. Reactivating a workspace member also
// reactivates their inactive memberships in the workspace's projects.
func (l *Ledger) ReactivateMember(ctx context.Context, scope access.Scope, scopeID, actorID, targetID string) error {
	now := l.now().UTC()
	switch scope {
	case access.ScopeWorkspace:
		if err := l.requireWorkspaceManager(ctx, scopeID, actorID); err != nil {
			return err
		}
		m, err := l.store.FindWorkspaceMembership(ctx, scopeID, targetID)
		if err != nil {
			return err
		}
		if m.IsActive {
			return ErrConflict
		}
		m.IsActive = true
		m.JoinedAt = now
		m.InvitedBy = actorID
		if err := l.store.UpdateWorkspaceMembership(ctx, m); err != nil {
			return err
		}
		if err := l.store.AddWorkspaceMemberCount(ctx, scopeID, 1); err != nil {
			return l.cascadeFailed("workspace reactivate", scopeID, targetID, err)
		}
		return l.cascadeReactivate(ctx, scopeID, targetID)

	case access.ScopeProject:
		if err := l.requireProjectManager(ctx, scopeID, actorID); err != nil {
			return err
		}
		m, err := l.store.FindProjectMembership(ctx, scopeID, targetID)
		if err != nil {
			return err
		}
		if m.IsActive {
			return ErrConflict
		}
		m.IsActive = true
		m.JoinedAt = now
		m.AddedBy = actorID
		if err := l.store.UpdateProjectMembership(ctx, m); err != nil {
			return err
		}
		return l.store.AddProjectMemberCount(ctx, scopeID, 1)
	}
	return fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, scope)
}

// UpdateRole changes target's role in the scope and recomputes the derived
// permission set. Owner targets are immutable and owner is never assignable.
func (l *Ledger) UpdateRole(ctx context.Context, scope access.Scope, scopeID, actorID, targetID string, newRole access.Role) error {
	if !access.ValidRole(scope, newRole) || newRole == access.RoleOwner {
		return fmt.Errorf("%w: role %q not assignable in %s scope", ErrInvalidInput, newRole, scope)
	}
	switch scope {
	case access.ScopeWorkspace:
		if err := l.requireWorkspaceManager(ctx, scopeID, actorID); err != nil {
			return err
		}
		m, err := l.store.FindWorkspaceMembership(ctx, scopeID, targetID)
		if err != nil {
			return err
		}
		if m.Role == access.RoleOwner {
			return ErrForbidden
		}
		m.Role = newRole
		m.Permissions = access.Evaluate(access.ScopeWorkspace, newRole)
		return l.store.UpdateWorkspaceMembership(ctx, m)

	case access.ScopeProject:
		if err := l.requireProjectManager(ctx, scopeID, actorID); err != nil {
			return err
		}
		m, err := l.store.FindProjectMembership(ctx, scopeID, targetID)
		if err != nil {
			return err
		}
		if m.Role == access.RoleOwner {
			return ErrForbidden
		}
		m.Role = newRole
		m.Permissions = access.Evaluate(access.ScopeProject, newRole)
		return l.store.UpdateProjectMembership(ctx, m)
	}
	return fmt.Errorf("%w: unknown scope %q", ErrInvalidInput, scope)
}

// cascadeDeactivate flips target's active project memberships in the
// workspace's projects to inactive, moving each project counter. Rows that
// are already inactive are skipped so the routine is re-runnable.
func (l *Ledger) cascadeDeactivate(ctx context.Context, workspaceID, targetID string) error {
	projects, err := l.store.ListProjectsByWorkspace(ctx, workspaceID)
	if err != nil {
		return l.cascadeFailed("deactivate list", workspaceID, targetID, err)
	}
	writes := 0
	for _, p := range projects {
		m, err := l.store.FindProjectMembership(ctx, p.ID, targetID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return l.cascadeFailed("deactivate find", workspaceID, targetID, err)
		}
		if !m.IsActive {
			continue
		}
		m.IsActive = false
		if err := l.store.UpdateProjectMembership(ctx, m); err != nil {
			return l.cascadeFailed("deactivate update", workspaceID, targetID, err)
		}
		if err := l.store.AddProjectMemberCount(ctx, p.ID, -1); err != nil {
			return l.cascadeFailed("deactivate counter", workspaceID, targetID, err)
		}
		writes += 2
	}
	obs.AddCascadeWrites("deactivate", writes)
	return nil
}

// cascadeReactivate flips target's inactive project memberships in the
// workspace's projects back to active. Every inactive row is revived,
// including ones that were deactivated individually before the workspace
// removal.
func (l *Ledger) cascadeReactivate(ctx context.Context, workspaceID, targetID string) error {
	projects, err := l.store.ListProjectsByWorkspace(ctx, workspaceID)
	if err != nil {
		return l.cascadeFailed("reactivate list", workspaceID, targetID, err)
	}
	writes := 0
	for _, p := range projects {
		m, err := l.store.FindProjectMembership(ctx, p.ID, targetID)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return l.cascadeFailed("reactivate find", workspaceID, targetID, err)
		}
		if m.IsActive {
			continue
		}
		m.IsActive = true
		if err := l.store.UpdateProjectMembership(ctx, m); err != nil {
			return l.cascadeFailed("reactivate update", workspaceID, targetID, err)
		}
		if err := l.store.AddProjectMemberCount(ctx, p.ID, 1); err != nil {
			return l.cascadeFailed("reactivate counter", workspaceID, targetID, err)
		}
		writes += 2
	}
	obs.AddCascadeWrites("reactivate", writes)
	return nil
}

func (l *Ledger) cascadeFailed(stage, workspaceID, targetID string, err error) error {
	obs.Error("membership cascade incomplete", map[string]any{
		"stage":        stage,
		"workspace_id": workspaceID,
		"target_id":    targetID,
		"error":        err.Error(),
	})
	return fmt.Errorf("%w: %s: %v", ErrCascade, stage, err)
}

// requirePrincipal rejects member operations aimed at ids that do not
// resolve to a registered account, so a typo cannot create a ghost row.
func (l *Ledger) requirePrincipal(ctx context.Context, principalID string) error {
	ok, err := l.principals.Exists(ctx, principalID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: principal %s", ErrNotFound, principalID)
	}
	return nil
}

func (l *Ledger) requireWorkspaceManager(ctx context.Context, workspaceID, actorID string) error {
	m, err := l.store.FindWorkspaceMembership(ctx, workspaceID, actorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	if !m.IsActive || !m.Permissions.CanManageMembers {
		return ErrForbidden
	}
	return nil
}

func (l *Ledger) requireProjectManager(ctx context.Context, projectID, actorID string) error {
	m, err := l.store.FindProjectMembership(ctx, projectID, actorID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrForbidden
		}
		return err
	}
	if !m.IsActive || !m.Permissions.CanManageMembers {
		return ErrForbidden
	}
	return nil
}

// Workspace returns a workspace by id.
func (l *Ledger) Workspace(ctx context.Context, id string) (*Workspace, error) {
	return l.store.FindWorkspace(ctx, id)
}

// Project returns a project by id.
func (l *Ledger) Project(ctx context.Context, id string) (*Project, error) {
	return l.store.FindProject(ctx, id)
}

// WorkspacesFor lists the workspaces a principal holds a membership in.
func (l *Ledger) WorkspacesFor(ctx context.Context, principalID string) ([]*Workspace, error) {
	return l.store.ListWorkspacesByPrincipal(ctx, principalID)
}

// WorkspaceMembers lists all membership rows of a workspace.
func (l *Ledger) WorkspaceMembers(ctx context.Context, workspaceID string) ([]*WorkspaceMembership, error) {
	if _, err := l.store.FindWorkspace(ctx, workspaceID); err != nil {
		return nil, err
	}
	return l.store.ListWorkspaceMembers(ctx, workspaceID)
}

// ProjectMembers lists all membership rows of a project.
func (l *Ledger) ProjectMembers(ctx context.Context, projectID string) ([]*ProjectMembership, error) {
	if _, err := l.store.FindProject(ctx, projectID); err != nil {
		return nil, err
	}
	return l.store.ListProjectMembers(ctx, projectID)
}

// WorkspacePresence reports the principal's standing in a workspace.
func (l *Ledger) WorkspacePresence(ctx context.Context, workspaceID, principalID string) (Presence, error) {
	m, err := l.store.FindWorkspaceMembership(ctx, workspaceID, principalID)
	if errors.Is(err, ErrNotFound) {
		return PresenceNone, nil
	}
	if err != nil {
		return PresenceNone, err
	}
	if !m.IsActive {
		return PresenceInactive, nil
	}
	return PresenceActive, nil
}

// ProjectPresence reports the principal's standing in a project.
func (l *Ledger) ProjectPresence(ctx context.Context, projectID, principalID string) (Presence, error) {
	m, err := l.store.FindProjectMembership(ctx, projectID, principalID)
	if errors.Is(err, ErrNotFound) {
		return PresenceNone, nil
	}
	if err != nil {
		return PresenceNone, err
	}
	if !m.IsActive {
		return PresenceInactive, nil
	}
	return PresenceActive, nil
}
