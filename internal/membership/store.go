package membership

import "context"

// WorkspaceStore persists workspaces and their member counters.
type WorkspaceStore interface {
	CreateWorkspace(ctx context.Context, w *Workspace) error
	FindWorkspace(ctx context.Context, id string) (*Workspace, error)
	ListWorkspacesByPrincipal(ctx context.Context, principalID string) ([]*Workspace, error)
	// AddWorkspaceMemberCount moves the denormalized counter by delta.
	AddWorkspaceMemberCount(ctx context.Context, id string, delta int) error
}

// ProjectStore persists projects and their member counters.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *Project) error
	FindProject(ctx context.Context, id string) (*Project, error)
	ListProjectsByWorkspace(ctx context.Context, workspaceID string) ([]*Project, error)
	AddProjectMemberCount(ctx context.Context, id string, delta int) error
}

// WorkspaceMembershipStore persists workspace membership rows. Create must
// return ErrConflict when a row (active or not) already exists for the pair.
type WorkspaceMembershipStore interface {
	CreateWorkspaceMembership(ctx context.Context, m *WorkspaceMembership) error
	FindWorkspaceMembership(ctx context.Context, workspaceID, principalID string) (*WorkspaceMembership, error)
	ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]*WorkspaceMembership, error)
	UpdateWorkspaceMembership(ctx context.Context, m *WorkspaceMembership) error
}

// ProjectMembershipStore persists project membership rows.
type ProjectMembershipStore interface {
	CreateProjectMembership(ctx context.Context, m *ProjectMembership) error
	FindProjectMembership(ctx context.Context, projectID, principalID string) (*ProjectMembership, error)
	ListProjectMembers(ctx context.Context, projectID string) ([]*ProjectMembership, error)
	ListProjectMembershipsByPrincipal(ctx context.Context, principalID string) ([]*ProjectMembership, error)
	UpdateProjectMembership(ctx context.Context, m *ProjectMembership) error
}

// Store is the full persistence surface the ledger needs. The pg and
// in-memory implementations both satisfy it.
type Store interface {
	WorkspaceStore
	ProjectStore
	WorkspaceMembershipStore
	ProjectMembershipStore
}

// PrincipalDirectory reports whether a principal id resolves to a registered
// account. The identity stores satisfy it.
type PrincipalDirectory interface {
	Exists(ctx context.Context, principalID string) (bool, error)
}
