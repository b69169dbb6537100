package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"tasknest.org/internal/access"
	"tasknest.org/internal/membership"
)

// Memberships covers the workspace, project and membership tables.
type Memberships struct {
	db *sql.DB
}

var _ membership.Store = (*Memberships)(nil)

func (s *Memberships) CreateWorkspace(ctx context.Context, w *membership.Workspace) error {
	_, err := s.db.ExecContext(ctx, `
		insert into workspaces(id, name, description, owner_id, member_count, is_archived, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8)
	`, w.ID, w.Name, w.Description, w.OwnerID, w.MemberCount, w.IsArchived, w.CreatedAt, w.UpdatedAt)
	return mapConflict(err)
}

func (s *Memberships) FindWorkspace(ctx context.Context, id string) (*membership.Workspace, error) {
	var w membership.Workspace
	err := s.db.QueryRowContext(ctx, `
		select id, name, description, owner_id, member_count, is_archived, created_at, updated_at
		from workspaces where id=$1
	`, id).Scan(&w.ID, &w.Name, &w.Description, &w.OwnerID, &w.MemberCount, &w.IsArchived, &w.CreatedAt, &w.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, membership.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &w, nil
}

func (s *Memberships) ListWorkspacesByPrincipal(ctx context.Context, principalID string) ([]*membership.Workspace, error) {
	rows, err := s.db.QueryContext(ctx, `
		select w.id, w.name, w.description, w.owner_id, w.member_count, w.is_archived, w.created_at, w.updated_at
		from workspaces w
		join workspace_memberships m on m.workspace_id = w.id
		where m.principal_id=$1
		order by w.id
	`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*membership.Workspace
	for rows.Next() {
		var w membership.Workspace
		if err := rows.Scan(&w.ID, &w.Name, &w.Description, &w.OwnerID, &w.MemberCount, &w.IsArchived, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &w)
	}
	return out, rows.Err()
}

func (s *Memberships) AddWorkspaceMemberCount(ctx context.Context, id string, delta int) error {
	return s.execOneMembership(ctx, `
		update workspaces set member_count = member_count + $2, updated_at=now() where id=$1
	`, id, delta)
}

func (s *Memberships) CreateProject(ctx context.Context, p *membership.Project) error {
	_, err := s.db.ExecContext(ctx, `
		insert into projects(id, workspace_id, name, description, owner_id, member_count, is_archived, created_at, updated_at)
		values ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, p.ID, p.WorkspaceID, p.Name, p.Description, p.OwnerID, p.MemberCount, p.IsArchived, p.CreatedAt, p.UpdatedAt)
	return mapConflict(err)
}

func (s *Memberships) FindProject(ctx context.Context, id string) (*membership.Project, error) {
	var p membership.Project
	err := s.db.QueryRowContext(ctx, `
		select id, workspace_id, name, description, owner_id, member_count, is_archived, created_at, updated_at
		from projects where id=$1
	`, id).Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.Description, &p.OwnerID, &p.MemberCount, &p.IsArchived, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, membership.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Memberships) ListProjectsByWorkspace(ctx context.Context, workspaceID string) ([]*membership.Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		select id, workspace_id, name, description, owner_id, member_count, is_archived, created_at, updated_at
		from projects where workspace_id=$1 order by id
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*membership.Project
	for rows.Next() {
		var p membership.Project
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.Description, &p.OwnerID, &p.MemberCount, &p.IsArchived, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

func (s *Memberships) AddProjectMemberCount(ctx context.Context, id string, delta int) error {
	return s.execOneMembership(ctx, `
		update projects set member_count = member_count + $2, updated_at=now() where id=$1
	`, id, delta)
}

func (s *Memberships) CreateWorkspaceMembership(ctx context.Context, m *membership.WorkspaceMembership) error {
	perms, err := json.Marshal(m.Permissions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into workspace_memberships(workspace_id, principal_id, role, permissions, is_active, joined_at, invited_by)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, m.WorkspaceID, m.PrincipalID, string(m.Role), perms, m.IsActive, m.JoinedAt, m.InvitedBy)
	return mapConflict(err)
}

func (s *Memberships) FindWorkspaceMembership(ctx context.Context, workspaceID, principalID string) (*membership.WorkspaceMembership, error) {
	row := s.db.QueryRowContext(ctx, `
		select workspace_id, principal_id, role, permissions, is_active, joined_at, invited_by
		from workspace_memberships where workspace_id=$1 and principal_id=$2
	`, workspaceID, principalID)
	return scanWorkspaceMembership(row.Scan)
}

func (s *Memberships) ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]*membership.WorkspaceMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select workspace_id, principal_id, role, permissions, is_active, joined_at, invited_by
		from workspace_memberships where workspace_id=$1 order by principal_id
	`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*membership.WorkspaceMembership
	for rows.Next() {
		m, err := scanWorkspaceMembership(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Memberships) UpdateWorkspaceMembership(ctx context.Context, m *membership.WorkspaceMembership) error {
	perms, err := json.Marshal(m.Permissions)
	if err != nil {
		return err
	}
	return s.execOneMembership(ctx, `
		update workspace_memberships
		set role=$3, permissions=$4, is_active=$5, joined_at=$6, invited_by=$7
		where workspace_id=$1 and principal_id=$2
	`, m.WorkspaceID, m.PrincipalID, string(m.Role), perms, m.IsActive, m.JoinedAt, m.InvitedBy)
}

func (s *Memberships) CreateProjectMembership(ctx context.Context, m *membership.ProjectMembership) error {
	perms, err := json.Marshal(m.Permissions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		insert into project_memberships(project_id, principal_id, role, permissions, is_active, joined_at, added_by)
		values ($1,$2,$3,$4,$5,$6,$7)
	`, m.ProjectID, m.PrincipalID, string(m.Role), perms, m.IsActive, m.JoinedAt, m.AddedBy)
	return mapConflict(err)
}

func (s *Memberships) FindProjectMembership(ctx context.Context, projectID, principalID string) (*membership.ProjectMembership, error) {
	row := s.db.QueryRowContext(ctx, `
		select project_id, principal_id, role, permissions, is_active, joined_at, added_by
		from project_memberships where project_id=$1 and principal_id=$2
	`, projectID, principalID)
	return scanProjectMembership(row.Scan)
}

func (s *Memberships) ListProjectMembers(ctx context.Context, projectID string) ([]*membership.ProjectMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select project_id, principal_id, role, permissions, is_active, joined_at, added_by
		from project_memberships where project_id=$1 order by principal_id
	`, projectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*membership.ProjectMembership
	for rows.Next() {
		m, err := scanProjectMembership(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Memberships) ListProjectMembershipsByPrincipal(ctx context.Context, principalID string) ([]*membership.ProjectMembership, error) {
	rows, err := s.db.QueryContext(ctx, `
		select project_id, principal_id, role, permissions, is_active, joined_at, added_by
		from project_memberships where principal_id=$1 order by project_id
	`, principalID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*membership.ProjectMembership
	for rows.Next() {
		m, err := scanProjectMembership(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *Memberships) UpdateProjectMembership(ctx context.Context, m *membership.ProjectMembership) error {
	perms, err := json.Marshal(m.Permissions)
	if err != nil {
		return err
	}
	return s.execOneMembership(ctx, `
		update project_memberships
		set role=$3, permissions=$4, is_active=$5, joined_at=$6, added_by=$7
		where project_id=$1 and principal_id=$2
	`, m.ProjectID, m.PrincipalID, string(m.Role), perms, m.IsActive, m.JoinedAt, m.AddedBy)
}

func scanWorkspaceMembership(scan func(dest ...any) error) (*membership.WorkspaceMembership, error) {
	var m membership.WorkspaceMembership
	var role string
	var perms []byte
	err := scan(&m.WorkspaceID, &m.PrincipalID, &role, &perms, &m.IsActive, &m.JoinedAt, &m.InvitedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, membership.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Role = access.Role(role)
	if err := json.Unmarshal(perms, &m.Permissions); err != nil {
		return nil, err
	}
	return &m, nil
}

func scanProjectMembership(scan func(dest ...any) error) (*membership.ProjectMembership, error) {
	var m membership.ProjectMembership
	var role string
	var perms []byte
	err := scan(&m.ProjectID, &m.PrincipalID, &role, &perms, &m.IsActive, &m.JoinedAt, &m.AddedBy)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, membership.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Role = access.Role(role)
	if err := json.Unmarshal(perms, &m.Permissions); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Memberships) execOneMembership(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return membership.ErrNotFound
	}
	return nil
}

func mapConflict(err error) error {
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "duplicate key") {
		return membership.ErrConflict
	}
	// A membership insert referencing an unknown principal, workspace or
	// project trips a foreign key, not a conflict.
	if strings.Contains(err.Error(), "violates foreign key") {
		return membership.ErrNotFound
	}
	return err
}
