package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"tasknest.org/internal/access"
	"tasknest.org/internal/membership"
)

func TestCreateMembershipUnknownPrincipalIsNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	fkErr := errors.New(`pq: insert or update on table "workspace_memberships" violates foreign key constraint "workspace_memberships_principal_id_fkey"`)
	mock.ExpectExec("insert into workspace_memberships").
		WithArgs("ws-1", "ghost", "member", sqlmock.AnyArg(), true, sqlmock.AnyArg(), "owner").
		WillReturnError(fkErr)

	err := s.Memberships().CreateWorkspaceMembership(context.Background(), &membership.WorkspaceMembership{
		WorkspaceID: "ws-1",
		PrincipalID: "ghost",
		Role:        access.RoleMember,
		Permissions: access.Evaluate(access.ScopeWorkspace, access.RoleMember),
		IsActive:    true,
		JoinedAt:    time.Now().UTC(),
		InvitedBy:   "owner",
	})
	if !errors.Is(err, membership.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for foreign key violation, got %v", err)
	}
}

func TestCreateMembershipDuplicateIsConflict(t *testing.T) {
	s, mock := newMockStore(t)

	dupErr := errors.New(`pq: duplicate key value violates unique constraint "project_memberships_pkey"`)
	mock.ExpectExec("insert into project_memberships").
		WithArgs("proj-1", "user-1", "member", sqlmock.AnyArg(), true, sqlmock.AnyArg(), "owner").
		WillReturnError(dupErr)

	err := s.Memberships().CreateProjectMembership(context.Background(), &membership.ProjectMembership{
		ProjectID:   "proj-1",
		PrincipalID: "user-1",
		Role:        access.RoleMember,
		Permissions: access.Evaluate(access.ScopeProject, access.RoleMember),
		IsActive:    true,
		JoinedAt:    time.Now().UTC(),
		AddedBy:     "owner",
	})
	if !errors.Is(err, membership.ErrConflict) {
		t.Fatalf("expected ErrConflict for duplicate key, got %v", err)
	}
}
