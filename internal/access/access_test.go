package access

import "testing"

func TestEvaluateIsDeterministic(t *testing.T) {
	for _, scope := range []Scope{ScopeWorkspace, ScopeProject} {
		for _, role := range []Role{RoleOwner, RoleAdmin, RoleManager, RoleMember} {
			first := Evaluate(scope, role)
			for i := 0; i < 3; i++ {
				if Evaluate(scope, role) != first {
					t.Fatalf("Evaluate(%s, %s) is not deterministic", scope, role)
				}
			}
		}
	}
}

func TestMemberRoleHasNoElevatedRights(t *testing.T) {
	for _, scope := range []Scope{ScopeWorkspace, ScopeProject} {
		set := Evaluate(scope, RoleMember)
		if set.CanManageMembers {
			t.Fatalf("member in %s must not manage members", scope)
		}
		if set.CanModifySettings {
			t.Fatalf("member in %s must not modify settings", scope)
		}
		if set.CanDeleteWorkspace {
			t.Fatalf("member in %s must not delete the workspace", scope)
		}
	}
}

func TestProjectMemberCanOnlyCreateTasks(t *testing.T) {
	set := Evaluate(ScopeProject, RoleMember)
	if !set.CanCreateTasks {
		t.Fatal("project member must be able to create tasks")
	}
	if set.CanAssignTasks || set.CanDeleteTasks || set.CanModifyProject {
		t.Fatalf("project member received elevated rights: %+v", set)
	}
}

func TestOwnerIsSupersetOfElevatedRole(t *testing.T) {
	wsOwner := Evaluate(ScopeWorkspace, RoleOwner)
	wsAdmin := Evaluate(ScopeWorkspace, RoleAdmin)
	if !wsOwner.CanCreateProjects || !wsOwner.CanManageMembers || !wsOwner.CanModifySettings {
		t.Fatalf("workspace owner missing admin rights: %+v", wsOwner)
	}
	if wsAdmin.CanDeleteWorkspace {
		t.Fatal("only the owner may delete the workspace")
	}

	pOwner := Evaluate(ScopeProject, RoleOwner)
	if !pOwner.CanManageMembers || !pOwner.CanModifyProject || !pOwner.CanDeleteTasks {
		t.Fatalf("project owner missing manager rights: %+v", pOwner)
	}
}

func TestValidRole(t *testing.T) {
	if ValidRole(ScopeWorkspace, RoleManager) {
		t.Fatal("manager is not a workspace role")
	}
	if ValidRole(ScopeProject, RoleAdmin) {
		t.Fatal("admin is not a project role")
	}
	if !ValidRole(ScopeWorkspace, RoleAdmin) || !ValidRole(ScopeProject, RoleManager) {
		t.Fatal("expected scope roles to validate")
	}
}
