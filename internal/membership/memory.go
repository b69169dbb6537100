package membership

import (
	"context"
	"sort"
	"sync"
)

type wsKey struct{ workspaceID, principalID string }
type projKey struct{ projectID, principalID string }

// InMemory implements Store with a single mutex, matching the row semantics
// the pg store provides. Used in tests and in dev mode without a database.
type InMemory struct {
	mu          sync.RWMutex
	workspaces  map[string]*Workspace
	projects    map[string]*Project
	wsMembers   map[wsKey]*WorkspaceMembership
	projMembers map[projKey]*ProjectMembership
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		workspaces:  make(map[string]*Workspace),
		projects:    make(map[string]*Project),
		wsMembers:   make(map[wsKey]*WorkspaceMembership),
		projMembers: make(map[projKey]*ProjectMembership),
	}
}

func (s *InMemory) CreateWorkspace(ctx context.Context, w *Workspace) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.workspaces[w.ID]; ok {
		return ErrConflict
	}
	cp := *w
	s.workspaces[w.ID] = &cp
	return nil
}

func (s *InMemory) FindWorkspace(ctx context.Context, id string) (*Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	w, ok := s.workspaces[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *InMemory) ListWorkspacesByPrincipal(ctx context.Context, principalID string) ([]*Workspace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Workspace
	for key, m := range s.wsMembers {
		if key.principalID != principalID {
			continue
		}
		if w, ok := s.workspaces[m.WorkspaceID]; ok {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) AddWorkspaceMemberCount(ctx context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.workspaces[id]
	if !ok {
		return ErrNotFound
	}
	w.MemberCount += delta
	return nil
}

func (s *InMemory) CreateProject(ctx context.Context, p *Project) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.projects[p.ID]; ok {
		return ErrConflict
	}
	cp := *p
	s.projects[p.ID] = &cp
	return nil
}

func (s *InMemory) FindProject(ctx context.Context, id string) (*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.projects[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemory) ListProjectsByWorkspace(ctx context.Context, workspaceID string) ([]*Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Project
	for _, p := range s.projects {
		if p.WorkspaceID == workspaceID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *InMemory) AddProjectMemberCount(ctx context.Context, id string, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.projects[id]
	if !ok {
		return ErrNotFound
	}
	p.MemberCount += delta
	return nil
}

func (s *InMemory) CreateWorkspaceMembership(ctx context.Context, m *WorkspaceMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := wsKey{m.WorkspaceID, m.PrincipalID}
	if _, ok := s.wsMembers[key]; ok {
		return ErrConflict
	}
	cp := *m
	s.wsMembers[key] = &cp
	return nil
}

func (s *InMemory) FindWorkspaceMembership(ctx context.Context, workspaceID, principalID string) (*WorkspaceMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.wsMembers[wsKey{workspaceID, principalID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *InMemory) ListWorkspaceMembers(ctx context.Context, workspaceID string) ([]*WorkspaceMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*WorkspaceMembership
	for key, m := range s.wsMembers {
		if key.workspaceID == workspaceID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrincipalID < out[j].PrincipalID })
	return out, nil
}

func (s *InMemory) UpdateWorkspaceMembership(ctx context.Context, m *WorkspaceMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := wsKey{m.WorkspaceID, m.PrincipalID}
	if _, ok := s.wsMembers[key]; !ok {
		return ErrNotFound
	}
	cp := *m
	s.wsMembers[key] = &cp
	return nil
}

func (s *InMemory) CreateProjectMembership(ctx context.Context, m *ProjectMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := projKey{m.ProjectID, m.PrincipalID}
	if _, ok := s.projMembers[key]; ok {
		return ErrConflict
	}
	cp := *m
	s.projMembers[key] = &cp
	return nil
}

func (s *InMemory) FindProjectMembership(ctx context.Context, projectID, principalID string) (*ProjectMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.projMembers[projKey{projectID, principalID}]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *InMemory) ListProjectMembers(ctx context.Context, projectID string) ([]*ProjectMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ProjectMembership
	for key, m := range s.projMembers {
		if key.projectID == projectID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PrincipalID < out[j].PrincipalID })
	return out, nil
}

func (s *InMemory) ListProjectMembershipsByPrincipal(ctx context.Context, principalID string) ([]*ProjectMembership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*ProjectMembership
	for key, m := range s.projMembers {
		if key.principalID == principalID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProjectID < out[j].ProjectID })
	return out, nil
}

func (s *InMemory) UpdateProjectMembership(ctx context.Context, m *ProjectMembership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := projKey{m.ProjectID, m.PrincipalID}
	if _, ok := s.projMembers[key]; !ok {
		return ErrNotFound
	}
	cp := *m
	s.projMembers[key] = &cp
	return nil
}
