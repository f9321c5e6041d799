package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lumenhr/lumenhr/modules/directory/domain/ports"
	"github.com/lumenhr/lumenhr/modules/directory/domain/types"
	policytypes "github.com/lumenhr/lumenhr/modules/policy/domain/types"
)

// DirectoryMemoryStore mirrors the PG store for tests and DB-less runs.
type DirectoryMemoryStore struct {
	mu          sync.RWMutex
	seq         int
	branches    map[string][]types.Branch
	departments map[string][]types.Department
	clients     map[string][]types.Client
	projects    map[string][]types.Project
	users       map[string][]types.User
}

func NewDirectoryMemoryStore() *DirectoryMemoryStore {
	return &DirectoryMemoryStore{
		branches:    make(map[string][]types.Branch),
		departments: make(map[string][]types.Department),
		clients:     make(map[string][]types.Client),
		projects:    make(map[string][]types.Project),
		users:       make(map[string][]types.User),
	}
}

var _ ports.DirectoryStore = (*DirectoryMemoryStore)(nil)

func (s *DirectoryMemoryStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%04d", prefix, s.seq)
}

func (s *DirectoryMemoryStore) CreateBranch(_ context.Context, tenantID string, name string) (types.Branch, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Branch{}, errors.New("name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	b := types.Branch{ID: s.nextID("branch"), TenantID: tenantID, Name: name}
	s.branches[tenantID] = append(s.branches[tenantID], b)
	return b, nil
}

func (s *DirectoryMemoryStore) ListBranches(_ context.Context, tenantID string, _ int) ([]types.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Branch(nil), s.branches[tenantID]...), nil
}

func (s *DirectoryMemoryStore) CreateDepartment(_ context.Context, tenantID string, name string, branchID string) (types.Department, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Department{}, errors.New("name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d := types.Department{ID: s.nextID("dept"), TenantID: tenantID, Name: name, BranchID: strings.TrimSpace(branchID)}
	s.departments[tenantID] = append(s.departments[tenantID], d)
	return d, nil
}

func (s *DirectoryMemoryStore) ListDepartments(_ context.Context, tenantID string, _ int) ([]types.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Department(nil), s.departments[tenantID]...), nil
}

func (s *DirectoryMemoryStore) CreateClient(_ context.Context, tenantID string, name string) (types.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Client{}, errors.New("name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c := types.Client{ID: s.nextID("client"), TenantID: tenantID, Name: name}
	s.clients[tenantID] = append(s.clients[tenantID], c)
	return c, nil
}

func (s *DirectoryMemoryStore) ListClients(_ context.Context, tenantID string, _ int) ([]types.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Client(nil), s.clients[tenantID]...), nil
}

func (s *DirectoryMemoryStore) CreateProject(_ context.Context, tenantID string, clientID string, name string) (types.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Project{}, errors.New("name is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p := types.Project{ID: s.nextID("project"), TenantID: tenantID, ClientID: strings.TrimSpace(clientID), Name: name}
	s.projects[tenantID] = append(s.projects[tenantID], p)
	return p, nil
}

func (s *DirectoryMemoryStore) ListProjects(_ context.Context, tenantID string, _ int) ([]types.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.Project(nil), s.projects[tenantID]...), nil
}

func (s *DirectoryMemoryStore) CreateUser(_ context.Context, tenantID string, p ports.CreateUserParams) (types.User, error) {
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if email == "" {
		return types.User{}, errors.New("email is required")
	}
	roleSlug := strings.ToLower(strings.TrimSpace(p.RoleSlug))
	if roleSlug == "" {
		roleSlug = "employee"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u := types.User{
		ID:           s.nextID("user"),
		TenantID:     tenantID,
		Email:        email,
		FullName:     strings.TrimSpace(p.FullName),
		RoleSlug:     roleSlug,
		DepartmentID: strings.TrimSpace(p.DepartmentID),
		ClientID:     strings.TrimSpace(p.ClientID),
		ProjectID:    strings.TrimSpace(p.ProjectID),
		IsActive:     true,
	}
	s.users[tenantID] = append(s.users[tenantID], u)
	return u, nil
}

func (s *DirectoryMemoryStore) ListUsers(_ context.Context, tenantID string, _ int) ([]types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]types.User(nil), s.users[tenantID]...), nil
}

func (s *DirectoryMemoryStore) GetUser(_ context.Context, tenantID string, userID string) (types.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users[tenantID] {
		if u.ID == userID {
			return u, true, nil
		}
	}
	return types.User{}, false, nil
}

func (s *DirectoryMemoryStore) ResolveUserScopes(_ context.Context, tenantID string, userID string) (policytypes.UserScopes, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users[tenantID] {
		if u.ID != userID {
			continue
		}
		out := policytypes.UserScopes{
			UserID:       u.ID,
			TenantID:     tenantID,
			DepartmentID: u.DepartmentID,
			ClientID:     u.ClientID,
			ProjectID:    u.ProjectID,
		}
		if u.DepartmentID != "" {
			for _, d := range s.departments[tenantID] {
				if d.ID == u.DepartmentID {
					out.BranchID = d.BranchID
					break
				}
			}
		}
		return out, true, nil
	}
	return policytypes.UserScopes{}, false, nil
}
