// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package memory provides a single-lock in-memory implementation of every
// repository interface. It backs the engine unit tests and local development;
// the single RWMutex across all collections makes multi-collection operations
// such as cascade delete atomic for free.
package memory

import (
	"context"
	"strings"
	"sync"

	"github.com/opentrusty/rolegraph/internal/membership"
	"github.com/opentrusty/rolegraph/internal/role"
)

// Store holds roles, composite edges, assignments and group memberships
type Store struct {
	mu sync.RWMutex

	roles        map[string]*role.Role            // role ID -> role
	namesByScope map[string]map[string]string     // scope key -> name -> role ID
	children     map[string]map[string]struct{}   // parent ID -> child IDs
	parents      map[string]map[string]struct{}   // child ID -> parent IDs
	assignments  map[string]map[string]struct{}   // principal key -> role IDs
	holders      map[string]map[string]struct{}   // role ID -> principal keys
	userGroups   map[string]map[string]struct{}   // user ID -> group IDs
	groupUsers   map[string]map[string]struct{}   // group ID -> user IDs
}

// NewStore creates an empty in-memory store
func NewStore() *Store {
	return &Store{
		roles:        make(map[string]*role.Role),
		namesByScope: make(map[string]map[string]string),
		children:     make(map[string]map[string]struct{}),
		parents:      make(map[string]map[string]struct{}),
		assignments:  make(map[string]map[string]struct{}),
		holders:      make(map[string]map[string]struct{}),
		userGroups:   make(map[string]map[string]struct{}),
		groupUsers:   make(map[string]map[string]struct{}),
	}
}

func principalKey(p membership.Principal) string {
	return string(p.Kind) + ":" + p.ID
}

// copyRole clones a role including its attributes map, so neither the store
// nor a caller can mutate the other's view.
func copyRole(r *role.Role) *role.Role {
	cp := *r
	if r.Attributes != nil {
		attrs := make(map[string][]string, len(r.Attributes))
		for k, v := range r.Attributes {
			attrs[k] = append([]string(nil), v...)
		}
		cp.Attributes = attrs
	}
	return &cp
}

// --- role.Repository ---

// Create stores a new role
func (s *Store) Create(ctx context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	scopeKey := r.Scope.Key()
	names, ok := s.namesByScope[scopeKey]
	if !ok {
		names = make(map[string]string)
		s.namesByScope[scopeKey] = names
	}
	if _, exists := names[r.Name]; exists {
		return role.ErrDuplicateName
	}

	s.roles[r.ID] = copyRole(r)
	names[r.Name] = r.ID
	return nil
}

// GetByID retrieves a role by ID
func (s *Store) GetByID(ctx context.Context, id string) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.roles[id]
	if !exists {
		return nil, role.ErrNotFound
	}
	return copyRole(r), nil
}

// GetByName retrieves a role by name within a scope
func (s *Store) GetByName(ctx context.Context, scope role.Scope, name string) (*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.namesByScope[scope.Key()][name]
	if !exists {
		return nil, role.ErrNotFound
	}
	return copyRole(s.roles[id]), nil
}

// Update replaces a stored role
func (s *Store) Update(ctx context.Context, r *role.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	old, exists := s.roles[r.ID]
	if !exists {
		return role.ErrNotFound
	}

	names := s.namesByScope[old.Scope.Key()]
	if old.Name != r.Name {
		if _, taken := names[r.Name]; taken {
			return role.ErrDuplicateName
		}
		delete(names, old.Name)
		names[r.Name] = r.ID
	}

	s.roles[r.ID] = copyRole(r)
	return nil
}

// Delete removes a role and cascades into edges and assignments under the
// same lock, so no reader observes a half-deleted role.
func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, exists := s.roles[id]
	if !exists {
		return role.ErrNotFound
	}

	delete(s.roles, id)
	delete(s.namesByScope[r.Scope.Key()], r.Name)

	for childID := range s.children[id] {
		delete(s.parents[childID], id)
	}
	delete(s.children, id)
	for parentID := range s.parents[id] {
		delete(s.children[parentID], id)
	}
	delete(s.parents, id)

	for pk := range s.holders[id] {
		delete(s.assignments[pk], id)
	}
	delete(s.holders, id)

	return nil
}

// List returns every role in a scope
func (s *Store) List(ctx context.Context, scope role.Scope) ([]*role.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := s.namesByScope[scope.Key()]
	roles := make([]*role.Role, 0, len(names))
	for _, id := range names {
		roles = append(roles, copyRole(s.roles[id]))
	}
	return roles, nil
}

// --- composite.Repository ---

// AddEdges stores parent -> child edges as one batch
func (s *Store) AddEdges(ctx context.Context, parentID string, childIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, childID := range childIDs {
		if s.children[parentID] == nil {
			s.children[parentID] = make(map[string]struct{})
		}
		if s.parents[childID] == nil {
			s.parents[childID] = make(map[string]struct{})
		}
		s.children[parentID][childID] = struct{}{}
		s.parents[childID][parentID] = struct{}{}
	}
	return nil
}

// RemoveEdges removes parent -> child edges, ignoring missing pairs
func (s *Store) RemoveEdges(ctx context.Context, parentID string, childIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, childID := range childIDs {
		delete(s.children[parentID], childID)
		delete(s.parents[childID], parentID)
	}
	return nil
}

// Children returns the direct child IDs of a parent
func (s *Store) Children(ctx context.Context, parentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.children[parentID]))
	for id := range s.children[parentID] {
		ids = append(ids, id)
	}
	return ids, nil
}

// Parents returns the direct parent IDs of a child
func (s *Store) Parents(ctx context.Context, childID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.parents[childID]))
	for id := range s.parents[childID] {
		ids = append(ids, id)
	}
	return ids, nil
}

// CountChildren returns the number of direct children of a role
func (s *Store) CountChildren(ctx context.Context, roleID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.children[roleID]), nil
}

// --- membership.AssignmentRepository ---

// Assign stores direct role assignments for a principal
func (s *Store) Assign(ctx context.Context, p membership.Principal, roleIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := principalKey(p)
	if s.assignments[pk] == nil {
		s.assignments[pk] = make(map[string]struct{})
	}
	for _, id := range roleIDs {
		s.assignments[pk][id] = struct{}{}
		if s.holders[id] == nil {
			s.holders[id] = make(map[string]struct{})
		}
		s.holders[id][pk] = struct{}{}
	}
	return nil
}

// Unassign removes direct role assignments, ignoring missing pairs
func (s *Store) Unassign(ctx context.Context, p membership.Principal, roleIDs []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pk := principalKey(p)
	for _, id := range roleIDs {
		delete(s.assignments[pk], id)
		delete(s.holders[id], pk)
	}
	return nil
}

// DirectRoles returns the role IDs directly assigned to a principal
func (s *Store) DirectRoles(ctx context.Context, p membership.Principal) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roles := s.assignments[principalKey(p)]
	ids := make([]string, 0, len(roles))
	for id := range roles {
		ids = append(ids, id)
	}
	return ids, nil
}

// HoldersOf returns principal IDs of one kind directly assigned a role
func (s *Store) HoldersOf(ctx context.Context, roleID string, kind membership.PrincipalKind) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefix := string(kind) + ":"
	var ids []string
	for pk := range s.holders[roleID] {
		if rest, ok := strings.CutPrefix(pk, prefix); ok {
			ids = append(ids, rest)
		}
	}
	return ids, nil
}

// --- membership.GroupRepository ---

// JoinGroup records a user-group membership
func (s *Store) JoinGroup(ctx context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.userGroups[userID] == nil {
		s.userGroups[userID] = make(map[string]struct{})
	}
	if s.groupUsers[groupID] == nil {
		s.groupUsers[groupID] = make(map[string]struct{})
	}
	s.userGroups[userID][groupID] = struct{}{}
	s.groupUsers[groupID][userID] = struct{}{}
	return nil
}

// LeaveGroup removes a user-group membership, ignoring missing pairs
func (s *Store) LeaveGroup(ctx context.Context, userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.userGroups[userID], groupID)
	delete(s.groupUsers[groupID], userID)
	return nil
}

// GroupsOf returns the group IDs a user belongs to
func (s *Store) GroupsOf(ctx context.Context, userID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.userGroups[userID]))
	for id := range s.userGroups[userID] {
		ids = append(ids, id)
	}
	return ids, nil
}

// MembersOf returns the user IDs belonging to a group
func (s *Store) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.groupUsers[groupID]))
	for id := range s.groupUsers[groupID] {
		ids = append(ids, id)
	}
	return ids, nil
}
