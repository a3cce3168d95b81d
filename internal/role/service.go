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

package role

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/opentrusty/rolegraph/internal/audit"
	"go.opentelemetry.io/otel/metric"
)

// Store provides role management business logic
type Store struct {
	repo        Repository
	edges       EdgeCounter
	cache       *ListCache
	auditLogger audit.Logger

	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
}

// NewStore creates a new role store
func NewStore(repo Repository, edges EdgeCounter, cache *ListCache, auditLogger audit.Logger) *Store {
	return &Store{
		repo:        repo,
		edges:       edges,
		cache:       cache,
		auditLogger: auditLogger,
	}
}

// CreateInput holds the caller-supplied fields for role creation
type CreateInput struct {
	Name        string
	Description string
	Attributes  map[string][]string
}

// Create creates a new role in a scope. Names are unique per scope; a
// collision fails with ErrDuplicateName.
func (s *Store) Create(ctx context.Context, scope Scope, in CreateInput) (*Role, error) {
	if in.Name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidArgument)
	}
	if scope.IsClient() && scope.ClientID == "" {
		return nil, fmt.Errorf("%w: client scope requires a client id", ErrInvalidArgument)
	}

	if _, err := s.repo.GetByName(ctx, scope, in.Name); err == nil {
		return nil, fmt.Errorf("%w: %q in scope %s", ErrDuplicateName, in.Name, scope.Key())
	} else if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("failed to check role name: %w", err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate role id: %w", err)
	}

	now := time.Now()
	r := &Role{
		ID:          id.String(),
		Name:        in.Name,
		Description: in.Description,
		Scope:       scope,
		Attributes:  in.Attributes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.Create(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	s.cache.InvalidateScope(scope)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleCreated,
		ScopeKey: scope.Key(),
		Resource: r.ID,
		Metadata: map[string]any{"name": r.Name},
	})

	return r, nil
}

// Get retrieves a role by name within a scope
func (s *Store) Get(ctx context.Context, scope Scope, name string) (*Role, error) {
	return s.repo.GetByName(ctx, scope, name)
}

// GetByID retrieves a role by ID
func (s *Store) GetByID(ctx context.Context, id string) (*Role, error) {
	return s.repo.GetByID(ctx, id)
}

// UpdateInput holds a partial update. Nil fields are left unchanged; renames
// follow the same per-scope uniqueness rule as Create.
type UpdateInput struct {
	Name        *string
	Description *string
	Attributes  map[string][]string
}

// Update applies a partial update to a role
func (s *Store) Update(ctx context.Context, id string, in UpdateInput) (*Role, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if in.Name != nil && *in.Name != r.Name {
		if *in.Name == "" {
			return nil, fmt.Errorf("%w: role name is required", ErrInvalidArgument)
		}
		if _, err := s.repo.GetByName(ctx, r.Scope, *in.Name); err == nil {
			return nil, fmt.Errorf("%w: %q in scope %s", ErrDuplicateName, *in.Name, r.Scope.Key())
		} else if !errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("failed to check role name: %w", err)
		}
		r.Name = *in.Name
	}
	if in.Description != nil {
		r.Description = *in.Description
	}
	if in.Attributes != nil {
		r.Attributes = in.Attributes
	}
	r.UpdatedAt = time.Now()

	if err := s.repo.Update(ctx, r); err != nil {
		return nil, fmt.Errorf("failed to update role: %w", err)
	}
	s.cache.InvalidateScope(r.Scope)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleUpdated,
		ScopeKey: r.Scope.Key(),
		Resource: r.ID,
		Metadata: map[string]any{"name": r.Name},
	})

	return r, nil
}

// Delete removes a role. The repository cascades the delete into composite
// edges and assignments; deleting an unknown role fails with ErrNotFound.
func (s *Store) Delete(ctx context.Context, id string) error {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	s.cache.InvalidateScope(r.Scope)

	s.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleDeleted,
		ScopeKey: r.Scope.Key(),
		Resource: r.ID,
		Metadata: map[string]any{"name": r.Name},
	})

	return nil
}

// IsComposite reports whether the role has at least one outgoing composite
// edge. The flag is always derived from the graph, never stored.
func (s *Store) IsComposite(ctx context.Context, id string) (bool, error) {
	if _, err := s.repo.GetByID(ctx, id); err != nil {
		return false, err
	}
	n, err := s.edges.CountChildren(ctx, id)
	if err != nil {
		return false, fmt.Errorf("failed to count composite children: %w", err)
	}
	return n > 0, nil
}
