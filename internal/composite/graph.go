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

package composite

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/opentrusty/rolegraph/internal/audit"
	"github.com/opentrusty/rolegraph/internal/role"
)

// ErrCycleDetected is returned when an edge addition would make the composite
// graph cyclic. The offending batch is rejected as a whole.
var ErrCycleDetected = errors.New("composite cycle detected")

// Repository defines the interface for composite edge persistence. AddEdges is
// atomic: either every pair is stored or none. RemoveEdges ignores pairs that
// do not exist.
type Repository interface {
	AddEdges(ctx context.Context, parentID string, childIDs []string) error
	RemoveEdges(ctx context.Context, parentID string, childIDs []string) error
	Children(ctx context.Context, parentID string) ([]string, error)
	Parents(ctx context.Context, childID string) ([]string, error)
	CountChildren(ctx context.Context, roleID string) (int, error)
}

// Graph provides composite-role relationships over the edge repository. The
// graph is kept a DAG: every edge addition runs a reachability check before
// commit, under a mutex so concurrent batches cannot race each other into a
// cycle.
type Graph struct {
	roles       role.Repository
	edges       Repository
	auditLogger audit.Logger

	mu sync.Mutex // serializes cycle check + commit for edge additions
}

// NewGraph creates a new composite graph service
func NewGraph(roles role.Repository, edges Repository, auditLogger audit.Logger) *Graph {
	return &Graph{
		roles:       roles,
		edges:       edges,
		auditLogger: auditLogger,
	}
}

// AddComposites adds child roles to a parent role. The batch is all-or-nothing:
// a self-loop fails with role.ErrInvalidArgument, a child whose descendants
// reach the parent fails with ErrCycleDetected, and in both cases no edge of
// the batch is committed.
func (g *Graph) AddComposites(ctx context.Context, parentID string, childIDs []string) error {
	parent, err := g.roles.GetByID(ctx, parentID)
	if err != nil {
		return err
	}
	for _, childID := range childIDs {
		if childID == parentID {
			return fmt.Errorf("%w: role %s cannot be a composite of itself", role.ErrInvalidArgument, parentID)
		}
		if _, err := g.roles.GetByID(ctx, childID); err != nil {
			return err
		}
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	for _, childID := range childIDs {
		reachable, err := g.closure(ctx, childID, g.edges.Children)
		if err != nil {
			return err
		}
		if _, ok := reachable[parentID]; ok {
			return fmt.Errorf("%w: %s is an ancestor of %s", ErrCycleDetected, childID, parentID)
		}
	}

	if err := g.edges.AddEdges(ctx, parentID, childIDs); err != nil {
		return fmt.Errorf("failed to add composite edges: %w", err)
	}

	g.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCompositesAdded,
		ScopeKey: parent.Scope.Key(),
		Resource: parentID,
		Metadata: map[string]any{"children": childIDs},
	})

	return nil
}

// RemoveComposites removes child roles from a parent role. Pairs that are not
// currently edges are skipped without failing the batch.
func (g *Graph) RemoveComposites(ctx context.Context, parentID string, childIDs []string) error {
	parent, err := g.roles.GetByID(ctx, parentID)
	if err != nil {
		return err
	}

	if err := g.edges.RemoveEdges(ctx, parentID, childIDs); err != nil {
		return fmt.Errorf("failed to remove composite edges: %w", err)
	}

	g.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeCompositesRemoved,
		ScopeKey: parent.Scope.Key(),
		Resource: parentID,
		Metadata: map[string]any{"children": childIDs},
	})

	return nil
}

// Children returns the child roles of a parent: direct children only, or the
// full transitive closure when recursive is set. The result is a set; order
// carries no meaning.
func (g *Graph) Children(ctx context.Context, parentID string, recursive bool) ([]*role.Role, error) {
	return g.related(ctx, parentID, recursive, g.edges.Children)
}

// ChildrenByScope returns child roles restricted to one scope, separating
// realm-role composites from the composites of a specific client.
func (g *Graph) ChildrenByScope(ctx context.Context, parentID string, scope role.Scope, recursive bool) ([]*role.Role, error) {
	children, err := g.Children(ctx, parentID, recursive)
	if err != nil {
		return nil, err
	}
	filtered := children[:0:0]
	for _, r := range children {
		if r.Scope.Key() == scope.Key() {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// Parents returns every role that includes the child: direct parents only, or
// every transitive ancestor when recursive is set.
func (g *Graph) Parents(ctx context.Context, childID string, recursive bool) ([]*role.Role, error) {
	return g.related(ctx, childID, recursive, g.edges.Parents)
}

func (g *Graph) related(ctx context.Context, id string, recursive bool, next func(context.Context, string) ([]string, error)) ([]*role.Role, error) {
	if _, err := g.roles.GetByID(ctx, id); err != nil {
		return nil, err
	}

	var ids map[string]struct{}
	if recursive {
		closure, err := g.closure(ctx, id, next)
		if err != nil {
			return nil, err
		}
		ids = closure
	} else {
		direct, err := next(ctx, id)
		if err != nil {
			return nil, err
		}
		ids = make(map[string]struct{}, len(direct))
		for _, rid := range direct {
			ids[rid] = struct{}{}
		}
	}

	roles := make([]*role.Role, 0, len(ids))
	for rid := range ids {
		r, err := g.roles.GetByID(ctx, rid)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve role %s: %w", rid, err)
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// closure walks the graph from start following next, returning every reachable
// role ID. A visited set guarantees termination and deduplicates diamond
// shapes; start itself is excluded unless reachable through an edge.
func (g *Graph) closure(ctx context.Context, start string, next func(context.Context, string) ([]string, error)) (map[string]struct{}, error) {
	visited := make(map[string]struct{})
	queue := []string{start}
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		neighbors, err := next(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to traverse composite graph: %w", err)
		}
		for _, nid := range neighbors {
			if _, seen := visited[nid]; seen {
				continue
			}
			visited[nid] = struct{}{}
			queue = append(queue, nid)
		}
	}
	return visited, nil
}
