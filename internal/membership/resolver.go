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

package membership

import (
	"context"
	"fmt"
	"sort"

	"github.com/opentrusty/rolegraph/internal/composite"
	"github.com/opentrusty/rolegraph/internal/role"
	"go.opentelemetry.io/otel/metric"
)

// Resolver computes effective role membership: the users holding a role
// directly, through a group, or through composite inclusion. Effective
// membership is an explicit union of the three derivations so each stays
// independently testable, and the ancestor closure is computed once per query.
type Resolver struct {
	roles       role.Repository
	graph       *composite.Graph
	assignments AssignmentRepository
	groups      GroupRepository

	queries metric.Int64Counter
}

// NewResolver creates a new membership resolver
func NewResolver(roles role.Repository, graph *composite.Graph, assignments AssignmentRepository, groups GroupRepository) *Resolver {
	return &Resolver{
		roles:       roles,
		graph:       graph,
		assignments: assignments,
		groups:      groups,
	}
}

// SetInstruments attaches a query counter. Optional.
func (r *Resolver) SetInstruments(queries metric.Int64Counter) {
	r.queries = queries
}

// EffectiveMembers returns the user IDs effectively holding a role, sorted by
// user ID so repeated calls over unchanged data page consistently.
//
// With transitive unset only direct holders count: users assigned the role,
// plus members of groups assigned the role. With transitive set, direct
// holders of every ancestor in the composite graph are included as well,
// since holding an ancestor implies holding the role.
//
// first or max of -1 disables paging; first without max returns the tail from
// first. Paging windows that exhaustively cover the index range partition the
// full set with no gaps and no overlaps.
func (r *Resolver) EffectiveMembers(ctx context.Context, roleID string, first, max int, transitive bool) ([]string, error) {
	if first < -1 || max < -1 {
		return nil, fmt.Errorf("%w: first=%d max=%d", role.ErrInvalidArgument, first, max)
	}
	if _, err := r.roles.GetByID(ctx, roleID); err != nil {
		return nil, err
	}
	if r.queries != nil {
		r.queries.Add(ctx, 1)
	}

	targets := []string{roleID}
	if transitive {
		ancestors, err := r.graph.Parents(ctx, roleID, true)
		if err != nil {
			return nil, err
		}
		for _, a := range ancestors {
			targets = append(targets, a.ID)
		}
	}

	members := make(map[string]struct{})
	for _, target := range targets {
		if err := r.collectDirectHolders(ctx, target, members); err != nil {
			return nil, err
		}
	}

	users := make([]string, 0, len(members))
	for id := range members {
		users = append(users, id)
	}
	sort.Strings(users)

	return role.Page(users, first, max), nil
}

// collectDirectHolders adds every user directly holding roleID to into:
// users assigned the role, and members of groups assigned the role.
func (r *Resolver) collectDirectHolders(ctx context.Context, roleID string, into map[string]struct{}) error {
	users, err := r.assignments.HoldersOf(ctx, roleID, KindUser)
	if err != nil {
		return fmt.Errorf("failed to get user holders: %w", err)
	}
	for _, id := range users {
		into[id] = struct{}{}
	}

	groups, err := r.assignments.HoldersOf(ctx, roleID, KindGroup)
	if err != nil {
		return fmt.Errorf("failed to get group holders: %w", err)
	}
	for _, groupID := range groups {
		members, err := r.groups.MembersOf(ctx, groupID)
		if err != nil {
			return fmt.Errorf("failed to get members of group %s: %w", groupID, err)
		}
		for _, id := range members {
			into[id] = struct{}{}
		}
	}

	return nil
}
