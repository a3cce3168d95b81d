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

	"github.com/opentrusty/rolegraph/internal/audit"
	"github.com/opentrusty/rolegraph/internal/role"
)

// Index provides direct role assignment and group membership logic
type Index struct {
	roles       role.Repository
	assignments AssignmentRepository
	groups      GroupRepository
	auditLogger audit.Logger
}

// NewIndex creates a new assignment index
func NewIndex(roles role.Repository, assignments AssignmentRepository, groups GroupRepository, auditLogger audit.Logger) *Index {
	return &Index{
		roles:       roles,
		assignments: assignments,
		groups:      groups,
		auditLogger: auditLogger,
	}
}

// Assign grants roles directly to a user or group. Every role must exist;
// an unknown role fails the call with role.ErrNotFound before anything is
// stored.
func (i *Index) Assign(ctx context.Context, p Principal, roleIDs []string) error {
	for _, id := range roleIDs {
		if _, err := i.roles.GetByID(ctx, id); err != nil {
			return err
		}
	}

	if err := i.assignments.Assign(ctx, p, roleIDs); err != nil {
		return fmt.Errorf("failed to assign roles: %w", err)
	}

	i.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleAssigned,
		Resource: string(p.Kind) + ":" + p.ID,
		Metadata: map[string]any{"roles": roleIDs},
	})

	return nil
}

// Unassign removes direct role grants from a user or group. Roles not
// currently assigned are skipped without error.
func (i *Index) Unassign(ctx context.Context, p Principal, roleIDs []string) error {
	if err := i.assignments.Unassign(ctx, p, roleIDs); err != nil {
		return fmt.Errorf("failed to unassign roles: %w", err)
	}

	i.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeRoleRevoked,
		Resource: string(p.Kind) + ":" + p.ID,
		Metadata: map[string]any{"roles": roleIDs},
	})

	return nil
}

// DirectRoles returns the roles assigned directly to a principal
func (i *Index) DirectRoles(ctx context.Context, p Principal) ([]*role.Role, error) {
	ids, err := i.assignments.DirectRoles(ctx, p)
	if err != nil {
		return nil, fmt.Errorf("failed to get direct roles: %w", err)
	}
	roles := make([]*role.Role, 0, len(ids))
	for _, id := range ids {
		r, err := i.roles.GetByID(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve role %s: %w", id, err)
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// JoinGroup records a user's membership in a group
func (i *Index) JoinGroup(ctx context.Context, userID, groupID string) error {
	if err := i.groups.JoinGroup(ctx, userID, groupID); err != nil {
		return fmt.Errorf("failed to join group: %w", err)
	}

	i.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeGroupJoined,
		Resource: "group:" + groupID,
		Metadata: map[string]any{"user_id": userID},
	})

	return nil
}

// LeaveGroup removes a user's membership in a group
func (i *Index) LeaveGroup(ctx context.Context, userID, groupID string) error {
	if err := i.groups.LeaveGroup(ctx, userID, groupID); err != nil {
		return fmt.Errorf("failed to leave group: %w", err)
	}

	i.auditLogger.Log(ctx, audit.Event{
		Type:     audit.TypeGroupLeft,
		Resource: "group:" + groupID,
		Metadata: map[string]any{"user_id": userID},
	})

	return nil
}

// GroupsOf returns the IDs of the groups a user belongs to
func (i *Index) GroupsOf(ctx context.Context, userID string) ([]string, error) {
	return i.groups.GroupsOf(ctx, userID)
}
