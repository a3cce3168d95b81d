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

package postgres

import (
	"context"
	"fmt"
)

// GroupRepository implements membership.GroupRepository
type GroupRepository struct {
	db *DB
}

// NewGroupRepository creates a new group membership repository
func NewGroupRepository(db *DB) *GroupRepository {
	return &GroupRepository{db: db}
}

// JoinGroup records a user-group membership
func (r *GroupRepository) JoinGroup(ctx context.Context, userID, groupID string) error {
	_, err := r.db.pool.Exec(ctx, `
		INSERT INTO group_memberships (user_id, group_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to join group: %w", err)
	}
	return nil
}

// LeaveGroup removes a user-group membership, ignoring missing pairs
func (r *GroupRepository) LeaveGroup(ctx context.Context, userID, groupID string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM group_memberships
		WHERE user_id = $1 AND group_id = $2
	`, userID, groupID)
	if err != nil {
		return fmt.Errorf("failed to leave group: %w", err)
	}
	return nil
}

// GroupsOf returns the group IDs a user belongs to
func (r *GroupRepository) GroupsOf(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT group_id FROM group_memberships WHERE user_id = $1
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get groups: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

// MembersOf returns the user IDs belonging to a group
func (r *GroupRepository) MembersOf(ctx context.Context, groupID string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT user_id FROM group_memberships WHERE group_id = $1
	`, groupID)
	if err != nil {
		return nil, fmt.Errorf("failed to get group members: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}
