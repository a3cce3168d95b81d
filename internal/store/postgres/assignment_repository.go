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

	"github.com/jackc/pgx/v5"
	"github.com/opentrusty/rolegraph/internal/membership"
)

// AssignmentRepository implements membership.AssignmentRepository
type AssignmentRepository struct {
	db *DB
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Assign stores direct role assignments for a principal
func (r *AssignmentRepository) Assign(ctx context.Context, p membership.Principal, roleIDs []string) error {
	tx, err := r.db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin assignment insert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, roleID := range roleIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO role_assignments (principal_kind, principal_id, role_id)
			VALUES ($1, $2, $3)
			ON CONFLICT DO NOTHING
		`, string(p.Kind), p.ID, roleID); err != nil {
			return fmt.Errorf("failed to assign role %s: %w", roleID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit assignment insert: %w", err)
	}
	return nil
}

// Unassign removes direct role assignments, ignoring missing pairs
func (r *AssignmentRepository) Unassign(ctx context.Context, p membership.Principal, roleIDs []string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM role_assignments
		WHERE principal_kind = $1 AND principal_id = $2 AND role_id = ANY($3)
	`, string(p.Kind), p.ID, roleIDs)
	if err != nil {
		return fmt.Errorf("failed to unassign roles: %w", err)
	}
	return nil
}

// DirectRoles returns the role IDs directly assigned to a principal
func (r *AssignmentRepository) DirectRoles(ctx context.Context, p membership.Principal) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT role_id FROM role_assignments
		WHERE principal_kind = $1 AND principal_id = $2
	`, string(p.Kind), p.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to get direct roles: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

// HoldersOf returns principal IDs of one kind directly assigned a role
func (r *AssignmentRepository) HoldersOf(ctx context.Context, roleID string, kind membership.PrincipalKind) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT principal_id FROM role_assignments
		WHERE role_id = $1 AND principal_kind = $2
	`, roleID, string(kind))
	if err != nil {
		return nil, fmt.Errorf("failed to get role holders: %w", err)
	}
	defer rows.Close()

	return scanStrings(rows)
}

func scanStrings(rows pgx.Rows) ([]string, error) {
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
