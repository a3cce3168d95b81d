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
)

// EdgeRepository implements composite.Repository
type EdgeRepository struct {
	db *DB
}

// NewEdgeRepository creates a new composite edge repository
func NewEdgeRepository(db *DB) *EdgeRepository {
	return &EdgeRepository{db: db}
}

// AddEdges stores parent -> child edges in one transaction
func (r *EdgeRepository) AddEdges(ctx context.Context, parentID string, childIDs []string) error {
	tx, err := r.db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin edge insert: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, childID := range childIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO composite_edges (parent_id, child_id)
			VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, parentID, childID); err != nil {
			return fmt.Errorf("failed to insert edge %s -> %s: %w", parentID, childID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit edge insert: %w", err)
	}
	return nil
}

// RemoveEdges removes parent -> child edges, ignoring missing pairs
func (r *EdgeRepository) RemoveEdges(ctx context.Context, parentID string, childIDs []string) error {
	_, err := r.db.pool.Exec(ctx, `
		DELETE FROM composite_edges
		WHERE parent_id = $1 AND child_id = ANY($2)
	`, parentID, childIDs)
	if err != nil {
		return fmt.Errorf("failed to remove edges: %w", err)
	}
	return nil
}

// Children returns the direct child IDs of a parent
func (r *EdgeRepository) Children(ctx context.Context, parentID string) ([]string, error) {
	return r.scanIDs(ctx, `SELECT child_id FROM composite_edges WHERE parent_id = $1`, parentID)
}

// Parents returns the direct parent IDs of a child
func (r *EdgeRepository) Parents(ctx context.Context, childID string) ([]string, error) {
	return r.scanIDs(ctx, `SELECT parent_id FROM composite_edges WHERE child_id = $1`, childID)
}

// CountChildren returns the number of direct children of a role
func (r *EdgeRepository) CountChildren(ctx context.Context, roleID string) (int, error) {
	var n int
	err := r.db.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM composite_edges WHERE parent_id = $1
	`, roleID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count children: %w", err)
	}
	return n, nil
}

func (r *EdgeRepository) scanIDs(ctx context.Context, query, arg string) ([]string, error) {
	rows, err := r.db.pool.Query(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query edges: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
