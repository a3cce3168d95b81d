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
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/opentrusty/rolegraph/internal/role"
)

// RoleRepository implements role.Repository
type RoleRepository struct {
	db *DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *DB) *RoleRepository {
	return &RoleRepository{db: db}
}

// uniqueViolation is the Postgres error code for unique constraint violations
const uniqueViolation = "23505"

// Create stores a new role
func (r *RoleRepository) Create(ctx context.Context, ro *role.Role) error {
	attrs, err := json.Marshal(ro.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	if ro.Attributes == nil {
		attrs = []byte("{}")
	}

	_, err = r.db.pool.Exec(ctx, `
		INSERT INTO roles (id, scope_key, name, description, attributes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, ro.ID, ro.Scope.Key(), ro.Name, ro.Description, attrs, ro.CreatedAt, ro.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return role.ErrDuplicateName
		}
		return fmt.Errorf("failed to create role: %w", err)
	}

	return nil
}

// GetByID retrieves a role by ID
func (r *RoleRepository) GetByID(ctx context.Context, id string) (*role.Role, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, scope_key, name, description, attributes, created_at, updated_at
		FROM roles
		WHERE id = $1
	`, id)
	return scanRole(row)
}

// GetByName retrieves a role by name within a scope
func (r *RoleRepository) GetByName(ctx context.Context, scope role.Scope, name string) (*role.Role, error) {
	row := r.db.pool.QueryRow(ctx, `
		SELECT id, scope_key, name, description, attributes, created_at, updated_at
		FROM roles
		WHERE scope_key = $1 AND name = $2
	`, scope.Key(), name)
	return scanRole(row)
}

// Update replaces the mutable fields of a role
func (r *RoleRepository) Update(ctx context.Context, ro *role.Role) error {
	attrs, err := json.Marshal(ro.Attributes)
	if err != nil {
		return fmt.Errorf("failed to encode attributes: %w", err)
	}
	if ro.Attributes == nil {
		attrs = []byte("{}")
	}

	result, err := r.db.pool.Exec(ctx, `
		UPDATE roles
		SET name = $2, description = $3, attributes = $4, updated_at = $5
		WHERE id = $1
	`, ro.ID, ro.Name, ro.Description, attrs, ro.UpdatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return role.ErrDuplicateName
		}
		return fmt.Errorf("failed to update role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return role.ErrNotFound
	}

	return nil
}

// Delete removes a role. Edges and assignments referencing it cascade inside
// the same transaction through the schema's foreign keys.
func (r *RoleRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin delete: %w", err)
	}
	defer tx.Rollback(ctx)

	result, err := tx.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete role: %w", err)
	}
	if result.RowsAffected() == 0 {
		return role.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit delete: %w", err)
	}
	return nil
}

// List returns every role in a scope
func (r *RoleRepository) List(ctx context.Context, scope role.Scope) ([]*role.Role, error) {
	rows, err := r.db.pool.Query(ctx, `
		SELECT id, scope_key, name, description, attributes, created_at, updated_at
		FROM roles
		WHERE scope_key = $1
	`, scope.Key())
	if err != nil {
		return nil, fmt.Errorf("failed to list roles: %w", err)
	}
	defer rows.Close()

	var roles []*role.Role
	for rows.Next() {
		ro, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, ro)
	}
	return roles, rows.Err()
}

func scanRole(row pgx.Row) (*role.Role, error) {
	var (
		ro       role.Role
		scopeKey string
		attrs    []byte
	)
	err := row.Scan(&ro.ID, &scopeKey, &ro.Name, &ro.Description, &attrs, &ro.CreatedAt, &ro.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, role.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan role: %w", err)
	}

	scope, err := role.ParseScopeKey(scopeKey)
	if err != nil {
		return nil, err
	}
	ro.Scope = scope

	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &ro.Attributes); err != nil {
			return nil, fmt.Errorf("failed to decode attributes: %w", err)
		}
	}
	if len(ro.Attributes) == 0 {
		ro.Attributes = nil
	}

	return &ro, nil
}
