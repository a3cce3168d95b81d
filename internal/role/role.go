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
	"strings"
	"time"
)

// Domain errors
var (
	ErrNotFound        = errors.New("role not found")
	ErrDuplicateName   = errors.New("role name already exists in scope")
	ErrInvalidArgument = errors.New("invalid argument")
)

// ScopeKind identifies the namespace a role belongs to
type ScopeKind string

const (
	KindRealm  ScopeKind = "realm"
	KindClient ScopeKind = "client"
)

// Scope is the namespace a role name is unique within: the shared realm
// namespace, or the namespace of a single client.
type Scope struct {
	Kind     ScopeKind
	ClientID string // set only when Kind == KindClient
}

// RealmScope returns the global realm scope
func RealmScope() Scope {
	return Scope{Kind: KindRealm}
}

// ClientScope returns the scope owned by a single client
func ClientScope(clientID string) Scope {
	return Scope{Kind: KindClient, ClientID: clientID}
}

// Key returns the canonical string form of the scope, used for uniqueness
// checks, cache keys and storage columns.
func (s Scope) Key() string {
	if s.Kind == KindClient {
		return string(KindClient) + ":" + s.ClientID
	}
	return string(KindRealm)
}

// IsClient reports whether the scope belongs to a client
func (s Scope) IsClient() bool {
	return s.Kind == KindClient
}

// ParseScopeKey parses the canonical form produced by Key
func ParseScopeKey(key string) (Scope, error) {
	if key == string(KindRealm) {
		return RealmScope(), nil
	}
	if rest, ok := strings.CutPrefix(key, string(KindClient)+":"); ok && rest != "" {
		return ClientScope(rest), nil
	}
	return Scope{}, fmt.Errorf("%w: malformed scope key %q", ErrInvalidArgument, key)
}

// Role represents a named role within a scope. The composite flag is never
// part of the model: it is derived from the composite graph at read time.
type Role struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Scope       Scope               `json:"-"`
	Attributes  map[string][]string `json:"attributes,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// ContainerID returns the owning client ID, or "" for realm roles
func (r *Role) ContainerID() string {
	return r.Scope.ClientID
}

// Repository defines the interface for role persistence.
//
// Delete cascades: implementations must remove all composite edges and all
// assignments referencing the role in the same storage transaction, so no
// reader observes a role with dangling edges or assignments.
type Repository interface {
	Create(ctx context.Context, r *Role) error
	GetByID(ctx context.Context, id string) (*Role, error)
	GetByName(ctx context.Context, scope Scope, name string) (*Role, error)
	Update(ctx context.Context, r *Role) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, scope Scope) ([]*Role, error)
}

// EdgeCounter reports whether a role has outgoing composite edges. Satisfied
// by the composite edge store; kept minimal so the role store does not depend
// on the graph package.
type EdgeCounter interface {
	CountChildren(ctx context.Context, roleID string) (int, error)
}
