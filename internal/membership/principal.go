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

import "context"

// PrincipalKind identifies the kind of entity a role is assigned to
type PrincipalKind string

const (
	KindUser  PrincipalKind = "user"
	KindGroup PrincipalKind = "group"
)

// Principal is an opaque user or group reference. The engine stores
// associations only; creating and validating principals belongs to the
// identity provider.
type Principal struct {
	Kind PrincipalKind
	ID   string
}

// User returns a user principal
func User(id string) Principal {
	return Principal{Kind: KindUser, ID: id}
}

// Group returns a group principal
func Group(id string) Principal {
	return Principal{Kind: KindGroup, ID: id}
}

// AssignmentRepository defines the interface for direct role assignments.
// Only direct assignments are ever stored; every other "has role" fact is
// derived. Unassigning a role that is not assigned is a no-op per pair.
type AssignmentRepository interface {
	Assign(ctx context.Context, p Principal, roleIDs []string) error
	Unassign(ctx context.Context, p Principal, roleIDs []string) error
	DirectRoles(ctx context.Context, p Principal) ([]string, error)
	// HoldersOf returns the IDs of principals of the given kind with a direct
	// assignment to the role.
	HoldersOf(ctx context.Context, roleID string, kind PrincipalKind) ([]string, error)
}

// GroupRepository defines the interface for user-group membership
type GroupRepository interface {
	JoinGroup(ctx context.Context, userID, groupID string) error
	LeaveGroup(ctx context.Context, userID, groupID string) error
	GroupsOf(ctx context.Context, userID string) ([]string, error)
	MembersOf(ctx context.Context, groupID string) ([]string, error)
}
