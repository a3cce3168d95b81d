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

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/rolegraph/internal/composite"
	"github.com/opentrusty/rolegraph/internal/membership"
	"github.com/opentrusty/rolegraph/internal/observability/logger"
	"github.com/opentrusty/rolegraph/internal/role"
)

// RoleRepresentation is the wire form of a role. Composite is derived from
// the graph on every read; ContainerID is the owning client or "" for realm
// roles.
type RoleRepresentation struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Composite   bool                `json:"composite"`
	ClientRole  bool                `json:"clientRole"`
	ContainerID string              `json:"containerId,omitempty"`
	Attributes  map[string][]string `json:"attributes,omitempty"`
}

// RoleRef references a role by ID in request bodies
type RoleRef struct {
	ID string `json:"id"`
}

func scopeFromRequest(r *http.Request) role.Scope {
	if clientID := chi.URLParam(r, "clientID"); clientID != "" {
		return role.ClientScope(clientID)
	}
	return role.RealmScope()
}

// pagingParams reads first/max query parameters; absent parameters map to the
// -1 sentinel (no paging / to the end).
func pagingParams(r *http.Request) (first, max int, err error) {
	first, err = intParam(r, "first", -1)
	if err != nil {
		return 0, 0, err
	}
	max, err = intParam(r, "max", -1)
	if err != nil {
		return 0, 0, err
	}
	return first, max, nil
}

func intParam(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func boolParam(r *http.Request, name string, def bool) bool {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func (h *Handler) representation(r *http.Request, ro *role.Role) RoleRepresentation {
	isComposite, err := h.roleStore.IsComposite(r.Context(), ro.ID)
	if err != nil {
		slog.WarnContext(r.Context(), "failed to derive composite flag",
			logger.RoleID(ro.ID), logger.Error(err))
	}
	return RoleRepresentation{
		ID:          ro.ID,
		Name:        ro.Name,
		Description: ro.Description,
		Composite:   isComposite,
		ClientRole:  ro.Scope.IsClient(),
		ContainerID: ro.ContainerID(),
		Attributes:  ro.Attributes,
	}
}

func (h *Handler) representations(r *http.Request, roles []*role.Role) []RoleRepresentation {
	reps := make([]RoleRepresentation, 0, len(roles))
	for _, ro := range roles {
		reps = append(reps, h.representation(r, ro))
	}
	return reps
}

// respondDomainError maps engine error kinds to response semantics
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, role.ErrNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, role.ErrDuplicateName):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, composite.ErrCycleDetected), errors.Is(err, role.ErrInvalidArgument):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

// CreateRoleRequest represents role creation data
type CreateRoleRequest struct {
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Attributes  map[string][]string `json:"attributes"`
}

// CreateRole handles role creation in realm or client scope
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var req CreateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ro, err := h.roleStore.Create(r.Context(), scopeFromRequest(r), role.CreateInput{
		Name:        req.Name,
		Description: req.Description,
		Attributes:  req.Attributes,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, h.representation(r, ro))
}

// ListRoles lists roles of a scope with substring search and paging.
// briefRepresentation defaults to true and omits attributes.
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	first, max, err := pagingParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid paging parameters")
		return
	}

	roles, err := h.roleStore.List(r.Context(), scopeFromRequest(r), role.ListInput{
		Filter: r.URL.Query().Get("search"),
		First:  first,
		Max:    max,
		Brief:  boolParam(r, "briefRepresentation", true),
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.representations(r, roles))
}

// GetRole retrieves a role by name within a scope
func (h *Handler) GetRole(w http.ResponseWriter, r *http.Request) {
	ro, err := h.roleStore.Get(r.Context(), scopeFromRequest(r), chi.URLParam(r, "roleName"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.representation(r, ro))
}

// UpdateRoleRequest represents a partial role update
type UpdateRoleRequest struct {
	Name        *string             `json:"name"`
	Description *string             `json:"description"`
	Attributes  map[string][]string `json:"attributes"`
}

// UpdateRole applies a partial update to a role
func (h *Handler) UpdateRole(w http.ResponseWriter, r *http.Request) {
	ro, err := h.roleStore.Get(r.Context(), scopeFromRequest(r), chi.URLParam(r, "roleName"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	var req UpdateRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.roleStore.Update(r.Context(), ro.ID, role.UpdateInput{
		Name:        req.Name,
		Description: req.Description,
		Attributes:  req.Attributes,
	})
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.representation(r, updated))
}

// DeleteRole deletes a role; edges and assignments referencing it cascade
func (h *Handler) DeleteRole(w http.ResponseWriter, r *http.Request) {
	ro, err := h.roleStore.Get(r.Context(), scopeFromRequest(r), chi.URLParam(r, "roleName"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	if err := h.roleStore.Delete(r.Context(), ro.ID); err != nil {
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) roleFromPath(r *http.Request) (*role.Role, error) {
	return h.roleStore.Get(r.Context(), scopeFromRequest(r), chi.URLParam(r, "roleName"))
}

func decodeRoleIDs(r *http.Request) ([]string, error) {
	var refs []RoleRef
	if err := json.NewDecoder(r.Body).Decode(&refs); err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	return ids, nil
}

// AddComposites adds child roles to a composite; the batch is all-or-nothing
func (h *Handler) AddComposites(w http.ResponseWriter, r *http.Request) {
	ro, err := h.roleFromPath(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	ids, err := decodeRoleIDs(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.graph.AddComposites(r.Context(), ro.ID, ids); err != nil {
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// RemoveComposites removes child roles from a composite
func (h *Handler) RemoveComposites(w http.ResponseWriter, r *http.Request) {
	ro, err := h.roleFromPath(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	ids, err := decodeRoleIDs(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.graph.RemoveComposites(r.Context(), ro.ID, ids); err != nil {
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetComposites returns the child roles of a composite; ?recursive=true
// expands the full closure
func (h *Handler) GetComposites(w http.ResponseWriter, r *http.Request) {
	ro, err := h.roleFromPath(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	children, err := h.graph.Children(r.Context(), ro.ID, boolParam(r, "recursive", false))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.representations(r, children))
}

// GetRealmComposites returns the realm-scope children of a composite
func (h *Handler) GetRealmComposites(w http.ResponseWriter, r *http.Request) {
	h.compositesByScope(w, r, role.RealmScope())
}

// GetClientComposites returns children owned by a specific client
func (h *Handler) GetClientComposites(w http.ResponseWriter, r *http.Request) {
	h.compositesByScope(w, r, role.ClientScope(chi.URLParam(r, "clientID")))
}

func (h *Handler) compositesByScope(w http.ResponseWriter, r *http.Request, scope role.Scope) {
	ro, err := h.roleFromPath(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	children, err := h.graph.ChildrenByScope(r.Context(), ro.ID, scope, boolParam(r, "recursive", false))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.representations(r, children))
}

// GetParents returns the roles that include this role; ?recursive=true
// returns every transitive ancestor
func (h *Handler) GetParents(w http.ResponseWriter, r *http.Request) {
	ro, err := h.roleFromPath(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	parents, err := h.graph.Parents(r.Context(), ro.ID, boolParam(r, "recursive", false))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, h.representations(r, parents))
}

// GetRoleMembers returns the users effectively holding a role.
// ?transitive=true includes holders through composite ancestors; first/max
// page the stable, deduplicated sequence.
func (h *Handler) GetRoleMembers(w http.ResponseWriter, r *http.Request) {
	ro, err := h.roleFromPath(r)
	if err != nil {
		respondDomainError(w, err)
		return
	}

	first, max, err := pagingParams(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid paging parameters")
		return
	}

	users, err := h.resolver.EffectiveMembers(r.Context(), ro.ID, first, max, boolParam(r, "transitive", false))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, users)
}

// AssignUserRoles grants roles directly to a user
func (h *Handler) AssignUserRoles(w http.ResponseWriter, r *http.Request) {
	h.assignRoles(w, r, membership.User(chi.URLParam(r, "userID")))
}

// UnassignUserRoles removes direct role grants from a user
func (h *Handler) UnassignUserRoles(w http.ResponseWriter, r *http.Request) {
	h.unassignRoles(w, r, membership.User(chi.URLParam(r, "userID")))
}

// GetUserRoles returns the roles directly assigned to a user
func (h *Handler) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	h.directRoles(w, r, membership.User(chi.URLParam(r, "userID")))
}

// AssignGroupRoles grants roles directly to a group
func (h *Handler) AssignGroupRoles(w http.ResponseWriter, r *http.Request) {
	h.assignRoles(w, r, membership.Group(chi.URLParam(r, "groupID")))
}

// UnassignGroupRoles removes direct role grants from a group
func (h *Handler) UnassignGroupRoles(w http.ResponseWriter, r *http.Request) {
	h.unassignRoles(w, r, membership.Group(chi.URLParam(r, "groupID")))
}

// GetGroupRoles returns the roles directly assigned to a group
func (h *Handler) GetGroupRoles(w http.ResponseWriter, r *http.Request) {
	h.directRoles(w, r, membership.Group(chi.URLParam(r, "groupID")))
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request, p membership.Principal) {
	ids, err := decodeRoleIDs(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.index.Assign(r.Context(), p, ids); err != nil {
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) unassignRoles(w http.ResponseWriter, r *http.Request, p membership.Principal) {
	ids, err := decodeRoleIDs(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.index.Unassign(r.Context(), p, ids); err != nil {
		respondDomainError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) directRoles(w http.ResponseWriter, r *http.Request, p membership.Principal) {
	roles, err := h.index.DirectRoles(r.Context(), p)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, h.representations(r, roles))
}

// JoinGroup records a user's membership in a group
func (h *Handler) JoinGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.index.JoinGroup(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "groupID")); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// LeaveGroup removes a user's membership in a group
func (h *Handler) LeaveGroup(w http.ResponseWriter, r *http.Request) {
	if err := h.index.LeaveGroup(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "groupID")); err != nil {
		respondDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetUserGroups returns the IDs of the groups a user belongs to
func (h *Handler) GetUserGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := h.index.GroupsOf(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, groups)
}
