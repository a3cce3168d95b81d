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
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opentrusty/rolegraph/internal/composite"
	"github.com/opentrusty/rolegraph/internal/membership"
	"github.com/opentrusty/rolegraph/internal/role"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Handler holds HTTP handlers and dependencies
type Handler struct {
	roleStore *role.Store
	graph     *composite.Graph
	index     *membership.Index
	resolver  *membership.Resolver
}

// NewHandler creates a new HTTP handler
func NewHandler(
	roleStore *role.Store,
	graph *composite.Graph,
	index *membership.Index,
	resolver *membership.Resolver,
) *Handler {
	return &Handler{
		roleStore: roleStore,
		graph:     graph,
		index:     index,
		resolver:  resolver,
	}
}

// NewRouter creates a new HTTP router
func NewRouter(h *Handler, rateLimiter *RateLimiter) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(RateLimitMiddleware(rateLimiter))
	r.Use(func(handler http.Handler) http.Handler {
		return otelhttp.NewHandler(handler, "http_request",
			otelhttp.WithSpanNameFormatter(func(operation string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	})
	r.Use(LoggingMiddleware())
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check
	r.Get("/health", h.HealthCheck)

	// Realm roles and client roles share the handler set; scope comes from
	// the route.
	roleRoutes := func(r chi.Router) {
		r.Post("/", h.CreateRole)
		r.Get("/", h.ListRoles)
		r.Route("/{roleName}", func(r chi.Router) {
			r.Get("/", h.GetRole)
			r.Put("/", h.UpdateRole)
			r.Delete("/", h.DeleteRole)
			r.Get("/composites", h.GetComposites)
			r.Post("/composites", h.AddComposites)
			r.Delete("/composites", h.RemoveComposites)
			r.Get("/composites/realm", h.GetRealmComposites)
			r.Get("/composites/clients/{clientID}", h.GetClientComposites)
			r.Get("/parents", h.GetParents)
			r.Get("/users", h.GetRoleMembers)
		})
	}
	r.Route("/roles", roleRoutes)
	r.Route("/clients/{clientID}/roles", roleRoutes)

	// Assignments and group membership
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Post("/role-mappings", h.AssignUserRoles)
		r.Delete("/role-mappings", h.UnassignUserRoles)
		r.Get("/role-mappings", h.GetUserRoles)
		r.Put("/groups/{groupID}", h.JoinGroup)
		r.Delete("/groups/{groupID}", h.LeaveGroup)
		r.Get("/groups", h.GetUserGroups)
	})
	r.Route("/groups/{groupID}", func(r chi.Router) {
		r.Post("/role-mappings", h.AssignGroupRoles)
		r.Delete("/role-mappings", h.UnassignGroupRoles)
		r.Get("/role-mappings", h.GetGroupRoles)
	})

	return r
}

// HealthCheck reports service liveness
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}
