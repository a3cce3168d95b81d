package http

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/opentrusty/rolegraph/internal/audit"
	"github.com/opentrusty/rolegraph/internal/composite"
	"github.com/opentrusty/rolegraph/internal/membership"
	"github.com/opentrusty/rolegraph/internal/role"
	"github.com/opentrusty/rolegraph/internal/store/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T) *chi.Mux {
	t.Helper()
	mem := memory.NewStore()
	auditLogger := audit.NewSlogLogger()
	roleStore := role.NewStore(mem, mem, role.NewListCache(0), auditLogger)
	graph := composite.NewGraph(mem, mem, auditLogger)
	index := membership.NewIndex(mem, mem, mem, auditLogger)
	resolver := membership.NewResolver(mem, graph, mem, mem)

	h := NewHandler(roleStore, graph, index, resolver)
	return NewRouter(h, NewRateLimiter(1000, 1000))
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeRoles(t *testing.T, w *httptest.ResponseRecorder) []RoleRepresentation {
	t.Helper()
	var reps []RoleRepresentation
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &reps))
	return reps
}

// TestPurpose: Validates the role CRUD surface for realm and client scopes.
// Scope: Integration Test (HTTP layer over the in-memory store)
// Expected: Creation returns 201 with the representation, duplicates return 409, lookups by name return the role or 404, updates rename in place, deletion returns 204.
func TestHTTP_Role_CRUD(t *testing.T) {
	router := newTestRouter(t)

	t.Run("create realm role", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/roles", CreateRoleRequest{Name: "admin", Description: "realm admin"})
		require.Equal(t, http.StatusCreated, w.Code)

		var rep RoleRepresentation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
		assert.NotEmpty(t, rep.ID)
		assert.Equal(t, "admin", rep.Name)
		assert.False(t, rep.ClientRole)
		assert.Empty(t, rep.ContainerID)
	})

	t.Run("duplicate name conflicts", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/roles", CreateRoleRequest{Name: "admin"})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("same name allowed in client scope", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/clients/app-1/roles", CreateRoleRequest{Name: "admin"})
		require.Equal(t, http.StatusCreated, w.Code)

		var rep RoleRepresentation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
		assert.True(t, rep.ClientRole)
		assert.Equal(t, "app-1", rep.ContainerID)
	})

	t.Run("get by name", func(t *testing.T) {
		w := doJSON(t, router, "GET", "/roles/admin", nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, router, "GET", "/roles/missing", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("update renames", func(t *testing.T) {
		name := "superadmin"
		w := doJSON(t, router, "PUT", "/roles/admin", UpdateRoleRequest{Name: &name})
		require.Equal(t, http.StatusOK, w.Code)

		w = doJSON(t, router, "GET", "/roles/superadmin", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		w = doJSON(t, router, "GET", "/roles/admin", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := doJSON(t, router, "DELETE", "/roles/superadmin", nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = doJSON(t, router, "DELETE", "/roles/superadmin", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// TestPurpose: Validates listing with search, paging and representation shape.
// Scope: Integration Test (HTTP layer over the in-memory store)
// Expected: search filters by substring, first/max page the ordered listing, briefRepresentation defaults to true and omits attributes.
func TestHTTP_Role_List(t *testing.T) {
	router := newTestRouter(t)

	for i := 0; i < 5; i++ {
		w := doJSON(t, router, "POST", "/clients/app-1/roles", CreateRoleRequest{
			Name:       fmt.Sprintf("role-%d", i),
			Attributes: map[string][]string{"idx": {fmt.Sprintf("%d", i)}},
		})
		require.Equal(t, http.StatusCreated, w.Code)
	}
	w := doJSON(t, router, "POST", "/clients/app-1/roles", CreateRoleRequest{Name: "other"})
	require.Equal(t, http.StatusCreated, w.Code)

	t.Run("search", func(t *testing.T) {
		w := doJSON(t, router, "GET", "/clients/app-1/roles?search=role-", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeRoles(t, w), 5)
	})

	t.Run("paging", func(t *testing.T) {
		w := doJSON(t, router, "GET", "/clients/app-1/roles?search=role-&first=3&max=10", nil)
		require.Equal(t, http.StatusOK, w.Code)
		reps := decodeRoles(t, w)
		require.Len(t, reps, 2)
		assert.Equal(t, "role-3", reps[0].Name)
		assert.Equal(t, "role-4", reps[1].Name)
	})

	t.Run("brief by default", func(t *testing.T) {
		w := doJSON(t, router, "GET", "/clients/app-1/roles?search=role-0", nil)
		require.Equal(t, http.StatusOK, w.Code)
		reps := decodeRoles(t, w)
		require.Len(t, reps, 1)
		assert.Nil(t, reps[0].Attributes)

		w = doJSON(t, router, "GET", "/clients/app-1/roles?search=role-0&briefRepresentation=false", nil)
		require.Equal(t, http.StatusOK, w.Code)
		reps = decodeRoles(t, w)
		require.Len(t, reps, 1)
		assert.Equal(t, map[string][]string{"idx": {"0"}}, reps[0].Attributes)
	})

	t.Run("bad paging rejected", func(t *testing.T) {
		w := doJSON(t, router, "GET", "/clients/app-1/roles?first=abc", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		w = doJSON(t, router, "GET", "/clients/app-1/roles?first=-4", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

// TestPurpose: Validates the composite endpoints, including cycle rejection and scope-split listings.
// Scope: Integration Test (HTTP layer over the in-memory store)
// Expected: Adding children flips the composite flag, cycles return 400, composites/realm and composites/clients/{id} split the children by owner.
func TestHTTP_Role_Composites(t *testing.T) {
	router := newTestRouter(t)

	createRole := func(path, name string) RoleRepresentation {
		w := doJSON(t, router, "POST", path, CreateRoleRequest{Name: name})
		require.Equal(t, http.StatusCreated, w.Code)
		var rep RoleRepresentation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
		return rep
	}

	parent := createRole("/roles", "parent")
	realmChild := createRole("/roles", "realm-child")
	appChild := createRole("/clients/app-1/roles", "app-child")

	t.Run("add children", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/roles/parent/composites", []RoleRef{{ID: realmChild.ID}, {ID: appChild.ID}})
		require.Equal(t, http.StatusNoContent, w.Code)

		w = doJSON(t, router, "GET", "/roles/parent", nil)
		require.Equal(t, http.StatusOK, w.Code)
		var rep RoleRepresentation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
		assert.True(t, rep.Composite)
	})

	t.Run("list children", func(t *testing.T) {
		w := doJSON(t, router, "GET", "/roles/parent/composites", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decodeRoles(t, w), 2)

		w = doJSON(t, router, "GET", "/roles/parent/composites/realm", nil)
		require.Equal(t, http.StatusOK, w.Code)
		reps := decodeRoles(t, w)
		require.Len(t, reps, 1)
		assert.Equal(t, "realm-child", reps[0].Name)

		w = doJSON(t, router, "GET", "/roles/parent/composites/clients/app-1", nil)
		require.Equal(t, http.StatusOK, w.Code)
		reps = decodeRoles(t, w)
		require.Len(t, reps, 1)
		assert.Equal(t, "app-child", reps[0].Name)
	})

	t.Run("cycle rejected", func(t *testing.T) {
		w := doJSON(t, router, "POST", "/roles/realm-child/composites", []RoleRef{{ID: parent.ID}})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("parents", func(t *testing.T) {
		w := doJSON(t, router, "GET", "/roles/realm-child/parents", nil)
		require.Equal(t, http.StatusOK, w.Code)
		reps := decodeRoles(t, w)
		require.Len(t, reps, 1)
		assert.Equal(t, "parent", reps[0].Name)
	})

	t.Run("remove children", func(t *testing.T) {
		w := doJSON(t, router, "DELETE", "/roles/parent/composites", []RoleRef{{ID: realmChild.ID}, {ID: appChild.ID}})
		require.Equal(t, http.StatusNoContent, w.Code)

		w = doJSON(t, router, "GET", "/roles/parent/composites", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeRoles(t, w))
	})
}

// TestPurpose: Validates role mappings, group membership, and effective member resolution over HTTP.
// Scope: Integration Test (HTTP layer over the in-memory store)
// Expected: Users appear among a role's members directly, through groups, and (with ?transitive=true) through ancestor roles; paging windows partition the sequence.
func TestHTTP_Role_Members(t *testing.T) {
	router := newTestRouter(t)

	createRole := func(name string) RoleRepresentation {
		w := doJSON(t, router, "POST", "/clients/app-1/roles", CreateRoleRequest{Name: name})
		require.Equal(t, http.StatusCreated, w.Code)
		var rep RoleRepresentation
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rep))
		return rep
	}

	parent := createRole("parent-role")
	child := createRole("child-role")

	w := doJSON(t, router, "POST", "/clients/app-1/roles/parent-role/composites", []RoleRef{{ID: child.ID}})
	require.Equal(t, http.StatusNoContent, w.Code)

	// toto directly, tata via group, titi via the parent role
	w = doJSON(t, router, "POST", "/users/toto/role-mappings", []RoleRef{{ID: child.ID}})
	require.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, router, "PUT", "/users/tata/groups/ops", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, router, "POST", "/groups/ops/role-mappings", []RoleRef{{ID: child.ID}})
	require.Equal(t, http.StatusNoContent, w.Code)
	w = doJSON(t, router, "POST", "/users/titi/role-mappings", []RoleRef{{ID: parent.ID}})
	require.Equal(t, http.StatusNoContent, w.Code)

	decodeUsers := func(w *httptest.ResponseRecorder) []string {
		var users []string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
		return users
	}

	t.Run("direct members", func(t *testing.T) {
		w := doJSON(t, router, "GET", "/clients/app-1/roles/child-role/users", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"tata", "toto"}, decodeUsers(w))
	})

	t.Run("transitive members", func(t *testing.T) {
		w := doJSON(t, router, "GET", "/clients/app-1/roles/child-role/users?transitive=true", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"tata", "titi", "toto"}, decodeUsers(w))
	})

	t.Run("paged members", func(t *testing.T) {
		w := doJSON(t, router, "GET", "/clients/app-1/roles/child-role/users?transitive=true&first=0&max=2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"tata", "titi"}, decodeUsers(w))

		w = doJSON(t, router, "GET", "/clients/app-1/roles/child-role/users?transitive=true&first=2&max=2", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"toto"}, decodeUsers(w))
	})

	t.Run("user role mappings", func(t *testing.T) {
		w := doJSON(t, router, "GET", "/users/toto/role-mappings", nil)
		require.Equal(t, http.StatusOK, w.Code)
		reps := decodeRoles(t, w)
		require.Len(t, reps, 1)
		assert.Equal(t, "child-role", reps[0].Name)

		w = doJSON(t, router, "DELETE", "/users/toto/role-mappings", []RoleRef{{ID: child.ID}})
		require.Equal(t, http.StatusNoContent, w.Code)

		w = doJSON(t, router, "GET", "/users/toto/role-mappings", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeRoles(t, w))
	})

	t.Run("user groups", func(t *testing.T) {
		w := doJSON(t, router, "GET", "/users/tata/groups", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var groups []string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &groups))
		assert.Equal(t, []string{"ops"}, groups)

		w = doJSON(t, router, "DELETE", "/users/tata/groups/ops", nil)
		require.Equal(t, http.StatusNoContent, w.Code)

		w = doJSON(t, router, "GET", "/clients/app-1/roles/child-role/users", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decodeUsers(w))
	})
}
