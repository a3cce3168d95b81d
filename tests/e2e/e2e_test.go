//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseURL = getEnv("ROLEGRAPH_API_URL", "http://127.0.0.1:8080")

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

type TestClient struct {
	httpClient *http.Client
}

func NewTestClient() *TestClient {
	return &TestClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *TestClient) Do(method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		jsonBody, _ := json.Marshal(body)
		bodyReader = bytes.NewBuffer(jsonBody)
	}

	req, _ := http.NewRequest(method, baseURL+path, bodyReader)
	req.Header.Set("Content-Type", "application/json")
	return c.httpClient.Do(req)
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

type roleRep struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Composite bool   `json:"composite"`
}

type roleRef struct {
	ID string `json:"id"`
}

func TestE2E_Workflows(t *testing.T) {
	client := NewTestClient()
	suffix := fmt.Sprintf("%d", time.Now().Unix())

	// State shared between subtests
	var (
		parentID string
		childID  string
	)
	parentName := "e2e-parent-" + suffix
	childName := "e2e-child-" + suffix
	clientPath := "/clients/e2e-app-" + suffix

	// 1. Role Hierarchy Flow
	t.Run("Role Hierarchy Flow", func(t *testing.T) {
		resp, err := client.Do("POST", clientPath+"/roles", map[string]string{
			"name":        parentName,
			"description": "e2e parent role",
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		parentID = decode[roleRep](t, resp).ID

		resp, err = client.Do("POST", clientPath+"/roles", map[string]string{
			"name": childName,
		})
		require.NoError(t, err)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
		childID = decode[roleRep](t, resp).ID

		resp, err = client.Do("POST", clientPath+"/roles/"+parentName+"/composites", []roleRef{{ID: childID}})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp.Body.Close()

		// A cycle must be rejected by the live server too
		resp, err = client.Do("POST", clientPath+"/roles/"+childName+"/composites", []roleRef{{ID: parentID}})
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		resp.Body.Close()

		resp, err = client.Do("GET", clientPath+"/roles/"+parentName, nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.True(t, decode[roleRep](t, resp).Composite)
	})

	// 2. Membership Flow
	t.Run("Membership Flow", func(t *testing.T) {
		require.NotEmpty(t, parentID)
		require.NotEmpty(t, childID)

		userDirect := "e2e-user-direct-" + suffix
		userGrouped := "e2e-user-grouped-" + suffix
		userParent := "e2e-user-parent-" + suffix
		group := "e2e-group-" + suffix

		resp, err := client.Do("POST", "/users/"+userDirect+"/role-mappings", []roleRef{{ID: childID}})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp.Body.Close()

		resp, err = client.Do("PUT", "/users/"+userGrouped+"/groups/"+group, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp.Body.Close()

		resp, err = client.Do("POST", "/groups/"+group+"/role-mappings", []roleRef{{ID: childID}})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp.Body.Close()

		resp, err = client.Do("POST", "/users/"+userParent+"/role-mappings", []roleRef{{ID: parentID}})
		require.NoError(t, err)
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		resp.Body.Close()

		resp, err = client.Do("GET", clientPath+"/roles/"+childName+"/users", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		direct := decode[[]string](t, resp)
		assert.ElementsMatch(t, []string{userDirect, userGrouped}, direct)

		resp, err = client.Do("GET", clientPath+"/roles/"+childName+"/users?transitive=true", nil)
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		transitive := decode[[]string](t, resp)
		assert.ElementsMatch(t, []string{userDirect, userGrouped, userParent}, transitive)
	})

	// 3. Cleanup Flow
	t.Run("Cleanup Flow", func(t *testing.T) {
		for _, name := range []string{parentName, childName} {
			resp, err := client.Do("DELETE", clientPath+"/roles/"+name, nil)
			require.NoError(t, err)
			assert.Equal(t, http.StatusNoContent, resp.StatusCode)
			resp.Body.Close()
		}

		resp, err := client.Do("GET", clientPath+"/roles/"+parentName, nil)
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		resp.Body.Close()
	})
}
