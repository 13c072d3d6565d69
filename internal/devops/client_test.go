package devops

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const testToken = "pat-token"

func expectedAuthHeader() string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+testToken))
}

func TestListProjects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, expectedAuthHeader(), r.Header.Get("Authorization"))
		assert.Equal(t, "/_apis/projects", r.URL.Path)
		assert.Equal(t, apiVersion, r.URL.Query().Get("api-version"))

		w.Header().Set("Content-Type", "application/json")
		_, err := fmt.Fprint(w, `{"count": 2, "value": [
			{"id": "p1", "name": "billing", "description": "Owner: Alpha"},
			{"id": "p2", "name": "frontend"}
		]}`)
		assert.NoError(t, err)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, testToken)
	projects, err := c.ListProjects(context.Background())
	assert.NoError(t, err)
	assert.Len(t, projects, 2)
	assert.Equal(t, "p1", projects[0].ID)
	assert.Equal(t, "Owner: Alpha", projects[0].Description)
	assert.Empty(t, projects[1].Description)
}

func TestListProjectsFollowsContinuationToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Query().Get("continuationToken") == "" {
			w.Header().Set("x-ms-continuationtoken", "next-page")
			_, err := fmt.Fprint(w, `{"value": [{"id": "p1", "name": "one"}]}`)
			assert.NoError(t, err)
			return
		}
		assert.Equal(t, "next-page", r.URL.Query().Get("continuationToken"))
		_, err := fmt.Fprint(w, `{"value": [{"id": "p2", "name": "two"}]}`)
		assert.NoError(t, err)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, testToken)
	projects, err := c.ListProjects(context.Background())
	assert.NoError(t, err)
	assert.Len(t, projects, 2)
	assert.Equal(t, "p1", projects[0].ID)
	assert.Equal(t, "p2", projects[1].ID)
}

func TestListProjectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, testToken)
	projects, err := c.ListProjects(context.Background())
	assert.Error(t, err)
	assert.Nil(t, projects)
	assert.Contains(t, err.Error(), "401")
}

func TestPrimaryRepositoryURL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, expectedAuthHeader(), r.Header.Get("Authorization"))
		assert.Equal(t, "/p1/_apis/git/repositories", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		_, err := fmt.Fprint(w, `{"value": [
			{"remoteUrl": "https://dev.azure.com/org/p1/_git/first"},
			{"remoteUrl": "https://dev.azure.com/org/p1/_git/second"}
		]}`)
		assert.NoError(t, err)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, testToken)
	repoURL, err := c.PrimaryRepositoryURL(context.Background(), "p1")
	assert.NoError(t, err)
	assert.Equal(t, "https://dev.azure.com/org/p1/_git/first", repoURL)
}

func TestPrimaryRepositoryURLNoRepositories(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, err := fmt.Fprint(w, `{"value": []}`)
		assert.NoError(t, err)
	}))
	defer server.Close()

	c := NewClient(server.Client(), server.URL, testToken)
	repoURL, err := c.PrimaryRepositoryURL(context.Background(), "p1")
	assert.NoError(t, err)
	assert.Empty(t, repoURL)
}

func TestNewClientNormalizesOrganization(t *testing.T) {
	c := NewClient(http.DefaultClient, "my-org", testToken)
	assert.Equal(t, "https://dev.azure.com/my-org", c.baseURL)

	c = NewClient(http.DefaultClient, "https://devops.example.com/my-org/", testToken)
	assert.Equal(t, "https://devops.example.com/my-org", c.baseURL)
}
