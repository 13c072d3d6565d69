package devops

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
)

const apiVersion = "7.1"

// Client talks to the Azure DevOps REST API with a personal access token.
type Client struct {
	baseURL    string
	authHeader string
	client     *http.Client
	logger     *log.Entry
}

// Project is an Azure DevOps project. The description carries the ownership
// marker matched against organizations.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type repository struct {
	RemoteURL string `json:"remoteUrl"`
}

// NewClient accepts either a bare organization name or a full base URL.
func NewClient(client *http.Client, organization, token string) *Client {
	baseURL := strings.TrimSuffix(organization, "/")
	if !strings.HasPrefix(baseURL, "https://") && !strings.HasPrefix(baseURL, "http://") {
		baseURL = "https://dev.azure.com/" + baseURL
	}

	return &Client{
		baseURL:    baseURL,
		authHeader: "Basic " + base64.StdEncoding.EncodeToString([]byte(":"+token)),
		client:     client,
		logger:     log.WithField("package", "devops"),
	}
}

// ListProjects returns every project in the organization, following the
// continuation token until all pages are consumed.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var projects []Project
	continuationToken := ""

	for {
		endpoint := "/_apis/projects?api-version=" + apiVersion
		if continuationToken != "" {
			endpoint += "&continuationToken=" + url.QueryEscape(continuationToken)
		}

		body, headers, err := c.get(ctx, endpoint)
		if err != nil {
			return nil, err
		}

		var page struct {
			Value []Project `json:"value"`
		}
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("unmarshalling projects response: %w", err)
		}
		projects = append(projects, page.Value...)

		continuationToken = headers.Get("x-ms-continuationtoken")
		if continuationToken == "" {
			break
		}
	}

	return projects, nil
}

// PrimaryRepositoryURL returns the remote URL of the first repository in a
// project, or an empty string when the project has none. Only the first
// repository is bound to an application.
func (c *Client) PrimaryRepositoryURL(ctx context.Context, projectID string) (string, error) {
	endpoint := fmt.Sprintf("/%s/_apis/git/repositories?api-version=%s", url.PathEscape(projectID), apiVersion)

	body, _, err := c.get(ctx, endpoint)
	if err != nil {
		return "", err
	}

	var page struct {
		Value []repository `json:"value"`
	}
	if err := json.Unmarshal(body, &page); err != nil {
		return "", fmt.Errorf("unmarshalling repositories response: %w", err)
	}

	if len(page.Value) == 0 {
		return "", nil
	}
	c.logger.WithField("url", page.Value[0].RemoteURL).Debug("resolved repository url")
	return page.Value[0].RemoteURL, nil
}

func (c *Client) get(ctx context.Context, endpoint string) ([]byte, http.Header, error) {
	c.logger.WithFields(log.Fields{
		"method": http.MethodGet,
		"url":    endpoint,
	}).Debug("creating request")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", c.authHeader)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, fmt.Errorf("GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode > 299 {
		return nil, nil, fmt.Errorf("GET %s: unexpected status code: %d, with body:\n%s", endpoint, resp.StatusCode, string(body))
	}

	return body, resp.Header, nil
}
