package iq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	ApplicationsPath  = "/applications"
	SourceControlPath = "/sourceControl/application"
	EvaluationPath    = "/evaluation/applications"
	ApiVersion2       = "/api/v2"
)

// Client talks to the IQ Server REST API with basic auth.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	logger   *log.Entry
}

// Application is one scanned codebase in IQ Server, keyed by name when
// matching against projects.
type Application struct {
	ID       string `json:"id"`
	PublicID string `json:"publicId"`
	Name     string `json:"name"`
}

type applicationRequest struct {
	PublicID       string `json:"publicId"`
	Name           string `json:"name"`
	OrganizationID string `json:"organizationId"`
}

type sourceControlRequest struct {
	RepositoryURL                   string `json:"repositoryUrl"`
	BaseBranch                      string `json:"baseBranch"`
	RemediationPullRequestsEnabled  bool   `json:"remediationPullRequestsEnabled"`
	PullRequestCommentingEnabled    bool   `json:"pullRequestCommentingEnabled"`
	SourceControlEvaluationsEnabled bool   `json:"sourceControlEvaluationsEnabled"`
}

type evaluationRequest struct {
	StageID    string `json:"stageId"`
	BranchName string `json:"branchName"`
}

func NewClient(client *http.Client, baseURL, username, password string) *Client {
	return &Client{
		baseURL:  strings.TrimSuffix(baseURL, "/") + ApiVersion2,
		username: username,
		password: password,
		client:   client,
		logger:   log.WithField("package", "iq"),
	}
}

// ListApplications returns every application under an organization.
func (c *Client) ListApplications(ctx context.Context, orgID string) ([]Application, error) {
	endpoint := ApplicationsPath + "/organization/" + url.PathEscape(orgID)

	req, err := c.createRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	status, body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("GET %s: %w", endpoint, err)
	}
	if status > 299 {
		return nil, unexpectedStatus(http.MethodGet, endpoint, status, body)
	}

	var result struct {
		Applications []Application `json:"applications"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("unmarshalling applications response: %w", err)
	}
	return result.Applications, nil
}

// CreateApplication creates an application and binds it to its source control
// repository. The publicId is the slugified name; the display name stays as
// given. A failed binding rolls the half-created application back.
func (c *Client) CreateApplication(ctx context.Context, name, repoURL, branch, orgID string) (string, error) {
	payload, err := json.Marshal(applicationRequest{
		PublicID:       Slugify(name),
		Name:           name,
		OrganizationID: orgID,
	})
	if err != nil {
		return "", fmt.Errorf("marshalling application request: %w", err)
	}

	req, err := c.createRequest(ctx, http.MethodPost, ApplicationsPath, payload)
	if err != nil {
		return "", err
	}

	status, body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("POST %s: %w", ApplicationsPath, err)
	}
	if status > 299 {
		return "", unexpectedStatus(http.MethodPost, ApplicationsPath, status, body)
	}

	var app Application
	if err := json.Unmarshal(body, &app); err != nil {
		return "", fmt.Errorf("unmarshalling application response: %w", err)
	}

	if err := c.configureSourceControl(ctx, app.ID, repoURL, branch); err != nil {
		// The application exists server-side but is unusable without its
		// source control binding. Roll it back rather than leave an orphan.
		if delErr := c.DeleteApplication(ctx, app.ID); delErr != nil {
			return "", fmt.Errorf("configuring source control for %s: %w (rollback delete failed: %v, application %s left behind)", name, err, delErr, app.ID)
		}
		return "", fmt.Errorf("configuring source control for %s (application rolled back): %w", name, err)
	}

	return app.ID, nil
}

func (c *Client) configureSourceControl(ctx context.Context, appID, repoURL, branch string) error {
	endpoint := SourceControlPath + "/" + url.PathEscape(appID)

	payload, err := json.Marshal(sourceControlRequest{
		RepositoryURL:                   repoURL,
		BaseBranch:                      branch,
		RemediationPullRequestsEnabled:  true,
		PullRequestCommentingEnabled:    true,
		SourceControlEvaluationsEnabled: true,
	})
	if err != nil {
		return fmt.Errorf("marshalling source control request: %w", err)
	}

	req, err := c.createRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return err
	}

	status, body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", endpoint, err)
	}
	if status > 299 {
		return unexpectedStatus(http.MethodPost, endpoint, status, body)
	}
	return nil
}

// ScanApplication requests a source control evaluation at the given stage.
// Success is exactly HTTP 200.
func (c *Client) ScanApplication(ctx context.Context, appID, branch, stageID string) error {
	endpoint := EvaluationPath + "/" + url.PathEscape(appID) + "/sourceControlEvaluation"

	payload, err := json.Marshal(evaluationRequest{
		StageID:    stageID,
		BranchName: branch,
	})
	if err != nil {
		return fmt.Errorf("marshalling evaluation request: %w", err)
	}

	req, err := c.createRequest(ctx, http.MethodPost, endpoint, payload)
	if err != nil {
		return err
	}

	status, body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", endpoint, err)
	}
	if status != http.StatusOK {
		return unexpectedStatus(http.MethodPost, endpoint, status, body)
	}
	return nil
}

// DeleteApplication removes an application. Success is exactly HTTP 204.
func (c *Client) DeleteApplication(ctx context.Context, appID string) error {
	endpoint := ApplicationsPath + "/" + url.PathEscape(appID)

	req, err := c.createRequest(ctx, http.MethodDelete, endpoint, nil)
	if err != nil {
		return err
	}

	status, body, err := c.do(req)
	if err != nil {
		return fmt.Errorf("DELETE %s: %w", endpoint, err)
	}
	if status != http.StatusNoContent {
		return unexpectedStatus(http.MethodDelete, endpoint, status, body)
	}
	return nil
}

// Slugify turns a display name into a public identifier.
func Slugify(name string) string {
	return strings.ReplaceAll(strings.ToLower(name), " ", "-")
}

func (c *Client) createRequest(ctx context.Context, method, endpoint string, body []byte) (*http.Request, error) {
	c.logger.WithFields(log.Fields{
		"method": method,
		"url":    endpoint,
	}).Debug("creating request")

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("reading response body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func unexpectedStatus(method, endpoint string, status int, body []byte) error {
	return fmt.Errorf("%s %s: unexpected status code: %d, with body:\n%s", method, endpoint, status, string(body))
}
