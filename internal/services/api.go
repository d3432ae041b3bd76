// Client for the tmx HTTP API served by `tmx serve`
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/shared"
)

const defaultServerURL = "http://127.0.0.1:3000"

// APIService makes requests against a running tmx server.
type APIService struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIService creates a client for the server at baseURL.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = defaultServerURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    baseURL,
		httpClient: client,
	}
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPost, path, data)
}

// Delete performs a DELETE request and returns the raw response.
func (a *APIService) Delete(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodDelete, path, nil)
}

func (a *APIService) do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %v", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// GetJSON performs a GET request and decodes a successful JSON response into v.
// Error statuses are mapped onto shared sentinels.
func (a *APIService) GetJSON(ctx context.Context, path string, v any) error {
	resp, err := a.Get(ctx, path)
	if err != nil {
		return err
	}
	if err := resp.err(); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

// JobStatus fetches a job from the server.
func (a *APIService) JobStatus(ctx context.Context, id string) (*models.JobView, error) {
	var view models.JobView
	if err := a.GetJSON(ctx, "/api/jobs/"+url.PathEscape(id), &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// CancelJob asks the server to cancel a running job.
func (a *APIService) CancelJob(ctx context.Context, id string) error {
	resp, err := a.Delete(ctx, "/api/jobs/"+url.PathEscape(id))
	if err != nil {
		return err
	}
	return resp.err()
}

// err maps the server's error statuses back onto shared sentinels.
func (r *APIResponse) err() error {
	if r.StatusCode >= 200 && r.StatusCode < 300 {
		return nil
	}

	msg := string(r.Body)
	if m, ok := r.JSONData.(map[string]any); ok {
		if s, ok := m["error"].(string); ok {
			msg = s
		}
	}

	switch r.StatusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", shared.ErrJobNotFound, msg)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", shared.ErrJobTerminal, msg)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", shared.ErrInvalidInput, msg)
	}
	return fmt.Errorf("%w: status %d: %s", shared.ErrAPIRequest, r.StatusCode, msg)
}
