package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/desertthunder/tmx/internal/models"
	"github.com/desertthunder/tmx/internal/shared"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	defaultPlatformURL = "https://services.leadconnectorhq.com"
	defaultTimeout     = 30 * time.Second
	apiVersion         = "2021-07-28"
)

// HTTPConnector opens [HTTPTenant] handles against the platform's REST API.
type HTTPConnector struct {
	baseURL   string
	timeout   time.Duration
	rateLimit rate.Limit
	burst     int
	transport http.RoundTripper
}

// NewHTTPConnector creates a connector from the [platform] config section.
func NewHTTPConnector(cfg shared.PlatformConfig) *HTTPConnector {
	c := &HTTPConnector{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		timeout:   cfg.Timeout(),
		rateLimit: rate.Limit(cfg.RateLimit),
		burst:     cfg.Burst,
	}
	if c.baseURL == "" {
		c.baseURL = defaultPlatformURL
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.rateLimit <= 0 {
		c.rateLimit = rate.Inf
	}
	if c.burst <= 0 {
		c.burst = 1
	}
	return c
}

// WithTransport sets the base transport under the oauth2 layer.
func (c *HTTPConnector) WithTransport(rt http.RoundTripper) *HTTPConnector {
	c.transport = rt
	return c
}

// Connect validates the credential shape and returns a tenant authenticated with its API key.
func (c *HTTPConnector) Connect(creds models.AccountCredentials) (Tenant, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}

	base := &http.Client{Transport: c.transport}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.APIKey, TokenType: "Bearer"})

	return &HTTPTenant{
		baseURL:    c.baseURL + "/locations/" + url.PathEscape(creds.TenantID),
		httpClient: oauth2.NewClient(ctx, src),
		limiter:    rate.NewLimiter(c.rateLimit, c.burst),
		timeout:    c.timeout,
	}, nil
}

// HTTPTenant implements [Tenant] over HTTP.
type HTTPTenant struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
}

type countResponse struct {
	Count int `json:"count"`
}

type locationResponse struct {
	Location Location `json:"location"`
}

type recordBody struct {
	Fields map[string]any `json:"fields"`
}

type createResponse struct {
	ID string `json:"id"`
}

type errorResponse struct {
	Message string `json:"message"`
}

// Probe fetches the tenant's location.
func (t *HTTPTenant) Probe(ctx context.Context) (*Location, error) {
	var resp locationResponse
	if err := t.doRequest(ctx, http.MethodGet, "", nil, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Location, nil
}

func (t *HTTPTenant) Count(ctx context.Context, category models.Category) (int, error) {
	var resp countResponse
	if err := t.doRequest(ctx, http.MethodGet, "/"+string(category)+"/count", nil, nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (t *HTTPTenant) ListRecords(ctx context.Context, category models.Category, opts ListOptions) (*RecordPage, error) {
	query := url.Values{}
	if opts.Limit > 0 {
		query.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Cursor != "" {
		query.Set("cursor", opts.Cursor)
	}
	if opts.UpcomingOnly {
		query.Set("upcomingOnly", "true")
	}
	if opts.IncludeSubmissions {
		query.Set("includeSubmissions", "true")
	}
	if opts.IncludeConversations {
		query.Set("includeConversations", "true")
	}

	var page RecordPage
	if err := t.doRequest(ctx, http.MethodGet, "/"+string(category), query, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (t *HTTPTenant) FindExisting(ctx context.Context, category models.Category, field, value string) (*models.Record, error) {
	query := url.Values{"field": {field}, "value": {value}, "limit": {"1"}}

	var page RecordPage
	if err := t.doRequest(ctx, http.MethodGet, "/"+string(category)+"/search", query, nil, &page); err != nil {
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, fmt.Errorf("%w: %s with %s=%q", shared.ErrNotFound, category, field, value)
	}
	return &page.Records[0], nil
}

func (t *HTTPTenant) CreateRecord(ctx context.Context, category models.Category, record models.Record) (string, error) {
	var resp createResponse
	if err := t.doRequest(ctx, http.MethodPost, "/"+string(category), nil, recordBody{Fields: record.Fields}, &resp); err != nil {
		return "", err
	}
	return resp.ID, nil
}

func (t *HTTPTenant) UpdateRecord(ctx context.Context, category models.Category, id string, record models.Record) error {
	path := "/" + string(category) + "/" + url.PathEscape(id)
	return t.doRequest(ctx, http.MethodPut, path, nil, recordBody{Fields: record.Fields}, nil)
}

// doRequest performs one rate-limited, time-bounded request and decodes the JSON response into result.
func (t *HTTPTenant) doRequest(ctx context.Context, method, path string, query url.Values, body, result any) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	apiURL := t.baseURL + path
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(callCtx, method, apiURL, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Version", apiVersion)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return transportError(ctx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}

	if result != nil && len(data) > 0 {
		if err := json.Unmarshal(data, result); err != nil {
			return fmt.Errorf("%w: failed to decode response: %v", shared.ErrAPIRequest, err)
		}
	}
	return nil
}

// transportError classifies a failed round trip. A cancelled parent context is
// returned as-is so callers can tell cancellation from a fault.
func transportError(parent context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %v", shared.ErrTimeout, err)
	}
	return fmt.Errorf("%w: %v", shared.ErrUnreachable, err)
}

// statusError maps a non-2xx response to a shared sentinel.
func statusError(status int, body []byte) error {
	var sentinel error
	switch {
	case status == http.StatusUnauthorized:
		sentinel = shared.ErrUnauthorized
	case status == http.StatusForbidden:
		sentinel = shared.ErrForbidden
	case status == http.StatusNotFound:
		sentinel = shared.ErrNotFound
	case status == http.StatusConflict:
		sentinel = shared.ErrConflict
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		sentinel = shared.ErrRejected
	case status == http.StatusTooManyRequests:
		sentinel = shared.ErrRateLimited
	case status >= 500:
		sentinel = shared.ErrUpstream
	default:
		sentinel = shared.ErrAPIRequest
	}

	var msg errorResponse
	if err := json.Unmarshal(body, &msg); err == nil && msg.Message != "" {
		return fmt.Errorf("%w: status %d: %s", sentinel, status, msg.Message)
	}
	return fmt.Errorf("%w: status %d", sentinel, status)
}
