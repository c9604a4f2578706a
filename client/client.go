// Package client provides the Go client for the dfm process service:
// pipeline submission, discovery, response streaming, and cancellation.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nimbusworks/dfm/api"
	"github.com/nimbusworks/dfm/auth"
	apperrors "github.com/nimbusworks/dfm/errors"
	"github.com/nimbusworks/dfm/resilience"
)

// Client talks to a dfm site over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
	retry      resilience.RetryConfig
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithAPIKey sets the shared API key sent in the X-DFM-Auth header.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// WithRetry overrides the request retry policy.
func WithRetry(cfg resilience.RetryConfig) Option {
	return func(c *Client) { c.retry = cfg }
}

// New creates a client for the given base URL. The DFM_AUTH_API_KEY
// environment variable seeds the API key when set.
func New(baseURL string, opts ...Option) *Client {
	retry := resilience.DefaultRetryConfig()
	retry.RetryIf = resilience.RetryableKindsOnly
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 60 * time.Second},
		apiKey:     os.Getenv("DFM_AUTH_API_KEY"),
		retry:      retry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// VersionInfo is the /version payload.
type VersionInfo struct {
	Version string `json:"version"`
	Site    string `json:"site"`
}

// Version fetches the site's version information.
func (c *Client) Version(ctx context.Context) (VersionInfo, error) {
	var info VersionInfo
	err := c.getJSON(ctx, "/version", &info)
	return info, err
}

// ProviderInfo describes one provider in the discovery enumeration.
type ProviderInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	APIs        []string `json:"apis"`
}

// Discover enumerates the site's providers and their api_classes.
func (c *Client) Discover(ctx context.Context) ([]ProviderInfo, error) {
	var payload struct {
		Providers []ProviderInfo `json:"providers"`
	}
	if err := c.getJSON(ctx, "/discover", &payload); err != nil {
		return nil, err
	}
	return payload.Providers, nil
}

// Process submits a pipeline and returns the assigned request id.
func (c *Client) Process(ctx context.Context, pipeline api.Pipeline) (uuid.UUID, error) {
	body, err := json.Marshal(pipeline)
	if err != nil {
		return uuid.Nil, err
	}

	var payload struct {
		RequestID string `json:"request_id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/process", body, &payload); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(payload.RequestID)
}

// PollResponses drains one batch of responses, blocking server-side up to
// timeout. An empty batch is a valid outcome.
func (c *Client) PollResponses(ctx context.Context, requestID uuid.UUID, max int, timeout time.Duration) ([]api.Response, error) {
	query := url.Values{}
	if max > 0 {
		query.Set("max", fmt.Sprintf("%d", max))
	}
	if timeout > 0 {
		query.Set("timeout_ms", fmt.Sprintf("%d", timeout.Milliseconds()))
	}
	path := "/responses/" + requestID.String()
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}

	var payload struct {
		Responses []api.Response `json:"responses"`
	}
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}
	return payload.Responses, nil
}

// Cancel cancels a request. Idempotent.
func (c *Client) Cancel(ctx context.Context, requestID uuid.UUID) error {
	var payload struct {
		OK bool `json:"ok"`
	}
	return c.doJSON(ctx, http.MethodPost, "/cancel/"+requestID.String(), nil, &payload)
}

// --- transport plumbing ---

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body []byte, out any) error {
	result, err := resilience.Retry(ctx, c.retry, func() ([]byte, error) {
		return c.doOnce(ctx, method, path, body)
	})
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(result, out)
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(auth.HeaderAPIKey, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.UpstreamUnavailable("dfm-site", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode >= 400 {
		var errResp apperrors.ErrorResponse
		if jsonErr := json.Unmarshal(payload, &errResp); jsonErr == nil && errResp.ErrorKind != "" {
			appErr := apperrors.New(errResp.ErrorKind, errResp.Message, resp.StatusCode)
			appErr.Details = errResp.Details
			return nil, appErr
		}
		return nil, apperrors.New(apperrors.KindInternal,
			fmt.Sprintf("unexpected status %d", resp.StatusCode), resp.StatusCode)
	}
	return payload, nil
}
