// Package http provides an HTTP client for the featflip feature toggle
// service.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	featflip "github.com/featflip/featflip/clients/go"
)

// Config holds configuration for the HTTP client.
type Config struct {
	// BaseURL is the base URL of the featflip server, e.g. "http://localhost:8080".
	BaseURL string
	// APIKey is the bearer token; empty when the server runs unauthenticated.
	APIKey string
	// HTTPClient is optional; defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client implements featflip.FeatureManager, featflip.Toggler, and
// featflip.Checker over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient returns a new HTTP client for the featflip service.
func NewClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{cfg: cfg, httpClient: hc}
}

// APIError is returned when the server responds with an HTTP error status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("featflip: HTTP %d: %s", e.StatusCode, e.Message)
}

type checkWireRequest struct {
	Uid     string                  `json:"uid,omitempty"`
	Context map[string]any          `json:"context,omitempty"`
	Checks  []featflip.CheckRequest `json:"checks,omitempty"`
}

type checkWireResponse struct {
	Results []featflip.CheckResult `json:"results"`
}

type groupWireRequest struct {
	Group string `json:"group"`
}

type roleWireRequest struct {
	Role string `json:"role"`
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("featflip: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("featflip: create request: %w", err)
	}
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("featflip: http: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("featflip: decode response: %w", err)
	}
	return nil
}

func featurePath(uid string, suffix string) string {
	return "/v1/features/" + url.PathEscape(uid) + suffix
}

func groupPath(group string, suffix string) string {
	return "/v1/groups/" + url.PathEscape(group) + suffix
}

// CreateFeature registers a new feature. The server rejects duplicates.
func (c *Client) CreateFeature(ctx context.Context, f featflip.Feature) (featflip.Feature, error) {
	var created featflip.Feature
	err := c.doJSON(ctx, http.MethodPost, "/v1/features", f, &created)
	return created, err
}

// GetFeature fetches one feature by uid.
func (c *Client) GetFeature(ctx context.Context, uid string) (featflip.Feature, error) {
	var f featflip.Feature
	err := c.doJSON(ctx, http.MethodGet, featurePath(uid, ""), nil, &f)
	return f, err
}

// ListFeatures fetches every feature keyed by uid.
func (c *Client) ListFeatures(ctx context.Context) (map[string]featflip.Feature, error) {
	var all map[string]featflip.Feature
	err := c.doJSON(ctx, http.MethodGet, "/v1/features", nil, &all)
	return all, err
}

// UpdateFeature replaces the stored definition of f.Uid.
func (c *Client) UpdateFeature(ctx context.Context, f featflip.Feature) (featflip.Feature, error) {
	var updated featflip.Feature
	err := c.doJSON(ctx, http.MethodPut, featurePath(f.Uid, ""), f, &updated)
	return updated, err
}

// DeleteFeature removes a feature by uid.
func (c *Client) DeleteFeature(ctx context.Context, uid string) error {
	return c.doJSON(ctx, http.MethodDelete, featurePath(uid, ""), nil, nil)
}

// Enable switches the feature on.
func (c *Client) Enable(ctx context.Context, uid string) error {
	return c.doJSON(ctx, http.MethodPost, featurePath(uid, "/enable"), nil, nil)
}

// Disable switches the feature off.
func (c *Client) Disable(ctx context.Context, uid string) error {
	return c.doJSON(ctx, http.MethodPost, featurePath(uid, "/disable"), nil, nil)
}

// Toggle inverts the feature's enabled state.
func (c *Client) Toggle(ctx context.Context, uid string) error {
	return c.doJSON(ctx, http.MethodPost, featurePath(uid, "/toggle"), nil, nil)
}

// GrantRole adds a role to the feature's permission set.
func (c *Client) GrantRole(ctx context.Context, uid, role string) error {
	return c.doJSON(ctx, http.MethodPost, featurePath(uid, "/grant"), roleWireRequest{Role: role}, nil)
}

// RevokeRole removes a role from the feature's permission set.
func (c *Client) RevokeRole(ctx context.Context, uid, role string) error {
	return c.doJSON(ctx, http.MethodPost, featurePath(uid, "/revoke"), roleWireRequest{Role: role}, nil)
}

// SetGroup places the feature in the named group, vacating any prior one.
func (c *Client) SetGroup(ctx context.Context, uid, group string) error {
	return c.doJSON(ctx, http.MethodPut, featurePath(uid, "/group"), groupWireRequest{Group: group}, nil)
}

// RemoveFromGroup takes the feature out of the named group.
func (c *Client) RemoveFromGroup(ctx context.Context, uid, group string) error {
	return c.doJSON(ctx, http.MethodDelete, featurePath(uid, "/group/"+url.PathEscape(group)), nil, nil)
}

// ListGroups returns the names of all referenced groups.
func (c *Client) ListGroups(ctx context.Context) ([]string, error) {
	var groups []string
	err := c.doJSON(ctx, http.MethodGet, "/v1/groups", nil, &groups)
	return groups, err
}

// GetGroup returns the features in the named group, keyed by uid.
func (c *Client) GetGroup(ctx context.Context, group string) (map[string]featflip.Feature, error) {
	var members map[string]featflip.Feature
	err := c.doJSON(ctx, http.MethodGet, groupPath(group, ""), nil, &members)
	return members, err
}

// EnableGroup enables every member of the group.
func (c *Client) EnableGroup(ctx context.Context, group string) error {
	return c.doJSON(ctx, http.MethodPost, groupPath(group, "/enable"), nil, nil)
}

// DisableGroup disables every member of the group.
func (c *Client) DisableGroup(ctx context.Context, group string) error {
	return c.doJSON(ctx, http.MethodPost, groupPath(group, "/disable"), nil, nil)
}

// Check resolves the effective state of one feature. evalCtx may be nil.
func (c *Client) Check(ctx context.Context, uid string, evalCtx map[string]any) (bool, error) {
	var resp checkWireResponse
	req := checkWireRequest{Uid: uid, Context: evalCtx}
	if err := c.doJSON(ctx, http.MethodPost, "/v1/check", req, &resp); err != nil {
		return false, err
	}
	if len(resp.Results) != 1 {
		return false, fmt.Errorf("featflip: expected 1 result, got %d", len(resp.Results))
	}
	return resp.Results[0].Enabled, nil
}

// CheckBatch resolves several features in one round trip.
func (c *Client) CheckBatch(ctx context.Context, reqs []featflip.CheckRequest) ([]featflip.CheckResult, error) {
	var resp checkWireResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/check", checkWireRequest{Checks: reqs}, &resp); err != nil {
		return nil, err
	}
	return resp.Results, nil
}

var (
	_ featflip.FeatureManager = (*Client)(nil)
	_ featflip.Toggler        = (*Client)(nil)
	_ featflip.Checker        = (*Client)(nil)
)
