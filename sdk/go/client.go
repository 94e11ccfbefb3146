package labellinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Labelline HTTP API client.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Asset represents the API asset model (partial).
type Asset struct {
	ID        string  `json:"id"`
	Kind      string  `json:"kind"`
	Title     string  `json:"title"`
	Project   string  `json:"project"`
	Priority  int     `json:"priority"`
	Status    string  `json:"status"`
	ClaimedBy *string `json:"claimed_by,omitempty"`
}

// Session represents one span of work on a claimed asset.
type Session struct {
	ID          string `json:"id"`
	AssetID     string `json:"asset_id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	StartedAt   string `json:"started_at"`
	TimeSpentMS int64  `json:"time_spent_ms"`
}

// Annotation represents a versioned label on an asset.
type Annotation struct {
	ID         string          `json:"id"`
	AssetID    string          `json:"asset_id"`
	UserID     string          `json:"user_id"`
	Type       string          `json:"type"`
	Label      string          `json:"label"`
	Geometry   json.RawMessage `json:"geometry"`
	Confidence float64         `json:"confidence"`
	Notes      string          `json:"notes,omitempty"`
	Version    int             `json:"version"`
	IsDeleted  bool            `json:"is_deleted"`
}

// ClaimResult pairs the claimed asset with its work session.
type ClaimResult struct {
	Asset   Asset   `json:"asset"`
	Session Session `json:"session"`
}

// Presence identifies one online user.
type Presence struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name"`
}

// APIError wraps non-2xx responses, decoding the error envelope when
// present.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Queue returns the next available assets in pickup order.
func (c *Client) Queue(ctx context.Context, project string, limit int) ([]Asset, error) {
	endpoint := "assets/queue"
	q := url.Values{}
	if project != "" {
		q.Set("project", project)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp struct {
		Items []Asset `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// Claim takes an exclusive lease on an asset.
func (c *Client) Claim(ctx context.Context, assetID string) (ClaimResult, error) {
	var resp ClaimResult
	endpoint := fmt.Sprintf("assets/%s/claim", url.PathEscape(assetID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Release returns a claimed asset to the pool.
func (c *Client) Release(ctx context.Context, assetID string) (Asset, error) {
	var resp Asset
	endpoint := fmt.Sprintf("assets/%s/release", url.PathEscape(assetID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Complete finishes a claimed asset.
func (c *Client) Complete(ctx context.Context, assetID string) (Asset, error) {
	var resp Asset
	endpoint := fmt.Sprintf("assets/%s/complete", url.PathEscape(assetID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// AddAnnotation attaches a new annotation to a claimed asset.
func (c *Client) AddAnnotation(ctx context.Context, assetID, annType, label string, geometry any) (Annotation, error) {
	body := map[string]any{
		"type":     annType,
		"label":    label,
		"geometry": geometry,
	}
	var resp Annotation
	endpoint := fmt.Sprintf("assets/%s/annotations", url.PathEscape(assetID))
	err := c.do(ctx, http.MethodPost, endpoint, body, &resp)
	return resp, err
}

// UpdateAnnotation replaces an annotation's content. expectedVersion is the
// version read before editing; a stale version yields an APIError with code
// version_conflict and the current copy in Details.
func (c *Client) UpdateAnnotation(ctx context.Context, id string, expectedVersion int, label string, geometry any, confidence float64, notes string) (Annotation, error) {
	body := map[string]any{
		"expected_version": expectedVersion,
		"label":            label,
		"geometry":         geometry,
		"confidence":       confidence,
		"notes":            notes,
	}
	var resp Annotation
	endpoint := fmt.Sprintf("annotations/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodPut, endpoint, body, &resp)
	return resp, err
}

// DeleteAnnotation soft-deletes an annotation.
func (c *Client) DeleteAnnotation(ctx context.Context, id string) (Annotation, error) {
	var resp Annotation
	endpoint := fmt.Sprintf("annotations/%s", url.PathEscape(id))
	err := c.do(ctx, http.MethodDelete, endpoint, nil, &resp)
	return resp, err
}

// Annotations lists the annotations on an asset.
func (c *Client) Annotations(ctx context.Context, assetID string, includeDeleted bool) ([]Annotation, error) {
	endpoint := fmt.Sprintf("assets/%s/annotations", url.PathEscape(assetID))
	if includeDeleted {
		endpoint += "?include_deleted=true"
	}
	var resp struct {
		Items []Annotation `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// ActiveUsers returns everyone currently online.
func (c *Client) ActiveUsers(ctx context.Context) ([]Presence, error) {
	var resp struct {
		Users []Presence `json:"users"`
	}
	err := c.do(ctx, http.MethodGet, "presence", nil, &resp)
	return resp.Users, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/api/v1/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var envelope struct {
			Error struct {
				Code    string         `json:"code"`
				Message string         `json:"message"`
				Details map[string]any `json:"details"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &envelope) == nil && envelope.Error.Code != "" {
			apiErr.Code = envelope.Error.Code
			apiErr.Message = envelope.Error.Message
			apiErr.Details = envelope.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
