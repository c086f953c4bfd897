// Package gateway talks to the REST gateway that fronts the activity and
// AI recommendation services.
package gateway

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

	"github.com/google/uuid"

	"example.com/fittrack/internal/domain"
)

const maxBodyBytes = 8 << 20

// StatusError reports a non-successful gateway response.
type StatusError struct {
	Method string
	Path   string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway %s %s: status %d: %s", e.Method, e.Path, e.Status, e.Body)
}

// Client is a minimal gateway client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// Option configures optional behaviour for the Client.
type Option func(*Client)

// WithHTTPClient overrides the HTTP client, e.g. for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient constructs a Client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ListActivities fetches the user's activity collection. The gateway returns
// records in no particular order.
func (c *Client) ListActivities(ctx context.Context, req domain.Request) ([]domain.ActivityRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var records []domain.ActivityRecord
	if err := c.do(ctx, http.MethodGet, "/activities", req, nil, nil, &records); err != nil {
		return nil, err
	}
	if records == nil {
		records = []domain.ActivityRecord{}
	}
	return records, nil
}

// CreateActivity logs a new activity. An empty idempotencyKey is replaced
// by a random one so retries by the gateway stay safe.
func (c *Client) CreateActivity(ctx context.Context, req domain.Request, input domain.NewActivity, idempotencyKey string) (*domain.ActivityRecord, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(idempotencyKey) == "" {
		idempotencyKey = uuid.NewString()
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, err
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")
	header.Set("Idempotency-Key", idempotencyKey)

	var created domain.ActivityRecord
	if err := c.do(ctx, http.MethodPost, "/activities", req, bytes.NewReader(body), header, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// Recommendations returns the AI recommendations generated for the user.
func (c *Client) Recommendations(ctx context.Context, req domain.Request) ([]domain.Recommendation, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var recs []domain.Recommendation
	path := "/recommendations/user/" + url.PathEscape(req.UserID)
	if err := c.do(ctx, http.MethodGet, path, req, nil, nil, &recs); err != nil {
		return nil, err
	}
	if recs == nil {
		recs = []domain.Recommendation{}
	}
	return recs, nil
}

func (c *Client) do(ctx context.Context, method, path string, req domain.Request, body io.Reader, header http.Header, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	for key, values := range header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-User-ID", req.UserID)
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("gateway %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &StatusError{Method: method, Path: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("gateway %s %s: decode response: %w", method, path, err)
	}
	return nil
}
