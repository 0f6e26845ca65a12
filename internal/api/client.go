// Package api is the typed REST client for the Data API consumed by the
// export workflow: table catalog, schema and permission metadata, and the
// asynchronous export job endpoints.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tabx-cli/tabx/internal/auth"
	"github.com/tabx-cli/tabx/internal/export"
	"github.com/tabx-cli/tabx/internal/schema"
)

// Client talks to the Data API with bearer-token authentication. The
// token comes from an injected auth.TokenProvider, never from ambient
// storage, so tests run against httptest servers with fixed credentials.
type Client struct {
	baseURL    string
	tokens     auth.TokenProvider
	http       *http.Client
	maxRetries int
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithMaxRetries overrides the transient-fault retry budget.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.maxRetries = n }
}

// NewClient creates a Data API client. baseURL is the console origin,
// e.g. https://console.example.com.
func NewClient(baseURL string, tokens auth.TokenProvider, timeout time.Duration, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		http:       &http.Client{Timeout: timeout},
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// newRequest builds an authenticated request. Requests go out without an
// Authorization header when no token is available; the server decides.
func (c *Client) newRequest(ctx context.Context, method, path string, body []byte) (*http.Request, error) {
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok, ok := c.tokens.Token(); ok {
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	return req, nil
}

// getJSON performs a GET and decodes the 200 response into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	resp, body, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodGet, path, nil)
	})
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode, sanitizeErrorResponse(body, 200))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parsing response from %s: %w", path, err)
	}
	return nil
}

// ListTables returns the tables the caller may export.
func (c *Client) ListTables(ctx context.Context) ([]string, error) {
	var payload struct {
		Tables []string `json:"tables"`
	}
	if err := c.getJSON(ctx, "/api/v1/data/tables/available", &payload); err != nil {
		return nil, fmt.Errorf("listing tables: %w", err)
	}
	return payload.Tables, nil
}

// TableSchema fetches the schema snapshot for a table.
func (c *Client) TableSchema(ctx context.Context, table string) (*schema.TableSchema, error) {
	var s schema.TableSchema
	path := fmt.Sprintf("/api/v1/data/tables/%s/schema", url.PathEscape(table))
	if err := c.getJSON(ctx, path, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// TablePermissions fetches the export policy for a table.
func (c *Client) TablePermissions(ctx context.Context, table string) (*schema.TablePermissions, error) {
	var p schema.TablePermissions
	path := fmt.Sprintf("/api/v1/data/tables/%s/permissions", url.PathEscape(table))
	if err := c.getJSON(ctx, path, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// previewPayload accepts both response shapes the backend has shipped:
// the canonical rows/total_count and the older data/total_rows.
type previewPayload struct {
	Rows       []map[string]any `json:"rows"`
	TotalCount int64            `json:"total_count"`
	Data       []map[string]any `json:"data"`
	TotalRows  int64            `json:"total_rows"`
}

// TableData fetches a data preview, normalized to the canonical shape.
func (c *Client) TableData(ctx context.Context, table string, limit int) (*schema.Preview, error) {
	if limit <= 0 {
		limit = 10
	}
	var payload previewPayload
	path := fmt.Sprintf("/api/v1/data/tables/%s/data?limit=%d", url.PathEscape(table), limit)
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return nil, err
	}

	preview := &schema.Preview{Rows: payload.Rows, TotalCount: payload.TotalCount}
	if preview.Rows == nil && payload.Data != nil {
		preview.Rows = payload.Data
		preview.TotalCount = payload.TotalRows
	}
	return preview, nil
}

// CreateExport submits an export job and returns its ID.
func (c *Client) CreateExport(ctx context.Context, req *export.Request) (string, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshaling export request: %w", err)
	}

	resp, respBody, err := c.doWithRetry(ctx, func() (*http.Request, error) {
		return c.newRequest(ctx, http.MethodPost, "/api/v1/data/export/create", body)
	})
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", classifyStatus(resp.StatusCode, sanitizeErrorResponse(respBody, 200))
	}

	var payload struct {
		JobID string `json:"job_id"`
	}
	if err := json.Unmarshal(respBody, &payload); err != nil {
		return "", fmt.Errorf("parsing create response: %w", err)
	}
	if payload.JobID == "" {
		return "", fmt.Errorf("server did not return a job_id")
	}
	return payload.JobID, nil
}

// ExportStatus polls a job's current status.
func (c *Client) ExportStatus(ctx context.Context, jobID string) (*export.JobStatus, error) {
	var status export.JobStatus
	path := fmt.Sprintf("/api/v1/data/export/%s/status", url.PathEscape(jobID))
	if err := c.getJSON(ctx, path, &status); err != nil {
		return nil, err
	}
	if status.JobID == "" {
		status.JobID = jobID
	}
	return &status, nil
}

// DownloadExport opens the export file as an authenticated stream. The
// endpoint requires the bearer token, so a plain browser-style link
// cannot serve here. The caller owns closing the body.
func (c *Client) DownloadExport(ctx context.Context, jobID string) (*export.Download, error) {
	path := fmt.Sprintf("/api/v1/data/export/%s/download", url.PathEscape(jobID))
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, fmt.Errorf("creating download request: %w", err)
	}
	req.Header.Del("Accept") // the file's content type is the server's call

	// Downloads stream the body, so the buffered retry path does not apply.
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body := make([]byte, 512)
		n, _ := resp.Body.Read(body)
		return nil, classifyStatus(resp.StatusCode, sanitizeErrorResponse(body[:n], 200))
	}

	return &export.Download{
		Body:     resp.Body,
		Filename: export.FilenameFromDisposition(resp.Header.Get("Content-Disposition")),
		Size:     resp.ContentLength,
	}, nil
}
