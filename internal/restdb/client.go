// Package restdb speaks the REST query dialect shared by the portal store and
// both partner stores: filtered reads, merge-duplicates upserts, patches, and
// deletes over plain HTTP with JSON bodies.
package restdb

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const restPath = "/rest/v1"

// Row is one tabular JSON result row. Field decoding is lazy so callers only
// pay for the columns they read.
type Row map[string]json.RawMessage

// String decodes a string column, returning "" for absent or non-string values.
func (r Row) String(key string) string {
	raw, ok := r[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Int64 decodes an integer column, returning 0 when absent or malformed.
func (r Row) Int64(key string) int64 {
	raw, ok := r[key]
	if !ok {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err != nil {
		return 0
	}
	return n
}

// Float64 decodes a numeric column, returning 0 when absent or malformed.
func (r Row) Float64(key string) float64 {
	raw, ok := r[key]
	if !ok {
		return 0
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0
	}
	return f
}

// Time decodes a timestamp column. Malformed or absent values yield the zero
// time; optional metadata must not fail the read.
func (r Row) Time(key string) time.Time {
	s := r.String(key)
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Value decodes an arbitrary JSON column into a generic Go value, returning
// nil when absent or malformed.
func (r Row) Value(key string) any {
	raw, ok := r[key]
	if !ok {
		return nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v
}

// Client issues dialect requests against one backend. The portal, partner A,
// and partner B each get their own Client rather than a unified multiplexer:
// the contract is identical but header/auth handling differs per store.
type Client struct {
	base  string
	key   string // empty when a same-origin proxy attaches the key
	token string // password-grant access token, when signed in
	http  *http.Client
}

// New creates a client for the store rooted at base. key may be empty for
// proxied access.
func New(base, key string, timeout time.Duration) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		key:  key,
		http: &http.Client{Timeout: timeout},
	}
}

// Base returns the store's root URL.
func (c *Client) Base() string {
	return c.base
}

func (c *Client) tableURL(table string, q *Query) string {
	u := c.base + restPath + "/" + table
	if q != nil {
		if enc := q.Encode(); enc != "" {
			u += "?" + enc
		}
	}
	return u
}

func (c *Client) setHeaders(req *http.Request, prefer string) {
	req.Header.Set("Content-Type", "application/json")
	if c.key != "" {
		req.Header.Set("apikey", c.key)
	}
	switch {
	case c.token != "":
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.key != "":
		req.Header.Set("Authorization", "Bearer "+c.key)
	}
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
}

func (c *Client) do(ctx context.Context, method, url string, body []byte, prefer string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	c.setHeaders(req, prefer)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, url, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &BackendError{Status: resp.StatusCode, Message: errorMessage(respBody)}
	}
	return respBody, nil
}

// errorMessage extracts the `message` field from a JSON error body, falling
// back to the trimmed raw text.
func errorMessage(body []byte) string {
	var parsed struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Message != "" {
		return parsed.Message
	}
	return strings.TrimSpace(string(body))
}

// Select reads rows from table, with build configuring filters, ordering, and
// projection. An empty response body yields an empty slice, not an error.
func (c *Client) Select(ctx context.Context, table string, build func(*Query)) ([]Row, error) {
	q := &Query{}
	if build != nil {
		build(q)
	}
	body, err := c.do(ctx, http.MethodGet, c.tableURL(table, q), nil, "")
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return []Row{}, nil
	}
	var rows []Row
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode rows from %s: %w", table, err)
	}
	return rows, nil
}

// Create inserts one record and returns the stored row. With upsert set, a
// repeated call carrying the same primary key updates in place instead of
// erroring (merge-duplicates resolution).
func (c *Client) Create(ctx context.Context, table string, payload any, upsert bool) (Row, error) {
	rows, err := c.createRows(ctx, table, payload, upsert)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert into %s: %w", table, ErrCreationFailed)
	}
	return rows[0], nil
}

// CreateBatch inserts multiple records in one call and returns the stored rows.
func (c *Client) CreateBatch(ctx context.Context, table string, payloads any) ([]Row, error) {
	rows, err := c.createRows(ctx, table, payloads, false)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("batch insert into %s: %w", table, ErrCreationFailed)
	}
	return rows, nil
}

func (c *Client) createRows(ctx context.Context, table string, payload any, upsert bool) ([]Row, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload for %s: %w", table, err)
	}
	prefer := "return=representation"
	if upsert {
		prefer = "resolution=merge-duplicates,return=representation"
	}
	respBody, err := c.do(ctx, http.MethodPost, c.tableURL(table, nil), body, prefer)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(respBody)) == 0 {
		return []Row{}, nil
	}
	var rows []Row
	if err := json.Unmarshal(respBody, &rows); err != nil {
		// Some stores return a single object for single-row inserts.
		var row Row
		if err2 := json.Unmarshal(respBody, &row); err2 == nil {
			return []Row{row}, nil
		}
		return nil, fmt.Errorf("decode insert response from %s: %w", table, err)
	}
	return rows, nil
}

// Patch updates the rows selected by build with the given partial payload.
func (c *Client) Patch(ctx context.Context, table string, build func(*Query), payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal patch for %s: %w", table, err)
	}
	q := &Query{}
	if build != nil {
		build(q)
	}
	_, err = c.do(ctx, http.MethodPatch, c.tableURL(table, q), body, "return=minimal")
	return err
}

// Delete removes the rows selected by build.
func (c *Client) Delete(ctx context.Context, table string, build func(*Query)) error {
	q := &Query{}
	if build != nil {
		build(q)
	}
	_, err := c.do(ctx, http.MethodDelete, c.tableURL(table, q), nil, "count=exact")
	return err
}
