// Package supabase talks to a hosted PostgREST endpoint (Supabase REST API).
package supabase

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"

	"photogallery/internal/models"
	"photogallery/internal/persistence"
)

const schema = "public"

// Client implements persistence.Client over the REST API.
type Client struct {
	restURL string
	key     string
	table   string
	rpc     string
	timeout time.Duration
	base    *http.Transport
}

var _ persistence.Client = (*Client)(nil)

// New creates a REST client. baseURL is the project URL, key the anon key.
func New(baseURL, key, table, rpc string, timeout time.Duration) (*Client, error) {
	if baseURL == "" || key == "" {
		return nil, fmt.Errorf("supabase url and key are required")
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid supabase url %q", baseURL)
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		restURL: strings.TrimRight(baseURL, "/") + "/rest/v1",
		key:     key,
		table:   table,
		rpc:     rpc,
		timeout: timeout,
		base:    http.DefaultTransport.(*http.Transport).Clone(),
	}, nil
}

func (c *Client) Driver() string { return "supabase" }

func (c *Client) Close() error {
	c.base.CloseIdleConnections()
	return nil
}

// exchange is the transport of one call. It binds the call's context to the request
// and keeps the response status, which postgrest-go folds into its error text.
type exchange struct {
	ctx    context.Context
	parent http.RoundTripper
	status int
	header http.Header
}

func (e *exchange) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := e.parent.RoundTrip(req.WithContext(e.ctx))
	if err != nil {
		return nil, err
	}
	e.status = resp.StatusCode
	e.header = resp.Header
	return resp, nil
}

// rest returns a postgrest client for a single call. postgrest-go keeps the last
// error on the client, so clients are not shared between calls.
func (c *Client) rest(ctx context.Context) (*postgrest.Client, *exchange) {
	ex := &exchange{ctx: ctx, parent: c.base}
	pc := postgrest.NewClient(c.restURL, schema, nil).
		SetApiKey(c.key).
		SetAuthToken(c.key)
	pc.Transport.Parent = ex
	return pc, ex
}

// Insert creates one row. A retried insert with the same upload key merges into the
// row created by the first attempt, which is returned.
func (c *Client) Insert(ctx context.Context, rec models.NewRecord) (models.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pc, ex := c.rest(ctx)
	data, _, err := pc.From(c.table).
		Insert([]models.NewRecord{rec}, true, models.ColumnUploadKey, "representation", "").
		Execute()
	if err != nil {
		return nil, failure("insert", ex, err)
	}
	rows, err := decodeRows(data, "insert")
	if err != nil {
		return nil, err
	}
	if len(rows) > 0 {
		return rows[0], nil
	}
	return c.byUploadKey(ctx, rec.UploadKey)
}

func (c *Client) byUploadKey(ctx context.Context, key string) (models.Row, error) {
	pc, ex := c.rest(ctx)
	data, _, err := pc.From(c.table).
		Select("*", "", false).
		Eq(models.ColumnUploadKey, key).
		Execute()
	if err != nil {
		return nil, failure("insert lookup", ex, err)
	}
	rows, err := decodeRows(data, "insert lookup")
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("insert returned no row for upload key %s", key)
	}
	return rows[0], nil
}

// Select lists all rows, newest first.
func (c *Client) Select(ctx context.Context) ([]models.Row, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pc, ex := c.rest(ctx)
	data, _, err := pc.From(c.table).
		Select("*", "", false).
		Order(models.ColumnUploadedAt, &postgrest.OrderOpts{Ascending: false}).
		Execute()
	if err != nil {
		return nil, failure("select", ex, err)
	}
	return decodeRows(data, "select")
}

// Delete removes the row with the given id and reports whether one existed.
func (c *Client) Delete(ctx context.Context, id string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pc, ex := c.rest(ctx)
	data, _, err := pc.From(c.table).
		Delete("representation", "").
		Eq(models.ColumnID, id).
		Execute()
	if err != nil {
		return false, failure("delete", ex, err)
	}
	rows, err := decodeRows(data, "delete")
	if err != nil {
		return false, err
	}
	return len(rows) > 0, nil
}

// Heartbeat calls the keepalive RPC. Any HTTP response is relayed as-is; only
// transport failures are returned as errors.
func (c *Client) Heartbeat(ctx context.Context) (models.HeartbeatResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	pc, ex := c.rest(ctx)
	body := pc.Rpc(c.rpc, "", map[string]interface{}{})
	if pc.ClientError != nil {
		return models.HeartbeatResult{}, fmt.Errorf("heartbeat request failed: %w", pc.ClientError)
	}
	return models.HeartbeatResult{
		Status:      ex.status,
		Body:        body,
		ContentType: ex.header.Get("Content-Type"),
	}, nil
}

// failure turns a postgrest-go error into a StatusError when the server answered.
func failure(op string, ex *exchange, err error) error {
	if ex.status >= 400 {
		return &persistence.StatusError{Op: op, Status: ex.status, Body: errorMessage(err)}
	}
	return fmt.Errorf("%s request failed: %w", op, err)
}

// errorMessage drops the "(code)" prefix postgrest-go adds when the body carried no code.
func errorMessage(err error) string {
	return strings.TrimPrefix(err.Error(), "() ")
}

func decodeRows(data []byte, op string) ([]models.Row, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var rows []models.Row
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", op, err)
	}
	return rows, nil
}
