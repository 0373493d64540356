package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"vigila/cache"
)

// RESTClient talks to a hosted PostgREST endpoint.
type RESTClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	maxBody    int64
}

// DefaultMaxBodyBytes caps a response body when RESTConfig leaves it unset.
const DefaultMaxBodyBytes = 10 << 20

// RESTConfig holds client configuration.
type RESTConfig struct {
	URL          string
	APIKey       string
	HTTPClient   *http.Client
	MaxBodyBytes int64
}

// NewRESTClient creates a client for the project at cfg.URL.
func NewRESTClient(cfg RESTConfig) (*RESTClient, error) {
	if cfg.URL == "" {
		return nil, errors.New("rest: URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("rest: APIKey is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	return &RESTClient{
		baseURL:    strings.TrimSuffix(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		httpClient: httpClient,
		maxBody:    maxBody,
	}, nil
}

// REST serves one domain from a PostgREST table. Columns are aliased back
// to the json names of T on every select.
type REST[T cache.Entity] struct {
	client *RESTClient
	table  string
	schema *schema
}

// NewREST returns a gateway over table.
func NewREST[T cache.Entity](client *RESTClient, table string) *REST[T] {
	return &REST[T]{client: client, table: table, schema: schemaOf[T]()}
}

func (r *REST[T]) FetchList(ctx context.Context, params cache.Params) ([]T, error) {
	q, err := r.listQuery(params)
	if err != nil {
		return nil, err
	}
	body, status, err := r.client.do(ctx, http.MethodGet, r.table, q, nil, nil)
	if err != nil {
		return nil, cache.Transport(err)
	}
	if status != http.StatusOK {
		return nil, cache.Transport(statusError(status, body))
	}
	items := []T{}
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, cache.Transport(fmt.Errorf("decode %s: %w", r.table, err))
	}
	return items, nil
}

func (r *REST[T]) FetchDetail(ctx context.Context, id string) (T, error) {
	var e T
	q := url.Values{}
	q.Set("select", r.selectList())
	q.Set("id", "eq."+id)
	headers := http.Header{"Accept": {"application/vnd.pgrst.object+json"}}

	body, status, err := r.client.do(ctx, http.MethodGet, r.table, q, nil, headers)
	if err != nil {
		return e, cache.Transport(err)
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound, http.StatusNotAcceptable:
		// 406 is PostgREST's answer to a singular select matching no row.
		return e, cache.NotFound(id)
	default:
		return e, cache.Transport(statusError(status, body))
	}
	if err := json.Unmarshal(body, &e); err != nil {
		return e, cache.Transport(fmt.Errorf("decode %s: %w", r.table, err))
	}
	return e, nil
}

func (r *REST[T]) Insert(ctx context.Context, e T) error {
	payload, err := json.Marshal(r.schema.row(e))
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.table, err)
	}
	headers := http.Header{"Content-Type": {"application/json"}, "Prefer": {"return=minimal"}}
	body, status, err := r.client.do(ctx, http.MethodPost, r.table, nil, payload, headers)
	if err != nil {
		return cache.Transport(err)
	}
	if status != http.StatusCreated && status != http.StatusNoContent && status != http.StatusOK {
		return cache.Transport(statusError(status, body))
	}
	return nil
}

func (r *REST[T]) Update(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return errors.New("rest update: no fields")
	}
	row := make(map[string]any, len(fields))
	for k, v := range fields {
		col, err := r.schema.sqlColumn(k)
		if err != nil {
			return fmt.Errorf("rest update: %w", err)
		}
		if col == "id" {
			return errors.New("rest update: id is immutable")
		}
		row[col] = v
	}
	payload, err := json.Marshal(row)
	if err != nil {
		return fmt.Errorf("encode %s: %w", r.table, err)
	}
	return r.mutate(ctx, http.MethodPatch, id, payload)
}

func (r *REST[T]) Delete(ctx context.Context, id string) error {
	return r.mutate(ctx, http.MethodDelete, id, nil)
}

// mutate runs a PATCH or DELETE on the row with id and reports NotFound
// when no row was touched.
func (r *REST[T]) mutate(ctx context.Context, method, id string, payload []byte) error {
	q := url.Values{}
	q.Set("id", "eq."+id)
	q.Set("select", "id")
	headers := http.Header{"Prefer": {"return=representation"}}
	if payload != nil {
		headers.Set("Content-Type", "application/json")
	}
	body, status, err := r.client.do(ctx, method, r.table, q, payload, headers)
	if err != nil {
		return cache.Transport(err)
	}
	if status != http.StatusOK {
		return cache.Transport(statusError(status, body))
	}
	var touched []json.RawMessage
	if err := json.Unmarshal(body, &touched); err != nil {
		return cache.Transport(fmt.Errorf("decode %s: %w", r.table, err))
	}
	if len(touched) == 0 {
		return cache.NotFound(id)
	}
	return nil
}

func (r *REST[T]) listQuery(params cache.Params) (url.Values, error) {
	q := url.Values{}
	q.Set("select", r.selectList())
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		col, err := r.schema.sqlColumn(k)
		if err != nil {
			return nil, fmt.Errorf("rest filter: %w", err)
		}
		q.Add(col, "eq."+params[k])
	}
	q.Set("order", "created_at.asc,id.asc")
	return q, nil
}

// selectList aliases every column to its json name, e.g. vigilId:vigil_id.
func (r *REST[T]) selectList() string {
	parts := make([]string, len(r.schema.columns))
	for i, c := range r.schema.columns {
		if name := r.schema.names[i]; name != c {
			parts[i] = name + ":" + c
		} else {
			parts[i] = c
		}
	}
	return strings.Join(parts, ",")
}

func (c *RESTClient) do(ctx context.Context, method, table string, q url.Values, payload []byte, headers http.Header) ([]byte, int, error) {
	reqURL := fmt.Sprintf("%s/rest/v1/%s", c.baseURL, table)
	if len(q) > 0 {
		reqURL += "?" + q.Encode()
	}
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, body)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}
	for k, vs := range headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	if err != nil {
		return nil, 0, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > c.maxBody {
		return nil, 0, fmt.Errorf("read response: body exceeds %d bytes", c.maxBody)
	}
	return data, resp.StatusCode, nil
}

func (c *RESTClient) setHeaders(req *http.Request) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
}

func statusError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return fmt.Errorf("rest: status %d: %s", status, msg)
}
