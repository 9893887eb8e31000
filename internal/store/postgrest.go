package store

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

// restClient is a minimal PostgREST client for a Supabase project.
type restClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func newRestClient(baseURL, apiKey string, httpClient *http.Client) (*restClient, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &restClient{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: httpClient,
	}, nil
}

func (c *restClient) from(table string) *queryBuilder {
	return &queryBuilder{client: c, table: table}
}

type queryBuilder struct {
	client  *restClient
	table   string
	columns string
	filters url.Values
	orders  []string
	limit   int
}

func (q *queryBuilder) selectCols(columns string) *queryBuilder {
	q.columns = columns
	return q
}

func (q *queryBuilder) eq(column string, value interface{}) *queryBuilder {
	if q.filters == nil {
		q.filters = url.Values{}
	}
	q.filters.Add(column, "eq."+filterValue(value))
	return q
}

func (q *queryBuilder) order(column string, ascending bool) *queryBuilder {
	dir := "asc"
	if !ascending {
		dir = "desc"
	}
	q.orders = append(q.orders, column+"."+dir)
	return q
}

func (q *queryBuilder) limitTo(n int) *queryBuilder {
	q.limit = n
	return q
}

func (q *queryBuilder) buildURL(withRead bool) string {
	params := url.Values{}
	for k, vs := range q.filters {
		for _, v := range vs {
			params.Add(k, v)
		}
	}
	if withRead {
		if q.columns != "" {
			params.Set("select", q.columns)
		}
		if len(q.orders) > 0 {
			params.Set("order", strings.Join(q.orders, ","))
		}
		if q.limit > 0 {
			params.Set("limit", fmt.Sprintf("%d", q.limit))
		}
	}

	u := fmt.Sprintf("%s/rest/v1/%s", q.client.baseURL, q.table)
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

func (q *queryBuilder) get(ctx context.Context) (*restResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, q.buildURL(true), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return q.client.do(req)
}

func (q *queryBuilder) insert(ctx context.Context, data interface{}) (*restResponse, error) {
	return q.send(ctx, http.MethodPost, data)
}

func (q *queryBuilder) update(ctx context.Context, data interface{}) (*restResponse, error) {
	return q.send(ctx, http.MethodPatch, data)
}

func (q *queryBuilder) send(ctx context.Context, method string, data interface{}) (*restResponse, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal data: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, q.buildURL(false), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "return=representation")
	return q.client.do(req)
}

type restResponse struct {
	StatusCode int
	Body       []byte
}

func (r *restResponse) json(v interface{}) error {
	return json.Unmarshal(r.Body, v)
}

// restError carries the PostgREST error payload.
type restError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details"`
}

func (e *restError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("supabase error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("supabase error: status %d", e.StatusCode)
}

func (r *restResponse) err() error {
	if r.StatusCode < 400 {
		return nil
	}
	e := &restError{StatusCode: r.StatusCode}
	_ = json.Unmarshal(r.Body, e)
	e.StatusCode = r.StatusCode
	return e
}

func (c *restClient) do(req *http.Request) (*restResponse, error) {
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &restResponse{StatusCode: resp.StatusCode, Body: body}, nil
}
