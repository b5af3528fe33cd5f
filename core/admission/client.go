package admission

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sendgrid/rest"
)

// SearchQuery is a free-text search, optionally restricted to some fields.
type SearchQuery struct {
	Text   string
	Fields []string
}

// Backend is the school records REST API. Paths are relative to its base URL.
// Non-2xx answers are returned as *ResponseError; any other error means no response was received.
type Backend interface {
	Search(ctx context.Context, path string, q SearchQuery) ([]Record, error)
	Lookup(ctx context.Context, path string) (Record, error)
	Send(ctx context.Context, method, path string, p *Payload) (Record, error)
}

// Client is the HTTP Backend.
type Client struct {
	baseURL string
	token   string
	rest    *rest.Client
}

var _ Backend = (*Client)(nil)

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		rest:    &rest.Client{HTTPClient: &http.Client{Timeout: timeout}},
	}
}

func (c *Client) Search(ctx context.Context, path string, q SearchQuery) ([]Record, error) {
	params := map[string]string{"q": strings.TrimSpace(q.Text)}
	if len(q.Fields) > 0 {
		params["fields"] = strings.Join(q.Fields, ",")
	}
	res, err := c.do(ctx, rest.Request{Method: rest.Get, BaseURL: c.baseURL + path, QueryParams: params})
	if err != nil {
		return nil, err
	}
	items, err := decodeList([]byte(res.Body))
	if err != nil {
		return nil, errors.Wrap(err, "decoding search results")
	}
	return items, nil
}

func (c *Client) Lookup(ctx context.Context, path string) (Record, error) {
	res, err := c.do(ctx, rest.Request{Method: rest.Get, BaseURL: c.baseURL + path})
	if err != nil {
		return nil, err
	}
	rec, err := decodeObject([]byte(res.Body))
	if err != nil {
		return nil, errors.Wrap(err, "decoding record")
	}
	return rec, nil
}

func (c *Client) Send(ctx context.Context, method, path string, p *Payload) (Record, error) {
	req := rest.Request{
		Method:  rest.Method(method),
		BaseURL: c.baseURL + path,
		Headers: map[string]string{"Content-Type": p.ContentType},
		Body:    p.Body,
	}
	res, err := c.do(ctx, req)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(res.Body) == "" {
		return Record{}, nil
	}
	rec, err := decodeObject([]byte(res.Body))
	if err != nil {
		return nil, errors.Wrap(err, "decoding saved record")
	}
	return rec, nil
}

func (c *Client) do(ctx context.Context, req rest.Request) (*rest.Response, error) {
	if req.Headers == nil {
		req.Headers = make(map[string]string)
	}
	req.Headers["Accept"] = "application/json"
	if c.token != "" {
		req.Headers["Authorization"] = "Bearer " + c.token
	}

	res, err := c.rest.SendWithContext(ctx, req)
	if err != nil {
		return nil, errors.Wrapf(err, "%s %s", req.Method, req.BaseURL)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, parseResponseError(res.StatusCode, []byte(res.Body))
	}
	return res, nil
}

// parseResponseError reads {"errors": {field: msg|[msgs]}} or {"message": "..."} bodies.
func parseResponseError(status int, body []byte) *ResponseError {
	rErr := &ResponseError{StatusCode: status}
	var payload struct {
		Errors  FieldErrors `json:"errors"`
		Message string      `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil {
		rErr.Fields = payload.Errors.Clone()
		rErr.Message = strings.TrimSpace(payload.Message)
	}
	if rErr.Message == "" && len(rErr.Fields) == 0 {
		rErr.Message = http.StatusText(status)
	}
	return rErr
}

// listKeys are the envelopes a search response may come in, besides a bare array.
var listKeys = []string{"data", "items", "results"}

func decodeList(body []byte) ([]Record, error) {
	var list []Record
	if err := json.Unmarshal(body, &list); err == nil {
		return list, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.New("expected a list or an object")
	}
	for _, key := range listKeys {
		raw, ok := envelope[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, errors.Wrapf(err, "decoding %q", key)
		}
		return list, nil
	}
	return nil, errors.New("no data, items or results in response")
}

// decodeObject accepts a bare object or one wrapped in {"data": {...}}.
func decodeObject(body []byte) (Record, error) {
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return nil, err
	}
	if inner, ok := rec["data"].(map[string]interface{}); ok && len(rec) == 1 {
		return Record(inner), nil
	}
	return rec, nil
}
