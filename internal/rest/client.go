// Package rest is a small HTTP client with a middleware chain, used by
// data-driven components to talk to a resource API.
//
// Middleware execution order follows the onion model:
//   - Request hooks run in registration order
//   - Response hooks run in reverse registration order
//
// An error hook sees the failure of everything before it in the chain and
// may recover by returning a value and a nil error.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/wisp/internal/errors"
)

// Response is a completed exchange. Body holds the whole response body.
type Response struct {
	Request    *http.Request
	StatusCode int
	Header     http.Header
	Body       []byte
	// Value is set by decoding middleware.
	Value any
}

// OK reports a 2xx status.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Middleware hooks into one stage of a request. Any hook may be nil.
type Middleware struct {
	Request       func(*http.Request) (*http.Request, error)
	RequestError  func(error) (*http.Request, error)
	Response      func(*Response) (*Response, error)
	ResponseError func(error) (*Response, error)
}

// Client sends requests through its middlewares.
type Client struct {
	baseURL     string
	header      http.Header
	http        *http.Client
	mu          sync.RWMutex
	middlewares []Middleware
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL resolves relative request URLs against base.
func WithBaseURL(base string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(base, "/") }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(c *Client) { c.header.Add(key, value) }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.Timeout = d }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// NewClient creates a client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		header: make(http.Header),
		http:   &http.Client{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewJSONClient creates a client whose responses carry the decoded JSON
// body in Value. A body that does not decode leaves Value as the raw text.
func NewJSONClient(opts ...Option) *Client {
	c := NewClient(opts...)
	c.header.Set("Accept", "application/json")
	c.Use(Middleware{Response: decodeJSON})
	return c
}

func decodeJSON(res *Response) (*Response, error) {
	if len(res.Body) == 0 {
		return res, nil
	}
	var value any
	if err := json.Unmarshal(res.Body, &value); err != nil {
		res.Value = res.Text()
		return res, nil
	}
	res.Value = value
	return res, nil
}

// Use appends middlewares.
func (c *Client) Use(middlewares ...Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = append(c.middlewares, middlewares...)
}

// ClearMiddlewares removes every middleware.
func (c *Client) ClearMiddlewares() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.middlewares = nil
}

// Fetch sends a request with an explicit method. A nil body sends none.
func (c *Client) Fetch(ctx context.Context, method, rawURL string, body any) (*Response, error) {
	req, err := c.newRequest(ctx, method, rawURL, body)
	return c.do(req, err)
}

// Get sends a GET request.
func (c *Client) Get(ctx context.Context, rawURL string) (*Response, error) {
	return c.Fetch(ctx, http.MethodGet, rawURL, nil)
}

// Post sends body with POST.
func (c *Client) Post(ctx context.Context, rawURL string, body any) (*Response, error) {
	return c.Fetch(ctx, http.MethodPost, rawURL, body)
}

// Put sends body with PUT.
func (c *Client) Put(ctx context.Context, rawURL string, body any) (*Response, error) {
	return c.Fetch(ctx, http.MethodPut, rawURL, body)
}

// Delete sends a DELETE request.
func (c *Client) Delete(ctx context.Context, rawURL string) (*Response, error) {
	return c.Fetch(ctx, http.MethodDelete, rawURL, nil)
}

// Head sends a HEAD request.
func (c *Client) Head(ctx context.Context, rawURL string) (*Response, error) {
	return c.Fetch(ctx, http.MethodHead, rawURL, nil)
}

func (c *Client) resolve(rawURL string) string {
	if c.baseURL == "" || strings.Contains(rawURL, "://") {
		return rawURL
	}
	return c.baseURL + "/" + strings.TrimLeft(rawURL, "/")
}

func (c *Client) newRequest(ctx context.Context, method, rawURL string, body any) (*http.Request, error) {
	reader, contentType, err := encodeBody(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, c.resolve(rawURL), reader)
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeRequestFailed, "cannot build request", err)
	}
	for k, vs := range c.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	return req, nil
}

// encodeBody sends strings, bytes, form values and readers as they are and
// everything else as JSON.
func encodeBody(body any) (io.Reader, string, error) {
	switch b := body.(type) {
	case nil:
		return nil, "", nil
	case string:
		return strings.NewReader(b), "text/plain; charset=utf-8", nil
	case []byte:
		return bytes.NewReader(b), "application/octet-stream", nil
	case url.Values:
		return strings.NewReader(b.Encode()), "application/x-www-form-urlencoded", nil
	case io.Reader:
		return b, "", nil
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, "", errors.NewInternalError(errors.ErrCodeDecode, "cannot encode request body", err)
	}
	return bytes.NewReader(raw), "application/json", nil
}

func (c *Client) do(req *http.Request, err error) (*Response, error) {
	c.mu.RLock()
	chain := append([]Middleware(nil), c.middlewares...)
	c.mu.RUnlock()

	for _, m := range chain {
		switch {
		case err == nil && m.Request != nil:
			req, err = m.Request(req)
		case err != nil && m.RequestError != nil:
			req, err = m.RequestError(err)
		}
	}

	var res *Response
	if err == nil {
		res, err = c.send(req)
	}

	for i := len(chain) - 1; i >= 0; i-- {
		m := chain[i]
		switch {
		case err == nil && m.Response != nil:
			res, err = m.Response(res)
		case err != nil && m.ResponseError != nil:
			res, err = m.ResponseError(err)
		}
	}
	return res, err
}

func (c *Client) send(req *http.Request) (*Response, error) {
	if req == nil {
		return nil, errors.NewInternalError(errors.ErrCodeRequestFailed, "middleware returned no request", nil)
	}
	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeRequestFailed,
			fmt.Sprintf("%s %s failed", req.Method, req.URL), err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeRequestFailed, "cannot read response body", err)
	}
	return &Response{
		Request:    req,
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       body,
	}, nil
}

// StatusError returns a response middleware that fails non-2xx responses.
func StatusError() Middleware {
	return Middleware{
		Response: func(res *Response) (*Response, error) {
			if res.OK() {
				return res, nil
			}
			return res, errors.NewNetworkError(errors.ErrCodeRequestFailed,
				fmt.Sprintf("%s %s returned status %d", res.Request.Method, res.Request.URL, res.StatusCode), nil).
				WithContext("status", res.StatusCode)
		},
	}
}
