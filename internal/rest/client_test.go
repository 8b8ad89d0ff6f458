package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wisperrors "github.com/conneroisu/wisp/internal/errors"
)

type captured struct {
	method      string
	path        string
	contentType string
	body        string
}

func echoServer(t *testing.T, status int, reply string) (*httptest.Server, *captured) {
	t.Helper()
	got := &captured{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		got.method = r.Method
		got.path = r.URL.Path
		got.contentType = r.Header.Get("Content-Type")
		got.body = string(body)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func TestMethods(t *testing.T) {
	srv, got := echoServer(t, http.StatusOK, "ok")
	c := NewClient(WithBaseURL(srv.URL + "/"))
	ctx := context.Background()

	tests := []struct {
		name   string
		call   func() (*Response, error)
		method string
	}{
		{"get", func() (*Response, error) { return c.Get(ctx, "/api/a") }, http.MethodGet},
		{"post", func() (*Response, error) { return c.Post(ctx, "api/a", nil) }, http.MethodPost},
		{"put", func() (*Response, error) { return c.Put(ctx, "api/a", nil) }, http.MethodPut},
		{"delete", func() (*Response, error) { return c.Delete(ctx, "api/a") }, http.MethodDelete},
		{"head", func() (*Response, error) { return c.Head(ctx, "api/a") }, http.MethodHead},
		{"fetch", func() (*Response, error) { return c.Fetch(ctx, http.MethodPatch, "api/a", nil) }, http.MethodPatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := tt.call()
			require.NoError(t, err)
			assert.Equal(t, tt.method, got.method)
			assert.Equal(t, "/api/a", got.path)
			assert.True(t, res.OK())
		})
	}
}

func TestBodyEncoding(t *testing.T) {
	srv, got := echoServer(t, http.StatusOK, "")
	c := NewClient()
	ctx := context.Background()

	tests := []struct {
		name        string
		body        any
		contentType string
		sent        string
	}{
		{"string", "plain", "text/plain; charset=utf-8", "plain"},
		{"bytes", []byte{'a', 'b'}, "application/octet-stream", "ab"},
		{"form", url.Values{"q": {"x y"}}, "application/x-www-form-urlencoded", "q=x+y"},
		{"reader", strings.NewReader("raw"), "", "raw"},
		{"json", map[string]any{"name": "n1"}, "application/json", `{"name":"n1"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Post(ctx, srv.URL, tt.body)
			require.NoError(t, err)
			assert.Equal(t, tt.contentType, got.contentType)
			assert.Equal(t, tt.sent, got.body)
		})
	}
}

func TestMiddlewareOnionOrder(t *testing.T) {
	srv, _ := echoServer(t, http.StatusOK, "")
	c := NewClient()

	var order []string
	track := func(name string) Middleware {
		return Middleware{
			Request: func(r *http.Request) (*http.Request, error) {
				order = append(order, "req:"+name)
				return r, nil
			},
			Response: func(res *Response) (*Response, error) {
				order = append(order, "res:"+name)
				return res, nil
			},
		}
	}
	c.Use(track("a"), track("b"))
	c.Use(track("c"))

	_, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, []string{"req:a", "req:b", "req:c", "res:c", "res:b", "res:a"}, order)

	order = nil
	_, err = c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "req:a", order[0], "order is stable across requests")
}

func TestRequestErrorRecovery(t *testing.T) {
	srv, got := echoServer(t, http.StatusOK, "")
	c := NewClient()
	boom := errors.New("boom")

	c.Use(
		Middleware{Request: func(*http.Request) (*http.Request, error) { return nil, boom }},
		Middleware{RequestError: func(err error) (*http.Request, error) {
			assert.ErrorIs(t, err, boom)
			return http.NewRequest(http.MethodGet, srv.URL+"/recovered", nil)
		}},
	)

	_, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "/recovered", got.path)
}

func TestRequestErrorReachesResponseError(t *testing.T) {
	c := NewClient()
	boom := errors.New("boom")
	var seen error

	c.Use(
		Middleware{ResponseError: func(err error) (*Response, error) {
			seen = err
			return &Response{StatusCode: http.StatusTeapot}, nil
		}},
		Middleware{Request: func(*http.Request) (*http.Request, error) { return nil, boom }},
	)

	res, err := c.Get(context.Background(), "http://unused.invalid")
	require.NoError(t, err)
	assert.ErrorIs(t, seen, boom)
	assert.Equal(t, http.StatusTeapot, res.StatusCode)
}

func TestTransportFailureIsNetworkError(t *testing.T) {
	srv, _ := echoServer(t, http.StatusOK, "")
	srv.Close()

	_, err := NewClient().Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.True(t, wisperrors.HasErrorType(err, wisperrors.ErrorTypeNetwork))
	assert.True(t, wisperrors.HasErrorCode(err, wisperrors.ErrCodeRequestFailed))
}

func TestJSONClient(t *testing.T) {
	t.Run("decodes", func(t *testing.T) {
		srv, _ := echoServer(t, http.StatusOK, `{"data":[{"name":"n1"}]}`)
		res, err := NewJSONClient().Get(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"data": []any{map[string]any{"name": "n1"}}}, res.Value)
	})

	t.Run("keeps text on decode failure", func(t *testing.T) {
		srv, _ := echoServer(t, http.StatusOK, "<html>")
		res, err := NewJSONClient().Get(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Equal(t, "<html>", res.Value)
	})

	t.Run("middlewares added later run before decoding", func(t *testing.T) {
		srv, _ := echoServer(t, http.StatusOK, `[1]`)
		c := NewJSONClient()
		var value any
		c.Use(Middleware{Response: func(res *Response) (*Response, error) {
			value = res.Value
			return res, nil
		}})
		_, err := c.Get(context.Background(), srv.URL)
		require.NoError(t, err)
		assert.Nil(t, value, "response hooks unwind in reverse, so the decoder runs last")
	})
}

func TestStatusError(t *testing.T) {
	srv, _ := echoServer(t, http.StatusNotFound, "missing")
	c := NewClient()
	c.Use(StatusError())

	res, err := c.Get(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
	assert.Equal(t, "missing", res.Text())
	assert.True(t, wisperrors.HasErrorCode(err, wisperrors.ErrCodeRequestFailed))
}

func TestClearMiddlewares(t *testing.T) {
	srv, _ := echoServer(t, http.StatusOK, `{"a":1}`)
	c := NewJSONClient(WithHeader("X-Test", "1"))
	c.ClearMiddlewares()

	res, err := c.Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Nil(t, res.Value)
}
