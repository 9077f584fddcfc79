// Package client is the typed HTTP client for the todo server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Makepad-fr/tada/internal/apperr"
	"github.com/Makepad-fr/tada/internal/auth"
	"github.com/Makepad-fr/tada/internal/model"
)

// Client talks to one server. It is safe for concurrent use.
type Client struct {
	base  string
	http  *http.Client
	token func() string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// WithToken sets the source of the bearer token, read on every request.
func WithToken(fn func() string) Option { return func(c *Client) { c.token = fn } }

// New returns a client for the server at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		base:  strings.TrimRight(baseURL, "/"),
		http:  &http.Client{Timeout: 10 * time.Second},
		token: func() string { return "" },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) ListTodos(ctx context.Context, filter model.TodoFilter) ([]model.Todo, error) {
	path := "/todos"
	if q := filter.Query().Encode(); q != "" {
		path += "?" + q
	}
	var out []model.Todo
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	if out == nil {
		out = []model.Todo{}
	}
	return out, nil
}

func (c *Client) GetTodo(ctx context.Context, id string) (model.Todo, error) {
	var out model.Todo
	err := c.do(ctx, http.MethodGet, "/todos/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *Client) CreateTodo(ctx context.Context, n model.NewTodo) (model.Todo, error) {
	var out model.Todo
	err := c.do(ctx, http.MethodPost, "/todos", n, &out)
	return out, err
}

func (c *Client) UpdateTodo(ctx context.Context, id string, patch model.TodoPatch) (model.Todo, error) {
	var out model.Todo
	err := c.do(ctx, http.MethodPut, "/todos/"+url.PathEscape(id), patch, &out)
	return out, err
}

func (c *Client) DeleteTodo(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/todos/"+url.PathEscape(id), nil, nil)
}

// Register creates an account; it does not log in.
func (c *Client) Register(ctx context.Context, r auth.Registration) (model.User, error) {
	var out struct {
		User model.User `json:"user"`
	}
	err := c.do(ctx, http.MethodPost, "/auth/register", r, &out)
	return out.User, err
}

func (c *Client) Login(ctx context.Context, cred auth.Credentials) (auth.Session, error) {
	var out auth.Session
	err := c.do(ctx, http.MethodPost, "/auth/login", cred, &out)
	return out, err
}

// Me returns the account behind the current token.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var out model.User
	err := c.do(ctx, http.MethodGet, "/auth/me", nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return apperr.Wrap(apperr.KindTransient, "Cannot reach server", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return apperr.Wrap(apperr.KindTransient, "Reading response failed", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(code int, raw []byte) error {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || body.Error == "" {
		body.Error = strings.TrimSpace(string(raw))
		if len(body.Error) > 200 || body.Error == "" {
			body.Error = http.StatusText(code)
		}
	}
	return apperr.FromStatus(code, body.Error)
}

// IsUnauthenticated reports whether err means the session is missing or expired.
func IsUnauthenticated(err error) bool {
	return errors.Is(err, apperr.ErrUnauthenticated)
}
