// Package client talks to the todolist HTTP API.
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
	"sync"
	"time"

	"github.com/dromkey/todolist/internal/apperr"
)

type Task struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Completed bool      `json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      User      `json:"user"`
}

// APIError is a non-2xx response. It unwraps to the apperr kind matching the
// status code, so errors.Is(err, apperr.ErrUnauthorized) works on it.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server returned %d", e.Status)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.Status)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusBadRequest:
		return apperr.ErrValidation
	case http.StatusUnauthorized:
		return apperr.ErrUnauthorized
	case http.StatusNotFound:
		return apperr.ErrNotFound
	case http.StatusConflict:
		return apperr.ErrConflict
	case http.StatusServiceUnavailable:
		return apperr.ErrUnavailable
	}
	return nil
}

type Client struct {
	base string
	http *http.Client

	mu    sync.RWMutex
	token string

	retries int
	backoff time.Duration
}

// New returns a client for the API mounted at baseURL, e.g.
// http://localhost:5000/api.
func New(baseURL string) *Client {
	return &Client{
		base:    strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		retries: 3,
		backoff: 200 * time.Millisecond,
	}
}

// WithRetry sets how many times a GET is attempted while the server answers
// 503, and the initial backoff between attempts.
func (c *Client) WithRetry(attempts int, backoff time.Duration) *Client {
	c.retries = attempts
	c.backoff = backoff
	return c
}

func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *Client) Register(ctx context.Context, username, password string) (User, error) {
	var u User
	err := c.do(ctx, http.MethodPost, "/auth/register", credentials{username, password}, &u)
	return u, err
}

func (c *Client) Login(ctx context.Context, username, password string) (LoginResult, error) {
	var res LoginResult
	if err := c.do(ctx, http.MethodPost, "/auth/login", credentials{username, password}, &res); err != nil {
		return LoginResult{}, err
	}
	c.SetToken(res.Token)
	return res, nil
}

func (c *Client) ListTasks(ctx context.Context) ([]Task, error) {
	var list []Task
	err := c.do(ctx, http.MethodGet, "/tasks", nil, &list)
	return list, err
}

func (c *Client) CreateTask(ctx context.Context, title string) (Task, error) {
	var t Task
	err := c.do(ctx, http.MethodPost, "/tasks", titleBody{title}, &t)
	return t, err
}

func (c *Client) UpdateTitle(ctx context.Context, id, title string) (Task, error) {
	var t Task
	err := c.do(ctx, http.MethodPut, taskPath(id), titleBody{title}, &t)
	return t, err
}

func (c *Client) CompleteTask(ctx context.Context, id string) (Task, error) {
	var t Task
	err := c.do(ctx, http.MethodPatch, taskPath(id), nil, &t)
	return t, err
}

func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, taskPath(id), nil, nil)
}

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type titleBody struct {
	Title string `json:"title"`
}

func taskPath(id string) string { return "/tasks/" + url.PathEscape(id) }

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	attempts := 1
	if method == http.MethodGet && c.retries > 1 {
		attempts = c.retries
	}
	wait := c.backoff

	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
			wait *= 2
		}
		lastErr = c.once(ctx, method, path, payload, out)
		if !errors.Is(lastErr, apperr.ErrUnavailable) {
			return lastErr
		}
	}
	return lastErr
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var rdr io.Reader
	if payload != nil {
		rdr = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if tok := c.Token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&e)
		return &APIError{Status: resp.StatusCode, Message: e.Error}
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
