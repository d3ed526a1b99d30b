// Package remote speaks to the authoritative task backend. Every call is a
// single request/response with no implicit retry; connection recovery belongs
// to the change-stream subscriber, never to CRUD.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/wote-dev/simplr-web-sub000/internal/domain"
	"github.com/wote-dev/simplr-web-sub000/internal/taskerr"
)

// TaskRepository is the backend CRUD contract consumed by the engine.
type TaskRepository interface {
	Create(ctx context.Context, t domain.Task) (domain.Task, error)
	Update(ctx context.Context, t domain.Task) (domain.Task, error)
	Delete(ctx context.Context, id int64) error
	DeleteCompleted(ctx context.Context) error
	ListForUser(ctx context.Context) ([]domain.Task, error)
}

type Client struct {
	baseURL string
	http    *http.Client

	mu    sync.RWMutex
	token string
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// SetToken swaps the bearer token after a session change.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *Client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

type taskResponse struct {
	Task domain.Task `json:"task"`
}

type tasksResponse struct {
	Tasks []domain.Task `json:"tasks"`
}

func (c *Client) Create(ctx context.Context, t domain.Task) (domain.Task, error) {
	var res taskResponse
	if err := c.do(ctx, "create task", http.MethodPost, "/api/v1/tasks", t, &res); err != nil {
		return domain.Task{}, err
	}
	return res.Task, nil
}

func (c *Client) Update(ctx context.Context, t domain.Task) (domain.Task, error) {
	var res taskResponse
	path := fmt.Sprintf("/api/v1/tasks/%d", t.ID)
	if err := c.do(ctx, "update task", http.MethodPut, path, t, &res); err != nil {
		return domain.Task{}, err
	}
	return res.Task, nil
}

func (c *Client) Delete(ctx context.Context, id int64) error {
	path := fmt.Sprintf("/api/v1/tasks/%d", id)
	return c.do(ctx, "delete task", http.MethodDelete, path, nil, nil)
}

func (c *Client) DeleteCompleted(ctx context.Context) error {
	return c.do(ctx, "delete completed", http.MethodDelete, "/api/v1/tasks/completed", nil, nil)
}

func (c *Client) ListForUser(ctx context.Context) ([]domain.Task, error) {
	var res tasksResponse
	if err := c.do(ctx, "list tasks", http.MethodGet, "/api/v1/tasks", nil, &res); err != nil {
		return nil, err
	}
	return res.Tasks, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, dest any) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return taskerr.Classify(op, err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return taskerr.Classify(op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		// transport failures and timeouts are connectivity problems
		return taskerr.Networkf(op, "request failed: %v", err)
	}
	defer res.Body.Close()

	if res.StatusCode >= 400 {
		return classifyStatus(op, res)
	}

	if dest != nil {
		if err := json.NewDecoder(res.Body).Decode(dest); err != nil {
			return taskerr.Networkf(op, "decode response: %v", err)
		}
	}
	return nil
}

type errorResponse struct {
	Error string `json:"error"`
}

func classifyStatus(op string, res *http.Response) error {
	msg := res.Status
	var body errorResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err == nil && body.Error != "" {
		msg = body.Error
	}

	switch res.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return taskerr.Authf(op, "%s", msg)
	case http.StatusNotFound:
		return taskerr.NotFoundf(op, "%s", msg)
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return taskerr.Validationf(op, "%s", msg)
	default:
		return taskerr.New(taskerr.KindUnknown, op, fmt.Errorf("%s", msg))
	}
}
