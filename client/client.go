// Package client talks to the task board HTTP API.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/Adibmaros/tasks-management/domain"
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client wraps http.Client with helpers for JSON requests.
type Client struct {
	BaseURL string
	Bearer  string
	UserID  int64
	HTTP    *http.Client

	log           *log.Logger
	onLocalChange func()
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.HTTP = hc }
}

// WithLogger sets the logger used by streams.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.log = logger }
}

// WithLocalChange registers fn to run just before every write the client
// sends. Hand it Coordinator.MarkLocalChange so the change feed echo of that
// write is ignored.
func WithLocalChange(fn func()) Option {
	return func(c *Client) { c.onLocalChange = fn }
}

// New creates a new Client.
func New(baseURL, bearer string, opts ...Option) *Client {
	c := &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Bearer:  bearer,
		HTTP:    &http.Client{},
		log:     log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LoginResult is returned by Login.
type LoginResult struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"token"`
}

// Login exchanges credentials for a bearer token and remembers it.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	var res LoginResult
	err := c.do(ctx, http.MethodPost, "/api/auth/login", map[string]string{"email": email, "password": password}, &res)
	if err != nil {
		return LoginResult{}, err
	}
	c.Bearer = res.Token
	c.UserID = res.ID
	return res, nil
}

// Me resolves the user behind the current token and remembers its id.
func (c *Client) Me(ctx context.Context) (domain.User, error) {
	var u domain.User
	if err := c.do(ctx, http.MethodGet, "/api/auth/me", nil, &u); err != nil {
		return domain.User{}, err
	}
	c.UserID = u.ID
	return u, nil
}

// Board lists the non-archived tasks ordered by status and position.
func (c *Client) Board(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	err := c.do(ctx, http.MethodGet, "/api/tasks/user/"+strconv.FormatInt(c.UserID, 10), nil, &tasks)
	return tasks, err
}

// Archived lists archived tasks, most recently updated first.
func (c *Client) Archived(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	err := c.do(ctx, http.MethodGet, "/api/tasks/user/"+strconv.FormatInt(c.UserID, 10)+"/archived", nil, &tasks)
	return tasks, err
}

// Expired lists DOING tasks whose timer ran out.
func (c *Client) Expired(ctx context.Context) ([]domain.Task, error) {
	var tasks []domain.Task
	q := url.Values{"userId": {strconv.FormatInt(c.UserID, 10)}}
	err := c.do(ctx, http.MethodGet, "/api/tasks/expired?"+q.Encode(), nil, &tasks)
	return tasks, err
}

// CreateTask adds a task at the end of its column.
func (c *Client) CreateTask(ctx context.Context, name string, status domain.Status, durationMinutes *int) (domain.Task, error) {
	body := map[string]any{"name": name, "userId": c.UserID}
	if status != "" {
		body["status"] = status
	}
	if durationMinutes != nil {
		body["durationMinutes"] = *durationMinutes
	}
	var task domain.Task
	c.markLocalChange()
	err := c.do(ctx, http.MethodPost, "/api/tasks", body, &task)
	return task, err
}

// Move places a task at position within status.
func (c *Client) Move(ctx context.Context, taskID int64, status domain.Status, position int) error {
	req := domain.MoveRequest{TaskID: taskID, UserID: c.UserID, NewStatus: status, NewPosition: position}
	c.markLocalChange()
	return c.do(ctx, http.MethodPost, "/api/tasks/reorder", req, nil)
}

// markLocalChange runs before the request goes out: the server publishes the
// echo before it answers, so it can arrive ahead of the response.
func (c *Client) markLocalChange() {
	if c.onLocalChange != nil {
		c.onLocalChange()
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.Bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.Bearer)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return sonic.ConfigStd.NewDecoder(resp.Body).Decode(out)
}

func decodeAPIError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var body struct {
		Error string `json:"error"`
	}
	msg := strings.TrimSpace(string(data))
	if sonic.Unmarshal(data, &body) == nil && body.Error != "" {
		msg = body.Error
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &APIError{Status: resp.StatusCode, Message: msg}
}
