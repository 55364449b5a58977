// Package api is the client of the LoginKeeper storage backend.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/atinyakov/LoginKeeper/internal/health"
	"github.com/atinyakov/LoginKeeper/internal/models"
)

// DefaultTimeout bounds every request.
const DefaultTimeout = 10 * time.Second

// Error is a non-success response of the backend. Error returns the
// backend's message verbatim.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string { return e.Message }

// StatusCode returns the HTTP status of the response.
func (e *Error) StatusCode() int { return e.Status }

type errorBody struct {
	Error string `json:"error"`
}

// Client talks to the backend over mTLS. It never retries.
type Client struct {
	resty *resty.Client
	log   *zap.Logger
}

// New wraps httpClient, which carries the TLS configuration, e.g. one built
// by NewTLSClient.
func New(httpClient *http.Client, baseURL string, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := resty.NewWithClient(httpClient).
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(DefaultTimeout).
		SetRetryCount(0).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", "LoginKeeper/1.0")
	return &Client{resty: r, log: logger}
}

// Session introspects the session. A connection without a registered
// certificate is reported as unauthenticated, not as an error.
func (c *Client) Session(ctx context.Context) (models.Session, error) {
	var s models.Session
	err := c.do(ctx, http.MethodGet, "/api/session", nil, &s, nil)
	return s, err
}

// Exists checks for a stored credential with the same website and username.
func (c *Client) Exists(ctx context.Context, q models.ExistsQuery) (bool, error) {
	var out struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(ctx, http.MethodPost, "/api/credentials/exists", q, &out, nil); err != nil {
		return false, err
	}
	return out.Exists, nil
}

// Create stores a credential. A duplicate is an *Error with status 409.
func (c *Client) Create(ctx context.Context, nc models.NewCredential) (models.StoredCredential, error) {
	var out models.StoredCredential
	err := c.do(ctx, http.MethodPost, "/api/credentials", nc, &out, nil)
	return out, err
}

// Search lists the stored credentials whose website, URL or username
// contains query. An empty query lists everything.
func (c *Client) Search(ctx context.Context, query string) ([]models.StoredCredential, error) {
	var out struct {
		Credentials []models.StoredCredential `json:"credentials"`
	}
	params := map[string]string{}
	if query != "" {
		params["query"] = query
	}
	if err := c.do(ctx, http.MethodGet, "/api/credentials", nil, &out, params); err != nil {
		return nil, err
	}
	return out.Credentials, nil
}

// Delete removes a credential by ID.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/credentials/"+id, nil, nil, nil)
}

// Health returns the health summary of every stored credential.
func (c *Client) Health(ctx context.Context) (health.Summary, error) {
	var out health.Summary
	err := c.do(ctx, http.MethodGet, "/api/credentials/health", nil, &out, nil)
	return out, err
}

// CheckStrength scores a password on the backend.
func (c *Client) CheckStrength(ctx context.Context, password string) (health.Check, error) {
	var out health.Check
	body := map[string]string{"password": password}
	err := c.do(ctx, http.MethodPost, "/api/check-strength", body, &out, nil)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, body, result any, query map[string]string) error {
	req := c.resty.R().SetContext(ctx)
	if body != nil {
		req.SetBody(body)
	}
	if len(query) > 0 {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	c.log.Debug("backend response",
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", resp.Time()),
	)

	if resp.IsError() {
		return responseError(resp)
	}
	if result == nil || len(resp.Body()) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body(), result); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func responseError(resp *resty.Response) *Error {
	e := &Error{Status: resp.StatusCode()}
	var body errorBody
	if err := json.Unmarshal(resp.Body(), &body); err == nil && body.Error != "" {
		e.Message = body.Error
		return e
	}
	e.Message = strings.TrimSpace(string(resp.Body()))
	if e.Message == "" {
		e.Message = http.StatusText(resp.StatusCode())
	}
	return e
}
