package testutil

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/bissquit/incident-tracker/internal/pkg/httputil"
)

// Client talks JSON to a test server. Every response is checked against the
// OpenAPI document unless the client has no validator.
type Client struct {
	t         *testing.T
	baseURL   string
	http      *http.Client
	validator *OpenAPIValidator

	// Token is sent as a bearer token when set.
	Token string
	// SessionID is sent in the session header when set.
	SessionID string
}

// NewClient returns a client reporting validation failures to t. A nil
// validator disables validation.
func NewClient(t *testing.T, baseURL string, validator *OpenAPIValidator) *Client {
	return &Client{
		t:         t,
		baseURL:   baseURL,
		http:      &http.Client{},
		validator: validator,
	}
}

// WithoutValidation returns a copy that skips OpenAPI checks, for requests
// whose responses are expected to fall outside the document.
func (c *Client) WithoutValidation() *Client {
	clone := *c
	clone.validator = nil
	return &clone
}

// InSession returns a copy bound to sessionID.
func (c *Client) InSession(sessionID string) *Client {
	clone := *c
	clone.SessionID = sessionID
	return &clone
}

// LoginAs logs in and keeps the returned access token.
func (c *Client) LoginAs(t *testing.T, username, password string) {
	t.Helper()

	resp, err := c.POST("/api/v1/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	if err != nil {
		t.Fatalf("login request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login as %s: status %d: %s", username, resp.StatusCode, ReadBody(t, resp))
	}

	var body struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	DecodeJSON(t, resp, &body)
	c.Token = body.Data.AccessToken
}

func (c *Client) GET(path string) (*http.Response, error) {
	return c.do(http.MethodGet, path, nil)
}

func (c *Client) POST(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPost, path, body)
}

func (c *Client) PUT(path string, body any) (*http.Response, error) {
	return c.do(http.MethodPut, path, body)
}

func (c *Client) do(method, path string, body any) (*http.Response, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, payload)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	if c.SessionID != "" {
		req.Header.Set(httputil.SessionHeader, c.SessionID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if c.validator != nil {
		c.validator.ValidateResponse(c.t, req, resp)
	}
	return resp, nil
}

// DecodeJSON decodes and closes the response body.
func DecodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ReadBody reads and closes the response body.
func ReadBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return string(body)
}
