package internal

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

	"github.com/google/uuid"
)

const (
	headerCSRF      = "x-xsrf-token"
	headerRequestID = "X-Request-ID"
)

// APIClient performs JSON requests against the API root with ambient cookie
// credentials.
type APIClient struct {
	root    string
	http    *http.Client
	timeout time.Duration
}

// NewAPIClient creates a client for root (e.g. http://localhost:8000/api).
// With a nil jar no cookies are sent.
func NewAPIClient(root string, jar http.CookieJar, timeout time.Duration) *APIClient {
	return &APIClient{
		root:    strings.TrimRight(root, "/"),
		http:    &http.Client{Jar: jar},
		timeout: timeout,
	}
}

// Root returns the API root URL
func (c *APIClient) Root() string {
	return c.root
}

// apiRequest describes a single call
type apiRequest struct {
	op     string
	method string
	path   string
	query  url.Values
	token  string  // bearer token, sent when non-empty
	csrf   *string // anti-forgery header, sent (even empty) when non-nil
	body   interface{}
}

// responseError is a non-2xx answer; callers turn it into AuthError or ServerError
type responseError struct {
	status  int
	message string
}

func (e *responseError) Error() string {
	if e.message != "" {
		return fmt.Sprintf("status %d: %s", e.status, e.message)
	}
	return fmt.Sprintf("status %d", e.status)
}

// do sends req and decodes a 2xx JSON body into out (which may be nil).
// Transport failures return *NetworkError; non-2xx return *responseError.
func (c *APIClient) do(ctx context.Context, req apiRequest, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	target := c.root + req.path
	if len(req.query) > 0 {
		target += "?" + req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		data, err := json.Marshal(req.body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", req.op, err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, target, body)
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", req.op, err)
	}
	if req.body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	httpReq.Header.Set("Accept", "application/json")
	if req.token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.token)
	}
	if req.csrf != nil {
		httpReq.Header.Set(headerCSRF, *req.csrf)
	}
	requestID := uuid.NewString()
	httpReq.Header.Set(headerRequestID, requestID)

	LogDebug("%s %s [%s] request_id=%s", req.method, req.path, req.op, requestID)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return &NetworkError{Op: req.op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &NetworkError{Op: req.op, Err: err}
	}

	LogDebug("%s %s -> %d request_id=%s", req.method, req.path, resp.StatusCode, requestID)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var msg messageResponse
		_ = json.Unmarshal(data, &msg)
		return &responseError{status: resp.StatusCode, message: msg.Message}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &ParseError{Source: "api", Key: req.path, Err: err}
	}
	return nil
}

// asAuthError maps a non-2xx response to AuthError with fallback as the
// message when the server gave none. Other errors pass through.
func asAuthError(op, fallback string, err error) error {
	var re *responseError
	if errors.As(err, &re) {
		msg := re.message
		if msg == "" {
			msg = fallback
		}
		return &AuthError{Op: op, Status: re.status, Message: msg}
	}
	return err
}

// asServerError maps a non-2xx response to ServerError
func asServerError(op, fallback string, err error) error {
	var re *responseError
	if errors.As(err, &re) {
		msg := re.message
		if msg == "" {
			msg = fallback
		}
		return &ServerError{Op: op, Status: re.status, Message: msg}
	}
	return err
}

func csrfHeader(token string) *string {
	return &token
}
