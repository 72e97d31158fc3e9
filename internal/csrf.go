package internal

import (
	"context"
	"net/http"
)

// CsrfClient fetches a fresh anti-forgery token. Tokens are never cached:
// call FetchToken immediately before each mutating request.
type CsrfClient struct {
	api *APIClient
}

// NewCsrfClient creates a CsrfClient
func NewCsrfClient(api *APIClient) *CsrfClient {
	return &CsrfClient{api: api}
}

// FetchToken returns the token, or "" on any failure. An empty token is still
// sent, leaving the server to reject the mutating call.
func (c *CsrfClient) FetchToken(ctx context.Context) string {
	var resp csrfResponse
	err := c.api.do(ctx, apiRequest{op: "csrf", method: http.MethodGet, path: "/csrf"}, &resp)
	if err != nil {
		LogDebug("CSRF token fetch failed: %v", err)
		return ""
	}
	return resp.CSRFToken
}
