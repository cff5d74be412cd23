package revalidate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/sunroad-co/sunroad-backend/pkg/errors"
)

const responseBodyReadLimit int64 = 1024

// Client posts cache-invalidation requests to the presentation layer so a
// profile page is re-rendered after its entitlement changes.
type Client struct {
	httpClient *http.Client
	url        string
	secret     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// NewClient builds a revalidation client for the given endpoint. The timeout
// bounds the whole request so a slow frontend cannot stall webhook processing.
func NewClient(url, secret string, timeout time.Duration, opts ...Option) (*Client, error) {
	trimmedURL := strings.TrimSpace(url)
	if trimmedURL == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "revalidate url is required")
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}

	client := &Client{
		url:        trimmedURL,
		secret:     strings.TrimSpace(secret),
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	return client, nil
}

// RevalidateHandle asks the frontend to rebuild the public page for handle.
func (c *Client) RevalidateHandle(ctx context.Context, handle string) error {
	if c == nil {
		return pkgerrors.New(pkgerrors.CodeDependency, "revalidate client not configured")
	}
	if strings.TrimSpace(handle) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "handle is required")
	}

	payload, err := json.Marshal(map[string]string{"handle": handle})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal revalidate request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build revalidate request")
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("X-Revalidate-Secret", c.secret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute revalidate request")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		return pkgerrors.Wrap(pkgerrors.CodeDependency,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))),
			"revalidate request failed")
	}
	return nil
}
