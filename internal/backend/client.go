// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package backend is the REST client for the accounts, features and payments
// API behind the portal. Authentication rides on cookies the API sets; each
// browser session gets its own Jar and talks to the API through a Conn.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/olegiv/oportal-go/internal/metrics"
)

// maxResponseSize caps how much of a response body is read.
const maxResponseSize = 2 << 20

// Config configures a Client.
type Config struct {
	// BaseURL is the API root, e.g. https://api.example.com/api/.
	BaseURL string

	// Timeout bounds each request. Zero means 15 seconds.
	Timeout time.Duration

	// Transport overrides the HTTP transport (tests use httptest servers).
	Transport http.RoundTripper
}

// Client is safe for concurrent use. It holds no per-user state.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// New creates a Client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("backend base URL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing backend URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend URL must use http or https, got %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: cfg.Transport,
			// The API answers with JSON; redirects indicate misconfiguration.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}, nil
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.baseURL.String()
}

// Conn binds the client to a browser session's cookie jar. A nil jar gets a
// fresh empty one.
func (c *Client) Conn(jar *Jar) *Conn {
	if jar == nil {
		jar = NewJar(nil)
	}
	hc := *c.httpClient
	hc.Jar = jar
	return &Conn{client: c, http: &hc, jar: jar}
}

// Conn issues API calls on behalf of one browser session.
type Conn struct {
	client *Client
	http   *http.Client
	jar    *Jar
}

// Jar returns the session's cookie jar.
func (c *Conn) Jar() *Jar {
	return c.jar
}

// endpointURL resolves an API path against the base URL. Leading slashes are
// ignored so "/features/" and "features/" resolve alike.
func (c *Conn) endpointURL(path string) string {
	u := *c.client.baseURL
	u.Path += strings.TrimPrefix(path, "/")
	return u.String()
}

// do sends a JSON request and decodes a JSON response into out.
// endpoint is the metrics label; it must not contain ids.
func (c *Conn) do(ctx context.Context, method, path, endpoint string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding %s request: %w", endpoint, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpointURL(path), body)
	if err != nil {
		return fmt.Errorf("creating %s request: %w", endpoint, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.BackendRequestDuration.WithLabelValues(endpoint, "error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("calling %s: %w", endpoint, err)
	}
	defer func() { _ = resp.Body.Close() }()

	metrics.BackendRequestDuration.WithLabelValues(endpoint, strconv.Itoa(resp.StatusCode)).
		Observe(time.Since(start).Seconds())

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("reading %s response: %w", endpoint, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := parseErrorMessage(respBody)
		if msg == "" {
			msg = GenericErrorMessage
		}
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Message: msg}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decoding %s response: %w", endpoint, err)
	}
	return nil
}
