// Package wordpress implements archive.ContentSource over the WordPress REST API.
// Authentication uses HTTP basic auth, as accepted by application passwords.
package wordpress

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pklaus/backup-wordpress-blog/internal/errors"
)

const (
	defaultTimeout   = 60 * time.Second
	defaultPerPage   = 100
	defaultUserAgent = "wpbackup"
)

// Credentials are the login used for every API request.
type Credentials struct {
	Username string
	Password string
}

// Client is an authenticated session with one WordPress site.
type Client struct {
	endpoint   *url.URL // REST root, ends in /wp-json/
	creds      Credentials
	httpClient *http.Client
	download   *http.Client
	timeout    time.Duration
	userAgent  string
	perPage    int
	logger     *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client used for API and download requests.
// The client is copied; its settings are never modified.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTimeout sets the per-request timeout for API calls. Downloads are
// bounded only by their context.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithPerPage sets the page size for list requests (max 100).
func WithPerPage(n int) Option {
	return func(c *Client) {
		if n > 0 && n <= defaultPerPage {
			c.perPage = n
		}
	}
}

// WithLogger sets the logger for request tracing.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NormalizeEndpoint turns a blog URL into its REST API root. A missing scheme
// defaults to http, and a trailing xmlrpc.php or wp-json is replaced.
func NormalizeEndpoint(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", errors.NewInvalidRequest("blog URL is required")
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "http://" + s
	}

	u, err := url.Parse(s)
	if err != nil {
		return "", errors.NewInvalidRequest(fmt.Sprintf("invalid blog URL %q: %v", raw, err))
	}
	if u.Host == "" {
		return "", errors.NewInvalidRequest(fmt.Sprintf("blog URL %q has no host", raw))
	}

	p := strings.TrimSuffix(u.Path, "/")
	p = strings.TrimSuffix(p, "xmlrpc.php")
	p = strings.TrimSuffix(p, "/")
	p = strings.TrimSuffix(p, "wp-json")
	p = strings.TrimSuffix(p, "/")
	u.Path = p + "/wp-json/"
	u.RawPath = ""
	u.RawQuery = ""
	u.Fragment = ""
	return u.String(), nil
}

// New returns an unauthenticated client for endpoint. Use Dial to also
// verify the credentials.
func New(endpoint string, creds Credentials, opts ...Option) (*Client, error) {
	normalized, err := NormalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(normalized)
	if err != nil {
		return nil, errors.NewInvalidRequest(err.Error())
	}

	c := &Client{
		endpoint:   u,
		creds:      creds,
		httpClient: &http.Client{Timeout: defaultTimeout},
		userAgent:  defaultUserAgent,
		perPage:    defaultPerPage,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}

	api := *c.httpClient
	if c.timeout > 0 {
		api.Timeout = c.timeout
	}
	c.httpClient = &api

	dl := api
	dl.Timeout = 0
	c.download = &dl
	return c, nil
}

// Dial creates a client and verifies the credentials. It returns an
// AUTHENTICATION error if the site rejects them.
func Dial(ctx context.Context, endpoint string, creds Credentials, opts ...Option) (*Client, error) {
	c, err := New(endpoint, creds, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Endpoint returns the REST API root.
func (c *Client) Endpoint() string {
	return c.endpoint.String()
}

type wpUser struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// Authenticate checks the credentials against the current-user endpoint.
func (c *Client) Authenticate(ctx context.Context) error {
	var user wpUser
	if _, err := c.getJSON(ctx, "authenticate", "wp/v2/users/me", url.Values{"context": {"edit"}}, &user); err != nil {
		return err
	}
	c.logger.Debug("authenticated", zap.String("endpoint", c.Endpoint()), zap.Int64("user_id", user.ID), zap.String("user", user.Slug))
	return nil
}

// getJSON performs an authenticated GET of route below the REST root and
// decodes the response into v.
func (c *Client) getJSON(ctx context.Context, op, route string, query url.Values, v any) (http.Header, error) {
	u := c.endpoint.ResolveReference(&url.URL{Path: route})
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.NewInternal(err)
	}
	req.SetBasicAuth(c.creds.Username, c.creds.Password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.NewTransport(op, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errors.NewAuthentication(c.Endpoint(), c.creds.Username)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, errors.NewHTTPStatus(op, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return nil, errors.NewTransport(op+": decode response", err)
	}
	return resp.Header, nil
}

// Download opens the payload at rawURL. Credentials are only sent to the
// blog's own host.
func (c *Client) Download(ctx context.Context, rawURL string) (io.ReadCloser, error) {
	op := "download " + rawURL
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("%s: %v", op, err))
	}
	req.Header.Set("User-Agent", c.userAgent)
	if req.URL.Host == c.endpoint.Host {
		req.SetBasicAuth(c.creds.Username, c.creds.Password)
	}

	resp, err := c.download.Do(req)
	if err != nil {
		return nil, errors.NewTransport(op, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, errors.NewHTTPStatus(op, resp.StatusCode)
	}
	return resp.Body, nil
}
