package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/publicsuffix"

	"activestats/internal/core/domain"
	"activestats/internal/core/ports"
)

const (
	// DefaultPrefix is the path prefix of the current endpoint generation.
	// The legacy generation served the same endpoints from the root.
	DefaultPrefix = "/api"

	defaultTimeout = 10 * time.Second
	maxErrorBody   = 512
)

// HTTPError is returned for non-2xx responses other than 401.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("unexpected status code: %d, body: %s", e.StatusCode, e.Body)
}

// RedirectError wraps ports.ErrUnauthorized when the backend bounced the
// request to another page instead of answering it.
type RedirectError struct {
	Location string
}

func (e *RedirectError) Error() string {
	return fmt.Sprintf("session invalid: redirected to %q", e.Location)
}

func (e *RedirectError) Unwrap() error { return ports.ErrUnauthorized }

// Config holds the connection settings for Client.
type Config struct {
	BaseURL string
	// Prefix is prepended to every endpoint path, "/api" or "" for legacy.
	Prefix        string
	Timeout       time.Duration
	SessionCookie string
	SessionName   string
	HTTPClient    *http.Client
	Logger        *slog.Logger
}

// Client implements ports.StatusAPI over the backend's REST endpoints.
type Client struct {
	baseURL *url.URL
	prefix  string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a Client. A session cookie, when given, is installed in
// the client's cookie jar for the base URL.
func NewClient(cfg Config) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", cfg.BaseURL, err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid base url %q: scheme and host are required", cfg.BaseURL)
	}

	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}
	if cfg.SessionCookie != "" {
		name := cfg.SessionName
		if name == "" {
			name = "session"
		}
		jar.SetCookies(base, []*http.Cookie{{Name: name, Value: cfg.SessionCookie, Path: "/"}})
	}

	hc := cfg.HTTPClient
	if hc == nil {
		hc = &http.Client{}
	}
	// Copy so the jar and redirect policy never leak into a shared client.
	c := *hc
	c.Jar = jar
	c.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL: base,
		prefix:  "/" + strings.Trim(cfg.Prefix, "/"),
		timeout: timeout,
		client:  &c,
		logger:  logger,
	}, nil
}

// FetchStatus calls the kind's data status endpoint.
func (c *Client) FetchStatus(ctx context.Context, kind domain.JobKind) (domain.JobStatus, error) {
	var status domain.JobStatus
	if err := c.getJSON(ctx, fmt.Sprintf("%s_data_status", kind), &status); err != nil {
		return domain.JobStatus{}, err
	}
	return status, nil
}

// RequestRefresh calls the kind's refresh endpoint.
func (c *Client) RequestRefresh(ctx context.Context, kind domain.JobKind) (domain.RefreshResult, error) {
	var result domain.RefreshResult
	if err := c.getJSON(ctx, fmt.Sprintf("refresh_%s_data", kind), &result); err != nil {
		return domain.RefreshResult{}, err
	}
	return result, nil
}

// FetchDataStatus calls the simplified single-job status endpoint.
func (c *Client) FetchDataStatus(ctx context.Context) (domain.DataStatus, error) {
	var status domain.DataStatus
	if err := c.getJSON(ctx, "data_status", &status); err != nil {
		return domain.DataStatus{}, err
	}
	return status, nil
}

// FetchPaid reports whether the user has access to detailed data.
func (c *Client) FetchPaid(ctx context.Context) (bool, error) {
	var body struct {
		Paid bool `json:"paid"`
	}
	if err := c.getJSON(ctx, "paid", &body); err != nil {
		return false, err
	}
	return body.Paid, nil
}

func (c *Client) endpoint(name string) string {
	u := *c.baseURL
	u.Path = strings.TrimRight(u.Path, "/") + strings.TrimRight(c.prefix, "/") + "/" + name
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, name string, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint := c.endpoint(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("api response", "endpoint", name, "status", resp.StatusCode, "request_id", requestID)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("GET %s: %w", endpoint, ports.ErrUnauthorized)
	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		return &RedirectError{Location: resp.Header.Get("Location")}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &HTTPError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", name, err)
	}
	return nil
}

// IsUnauthorized reports whether err means the session is invalid.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ports.ErrUnauthorized)
}
