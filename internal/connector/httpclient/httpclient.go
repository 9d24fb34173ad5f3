package httpclient

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
	"time"

	"golang.org/x/time/rate"

	"github.com/hejijunhao/statusreport/internal/errs"
)

// Client is an HTTP client with a base URL, optional auth headers, a shared
// request limiter, and retry logic.
type Client struct {
	baseURL     string
	headers     http.Header
	httpClient  *http.Client
	limiter     *rate.Limiter
	maxRetries  int
	backoffBase time.Duration
}

// APIError represents a non-2xx HTTP response.
type APIError struct {
	StatusCode int
	Body       string // first 512 bytes
	retryAfter string // internal: Retry-After header value for 429s
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// Option configures Client behavior.
type Option func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.httpClient.Timeout = d
	}
}

// WithBearer sends "Authorization: Bearer <token>" on every request.
func WithBearer(token string) Option {
	return WithHeader("Authorization", "Bearer "+token)
}

// WithHeader sets a header on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Set(key, value)
	}
}

// WithLimiter makes every attempt wait on l first. The limiter is usually
// owned by the run and shared by all clients of that run.
func WithLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithMaxRetries caps retry attempts after the first request. Default: 3.
func WithMaxRetries(n int) Option {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithBackoff sets the first backoff delay; later delays double. Default: 1s.
func WithBackoff(base time.Duration) Option {
	return func(c *Client) {
		c.backoffBase = base
	}
}

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// New creates a Client for the given base URL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		headers: make(http.Header),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries:  defaultMaxRetries,
		backoffBase: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the URL every request path is appended to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

const defaultMaxRetries = 3

// GetJSON sends a GET request and unmarshals the JSON response into dest.
// Returns *APIError for non-2xx responses and an errs.ErrParse-wrapped
// error when the body is not valid JSON for dest.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, dest any) error {
	body, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: decode %s: %v", errs.ErrParse, path, err)
	}
	return nil
}

// GetBody sends a GET request and returns the raw response body.
func (c *Client) GetBody(ctx context.Context, path string, query url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, query, nil)
}

// PostJSON marshals payload, POSTs it, and unmarshals the JSON response into
// dest. A nil dest discards the response body.
func (c *Client) PostJSON(ctx context.Context, path string, payload, dest any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	body, err := c.do(ctx, http.MethodPost, path, nil, data)
	if err != nil {
		return err
	}
	if dest == nil {
		return nil
	}
	if err := json.Unmarshal(body, dest); err != nil {
		return fmt.Errorf("%w: decode %s: %v", errs.ErrParse, path, err)
	}
	return nil
}

// do runs the request with retries. Transport failures and 5xx use
// exponential backoff (1s, 2s, 4s by default); 429 honors Retry-After.
// Other statuses return *APIError immediately.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, payload []byte) ([]byte, error) {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var err error
	for attempt := 0; ; attempt++ {
		var body []byte
		body, err = c.attempt(ctx, method, target, path, payload)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == c.maxRetries || !retryable(err) {
			return nil, err
		}
		if werr := sleep(ctx, c.backoffDelay(attempt+1, err)); werr != nil {
			return nil, werr
		}
	}
}

// attempt sends one request, after waiting on the limiter. Non-2xx
// responses come back as *APIError.
func (c *Client) attempt(ctx context.Context, method, target, path string, payload []byte) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var reqBody io.Reader
	if payload != nil {
		reqBody = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrConfig, err)
	}
	for k, vs := range c.headers {
		req.Header[k] = vs
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", errs.ErrNetwork, method, path, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", errs.ErrNetwork, path, err)
	}
	if resp.StatusCode/100 == 2 {
		return body, nil
	}
	apiErr := &APIError{StatusCode: resp.StatusCode, Body: truncate(string(body), 512)}
	if resp.StatusCode == http.StatusTooManyRequests {
		apiErr.retryAfter = resp.Header.Get("Retry-After")
	}
	return nil, apiErr
}

// retryable: transport failures, 429 and 5xx.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == http.StatusTooManyRequests || apiErr.StatusCode >= 500
	}
	return errors.Is(err, errs.ErrNetwork)
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// backoffDelay is the wait before retry number attempt (1-based). A 429
// with a positive Retry-After in seconds overrides the exponential step.
func (c *Client) backoffDelay(attempt int, lastErr error) time.Duration {
	var apiErr *APIError
	if errors.As(lastErr, &apiErr) && apiErr.retryAfter != "" {
		if secs, err := strconv.Atoi(apiErr.retryAfter); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return c.backoffBase << (attempt - 1)
}

// StatusCode returns the HTTP status of an *APIError in err's chain, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
