package freshdesk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/go-cleanhttp"
	"github.com/rs/zerolog"
)

const (
	baseURLFormat = "https://%s.freshdesk.com"
	apiPath       = "/api/v2/"

	// DefaultRequestTimeout applies when no request_timeout is configured
	DefaultRequestTimeout = 300 * time.Second
	// DefaultMaxRetryAfter bounds the Retry-After waits of one call
	DefaultMaxRetryAfter = 10
)

// Config holds the connection settings of a Client
type Config struct {
	// Domain is the Freshdesk subdomain, "acme" for acme.freshdesk.com.
	Domain string
	APIKey string
	// RequestTimeout is the raw configured value in seconds. Empty means
	// DefaultRequestTimeout.
	RequestTimeout string
	UserAgent      string
}

// Client performs authenticated, rate limited GETs against the Freshdesk API.
// A Client owns one pooled HTTP session for its lifetime; call Close when done.
type Client struct {
	baseURL    string
	apiKey     string
	userAgent  string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *RateLimiter
	send       Sender
	logger     zerolog.Logger
}

// NewClient creates a new Freshdesk client. It validates the configuration but
// makes no network call; use Open or ValidateCredential before syncing.
func NewClient(cfg Config, logger zerolog.Logger, opts ...Option) (*Client, error) {
	domain := strings.TrimSuffix(strings.TrimSpace(cfg.Domain), ".freshdesk.com")
	if domain == "" {
		return nil, configError("freshdesk domain is required")
	}
	if cfg.APIKey == "" {
		return nil, configError("freshdesk API key is required")
	}

	timeout, err := ParseTimeout(cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	baseURL := o.baseURL
	if baseURL == "" {
		baseURL = fmt.Sprintf(baseURLFormat, domain)
	}

	httpClient := o.httpClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
	}
	httpClient.Timeout = timeout

	limiter := o.limiter
	if limiter == nil {
		limiter = NewRateLimiter(DefaultRateLimit, DefaultRateInterval)
	}

	c := &Client{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		userAgent:  cfg.UserAgent,
		timeout:    timeout,
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}

	c.send = Chain(c.rawSend,
		WithBackoff(o.backoff, logger),
		WithClassification(),
		WithRetryAfter(o.maxRetryAfter, o.sleep, logger),
		WithRateLimit(limiter),
	)

	return c, nil
}

// Open creates a client and validates its credential. The session is released
// again if validation fails.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger, opts ...Option) (*Client, error) {
	c, err := NewClient(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}

	if err := c.ValidateCredential(ctx); err != nil {
		c.Close()
		return nil, err
	}

	return c, nil
}

// WithSession opens a validated client, runs fn with it and always closes the
// session afterwards.
func WithSession(ctx context.Context, cfg Config, logger zerolog.Logger, fn func(*Client) error, opts ...Option) error {
	c, err := Open(ctx, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}

// ParseTimeout converts a configured request_timeout in seconds. Empty input
// yields DefaultRequestTimeout; anything that is not a non-zero decimal number
// is a configuration error.
func ParseTimeout(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultRequestTimeout, nil
	}

	invalid := configError("The entered timeout is invalid, it should be a valid none-zero integer.")
	if !isDecimal(raw) {
		return 0, invalid
	}

	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds == 0 {
		return 0, invalid
	}

	// durations outside (0, MaxInt64] would disable the session timeout
	if seconds > math.MaxInt64/float64(time.Second) {
		return 0, invalid
	}
	d := time.Duration(seconds * float64(time.Second))
	if d <= 0 {
		return 0, invalid
	}
	return d, nil
}

// isDecimal accepts digits with at most one dot
func isDecimal(s string) bool {
	digits := strings.Replace(s, ".", "", 1)
	if digits == "" {
		return false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// BaseURL returns the tenant base URL
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Timeout returns the per-request timeout
func (c *Client) Timeout() time.Duration {
	return c.timeout
}

// ValidateCredential issues a one-row probe so that a bad API key fails at
// startup rather than on the first sync call.
func (c *Client) ValidateCredential(ctx context.Context) error {
	params := url.Values{
		"per_page": {"1"},
		"page":     {"1"},
	}
	if _, err := c.Get(ctx, "roles", params); err != nil {
		return fmt.Errorf("failed to validate Freshdesk credential: %w", err)
	}

	c.logger.Debug().Str("base_url", c.baseURL).Msg("Freshdesk credential validated")
	return nil
}

// Get requests an API resource such as "tickets" or "tickets/42/conversations".
func (c *Client) Get(ctx context.Context, resource string, params url.Values) (any, error) {
	return c.Request(ctx, c.ResourceURL(resource), params)
}

// ResourceURL returns the absolute URL of an API resource
func (c *Client) ResourceURL(resource string) string {
	return c.baseURL + apiPath + strings.TrimLeft(resource, "/")
}

// Request performs one logical GET and returns the decoded JSON body. Non-200
// responses surface as *Error; no partial payload is returned on failure.
func (c *Client) Request(ctx context.Context, rawURL string, params url.Values) (any, error) {
	resp, err := c.send(ctx, &Request{URL: rawURL, Params: params})
	if err != nil {
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(resp.Body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s: %w", rawURL, err)
	}

	return payload, nil
}

// Close releases the pooled connections of the session
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}

// rawSend issues exactly one GET
func (c *Client) rawSend(ctx context.Context, req *Request) (*Response, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.FullURL(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.SetBasicAuth(c.apiKey, "")
	httpReq.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	c.logger.Info().Msgf("GET %s", httpReq.URL.String())

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
