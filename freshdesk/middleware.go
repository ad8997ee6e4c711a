package freshdesk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog"
)

// Request describes one GET against the API
type Request struct {
	URL    string
	Params url.Values
}

// FullURL returns the request URL with its query string
func (r *Request) FullURL() string {
	if len(r.Params) == 0 {
		return r.URL
	}
	sep := "?"
	if strings.Contains(r.URL, "?") {
		sep = "&"
	}
	return r.URL + sep + r.Params.Encode()
}

// Response is a fully read HTTP response
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Sender performs a single logical call.
type Sender func(ctx context.Context, req *Request) (*Response, error)

// Middleware wraps a Sender with additional behaviour.
type Middleware func(next Sender) Sender

// Chain wraps s with mws. The first middleware is the outermost one.
func Chain(s Sender, mws ...Middleware) Sender {
	for i := len(mws) - 1; i >= 0; i-- {
		s = mws[i](s)
	}
	return s
}

// WithRateLimit acquires the limiter before every call that reaches next.
func WithRateLimit(limiter *RateLimiter) Middleware {
	return func(next Sender) Sender {
		return func(ctx context.Context, req *Request) (*Response, error) {
			if err := limiter.Acquire(ctx); err != nil {
				return nil, err
			}
			return next(ctx, req)
		}
	}
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// WithRetryAfter reissues the request whenever the server answers with a
// Retry-After header, sleeping for the advertised delay first. At most
// maxWaits such waits happen per call; after that the response is passed on
// unchanged. These waits do not count against the backoff budget.
func WithRetryAfter(maxWaits int, sleep SleepFunc, logger zerolog.Logger) Middleware {
	if sleep == nil {
		sleep = sleepContext
	}
	return func(next Sender) Sender {
		return func(ctx context.Context, req *Request) (*Response, error) {
			for waits := 0; ; waits++ {
				resp, err := next(ctx, req)
				if err != nil {
					return nil, err
				}

				delay, ok := retryAfter(resp.Header)
				if !ok {
					return resp, nil
				}
				if waits >= maxWaits {
					logger.Warn().
						Int("waits", waits).
						Int("status", resp.StatusCode).
						Msg("Retry-After budget exhausted")
					return resp, nil
				}

				logger.Info().
					Dur("retry_after", delay).
					Msgf("Rate limit reached. Sleeping for %d seconds", int(delay.Seconds()))
				if err := sleep(ctx, delay); err != nil {
					return nil, err
				}
			}
		}
	}
}

// retryAfter parses a Retry-After header given in seconds or as an HTTP date.
func retryAfter(header http.Header) (time.Duration, bool) {
	if header == nil {
		return 0, false
	}
	values, present := header[http.CanonicalHeaderKey("Retry-After")]
	if !present || len(values) == 0 {
		return 0, false
	}

	value := strings.TrimSpace(values[0])
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds < 0 {
			seconds = 0
		}
		return time.Duration(seconds) * time.Second, true
	}
	if parsed, err := http.ParseTime(value); err == nil {
		d := time.Until(parsed)
		if d < 0 {
			d = 0
		}
		return d, true
	}
	return 0, false
}

// WithClassification turns every non-200 response into a classified *Error.
func WithClassification() Middleware {
	return func(next Sender) Sender {
		return func(ctx context.Context, req *Request) (*Response, error) {
			resp, err := next(ctx, req)
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusOK {
				return nil, ClassifyResponse(resp.StatusCode, resp.Body)
			}
			return resp, nil
		}
	}
}

// BackoffPolicy configures exponential backoff on transient failures.
type BackoffPolicy struct {
	// Attempts is the total number of tries, including the first one.
	Attempts uint
	// Base is the delay before the second try. It doubles after every failure.
	Base time.Duration
}

// DefaultBackoffPolicy waits 2, 4, 8 and 16 seconds between five attempts.
var DefaultBackoffPolicy = BackoffPolicy{
	Attempts: 5,
	Base:     2 * time.Second,
}

// WithBackoff retries calls failing with a retryable error. Anything else,
// including every 4xx, is returned straight away.
func WithBackoff(policy BackoffPolicy, logger zerolog.Logger) Middleware {
	if policy.Attempts == 0 {
		policy.Attempts = 1
	}
	return func(next Sender) Sender {
		return func(ctx context.Context, req *Request) (*Response, error) {
			var resp *Response
			err := retry.Do(
				func() error {
					r, err := next(ctx, req)
					if err != nil {
						return err
					}
					resp = r
					return nil
				},
				retry.Context(ctx),
				retry.Attempts(policy.Attempts),
				retry.Delay(policy.Base),
				retry.DelayType(retry.BackOffDelay),
				retry.LastErrorOnly(true),
				retry.RetryIf(IsRetryable),
				retry.OnRetry(func(n uint, err error) {
					logger.Warn().
						Err(err).
						Uint("attempt", n+1).
						Uint("max_attempts", policy.Attempts).
						Str("url", req.URL).
						Msg("Request failed")
				}),
			)
			if err != nil {
				return nil, err
			}
			return resp, nil
		}
	}
}
