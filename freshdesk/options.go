package freshdesk

import (
	"net/http"
	"strings"
)

// Option configures a Client.
type Option func(*clientOptions)

// clientOptions holds configuration options for the Client.
type clientOptions struct {
	baseURL       string
	httpClient    *http.Client
	limiter       *RateLimiter
	backoff       BackoffPolicy
	maxRetryAfter int
	sleep         SleepFunc
}

func defaultOptions() *clientOptions {
	return &clientOptions{
		backoff:       DefaultBackoffPolicy,
		maxRetryAfter: DefaultMaxRetryAfter,
		sleep:         sleepContext,
	}
}

// WithBaseURL overrides the https://<domain>.freshdesk.com base URL.
func WithBaseURL(baseURL string) Option {
	return func(o *clientOptions) {
		o.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the session used for every call. The configured request
// timeout is applied to it.
func WithHTTPClient(client *http.Client) Option {
	return func(o *clientOptions) {
		o.httpClient = client
	}
}

// WithRateLimiter replaces the default one call per two seconds limiter.
func WithRateLimiter(limiter *RateLimiter) Option {
	return func(o *clientOptions) {
		if limiter != nil {
			o.limiter = limiter
		}
	}
}

// WithBackoffPolicy sets the attempts and base delay for transient failures.
func WithBackoffPolicy(policy BackoffPolicy) Option {
	return func(o *clientOptions) {
		o.backoff = policy
	}
}

// WithMaxRetryAfter bounds the number of Retry-After waits per call.
func WithMaxRetryAfter(waits int) Option {
	return func(o *clientOptions) {
		if waits >= 0 {
			o.maxRetryAfter = waits
		}
	}
}

// WithSleep replaces the function used for Retry-After waits.
func WithSleep(sleep SleepFunc) Option {
	return func(o *clientOptions) {
		if sleep != nil {
			o.sleep = sleep
		}
	}
}
