// Package freshdesk provides the HTTP client used to read from the Freshdesk v2 API.
//
// Every call goes through a fixed middleware chain:
//
//	WithBackoff(WithClassification(WithRetryAfter(WithRateLimit(send))))
//
// so that each attempt waits for the rate limiter, Retry-After answers are
// honoured transparently, non-200 responses are classified, and transient
// failures are retried with exponential backoff.
//
// # Usage
//
//	logger := zerolog.New(os.Stderr)
//	client, err := freshdesk.Open(ctx, freshdesk.Config{
//		Domain: "acme",
//		APIKey: "your-api-key",
//	}, logger)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
//	tickets, err := client.Get(ctx, "tickets", url.Values{"per_page": {"100"}, "page": {"1"}})
//
// # Error Handling
//
// Failures are returned as *Error carrying a Kind. Use errors.Is with the
// sentinel errors to branch on them:
//
//	if errors.Is(err, freshdesk.ErrAuthentication) {
//		// bad API key
//	}
//
// ErrServer5xx matches both plain 500s and any other 5xx status. Network
// failures and 5xx responses are retried up to five attempts; every other
// kind is returned immediately.
package freshdesk
