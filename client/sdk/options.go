package sdk

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// TokenProvider returns a bearer token for the request.
type TokenProvider func(ctx context.Context) (string, error)

// Option customizes the SDK client.
type Option func(c *Client)

// RetryPolicy controls REST request retry behavior. Stream requests are
// never retried.
type RetryPolicy struct {
	MaxAttempts     int
	InitialInterval time.Duration
	MaxInterval     time.Duration
	RetryStatuses   map[int]struct{}
	RetryMethods    map[string]struct{}
	RetryOnError    bool
}

// WithTimeout bounds every REST call; streams are bounded by their own
// timeout policy instead.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithTokenProvider supplies a bearer token provider.
func WithTokenProvider(tp TokenProvider) Option {
	return func(c *Client) {
		c.tokenProvider = tp
	}
}

// WithRetryPolicy sets a retry policy for requests.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(c *Client) {
		c.retry = p
	}
}

// WithResponseHook adds a hook executed after every response is received.
func WithResponseHook(hook func(*http.Response) error) Option {
	return func(c *Client) {
		c.responseHook = hook
	}
}

// WithHeader sets a static header on all requests.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		if c.headers == nil {
			c.headers = map[string]string{}
		}
		c.headers[key] = value
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}
