package sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RequestIDHeader carries the client generated job identifier.
const RequestIDHeader = "X-Request-ID"

// Client is a minimal HTTP SDK for the scenario simulation REST and stream
// APIs.
type Client struct {
	baseURL       string
	http          *http.Client
	timeout       time.Duration
	tokenProvider TokenProvider
	headers       map[string]string
	retry         RetryPolicy
	responseHook  func(*http.Response) error
	logger        *slog.Logger
}

// New constructs a new SDK client.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{},
		logger:  slog.Default(),
	}
	c.retry = RetryPolicy{
		MaxAttempts:     1,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		RetryStatuses: map[int]struct{}{
			http.StatusTooManyRequests:    {},
			http.StatusBadGateway:         {},
			http.StatusServiceUnavailable: {},
			http.StatusGatewayTimeout:     {},
		},
		RetryMethods: map[string]struct{}{
			http.MethodGet:  {},
			http.MethodHead: {},
			http.MethodPost: {},
		},
		RetryOnError: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// OpenStream issues the stream request and returns the response body once
// the response headers arrived. A non-2xx response is returned as *HTTPError.
// The caller must close the body; cancelling ctx aborts the transfer.
func (c *Client) OpenStream(ctx context.Context, req *StreamRequest) (io.ReadCloser, error) {
	if req == nil || strings.TrimSpace(req.Path) == "" {
		return nil, fmt.Errorf("stream path is required")
	}
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodPost
	}
	var in interface{}
	switch method {
	case http.MethodPost:
		in = req.Payload
	case http.MethodGet:
	default:
		return nil, fmt.Errorf("unsupported stream method: %s", req.Method)
	}
	httpReq, err := c.newRequest(ctx, method, req.Path, in)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")
	if req.RequestID != "" {
		httpReq.Header.Set(RequestIDHeader, req.RequestID)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if c.responseHook != nil {
		if err := c.responseHook(resp); err != nil {
			resp.Body.Close()
			return nil, err
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(b))}
	}
	return resp.Body, nil
}

// Cancel asks the backend to stop the job identified by requestID.
func (c *Client) Cancel(ctx context.Context, requestID string) (*Envelope, error) {
	if strings.TrimSpace(requestID) == "" {
		return nil, fmt.Errorf("requestID is required")
	}
	return c.Do(ctx, http.MethodPost, "/scenario/cancel", &CancelRequest{RequestID: requestID}, nil)
}

// Retry asks the backend to regenerate the artifact delivered as
// messageType for the job identified by requestID.
func (c *Client) Retry(ctx context.Context, requestID, messageType string) error {
	if strings.TrimSpace(requestID) == "" {
		return fmt.Errorf("requestID is required")
	}
	if strings.TrimSpace(messageType) == "" {
		return fmt.Errorf("messageType is required")
	}
	uri := fmt.Sprintf("/%s/retry", url.PathEscape(requestID))
	_, err := c.Do(ctx, http.MethodPost, uri, &RetryRequest{MessageType: messageType}, nil)
	return err
}

// Do issues a REST call and decodes the {statusCode, message, payload,
// timestamp} envelope. A non-200 statusCode is returned as *StatusError.
// When out is set, the payload is decoded into it. Responses that are not
// enveloped are treated as the payload itself.
func (c *Client) Do(ctx context.Context, method, uri string, in, out interface{}) (*Envelope, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, method, uri, in, &raw); err != nil {
		return nil, err
	}
	env := &Envelope{StatusCode: http.StatusOK}
	if len(bytes.TrimSpace(raw)) > 0 {
		var probe map[string]json.RawMessage
		if json.Unmarshal(raw, &probe) == nil && probe["statusCode"] != nil {
			if err := json.Unmarshal(raw, env); err != nil {
				return nil, fmt.Errorf("failed to decode envelope: %w", err)
			}
		} else {
			env.Payload = raw
		}
	}
	if env.StatusCode != http.StatusOK {
		return env, &StatusError{StatusCode: env.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, out); err != nil {
			return env, fmt.Errorf("failed to decode payload: %w", err)
		}
	}
	return env, nil
}

func (c *Client) doJSON(ctx context.Context, method, uri string, in, out interface{}) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	operation := func() error {
		err := c.once(ctx, method, uri, in, out)
		if err == nil {
			return nil
		}
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			return err
		}
		if !c.shouldRetry(method, err) {
			return backoff.Permanent(err)
		}
		return err
	}
	notify := func(err error, next time.Duration) {
		c.logger.Debug("retrying request", "method", method, "uri", uri, "delay", next, "error", err)
	}
	return backoff.RetryNotify(operation, backoff.WithContext(c.backOff(), ctx), notify)
}

func (c *Client) backOff() backoff.BackOff {
	attempts := c.retry.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	initial := c.retry.InitialInterval
	if initial <= 0 {
		initial = 200 * time.Millisecond
	}
	maxInterval := c.retry.MaxInterval
	if maxInterval < initial {
		maxInterval = initial
	}
	b := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(initial),
		backoff.WithMaxInterval(maxInterval),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithMaxRetries(b, uint64(attempts-1))
}

func (c *Client) once(ctx context.Context, method, uri string, in, out interface{}) error {
	req, err := c.newRequest(ctx, method, uri, in)
	if err != nil {
		return backoff.Permanent(err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if c.responseHook != nil {
		if err := c.responseHook(resp); err != nil {
			return backoff.Permanent(err)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return &HTTPError{StatusCode: resp.StatusCode, Status: resp.Status, Body: strings.TrimSpace(string(b))}
	}
	if out == nil {
		return nil
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return backoff.Permanent(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, uri string, in interface{}) (*http.Request, error) {
	var body io.Reader
	if in != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(in); err != nil {
			return nil, err
		}
		body = buf
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, err
	}
	rel, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}
	full := base.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, full.String(), body)
	if err != nil {
		return nil, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	if c.tokenProvider != nil {
		tok, err := c.tokenProvider(ctx)
		if err != nil {
			return nil, err
		}
		if strings.TrimSpace(tok) != "" {
			req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(tok))
		}
	}
	return req, nil
}

func (c *Client) shouldRetry(method string, err error) bool {
	if c.retry.MaxAttempts <= 1 {
		return false
	}
	if _, ok := c.retry.RetryMethods[strings.ToUpper(method)]; !ok {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var herr *HTTPError
	if errors.As(err, &herr) {
		_, ok := c.retry.RetryStatuses[herr.StatusCode]
		return ok
	}
	return c.retry.RetryOnError
}
