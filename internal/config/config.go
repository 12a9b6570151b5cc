package config

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/viant/afs"
	"github.com/viant/scenario/client/sdk"
	"github.com/viant/scenario/internal/demo"
	"github.com/viant/scenario/internal/timeout"
	"gopkg.in/yaml.v3"
)

// Config holds the stream client settings.
type Config struct {
	BaseURL  string            `yaml:"baseURL"`
	Headers  map[string]string `yaml:"headers"`
	Stream   Stream            `yaml:"stream"`
	Timeouts timeout.Config    `yaml:"timeouts"`
	Retry    Retry             `yaml:"retry"`
	Auth     Auth              `yaml:"auth"`
	Demo     Demo              `yaml:"demo"`
	Log      Log               `yaml:"log"`
	Metrics  Metrics           `yaml:"metrics"`
}

// Stream locates the event stream endpoint.
type Stream struct {
	Path   string `yaml:"path"`
	Method string `yaml:"method"`
}

// Retry controls REST calls (cancel, retry, metadata). Timeout bounds each
// call including its retries; the stream is not affected.
type Retry struct {
	MaxAttempts     int           `yaml:"maxAttempts"`
	InitialInterval time.Duration `yaml:"initialInterval"`
	MaxInterval     time.Duration `yaml:"maxInterval"`
	Timeout         time.Duration `yaml:"timeout"`
}

// Auth points at the scy secret holding the bearer token.
type Auth struct {
	SecretURL string `yaml:"secretURL"`
	Key       string `yaml:"key"`
}

// Demo configures the scripted substitute.
type Demo struct {
	ScriptURL  string        `yaml:"scriptURL"`
	RetryDelay time.Duration `yaml:"retryDelay"`
}

// Log configures the slog handler.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Metrics configures the prometheus endpoint.
type Metrics struct {
	Addr string `yaml:"addr"`
}

const (
	DefaultBaseURL    = "http://localhost:8080"
	DefaultStreamPath = "/scenario/stream"

	DefaultRESTTimeout = 15 * time.Second
)

// Default returns a config with every default applied.
func Default() *Config {
	ret := &Config{}
	ret.Init()
	return ret
}

// Init fills zero values with defaults.
func (c *Config) Init() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.Stream.Path == "" {
		c.Stream.Path = DefaultStreamPath
	}
	if c.Stream.Method == "" {
		c.Stream.Method = http.MethodPost
	}
	c.Stream.Method = strings.ToUpper(c.Stream.Method)
	if c.Timeouts.Connection == 0 {
		c.Timeouts.Connection = timeout.DefaultConnection
	}
	if c.Timeouts.Heartbeat == 0 {
		c.Timeouts.Heartbeat = timeout.DefaultHeartbeat
	}
	if c.Retry.MaxAttempts == 0 {
		c.Retry.MaxAttempts = 3
	}
	if c.Retry.InitialInterval == 0 {
		c.Retry.InitialInterval = 200 * time.Millisecond
	}
	if c.Retry.MaxInterval == 0 {
		c.Retry.MaxInterval = 2 * time.Second
	}
	if c.Retry.Timeout == 0 {
		c.Retry.Timeout = DefaultRESTTimeout
	}
	if c.Demo.RetryDelay == 0 {
		c.Demo.RetryDelay = demo.DefaultRetryDelay
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Stream.Method {
	case http.MethodGet, http.MethodPost:
	default:
		return fmt.Errorf("invalid stream.method: %s", c.Stream.Method)
	}
	if c.Timeouts.Connection <= 0 || c.Timeouts.Heartbeat <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("invalid retry.maxAttempts: %d", c.Retry.MaxAttempts)
	}
	if c.Retry.Timeout < 0 {
		return fmt.Errorf("invalid retry.timeout: %s", c.Retry.Timeout)
	}
	if c.Demo.RetryDelay < 0 {
		return fmt.Errorf("invalid demo.retryDelay: %s", c.Demo.RetryDelay)
	}
	if _, err := c.Log.level(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log.format: %s", c.Log.Format)
	}
	if c.Auth.SecretURL == "" && c.Auth.Key != "" {
		return fmt.Errorf("auth.key requires auth.secretURL")
	}
	return nil
}

// Load reads a YAML config from URL, applies defaults and validates it.
func Load(ctx context.Context, fs afs.Service, URL string) (*Config, error) {
	if fs == nil {
		fs = afs.New()
	}
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", URL, err)
	}
	return Parse(data)
}

// Parse decodes a YAML config, applies defaults and validates it.
func Parse(data []byte) (*Config, error) {
	ret := &Config{}
	if err := yaml.Unmarshal(data, ret); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	ret.Init()
	if err := ret.Validate(); err != nil {
		return nil, err
	}
	return ret, nil
}

// StreamRequest builds the stream request for payload.
func (c *Config) StreamRequest(requestID string, payload interface{}) sdk.StreamRequest {
	return sdk.StreamRequest{
		Method:    c.Stream.Method,
		Path:      c.Stream.Path,
		Payload:   payload,
		RequestID: requestID,
	}
}

// RetryPolicy returns the REST retry policy; retried statuses and methods
// follow the client defaults.
func (c *Config) RetryPolicy() sdk.RetryPolicy {
	return sdk.RetryPolicy{
		MaxAttempts:     c.Retry.MaxAttempts,
		InitialInterval: c.Retry.InitialInterval,
		MaxInterval:     c.Retry.MaxInterval,
		RetryStatuses: map[int]struct{}{
			http.StatusTooManyRequests:    {},
			http.StatusBadGateway:         {},
			http.StatusServiceUnavailable: {},
			http.StatusGatewayTimeout:     {},
		},
		RetryMethods: map[string]struct{}{
			http.MethodGet:  {},
			http.MethodPost: {},
		},
		RetryOnError: true,
	}
}

func (l *Log) level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return 0, fmt.Errorf("invalid log.level: %s", l.Level)
	}
	return level, nil
}

// Logger builds the configured logger writing to w.
func (c *Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := c.Log.level()
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
