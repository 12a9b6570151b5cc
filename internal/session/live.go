package session

import (
	"context"
	"io"
	"log/slog"

	"github.com/jonboulle/clockwork"
	"github.com/viant/scenario/client/sdk"
	"github.com/viant/scenario/internal/codec"
	"github.com/viant/scenario/internal/job"
	"github.com/viant/scenario/internal/obs"
	"github.com/viant/scenario/internal/timeout"
)

// Transport opens the event stream. *sdk.Client implements it.
type Transport interface {
	OpenStream(ctx context.Context, req *sdk.StreamRequest) (io.ReadCloser, error)
}

// Live is the job.Source backed by a live event stream. Every Start opens a
// new stream with a fresh decoder and timer set.
type Live struct {
	transport Transport
	request   sdk.StreamRequest
	timeouts  timeout.Config
	clock     clockwork.Clock
	logger    *slog.Logger
	metrics   obs.Metrics
	prefix    string
	bufSize   int
}

// Option customizes a Live source.
type Option func(l *Live)

// WithTimeouts sets the connection and heartbeat timeouts.
func WithTimeouts(cfg timeout.Config) Option {
	return func(l *Live) { l.timeouts = cfg }
}

// WithClock sets the clock driving the timeouts.
func WithClock(clock clockwork.Clock) Option {
	return func(l *Live) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Live) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m obs.Metrics) Option {
	return func(l *Live) { l.metrics = obs.Or(m) }
}

// WithPrefix overrides the stream record prefix.
func WithPrefix(prefix string) Option {
	return func(l *Live) { l.prefix = prefix }
}

// WithReadBuffer sets the transport read size.
func WithReadBuffer(size int) Option {
	return func(l *Live) {
		if size > 0 {
			l.bufSize = size
		}
	}
}

// New creates a live source issuing request through transport.
func New(transport Transport, request sdk.StreamRequest, opts ...Option) *Live {
	l := &Live{
		transport: transport,
		request:   request,
		clock:     clockwork.NewRealClock(),
		logger:    slog.Default(),
		metrics:   obs.NoopMetrics{},
		prefix:    codec.DefaultPrefix,
		bufSize:   32 * 1024,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	l.timeouts.Init()
	return l
}

// Name implements job.Source.
func (l *Live) Name() string { return "live" }

// Start resets d, arms the connection timer and opens the stream. It returns
// the idempotent cleanup of the new session.
func (l *Live) Start(ctx context.Context, d job.Dispatcher, cb job.Callbacks) (func(), error) {
	s := newStream(l, d, cb)
	s.start(ctx)
	return s.handle.Cleanup, nil
}
