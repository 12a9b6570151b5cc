package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/viant/afs"
	"github.com/viant/scenario/client/sdk"
	"github.com/viant/scenario/internal/component"
	"github.com/viant/scenario/internal/config"
	"github.com/viant/scenario/internal/control"
	"github.com/viant/scenario/internal/demo"
	"github.com/viant/scenario/internal/job"
	"github.com/viant/scenario/internal/log"
	"github.com/viant/scenario/internal/obs"
	"github.com/viant/scenario/internal/progress"
	"github.com/viant/scenario/internal/session"
	"github.com/viant/scy"
)

// Service exposes job operations (stream, demo, retry, cancel, queries) that
// are decoupled from any particular user-interface.
type Service struct {
	config  *config.Config
	fs      afs.Service
	secrets *scy.Service
	logger  *slog.Logger
	metrics obs.Metrics
	clock   clockwork.Clock
	client  *sdk.Client
	job     *job.Job

	mu         sync.Mutex
	jobID      string
	controller *control.Controller
	backend    *demo.Backend
	cleanup    func()
}

// Option customizes a Service.
type Option func(s *Service)

// WithLogger sets the logger shared by every component.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m obs.Metrics) Option {
	return func(s *Service) { s.metrics = obs.Or(m) }
}

// WithClock sets the clock driving timeouts and demo playback.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithFS sets the storage service used to load demo scripts.
func WithFS(fs afs.Service) Option {
	return func(s *Service) { s.fs = fs }
}

// WithSecrets sets the secret service resolving the bearer token.
func WithSecrets(svc *scy.Service) Option {
	return func(s *Service) { s.secrets = svc }
}

// WithClient overrides the REST client built from config.
func WithClient(client *sdk.Client) Option {
	return func(s *Service) { s.client = client }
}

// New creates a service for cfg; a nil cfg uses defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.Default()
	}
	s := &Service{config: cfg, logger: slog.Default(), metrics: obs.NoopMetrics{}, clock: clockwork.NewRealClock()}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	if s.fs == nil {
		s.fs = afs.New()
	}
	if s.client == nil {
		s.client = sdk.New(cfg.BaseURL, s.clientOptions()...)
	}
	s.job = job.New(job.WithLogger(s.logger), job.WithMetrics(s.metrics), job.WithClock(s.clock))
	s.controller = s.newController(&control.Remote{Client: s.client})
	return s
}

func (s *Service) clientOptions() []sdk.Option {
	ret := []sdk.Option{
		sdk.WithRetryPolicy(s.config.RetryPolicy()),
		sdk.WithTimeout(s.config.Retry.Timeout),
		sdk.WithTokenProvider(s.config.TokenProvider(s.secrets)),
		sdk.WithLogger(s.logger),
		sdk.WithResponseHook(func(resp *http.Response) error {
			s.metrics.Inc(obs.ResponsesTotal, map[string]string{
				"method": resp.Request.Method,
				"status": strconv.Itoa(resp.StatusCode),
			}, 1)
			return nil
		}),
	}
	for key, value := range s.config.Headers {
		ret = append(ret, sdk.WithHeader(key, value))
	}
	return ret
}

func (s *Service) newController(backend control.Backend) *control.Controller {
	return s.controllerFor(backend, s.job)
}

func (s *Service) controllerFor(backend control.Backend, target control.Target) *control.Controller {
	return control.New(backend, target, control.WithLogger(s.logger), control.WithMetrics(s.metrics))
}

// StartStream opens a live stream for payload under a fresh request id and
// returns that id. Any previous session is torn down first.
func (s *Service) StartStream(ctx context.Context, payload interface{}, cb job.Callbacks) (string, error) {
	requestID := uuid.NewString()
	src := session.New(s.client, s.config.StreamRequest(requestID, payload),
		session.WithTimeouts(s.config.Timeouts),
		session.WithClock(s.clock),
		session.WithLogger(s.logger),
		session.WithMetrics(s.metrics),
	)
	return requestID, s.start(ctx, requestID, src, s.newController(&control.Remote{Client: s.client}), nil, cb)
}

// StartDemo plays entries, or the configured script, or the built-in
// timeline, and wires retry and cancel to the demo backend.
func (s *Service) StartDemo(ctx context.Context, entries []demo.Entry, cb job.Callbacks) (string, error) {
	if len(entries) == 0 && s.config.Demo.ScriptURL != "" {
		var err error
		if entries, err = demo.Load(ctx, s.fs, s.config.Demo.ScriptURL); err != nil {
			return "", err
		}
	}
	opts := []demo.Option{
		demo.WithClock(s.clock),
		demo.WithLogger(s.logger),
		demo.WithRetryDelay(s.config.Demo.RetryDelay),
	}
	script := demo.NewScript(entries, opts...)
	backend := demo.NewBackend(s.job, script.Entries(), opts...)
	requestID := "demo-" + uuid.NewString()
	return requestID, s.start(ctx, requestID, script, s.newController(backend), backend, cb)
}

// start replaces the current job. Redeliveries scheduled by a previous demo
// job are dropped before the job state is reset.
func (s *Service) start(ctx context.Context, requestID string, src job.Source, ctrl *control.Controller, backend *demo.Backend, cb job.Callbacks) error {
	s.mu.Lock()
	previous := s.backend
	s.backend = nil
	s.mu.Unlock()
	if previous != nil {
		previous.Stop()
	}
	cleanup, err := s.job.Start(ctx, requestID, src, cb)
	if err != nil {
		if backend != nil {
			backend.Stop()
		}
		return err
	}
	s.mu.Lock()
	s.jobID = requestID
	s.controller = ctrl
	s.backend = backend
	s.cleanup = cleanup
	s.mu.Unlock()
	s.logger.Info("job started", "job", requestID, "source", src.Name())
	return nil
}

func (s *Service) current() (string, *control.Controller) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobID, s.controller
}

// JobID returns the request id of the latest job.
func (s *Service) JobID() string {
	id, _ := s.current()
	return id
}

// RetryComponent retries one component of the current job.
func (s *Service) RetryComponent(ctx context.Context, id component.ID) error {
	jobID, ctrl := s.current()
	if jobID == "" {
		return fmt.Errorf("no job started")
	}
	return ctrl.RetryComponent(ctx, jobID, id)
}

// Cancel cancels the current job.
func (s *Service) Cancel(ctx context.Context) error {
	jobID, ctrl := s.current()
	return ctrl.Cancel(ctx, jobID)
}

// RetryRemote retries a component of a job this process did not start. The
// local job is left untouched.
func (s *Service) RetryRemote(ctx context.Context, jobID string, id component.ID) error {
	return s.controllerFor(&control.Remote{Client: s.client}, control.Detached{}).RetryComponent(ctx, jobID, id)
}

// CancelRemote cancels a job this process did not start.
func (s *Service) CancelRemote(ctx context.Context, jobID string) error {
	return s.controllerFor(&control.Remote{Client: s.client}, control.Detached{}).Cancel(ctx, jobID)
}

// Stop tears down the current session without notifying the backend.
func (s *Service) Stop() {
	s.mu.Lock()
	cleanup := s.cleanup
	s.cleanup = nil
	s.mu.Unlock()
	if cleanup != nil {
		cleanup()
	}
}

// Progress returns the current progress snapshot.
func (s *Service) Progress() progress.Snapshot { return s.job.Progress() }

// Components returns every component in display order.
func (s *Service) Components() []component.Component { return s.job.Components() }

// Component returns a single component.
func (s *Service) Component(id component.ID) (component.Component, error) {
	return s.job.Component(id)
}

// Snapshot returns the full job view.
func (s *Service) Snapshot() job.Snapshot { return s.job.Snapshot() }

// Subscribe returns a job event channel with buffer buf.
func (s *Service) Subscribe(buf int) <-chan log.Event { return s.job.Subscribe(buf) }

// Unsubscribe releases a channel returned by Subscribe.
func (s *Service) Unsubscribe(ch <-chan log.Event) { s.job.Unsubscribe(ch) }

// Events exposes the job event collector.
func (s *Service) Events() *log.Collector { return s.job.Events() }

// Close stops the current session, drops pending demo redeliveries and
// releases the job.
func (s *Service) Close() {
	s.Stop()
	s.mu.Lock()
	backend := s.backend
	s.backend = nil
	s.mu.Unlock()
	if backend != nil {
		backend.Stop()
	}
	s.job.Close()
}
