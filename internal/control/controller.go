package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/viant/scenario/client/sdk"
	"github.com/viant/scenario/internal/component"
	"github.com/viant/scenario/internal/job"
	"github.com/viant/scenario/internal/message"
	"github.com/viant/scenario/internal/obs"
)

// Backend issues the out-of-band job requests.
type Backend interface {
	Cancel(ctx context.Context, requestID string) error
	Retry(ctx context.Context, requestID, messageType string) error
}

// Target is the local job state reconciled by the controller.
type Target interface {
	MarkLoading(id component.ID) error
	MarkError(id component.ID, reason string) error
	Stop()
}

// Detached is the Target of jobs this process does not follow; it records
// nothing and stops nothing.
type Detached struct{}

func (Detached) MarkLoading(id component.ID) error { return nil }

func (Detached) MarkError(id component.ID, reason string) error { return nil }

func (Detached) Stop() {}

// Controller retries single components and cancels whole jobs.
type Controller struct {
	backend Backend
	target  Target
	logger  *slog.Logger
	metrics obs.Metrics
}

// Option customizes a Controller.
type Option func(c *Controller)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m obs.Metrics) Option {
	return func(c *Controller) { c.metrics = obs.Or(m) }
}

// New creates a controller.
func New(backend Backend, target Target, opts ...Option) *Controller {
	c := &Controller{backend: backend, target: target, logger: slog.Default(), metrics: obs.NoopMetrics{}}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// RetryComponent moves id to loading and asks the backend to regenerate it.
// Other components are left untouched. On request failure id is moved back
// to error and a RETRY_FAILED error is returned; on success it stays loading
// until its data message arrives. An unknown id fails before any request.
func (c *Controller) RetryComponent(ctx context.Context, jobID string, id component.ID) error {
	if _, err := component.Parse(string(id)); err != nil {
		return err
	}
	if err := c.target.MarkLoading(id); err != nil {
		return err
	}
	if err := c.backend.Retry(ctx, jobID, message.DataType(string(id))); err != nil {
		reason := "retry failed: " + err.Error()
		if markErr := c.target.MarkError(id, reason); markErr != nil {
			c.logger.Warn("failed to record retry failure", "component", id, "error", markErr)
		}
		c.metrics.Inc(obs.RequestsTotal, map[string]string{"operation": "retry", "outcome": "failed"}, 1)
		c.logger.Warn("component retry failed", "job", jobID, "component", id, "error", err)
		return job.NewError(job.CodeRetryFailed, fmt.Sprintf("failed to retry %s", id), err)
	}
	c.metrics.Inc(obs.RequestsTotal, map[string]string{"operation": "retry", "outcome": "ok"}, 1)
	c.logger.Info("component retry requested", "job", jobID, "component", id)
	return nil
}

// Cancel notifies the backend, then stops the local session regardless of
// the notification outcome. A failed notification is returned as a
// CANCEL_NOTIFY_FAILED error after the local cleanup.
func (c *Controller) Cancel(ctx context.Context, jobID string) error {
	var ret error
	if jobID != "" {
		if err := c.backend.Cancel(ctx, jobID); err != nil {
			c.metrics.Inc(obs.RequestsTotal, map[string]string{"operation": "cancel", "outcome": "failed"}, 1)
			c.logger.Warn("failed to notify cancel", "job", jobID, "error", err)
			ret = job.NewError(job.CodeCancelNotifyFailed, "failed to notify cancel", err)
		} else {
			c.metrics.Inc(obs.RequestsTotal, map[string]string{"operation": "cancel", "outcome": "ok"}, 1)
		}
	}
	c.target.Stop()
	return ret
}

// Remote adapts the REST client to Backend.
type Remote struct {
	Client *sdk.Client
}

// Cancel implements Backend.
func (r *Remote) Cancel(ctx context.Context, requestID string) error {
	_, err := r.Client.Cancel(ctx, requestID)
	return err
}

// Retry implements Backend.
func (r *Remote) Retry(ctx context.Context, requestID, messageType string) error {
	return r.Client.Retry(ctx, requestID, messageType)
}
