package demo

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/viant/scenario/internal/job"
	"github.com/viant/scenario/internal/message"
)

// Backend stands in for the retry and cancel endpoints in demo mode. A retry
// redelivers the scripted artifact of the component through the dispatcher
// after the retry delay; a cancel drops pending redeliveries.
type Backend struct {
	dispatcher job.Dispatcher
	artifacts  map[string]*message.Message
	clock      clockwork.Clock
	delay      time.Duration
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string]clockwork.Timer
	stopped bool
}

// NewBackend creates a backend redelivering the data entries of script to d.
func NewBackend(d job.Dispatcher, script []Entry, opts ...Option) *Backend {
	o := newOptions(opts)
	if len(script) == 0 {
		script = DefaultScript()
	}
	b := &Backend{
		dispatcher: d,
		artifacts:  map[string]*message.Message{},
		clock:      o.clock,
		delay:      o.delay,
		logger:     o.logger,
		pending:    map[string]clockwork.Timer{},
	}
	for i := range script {
		m, err := script[i].Message()
		if err != nil || !m.IsData() {
			continue
		}
		m.Error = ""
		b.artifacts[m.Type] = m
	}
	return b
}

// Retry schedules the redelivery of messageType.
func (b *Backend) Retry(ctx context.Context, requestID, messageType string) error {
	m, ok := b.artifacts[messageType]
	if !ok {
		return fmt.Errorf("demo backend has no artifact for %s", messageType)
	}
	key := requestID + "/" + messageType
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return fmt.Errorf("demo job %s is no longer active", requestID)
	}
	if t, ok := b.pending[key]; ok {
		t.Stop()
	}
	var timer clockwork.Timer
	timer = b.clock.AfterFunc(b.delay, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if b.pending[key] != timer {
			return
		}
		delete(b.pending, key)
		b.logger.Debug("redelivering demo artifact", "requestId", requestID, "messageType", messageType)
		b.dispatcher.Dispatch(m)
	})
	b.pending[key] = timer
	return nil
}

// Cancel drops every pending redelivery.
func (b *Backend) Cancel(ctx context.Context, requestID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.drop()
	b.logger.Info("demo job cancelled", "requestId", requestID)
	return nil
}

// Stop drops every pending redelivery and rejects later retries. Once it
// returned no redelivery reaches the dispatcher.
func (b *Backend) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stopped = true
	b.drop()
}

func (b *Backend) drop() {
	for key, t := range b.pending {
		t.Stop()
		delete(b.pending, key)
	}
}

// Pending reports the number of scheduled redeliveries.
func (b *Backend) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}
