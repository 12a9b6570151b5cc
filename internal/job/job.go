package job

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/viant/scenario/internal/component"
	"github.com/viant/scenario/internal/log"
	"github.com/viant/scenario/internal/message"
	"github.com/viant/scenario/internal/obs"
	"github.com/viant/scenario/internal/progress"
)

// ErrClosed is returned by operations on a closed job.
var ErrClosed = errors.New("job closed")

// Snapshot is a point-in-time copy of the job state.
type Snapshot struct {
	ID         string                `json:"id"`
	Source     string                `json:"source,omitempty"`
	Running    bool                  `json:"running"`
	Progress   progress.Snapshot     `json:"progress"`
	Components []component.Component `json:"components"`
	Failure    *Error                `json:"failure,omitempty"`
}

// Job owns the progress tracker and component store of one logical job and
// is the only writer of both. Every mutation and read is executed on a single
// actor goroutine, in submission order.
type Job struct {
	logger   *slog.Logger
	metrics  obs.Metrics
	clock    clockwork.Clock
	steps    []progress.Definition
	ids      []component.ID
	bindings Bindings
	events   *log.Collector

	cmds      chan command
	closed    chan struct{}
	loopDone  chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	active *active

	// owned by the actor goroutine
	tracker    *progress.Tracker
	components *component.Store
	id         string
	source     string
	running    bool
	seq        int
	failure    *Error
}

type active struct {
	cleanup func()
	once    sync.Once
}

type command struct {
	fn   func()
	done chan struct{}
}

// Option configures a Job.
type Option func(*Job)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(j *Job) {
		if logger != nil {
			j.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m obs.Metrics) Option {
	return func(j *Job) { j.metrics = obs.Or(m) }
}

// WithClock sets the clock used to stamp component and event updates.
func WithClock(clock clockwork.Clock) Option {
	return func(j *Job) {
		if clock != nil {
			j.clock = clock
		}
	}
}

// WithSteps overrides the tracked steps.
func WithSteps(defs ...progress.Definition) Option {
	return func(j *Job) { j.steps = defs }
}

// WithComponents overrides the tracked components.
func WithComponents(ids ...component.ID) Option {
	return func(j *Job) { j.ids = ids }
}

// WithBindings overrides the step to component mapping.
func WithBindings(b Bindings) Option {
	return func(j *Job) { j.bindings = b }
}

// New creates a job and starts its actor goroutine; Close releases it.
func New(opts ...Option) *Job {
	j := &Job{
		logger:   slog.Default(),
		metrics:  obs.NoopMetrics{},
		clock:    clockwork.NewRealClock(),
		bindings: DefaultBindings(),
		events:   log.NewCollector(),
		cmds:     make(chan command),
		closed:   make(chan struct{}),
		loopDone: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(j)
	}
	if len(j.steps) == 0 {
		j.steps = progress.DefaultSteps()
	}
	j.tracker = progress.New(j.steps...)
	j.components = component.New(j.clock.Now, j.ids...)
	go j.loop()
	return j
}

func (j *Job) loop() {
	defer close(j.loopDone)
	for {
		select {
		case cmd := <-j.cmds:
			cmd.fn()
			close(cmd.done)
		case <-j.closed:
			return
		}
	}
}

// do runs fn on the actor goroutine and waits for it. It reports false when
// the job is closed.
func (j *Job) do(fn func()) bool {
	done := make(chan struct{})
	select {
	case j.cmds <- command{fn: fn, done: done}:
	case <-j.closed:
		return false
	}
	<-done
	return true
}

// Start tears down the active source, if any, and starts src under id. The
// returned cleanup is idempotent.
func (j *Job) Start(ctx context.Context, id string, src Source, cb Callbacks) (func(), error) {
	j.Stop()
	name := src.Name()
	seq := 0
	if !j.do(func() {
		j.seq++
		seq = j.seq
		j.id = id
		j.source = name
		j.running = true
		j.failure = nil
		j.publish(log.SessionStarted, map[string]string{"source": name})
	}) {
		return nil, ErrClosed
	}
	wrapped := Callbacks{
		OnMessage: cb.OnMessage,
		OnComplete: func() {
			j.finish(seq, nil)
			if cb.OnComplete != nil {
				cb.OnComplete()
			}
		},
		OnError: func(err *Error) {
			j.finish(seq, err)
			if cb.OnError != nil {
				cb.OnError(err)
			}
		},
	}
	cleanup, err := src.Start(ctx, j, wrapped)
	if err != nil {
		j.finish(seq, NewError(CodeStreamError, "failed to start "+name, err))
		return nil, err
	}
	a := &active{cleanup: cleanup}
	j.mu.Lock()
	j.active = a
	j.mu.Unlock()
	return func() { j.stop(a) }, nil
}

func (j *Job) finish(seq int, err *Error) {
	j.do(func() {
		if seq != j.seq || !j.running {
			return
		}
		j.running = false
		outcome := "completed"
		eventType := log.SessionCompleted
		var payload interface{}
		if err != nil {
			j.failure = err
			j.tracker.Freeze()
			outcome = "failed"
			eventType = log.SessionFailed
			payload = err
			j.logger.Error("job failed", "job", j.id, "source", j.source, "code", err.Code, "error", err.Error())
		} else {
			j.logger.Info("job completed", "job", j.id, "source", j.source)
		}
		j.metrics.Inc(obs.SessionsTotal, map[string]string{"source": j.source, "outcome": outcome}, 1)
		j.publish(eventType, payload)
	})
}

// Stop cleans up the active source. It is a no-op without one.
func (j *Job) Stop() {
	j.mu.Lock()
	a := j.active
	j.mu.Unlock()
	if a != nil {
		j.stop(a)
	}
}

func (j *Job) stop(a *active) {
	j.mu.Lock()
	current := j.active == a
	if current {
		j.active = nil
	}
	j.mu.Unlock()
	a.once.Do(a.cleanup)
	if !current {
		return
	}
	j.do(func() {
		if !j.running {
			return
		}
		j.running = false
		j.metrics.Inc(obs.SessionsTotal, map[string]string{"source": j.source, "outcome": "stopped"}, 1)
		j.publish(log.SessionStopped, nil)
		j.logger.Info("job stopped", "job", j.id, "source", j.source)
	})
}

// Close stops the active source and the actor goroutine. Subscriptions are
// closed.
func (j *Job) Close() {
	j.Stop()
	j.closeOnce.Do(func() {
		close(j.closed)
		<-j.loopDone
		j.events.Close()
	})
}

// Reset returns progress and every component to their initial state.
func (j *Job) Reset() {
	j.do(func() {
		j.tracker.Reset()
		j.components.ResetAll()
		j.failure = nil
		j.publish(log.ProgressChanged, j.tracker.Snapshot())
	})
}

// Dispatch applies m to the tracker or the component store.
func (j *Job) Dispatch(m *message.Message) {
	if m == nil {
		return
	}
	j.do(func() { j.dispatch(m) })
}

func (j *Job) dispatch(m *message.Message) {
	family := m.Family()
	j.metrics.Inc(obs.MessagesTotal, map[string]string{"family": string(family)}, 1)
	j.publish(log.MessageReceived, map[string]string{"messageType": m.Type})
	switch family {
	case message.FamilyLifecycle:
		step, event, _ := m.Lifecycle()
		if err := j.tracker.Apply(step, event); err != nil {
			j.logger.Warn("ignoring lifecycle message", "job", j.id, "type", m.Type, "error", err)
			return
		}
		j.bind(step, event)
		j.publish(log.ProgressChanged, j.tracker.Snapshot())
	case message.FamilyData:
		name, _ := m.Component()
		id := component.ID(name)
		setter, err := j.components.Lookup(id)
		if err != nil {
			j.logger.Warn("ignoring data message", "job", j.id, "type", m.Type, "error", err)
			return
		}
		if m.Error != "" {
			setter.SetError(m.Error)
		} else {
			setter.SetSuccess(m.Data())
		}
		j.changed(id)
	default:
		j.logger.Warn("ignoring message", "job", j.id, "type", m.Type)
	}
}

// bind moves the components produced by step along with it.
func (j *Job) bind(step string, event message.Event) {
	for _, id := range j.bindings[step] {
		current, ok := j.components.Get(id)
		if !ok || current.State == component.StateSuccess {
			continue
		}
		setter, _ := j.components.Lookup(id)
		switch event {
		case message.EventStarted:
			if current.State == component.StateLoading {
				continue
			}
			setter.SetLoading()
		case message.EventFailed:
			setter.SetError(fmt.Sprintf("%s failed", step))
		default:
			continue
		}
		j.changed(id)
	}
}

// ExpirePending moves every component not in success to error.
func (j *Job) ExpirePending(reason string) []component.ID {
	var ids []component.ID
	j.do(func() {
		ids = j.components.ExpirePending(reason)
		for _, id := range ids {
			j.changed(id)
		}
	})
	return ids
}

// MarkLoading moves id to loading.
func (j *Job) MarkLoading(id component.ID) error {
	return j.mark(id, func(s component.Setter) { s.SetLoading() })
}

// MarkError moves id to error with reason.
func (j *Job) MarkError(id component.ID, reason string) error {
	return j.mark(id, func(s component.Setter) { s.SetError(reason) })
}

func (j *Job) mark(id component.ID, fn func(s component.Setter)) error {
	var err error
	if !j.do(func() {
		var setter component.Setter
		if setter, err = j.components.Lookup(id); err != nil {
			return
		}
		fn(setter)
		j.changed(id)
	}) {
		return ErrClosed
	}
	return err
}

func (j *Job) changed(id component.ID) {
	c, _ := j.components.Get(id)
	j.metrics.Inc(obs.ComponentTransitionsTotal, map[string]string{"component": string(id), "state": string(c.State)}, 1)
	j.publish(log.ComponentChanged, c)
}

func (j *Job) publish(eventType log.EventType, payload interface{}) {
	j.events.Publish(log.Event{Time: j.clock.Now().UTC(), EventType: eventType, JobID: j.id, Payload: payload})
}

// ID returns the identifier of the current (or last) job.
func (j *Job) ID() string {
	var id string
	j.do(func() { id = j.id })
	return id
}

// Progress returns the tracker snapshot.
func (j *Job) Progress() progress.Snapshot {
	var ret progress.Snapshot
	j.do(func() { ret = j.tracker.Snapshot() })
	return ret
}

// Components returns every component in display order.
func (j *Job) Components() []component.Component {
	var ret []component.Component
	j.do(func() { ret = j.components.Snapshot() })
	return ret
}

// Component returns one component.
func (j *Job) Component(id component.ID) (component.Component, error) {
	var ret component.Component
	var ok bool
	if !j.do(func() { ret, ok = j.components.Get(id) }) {
		return ret, ErrClosed
	}
	if !ok {
		return ret, fmt.Errorf("%w: %s", component.ErrUnknown, id)
	}
	return ret, nil
}

// Failure returns the error that terminated the last session, if any.
func (j *Job) Failure() *Error {
	var ret *Error
	j.do(func() { ret = j.failure })
	return ret
}

// Snapshot returns a copy of the whole job state.
func (j *Job) Snapshot() Snapshot {
	var ret Snapshot
	j.do(func() {
		ret = Snapshot{
			ID:         j.id,
			Source:     j.source,
			Running:    j.running,
			Progress:   j.tracker.Snapshot(),
			Components: j.components.Snapshot(),
			Failure:    j.failure,
		}
	})
	return ret
}

// Subscribe returns a channel of job events buffered with buf entries.
// Events are dropped when the subscriber falls behind.
func (j *Job) Subscribe(buf int) <-chan log.Event {
	return j.events.Subscribe(buf)
}

// Unsubscribe releases a channel returned by Subscribe.
func (j *Job) Unsubscribe(ch <-chan log.Event) {
	j.events.Unsubscribe(ch)
}

// Events exposes the underlying collector, e.g. for log.FileSink.
func (j *Job) Events() *log.Collector {
	return j.events
}
