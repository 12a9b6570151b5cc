package demo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/viant/afs"
	"github.com/viant/scenario/internal/job"
	"github.com/viant/scenario/internal/message"
	"gopkg.in/yaml.v3"
)

// Entry is one scripted message, played Delay after the previous entry.
type Entry struct {
	Event   string        `yaml:"event" json:"event"`
	Delay   time.Duration `yaml:"delay" json:"delay"`
	Payload interface{}   `yaml:"payload,omitempty" json:"payload,omitempty"`
	Error   string        `yaml:"error,omitempty" json:"error,omitempty"`
}

// Message builds the message delivered for e.
func (e *Entry) Message() (*message.Message, error) {
	if strings.TrimSpace(e.Event) == "" {
		return nil, fmt.Errorf("demo entry event is required")
	}
	if e.Delay < 0 {
		return nil, fmt.Errorf("demo entry %s: negative delay", e.Event)
	}
	var payload json.RawMessage
	if e.Payload != nil {
		data, err := json.Marshal(e.Payload)
		if err != nil {
			return nil, fmt.Errorf("demo entry %s: invalid payload: %w", e.Event, err)
		}
		payload = data
	}
	m := message.New(e.Event, payload)
	m.Error = e.Error
	return m, nil
}

type document struct {
	Entries []Entry `yaml:"entries"`
}

// Load reads a YAML timeline from URL (any afs supported location).
func Load(ctx context.Context, fs afs.Service, URL string) ([]Entry, error) {
	if fs == nil {
		fs = afs.New()
	}
	data, err := fs.DownloadWithURL(ctx, URL)
	if err != nil {
		return nil, fmt.Errorf("failed to load demo script %s: %w", URL, err)
	}
	return Parse(data)
}

// Parse decodes a YAML timeline.
func Parse(data []byte) ([]Entry, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode demo script: %w", err)
	}
	if len(doc.Entries) == 0 {
		return nil, fmt.Errorf("demo script has no entries")
	}
	for i := range doc.Entries {
		if _, err := doc.Entries[i].Message(); err != nil {
			return nil, err
		}
	}
	return doc.Entries, nil
}

// Script is the job.Source replaying a timeline on a clock. It feeds the
// dispatcher exactly like a live stream, so consumers cannot tell the two
// apart.
type Script struct {
	entries []Entry
	clock   clockwork.Clock
	logger  *slog.Logger
}

// Option customizes a Script or a Backend.
type Option func(o *options)

type options struct {
	clock  clockwork.Clock
	logger *slog.Logger
	delay  time.Duration
}

// WithClock sets the clock driving the timeline.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithRetryDelay sets how long the backend waits before redelivering a
// retried component.
func WithRetryDelay(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.delay = d
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{clock: clockwork.NewRealClock(), logger: slog.Default(), delay: DefaultRetryDelay}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}
	return o
}

// NewScript creates a script source; DefaultScript is used when entries is
// empty.
func NewScript(entries []Entry, opts ...Option) *Script {
	o := newOptions(opts)
	if len(entries) == 0 {
		entries = DefaultScript()
	}
	return &Script{entries: entries, clock: o.clock, logger: o.logger}
}

// Name implements job.Source.
func (s *Script) Name() string { return "demo" }

// Entries returns the timeline.
func (s *Script) Entries() []Entry { return s.entries }

// Start resets d and plays the timeline. Completion is reported once the
// last entry was delivered.
func (s *Script) Start(ctx context.Context, d job.Dispatcher, cb job.Callbacks) (func(), error) {
	messages := make([]*message.Message, len(s.entries))
	for i := range s.entries {
		m, err := s.entries[i].Message()
		if err != nil {
			return nil, err
		}
		messages[i] = m
	}
	d.Reset()
	h := job.NewHandle(nil)
	go func() {
		defer h.Exit()
		for i, m := range messages {
			timer := s.clock.NewTimer(s.entries[i].Delay)
			select {
			case <-h.Stopping():
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				h.Finish(func() {
					if cb.OnError != nil {
						cb.OnError(job.NewError(job.CodeStreamError, "demo aborted", ctx.Err()))
					}
				})
				return
			case <-timer.Chan():
			}
			if h.Stopped() {
				return
			}
			d.Dispatch(m)
			h.Deliver(func() {
				if cb.OnMessage != nil {
					cb.OnMessage(m)
				}
			})
		}
		s.logger.Debug("demo script finished", "entries", len(messages))
		h.Finish(cb.OnComplete)
	}()
	return h.Cleanup, nil
}
