package log

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// EventType represents classification of an event.
type EventType string

const (
	SessionStarted   EventType = "SESSION_STARTED"
	SessionCompleted EventType = "SESSION_COMPLETED"
	SessionFailed    EventType = "SESSION_FAILED"
	SessionStopped   EventType = "SESSION_STOPPED"
	MessageReceived  EventType = "MESSAGE_RECEIVED"
	ProgressChanged  EventType = "PROGRESS_CHANGED"
	ComponentChanged EventType = "COMPONENT_CHANGED"
)

type Event struct {
	Time      time.Time   `json:"ts"`
	EventType EventType   `json:"eventtype"`
	JobID     string      `json:"jobId,omitempty"`
	Payload   interface{} `json:"p"`
}

// Collector collects events and fans them out to subscribers.
type Collector struct {
	mu     sync.RWMutex
	subs   []chan Event
	closed bool
}

// NewCollector creates an empty collector.
func NewCollector() *Collector {
	return &Collector{}
}

// Publish sends an event to all subscribers (non-blocking).
func (c *Collector) Publish(e Event) {
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, ch := range c.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Subscribe returns a receive-only channel for events. buf is channel size.
func (c *Collector) Subscribe(buf int) <-chan Event {
	ch := make(chan Event, buf)
	c.mu.Lock()
	if c.closed {
		close(ch)
	} else {
		c.subs = append(c.subs, ch)
	}
	c.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (c *Collector) Unsubscribe(sub <-chan Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, ch := range c.subs {
		if ch == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			close(ch)
			return
		}
	}
}

// Close closes every subscription; later subscriptions are closed immediately.
func (c *Collector) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for _, ch := range c.subs {
		close(ch)
	}
	c.subs = nil
}

// FileSink writes every event (JSON encoded) to w, filtering by event types if provided.
// The returned channel is closed once the collector is closed and all events were written.
func FileSink(c *Collector, w io.Writer, filters ...EventType) <-chan struct{} {
	want := map[EventType]bool{}
	for _, f := range filters {
		want[f] = true
	}
	done := make(chan struct{})
	events := c.Subscribe(100)
	go func() {
		defer close(done)
		enc := json.NewEncoder(w)
		for ev := range events {
			if len(want) > 0 && !want[ev.EventType] {
				continue
			}
			_ = enc.Encode(ev)
		}
	}()
	return done
}
