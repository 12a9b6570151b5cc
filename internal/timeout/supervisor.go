package timeout

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

const (
	// DefaultConnection bounds the wait for the stream response to begin.
	DefaultConnection = 30 * time.Second
	// DefaultHeartbeat bounds the silence between two messages.
	DefaultHeartbeat = 35 * time.Second
	// Universal bounds the silence between two data messages. It is not configurable.
	Universal = 300 * time.Second
)

// Kind names one of the supervised timers.
type Kind int

const (
	KindConnection Kind = iota
	KindHeartbeat
	KindUniversal
	kindCount
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindHeartbeat:
		return "heartbeat"
	case KindUniversal:
		return "universal"
	}
	return "unknown"
}

// Config holds the configurable durations.
type Config struct {
	Connection time.Duration `yaml:"connection"`
	Heartbeat  time.Duration `yaml:"heartbeat"`
}

// Init fills zero durations with defaults.
func (c *Config) Init() {
	if c.Connection <= 0 {
		c.Connection = DefaultConnection
	}
	if c.Heartbeat <= 0 {
		c.Heartbeat = DefaultHeartbeat
	}
}

// Expiry reports that a timer fired. Expiries of timers that were re-armed
// or stopped after firing are stale; Accept filters them.
type Expiry struct {
	Kind       Kind
	generation uint64
}

// Supervisor owns the connection, heartbeat and universal timers of one
// stream session. Arm, reset and Accept must be called from the goroutine
// that owns the session; expiries are delivered on Expired.
type Supervisor struct {
	clock      clockwork.Clock
	durations  [kindCount]time.Duration
	timers     [kindCount]clockwork.Timer
	generation [kindCount]uint64
	connected  bool
	expired    chan Expiry
	quit       chan struct{}
	stopOnce   sync.Once
}

// New creates an idle supervisor.
func New(clock clockwork.Clock, cfg Config) *Supervisor {
	cfg.Init()
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	s := &Supervisor{
		clock:   clock,
		expired: make(chan Expiry),
		quit:    make(chan struct{}),
	}
	s.durations[KindConnection] = cfg.Connection
	s.durations[KindHeartbeat] = cfg.Heartbeat
	s.durations[KindUniversal] = Universal
	return s
}

// Expired delivers timer expiries.
func (s *Supervisor) Expired() <-chan Expiry {
	return s.expired
}

// Duration returns the configured duration of kind.
func (s *Supervisor) Duration(kind Kind) time.Duration {
	return s.durations[kind]
}

// Start arms the connection timer.
func (s *Supervisor) Start() {
	s.arm(KindConnection)
}

// Connected permanently disarms the connection timer and arms the heartbeat
// and universal timers. Only the first call has effect.
func (s *Supervisor) Connected() {
	if s.connected {
		return
	}
	s.connected = true
	s.disarm(KindConnection)
	s.arm(KindHeartbeat)
	s.arm(KindUniversal)
}

// Observe records a decoded message: the heartbeat timer is always reset,
// the universal timer only for data messages.
func (s *Supervisor) Observe(data bool) {
	if !s.connected {
		return
	}
	s.arm(KindHeartbeat)
	if data {
		s.arm(KindUniversal)
	}
}

// Accept reports whether e belongs to the currently armed timer of its kind.
func (s *Supervisor) Accept(e Expiry) bool {
	return s.timers[e.Kind] != nil && s.generation[e.Kind] == e.generation
}

// Stop disarms every timer. It is safe to call more than once.
func (s *Supervisor) Stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	for kind := Kind(0); kind < kindCount; kind++ {
		s.disarm(kind)
	}
}

func (s *Supervisor) arm(kind Kind) {
	select {
	case <-s.quit:
		return
	default:
	}
	s.disarm(kind)
	s.generation[kind]++
	e := Expiry{Kind: kind, generation: s.generation[kind]}
	s.timers[kind] = s.clock.AfterFunc(s.durations[kind], func() {
		select {
		case s.expired <- e:
		case <-s.quit:
		}
	})
}

func (s *Supervisor) disarm(kind Kind) {
	if t := s.timers[kind]; t != nil {
		t.Stop()
		s.timers[kind] = nil
	}
}
