package obs

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "scenario"

// Prometheus exports the stream client counters as prometheus counter vectors.
// Names outside the declared set are ignored; missing labels are reported as
// empty strings.
type Prometheus struct {
	counters map[string]*counter
}

type counter struct {
	vec    *prometheus.CounterVec
	labels []string
}

// NewPrometheus creates and registers the counters with reg. A nil reg
// leaves the counters unregistered.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{counters: map[string]*counter{}}
	defs := []struct {
		name   string
		help   string
		labels []string
	}{
		{MessagesTotal, "Total number of dispatched stream messages", []string{"family"}},
		{ParseErrorsTotal, "Total number of discarded malformed stream records", nil},
		{TimeoutsTotal, "Total number of fired session timeouts", []string{"code"}},
		{ComponentTransitionsTotal, "Total number of component state transitions", []string{"component", "state"}},
		{SessionsTotal, "Total number of finished sessions", []string{"source", "outcome"}},
		{RequestsTotal, "Total number of retry and cancel requests", []string{"operation", "outcome"}},
		{ResponsesTotal, "Total number of HTTP responses received", []string{"method", "status"}},
	}
	for _, def := range defs {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      def.name,
			Help:      def.help,
		}, def.labels)
		if reg != nil {
			if err := reg.Register(vec); err != nil {
				return nil, err
			}
		}
		p.counters[def.name] = &counter{vec: vec, labels: def.labels}
	}
	return p, nil
}

// Inc adds delta to the named counter.
func (p *Prometheus) Inc(name string, labels map[string]string, delta int64) {
	c, ok := p.counters[name]
	if !ok || delta < 0 {
		return
	}
	values := make([]string, len(c.labels))
	for i, label := range c.labels {
		values[i] = labels[label]
	}
	c.vec.WithLabelValues(values...).Add(float64(delta))
}

// Counter returns the underlying vector for name.
func (p *Prometheus) Counter(name string) (*prometheus.CounterVec, bool) {
	c, ok := p.counters[name]
	if !ok {
		return nil, false
	}
	return c.vec, true
}
