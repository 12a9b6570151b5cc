package obs

// Metrics provides simple counter increments with string labels.
type Metrics interface {
	Inc(name string, labels map[string]string, delta int64)
}

// NoopMetrics is a Metrics that does nothing.
type NoopMetrics struct{}

func (NoopMetrics) Inc(name string, labels map[string]string, delta int64) {}

// Counter names emitted by the stream client.
const (
	// MessagesTotal counts dispatched messages; label "family".
	MessagesTotal = "messages_total"
	// ParseErrorsTotal counts discarded stream records.
	ParseErrorsTotal = "parse_errors_total"
	// TimeoutsTotal counts fired timeouts; label "code".
	TimeoutsTotal = "timeouts_total"
	// ComponentTransitionsTotal counts component state changes; labels "component", "state".
	ComponentTransitionsTotal = "component_transitions_total"
	// SessionsTotal counts finished sessions; labels "source", "outcome".
	SessionsTotal = "sessions_total"
	// RequestsTotal counts control requests; labels "operation", "outcome".
	RequestsTotal = "requests_total"
	// ResponsesTotal counts HTTP responses; labels "method", "status".
	ResponsesTotal = "responses_total"
)

// Or returns m, or NoopMetrics when m is nil.
func Or(m Metrics) Metrics {
	if m == nil {
		return NoopMetrics{}
	}
	return m
}
