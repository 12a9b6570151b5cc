package message

import (
	"encoding/json"
	"errors"
	"strings"
)

var errMissingType = errors.New("messageType is required")

// DataPrefix marks messages that carry a finished artifact for one component.
const DataPrefix = "data_"

// Event is the lifecycle transition announced by a lifecycle message.
type Event string

const (
	// EventStarted is announced by "{step}_started".
	EventStarted Event = "started"
	// EventComplete is announced by "{step}_complete".
	EventComplete Event = "complete"
	// EventFailed is announced by "{step}_failed".
	EventFailed Event = "failed"
)

var lifecycleSuffixes = []struct {
	suffix string
	event  Event
}{
	{"_started", EventStarted},
	{"_complete", EventComplete},
	{"_failed", EventFailed},
}

// Family classifies a message by its messageType discriminator.
type Family string

const (
	FamilyLifecycle Family = "lifecycle"
	FamilyData      Family = "data"
	FamilyUnknown   Family = "unknown"
)

// Message is a single decoded stream record. Messages are immutable once
// decoded; Raw holds the whole record so that payload fields that are not
// nested under "payload" remain reachable.
type Message struct {
	Type    string          `json:"messageType"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   string          `json:"error,omitempty"`
	Raw     json.RawMessage `json:"-"`
}

// New builds a message from its type and an already encoded payload.
func New(messageType string, payload json.RawMessage) *Message {
	m := &Message{Type: messageType, Payload: payload}
	m.Raw, _ = json.Marshal(m)
	return m
}

// Parse decodes one JSON record.
func Parse(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if strings.TrimSpace(m.Type) == "" {
		return nil, errMissingType
	}
	m.Raw = append(json.RawMessage(nil), data...)
	return &m, nil
}

// IsData reports whether the message carries component data.
func (m *Message) IsData() bool {
	return m != nil && strings.HasPrefix(m.Type, DataPrefix)
}

// Family returns the message family.
func (m *Message) Family() Family {
	if m.IsData() {
		return FamilyData
	}
	if _, _, ok := m.Lifecycle(); ok {
		return FamilyLifecycle
	}
	return FamilyUnknown
}

// Component returns the component identifier of a data message.
func (m *Message) Component() (string, bool) {
	if !m.IsData() {
		return "", false
	}
	id := strings.TrimPrefix(m.Type, DataPrefix)
	return id, id != ""
}

// Lifecycle splits a lifecycle message type into step name and event.
func (m *Message) Lifecycle() (string, Event, bool) {
	if m == nil || m.IsData() {
		return "", "", false
	}
	for _, candidate := range lifecycleSuffixes {
		if step, ok := strings.CutSuffix(m.Type, candidate.suffix); ok && step != "" {
			return step, candidate.event, true
		}
	}
	return "", "", false
}

// Data returns the artifact payload: the nested "payload" field when present,
// otherwise the whole record.
func (m *Message) Data() json.RawMessage {
	if m == nil {
		return nil
	}
	if len(m.Payload) > 0 && string(m.Payload) != "null" {
		return m.Payload
	}
	return m.Raw
}

// DataType returns the data message type for a component identifier.
func DataType(component string) string {
	return DataPrefix + component
}

// LifecycleType returns the lifecycle message type for a step and event.
func LifecycleType(step string, event Event) string {
	return step + "_" + string(event)
}
