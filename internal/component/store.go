package component

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrUnknown is returned when a component identifier is not registered.
var ErrUnknown = errors.New("unknown component")

// Setter is the transition surface of one component.
type Setter interface {
	SetLoading()
	SetSuccess(data json.RawMessage)
	SetError(message string)
}

// Component holds the lifecycle of one output artifact. Data is set only in
// StateSuccess and Error only in StateError.
type Component struct {
	ID        ID              `json:"id"`
	State     State           `json:"state"`
	Data      json.RawMessage `json:"data,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updatedAt,omitempty"`

	now func() time.Time
}

// SetLoading moves the component to loading and clears any error.
func (c *Component) SetLoading() {
	c.set(StateLoading, nil, "")
}

// SetSuccess stores data and moves the component to success.
func (c *Component) SetSuccess(data json.RawMessage) {
	c.set(StateSuccess, append(json.RawMessage(nil), data...), "")
}

// SetError records message and moves the component to error.
func (c *Component) SetError(message string) {
	if message == "" {
		message = "failed to load " + string(c.ID)
	}
	c.set(StateError, nil, message)
}

func (c *Component) set(state State, data json.RawMessage, message string) {
	c.State = state
	c.Data = data
	c.Error = message
	if c.now != nil {
		c.UpdatedAt = c.now()
	}
}

func (c *Component) reset() {
	c.State = StateInactive
	c.Data = nil
	c.Error = ""
	c.UpdatedAt = time.Time{}
}

// Store keeps one Component per registered identifier. It is not safe for
// concurrent use; the job dispatcher owns it.
type Store struct {
	order []ID
	byID  map[ID]*Component
}

// New creates a store for ids, or for All() when none are given. Every
// component starts inactive.
func New(now func() time.Time, ids ...ID) *Store {
	if len(ids) == 0 {
		ids = All()
	}
	s := &Store{byID: make(map[ID]*Component, len(ids))}
	for _, id := range ids {
		if _, ok := s.byID[id]; ok {
			continue
		}
		s.order = append(s.order, id)
		s.byID[id] = &Component{ID: id, State: StateInactive, now: now}
	}
	return s
}

// Lookup returns the setter for id.
func (s *Store) Lookup(id ID) (Setter, error) {
	c, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknown, id)
	}
	return c, nil
}

// Get returns a copy of the component.
func (s *Store) Get(id ID) (Component, bool) {
	c, ok := s.byID[id]
	if !ok {
		return Component{}, false
	}
	return c.clone(), true
}

// ResetAll returns every component to inactive.
func (s *Store) ResetAll() {
	for _, c := range s.byID {
		c.reset()
	}
}

// ExpirePending moves every component that is not in success to error and
// returns the affected identifiers.
func (s *Store) ExpirePending(message string) []ID {
	var expired []ID
	for _, id := range s.order {
		c := s.byID[id]
		if c.State == StateSuccess {
			continue
		}
		c.SetError(message)
		expired = append(expired, id)
	}
	return expired
}

// Snapshot returns copies of all components in registration order.
func (s *Store) Snapshot() []Component {
	ret := make([]Component, 0, len(s.order))
	for _, id := range s.order {
		ret = append(ret, s.byID[id].clone())
	}
	return ret
}

func (c *Component) clone() Component {
	ret := *c
	ret.Data = append(json.RawMessage(nil), c.Data...)
	ret.now = nil
	return ret
}
