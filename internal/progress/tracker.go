package progress

import (
	"errors"
	"fmt"

	"github.com/viant/scenario/internal/message"
)

var (
	// ErrUnknownStep is returned for lifecycle messages naming a step the tracker does not define.
	ErrUnknownStep = errors.New("unknown step")
	// ErrInvalidTransition is returned when a lifecycle event does not apply to the step's state.
	ErrInvalidTransition = errors.New("invalid step transition")
	// ErrFrozen is returned while the tracker is frozen after a job-level failure.
	ErrFrozen = errors.New("progress is frozen")
)

// Tracker is the phase/step state machine of one job. It is not safe for
// concurrent use; the job dispatcher owns it.
type Tracker struct {
	steps  []*Step
	index  map[string]*Step
	frozen bool
}

// New creates a tracker over the supplied step definitions, or DefaultSteps
// when none are given. Every step starts pending.
func New(defs ...Definition) *Tracker {
	if len(defs) == 0 {
		defs = DefaultSteps()
	}
	t := &Tracker{index: make(map[string]*Step, len(defs))}
	for _, def := range defs {
		if _, ok := t.index[def.Name]; ok {
			continue
		}
		step := &Step{Name: def.Name, Phase: def.Phase, State: StatePending}
		t.steps = append(t.steps, step)
		t.index[def.Name] = step
	}
	return t
}

// Apply moves a step according to a lifecycle event.
func (t *Tracker) Apply(name string, event message.Event) error {
	if t.frozen {
		return ErrFrozen
	}
	step, ok := t.index[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStep, name)
	}
	next, ok := transition(step.State, event)
	if !ok {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, name, step.State, event)
	}
	step.State = next
	return nil
}

func transition(from State, event message.Event) (State, bool) {
	switch event {
	case message.EventStarted:
		switch from {
		case StatePending, StateInProgress:
			return StateInProgress, true
		}
	case message.EventComplete:
		switch from {
		case StatePending, StateInProgress, StateCompleted:
			return StateCompleted, true
		}
	case message.EventFailed:
		switch from {
		case StatePending, StateInProgress, StateFailed:
			return StateFailed, true
		}
	}
	return from, false
}

// Step returns a copy of the named step.
func (t *Tracker) Step(name string) (Step, bool) {
	step, ok := t.index[name]
	if !ok {
		return Step{}, false
	}
	return *step, true
}

// AllCompleted reports whether every step of phase is completed. A phase
// without steps is complete.
func (t *Tracker) AllCompleted(phase Phase) bool {
	for _, step := range t.steps {
		if step.Phase == phase && step.State != StateCompleted {
			return false
		}
	}
	return true
}

// AnyFailed reports whether any step failed.
func (t *Tracker) AnyFailed() bool {
	for _, step := range t.steps {
		if step.State == StateFailed {
			return true
		}
	}
	return false
}

// CanViewResultsEarly reports whether any postprocessing step completed,
// which lets consumers open results before the whole job finishes.
func (t *Tracker) CanViewResultsEarly() bool {
	for _, step := range t.steps {
		if step.Phase == Postprocessing && step.State == StateCompleted {
			return true
		}
	}
	return false
}

// Completed reports whether every step completed.
func (t *Tracker) Completed() bool {
	for _, phase := range Phases() {
		if !t.AllCompleted(phase) {
			return false
		}
	}
	return true
}

// Expanded reports whether phase is displayed expanded: the first phase
// always is, later ones once every step of the preceding phase completed.
func (t *Tracker) Expanded(phase Phase) bool {
	prev, ok := phase.Previous()
	if !ok {
		return true
	}
	return t.Expanded(prev) && t.AllCompleted(prev)
}

// Current returns the first phase that is not fully completed, or the last
// phase when everything completed.
func (t *Tracker) Current() Phase {
	for _, phase := range Phases() {
		if !t.AllCompleted(phase) {
			return phase
		}
	}
	return Postprocessing
}

// Freeze stops the tracker from accepting further transitions.
func (t *Tracker) Freeze() { t.frozen = true }

// Frozen reports whether the tracker is frozen.
func (t *Tracker) Frozen() bool { return t.frozen }

// Reset returns every step to pending and unfreezes the tracker.
func (t *Tracker) Reset() {
	t.frozen = false
	for _, step := range t.steps {
		step.State = StatePending
	}
}

// Snapshot returns an immutable copy of the tracker state.
func (t *Tracker) Snapshot() Snapshot {
	ret := Snapshot{
		Steps:               make([]Step, 0, len(t.steps)),
		Current:             t.Current(),
		AnyFailed:           t.AnyFailed(),
		CanViewResultsEarly: t.CanViewResultsEarly(),
		Completed:           t.Completed(),
		Frozen:              t.frozen,
	}
	for _, step := range t.steps {
		ret.Steps = append(ret.Steps, *step)
	}
	for _, phase := range Phases() {
		ret.Phases = append(ret.Phases, PhaseView{
			Phase:     phase,
			Completed: t.AllCompleted(phase),
			Expanded:  t.Expanded(phase),
		})
	}
	return ret
}
