package job

import (
	"context"

	"github.com/viant/scenario/internal/component"
	"github.com/viant/scenario/internal/message"
)

// Dispatcher is the single entry point through which event sources mutate
// job state. Calls are applied in order, one at a time.
type Dispatcher interface {
	// Reset returns progress and every component to their initial state.
	Reset()
	// Dispatch routes a lifecycle message to the progress tracker and a data
	// message to its component.
	Dispatch(m *message.Message)
	// ExpirePending moves every component not in success to error.
	ExpirePending(reason string) []component.ID
}

// Callbacks receive the terminal outcome of a source. At most one of
// OnComplete and OnError is invoked, at most once, and never after the
// source's cleanup returned.
type Callbacks struct {
	OnMessage  func(m *message.Message)
	OnComplete func()
	OnError    func(err *Error)
}

// Source feeds a job: either a live stream session or a scripted timeline.
type Source interface {
	// Name identifies the source kind in logs and metrics.
	Name() string
	// Start begins delivery to d and returns the idempotent cleanup handle.
	Start(ctx context.Context, d Dispatcher, cb Callbacks) (cleanup func(), err error)
}
