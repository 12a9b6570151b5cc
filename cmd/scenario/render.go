package scenario

import (
	"fmt"
	"io"

	"github.com/viant/scenario/internal/component"
	"github.com/viant/scenario/internal/log"
	"github.com/viant/scenario/internal/progress"
)

// render prints a one-line summary of ev.
func render(w io.Writer, ev log.Event) {
	switch payload := ev.Payload.(type) {
	case progress.Snapshot:
		done := 0
		for _, step := range payload.Steps {
			if step.State == progress.StateCompleted {
				done++
			}
		}
		line := fmt.Sprintf("[%s] %d/%d steps", payload.Current, done, len(payload.Steps))
		if payload.AnyFailed {
			line += ", failures"
		}
		if payload.CanViewResultsEarly && !payload.Completed {
			line += ", results available"
		}
		fmt.Fprintln(w, line)
	case component.Component:
		line := fmt.Sprintf("  %s: %s", payload.ID, payload.State)
		if payload.Error != "" {
			line += " (" + payload.Error + ")"
		}
		fmt.Fprintln(w, line)
	default:
		if ev.EventType == log.SessionFailed {
			fmt.Fprintf(w, "session failed: %v\n", ev.Payload)
		}
	}
}
