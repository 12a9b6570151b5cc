package job

import (
	"github.com/viant/scenario/internal/component"
	"github.com/viant/scenario/internal/progress"
)

// Bindings maps a step to the components it produces.
type Bindings map[string][]component.ID

// DefaultBindings returns the postprocessing step to component mapping.
func DefaultBindings() Bindings {
	return Bindings{
		progress.StepOverview: {component.TextOverview},
		progress.StepEmissions: {
			component.TextEmissions,
			component.ChartBarEmissions,
			component.ChartLineEmissions,
		},
		progress.StepPeopleResponse: {
			component.TextPeopleResponse,
			component.ChartBarPeopleResponse,
			component.ChartStackedPeopleResponse,
		},
		progress.StepTripLegs: {
			component.TableTripLegs,
			component.MapTripLegs,
		},
	}
}

// Step returns the step producing id.
func (b Bindings) Step(id component.ID) (string, bool) {
	for step, ids := range b {
		for _, candidate := range ids {
			if candidate == id {
				return step, true
			}
		}
	}
	return "", false
}
