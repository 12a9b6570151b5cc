package progress

// Phase is an ordered group of steps.
type Phase int

const (
	Preprocessing Phase = iota
	Simulating
	Postprocessing
)

var phaseNames = [...]string{"preprocessing", "simulating", "postprocessing"}

func (p Phase) String() string {
	if p < 0 || int(p) >= len(phaseNames) {
		return "unknown"
	}
	return phaseNames[p]
}

// Previous returns the phase displayed before p.
func (p Phase) Previous() (Phase, bool) {
	if p <= Preprocessing || p > Postprocessing {
		return 0, false
	}
	return p - 1, true
}

// MarshalText encodes the phase by name.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Phases returns all phases in display order.
func Phases() []Phase {
	return []Phase{Preprocessing, Simulating, Postprocessing}
}

// State is the lifecycle state of one step.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// Definition declares a step and the phase it belongs to.
type Definition struct {
	Name  string
	Phase Phase
}

// Step is the current state of one step.
type Step struct {
	Name  string `json:"name"`
	Phase Phase  `json:"phase"`
	State State  `json:"state"`
}

// Step names announced by the simulation backend.
const (
	StepPopulation     = "preprocessing_population"
	StepNetwork        = "preprocessing_network"
	StepDemand         = "preprocessing_demand"
	StepConfiguration  = "preprocessing_configuration"
	StepSimulation     = "simulation"
	StepOverview       = "postprocessing_overview"
	StepEmissions      = "postprocessing_emissions"
	StepPeopleResponse = "postprocessing_people_response"
	StepTripLegs       = "postprocessing_trip_legs"
)

// DefaultSteps returns the steps of a scenario simulation job in display order.
func DefaultSteps() []Definition {
	return []Definition{
		{Name: StepPopulation, Phase: Preprocessing},
		{Name: StepNetwork, Phase: Preprocessing},
		{Name: StepDemand, Phase: Preprocessing},
		{Name: StepConfiguration, Phase: Preprocessing},
		{Name: StepSimulation, Phase: Simulating},
		{Name: StepOverview, Phase: Postprocessing},
		{Name: StepEmissions, Phase: Postprocessing},
		{Name: StepPeopleResponse, Phase: Postprocessing},
		{Name: StepTripLegs, Phase: Postprocessing},
	}
}

// PhaseView summarises one phase for display.
type PhaseView struct {
	Phase     Phase `json:"phase"`
	Completed bool  `json:"completed"`
	Expanded  bool  `json:"expanded"`
}

// Snapshot is a read-only copy of the tracker handed to consumers.
type Snapshot struct {
	Steps               []Step      `json:"steps"`
	Phases              []PhaseView `json:"phases"`
	Current             Phase       `json:"current"`
	AnyFailed           bool        `json:"anyFailed"`
	CanViewResultsEarly bool        `json:"canViewResultsEarly"`
	Completed           bool        `json:"completed"`
	Frozen              bool        `json:"frozen"`
}
