package component

import "fmt"

// ID identifies one independently loadable output artifact.
type ID string

const (
	TextOverview               ID = "text_overview"
	TextEmissions              ID = "text_emissions"
	ChartBarEmissions          ID = "chart_bar_emissions"
	ChartLineEmissions         ID = "chart_line_emissions"
	TextPeopleResponse         ID = "text_people_response"
	ChartBarPeopleResponse     ID = "chart_bar_people_response"
	ChartStackedPeopleResponse ID = "chart_stacked_people_response"
	TableTripLegs              ID = "table_trip_legs"
	MapTripLegs                ID = "map_trip_legs"
)

// All returns every component in display order.
func All() []ID {
	return []ID{
		TextOverview,
		TextEmissions,
		ChartBarEmissions,
		ChartLineEmissions,
		TextPeopleResponse,
		ChartBarPeopleResponse,
		ChartStackedPeopleResponse,
		TableTripLegs,
		MapTripLegs,
	}
}

// Parse validates a component identifier.
func Parse(value string) (ID, error) {
	for _, id := range All() {
		if string(id) == value {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrUnknown, value)
}

// State is the lifecycle state of a component.
type State string

const (
	StateInactive State = "inactive"
	StateLoading  State = "loading"
	StateSuccess  State = "success"
	StateError    State = "error"
)
