package demo

import (
	"time"

	"github.com/viant/scenario/internal/component"
	"github.com/viant/scenario/internal/job"
	"github.com/viant/scenario/internal/message"
	"github.com/viant/scenario/internal/progress"
)

// DefaultRetryDelay is the redelivery delay of the demo backend.
const DefaultRetryDelay = 1500 * time.Millisecond

type object = map[string]interface{}

// payloads holds the canned artifact of every component.
var payloads = map[component.ID]interface{}{
	component.TextOverview: object{
		"title": "Scenario overview",
		"text":  "Closing the inner ring to through traffic shifts 12% of car trips to public transport and cycling.",
	},
	component.TextEmissions: object{
		"text": "CO2 emissions inside the zone drop by 18%, NOx by 22%.",
	},
	component.ChartBarEmissions: object{
		"labels":   []string{"CO2", "NOx", "PM10"},
		"baseline": []float64{1240.5, 8.3, 1.2},
		"scenario": []float64{1017.2, 6.5, 1.0},
	},
	component.ChartLineEmissions: object{
		"hours":    []int{6, 9, 12, 15, 18, 21},
		"baseline": []float64{80.1, 190.4, 120.8, 140.2, 210.7, 90.3},
		"scenario": []float64{70.5, 150.2, 101.6, 118.9, 169.0, 80.1},
	},
	component.TextPeopleResponse: object{
		"text": "Most affected agents reroute; 7% switch mode and 2% cancel their trip.",
	},
	component.ChartBarPeopleResponse: object{
		"labels": []string{"reroute", "mode_switch", "cancel", "unchanged"},
		"values": []int{4210, 1180, 305, 11203},
	},
	component.ChartStackedPeopleResponse: object{
		"modes":    []string{"car", "pt", "bike", "walk"},
		"baseline": []int{7120, 5230, 2010, 2538},
		"scenario": []int{6010, 6002, 2490, 2396},
	},
	component.TableTripLegs: object{
		"columns": []string{"agent", "mode", "from", "to", "duration_s"},
		"rows": [][]interface{}{
			{"a-104", "car", "home", "work", 1260},
			{"a-104", "walk", "work", "lunch", 420},
			{"a-221", "pt", "home", "school", 1810},
		},
	},
	component.MapTripLegs: object{
		"type": "FeatureCollection",
		"features": []object{
			{
				"type":       "Feature",
				"properties": object{"agent": "a-104", "mode": "car"},
				"geometry":   object{"type": "LineString", "coordinates": [][]float64{{2.3488, 48.8534}, {2.3622, 48.8675}}},
			},
		},
	},
}

// DefaultScript returns the built-in timeline: every step of every phase in
// order, with the artifacts of each postprocessing step delivered before the
// step completes.
func DefaultScript() []Entry {
	var entries []Entry
	bindings := job.DefaultBindings()
	lifecycle := func(step string, event message.Event, delay time.Duration) {
		entries = append(entries, Entry{Event: message.LifecycleType(step, event), Delay: delay})
	}
	for _, def := range progress.DefaultSteps() {
		lifecycle(def.Name, message.EventStarted, 400*time.Millisecond)
		for _, id := range bindings[def.Name] {
			entries = append(entries, Entry{Event: message.DataType(string(id)), Delay: 600 * time.Millisecond, Payload: payloads[id]})
		}
		delay := 800 * time.Millisecond
		if def.Name == progress.StepSimulation {
			delay = 3 * time.Second
		}
		lifecycle(def.Name, message.EventComplete, delay)
	}
	return entries
}
