package demo

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/afs"
	"github.com/viant/scenario/internal/component"
	"github.com/viant/scenario/internal/job"
	"github.com/viant/scenario/internal/message"
	"github.com/viant/scenario/internal/progress"
)

func waitTimer(t *testing.T, clock *clockwork.FakeClock) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}

func TestScriptPlaysTimeline(t *testing.T) {
	clock := clockwork.NewFakeClock()
	j := job.New(job.WithClock(clock))
	defer j.Close()

	entries := []Entry{
		{Event: "postprocessing_overview_started", Delay: time.Second},
		{Event: "data_text_overview", Delay: 2 * time.Second, Payload: map[string]interface{}{"text": "ok"}},
		{Event: "data_map_trip_legs", Delay: time.Second, Error: "no geometry"},
		{Event: "postprocessing_overview_complete", Delay: time.Second},
	}
	done := make(chan struct{})
	var delivered []string
	_, err := j.Start(context.Background(), "demo-1", NewScript(entries, WithClock(clock)), job.Callbacks{
		OnMessage:  func(m *message.Message) { delivered = append(delivered, m.Type) },
		OnComplete: func() { close(done) },
	})
	require.NoError(t, err)

	for _, entry := range entries {
		waitTimer(t, clock)
		clock.Advance(entry.Delay)
	}
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("script did not complete")
	}

	assert.Equal(t, []string{
		"postprocessing_overview_started",
		"data_text_overview",
		"data_map_trip_legs",
		"postprocessing_overview_complete",
	}, delivered)
	overview, err := j.Component(component.TextOverview)
	require.NoError(t, err)
	assert.Equal(t, component.StateSuccess, overview.State)
	assert.JSONEq(t, `{"text":"ok"}`, string(overview.Data))
	legs, err := j.Component(component.MapTripLegs)
	require.NoError(t, err)
	assert.Equal(t, component.StateError, legs.State)
	assert.Equal(t, "no geometry", legs.Error)
	assert.True(t, j.Progress().CanViewResultsEarly)
	assert.False(t, j.Snapshot().Running)
}

func TestScriptCleanupAndCancel(t *testing.T) {
	t.Run("cleanup stops delivery", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		j := job.New(job.WithClock(clock))
		defer j.Close()
		cleanup, err := j.Start(context.Background(), "demo-2", NewScript(nil, WithClock(clock)), job.Callbacks{
			OnComplete: func() { t.Error("unexpected completion") },
			OnError:    func(*job.Error) { t.Error("unexpected error") },
		})
		require.NoError(t, err)
		waitTimer(t, clock)
		cleanup()
		cleanup()
		clock.Advance(time.Hour)
		for _, step := range j.Progress().Steps {
			assert.Equal(t, progress.StatePending, step.State)
		}
	})

	t.Run("context cancellation reports error", func(t *testing.T) {
		clock := clockwork.NewFakeClock()
		j := job.New(job.WithClock(clock))
		defer j.Close()
		ctx, cancel := context.WithCancel(context.Background())
		errs := make(chan *job.Error, 1)
		_, err := j.Start(ctx, "demo-3", NewScript(nil, WithClock(clock)), job.Callbacks{
			OnError: func(e *job.Error) { errs <- e },
		})
		require.NoError(t, err)
		cancel()
		select {
		case e := <-errs:
			assert.Equal(t, job.CodeStreamError, e.Code)
		case <-time.After(time.Second):
			t.Fatal("expected error")
		}
	})
}

func TestDefaultScript(t *testing.T) {
	entries := DefaultScript()
	var data, lifecycle int
	for i := range entries {
		m, err := entries[i].Message()
		require.NoError(t, err)
		if m.IsData() {
			data++
			continue
		}
		lifecycle++
	}
	assert.Equal(t, len(component.All()), data)
	assert.Equal(t, 2*len(progress.DefaultSteps()), lifecycle)
	assert.Equal(t, "preprocessing_population_started", entries[0].Event)
	assert.Equal(t, "postprocessing_trip_legs_complete", entries[len(entries)-1].Event)
}

func TestLoad(t *testing.T) {
	fs := afs.New()
	ctx := context.Background()

	var testCases = []struct {
		description string
		content     string
		expectErr   bool
		expect      []Entry
	}{
		{
			description: "valid script",
			content: `entries:
  - event: simulation_started
    delay: 250ms
  - event: data_text_overview
    delay: 1s
    payload:
      text: hello
`,
			expect: []Entry{
				{Event: "simulation_started", Delay: 250 * time.Millisecond},
				{Event: "data_text_overview", Delay: time.Second, Payload: map[string]interface{}{"text": "hello"}},
			},
		},
		{description: "empty script", content: "entries: []\n", expectErr: true},
		{description: "missing event", content: "entries:\n  - delay: 1s\n", expectErr: true},
		{description: "negative delay", content: "entries:\n  - event: a_started\n    delay: -1s\n", expectErr: true},
		{description: "invalid yaml", content: "entries: [", expectErr: true},
	}
	for i, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			URL := fmt.Sprintf("mem://localhost/demo/script%d.yaml", i)
			require.NoError(t, fs.Upload(ctx, URL, 0o644, strings.NewReader(testCase.content)))
			entries, err := Load(ctx, fs, URL)
			if testCase.expectErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.EqualValues(t, testCase.expect, entries)
		})
	}

	_, err := Load(ctx, nil, "mem://localhost/demo/missing.yaml")
	assert.Error(t, err)
}

func TestBackendRetryRedelivers(t *testing.T) {
	clock := clockwork.NewFakeClock()
	j := job.New(job.WithClock(clock))
	defer j.Close()
	backend := NewBackend(j, nil, WithClock(clock), WithRetryDelay(time.Second))

	require.NoError(t, j.MarkLoading(component.ChartBarEmissions))
	require.NoError(t, backend.Retry(context.Background(), "demo-4", "data_chart_bar_emissions"))
	require.NoError(t, backend.Retry(context.Background(), "demo-4", "data_chart_bar_emissions"))
	assert.Equal(t, 1, backend.Pending())
	assert.Error(t, backend.Retry(context.Background(), "demo-4", "data_unknown"))

	waitTimer(t, clock)
	clock.Advance(time.Second)
	assert.Eventually(t, func() bool {
		c, err := j.Component(component.ChartBarEmissions)
		return err == nil && c.State == component.StateSuccess
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, backend.Pending())
}

func TestBackendCancelDropsPending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	j := job.New(job.WithClock(clock))
	defer j.Close()
	backend := NewBackend(j, nil, WithClock(clock))

	require.NoError(t, backend.Retry(context.Background(), "demo-5", "data_text_overview"))
	require.NoError(t, backend.Cancel(context.Background(), "demo-5"))
	assert.Equal(t, 0, backend.Pending())
	clock.Advance(time.Minute)
	time.Sleep(10 * time.Millisecond)
	c, err := j.Component(component.TextOverview)
	require.NoError(t, err)
	assert.Equal(t, component.StateInactive, c.State)
}

func TestBackendStop(t *testing.T) {
	clock := clockwork.NewFakeClock()
	j := job.New(job.WithClock(clock))
	defer j.Close()
	backend := NewBackend(j, nil, WithClock(clock))

	require.NoError(t, backend.Retry(context.Background(), "demo-6", "data_text_overview"))
	waitTimer(t, clock)
	backend.Stop()
	assert.Equal(t, 0, backend.Pending())
	assert.Error(t, backend.Retry(context.Background(), "demo-6", "data_text_overview"))

	clock.Advance(time.Minute)
	assert.Never(t, func() bool {
		c, _ := j.Component(component.TextOverview)
		return c.State != component.StateInactive
	}, 50*time.Millisecond, 5*time.Millisecond)
}
