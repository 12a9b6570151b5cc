package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/viant/scenario/client/sdk"
	"github.com/viant/scenario/internal/component"
	"github.com/viant/scenario/internal/job"
	"github.com/viant/scenario/internal/message"
	"github.com/viant/scenario/internal/progress"
	"github.com/viant/scenario/internal/timeout"
)

// pipeTransport hands out one side of a pipe once open is closed.
type pipeTransport struct {
	open   chan struct{}
	reader *io.PipeReader
	writer *io.PipeWriter
	ctx    atomic.Value
}

func newPipeTransport(opened bool) *pipeTransport {
	r, w := io.Pipe()
	p := &pipeTransport{open: make(chan struct{}), reader: r, writer: w}
	if opened {
		close(p.open)
	}
	return p
}

func (p *pipeTransport) OpenStream(ctx context.Context, req *sdk.StreamRequest) (io.ReadCloser, error) {
	p.ctx.Store(ctx)
	select {
	case <-p.open:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	go func() {
		<-ctx.Done()
		_ = p.writer.CloseWithError(ctx.Err())
	}()
	return p.reader, nil
}

type harness struct {
	t        *testing.T
	clock    *clockwork.FakeClock
	job      *job.Job
	pipe     *pipeTransport
	cleanup  func()
	messages chan string
	errs     chan *job.Error
	done     chan struct{}
}

func newHarness(t *testing.T, opened bool, cfg timeout.Config) *harness {
	h := &harness{
		t:        t,
		clock:    clockwork.NewFakeClock(),
		pipe:     newPipeTransport(opened),
		messages: make(chan string, 64),
		errs:     make(chan *job.Error, 4),
		done:     make(chan struct{}, 4),
	}
	h.job = job.New(job.WithClock(h.clock))
	t.Cleanup(h.job.Close)
	live := New(h.pipe, sdk.StreamRequest{Path: "/scenario/stream", RequestID: "r1"},
		WithClock(h.clock), WithTimeouts(cfg))
	cleanup, err := h.job.Start(context.Background(), "r1", live, job.Callbacks{
		OnMessage:  func(m *message.Message) { h.messages <- m.Type },
		OnError:    func(err *job.Error) { h.errs <- err },
		OnComplete: func() { h.done <- struct{}{} },
	})
	require.NoError(t, err)
	h.cleanup = cleanup
	return h
}

// connected waits until the heartbeat and universal timers are armed.
func (h *harness) connected() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(h.t, h.clock.BlockUntilContext(ctx, 2))
}

func (h *harness) send(messageType string, payload string) {
	record := fmt.Sprintf(`data: {"messageType":%q,"payload":%s}`+"\n\n", messageType, payload)
	_, err := h.pipe.writer.Write([]byte(record))
	require.NoError(h.t, err)
	select {
	case got := <-h.messages:
		require.Equal(h.t, messageType, got)
	case <-time.After(time.Second):
		h.t.Fatalf("message %s was not dispatched", messageType)
	}
}

func (h *harness) expectError(code job.Code) *job.Error {
	select {
	case err := <-h.errs:
		require.Equal(h.t, code, err.Code)
		return err
	case <-time.After(time.Second):
		h.t.Fatalf("expected %s", code)
	}
	return nil
}

func (h *harness) expectNoError() {
	assert.Never(h.t, func() bool { return len(h.errs) > 0 || len(h.done) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestConnectionTimeout(t *testing.T) {
	h := newHarness(t, false, timeout.Config{})
	h.clock.Advance(29 * time.Second)
	h.expectNoError()
	h.clock.Advance(time.Second)
	err := h.expectError(job.CodeConnectionTimeout)
	assert.Equal(t, "no response within 30s", err.Message)

	h.cleanup()
	h.cleanup()
	assert.Len(t, h.errs, 0)
	assert.Len(t, h.done, 0)
	failure := h.job.Failure()
	require.NotNil(t, failure)
	assert.Equal(t, job.CodeConnectionTimeout, failure.Code)
	assert.True(t, h.job.Progress().Frozen)
}

func TestResponseBeginDisarmsConnectionTimer(t *testing.T) {
	h := newHarness(t, true, timeout.Config{Heartbeat: time.Hour})
	h.connected()
	h.clock.Advance(31 * time.Second)
	h.expectNoError()
	h.cleanup()
}

func TestHeartbeatResetByEveryMessage(t *testing.T) {
	h := newHarness(t, true, timeout.Config{})
	h.connected()
	h.send("preprocessing_population_started", "null")
	h.clock.Advance(30 * time.Second)
	h.send("preprocessing_population_complete", "null")
	h.clock.Advance(30 * time.Second)
	h.expectNoError()
	h.clock.Advance(5 * time.Second)
	err := h.expectError(job.CodeHeartbeatTimeout)
	assert.Equal(t, "no message within 35s", err.Message)
	h.cleanup()
}

func TestUniversalTimeoutIgnoresLifecycleTraffic(t *testing.T) {
	h := newHarness(t, true, timeout.Config{})
	h.connected()
	h.send("data_text_overview", `{"text":"ready"}`)
	steps := []string{
		"preprocessing_population", "preprocessing_network", "preprocessing_demand",
		"preprocessing_configuration", "simulation", "postprocessing_overview",
		"postprocessing_emissions", "postprocessing_people_response", "postprocessing_trip_legs",
	}
	for _, step := range steps {
		h.clock.Advance(30 * time.Second)
		h.send(step+"_started", "null")
	}
	h.expectNoError()
	h.clock.Advance(30 * time.Second)
	err := h.expectError(job.CodeUniversalTimeout)
	assert.Equal(t, "timed out: no data within 5m0s", err.Message)

	for _, c := range h.job.Components() {
		if c.ID == component.TextOverview {
			assert.Equal(t, component.StateSuccess, c.State)
			continue
		}
		assert.Equal(t, component.StateError, c.State, string(c.ID))
		assert.Equal(t, err.Message, c.Error)
	}
	h.cleanup()
}

func TestUniversalResetByDataMessage(t *testing.T) {
	h := newHarness(t, true, timeout.Config{Heartbeat: time.Hour})
	h.connected()
	h.clock.Advance(200 * time.Second)
	h.send("data_text_overview", `{"text":"a"}`)
	h.clock.Advance(200 * time.Second)
	h.expectNoError()
	h.clock.Advance(100 * time.Second)
	h.expectError(job.CodeUniversalTimeout)
	h.cleanup()
}

func TestCleanupStopsDispatch(t *testing.T) {
	h := newHarness(t, true, timeout.Config{})
	h.connected()
	h.send("simulation_started", "null")
	h.cleanup()
	h.cleanup()

	_, err := h.pipe.writer.Write([]byte(`data: {"messageType":"simulation_complete"}` + "\n\n"))
	assert.Error(t, err)
	ctx := h.pipe.ctx.Load().(context.Context)
	assert.Error(t, ctx.Err())

	h.clock.Advance(time.Hour)
	h.expectNoError()
	step := stepState(h.job.Progress(), progress.StepSimulation)
	assert.Equal(t, progress.StateInProgress, step)
	assert.False(t, h.job.Snapshot().Running)
}

func TestCleanupFromOnMessage(t *testing.T) {
	clock := clockwork.NewFakeClock()
	j := job.New(job.WithClock(clock))
	defer j.Close()
	pipe := newPipeTransport(true)
	live := New(pipe, sdk.StreamRequest{Path: "/scenario/stream", RequestID: "r2"}, WithClock(clock))

	cleanups := make(chan func(), 1)
	returned := make(chan struct{})
	var received atomic.Int32
	terminal := make(chan struct{}, 2)
	cleanup, err := j.Start(context.Background(), "r2", live, job.Callbacks{
		OnMessage: func(m *message.Message) {
			received.Add(1)
			fn := <-cleanups
			fn()
			fn()
			close(returned)
		},
		OnError:    func(*job.Error) { terminal <- struct{}{} },
		OnComplete: func() { terminal <- struct{}{} },
	})
	require.NoError(t, err)
	cleanups <- cleanup

	go func() {
		_, _ = pipe.writer.Write([]byte(`data: {"messageType":"simulation_started"}` + "\n\n" +
			`data: {"messageType":"simulation_complete"}` + "\n\n"))
	}()
	select {
	case <-returned:
	case <-time.After(2 * time.Second):
		t.Fatal("cleanup called from OnMessage did not return")
	}
	cleanup()

	assert.EqualValues(t, 1, received.Load())
	assert.Len(t, terminal, 0)
	assert.Equal(t, progress.StateInProgress, stepState(j.Progress(), progress.StepSimulation))
	assert.False(t, j.Snapshot().Running)
}

func stepState(snapshot progress.Snapshot, name string) progress.State {
	for _, step := range snapshot.Steps {
		if step.Name == name {
			return step.State
		}
	}
	return ""
}

func TestLiveStreamOverHTTP(t *testing.T) {
	records := []string{
		`data: {"messageType":"postprocessing_overview_started"}` + "\n\n",
		`data: {"messageType":"data_text_o`,
		`verview","payload":{"text":"done"}}` + "\n",
		"\n: keep-alive\n\ndata: not json\n\n",
		`data: {"messageType":"postprocessing_overview_complete"}`,
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, record := range records {
			_, _ = w.Write([]byte(record))
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer srv.Close()

	j := job.New()
	defer j.Close()
	live := New(sdk.New(srv.URL), sdk.StreamRequest{Path: "/scenario/stream", Method: http.MethodGet})
	done := make(chan struct{}, 2)
	var count atomic.Int32
	_, err := j.Start(context.Background(), "r2", live, job.Callbacks{
		OnMessage:  func(*message.Message) { count.Add(1) },
		OnComplete: func() { done <- struct{}{} },
		OnError:    func(err *job.Error) { t.Errorf("unexpected error: %v", err) },
	})
	require.NoError(t, err)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not complete")
	}
	assert.EqualValues(t, 3, count.Load())
	c, err := j.Component(component.TextOverview)
	require.NoError(t, err)
	assert.Equal(t, component.StateSuccess, c.State)
	assert.JSONEq(t, `{"text":"done"}`, string(c.Data))
	assert.Equal(t, progress.StateCompleted, stepState(j.Progress(), progress.StepOverview))
	assert.True(t, j.Progress().CanViewResultsEarly)
}

func TestLiveStreamErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad parameters", http.StatusBadRequest)
	}))
	defer srv.Close()

	j := job.New()
	defer j.Close()
	errs := make(chan *job.Error, 2)
	_, err := j.Start(context.Background(), "r3", New(sdk.New(srv.URL), sdk.StreamRequest{Path: "/scenario/stream"}),
		job.Callbacks{OnError: func(err *job.Error) { errs <- err }})
	require.NoError(t, err)
	select {
	case jerr := <-errs:
		assert.Equal(t, job.CodeStreamError, jerr.Code)
		var herr *sdk.HTTPError
		require.True(t, errors.As(jerr, &herr))
		assert.Equal(t, http.StatusBadRequest, herr.StatusCode)
	case <-time.After(2 * time.Second):
		t.Fatal("expected stream error")
	}
}

func TestLiveCleanupAbortsRequest(t *testing.T) {
	aborted := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
		close(aborted)
	}))
	defer srv.Close()

	j := job.New()
	defer j.Close()
	cleanup, err := j.Start(context.Background(), "r4", New(sdk.New(srv.URL), sdk.StreamRequest{Path: "/scenario/stream"}),
		job.Callbacks{
			OnError:    func(err *job.Error) { t.Errorf("unexpected error: %v", err) },
			OnComplete: func() { t.Error("unexpected completion") },
		})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)
	cleanup()
	cleanup()
	select {
	case <-aborted:
	case <-time.After(2 * time.Second):
		t.Fatal("request was not aborted")
	}
}
