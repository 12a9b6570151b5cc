package sdk

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientOpenStream(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/scenario/stream", r.URL.Path)
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		require.Equal(t, "job-1", r.Header.Get(RequestIDHeader))
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var params map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		require.Equal(t, "zone-a", params["zone"])
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`data: {"messageType":"simulation_started"}` + "\n\n"))
	}
	srv := httptest.NewServer(http.HandlerFunc(handler))
	defer srv.Close()

	client := New(srv.URL, WithTokenProvider(func(ctx context.Context) (string, error) { return " secret ", nil }))
	body, err := client.OpenStream(context.Background(), &StreamRequest{
		Path:      "/scenario/stream",
		Payload:   map[string]string{"zone": "zone-a"},
		RequestID: "job-1",
	})
	require.NoError(t, err)
	defer body.Close()
	raw, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, `data: {"messageType":"simulation_started"}`+"\n\n", string(raw))
}

func TestClientOpenStreamErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, int64(0), r.ContentLength)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()
	client := New(srv.URL)

	var testCases = []struct {
		description string
		request     *StreamRequest
		status      int
	}{
		{description: "missing path", request: &StreamRequest{}},
		{description: "unsupported method", request: &StreamRequest{Path: "/s", Method: "PUT"}},
		{description: "non 2xx", request: &StreamRequest{Path: "/s", Method: "get", Payload: map[string]int{"a": 1}}, status: http.StatusServiceUnavailable},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			body, err := client.OpenStream(context.Background(), testCase.request)
			require.Error(t, err)
			assert.Nil(t, body)
			var herr *HTTPError
			if testCase.status == 0 {
				assert.False(t, errors.As(err, &herr))
				return
			}
			require.True(t, errors.As(err, &herr))
			assert.Equal(t, testCase.status, herr.StatusCode)
			assert.Equal(t, "overloaded", herr.Body)
		})
	}
}

func TestClientCancel(t *testing.T) {
	var testCases = []struct {
		description string
		response    string
		expectErr   bool
	}{
		{description: "accepted", response: `{"statusCode":200,"message":"cancelled","timestamp":"2026-10-19T12:00:00Z"}`},
		{description: "rejected envelope", response: `{"statusCode":404,"message":"unknown request"}`, expectErr: true},
		{description: "bare body", response: `{"ok":true}`},
		{description: "empty body", response: ``},
	}
	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				require.Equal(t, "/scenario/cancel", r.URL.Path)
				var req CancelRequest
				require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
				require.Equal(t, "job-7", req.RequestID)
				_, _ = w.Write([]byte(testCase.response))
			}))
			defer srv.Close()

			env, err := New(srv.URL).Cancel(context.Background(), "job-7")
			if testCase.expectErr {
				var serr *StatusError
				require.True(t, errors.As(err, &serr))
				assert.Equal(t, 404, serr.StatusCode)
				assert.Equal(t, "unknown request", serr.Message)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, http.StatusOK, env.StatusCode)
		})
	}
}

func TestClientRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/job-9/retry", r.URL.Path)
		var req RetryRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "data_text_overview", req.MessageType)
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"statusCode":200}`))
	}))
	defer srv.Close()

	client := New(srv.URL, WithRetryPolicy(RetryPolicy{
		MaxAttempts:     3,
		InitialInterval: time.Millisecond,
		MaxInterval:     time.Millisecond,
		RetryStatuses:   map[int]struct{}{http.StatusBadGateway: {}},
		RetryMethods:    map[string]struct{}{http.MethodPost: {}},
	}))
	require.NoError(t, client.Retry(context.Background(), "job-9", "data_text_overview"))
	assert.EqualValues(t, 3, calls.Load())

	assert.Error(t, client.Retry(context.Background(), "", "data_text_overview"))
	assert.Error(t, client.Retry(context.Background(), "job-9", " "))
}

func TestClientRetryNotRetriedStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := New(srv.URL, WithRetryPolicy(RetryPolicy{
		MaxAttempts:     5,
		InitialInterval: time.Millisecond,
		RetryStatuses:   map[int]struct{}{http.StatusBadGateway: {}},
		RetryMethods:    map[string]struct{}{http.MethodPost: {}},
	}))
	err := client.Retry(context.Background(), "job-9", "data_text_overview")
	var herr *HTTPError
	require.True(t, errors.As(err, &herr))
	assert.Equal(t, http.StatusBadRequest, herr.StatusCode)
	assert.EqualValues(t, 1, calls.Load())
}

func TestClientDoPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "static", r.Header.Get("X-Client"))
		_, _ = w.Write([]byte(`{"statusCode":200,"payload":{"zones":["a","b"]}}`))
	}))
	defer srv.Close()

	var hooked atomic.Bool
	client := New(srv.URL+"/", WithHeader("X-Client", "static"), WithTimeout(time.Second),
		WithResponseHook(func(*http.Response) error { hooked.Store(true); return nil }))
	assert.Equal(t, srv.URL, client.BaseURL())
	var out struct {
		Zones []string `json:"zones"`
	}
	_, err := client.Do(context.Background(), http.MethodGet, "/metadata/zones", nil, &out)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, out.Zones)
	assert.True(t, hooked.Load())
}
