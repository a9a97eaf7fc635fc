package runner

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

	"ridedispatch/internal/model"
)

func noWait(int) time.Duration { return 0 }

func newRunner(t *testing.T, h http.HandlerFunc, o Options) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	if o.Backoff == nil {
		o.Backoff = noWait
	}
	c, err := New(srv.URL+"/", o)
	require.NoError(t, err)
	return c
}

func TestInitialize(t *testing.T) {
	c := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/Scenarios/initialize_scenario", r.URL.Path)
		assert.Equal(t, "abc", r.URL.Query().Get("db_scenario_id"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{}`, string(body))
		_, _ = w.Write([]byte(`{"message":"ok","scenario":{"id":"abc","status":"CREATED","vehicles":[],"customers":[]}}`))
	}, Options{})

	s, err := c.Initialize(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, "abc", s.ID)
	assert.Equal(t, "CREATED", s.Status)
}

func TestInitializeErrorPayload(t *testing.T) {
	c := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error":"scenario not found"}`))
	}, Options{})
	_, err := c.Initialize(context.Background(), "x")
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, OpInitialize, pe.Op)
	assert.Contains(t, err.Error(), "scenario not found")

	c = newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"message":"hmm"}`))
	}, Options{})
	_, err = c.Initialize(context.Background(), "x")
	require.ErrorAs(t, err, &pe)
	assert.Contains(t, err.Error(), "neither scenario nor error")
}

func TestLaunchAndUpdate(t *testing.T) {
	c := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/Runner/launch_scenario/s1":
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "2.5", r.URL.Query().Get("speed"))
			_, _ = w.Write([]byte(`{"message":"launched","scenarioId":"s1","startTime":"2024-01-01T00:00:00Z"}`))
		case "/Scenarios/update_scenario/s1":
			assert.Equal(t, http.MethodPut, r.Method)
			var d model.UpdateScenario
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&d))
			assert.Equal(t, []model.UpdateVehicle{{ID: "v1", CustomerID: "c1"}}, d.Vehicles)
			_, _ = w.Write([]byte(`{"failedToUpdate":[],"updatedVehicles":[{"id":"v1","coordX":1,"coordY":2,"isAvailable":false,"customerId":"c1"}]}`))
		default:
			http.NotFound(w, r)
		}
	}, Options{})

	l, err := c.Launch(context.Background(), "s1", 2.5)
	require.NoError(t, err)
	assert.Equal(t, "s1", l.ScenarioID)

	u, err := c.Update(context.Background(), "s1", model.UpdateScenario{Vehicles: []model.UpdateVehicle{{ID: "v1", CustomerID: "c1"}}})
	require.NoError(t, err)
	assert.Empty(t, u.FailedToUpdate)
	require.Len(t, u.UpdatedVehicles, 1)
	assert.Equal(t, "c1", *u.UpdatedVehicles[0].CustomerID)
}

func TestGetRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	c := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"id":"s1","endTime":"2024-01-01T01:00:00Z","vehicles":[],"customers":[]}`))
	}, Options{MaxRetries: 2})

	s, err := c.Get(context.Background(), "s1")
	require.NoError(t, err)
	assert.True(t, s.Done())
	assert.Equal(t, int32(2), calls.Load())
}

func TestGetGivesUpAfterMaxRetries(t *testing.T) {
	var calls atomic.Int32
	c := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}, Options{MaxRetries: 2})

	_, err := c.Get(context.Background(), "s1")
	var pe *ProtocolError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, http.StatusBadGateway, pe.Status)
	assert.Equal(t, OpGet, pe.Op)
	assert.Contains(t, pe.Body, "down")
	assert.Equal(t, int32(3), calls.Load())
}

func TestNoRetryOnClientErrorOrWrites(t *testing.T) {
	var calls atomic.Int32
	c := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Method == http.MethodGet {
			http.Error(w, "nope", http.StatusNotFound)
			return
		}
		http.Error(w, "boom", http.StatusInternalServerError)
	}, Options{MaxRetries: 3})

	_, err := c.Get(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	_, err = c.Update(context.Background(), "s1", model.UpdateScenario{})
	require.Error(t, err)
	assert.Equal(t, int32(2), calls.Load())
}

func TestBadJSONIsProtocolError(t *testing.T) {
	c := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":`))
	}, Options{})
	_, err := c.Get(context.Background(), "s1")
	var pe *ProtocolError
	assert.ErrorAs(t, err, &pe)
}

func TestTimeoutIsTransportError(t *testing.T) {
	c := newRunner(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}, Options{Timeout: 20 * time.Millisecond})

	_, err := c.Launch(context.Background(), "s1", 1)
	var te *TransportError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, OpLaunch, te.Op)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestUnreachableIsTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	c, err := New(url, Options{MaxRetries: 1, Backoff: noWait})
	require.NoError(t, err)
	_, err = c.Get(context.Background(), "s1")
	var te *TransportError
	assert.ErrorAs(t, err, &te)
}

func TestBackendCreateScenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/scenario/create", r.URL.Path)
		assert.Equal(t, "3", r.URL.Query().Get("numberOfVehicles"))
		assert.Equal(t, "7", r.URL.Query().Get("numberOfCustomers"))
		_, _ = w.Write([]byte(`{"id":"new","vehicles":[],"customers":[]}`))
	}))
	defer srv.Close()
	b, err := NewBackend(srv.URL, Options{})
	require.NoError(t, err)
	s, err := b.CreateScenario(context.Background(), 3, 7)
	require.NoError(t, err)
	assert.Equal(t, "new", s.ID)
}

func TestNewRejectsRelativeURL(t *testing.T) {
	_, err := New("localhost:8090", Options{})
	assert.Error(t, err)
	_, err = NewBackend("/just/a/path", Options{})
	assert.Error(t, err)
}

func TestNextBackoff(t *testing.T) {
	assert.Equal(t, 100*time.Millisecond, nextBackoff(0))
	assert.Equal(t, 200*time.Millisecond, nextBackoff(1))
	assert.Equal(t, 2*time.Second, nextBackoff(10))
}
