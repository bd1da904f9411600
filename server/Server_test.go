package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/samuelfneumann/rlroute/agent/nonlinear/discrete/deepq"
	"github.com/samuelfneumann/rlroute/expreplay"
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/metrics"
	"github.com/samuelfneumann/rlroute/network/networktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, spec graph.Spec) *httptest.Server {
	t.Helper()
	q := networktest.New(spec, 0, spec.Actions, 0.01, 0)
	// Prefer the last link
	for j := 0; j < spec.Actions; j++ {
		q.B.Set(0, j, float64(j))
	}
	c := deepq.DefaultConfig()
	c.Epsilon = 1
	learner, err := deepq.New(spec, q, c, 1)
	require.NoError(t, err)

	store, err := expreplay.New(8)
	require.NoError(t, err)

	s := New(learner, spec, WithStore(store),
		WithMetrics(metrics.New().Handler()))
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAct(t *testing.T) {
	spec := networktest.Spec
	srv := newServer(t, spec)

	req := ActRequest{
		AgentID: 7,
		Codes:   []int{3, 2, 1, 0},
		Observation: &Observation{
			Nodes:        [][]float64{{1, 0, 0}, {0, 1, 0}},
			Edges:        [][2]int{{0, 1}},
			EdgeFeatures: [][]float64{{0.5, 0.5}},
		},
	}
	resp := post(t, srv.URL+"/v1/act", req)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var act ActResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&act))
	assert.Equal(t, 7, act.AgentID)
	assert.Equal(t, 1, act.Index, "greedy among the legal links")
	assert.Equal(t, []float64{0, 1, 0, 0}, act.Probabilities)
}

func TestActTelemetry(t *testing.T) {
	srv := newServer(t, graph.DefaultSpec())

	rows := make([][]float64, graph.TelemetryRows)
	for i := range rows {
		rows[i] = make([]float64, graph.TelemetryWidth)
	}
	resp := post(t, srv.URL+"/v1/act", ActRequest{
		Codes:     []int{2, 3, 0, 3},
		Telemetry: rows,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var act ActResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&act))
	assert.Equal(t, 3, act.Index)
}

func TestActErrors(t *testing.T) {
	srv := newServer(t, networktest.Spec)

	resp, err := http.Post(srv.URL+"/v1/act", "application/json",
		bytes.NewReader([]byte("{")))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv.URL+"/v1/act", ActRequest{Codes: []int{3, 3, 3, 3}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Node features do not match the deployment
	resp = post(t, srv.URL+"/v1/act", ActRequest{
		Codes:       []int{3, 3, 3, 3},
		Observation: &Observation{Nodes: [][]float64{{1, 2}}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestStoreAndHealth(t *testing.T) {
	srv := newServer(t, networktest.Spec)

	resp, err := http.Get(srv.URL + "/v1/store")
	require.NoError(t, err)
	defer resp.Body.Close()
	var stats StoreResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, StoreResponse{Capacity: 8, Sampler: "uniform"}, stats)

	for _, path := range []string{"/healthz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}
