// Package server serves a trained learner over HTTP: action selection
// for single observations, experience store statistics, health and
// Prometheus metrics
package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/expreplay"
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/utils/logging"
)

// Server handles requests for a single learner. Learners are not safe
// for concurrent use, so requests are serialised.
type Server struct {
	mu      sync.Mutex
	learner agent.Learner
	store   *expreplay.Store
	spec    graph.Spec
	metrics http.Handler
	logger  *slog.Logger
}

// Option configures a Server
type Option func(*Server)

// WithStore exposes the statistics of an experience store
func WithStore(store *expreplay.Store) Option {
	return func(s *Server) {
		s.store = store
	}
}

// WithMetrics serves h at /metrics
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithLogger sets the logger of the Server
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// New returns a new Server selecting actions with learner for
// observations conforming to spec
func New(learner agent.Learner, spec graph.Spec, opts ...Option) *Server {
	s := &Server{
		learner: learner,
		spec:    spec,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the HTTP handler of the Server
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", s.health)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	r.Route("/v1", func(r chi.Router) {
		r.Post("/act", s.act)
		r.Get("/store", s.storeStats)
	})
	return r
}

// Observation is the JSON form of a graph observation
type Observation struct {
	Nodes        [][]float64 `json:"nodes"`
	Edges        [][2]int    `json:"edges"`
	EdgeFeatures [][]float64 `json:"edge_features"`
}

// ActRequest asks for the action of an agent. The observation is given
// either as a graph or as raw telemetry rows in the reference layout.
type ActRequest struct {
	AgentID     int          `json:"agent_id"`
	Codes       []int        `json:"codes"`
	Observation *Observation `json:"observation,omitempty"`
	Telemetry   [][]float64  `json:"telemetry,omitempty"`
}

// ActResponse is the action chosen for an agent
type ActResponse struct {
	AgentID       int       `json:"agent_id"`
	Index         int       `json:"index"`
	Probabilities []float64 `json:"probabilities"`
}

// StoreResponse describes the experience store
type StoreResponse struct {
	Size     int    `json:"size"`
	Capacity int    `json:"capacity"`
	Full     bool   `json:"full"`
	Sampler  string `json:"sampler"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.logger, map[string]string{"status": "ok"})
}

func (s *Server) act(w http.ResponseWriter, r *http.Request) {
	var req ActRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		s.logger.Warn("act: invalid request body", "error", err)
		return
	}

	state, err := s.state(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	action, err := s.learner.SelectAction(state)
	s.mu.Unlock()
	if err != nil {
		status := http.StatusInternalServerError
		if graph.IsContractError(err) {
			status = http.StatusUnprocessableEntity
		}
		http.Error(w, fmt.Sprintf("act: %v", err), status)
		s.logger.Error("act failed", "agent", req.AgentID, "error", err)
		return
	}

	writeJSON(w, s.logger, ActResponse{
		AgentID:       req.AgentID,
		Index:         action.Index,
		Probabilities: action.Probabilities,
	})
}

// state builds the State of an ActRequest
func (s *Server) state(req ActRequest) (*graph.State, error) {
	var obs *graph.Observation
	switch {
	case req.Observation != nil:
		obs = &graph.Observation{
			Nodes:        req.Observation.Nodes,
			Edges:        req.Observation.Edges,
			EdgeFeatures: req.Observation.EdgeFeatures,
		}
	case req.Telemetry != nil:
		requested, actual, err := graph.Decompose(req.Codes)
		if err != nil {
			return nil, err
		}
		if obs, err = graph.FromTelemetry(req.Telemetry, requested,
			actual); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("state: request has no observation")
	}
	return graph.NewState(obs, req.Codes)
}

func (s *Server) storeStats(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		http.Error(w, "no experience store", http.StatusNotFound)
		return
	}

	s.mu.Lock()
	resp := StoreResponse{
		Size:     s.store.Len(),
		Capacity: s.store.Capacity(),
		Full:     s.store.Full(),
		Sampler:  string(s.store.Selector().Type()),
	}
	s.mu.Unlock()
	writeJSON(w, s.logger, resp)
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("response encode failed", "error", err)
	}
}
