// Package synthetic implements an in-process stand-in for the network
// simulator. It produces reference-layout telemetry for randomly
// interleaved agents and rewards actions by the idle ratio of the
// chosen link's queue.
package synthetic

import (
	"fmt"

	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/environment"
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/timestep"
	"golang.org/x/exp/rand"
)

// IllegalReward is the reward for choosing a link that is not
// available
const IllegalReward = -1.0

// Config describes a synthetic simulation
type Config struct {
	// Signal is the handshake value sent with the first TimeStep
	Signal int `yaml:"signal" json:"signal"`

	Agents int `yaml:"agents" json:"agents"`
	Steps  int `yaml:"steps" json:"steps"` // Steps before the simulation ends

	// MaskChange is the probability that the link availability of an
	// agent changes between two of its decisions
	MaskChange float64 `yaml:"mask_change" json:"mask_change"`
}

// DefaultConfig returns a simulation of 8 agents over 2000 steps
// selecting SAC
func DefaultConfig() Config {
	return Config{Signal: agent.SignalSAC, Agents: 8, Steps: 2000,
		MaskChange: 0.1}
}

// Validate checks that the Config describes a runnable simulation
func (c Config) Validate() error {
	if c.Agents < 1 {
		return fmt.Errorf("validate: agents must be >= 1")
	}
	if c.Steps < 1 {
		return fmt.Errorf("validate: steps must be >= 1")
	}
	if c.MaskChange < 0 || c.MaskChange > 1 {
		return fmt.Errorf("validate: mask change must be in [0, 1]")
	}
	return nil
}

// Simulator is a synthetic Environment
type Simulator struct {
	config Config
	ender  environment.Ender
	rng    *rand.Rand

	step    int
	current timestep.TimeStep
	codes   map[int][]int
	actions []timestep.Action
	closed  bool
}

var _ environment.Environment = (*Simulator)(nil)

// New returns a new Simulator
func New(c Config, seed uint64) (*Simulator, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	return &Simulator{
		config: c,
		ender:  environment.NewStepLimit(c.Steps),
		rng:    rand.New(rand.NewSource(seed)),
	}, nil
}

// Reset starts a new simulation and returns the handshake TimeStep
func (s *Simulator) Reset() (timestep.TimeStep, error) {
	if s.closed {
		return timestep.TimeStep{}, fmt.Errorf("reset: simulator closed")
	}
	s.step = 0
	s.actions = nil
	s.codes = make(map[int][]int)
	s.current = timestep.NewFirst(s.config.Signal, 0, nil)
	return s.current, nil
}

// Step applies the action to the agent of the current TimeStep and
// returns the observation of the next agent to decide
func (s *Simulator) Step(action timestep.Action) (timestep.TimeStep, error) {
	if s.closed {
		return timestep.TimeStep{}, fmt.Errorf("step: simulator closed")
	}
	if s.current.Last() {
		return timestep.TimeStep{}, fmt.Errorf("step: simulation ended")
	}
	s.actions = append(s.actions, action.Clone())

	reward := 0.0
	if s.current.State != nil {
		reward = s.reward(s.current.State, action)
	}

	id := s.rng.Intn(s.config.Agents)
	state, err := s.observe(id)
	if err != nil {
		return timestep.TimeStep{}, fmt.Errorf("step: %w", err)
	}

	s.step++
	next := timestep.New(timestep.Mid, s.step, id, state, reward)
	s.ender.End(&next)
	s.current = next
	return next, nil
}

// Close implements the environment.Environment interface
func (s *Simulator) Close() error {
	s.closed = true
	return nil
}

// Actions returns the actions received so far in this simulation
func (s *Simulator) Actions() []timestep.Action {
	return s.actions
}

// reward returns the idle ratio of the queue of the chosen link, or
// IllegalReward if the link is unavailable
func (s *Simulator) reward(state *graph.State,
	action timestep.Action) float64 {
	i := action.Index
	if i < 0 || i >= len(state.Legal) || !state.Legal[i] {
		return IllegalReward
	}
	return state.Observation.EdgeFeatures[i][1]
}

// observe returns a random reference-layout State for an agent. The
// agent keeps its mask codes until they change with probability
// MaskChange.
func (s *Simulator) observe(id int) (*graph.State, error) {
	codes, ok := s.codes[id]
	if !ok || s.rng.Float64() < s.config.MaskChange {
		codes = s.maskCodes()
		s.codes[id] = codes
	}

	requested, actual, err := graph.Decompose(codes)
	if err != nil {
		return nil, err
	}
	obs, err := graph.FromTelemetry(s.telemetry(), requested, actual)
	if err != nil {
		return nil, err
	}
	return graph.NewState(obs, codes)
}

// maskCodes returns random mask codes with at least one available link
func (s *Simulator) maskCodes() []int {
	codes := make([]int, graph.Actions)
	for {
		available := false
		for i := range codes {
			codes[i] = s.rng.Intn(4)
			available = available || codes[i] >= graph.CodeActual
		}
		if available {
			return codes
		}
	}
}

// telemetry returns random telemetry rows in the reference layout
func (s *Simulator) telemetry() [][]float64 {
	rows := make([][]float64, graph.TelemetryRows)
	for r := range rows {
		row := make([]float64, graph.TelemetryWidth)
		for i := 0; i < 10; i++ {
			row[i] = s.uniform(-90, 90) // positions of self and neighbours
		}
		for l := 0; l < 4; l++ {
			row[10+l] = s.rng.Float64()          // data rate
			row[14+l] = s.rng.Float64()          // queue idle ratio
			row[18+l] = s.uniform(5e5, 2e6)      // distance
			row[22+l] = s.uniform(-1, 1)         // relative speed
			row[26+l] = float64(s.rng.Intn(1e3)) // packets sent
			row[30+l] = float64(s.rng.Intn(1e3)) // packets received
			row[44+l] = float64(s.rng.Intn(2))
			row[48+l] = float64(s.rng.Intn(2))
			row[52+l] = float64(s.rng.Intn(2))
		}
		for i := 34; i < 44; i++ {
			row[i] = float64(s.rng.Intn(1e3)) // service link counts
		}
		rows[r] = row
	}
	return rows
}

func (s *Simulator) uniform(low, high float64) float64 {
	return low + (high-low)*s.rng.Float64()
}
