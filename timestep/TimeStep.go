// Package timestep implements timesteps of the agent-environment interaction
package timestep

import (
	"fmt"

	"github.com/samuelfneumann/rlroute/graph"
)

// StepType denotes the type of step that a TimeStep can be, either  first
// environmental step, a middle step, or a last step
type StepType int

const (
	First StepType = iota
	Mid
	Last
)

func (s StepType) String() string {
	switch s {
	case First:
		return "First"
	case Last:
		return "Last"
	default:
		return "Mid"
	}
}

// TimeStep packages together a single timestep in an environment. The
// simulator interleaves the observations of all agents, so each
// TimeStep records the agent that should act on it.
//
// Signal is only set on the First TimeStep, where the simulator
// announces which learning algorithm the session should use. State is
// nil on a Last TimeStep that carries no observation.
type TimeStep struct {
	stepType StepType
	Number   int
	AgentID  int
	Signal   int
	State    *graph.State
	Reward   float64
}

// New returns a new TimeStep
func New(t StepType, n, agentID int, s *graph.State, r float64) TimeStep {
	return TimeStep{stepType: t, Number: n, AgentID: agentID, State: s,
		Reward: r}
}

// NewFirst returns a new First TimeStep carrying a handshake signal
func NewFirst(signal, agentID int, s *graph.State) TimeStep {
	return TimeStep{stepType: First, AgentID: agentID, Signal: signal,
		State: s}
}

// StepType returns the type of the TimeStep
func (t *TimeStep) StepType() StepType {
	return t.stepType
}

// First returns whether a TimeStep is the first in an environment
func (t *TimeStep) First() bool {
	return t.stepType == First
}

// Mid returns whether a TimeStep is a middle step in an environment
func (t *TimeStep) Mid() bool {
	return t.stepType == Mid
}

// Last returns whether a TimeStep is the last step in an environment
func (t *TimeStep) Last() bool {
	return t.stepType == Last
}

// SetLast marks the TimeStep as the last step in an environment
func (t *TimeStep) SetLast() {
	t.stepType = Last
}

func (t TimeStep) String() string {
	str := "TimeStep | Type: %v  |  Agent: %v  |  Reward:  %.2f  |  " +
		"Step Number:  %v"

	return fmt.Sprintf(str, t.stepType, t.AgentID, t.Reward, t.Number)
}
