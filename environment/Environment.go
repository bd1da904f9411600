// Package environment outlines the contract between the learner and the
// network simulator it controls
package environment

import "github.com/samuelfneumann/rlroute/timestep"

// Environment is a request/response peer that reports the observation
// of one agent per TimeStep and receives the action chosen for it.
//
// The first TimeStep after Reset carries the handshake signal that
// selects the learning algorithm and no State. Every later TimeStep
// carries the reward for the previous action and the State of the next
// agent to decide, until the final TimeStep, whose StepType is Last.
type Environment interface {
	Reset() (timestep.TimeStep, error)
	Step(action timestep.Action) (timestep.TimeStep, error)
	Close() error
}

// Ender determines whether a TimeStep ends the simulation
type Ender interface {
	End(t *timestep.TimeStep) bool
}
