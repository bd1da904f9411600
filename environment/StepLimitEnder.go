package environment

import "github.com/samuelfneumann/rlroute/timestep"

// StepLimit implements the Ender interface to end simulations at a
// specific number of steps
type StepLimit struct {
	steps int
}

// NewStepLimit creates and returns a new step limit
func NewStepLimit(steps int) StepLimit {
	return StepLimit{steps}
}

// End determines whether or not the simulation should be ended. If so,
// End marks the TimeStep as the Last.
func (s StepLimit) End(t *timestep.TimeStep) bool {
	if t.Number >= s.steps {
		t.SetLast()
		return true
	}
	return false
}
