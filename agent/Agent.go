// Package agent defines the learner contracts shared by the learning
// algorithms and the experiment loop
package agent

import (
	"errors"
	"fmt"
	"sort"

	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/network"
	"github.com/samuelfneumann/rlroute/timestep"
	"github.com/samuelfneumann/rlroute/utils/floatutils"
)

// ErrDiverged is returned when a learning step produces a non-finite
// loss or output. Divergence is never recovered from.
var ErrDiverged = errors.New("learner diverged")

// Learner implements a learning algorithm together with the policy it
// learns.
//
// SelectAction chooses an action among the legal actions of a state.
// In training mode action selection is stochastic, in evaluation mode
// it is greedy (or as greedy as the algorithm's evaluation policy).
// Learn performs a single update using a mini-batch of transitions.
type Learner interface {
	SelectAction(s *graph.State) (timestep.Action, error)
	Learn(b *timestep.Batch) (Metrics, error)

	// Networks returns the networks of the Learner by name, including
	// target networks
	Networks() map[string]network.NeuralNet

	Eval()        // Set policy to evaluation mode
	Train()       // Set policy to training mode
	IsEval() bool // Indicates if in evaluation mode
}

// EGreedy is a Learner whose behaviour policy is epsilon greedy and
// whose epsilon can be set and retrieved
type EGreedy interface {
	Learner
	SetEpsilon(float64)
	Epsilon() float64
}

// Metrics are the named scalar results of a single learning step
type Metrics map[string]float64

// Check returns an error wrapping ErrDiverged if any metric is not
// finite
func (m Metrics) Check() error {
	for _, name := range m.Names() {
		if !floatutils.IsFinite(m[name]) {
			return fmt.Errorf("%w: %v is %v", ErrDiverged, name, m[name])
		}
	}
	return nil
}

// Names returns the names of the metrics in sorted order
func (m Metrics) Names() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
