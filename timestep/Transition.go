package timestep

import (
	"fmt"

	"github.com/samuelfneumann/rlroute/graph"
	"gonum.org/v1/gonum/mat"
)

// Action is the decision of a learner for a single agent. Probabilities
// is the probability vector over candidate links that is sent to the
// simulator and stored in the replay buffer. Index is the link that the
// learner picked. Train is forwarded to the simulator to signal whether
// the learner is still training.
type Action struct {
	AgentID       int
	Probabilities []float64
	Index         int
	Train         bool
}

// Clone returns a deep copy of the Action
func (a Action) Clone() Action {
	probs := make([]float64, len(a.Probabilities))
	copy(probs, a.Probabilities)
	a.Probabilities = probs
	return a
}

// Transition is a single (s, a, s', r, done) transition. Transitions
// reference their states and never mutate them.
type Transition struct {
	State     *graph.State
	Action    Action
	NextState *graph.State
	Reward    float64
	Done      bool
}

func (t Transition) String() string {
	return fmt.Sprintf("Transition | Action: %v  |  Reward: %.2f  |  "+
		"Done: %v", t.Action.Probabilities, t.Reward, t.Done)
}

// Batch is a mini-batch of transitions laid out for a learner.
//
// Masks and NextMasks hold a 1 for each legal action of the state and
// next state respectively, and 0 otherwise. Actions holds the stored
// action probability vectors one per row, and Indices the stored
// action indices.
type Batch struct {
	States     *graph.Batch
	NextStates *graph.Batch
	Masks      *mat.Dense
	NextMasks  *mat.Dense
	Actions    *mat.Dense
	Indices    []int
	Rewards    []float64
	Dones      []float64
}

// Len returns the number of transitions in the batch
func (b *Batch) Len() int {
	return len(b.Rewards)
}

// NewBatch collates transitions into a Batch. Every transition must
// offer the same number of candidate actions.
func NewBatch(transitions []Transition, actions int) (*Batch, error) {
	if len(transitions) == 0 {
		return nil, fmt.Errorf("newbatch: no transitions")
	}

	n := len(transitions)
	states := make([]*graph.Observation, n)
	nextStates := make([]*graph.Observation, n)
	masks := mat.NewDense(n, actions, nil)
	nextMasks := mat.NewDense(n, actions, nil)
	actionProbs := mat.NewDense(n, actions, nil)
	indices := make([]int, n)
	rewards := make([]float64, n)
	dones := make([]float64, n)

	for i, t := range transitions {
		if t.State == nil || t.NextState == nil {
			return nil, fmt.Errorf("newbatch: transition %d has no state", i)
		}
		if len(t.State.Legal) != actions || len(t.NextState.Legal) != actions {
			return nil, &graph.ContractError{
				Field: "mask size",
				Want:  actions,
				Have:  len(t.State.Legal),
			}
		}
		if len(t.Action.Probabilities) != actions {
			return nil, &graph.ContractError{
				Field: "action size",
				Want:  actions,
				Have:  len(t.Action.Probabilities),
			}
		}

		states[i] = t.State.Observation
		nextStates[i] = t.NextState.Observation
		for j := 0; j < actions; j++ {
			if t.State.Legal[j] {
				masks.Set(i, j, 1.0)
			}
			if t.NextState.Legal[j] {
				nextMasks.Set(i, j, 1.0)
			}
		}
		actionProbs.SetRow(i, t.Action.Probabilities)
		indices[i] = t.Action.Index
		rewards[i] = t.Reward
		if t.Done {
			dones[i] = 1.0
		}
	}

	stateBatch, err := graph.Collate(states)
	if err != nil {
		return nil, fmt.Errorf("newbatch: %w", err)
	}
	nextStateBatch, err := graph.Collate(nextStates)
	if err != nil {
		return nil, fmt.Errorf("newbatch: %w", err)
	}

	return &Batch{
		States:     stateBatch,
		NextStates: nextStateBatch,
		Masks:      masks,
		NextMasks:  nextMasks,
		Actions:    actionProbs,
		Indices:    indices,
		Rewards:    rewards,
		Dones:      dones,
	}, nil
}
