package networktest

import (
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/timestep"
	"golang.org/x/exp/rand"
)

// Spec is a small observation Spec for tests
var Spec = graph.Spec{NodeFeatures: 3, EdgeFeatures: 2, Actions: 4}

// State returns a random star-shaped State conforming to spec with
// the given mask codes. It panics if the codes are invalid.
func State(rng *rand.Rand, spec graph.Spec, codes []int) *graph.State {
	nodes := 2 + rng.Intn(3)
	obs := &graph.Observation{}
	for i := 0; i < nodes; i++ {
		obs.Nodes = append(obs.Nodes, row(rng, spec.NodeFeatures))
	}
	for i := 1; i < nodes; i++ {
		obs.Edges = append(obs.Edges, [2]int{0, i})
		obs.EdgeFeatures = append(obs.EdgeFeatures, row(rng, spec.EdgeFeatures))
	}

	s, err := graph.NewState(obs, codes)
	if err != nil {
		panic(err)
	}
	return s
}

// Batch returns a Batch of n random transitions whose states have the
// given mask codes and whose actions are uniform over the legal
// actions
func Batch(rng *rand.Rand, spec graph.Spec, n int,
	codes []int) *timestep.Batch {
	transitions := make([]timestep.Transition, n)
	for i := range transitions {
		s := State(rng, spec, codes)
		probs := make([]float64, spec.Actions)
		legal := float64(s.NumLegal())
		index := -1
		for j, ok := range s.Legal {
			if ok {
				probs[j] = 1 / legal
				if index < 0 {
					index = j
				}
			}
		}

		transitions[i] = timestep.Transition{
			State:     s,
			Action:    timestep.Action{Probabilities: probs, Index: index},
			NextState: State(rng, spec, codes),
			Reward:    rng.NormFloat64(),
			Done:      i%3 == 0,
		}
	}

	b, err := timestep.NewBatch(transitions, spec.Actions)
	if err != nil {
		panic(err)
	}
	return b
}

func row(rng *rand.Rand, n int) []float64 {
	r := make([]float64, n)
	for i := range r {
		r[i] = rng.NormFloat64()
	}
	return r
}
