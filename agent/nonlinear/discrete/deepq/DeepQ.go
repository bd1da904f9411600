// Package deepq implements deep Q-learning over masked action sets
// with a Polyak-averaged target network.
package deepq

import (
	"fmt"

	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/distribution"
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/network"
	"github.com/samuelfneumann/rlroute/timestep"
	"github.com/samuelfneumann/rlroute/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// DeepQ implements the deep Q-learning algorithm with a masked
// double-Q update target: the policy network picks the greedy legal
// next action and the target network evaluates it. The loss is half
// the mean squared TD error.
//
// Action selection is epsilon greedy where epsilon is the probability
// of taking the greedy legal action. Otherwise an action is chosen
// uniformly at random among the legal actions. Epsilon is never
// decayed by the agent.
type DeepQ struct {
	spec graph.Spec

	// trainNet is the network whose weights are adapted, targetNet
	// provides the update target
	trainNet  network.NeuralNet
	targetNet network.NeuralNet

	epsilon float64
	gamma   float64
	tau     float64 // Polyak averaging constant

	src rand.Source
	rng *rand.Rand

	eval bool
}

// New creates and returns a new DeepQ agent. The target network starts
// as an exact copy of q.
func New(spec graph.Spec, q network.NeuralNet, c Config,
	seed uint64) (*DeepQ, error) {
	if err := c.validateHyperparameters(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	if q.Outputs() != spec.Actions || q.ActionSize() != 0 {
		return nil, fmt.Errorf("new: network must output %v action values "+
			"and take no action input", spec.Actions)
	}

	targetNet, err := q.Clone()
	if err != nil {
		return nil, fmt.Errorf("new: could not create target network: %w",
			err)
	}

	src := rand.NewSource(seed)
	return &DeepQ{
		spec:      spec,
		trainNet:  q,
		targetNet: targetNet,
		epsilon:   c.Epsilon,
		gamma:     c.Gamma,
		tau:       c.Tau,
		src:       src,
		rng:       rand.New(src),
	}, nil
}

// SelectAction selects an epsilon greedy action among the legal
// actions of a state. The returned probability vector is one-hot.
func (d *DeepQ) SelectAction(s *graph.State) (timestep.Action, error) {
	if err := s.Validate(d.spec); err != nil {
		return timestep.Action{}, fmt.Errorf("selectaction: %w", err)
	}

	var index int
	if d.rng.Float64() < d.epsilon {
		values, err := d.actionValues(s)
		if err != nil {
			return timestep.Action{}, fmt.Errorf("selectaction: %w", err)
		}
		if index, err = distribution.MaskedArgmax(values, s.Legal); err != nil {
			return timestep.Action{}, fmt.Errorf("selectaction: %w", err)
		}
	} else {
		uniform, err := distribution.UniformLegal(s.Legal)
		if err != nil {
			return timestep.Action{}, fmt.Errorf("selectaction: %w", err)
		}
		index = uniform.Sample(d.src)
	}

	probs := make([]float64, d.spec.Actions)
	probs[index] = 1.0
	return timestep.Action{Probabilities: probs, Index: index}, nil
}

// actionValues returns the action values of a single state
func (d *DeepQ) actionValues(s *graph.State) ([]float64, error) {
	obs, err := graph.Collate([]*graph.Observation{s.Observation})
	if err != nil {
		return nil, err
	}
	values, err := d.trainNet.Forward(obs, nil)
	if err != nil {
		return nil, err
	}
	if !floatutils.AllFinite(values.RawRowView(0)...) {
		return nil, fmt.Errorf("%w: action values %v", agent.ErrDiverged,
			values.RawRowView(0))
	}
	return values.RawRowView(0), nil
}

// Learn performs one gradient step on a batch of transitions and then
// updates the target network
func (d *DeepQ) Learn(b *timestep.Batch) (agent.Metrics, error) {
	y, err := d.updateTarget(b)
	if err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}

	q, err := d.trainNet.Forward(b.States, nil)
	if err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}

	n := float64(b.Len())
	upstream := mat.NewDense(b.Len(), d.spec.Actions, nil)
	var loss float64
	for i, a := range b.Indices {
		if a < 0 || a >= d.spec.Actions {
			return nil, fmt.Errorf("learn: invalid action %v at row %v", a, i)
		}
		diff := q.At(i, a) - y[i]
		loss += 0.5 * diff * diff
		upstream.Set(i, a, diff/n)
	}
	loss /= n

	metrics := agent.Metrics{"q_loss": loss}
	if err := metrics.Check(); err != nil {
		return metrics, fmt.Errorf("learn: %w", err)
	}

	if err := d.trainNet.Step(b.States, nil, upstream); err != nil {
		return nil, fmt.Errorf("learn: could not step network: %w", err)
	}
	if err := network.Polyak(d.targetNet, d.trainNet, d.tau); err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}
	return metrics, nil
}

// updateTarget returns r + γ(1-done)Q_target(s', argmax_a' Q(s', a'))
// where the argmax is over the legal actions of s'
func (d *DeepQ) updateTarget(b *timestep.Batch) ([]float64, error) {
	next, err := d.trainNet.Forward(b.NextStates, nil)
	if err != nil {
		return nil, err
	}
	nextTarget, err := d.targetNet.Forward(b.NextStates, nil)
	if err != nil {
		return nil, err
	}

	y := make([]float64, b.Len())
	for i := range y {
		y[i] = b.Rewards[i]
		if b.Dones[i] == 1 {
			continue
		}

		legal := make([]bool, d.spec.Actions)
		for j := range legal {
			legal[j] = b.NextMasks.At(i, j) > 0.5
		}
		a, err := distribution.MaskedArgmax(next.RawRowView(i), legal)
		if err != nil {
			return nil, fmt.Errorf("row %v: %w", i, err)
		}
		y[i] += d.gamma * nextTarget.At(i, a)
	}
	return y, nil
}

// Networks implements the agent.Learner interface
func (d *DeepQ) Networks() map[string]network.NeuralNet {
	return map[string]network.NeuralNet{
		"q":        d.trainNet,
		"q_target": d.targetNet,
	}
}

// SetEpsilon sets the probability of taking the greedy action
func (d *DeepQ) SetEpsilon(ε float64) {
	d.epsilon = ε
}

// Epsilon returns the probability of taking the greedy action
func (d *DeepQ) Epsilon() float64 {
	return d.epsilon
}

// Eval sets the agent to evaluation mode. Action selection is
// unchanged; the evaluation epsilon is set through SetEpsilon.
func (d *DeepQ) Eval() { d.eval = true }

// Train sets the agent to training mode
func (d *DeepQ) Train() { d.eval = false }

// IsEval returns whether the agent is in evaluation mode
func (d *DeepQ) IsEval() bool { return d.eval }
