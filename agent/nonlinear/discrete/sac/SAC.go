// Package sac implements discrete soft actor-critic over masked action
// sets, with twin critics, Polyak-averaged target critics and
// automatic entropy tuning.
package sac

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/network"
	"github.com/samuelfneumann/rlroute/timestep"
	"github.com/samuelfneumann/rlroute/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// SAC implements soft actor-critic for a categorical policy whose
// logits are sampled from a diagonal Gaussian. The actor outputs k
// means followed by k log standard deviations. The critics take the
// masked action probabilities as their action input.
//
// Each call to Learn updates, in order, the actor, the temperature,
// both critics and finally both target critics.
type SAC struct {
	spec    graph.Spec
	actions int

	actor   network.NeuralNet
	critic1 network.NeuralNet
	critic2 network.NeuralNet
	target1 network.NeuralNet
	target2 network.NeuralNet

	temperature   *temperature
	targetEntropy float64
	gamma         float64
	tau           float64

	src   rand.Source
	noise *distuv.Normal

	eval bool
}

// New returns a new SAC agent. The target critics start as exact
// copies of the critics.
func New(spec graph.Spec, actor, critic1, critic2 network.NeuralNet,
	c Config, seed uint64) (*SAC, error) {
	if err := c.validateHyperparameters(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	k := spec.Actions
	if actor.Outputs() != 2*k || actor.ActionSize() != 0 {
		return nil, fmt.Errorf("new: actor must output %v values and take "+
			"no action input", 2*k)
	}
	for i, critic := range []network.NeuralNet{critic1, critic2} {
		if critic.Outputs() != 1 || critic.ActionSize() != k {
			return nil, fmt.Errorf("new: critic %v must output 1 value and "+
				"take an action input of size %v", i+1, k)
		}
	}

	target1, err := critic1.Clone()
	if err != nil {
		return nil, fmt.Errorf("new: could not create target critic: %w", err)
	}
	target2, err := critic2.Clone()
	if err != nil {
		return nil, fmt.Errorf("new: could not create target critic: %w", err)
	}

	temp, err := newTemperature(c.InitLogAlpha, c.AlphaSolver)
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	targetEntropy := -float64(k)
	if c.TargetEntropy != nil {
		targetEntropy = *c.TargetEntropy
	}

	src := rand.NewSource(seed)
	return &SAC{
		spec:          spec,
		actions:       k,
		actor:         actor,
		critic1:       critic1,
		critic2:       critic2,
		target1:       target1,
		target2:       target2,
		temperature:   temp,
		targetEntropy: targetEntropy,
		gamma:         c.Gamma,
		tau:           c.Tau,
		src:           src,
		noise:         &distuv.Normal{Mu: 0, Sigma: 1, Src: src},
	}, nil
}

// SelectAction samples masked action probabilities from the actor and
// an action index from them. In evaluation mode the mean logits are
// used and the most probable legal action is chosen.
func (s *SAC) SelectAction(state *graph.State) (timestep.Action, error) {
	if err := state.Validate(s.spec); err != nil {
		return timestep.Action{}, fmt.Errorf("selectaction: %w", err)
	}

	obs, err := graph.Collate([]*graph.Observation{state.Observation})
	if err != nil {
		return timestep.Action{}, fmt.Errorf("selectaction: %w", err)
	}
	out, err := s.actor.Forward(obs, nil)
	if err != nil {
		return timestep.Action{}, fmt.Errorf("selectaction: %w", err)
	}
	if !floatutils.AllFinite(out.RawMatrix().Data...) {
		return timestep.Action{}, fmt.Errorf("selectaction: %w: actor "+
			"output %v", agent.ErrDiverged, out.RawRowView(0))
	}

	noise := s.noise
	if s.eval {
		noise = nil
	}
	policy, err := sample(out, [][]bool{state.Legal}, noise)
	if err != nil {
		return timestep.Action{}, fmt.Errorf("selectaction: %w", err)
	}

	probs := policy.probs.RawRowView(0)
	action := timestep.Action{Probabilities: append([]float64(nil),
		probs...)}
	if s.eval {
		action.Index = floats.MaxIdx(probs)
	} else {
		dist := distuv.NewCategorical(probs, s.src)
		action.Index = int(dist.Rand())
	}
	return action, nil
}

// Learn performs one update of the actor, temperature and critics on
// a batch of transitions and then updates the target critics
func (s *SAC) Learn(b *timestep.Batch) (agent.Metrics, error) {
	n := float64(b.Len())
	alpha := s.temperature.Alpha()

	// Actor
	out, err := s.actor.Forward(b.States, nil)
	if err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}
	if !floatutils.AllFinite(out.RawMatrix().Data...) {
		return nil, fmt.Errorf("learn: %w: non-finite actor output",
			agent.ErrDiverged)
	}
	policy, err := sample(out, boolRows(b.Masks), s.noise)
	if err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}

	actorLoss, gradProbs, err := s.actorLoss(b.States, policy, alpha)
	if err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}
	weights := make([]float64, b.Len())
	for i := range weights {
		weights[i] = alpha / n
	}
	if err := s.actor.Step(b.States, nil, policy.backward(gradProbs,
		weights)); err != nil {
		return nil, fmt.Errorf("learn: could not step actor: %w", err)
	}

	// Temperature
	coef := floatutils.Mean(policy.logPi) + s.targetEntropy
	alphaLoss, err := s.temperature.step(coef)
	if err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}

	// Critics
	y, err := s.criticTarget(b)
	if err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}
	critic1Loss, err := regress(s.critic1, b, y)
	if err != nil {
		return nil, fmt.Errorf("learn: critic1: %w", err)
	}
	critic2Loss, err := regress(s.critic2, b, y)
	if err != nil {
		return nil, fmt.Errorf("learn: critic2: %w", err)
	}

	// Target critics
	if err := network.Polyak(s.target1, s.critic1, s.tau); err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}
	if err := network.Polyak(s.target2, s.critic2, s.tau); err != nil {
		return nil, fmt.Errorf("learn: %w", err)
	}

	metrics := agent.Metrics{
		"actor_loss":   actorLoss,
		"alpha_loss":   alphaLoss,
		"critic1_loss": critic1Loss,
		"critic2_loss": critic2Loss,
		"alpha":        alpha,
	}
	if err := metrics.Check(); err != nil {
		return metrics, fmt.Errorf("learn: %w", err)
	}
	return metrics, nil
}

// actorLoss returns mean(α log π - min(Q1, Q2)) over the batch and the
// gradient of -mean(min(Q1, Q2)) with respect to the action
// probabilities
func (s *SAC) actorLoss(obs *graph.Batch, policy *policySample,
	alpha float64) (float64, *mat.Dense, error) {
	rows, _ := policy.probs.Dims()
	n := float64(rows)

	q1, err := s.critic1.Forward(obs, policy.probs)
	if err != nil {
		return 0, nil, err
	}
	q2, err := s.critic2.Forward(obs, policy.probs)
	if err != nil {
		return 0, nil, err
	}

	// Route the gradient of the minimum through whichever critic
	// attains it
	up1 := mat.NewDense(rows, 1, nil)
	up2 := mat.NewDense(rows, 1, nil)
	var loss float64
	for i := 0; i < rows; i++ {
		minQ := math.Min(q1.At(i, 0), q2.At(i, 0))
		loss += alpha*policy.logPi[i] - minQ
		if q1.At(i, 0) <= q2.At(i, 0) {
			up1.Set(i, 0, -1/n)
		} else {
			up2.Set(i, 0, -1/n)
		}
	}

	grad1, err := s.critic1.ActionGrad(obs, policy.probs, up1)
	if err != nil {
		return 0, nil, err
	}
	grad2, err := s.critic2.ActionGrad(obs, policy.probs, up2)
	if err != nil {
		return 0, nil, err
	}
	grad1.Add(grad1, grad2)

	return loss / n, grad1, nil
}

// criticTarget returns r + γ(1-done)(min(Q1', Q2')(s', a') - α log π(a'|s'))
// with a' sampled from the current actor
func (s *SAC) criticTarget(b *timestep.Batch) ([]float64, error) {
	out, err := s.actor.Forward(b.NextStates, nil)
	if err != nil {
		return nil, err
	}
	next, err := sample(out, boolRows(b.NextMasks), s.noise)
	if err != nil {
		return nil, err
	}

	q1, err := s.target1.Forward(b.NextStates, next.probs)
	if err != nil {
		return nil, err
	}
	q2, err := s.target2.Forward(b.NextStates, next.probs)
	if err != nil {
		return nil, err
	}

	alpha := s.temperature.Alpha()
	y := make([]float64, b.Len())
	for i := range y {
		v := math.Min(q1.At(i, 0), q2.At(i, 0)) - alpha*next.logPi[i]
		y[i] = b.Rewards[i] + s.gamma*(1-b.Dones[i])*v
	}
	return y, nil
}

// regress takes one step of critic towards targets y on the stored
// actions and returns the loss 0.5 * MSE before the step
func regress(critic network.NeuralNet, b *timestep.Batch,
	y []float64) (float64, error) {
	q, err := critic.Forward(b.States, b.Actions)
	if err != nil {
		return 0, err
	}

	n := float64(b.Len())
	upstream := mat.NewDense(b.Len(), 1, nil)
	var loss float64
	for i := range y {
		diff := q.At(i, 0) - y[i]
		loss += 0.5 * diff * diff
		upstream.Set(i, 0, diff/n)
	}

	if err := critic.Step(b.States, b.Actions, upstream); err != nil {
		return 0, err
	}
	return loss / n, nil
}

// Networks implements the agent.Learner interface
func (s *SAC) Networks() map[string]network.NeuralNet {
	return map[string]network.NeuralNet{
		"actor":          s.actor,
		"critic1":        s.critic1,
		"critic2":        s.critic2,
		"critic1_target": s.target1,
		"critic2_target": s.target2,
	}
}

// Alpha returns the current entropy temperature
func (s *SAC) Alpha() float64 {
	return s.temperature.Alpha()
}

// Eval implements the agent.Learner interface
func (s *SAC) Eval() { s.eval = true }

// Train implements the agent.Learner interface
func (s *SAC) Train() { s.eval = false }

// IsEval implements the agent.Learner interface
func (s *SAC) IsEval() bool { return s.eval }
