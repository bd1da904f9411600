package experiment

import (
	"context"
	"errors"
	"fmt"

	"github.com/samuelfneumann/rlroute/agent"
	env "github.com/samuelfneumann/rlroute/environment"
	"github.com/samuelfneumann/rlroute/experiment/trackers"
	"github.com/samuelfneumann/rlroute/expreplay"
	"github.com/samuelfneumann/rlroute/graph"
	ts "github.com/samuelfneumann/rlroute/timestep"
)

// Online is an experiment that runs a learner in the simulator. The
// learning algorithm is selected by the simulator's handshake. While
// training, transitions are collected into the experience store and a
// single training round is run as soon as the store can provide
// batches, after which the learner only acts.
//
// If configured for offline learning, the store is first restored from
// its snapshot and no experiences of the simulation are stored.
type Online struct {
	runner
	env.Environment

	trajectories *Trajectories
	rewards      *trackers.Return
	training     bool
	offline      bool
}

// NewOnline creates and returns a new online experiment in the
// environment e
func NewOnline(e env.Environment, store *expreplay.Store, c Config,
	configs agent.Configs, spec graph.Spec, opts ...Option) (*Online,
	error) {
	r, err := newRunner(store, c, configs, spec, opts)
	if err != nil {
		return nil, fmt.Errorf("newonline: %w", err)
	}
	if e == nil {
		return nil, fmt.Errorf("newonline: no environment")
	}

	rewards := trackers.NewReturn("")
	r.trackers = append(r.trackers, rewards)

	return &Online{
		runner:       r,
		Environment:  e,
		trajectories: NewTrajectories(),
		rewards:      rewards,
	}, nil
}

// Run runs the simulation until it ends. The environment is closed
// when Run returns.
func (o *Online) Run(ctx context.Context) (err error) {
	defer func() {
		if cerr := o.Environment.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("run: %w", cerr)
		}
	}()

	step, err := o.Environment.Reset()
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	o.track(step)

	t, err := agent.TypeFromSignal(step.Signal)
	if err != nil {
		return fmt.Errorf("run: %w", err)
	}
	o.logger.Info("handshake", "signal", step.Signal, "algorithm", t)
	if err := o.createLearner(t); err != nil {
		return fmt.Errorf("run: %w", err)
	}

	o.training, o.offline = o.config.Train, o.config.Offline
	if !o.training {
		o.evaluate()
	} else if o.offline {
		o.restore(ctx)
	}

	action := o.startAction(step.AgentID)
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run: %w", err)
		}

		step, err = o.Environment.Step(action)
		if err != nil {
			return fmt.Errorf("run: %w", err)
		}
		o.track(step)

		if step.Last() {
			o.close(step)
			break
		}
		if step.State == nil {
			action = o.startAction(step.AgentID)
			continue
		}

		if action, err = o.act(ctx, step); err != nil {
			return fmt.Errorf("run: %w", err)
		}
	}

	o.logger.Info("simulation ended", "step", step.Number,
		"return", o.rewards.Total(),
		"moving_average", o.rewards.MovingAverage(),
		"trajectories", o.trajectories.Len())
	return o.save()
}

// restore restores the store from its snapshot for offline learning,
// falling back to online learning if there is no usable snapshot
func (o *Online) restore(ctx context.Context) {
	if _, err := o.store.Restore(ctx); err != nil {
		o.logger.Warn("online learning", "error", err)
		o.offline = false
		return
	}
	o.logger.Info("offline learning", "size", o.store.Len())
	o.recorder.ObserveStoreSize(o.store.Len())
}

// act selects the action of the agent deciding at step and, while
// training, stores the transition the decision completes and trains
// once the store is ready
func (o *Online) act(ctx context.Context, step ts.TimeStep) (ts.Action,
	error) {
	if err := step.State.Validate(o.spec); err != nil {
		return ts.Action{}, err
	}
	for i, code := range step.State.Codes {
		if code == graph.CodeActual {
			o.logger.Debug("link available but not requested",
				"agent", step.AgentID, "link", i,
				"signature", step.State.Signature())
		}
	}

	action, err := o.learner.SelectAction(step.State)
	if err != nil {
		return ts.Action{}, err
	}
	action.AgentID = step.AgentID
	action.Train = o.training

	if !o.training {
		return action, nil
	}

	transition, ok := o.trajectories.Observe(step.AgentID, step.State,
		action, step.Reward)
	if ok && !o.offline {
		o.push(transition)
	}

	if o.store.CanProvide(o.config.BatchSize) {
		o.logger.Info("training", "algorithm", o.algorithm,
			"size", o.store.Len(), "episodes", o.config.Episodes)
		if err := o.train(ctx); err != nil {
			return ts.Action{}, err
		}
		o.evaluate()
		o.training = false
		o.logger.Info("training finished", "steps", o.steps)
	}
	return action, nil
}

// close stores the terminal transition of the agent deciding at the
// last step
func (o *Online) close(step ts.TimeStep) {
	if step.State == nil || !o.training || o.offline {
		return
	}
	if t, ok := o.trajectories.Close(step.AgentID, step.State,
		step.Reward); ok {
		o.push(t)
	}
}

// startAction returns the action sent before the agent has been
// observed: uniform over all candidate links
func (o *Online) startAction(agentID int) ts.Action {
	probs := make([]float64, o.spec.Actions)
	for i := range probs {
		probs[i] = 1 / float64(len(probs))
	}
	return ts.Action{AgentID: agentID, Probabilities: probs,
		Train: o.training}
}

func (o *Online) track(step ts.TimeStep) {
	for _, t := range o.trackers {
		t.Track(step)
	}
	if !step.First() {
		o.recorder.ObserveReward(o.rewards.Total())
	}
}

// save saves the data of all trackers
func (o *Online) save() error {
	var errs []error
	for _, t := range o.trackers {
		errs = append(errs, t.Save())
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("save: %w", err)
	}
	return nil
}
