package experiment

import (
	"context"
	"fmt"

	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/experiment/checkpointer"
	"github.com/samuelfneumann/rlroute/expreplay"
	"github.com/samuelfneumann/rlroute/graph"
)

// Offline is an experiment that trains a learner on a snapshot of
// experiences without interacting with the simulator
type Offline struct {
	runner
}

// NewOffline creates and returns a new offline experiment. The
// configured Algorithm determines the learner trained.
func NewOffline(store *expreplay.Store, c Config, configs agent.Configs,
	spec graph.Spec, opts ...Option) (*Offline, error) {
	if c.Algorithm == "" {
		return nil, fmt.Errorf("newoffline: no algorithm configured")
	}
	r, err := newRunner(store, c, configs, spec, opts)
	if err != nil {
		return nil, fmt.Errorf("newoffline: %w", err)
	}
	return &Offline{runner: r}, nil
}

// Run restores the store from its snapshot and runs a single training
// round on it. If the snapshot cannot be restored, the returned error
// is an *expreplay.PersistenceError.
func (o *Offline) Run(ctx context.Context) error {
	if _, err := o.store.Restore(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	o.logger.Info("offline learning", "size", o.store.Len(),
		"algorithm", o.config.Algorithm)
	o.recorder.ObserveStoreSize(o.store.Len())

	if !o.store.CanProvide(o.config.BatchSize) {
		return fmt.Errorf("run: %w", &expreplay.ExpReplayError{
			Op: "run",
			Err: fmt.Errorf("%w: snapshot of %v transitions cannot provide "+
				"batches of %v", expreplay.ErrInsufficientData, o.store.Len(),
				o.config.BatchSize),
		})
	}

	if err := o.createLearner(o.config.Algorithm); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	if err := o.train(ctx); err != nil {
		return fmt.Errorf("run: %w", err)
	}
	o.evaluate()

	if o.config.CheckpointDir != "" {
		dir := checkpointer.NewDir(o.config.CheckpointDir)
		if err := dir.Save(o.learner.Networks()); err != nil {
			return fmt.Errorf("run: %w", err)
		}
		o.logger.Info("saved checkpoint", "dir", o.config.CheckpointDir)
	}
	return nil
}
