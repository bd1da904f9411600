// Package experiment implements the loop that connects learners to the
// routing simulator: it forms transitions from the interleaved
// decisions of the simulated agents, stores them for replay and trains
// the learner once enough experience has been collected.
package experiment

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/experiment/checkpointer"
	"github.com/samuelfneumann/rlroute/experiment/tracker"
	"github.com/samuelfneumann/rlroute/expreplay"
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/timestep"
	"github.com/samuelfneumann/rlroute/utils/floatutils"
	"github.com/samuelfneumann/rlroute/utils/logging"
	"github.com/samuelfneumann/rlroute/utils/progressbar"
)

// progressWidth is the width in characters of the training progress bar
const progressWidth = 40

// Config represents a configuration of an experiment
type Config struct {
	// Train determines whether the learner is trained at all
	Train bool `yaml:"train" json:"train"`

	// Offline learning trains from a restored snapshot of experiences
	// instead of from experiences collected in the simulation
	Offline bool `yaml:"offline" json:"offline"`

	// Algorithm is the learner trained by an offline run, which has no
	// simulator handshake to select one
	Algorithm agent.Type `yaml:"algorithm" json:"algorithm"`

	Episodes        int `yaml:"episodes" json:"episodes"`
	StepsPerEpisode int `yaml:"steps_per_episode" json:"steps_per_episode"`
	SaveEvery       int `yaml:"save_every" json:"save_every"`
	BatchSize       int `yaml:"batch_size" json:"batch_size"`

	// EvalEpsilon is the probability of the greedy action of epsilon
	// greedy learners once they stop training
	EvalEpsilon float64 `yaml:"eval_epsilon" json:"eval_epsilon"`

	// CheckpointDir is the directory networks are loaded from and saved
	// to. No checkpoints are used if empty.
	CheckpointDir string `yaml:"checkpoint_dir" json:"checkpoint_dir"`

	Seed uint64 `yaml:"seed" json:"seed"`
}

// DefaultConfig returns the default experiment configuration: 15
// episodes of 20 learning steps, checkpointing every 5 episodes
func DefaultConfig() Config {
	return Config{
		Train:           true,
		Algorithm:       agent.SAC,
		Episodes:        15,
		StepsPerEpisode: 20,
		SaveEvery:       5,
		BatchSize:       512,
		EvalEpsilon:     0.99,
		CheckpointDir:   "models",
	}
}

// Validate checks that the Config describes a runnable experiment
func (c Config) Validate() error {
	if c.Episodes < 1 {
		return fmt.Errorf("validate: episodes must be >= 1")
	}
	if c.StepsPerEpisode < 1 {
		return fmt.Errorf("validate: steps per episode must be >= 1")
	}
	if c.SaveEvery < 1 {
		return fmt.Errorf("validate: save every must be >= 1")
	}
	if c.BatchSize < 1 {
		return fmt.Errorf("validate: batch size must be >= 1")
	}
	if c.EvalEpsilon < 0 || c.EvalEpsilon > 1 {
		return fmt.Errorf("validate: evaluation epsilon must be in [0, 1]"+
			"\n\thave(%v)", c.EvalEpsilon)
	}
	return nil
}

// Recorder records the progress of an experiment, e.g. as metrics
type Recorder interface {
	ObserveMetrics(t agent.Type, m agent.Metrics)
	ObserveReward(total float64)
	ObserveStoreSize(size int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveMetrics(agent.Type, agent.Metrics) {}
func (nopRecorder) ObserveReward(float64)                    {}
func (nopRecorder) ObserveStoreSize(int)                     {}

// Option configures an experiment
type Option func(*runner)

// WithLogger sets the logger of an experiment
func WithLogger(logger *slog.Logger) Option {
	return func(r *runner) {
		r.logger = logger
	}
}

// WithRecorder sets the Recorder of an experiment
func WithRecorder(rec Recorder) Option {
	return func(r *runner) {
		r.recorder = rec
	}
}

// WithTrackers registers Trackers that track every TimeStep of a
// simulation and are saved when it ends
func WithTrackers(t ...tracker.Tracker) Option {
	return func(r *runner) {
		r.trackers = append(r.trackers, t...)
	}
}

// WithProgress displays a progress bar of training rounds on w
func WithProgress(w io.Writer) Option {
	return func(r *runner) {
		r.progress = w
	}
}

// runner holds what online and offline experiments share: the
// experience store, the learner configurations and the training round
type runner struct {
	config  Config
	spec    graph.Spec
	configs agent.Configs
	store   *expreplay.Store

	logger   *slog.Logger
	recorder Recorder
	trackers []tracker.Tracker
	progress io.Writer

	learner   agent.Learner
	algorithm agent.Type
	steps     int // learning steps taken
}

func newRunner(store *expreplay.Store, c Config, configs agent.Configs,
	spec graph.Spec, opts []Option) (runner, error) {
	if err := c.Validate(); err != nil {
		return runner{}, err
	}
	if err := spec.Validate(); err != nil {
		return runner{}, err
	}
	if store == nil {
		return runner{}, fmt.Errorf("no experience store")
	}
	if c.BatchSize > store.Capacity() {
		return runner{}, fmt.Errorf("cannot have batch size (%v) > "+
			"capacity (%v)", c.BatchSize, store.Capacity())
	}

	r := runner{
		config:   c,
		spec:     spec,
		configs:  configs,
		store:    store,
		logger:   logging.NewNop(),
		recorder: nopRecorder{},
	}
	for _, opt := range opts {
		opt(&r)
	}
	return r, nil
}

// Learner returns the learner of the experiment, or nil if the
// experiment has not been run
func (r *runner) Learner() agent.Learner {
	return r.learner
}

// Steps returns the number of learning steps taken
func (r *runner) Steps() int {
	return r.steps
}

// createLearner creates the learner of Type t and loads its
// checkpointed networks
func (r *runner) createLearner(t agent.Type) error {
	learner, err := r.configs.New(t, r.spec, r.config.Seed)
	if err != nil {
		return err
	}
	r.learner, r.algorithm = learner, t
	r.logger.Info("created learner", "algorithm", t)

	if r.config.CheckpointDir == "" {
		return nil
	}
	loaded, err := checkpointer.NewDir(r.config.CheckpointDir).
		Load(learner.Networks())
	if err != nil {
		return err
	}
	if len(loaded) > 0 {
		r.logger.Info("loaded checkpoints", "networks", loaded,
			"dir", r.config.CheckpointDir)
	}
	return nil
}

// evaluate switches the learner to its evaluation policy
func (r *runner) evaluate() {
	r.learner.Eval()
	if e, ok := r.learner.(agent.EGreedy); ok {
		e.SetEpsilon(r.config.EvalEpsilon)
	}
}

// push adds a transition to the store, weighted by its reward.
// Negative rewards get weight 0 so that weighted sampling never sees
// a negative weight; the transition keeps its reward.
func (r *runner) push(t timestep.Transition) {
	r.store.Add(floatutils.Max(t.Reward, 0), t)
	r.recorder.ObserveStoreSize(r.store.Len())
}

// train runs a training round: Episodes episodes of StepsPerEpisode
// learning steps on batches sampled from the store. Networks are
// checkpointed every SaveEvery episodes.
func (r *runner) train(ctx context.Context) error {
	var check checkpointer.Checkpointer
	if r.config.CheckpointDir != "" {
		check = checkpointer.NewNStep(r.config.SaveEvery,
			checkpointer.NewDir(r.config.CheckpointDir))
	}

	var bar *progressbar.ProgressBar
	if r.progress != nil {
		bar = progressbar.New(progressWidth, r.config.Episodes, r.progress)
	}

	r.learner.Train()
	for episode := 1; episode <= r.config.Episodes; episode++ {
		metrics, err := r.episode(ctx)
		if err != nil {
			return fmt.Errorf("train: episode %v: %w", episode, err)
		}

		attrs := []any{"episode", episode, "steps", r.steps}
		for _, name := range metrics.Names() {
			attrs = append(attrs, name, metrics[name])
		}
		r.logger.Info("training episode", attrs...)
		r.recorder.ObserveMetrics(r.algorithm, metrics)

		if bar != nil {
			bar.Increment()
			bar.Describe(fmt.Sprintf("episode %v/%v", episode,
				r.config.Episodes))
			if err := bar.Display(); err != nil {
				r.logger.Warn("could not display progress", "error", err)
			}
		}

		if check != nil {
			if err := check.Checkpoint(episode, r.learner.Networks()); err != nil {
				return fmt.Errorf("train: %w", err)
			}
			if episode%r.config.SaveEvery == 0 {
				r.logger.Info("saved checkpoint", "episode", episode,
					"dir", r.config.CheckpointDir)
			}
		}
	}
	return nil
}

// episode runs StepsPerEpisode learning steps and returns their mean
// metrics
func (r *runner) episode(ctx context.Context) (agent.Metrics, error) {
	mean := make(agent.Metrics)
	for i := 0; i < r.config.StepsPerEpisode; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		transitions, err := r.store.Sample(r.config.BatchSize)
		if err != nil {
			return nil, err
		}
		batch, err := timestep.NewBatch(transitions, r.spec.Actions)
		if err != nil {
			return nil, err
		}

		metrics, err := r.learner.Learn(batch)
		if err != nil {
			return nil, err
		}
		r.steps++

		for name, v := range metrics {
			mean[name] += v / float64(r.config.StepsPerEpisode)
		}
	}
	return mean, nil
}
