package experiment

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/agent/nonlinear/discrete/deepq"
	"github.com/samuelfneumann/rlroute/environment/synthetic"
	"github.com/samuelfneumann/rlroute/experiment/checkpointer"
	"github.com/samuelfneumann/rlroute/expreplay"
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/network/networktest"
	"github.com/samuelfneumann/rlroute/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
)

// linearDQN creates DeepQ learners with a linear action-value network.
// Raw telemetry features are large, so the step size is small.
type linearDQN struct{}

func (linearDQN) Type() agent.Type { return agent.DQN }
func (linearDQN) Validate() error  { return nil }

func (linearDQN) Create(spec graph.Spec, seed uint64) (agent.Learner,
	error) {
	q := networktest.New(spec, 0, spec.Actions, 1e-7, 0)
	learner, err := deepq.New(spec, q, deepq.DefaultConfig(), seed)
	if err != nil {
		return nil, err
	}
	return learner, nil
}

var configs = agent.Configs{agent.DQN: linearDQN{}}

type recorder struct {
	metrics []agent.Metrics
	rewards []float64
	sizes   []int
}

func (r *recorder) ObserveMetrics(_ agent.Type, m agent.Metrics) {
	r.metrics = append(r.metrics, m)
}

func (r *recorder) ObserveReward(total float64) {
	r.rewards = append(r.rewards, total)
}

func (r *recorder) ObserveStoreSize(size int) {
	r.sizes = append(r.sizes, size)
}

func testConfig(dir string) Config {
	c := DefaultConfig()
	c.Algorithm = agent.DQN
	c.Episodes = 3
	c.StepsPerEpisode = 2
	c.SaveEvery = 2
	c.BatchSize = 4
	c.CheckpointDir = dir
	return c
}

func simulator(t *testing.T, signal, steps int) *synthetic.Simulator {
	t.Helper()
	sim, err := synthetic.New(synthetic.Config{
		Signal:     signal,
		Agents:     2,
		Steps:      steps,
		MaskChange: 0.05,
	}, 1)
	require.NoError(t, err)
	return sim
}

// snapshot persists n random transitions conforming to spec and
// returns the Snapshotter holding them
func snapshot(t *testing.T, spec graph.Spec, n int) expreplay.Snapshotter {
	t.Helper()
	snap := expreplay.NewFileSnapshotter(filepath.Join(t.TempDir(),
		expreplay.DefaultSnapshotFile))
	store, err := expreplay.New(n, expreplay.WithSnapshotter(snap))
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(5))
	codes := []int{3, 2, 0, 1}
	for i := 0; i < n; i++ {
		action := timestep.Action{Probabilities: []float64{0.5, 0.5, 0, 0},
			Index: 1}
		store.Push(1, networktest.State(rng, spec, codes), action,
			networktest.State(rng, spec, codes), rng.Float64(), i%5 == 0)
	}
	require.NoError(t, store.Persist(context.Background()))
	return snap
}

func TestOnline(t *testing.T) {
	dir := t.TempDir()
	sim := simulator(t, agent.SignalDQN, 300)
	store, err := expreplay.New(16, expreplay.WithSeed(1))
	require.NoError(t, err)

	rec := &recorder{}
	var progress bytes.Buffer
	on, err := NewOnline(sim, store, testConfig(dir), configs,
		graph.DefaultSpec(), WithRecorder(rec), WithProgress(&progress))
	require.NoError(t, err)
	require.NoError(t, on.Run(context.Background()))

	assert.True(t, store.Full())
	assert.Len(t, rec.metrics, 3)
	assert.Contains(t, rec.metrics[0], "q_loss")
	assert.Equal(t, 6, on.Steps())
	assert.Len(t, rec.rewards, 300)
	assert.NotEmpty(t, progress.String())

	learner, ok := on.Learner().(agent.EGreedy)
	require.True(t, ok)
	assert.True(t, learner.IsEval())
	assert.Equal(t, 0.99, learner.Epsilon())

	for name := range learner.Networks() {
		assert.FileExists(t, filepath.Join(dir, name+checkpointer.Extension))
	}

	// Actions report training until the single training round
	actions := sim.Actions()
	require.Len(t, actions, 300)
	assert.True(t, actions[0].Train)
	assert.False(t, actions[len(actions)-1].Train)
	assert.Equal(t, []float64{0.25, 0.25, 0.25, 0.25}, actions[0].Probabilities)

	_, err = sim.Reset()
	assert.Error(t, err, "environment closed after the run")
}

func TestOnlineEvaluate(t *testing.T) {
	sim := simulator(t, agent.SignalDQN, 50)
	store, err := expreplay.New(16)
	require.NoError(t, err)

	c := testConfig("")
	c.Train = false
	on, err := NewOnline(sim, store, c, configs, graph.DefaultSpec())
	require.NoError(t, err)
	require.NoError(t, on.Run(context.Background()))

	assert.Equal(t, 0, store.Len())
	assert.Equal(t, 0, on.Steps())
	assert.True(t, on.Learner().IsEval())
	for _, a := range sim.Actions() {
		assert.False(t, a.Train)
	}
}

func TestOnlineUnknownSignal(t *testing.T) {
	sim := simulator(t, 42, 10)
	store, err := expreplay.New(16)
	require.NoError(t, err)

	on, err := NewOnline(sim, store, testConfig(""), configs,
		graph.DefaultSpec())
	require.NoError(t, err)

	err = on.Run(context.Background())
	assert.True(t, errors.Is(err, agent.ErrUnknownSignal))
	_, err = sim.Reset()
	assert.Error(t, err)
}

func TestOnlineFromSnapshot(t *testing.T) {
	snap := snapshot(t, graph.DefaultSpec(), 16)
	store, err := expreplay.New(16, expreplay.WithSnapshotter(snap))
	require.NoError(t, err)

	c := testConfig("")
	c.Offline = true
	rec := &recorder{}
	on, err := NewOnline(simulator(t, agent.SignalDQN, 100), store, c,
		configs, graph.DefaultSpec(), WithRecorder(rec))
	require.NoError(t, err)
	require.NoError(t, on.Run(context.Background()))

	// Offline learning never stores experiences of the simulation
	assert.Equal(t, []int{16}, rec.sizes)
	assert.Equal(t, 6, on.Steps())
	assert.True(t, on.Learner().IsEval())
}

func TestOffline(t *testing.T) {
	spec := networktest.Spec
	dir := t.TempDir()
	store, err := expreplay.New(10,
		expreplay.WithSnapshotter(snapshot(t, spec, 10)))
	require.NoError(t, err)

	off, err := NewOffline(store, testConfig(dir), configs, spec)
	require.NoError(t, err)
	require.NoError(t, off.Run(context.Background()))

	assert.Equal(t, 6, off.Steps())
	assert.True(t, off.Learner().IsEval())
	assert.FileExists(t, filepath.Join(dir, "q"+checkpointer.Extension))
	assert.FileExists(t, filepath.Join(dir, "q_target"+checkpointer.Extension))

	// The trained networks are loaded by the next learner
	next, err := NewOffline(store, testConfig(dir), configs, spec)
	require.NoError(t, err)
	require.NoError(t, next.createLearner(agent.DQN))
	assert.Equal(t, off.Learner().Networks()["q"].Weights(),
		next.Learner().Networks()["q"].Weights())
}

func TestOfflineErrors(t *testing.T) {
	spec := networktest.Spec
	store, err := expreplay.New(10, expreplay.WithSnapshotter(
		expreplay.NewFileSnapshotter(t.TempDir())))
	require.NoError(t, err)

	c := testConfig("")
	c.Algorithm = ""
	_, err = NewOffline(store, c, configs, spec)
	assert.Error(t, err)

	off, err := NewOffline(store, testConfig(""), configs, spec)
	require.NoError(t, err)
	err = off.Run(context.Background())
	assert.True(t, expreplay.IsPersistence(err))
	assert.Nil(t, off.Learner())

	c = testConfig("")
	c.BatchSize = 11
	_, err = NewOffline(store, c, configs, spec)
	assert.Error(t, err)
}

func TestSessionFallback(t *testing.T) {
	sim := simulator(t, agent.SignalDQN, 200)
	dir := t.TempDir()
	store, err := expreplay.New(16, expreplay.WithSnapshotter(
		expreplay.NewFileSnapshotter(dir)))
	require.NoError(t, err)

	c := testConfig("")
	c.Offline = true
	s, err := NewSession(sim, store, c, configs, graph.DefaultSpec())
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))

	// Without a snapshot the session collects experiences online, and
	// persists them once the store is full
	assert.True(t, store.Full())
	require.NotNil(t, s.Learner())
	assert.True(t, s.Learner().IsEval())
	assert.Len(t, sim.Actions(), 200)
	assert.FileExists(t, filepath.Join(dir, expreplay.DefaultSnapshotFile))
}

func TestSessionOffline(t *testing.T) {
	spec := networktest.Spec
	store, err := expreplay.New(10,
		expreplay.WithSnapshotter(snapshot(t, spec, 10)))
	require.NoError(t, err)

	s, err := NewSession(nil, store, testConfig(""), configs, spec)
	require.NoError(t, err)
	err = s.Run(context.Background())
	assert.Error(t, err, "online session needs an environment")

	c := testConfig("")
	c.Offline = true
	s, err = NewSession(nil, store, c, configs, spec)
	require.NoError(t, err)
	require.NoError(t, s.Run(context.Background()))
	assert.True(t, s.Learner().IsEval())
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := map[string]func(*Config){
		"episodes":     func(c *Config) { c.Episodes = 0 },
		"steps":        func(c *Config) { c.StepsPerEpisode = 0 },
		"save every":   func(c *Config) { c.SaveEvery = 0 },
		"batch size":   func(c *Config) { c.BatchSize = 0 },
		"eval epsilon": func(c *Config) { c.EvalEpsilon = 1.5 },
	}
	for name, modify := range tests {
		t.Run(name, func(t *testing.T) {
			c := DefaultConfig()
			modify(&c)
			assert.Error(t, c.Validate())
		})
	}
}

func TestPushNegativeReward(t *testing.T) {
	sel, err := expreplay.CreateSelector(expreplay.Weighted)
	require.NoError(t, err)
	store, err := expreplay.New(3, expreplay.WithSelector(sel),
		expreplay.WithSeed(2))
	require.NoError(t, err)

	c := testConfig("")
	c.BatchSize = 2
	rec := &recorder{}
	r, err := newRunner(store, c, configs, graph.DefaultSpec(),
		[]Option{WithRecorder(rec)})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(3))
	state := networktest.State(rng, graph.DefaultSpec(), []int{2, 2, 0, 3})
	for _, reward := range []float64{-2, 1, -0.5} {
		r.push(timestep.Transition{
			State:     state,
			Action:    timestep.Action{Probabilities: []float64{1, 0, 0, 0}},
			NextState: state,
			Reward:    reward,
		})
	}

	// Rewards are kept, only the sampling weights are clamped
	assert.Equal(t, []float64{0, 1, 0}, store.Weights())
	stored := store.Transitions()
	assert.Equal(t, -2.0, stored[0].Reward)
	assert.Equal(t, -0.5, stored[2].Reward)
	assert.Equal(t, []int{1, 2, 3}, rec.sizes)

	require.True(t, store.CanProvide(c.BatchSize))
	batch, err := store.Sample(10)
	require.NoError(t, err)
	for _, tr := range batch {
		assert.Equal(t, 1.0, tr.Reward)
	}
}
