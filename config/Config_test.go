package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/expreplay"
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/network"
	"github.com/samuelfneumann/rlroute/solver"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.NoError(t, c.Validate())

	e := c.Experiment()
	assert.Equal(t, 15, e.Episodes)
	assert.Equal(t, 20, e.StepsPerEpisode)
	assert.Equal(t, 5, e.SaveEvery)
	assert.Equal(t, 0.99, e.EvalEpsilon)
	assert.Equal(t, c.Replay.BatchSize, e.BatchSize)
	assert.Equal(t, graph.DefaultSpec(), c.Graph)

	learners := c.Learners()
	assert.Equal(t, agent.SAC, learners[agent.SAC].Type())
	assert.Equal(t, agent.DQN, learners[agent.DQN].Type())
}

func TestDecode(t *testing.T) {
	in := `
seed: 7
log:
  level: debug
replay:
  capacity: 64
  batch_size: 16
  sampler: weighted
  snapshot:
    backend: redis
    address: localhost:6379
    key: test:experiences
    ttl: 1h
training:
  offline: true
  algorithm: dqn
  episodes: 3
dqn:
  network:
    hidden: [8]
    activations: [tanh]
    init:
      type: GlorotU
      config:
        gain: 1
    solver:
      type: Vanilla
      config:
        step_size: 0.1
  epsilon: 0.5
`
	c, err := Decode(strings.NewReader(in))
	require.NoError(t, err)

	assert.Equal(t, uint64(7), c.Seed)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 64, c.Replay.Capacity)
	assert.Equal(t, expreplay.Weighted, c.Replay.Sampler)
	assert.Equal(t, time.Hour, c.Replay.Snapshot.TTL)
	assert.Equal(t, agent.DQN, c.Training.Algorithm)
	assert.Equal(t, 3, c.Training.Episodes)
	assert.Equal(t, 20, c.Training.StepsPerEpisode, "defaults are kept")
	assert.Equal(t, []int{8}, c.DQN.Network.Hidden)
	assert.Equal(t, network.TanH().String(), c.DQN.Network.Activations[0].String())
	assert.Equal(t, solver.Vanilla, c.DQN.Network.Solver.Type)
	assert.Equal(t, 0.5, c.DQN.Epsilon)

	e := c.Experiment()
	assert.True(t, e.Offline)
	assert.Equal(t, 16, e.BatchSize)
	assert.Equal(t, uint64(7), e.Seed)

	snap, err := c.Replay.Snapshot.Snapshotter()
	require.NoError(t, err)
	redis, ok := snap.(*expreplay.RedisSnapshotter)
	require.True(t, ok)
	assert.Equal(t, "test:experiences", redis.Key())
	require.NoError(t, redis.Close())
}

func TestDecodeInvalid(t *testing.T) {
	tests := map[string]string{
		"unknown field":  "replay:\n  size: 3\n",
		"batch size":     "replay:\n  capacity: 4\n  batch_size: 8\n",
		"sampler":        "replay:\n  sampler: fifo\n",
		"backend":        "replay:\n  snapshot:\n    backend: s3\n",
		"redis address":  "replay:\n  snapshot:\n    backend: redis\n",
		"episodes":       "training:\n  episodes: 0\n",
		"log level":      "log:\n  level: verbose\n",
		"algorithm":      "training:\n  algorithm: ppo\n",
		"tau":            "sac:\n  tau: 0\n",
		"offline":        "training:\n  offline: true\n  algorithm: \"\"\n",
		"environment":    "environment:\n  agents: 0\n",
		"node features":  "graph:\n  node_features: 0\n",
		"eval epsilon":   "training:\n  eval_epsilon: 2\n",
		"dqn activation": "dqn:\n  network:\n    activations: [softsign]\n",
	}

	for name, in := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(in))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rlroute.yaml")
	require.NoError(t, os.WriteFile(path, []byte(
		"replay:\n  capacity: 32\n  batch_size: 8\n  snapshot:\n    path: "+
			dir+"\n"), 0o644))

	c, err := Load(path)
	require.NoError(t, err)

	store, err := c.Store(nil)
	require.NoError(t, err)
	assert.Equal(t, 32, store.Capacity())

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	c, err = Load(empty)
	require.NoError(t, err)
	assert.Equal(t, Default().Replay.Capacity, c.Replay.Capacity)
}

func TestLogger(t *testing.T) {
	c := Default()
	logger, err := c.Logger()
	require.NoError(t, err)
	assert.NotNil(t, logger)

	c.Log.Level = "loud"
	_, err = c.Logger()
	assert.Error(t, err)
}
