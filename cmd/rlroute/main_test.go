package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/samuelfneumann/rlroute/experiment/checkpointer"
	"github.com/samuelfneumann/rlroute/expreplay"
	"github.com/samuelfneumann/rlroute/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "rlroute version dev\n", out)
}

const trainConfig = `
seed: 3
log:
  level: error
replay:
  capacity: 8
  batch_size: 2
  snapshot:
    path: %[1]s
training:
  episodes: 1
  steps_per_episode: 1
  save_every: 1
  checkpoint_dir: %[1]s/models
dqn:
  network:
    hidden: [4]
    activations: [relu]
environment:
  signal: 2222
  agents: 2
  steps: 60
  mask_change: 0.05
`

func TestTrainInspect(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rlroute.yaml")
	require.NoError(t, os.WriteFile(path,
		[]byte(fmt.Sprintf(trainConfig, dir)), 0o644))

	_, err := execute(t, "train", "--config", path)
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, expreplay.DefaultSnapshotFile))
	assert.FileExists(t, filepath.Join(dir, "models", "q"+checkpointer.Extension))
	assert.FileExists(t, filepath.Join(dir, "models",
		"q_target"+checkpointer.Extension))

	out, err := execute(t, "inspect", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "transitions: 8/8")

	// Offline training continues from the checkpoints
	_, err = execute(t, "offline", "--config", path, "--algorithm", "dqn",
		"--episodes", "2")
	require.NoError(t, err)
}

func TestInvalidFlags(t *testing.T) {
	_, err := execute(t, "train", "--episodes", "0")
	assert.Error(t, err)

	_, err = execute(t, "offline", "--algorithm", "ppo")
	assert.Error(t, err)

	_, err = execute(t, "train", "--config", "missing.yaml")
	assert.Error(t, err)
}

func TestSummarize(t *testing.T) {
	transitions := []timestep.Transition{
		{Action: timestep.Action{Probabilities: make([]float64, 4), Index: 1},
			Reward: 1},
		{Action: timestep.Action{Probabilities: make([]float64, 4), Index: 1},
			Reward: 3, Done: true},
		{Action: timestep.Action{Probabilities: make([]float64, 4), Index: 3},
			Reward: 2},
	}
	s := summarize(transitions, []float64{1, 3, 2})

	assert.Equal(t, 3, s.size)
	assert.Equal(t, 1, s.dones)
	assert.InDelta(t, 2.0, s.rewardMean, 1e-12)
	assert.InDelta(t, 1.0, s.rewardStd, 1e-12)
	assert.Equal(t, 1.0, s.weightMin)
	assert.Equal(t, 3.0, s.weightMax)
	assert.Equal(t, []int{0, 2, 0, 1}, s.actions)

	var out bytes.Buffer
	s.write(&out, 10)
	assert.Contains(t, out.String(), "transitions: 3/10")
	assert.Contains(t, out.String(), "link 1:      2 (66.7%)")

	empty := summarize(nil, nil)
	out.Reset()
	empty.write(&out, 10)
	assert.Equal(t, "transitions: 0/10\n", out.String())
}
