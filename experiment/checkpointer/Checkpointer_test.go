package checkpointer

import (
	"os"
	"testing"

	"github.com/samuelfneumann/rlroute/network"
	"github.com/samuelfneumann/rlroute/network/networktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveLoad(t *testing.T) {
	dir := NewDir(t.TempDir())
	saved := map[string]network.NeuralNet{
		"q":        networktest.New(networktest.Spec, 0, 4, 0.1, 0.5),
		"q_target": networktest.New(networktest.Spec, 0, 4, 0.1, 0.25),
	}
	require.NoError(t, dir.Save(saved))

	_, err := os.Stat(dir.Path("q"))
	assert.NoError(t, err)

	q := networktest.New(networktest.Spec, 0, 4, 0.1, 0)
	actor := networktest.New(networktest.Spec, 0, 8, 0.1, 0)
	loaded, err := dir.Load(map[string]network.NeuralNet{
		"q":     q,
		"actor": actor,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"q"}, loaded)
	assert.Equal(t, 0.5, q.W.At(0, 0))
	assert.Equal(t, 0.0, actor.W.At(0, 0), "missing checkpoints are skipped")
}

type counter struct{ episodes []int }

func (c *counter) Checkpoint(episode int, _ map[string]network.NeuralNet) error {
	c.episodes = append(c.episodes, episode)
	return nil
}

func TestNStep(t *testing.T) {
	c := &counter{}
	n := NewNStep(5, c)
	for episode := 1; episode <= 15; episode++ {
		require.NoError(t, n.Checkpoint(episode, nil))
	}
	assert.Equal(t, []int{5, 10, 15}, c.episodes)
}
