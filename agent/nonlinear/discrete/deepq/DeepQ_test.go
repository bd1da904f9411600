package deepq

import (
	"errors"
	"math"
	"testing"

	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/network"
	"github.com/samuelfneumann/rlroute/network/networktest"
	"github.com/samuelfneumann/rlroute/timestep"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

var spec = networktest.Spec

var _ agent.EGreedy = (*DeepQ)(nil)

// newTestDeepQ returns a DeepQ whose action values are 10, 20, 30 and
// 40 for every state
func newTestDeepQ(t *testing.T, epsilon float64) (*DeepQ,
	*networktest.Linear) {
	t.Helper()
	q := networktest.New(spec, 0, spec.Actions, 0.1, 0)
	for j := 0; j < spec.Actions; j++ {
		q.B.Set(0, j, float64(10*(j+1)))
	}

	c := DefaultConfig()
	c.Epsilon = epsilon
	d, err := New(spec, q, c, 1)
	require.NoError(t, err)
	return d, q
}

func TestGreedyWithEpsilonOne(t *testing.T) {
	d, _ := newTestDeepQ(t, 1)
	rng := rand.New(rand.NewSource(1))

	tests := []struct {
		codes []int
		want  int
	}{
		{[]int{2, 2, 2, 2}, 3},
		{[]int{2, 3, 2, 1}, 2},
		{[]int{3, 0, 0, 0}, 0},
		{[]int{0, 2, 0, 1}, 1},
	}
	for _, test := range tests {
		for i := 0; i < 20; i++ {
			action, err := d.SelectAction(networktest.State(rng, spec,
				test.codes))
			require.NoError(t, err)
			assert.Equal(t, test.want, action.Index)

			want := make([]float64, spec.Actions)
			want[test.want] = 1
			assert.Equal(t, want, action.Probabilities)
		}
	}
}

func TestLegalWithEpsilonZero(t *testing.T) {
	d, _ := newTestDeepQ(t, 0)
	rng := rand.New(rand.NewSource(2))

	codes := []int{2, 1, 0, 3}
	seen := make(map[int]int)
	for i := 0; i < 500; i++ {
		action, err := d.SelectAction(networktest.State(rng, spec, codes))
		require.NoError(t, err)
		seen[action.Index]++
	}

	assert.Len(t, seen, 2)
	assert.Greater(t, seen[0], 0)
	assert.Greater(t, seen[3], 0)

	_, err := d.SelectAction(networktest.State(rng, spec, []int{1, 1, 0, 0}))
	assert.Error(t, err)
}

func TestSetEpsilon(t *testing.T) {
	d, _ := newTestDeepQ(t, 0.5)
	d.SetEpsilon(0.99)
	assert.Equal(t, 0.99, d.Epsilon())

	d.Eval()
	assert.True(t, d.IsEval())
	assert.Equal(t, 0.99, d.Epsilon(), "evaluation mode keeps epsilon")
	d.Train()
	assert.False(t, d.IsEval())
}

func TestLearnPolyak(t *testing.T) {
	d, q := newTestDeepQ(t, 1)
	rng := rand.New(rand.NewSource(3))

	prev := d.targetNet.Weights()
	metrics, err := d.Learn(networktest.Batch(rng, spec, 6, []int{2, 0, 2, 3}))
	require.NoError(t, err)
	assert.Contains(t, metrics, "q_loss")
	assert.Equal(t, 1, q.StepCalls)

	for i, w := range d.targetNet.Weights() {
		var want, scaled mat.Dense
		want.Scale(0.99, prev[i])
		scaled.Scale(0.01, q.Weights()[i])
		want.Add(&want, &scaled)
		assert.True(t, mat.EqualApprox(&want, w, 1e-12))
	}
	assert.Len(t, d.Networks(), 2)
}

func TestLearnTarget(t *testing.T) {
	d, q := newTestDeepQ(t, 1)
	rng := rand.New(rand.NewSource(4))

	// With zero weights the action values are exactly the biases
	s := networktest.State(rng, spec, []int{2, 2, 2, 2})
	next := networktest.State(rng, spec, []int{2, 3, 0, 1})
	b, err := timestep.NewBatch([]timestep.Transition{
		{
			State:     s,
			Action:    timestep.Action{Probabilities: []float64{1, 0, 0, 0}},
			NextState: next,
			Reward:    1,
		},
		{
			State:     s,
			Action:    timestep.Action{Probabilities: []float64{0, 0, 0, 1}, Index: 3},
			NextState: next,
			Reward:    -1,
			Done:      true,
		},
	}, spec.Actions)
	require.NoError(t, err)

	// Greedy legal next action is 1 with value 20
	y0 := 1 + 0.99*20
	y1 := -1.0
	want := 0.5 * (math.Pow(10-y0, 2) + math.Pow(40-y1, 2)) / 2

	metrics, err := d.Learn(b)
	require.NoError(t, err)
	assert.InDelta(t, want, metrics["q_loss"], 1e-9)

	// Only the taken actions receive gradient
	require.NotNil(t, q.LastUpdate)
	assert.InDelta(t, (10-y0)/2, q.LastUpdate.At(0, 0), 1e-12)
	assert.Equal(t, 0.0, q.LastUpdate.At(0, 1))
	assert.InDelta(t, (40-y1)/2, q.LastUpdate.At(1, 3), 1e-12)
}

func TestLearnDiverged(t *testing.T) {
	d, q := newTestDeepQ(t, 1)
	rng := rand.New(rand.NewSource(5))

	q.B.Set(0, 0, math.NaN())
	_, err := d.Learn(networktest.Batch(rng, spec, 3, []int{2, 0, 0, 0}))
	assert.True(t, errors.Is(err, agent.ErrDiverged))
	assert.Equal(t, 0, q.StepCalls)
}

func TestNewInvalidNetwork(t *testing.T) {
	q := networktest.New(spec, spec.Actions, 1, 0.1, 0)
	_, err := New(spec, q, DefaultConfig(), 0)
	assert.Error(t, err)

	c := DefaultConfig()
	c.Epsilon = 1.5
	assert.Error(t, c.Validate())
}

func TestCreate(t *testing.T) {
	c := DefaultConfig()
	c.Network.Hidden = []int{8}
	c.Network.Activations = []*network.Activation{network.ReLU()}

	learner, err := c.Create(spec, 2)
	require.NoError(t, err)
	_, ok := learner.(agent.EGreedy)
	assert.True(t, ok)

	rng := rand.New(rand.NewSource(6))
	action, err := learner.SelectAction(networktest.State(rng, spec,
		[]int{0, 2, 0, 2}))
	require.NoError(t, err)
	assert.Contains(t, []int{1, 3}, action.Index)

	_, err = learner.Learn(networktest.Batch(rng, spec, 4, []int{2, 2, 0, 0}))
	require.NoError(t, err)

	registered, err := agent.Default(agent.DQN)
	require.NoError(t, err)
	assert.Equal(t, agent.DQN, registered.Type())
}
