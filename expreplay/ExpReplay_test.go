package expreplay

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/samuelfneumann/rlroute/distribution"
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/timestep"
	backend "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testState(t *testing.T) *graph.State {
	t.Helper()
	obs := &graph.Observation{
		Nodes:        [][]float64{{1, 2}, {3, 4}},
		Edges:        [][2]int{{0, 1}},
		EdgeFeatures: [][]float64{{0.5}},
	}
	s, err := graph.NewState(obs, []int{2, 2, 0, 3})
	require.NoError(t, err)
	return s
}

// fill pushes n transitions whose reward is their push index
func fill(t *testing.T, s *Store, n int, weight func(i int) float64) {
	t.Helper()
	st := testState(t)
	for i := 0; i < n; i++ {
		action := timestep.Action{Probabilities: []float64{1, 0, 0, 0}}
		s.Push(weight(i), st, action, st, float64(i), false)
	}
}

func ones(int) float64 { return 1.0 }

func rewards(batch []timestep.Transition) []float64 {
	r := make([]float64, len(batch))
	for i := range batch {
		r[i] = batch[i].Reward
	}
	return r
}

func TestPushRing(t *testing.T) {
	const capacity = 3

	for pushes := 0; pushes <= 10; pushes++ {
		s, err := New(capacity)
		require.NoError(t, err)
		fill(t, s, pushes, ones)

		want := pushes
		if want > capacity {
			want = capacity
		}
		assert.Equal(t, want, s.Len())
		assert.Len(t, s.Weights(), want)

		// Slot i mod C holds the latest push that mapped to it
		for i := 0; i < pushes; i++ {
			latest := i
			for j := i; j < pushes; j += capacity {
				latest = j
			}
			assert.Equal(t, float64(latest), s.transitions[i%capacity].Reward)
		}
	}
}

func TestSampleUniform(t *testing.T) {
	s, err := New(10, WithSeed(3))
	require.NoError(t, err)
	fill(t, s, 14, ones)

	batch, err := s.SampleUniform(10)
	require.NoError(t, err)
	assert.Len(t, batch, 10)

	// Without replacement, a full draw returns every stored transition
	assert.ElementsMatch(t, []float64{4, 5, 6, 7, 8, 9, 10, 11, 12, 13},
		rewards(batch))

	_, err = s.SampleUniform(11)
	assert.True(t, IsInsufficientData(err))
}

func TestSampleRecent(t *testing.T) {
	s, err := New(4)
	require.NoError(t, err)
	fill(t, s, 6, ones)

	batch, err := s.SampleRecent(3)
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 4, 5}, rewards(batch))

	_, err = s.SampleRecent(5)
	assert.True(t, IsInsufficientData(err))
}

func TestSampleWeightedOneHot(t *testing.T) {
	s, err := New(5, WithSeed(7))
	require.NoError(t, err)
	fill(t, s, 5, func(i int) float64 {
		if i == 3 {
			return 2.5
		}
		return 0
	})

	batch, err := s.SampleWeighted(50)
	require.NoError(t, err)
	for _, tr := range batch {
		assert.Equal(t, 3.0, tr.Reward)
	}
}

func TestSampleWeightedDegenerate(t *testing.T) {
	tests := map[string]float64{"zero": 0, "negative": -1}

	for name, w := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := New(3)
			require.NoError(t, err)
			fill(t, s, 3, func(int) float64 { return w })

			_, err = s.SampleWeighted(1)
			assert.True(t, errors.Is(err, distribution.ErrDegenerate))
		})
	}

	s, err := New(3)
	require.NoError(t, err)
	_, err = s.SampleWeighted(1)
	assert.True(t, IsInsufficientData(err))
}

func TestCanProvide(t *testing.T) {
	s, err := New(5)
	require.NoError(t, err)

	fill(t, s, 4, ones)
	assert.False(t, s.CanProvide(2), "store has not reached capacity")

	fill(t, s, 1, ones)
	assert.True(t, s.CanProvide(2))
	assert.True(t, s.CanProvide(5))
	assert.False(t, s.CanProvide(6))
	assert.True(t, s.Full())
}

func TestScenario(t *testing.T) {
	s, err := New(3, WithSelector(weightedSelector{}))
	require.NoError(t, err)
	fill(t, s, 3, func(i int) float64 {
		return []float64{1, 0, 0}[i]
	})

	batch, err := s.Sample(5)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0, 0, 0}, rewards(batch))

	assert.True(t, s.CanProvide(3))
	assert.False(t, s.CanProvide(4))
}

func TestAutoPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "experiences.bin")
	snap := NewFileSnapshotter(path)

	s, err := New(3, WithSnapshotter(snap))
	require.NoError(t, err)
	fill(t, s, 3, func(i int) float64 { return float64(i + 1) })
	require.True(t, s.CanProvide(3))

	// Pushes after the first persist are not written automatically
	fill(t, s, 1, ones)
	assert.True(t, s.CanProvide(3))

	restored, err := New(3, WithSnapshotter(snap))
	require.NoError(t, err)
	ok, err := restored.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	assert.Equal(t, []float64{0, 1, 2}, rewards(restored.Transitions()))
	assert.Equal(t, []float64{1, 2, 3}, restored.Weights())
	assert.True(t, restored.Full())
	assert.Equal(t, testState(t).Observation, restored.Transitions()[0].State.Observation)
}

func TestRestoreKeepsNewest(t *testing.T) {
	snap := NewFileSnapshotter(t.TempDir())
	assert.Equal(t, DefaultSnapshotFile, filepath.Base(snap.Path()))

	s, err := New(5, WithSnapshotter(snap))
	require.NoError(t, err)
	fill(t, s, 5, ones)
	require.NoError(t, s.Persist(context.Background()))

	small, err := New(2, WithSnapshotter(snap))
	require.NoError(t, err)
	ok, err := small.Restore(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []float64{3, 4}, rewards(small.Transitions()))

	// The ring continues after the restored transitions
	fill(t, small, 1, ones)
	assert.Equal(t, []float64{4, 0}, rewards(small.Transitions()))

	large, err := New(8, WithSnapshotter(snap))
	require.NoError(t, err)
	_, err = large.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, large.Len())
	assert.False(t, large.Full())
}

func TestRestoreMissing(t *testing.T) {
	s, err := New(3, WithSnapshotter(NewFileSnapshotter(
		filepath.Join(t.TempDir(), "missing.bin"))))
	require.NoError(t, err)

	ok, err := s.Restore(context.Background())
	assert.False(t, ok)
	assert.True(t, IsPersistence(err))
	assert.True(t, errors.Is(err, ErrNoSnapshot))

	bare, err := New(3)
	require.NoError(t, err)
	_, err = bare.Restore(context.Background())
	assert.True(t, errors.Is(err, ErrNoSnapshot))
	assert.True(t, IsPersistence(bare.Persist(context.Background())))
}

func TestRedisSnapshotter(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := backend.NewClient(&backend.Options{Addr: mr.Addr()})
	snap := NewRedisSnapshotterFromClient(client, WithKey("test:buffer"))
	defer snap.Close()

	s, err := New(4, WithSnapshotter(snap))
	require.NoError(t, err)

	_, err = s.Restore(context.Background())
	assert.True(t, errors.Is(err, ErrNoSnapshot))

	fill(t, s, 4, ones)
	require.True(t, s.CanProvide(4))
	assert.True(t, mr.Exists("test:buffer"))

	restored, err := New(4, WithSnapshotter(snap))
	require.NoError(t, err)
	ok, err := restored.Restore(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []float64{0, 1, 2, 3}, rewards(restored.Transitions()))
}

func TestConfig(t *testing.T) {
	c := Config{Capacity: 10, BatchSize: 4, Sampler: Recent}
	s, err := c.Create(nil, nil, 1)
	require.NoError(t, err)
	assert.Equal(t, Recent, s.Selector().Type())

	c.BatchSize = 11
	assert.Error(t, c.Validate())

	c = Config{Capacity: 10, BatchSize: 4, Sampler: "fifo"}
	assert.Error(t, c.Validate())
}
