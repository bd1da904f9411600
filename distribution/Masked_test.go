package distribution

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
)

func TestMaskedSumsToOne(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for trial := 0; trial < 100; trial++ {
		logits := make([]float64, 4)
		probs := make([]float64, 4)
		mask := make([]bool, 4)
		for i := range logits {
			logits[i] = rng.NormFloat64() * 5
			probs[i] = rng.Float64()
			mask[i] = rng.Intn(2) == 0
		}
		mask[rng.Intn(4)] = true

		for _, create := range []func() (*Categorical, error){
			func() (*Categorical, error) { return Masked(logits, mask) },
			func() (*Categorical, error) { return MaskedProbs(probs, mask) },
		} {
			c, err := create()
			require.NoError(t, err)

			p := c.Probs()
			assert.InDelta(t, 1.0, floats.Sum(p), 1e-9)
			for i := range p {
				if !mask[i] {
					assert.Less(t, p[i], 1e-8)
				}
			}
		}
	}
}

func TestDegenerate(t *testing.T) {
	none := []bool{false, false, false, false}

	_, err := Masked([]float64{1, 2, 3, 4}, none)
	assert.True(t, errors.Is(err, ErrDegenerate))

	_, err = MaskedProbs([]float64{1, 2, 3, 4}, none)
	assert.True(t, errors.Is(err, ErrDegenerate))

	_, err = UniformLegal(none)
	assert.True(t, errors.Is(err, ErrDegenerate))

	// Legal actions exist but carry no mass
	_, err = MaskedProbs([]float64{1, 0, 0, 0}, []bool{false, true, true,
		false})
	assert.True(t, errors.Is(err, ErrDegenerate))

	_, err = Masked([]float64{1, 2}, []bool{true})
	assert.True(t, errors.Is(err, ErrDegenerate))
}

func TestLogProbsAndEntropy(t *testing.T) {
	c, err := UniformLegal([]bool{true, false, true, false})
	require.NoError(t, err)

	assert.Equal(t, []float64{0.5, 0, 0.5, 0}, c.Probs())
	logProbs := c.LogProbs()
	assert.InDelta(t, math.Log(0.5), logProbs[0], 1e-12)
	assert.True(t, math.IsInf(logProbs[1], -1))
	assert.InDelta(t, math.Log(0.5), c.NegEntropy(), 1e-12)
}

func TestSampleOnlyLegal(t *testing.T) {
	mask := []bool{false, true, false, true}
	c, err := Masked([]float64{10, 0, 10, 1}, mask)
	require.NoError(t, err)

	src := rand.NewSource(42)
	counts := make([]int, 4)
	for i := 0; i < 1000; i++ {
		counts[c.Sample(src)]++
	}
	assert.Zero(t, counts[0])
	assert.Zero(t, counts[2])
	assert.Greater(t, counts[3], counts[1])
	assert.Equal(t, 3, c.Argmax())
}

func TestSoftmaxBackward(t *testing.T) {
	x := []float64{0.3, -1.2, 2.0}
	g := []float64{1.0, -0.5, 0.25}
	grad := SoftmaxBackward(Softmax(x), g)

	// Central finite differences of <g, softmax(x)>
	const h = 1e-6
	for i := range x {
		plus := append([]float64(nil), x...)
		minus := append([]float64(nil), x...)
		plus[i] += h
		minus[i] -= h
		want := (floats.Dot(g, Softmax(plus)) -
			floats.Dot(g, Softmax(minus))) / (2 * h)
		assert.InDelta(t, want, grad[i], 1e-6)
	}
}

func TestMaskedArgmax(t *testing.T) {
	i, err := MaskedArgmax([]float64{5, -3, 1, 4},
		[]bool{false, true, false, true})
	require.NoError(t, err)
	assert.Equal(t, 3, i)

	// Illegal values never win, even when all legal values are negative
	i, err = MaskedArgmax([]float64{0, -3, 0, -4},
		[]bool{false, true, false, true})
	require.NoError(t, err)
	assert.Equal(t, 1, i)
}
