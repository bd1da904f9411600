package sac

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/rlroute/distribution"
	"github.com/samuelfneumann/rlroute/utils/floatutils"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// Bounds of the log standard deviation output by the actor
const (
	minLogStd = -20.0
	maxLogStd = 2.0
)

// policySample is a batch of actions sampled from the actor with the
// intermediate values needed to backpropagate through the sampling.
//
// For each row, logits u = μ + σz with σ = exp(clip(ℓ)), unmasked
// probabilities p0 = softmax(u) and masked probabilities p.
type policySample struct {
	probs *mat.Dense
	logPi []float64

	unmasked [][]float64
	sigma    [][]float64
	z        [][]float64
	clamped  [][]bool
	masks    [][]bool
}

// sample computes masked action probabilities for each row of the
// actor output. If noise is nil, the mean logits are used.
func sample(out *mat.Dense, masks [][]bool, noise *distuv.Normal) (
	*policySample, error) {
	rows, cols := out.Dims()
	k := cols / 2
	if len(masks) != rows {
		return nil, fmt.Errorf("sample: %v masks for %v rows", len(masks),
			rows)
	}

	s := &policySample{
		probs:    mat.NewDense(rows, k, nil),
		logPi:    make([]float64, rows),
		unmasked: make([][]float64, rows),
		sigma:    make([][]float64, rows),
		z:        make([][]float64, rows),
		clamped:  make([][]bool, rows),
		masks:    masks,
	}

	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		logits := make([]float64, k)
		s.sigma[i] = make([]float64, k)
		s.z[i] = make([]float64, k)
		s.clamped[i] = make([]bool, k)

		for j := 0; j < k; j++ {
			logStd := row[k+j]
			s.clamped[i][j] = logStd < minLogStd || logStd > maxLogStd
			s.sigma[i][j] = math.Exp(floatutils.Clip(logStd, minLogStd,
				maxLogStd))
			if noise != nil {
				s.z[i][j] = noise.Rand()
			}
			logits[j] = row[j] + s.sigma[i][j]*s.z[i][j]
		}

		s.unmasked[i] = distribution.Softmax(logits)
		cat, err := distribution.MaskedProbs(s.unmasked[i], masks[i])
		if err != nil {
			return nil, fmt.Errorf("sample: row %v: %w", i, err)
		}
		s.probs.SetRow(i, cat.Probs())
		s.logPi[i] = cat.NegEntropy()
	}
	return s, nil
}

// backward returns the gradient with respect to the actor output of a
// loss whose gradient with respect to the masked probabilities is
// gradProbs, plus weights[i] times the gradient of log π of row i
func (s *policySample) backward(gradProbs *mat.Dense,
	weights []float64) *mat.Dense {
	rows, k := s.probs.Dims()
	grad := mat.NewDense(rows, 2*k, nil)

	for i := 0; i < rows; i++ {
		p := s.probs.RawRowView(i)
		g := make([]float64, k)
		copy(g, gradProbs.RawRowView(i))

		// d(Σ p log p)/dp = log p + 1
		for j := range g {
			if p[j] > 0 {
				g[j] += weights[i] * (math.Log(p[j]) + 1)
			}
		}

		// Backward through p = m ⊙ p0 / Σ(m ⊙ p0)
		var total, dot float64
		for j := range p {
			if s.masks[i][j] {
				total += s.unmasked[i][j]
			}
			dot += g[j] * p[j]
		}
		h := make([]float64, k)
		for j := range h {
			if s.masks[i][j] {
				h[j] = (g[j] - dot) / total
			}
		}

		du := distribution.SoftmaxBackward(s.unmasked[i], h)
		for j := 0; j < k; j++ {
			grad.Set(i, j, du[j])
			if !s.clamped[i][j] {
				grad.Set(i, k+j, du[j]*s.sigma[i][j]*s.z[i][j])
			}
		}
	}
	return grad
}

// boolRows converts a matrix of 0/1 masks into boolean rows
func boolRows(m *mat.Dense) [][]bool {
	rows, cols := m.Dims()
	out := make([][]bool, rows)
	for i := range out {
		out[i] = make([]bool, cols)
		for j := range out[i] {
			out[i][j] = m.At(i, j) > 0.5
		}
	}
	return out
}
