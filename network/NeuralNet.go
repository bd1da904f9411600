// Package network implements the function approximators used by the
// learners. Any approximator satisfying NeuralNet can be used, whatever
// its internal architecture.
package network

import (
	"encoding/gob"
	"fmt"

	"github.com/samuelfneumann/rlroute/graph"
	"gonum.org/v1/gonum/mat"
)

// NeuralNet is a function approximator over batches of graph
// observations and, optionally, actions.
//
// Each row of the output corresponds to one observation of the batch.
// If ActionSize() is 0, the actions argument is ignored and may be nil.
//
// Step performs a single solver step on the parameters of the NeuralNet
// minimizing Σ output ⊙ upstream. The upstream gradient is expected to
// already include any averaging over the batch. ActionGrad returns the
// gradient of Σ output ⊙ upstream with respect to the action input.
// Neither changes the actions or observations.
type NeuralNet interface {
	Forward(obs *graph.Batch, actions *mat.Dense) (*mat.Dense, error)
	ActionGrad(obs *graph.Batch, actions, upstream *mat.Dense) (*mat.Dense,
		error)
	Step(obs *graph.Batch, actions, upstream *mat.Dense) error

	// Outputs returns the number of outputs per observation
	Outputs() int

	// ActionSize returns the size of the action input
	ActionSize() int

	// Weights returns a copy of the parameters, in a fixed order
	Weights() []*mat.Dense
	SetWeights([]*mat.Dense) error

	// Clone returns a deep copy of the NeuralNet with fresh solver
	// state
	Clone() (NeuralNet, error)

	gob.GobEncoder
	gob.GobDecoder
}

// PolyakWeights sets dst ← tau * src + (1 - tau) * dst element-wise
func PolyakWeights(dst, src []*mat.Dense, tau float64) error {
	if len(dst) != len(src) {
		return fmt.Errorf("polyakweights: cannot average %v parameters "+
			"with %v parameters", len(dst), len(src))
	}

	for i := range dst {
		dr, dc := dst[i].Dims()
		sr, sc := src[i].Dims()
		if dr != sr || dc != sc {
			return fmt.Errorf("polyakweights: parameter %v shape mismatch "+
				"\n\twant(%v, %v) \n\thave(%v, %v)", i, dr, dc, sr, sc)
		}

		var scaled mat.Dense
		scaled.Scale(tau, src[i])
		dst[i].Scale(1-tau, dst[i])
		dst[i].Add(dst[i], &scaled)
	}
	return nil
}

// Polyak sets the parameters of target to a Polyak average of its own
// parameters and those of local:
//
//	θ_target ← τ θ_local + (1 - τ) θ_target
func Polyak(target, local NeuralNet, tau float64) error {
	weights := target.Weights()
	if err := PolyakWeights(weights, local.Weights(), tau); err != nil {
		return fmt.Errorf("polyak: %w", err)
	}
	return target.SetWeights(weights)
}

// Set sets the parameters of dst to those of src
func Set(dst, src NeuralNet) error {
	return dst.SetWeights(src.Weights())
}

// CopyWeights returns a deep copy of weights
func CopyWeights(weights []*mat.Dense) []*mat.Dense {
	out := make([]*mat.Dense, len(weights))
	for i := range weights {
		out[i] = mat.DenseCopyOf(weights[i])
	}
	return out
}

// setWeights copies src into dst, checking that shapes match
func setWeights(dst, src []*mat.Dense) error {
	if len(dst) != len(src) {
		return fmt.Errorf("setweights: invalid number of parameters "+
			"\n\twant(%v) \n\thave(%v)", len(dst), len(src))
	}
	for i := range dst {
		dr, dc := dst[i].Dims()
		sr, sc := src[i].Dims()
		if dr != sr || dc != sc {
			return fmt.Errorf("setweights: parameter %v shape mismatch "+
				"\n\twant(%v, %v) \n\thave(%v, %v)", i, dr, dc, sr, sc)
		}
	}
	for i := range dst {
		dst[i].Copy(src[i])
	}
	return nil
}
