// Package distribution implements categorical distributions over a
// subset of legal actions. Illegal actions always receive zero (or, on
// the logit path, negligible) probability.
package distribution

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// LogitSentinel replaces the logits of illegal actions before
// normalization
const LogitSentinel = -1e8

// ErrDegenerate is returned when a distribution cannot be normalized:
// no legal action, or no probability mass on any legal action
var ErrDegenerate = errors.New("degenerate distribution")

// Categorical is a categorical distribution over k candidate actions
// restricted to a legality mask
type Categorical struct {
	probs []float64
	mask  []bool
}

// Masked returns the distribution softmax(logits) after the logits of
// illegal actions have been replaced by LogitSentinel
func Masked(logits []float64, mask []bool) (*Categorical, error) {
	if err := checkMask(len(logits), mask); err != nil {
		return nil, fmt.Errorf("masked: %w", err)
	}

	masked := make([]float64, len(logits))
	for i := range logits {
		if mask[i] {
			masked[i] = logits[i]
		} else {
			masked[i] = LogitSentinel
		}
	}

	probs := Softmax(masked)
	if !finite(probs) {
		return nil, fmt.Errorf("masked: %w: non-finite logits %v",
			ErrDegenerate, logits)
	}
	return &Categorical{probs: probs, mask: copyMask(mask)}, nil
}

// MaskedProbs returns the distribution probs after the probabilities
// of illegal actions have been zeroed and the remaining mass
// renormalized
func MaskedProbs(probs []float64, mask []bool) (*Categorical, error) {
	if err := checkMask(len(probs), mask); err != nil {
		return nil, fmt.Errorf("maskedprobs: %w", err)
	}

	masked := make([]float64, len(probs))
	for i := range probs {
		if probs[i] < 0 || math.IsNaN(probs[i]) {
			return nil, fmt.Errorf("maskedprobs: %w: invalid probability %v",
				ErrDegenerate, probs[i])
		}
		if mask[i] {
			masked[i] = probs[i]
		}
	}

	sum := floats.Sum(masked)
	if sum <= 0 || math.IsInf(sum, 0) {
		return nil, fmt.Errorf("maskedprobs: %w: no mass on legal actions",
			ErrDegenerate)
	}
	floats.Scale(1/sum, masked)

	return &Categorical{probs: masked, mask: copyMask(mask)}, nil
}

// UniformLegal returns the uniform distribution over legal actions
func UniformLegal(mask []bool) (*Categorical, error) {
	if err := checkMask(len(mask), mask); err != nil {
		return nil, fmt.Errorf("uniformlegal: %w", err)
	}

	ones := make([]float64, len(mask))
	for i := range ones {
		ones[i] = 1.0
	}
	return MaskedProbs(ones, mask)
}

// Probs returns a copy of the probability vector
func (c *Categorical) Probs() []float64 {
	probs := make([]float64, len(c.probs))
	copy(probs, c.probs)
	return probs
}

// LogProbs returns the log-probability vector. Actions with zero
// probability have a log-probability of -Inf.
func (c *Categorical) LogProbs() []float64 {
	logProbs := make([]float64, len(c.probs))
	for i, p := range c.probs {
		logProbs[i] = math.Log(p)
	}
	return logProbs
}

// NegEntropy returns Σ p log p over the actions with positive
// probability
func (c *Categorical) NegEntropy() float64 {
	return NegEntropy(c.probs)
}

// Sample samples an action index
func (c *Categorical) Sample(src rand.Source) int {
	return int(distuv.NewCategorical(c.probs, src).Rand())
}

// Argmax returns the index of the most probable legal action
func (c *Categorical) Argmax() int {
	best := -1
	for i, p := range c.probs {
		if !c.mask[i] {
			continue
		}
		if best < 0 || p > c.probs[best] {
			best = i
		}
	}
	return best
}

// Len returns the number of candidate actions
func (c *Categorical) Len() int {
	return len(c.probs)
}

// Softmax returns the numerically stable softmax of x
func Softmax(x []float64) []float64 {
	lse := floats.LogSumExp(x)
	out := make([]float64, len(x))
	for i := range x {
		out[i] = math.Exp(x[i] - lse)
	}
	return out
}

// SoftmaxBackward returns the gradient with respect to the input of a
// softmax given its output p and the gradient g with respect to p:
// p ⊙ (g - <g, p>)
func SoftmaxBackward(p, g []float64) []float64 {
	dot := floats.Dot(g, p)
	out := make([]float64, len(p))
	for i := range p {
		out[i] = p[i] * (g[i] - dot)
	}
	return out
}

// NegEntropy returns Σ p log p over the entries of p that are positive
func NegEntropy(p []float64) float64 {
	var h float64
	for _, pi := range p {
		if pi > 0 {
			h += pi * math.Log(pi)
		}
	}
	return h
}

// MaskedArgmax returns the index of the largest value at a legal
// position, ignoring illegal positions entirely
func MaskedArgmax(values []float64, mask []bool) (int, error) {
	if err := checkMask(len(values), mask); err != nil {
		return -1, fmt.Errorf("maskedargmax: %w", err)
	}

	best := -1
	for i, v := range values {
		if mask[i] && (best < 0 || v > values[best]) {
			best = i
		}
	}
	return best, nil
}

func checkMask(n int, mask []bool) error {
	if len(mask) != n {
		return fmt.Errorf("%w: mask size %v does not match %v actions",
			ErrDegenerate, len(mask), n)
	}
	for _, legal := range mask {
		if legal {
			return nil
		}
	}
	return fmt.Errorf("%w: no legal actions", ErrDegenerate)
}

func copyMask(mask []bool) []bool {
	out := make([]bool, len(mask))
	copy(out, mask)
	return out
}

func finite(x []float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
