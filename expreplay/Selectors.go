package expreplay

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/rlroute/distribution"
	"gonum.org/v1/gonum/stat/distuv"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// SelectorType determines how a Store chooses the transitions it
// returns from Sample
type SelectorType string

const (
	Uniform  SelectorType = "uniform"
	Recent   SelectorType = "recent"
	Weighted SelectorType = "weighted"
)

// Selector implements functionality for choosing how data should be
// sampled from an experience replay buffer
type Selector interface {
	// choose selects the slots of the buffer at which n transitions
	// should be drawn
	choose(s *Store, n int) ([]int, error)

	// Type returns the type of the Selector
	Type() SelectorType
}

// CreateSelector returns the Selector of the given type
func CreateSelector(t SelectorType) (Selector, error) {
	switch t {
	case Uniform:
		return uniformSelector{}, nil
	case Recent:
		return recentSelector{}, nil
	case Weighted:
		return weightedSelector{}, nil
	default:
		return nil, fmt.Errorf("createselector: unknown selector type %q", t)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *SelectorType) UnmarshalText(text []byte) error {
	if _, err := CreateSelector(SelectorType(text)); err != nil {
		return err
	}
	*t = SelectorType(text)
	return nil
}

// uniformSelector selects transitions uniformly at random without
// replacement
type uniformSelector struct{}

func (uniformSelector) Type() SelectorType { return Uniform }

func (uniformSelector) choose(s *Store, n int) ([]int, error) {
	if n > s.Len() {
		return nil, insufficient(n, s.Len())
	}

	selected := make([]int, n)
	if n == 0 {
		return selected, nil
	}
	sampleuv.WithoutReplacement(selected, s.Len(), s.src)

	// Positions in insertion order map to slots of the ring
	for i := range selected {
		selected[i] = s.slot(selected[i])
	}
	return selected, nil
}

// recentSelector selects the most recently inserted transitions in
// insertion order
type recentSelector struct{}

func (recentSelector) Type() SelectorType { return Recent }

func (recentSelector) choose(s *Store, n int) ([]int, error) {
	if n > s.Len() {
		return nil, insufficient(n, s.Len())
	}

	selected := make([]int, n)
	for i := range selected {
		selected[i] = s.slot(s.Len() - n + i)
	}
	return selected, nil
}

// weightedSelector selects transitions with replacement, each with
// probability proportional to its weight
type weightedSelector struct{}

func (weightedSelector) Type() SelectorType { return Weighted }

func (weightedSelector) choose(s *Store, n int) ([]int, error) {
	if s.Len() == 0 && n > 0 {
		return nil, insufficient(n, 0)
	}

	weights := s.weights[:s.Len()]
	var total float64
	for i, w := range weights {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("%w: invalid weight %v at slot %v",
				distribution.ErrDegenerate, w, i)
		}
		total += w
	}
	if total <= 0 {
		return nil, fmt.Errorf("%w: all weights are zero",
			distribution.ErrDegenerate)
	}

	cat := distuv.NewCategorical(weights, s.src)
	selected := make([]int, n)
	for i := range selected {
		selected[i] = int(cat.Rand())
	}
	return selected, nil
}

func insufficient(want, have int) error {
	return fmt.Errorf("%w: requested %v transitions but only %v stored",
		ErrInsufficientData, want, have)
}
