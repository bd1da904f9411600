package graph

import (
	"fmt"
	"strings"
)

// Mask codes sent upstream for each candidate action. A code combines
// two legality flags: whether the action was requested and whether it
// is actually available.
const (
	CodeNone      = 0
	CodeRequested = 1
	CodeActual    = 2
	CodeBoth      = 3
)

// Decompose splits a slice of mask codes into the requested and
// actual legality masks.
func Decompose(codes []int) (requested, actual []bool, err error) {
	requested = make([]bool, len(codes))
	actual = make([]bool, len(codes))

	for i, code := range codes {
		switch code {
		case CodeNone:
		case CodeRequested:
			requested[i] = true
		case CodeActual:
			actual[i] = true
		case CodeBoth:
			requested[i] = true
			actual[i] = true
		default:
			return nil, nil, fmt.Errorf("decompose: invalid mask code %v "+
				"at index %v", code, i)
		}
	}
	return requested, actual, nil
}

// State is an observation together with the action-legality masks the
// deciding agent faced when the observation was made. Legal is the
// actual-availability mask and is the mask used for action selection.
type State struct {
	Observation *Observation
	Codes       []int
	Requested   []bool
	Legal       []bool
}

// NewState returns a new State for an observation and its mask codes
func NewState(obs *Observation, codes []int) (*State, error) {
	requested, legal, err := Decompose(codes)
	if err != nil {
		return nil, fmt.Errorf("newstate: %w", err)
	}

	c := make([]int, len(codes))
	copy(c, codes)

	return &State{
		Observation: obs,
		Codes:       c,
		Requested:   requested,
		Legal:       legal,
	}, nil
}

// Validate checks that the State conforms to the Spec
func (s *State) Validate(spec Spec) error {
	if len(s.Legal) != spec.Actions {
		return &ContractError{
			Field: "mask size",
			Want:  spec.Actions,
			Have:  len(s.Legal),
		}
	}
	return s.Observation.Validate(spec)
}

// Signature returns a string identifying the legality context of the
// State, e.g. "mask_0123". Two States with the same signature offered
// the same legal actions to the agent.
func (s *State) Signature() string {
	var b strings.Builder
	b.WriteString("mask_")
	for _, code := range s.Codes {
		fmt.Fprintf(&b, "%d", code)
	}
	return b.String()
}

// NumLegal returns the number of legal actions in the State
func (s *State) NumLegal() int {
	n := 0
	for _, legal := range s.Legal {
		if legal {
			n++
		}
	}
	return n
}
