package agent

import (
	"errors"
	"fmt"
)

// Type is the type of a learning algorithm
type Type string

const (
	SAC Type = "sac"
	DQN Type = "dqn"
)

// Handshake values sent by the simulator with the first observation of
// a session to select the learning algorithm
const (
	SignalSAC = 1111
	SignalDQN = 2222
)

// ErrUnknownSignal is returned for a handshake value that selects no
// learning algorithm
var ErrUnknownSignal = errors.New("unknown handshake signal")

// TypeFromSignal returns the Type selected by a handshake value
func TypeFromSignal(signal int) (Type, error) {
	switch signal {
	case SignalSAC:
		return SAC, nil
	case SignalDQN:
		return DQN, nil
	default:
		return "", fmt.Errorf("typefromsignal: %w: %v", ErrUnknownSignal,
			signal)
	}
}

// UnmarshalText implements encoding.TextUnmarshaler
func (t *Type) UnmarshalText(text []byte) error {
	switch Type(text) {
	case SAC, DQN:
		*t = Type(text)
		return nil
	default:
		return fmt.Errorf("unmarshaltext: unknown learner type %q", text)
	}
}
