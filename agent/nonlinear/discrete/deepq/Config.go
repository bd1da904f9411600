package deepq

import (
	"fmt"

	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/initwfn"
	"github.com/samuelfneumann/rlroute/network"
	"github.com/samuelfneumann/rlroute/solver"
)

func init() {
	agent.Register(agent.DQN, DefaultConfig())
}

// Config implements a configuration for a DeepQ agent
type Config struct {
	Network network.Config `yaml:"network" json:"network"`

	// Probability of the greedy action during training
	Epsilon float64 `yaml:"epsilon" json:"epsilon"`

	Gamma float64 `yaml:"gamma" json:"gamma"`
	Tau   float64 `yaml:"tau" json:"tau"` // Polyak averaging constant
}

// DefaultConfig returns the default DeepQ configuration
func DefaultConfig() Config {
	init, err := initwfn.NewGlorotU(1.0)
	if err != nil {
		panic(err)
	}
	s, err := solver.NewDefaultAdam(3e-4, 1)
	if err != nil {
		panic(err)
	}

	return Config{
		Network: network.Config{
			Hidden:      []int{64, 64},
			Activations: []*network.Activation{network.ReLU(), network.ReLU()},
			InitWFn:     init,
			Solver:      s,
		},
		Epsilon: 0.9,
		Gamma:   0.99,
		Tau:     0.01,
	}
}

// Type returns the type of the configuration
func (c Config) Type() agent.Type {
	return agent.DQN
}

// Validate checks a Config to ensure it is a valid configuration of a
// DeepQ agent
func (c Config) Validate() error {
	if err := c.Network.Validate(); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	return c.validateHyperparameters()
}

func (c Config) validateHyperparameters() error {
	if c.Epsilon < 0 || c.Epsilon > 1 {
		return fmt.Errorf("validate: epsilon must be in [0, 1] "+
			"\n\thave(%v)", c.Epsilon)
	}
	if c.Gamma < 0 || c.Gamma > 1 {
		return fmt.Errorf("validate: discount must be in [0, 1] "+
			"\n\thave(%v)", c.Gamma)
	}
	if c.Tau <= 0 || c.Tau > 1 {
		return fmt.Errorf("validate: polyak constant must be in (0, 1] "+
			"\n\thave(%v)", c.Tau)
	}
	return nil
}

// Create creates a new DeepQ agent with a GraphMLP action-value
// network
func (c Config) Create(spec graph.Spec, seed uint64) (agent.Learner,
	error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	q, err := network.NewGraphMLP(spec, 0, spec.Actions, c.Network)
	if err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}
	return New(spec, q, c, seed)
}
