package sac

import (
	"fmt"

	"github.com/samuelfneumann/rlroute/agent"
	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/initwfn"
	"github.com/samuelfneumann/rlroute/network"
	"github.com/samuelfneumann/rlroute/solver"
)

func init() {
	agent.Register(agent.SAC, DefaultConfig())
}

// Config implements a configuration for a SAC agent
type Config struct {
	Actor  network.Config `yaml:"actor" json:"actor"`
	Critic network.Config `yaml:"critic" json:"critic"`

	// Solver for log α
	AlphaSolver  *solver.Solver `yaml:"alpha_solver" json:"alpha_solver"`
	InitLogAlpha float64        `yaml:"init_log_alpha" json:"init_log_alpha"`

	// TargetEntropy defaults to -k for k candidate actions
	TargetEntropy *float64 `yaml:"target_entropy,omitempty" json:"target_entropy,omitempty"`

	Gamma float64 `yaml:"gamma" json:"gamma"` // Discount factor
	Tau   float64 `yaml:"tau" json:"tau"`     // Polyak averaging constant
}

// DefaultConfig returns the default SAC configuration: two hidden
// layers of 64 ReLU units for every network, Adam with step size 3e-4,
// γ = 0.99 and τ = 0.01
func DefaultConfig() Config {
	net := func() network.Config {
		init, err := initwfn.NewGlorotU(1.0)
		if err != nil {
			panic(err)
		}
		s, err := solver.NewDefaultAdam(3e-4, 1)
		if err != nil {
			panic(err)
		}
		return network.Config{
			Hidden:      []int{64, 64},
			Activations: []*network.Activation{network.ReLU(), network.ReLU()},
			InitWFn:     init,
			Solver:      s,
		}
	}

	alphaSolver, err := solver.NewDefaultAdam(3e-4, 1)
	if err != nil {
		panic(err)
	}

	return Config{
		Actor:       net(),
		Critic:      net(),
		AlphaSolver: alphaSolver,
		Gamma:       0.99,
		Tau:         0.01,
	}
}

// Type returns the type of the configuration
func (c Config) Type() agent.Type {
	return agent.SAC
}

// Validate checks a Config to ensure it is a valid configuration of a
// SAC agent
func (c Config) Validate() error {
	if err := c.Actor.Validate(); err != nil {
		return fmt.Errorf("validate: actor: %w", err)
	}
	if err := c.Critic.Validate(); err != nil {
		return fmt.Errorf("validate: critic: %w", err)
	}
	return c.validateHyperparameters()
}

func (c Config) validateHyperparameters() error {
	if c.AlphaSolver == nil {
		return fmt.Errorf("validate: no solver for the temperature")
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

// Create creates a new SAC agent with GraphMLP actor and critics
func (c Config) Create(spec graph.Spec, seed uint64) (agent.Learner,
	error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("create: %w", err)
	}

	actor, err := network.NewGraphMLP(spec, 0, 2*spec.Actions, c.Actor)
	if err != nil {
		return nil, fmt.Errorf("create: actor: %w", err)
	}
	critic1, err := network.NewGraphMLP(spec, spec.Actions, 1, c.Critic)
	if err != nil {
		return nil, fmt.Errorf("create: critic1: %w", err)
	}
	critic2, err := network.NewGraphMLP(spec, spec.Actions, 1, c.Critic)
	if err != nil {
		return nil, fmt.Errorf("create: critic2: %w", err)
	}

	return New(spec, actor, critic1, critic2, c, seed)
}
