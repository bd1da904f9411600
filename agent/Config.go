package agent

import (
	"fmt"
	"sort"

	"github.com/samuelfneumann/rlroute/graph"
)

// Config represents a configuration for creating a Learner
type Config interface {
	// Create creates the Learner that the Config describes for
	// observations conforming to spec
	Create(spec graph.Spec, seed uint64) (Learner, error)

	// Validate returns an error describing whether or not the
	// configuration is valid
	Validate() error

	// Type returns the type of Learner the Config creates
	Type() Type
}

// Registered default configurations. No Type is registered with this
// package upon initialization. Each learner package registers its own
// default Config to avoid circular imports.
var registered = make(map[Type]Config)

// Register registers the default Config of a Type
func Register(t Type, c Config) {
	registered[t] = c
}

// Default returns the registered default Config of a Type
func Default(t Type) (Config, error) {
	c, ok := registered[t]
	if !ok {
		return nil, fmt.Errorf("default: learner type %q not registered", t)
	}
	return c, nil
}

// Registered returns the registered Types in sorted order
func Registered() []Type {
	types := make([]Type, 0, len(registered))
	for t := range registered {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Configs holds one Config per learner Type. A session picks one of
// them once the learner Type is known.
type Configs map[Type]Config

// New creates the Learner of Type t. If no Config of that Type is
// held, the registered default is used.
func (c Configs) New(t Type, spec graph.Spec, seed uint64) (Learner,
	error) {
	config, ok := c[t]
	if !ok {
		var err error
		if config, err = Default(t); err != nil {
			return nil, fmt.Errorf("new: %w", err)
		}
	}

	if config.Type() != t {
		return nil, fmt.Errorf("new: config of type %q cannot create "+
			"learner of type %q", config.Type(), t)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}

	learner, err := config.Create(spec, seed)
	if err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	return learner, nil
}

// New creates the Learner of Type t from its registered default Config
func New(t Type, spec graph.Spec, seed uint64) (Learner, error) {
	return Configs{}.New(t, spec, seed)
}
