// Package solver implements functionality to wrap Gorgonia Solvers
// so that they can be YAML and JSON serialized into configuration
// files.
package solver

import (
	"encoding/json"
	"fmt"
	"reflect"

	"gopkg.in/yaml.v3"
	G "gorgonia.org/gorgonia"
)

// Type describes different types of solvers that are available
type Type string

// Available solver types
const (
	Adam    Type = "Adam"
	Vanilla Type = "Vanilla"
	RMSProp Type = "RMSProp"
)

// configTypes maps each solver Type to its concrete Config type
var configTypes = map[Type]reflect.Type{
	Adam:    reflect.TypeOf(AdamConfig{}),
	Vanilla: reflect.TypeOf(VanillaConfig{}),
	RMSProp: reflect.TypeOf(RMSPropConfig{}),
}

// Solver wraps Gorgonia Solvers so that they can be marshalled and
// unmarshalled.
//
// A Gorgonia Solver keeps per-parameter state, so a single Solver
// should only ever step a single model. Use Create to obtain a fresh
// Gorgonia Solver with the same configuration for each model.
type Solver struct {
	G.Solver `json:"-" yaml:"-"`
	Type     `json:"type" yaml:"type"`
	Config   `json:"config" yaml:"config"`
}

// newSolver returns a new solver with the given type and configuration.
func newSolver(t Type, c Config) (*Solver, error) {
	if !c.ValidType(t) {
		return nil, fmt.Errorf("newSolver: invalid solver type %v for "+
			"configuration %T", t, c)
	}
	solver := Solver{Type: t, Config: c}
	solver.Solver = solver.Config.Create()

	return &solver, nil
}

// String implements the fmt.Stringer interface
func (s *Solver) String() string {
	return fmt.Sprintf("{%v Solver: %+v}", s.Type, s.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (s *Solver) UnmarshalJSON(data []byte) error {
	var raw struct {
		Type   Type            `json:"type"`
		Config json.RawMessage `json:"config"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	config, err := unmarshalConfig(raw.Type, func(v interface{}) error {
		if len(raw.Config) == 0 {
			return nil
		}
		return json.Unmarshal(raw.Config, v)
	})
	if err != nil {
		return fmt.Errorf("unmarshaljson: %w", err)
	}

	s.Type = raw.Type
	s.Config = config
	s.Solver = s.Config.Create()

	return nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface
func (s *Solver) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Type   Type      `yaml:"type"`
		Config yaml.Node `yaml:"config"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	config, err := unmarshalConfig(raw.Type, func(v interface{}) error {
		if raw.Config.Kind == 0 {
			return nil
		}
		return raw.Config.Decode(v)
	})
	if err != nil {
		return fmt.Errorf("unmarshalyaml: %w", err)
	}

	s.Type = raw.Type
	s.Config = config
	s.Solver = s.Config.Create()

	return nil
}

// unmarshalConfig uses reflection to decode a Config into the concrete
// type registered for t
func unmarshalConfig(t Type, decode func(interface{}) error) (Config,
	error) {
	ty, found := configTypes[t]
	if !found {
		return nil, fmt.Errorf("unknown solver type %q", t)
	}

	value := reflect.New(ty)
	if err := decode(value.Interface()); err != nil {
		return nil, err
	}
	return value.Elem().Interface().(Config), nil
}

// Config implements a Gorgonia Solver configuration and can be used to
// create Gorgonia Solvers they describe.
type Config interface {
	Create() G.Solver

	// ValidType returns whether a specific Solver type can be created
	// with the Config
	ValidType(Type) bool
}
