// Package initwfn implements functionality to wrap Gorgonia InitWFn
// so that they can be YAML and JSON serialized into configuration
// files.
package initwfn

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"

	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Type describes different types of InitWFn that are available.
// Type is used to implement a basic type system of InitWFn's.
type Type string

// Available InitWFn types
const (
	GlorotU  Type = "GlorotU"
	GlorotN  Type = "GlorotN"
	HeU      Type = "HeU"
	HeN      Type = "HeN"
	Zeroes   Type = "Zeroes"
	Ones     Type = "Ones"
	Constant Type = "Constant"
	Gaussian Type = "Gaussian"
	Uniform  Type = "Uniform"
)

// configTypes maps each InitWFn Type to its concrete Config type
var configTypes = map[Type]reflect.Type{
	GlorotU:  reflect.TypeOf(GlorotUConfig{}),
	GlorotN:  reflect.TypeOf(GlorotNConfig{}),
	HeU:      reflect.TypeOf(HeUConfig{}),
	HeN:      reflect.TypeOf(HeNConfig{}),
	Zeroes:   reflect.TypeOf(ZeroesConfig{}),
	Ones:     reflect.TypeOf(OnesConfig{}),
	Constant: reflect.TypeOf(ConstantConfig{}),
	Gaussian: reflect.TypeOf(GaussianConfig{}),
	Uniform:  reflect.TypeOf(UniformConfig{}),
}

// InitWFn wraps Gorgonia InitWFn so that they can be marshalled and
// unmarshalled.
type InitWFn struct {
	initWFn G.InitWFn
	Type    `json:"type" yaml:"type"`
	Config  `json:"config" yaml:"config"`
}

// newInitWFn returns a new InitWFn
func newInitWFn(c Config) (*InitWFn, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new%v: %w", c.Type(), err)
	}
	init := InitWFn{Type: c.Type(), Config: c}
	init.initWFn = init.Config.Create()

	return &init, nil
}

// InitWFn returns the wrapped Gorgonia InitWFn
func (i *InitWFn) InitWFn() G.InitWFn {
	return i.initWFn
}

// Dense returns a new rows x cols matrix initialized by the InitWFn
func (i *InitWFn) Dense(rows, cols int) *mat.Dense {
	values := i.initWFn(tensor.Float64, rows, cols).([]float64)
	return mat.NewDense(rows, cols, values)
}

// String implements the fmt.Stringer interface
func (i *InitWFn) String() string {
	return fmt.Sprintf("{%v InitWFn: %v}", i.Type, i.Config)
}

// UnmarshalJSON implements the json.Unmarshaller interface
func (i *InitWFn) UnmarshalJSON(data []byte) error {
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

	i.Type = raw.Type
	i.Config = config
	i.initWFn = i.Config.Create()

	return nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface
func (i *InitWFn) UnmarshalYAML(value *yaml.Node) error {
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

	i.Type = raw.Type
	i.Config = config
	i.initWFn = i.Config.Create()

	return nil
}

// unmarshalConfig uses reflection to decode a Config into the concrete
// type registered for t
func unmarshalConfig(t Type, decode func(interface{}) error) (Config,
	error) {
	ty, found := configTypes[t]
	if !found {
		return nil, fmt.Errorf("unknown weight initializer %q", t)
	}

	value := reflect.New(ty)
	if err := decode(value.Interface()); err != nil {
		return nil, err
	}

	config := value.Elem().Interface().(Config)
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%v: %w", t, err)
	}
	return config, nil
}

// positive checks that a named parameter is finite and > 0
func positive(name string, v float64) error {
	if !(v > 0) || math.IsInf(v, 0) {
		return fmt.Errorf("%v must be finite and > 0, have %v", name, v)
	}
	return nil
}

// Config implements a Gorgonia InitWFn configuration and can be used to
// create the described Gorgonia InitWFn's.
type Config interface {
	// Create returns the Gorgonia InitWFn that the Config describes
	Create() G.InitWFn

	// Type returns the type of Gorgonia InitWFn that is returned
	Type() Type

	// Validate checks the parameters of the Config. Configs decoded
	// without parameters hold zero values, which most initializers
	// reject.
	Validate() error
}
