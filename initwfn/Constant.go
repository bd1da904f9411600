package initwfn

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

// ZeroesConfig sets every weight to 0. Output layers initialized this
// way start from uniform action preferences.
type ZeroesConfig struct{}

// NewZeroes returns an initializer of zero weights
func NewZeroes() (*InitWFn, error) {
	return newInitWFn(ZeroesConfig{})
}

func (ZeroesConfig) Type() Type { return Zeroes }
func (ZeroesConfig) Validate() error { return nil }
func (ZeroesConfig) Create() G.InitWFn { return G.Zeroes() }

// OnesConfig sets every weight to 1
type OnesConfig struct{}

// NewOnes returns an initializer of unit weights
func NewOnes() (*InitWFn, error) {
	return newInitWFn(OnesConfig{})
}

func (OnesConfig) Type() Type { return Ones }
func (OnesConfig) Validate() error { return nil }
func (OnesConfig) Create() G.InitWFn { return G.Ones() }

// ConstantConfig sets every weight to Value
type ConstantConfig struct {
	Value float64 `json:"value" yaml:"value"`
}

// NewConstant returns an initializer setting every weight to value
func NewConstant(value float64) (*InitWFn, error) {
	return newInitWFn(ConstantConfig{Value: value})
}

func (c ConstantConfig) Type() Type { return Constant }

// Validate implements the Config interface
func (c ConstantConfig) Validate() error {
	if math.IsNaN(c.Value) || math.IsInf(c.Value, 0) {
		return fmt.Errorf("value must be finite, have %v", c.Value)
	}
	return nil
}

// Create implements the Config interface
func (c ConstantConfig) Create() G.InitWFn {
	return G.ValuesOf(c.Value)
}
