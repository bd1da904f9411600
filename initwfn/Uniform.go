package initwfn

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

// UniformConfig draws each weight from U[Low, High)
type UniformConfig struct {
	Low  float64 `json:"low" yaml:"low"`
	High float64 `json:"high" yaml:"high"`
}

// NewUniform returns a uniform initializer
func NewUniform(low, high float64) (*InitWFn, error) {
	return newInitWFn(UniformConfig{Low: low, High: high})
}

func (u UniformConfig) Type() Type { return Uniform }

// Validate implements the Config interface
func (u UniformConfig) Validate() error {
	if math.IsInf(u.Low, 0) || math.IsInf(u.High, 0) || !(u.Low < u.High) {
		return fmt.Errorf("need finite low < high, have [%v, %v)", u.Low,
			u.High)
	}
	return nil
}

// Create implements the Config interface
func (u UniformConfig) Create() G.InitWFn {
	return G.Uniform(u.Low, u.High)
}
