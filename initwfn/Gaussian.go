package initwfn

import (
	"fmt"
	"math"

	G "gorgonia.org/gorgonia"
)

// GaussianConfig draws each weight from N(Mean, StdDev²)
type GaussianConfig struct {
	Mean   float64 `json:"mean" yaml:"mean"`
	StdDev float64 `json:"stddev" yaml:"stddev"`
}

// NewGaussian returns a Gaussian initializer
func NewGaussian(mean, stddev float64) (*InitWFn, error) {
	return newInitWFn(GaussianConfig{Mean: mean, StdDev: stddev})
}

func (g GaussianConfig) Type() Type { return Gaussian }

// Validate implements the Config interface
func (g GaussianConfig) Validate() error {
	if math.IsNaN(g.Mean) || math.IsInf(g.Mean, 0) {
		return fmt.Errorf("mean must be finite, have %v", g.Mean)
	}
	return positive("stddev", g.StdDev)
}

// Create implements the Config interface
func (g GaussianConfig) Create() G.InitWFn {
	return G.Gaussian(g.Mean, g.StdDev)
}
