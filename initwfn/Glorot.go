package initwfn

import G "gorgonia.org/gorgonia"

// GlorotUConfig configures Glorot uniform initialization, scaled by
// Gain. This is the default initializer of every learner network.
type GlorotUConfig struct {
	Gain float64 `json:"gain" yaml:"gain"`
}

// NewGlorotU returns a Glorot uniform initializer
func NewGlorotU(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotUConfig{Gain: gain})
}

func (g GlorotUConfig) Type() Type { return GlorotU }

func (g GlorotUConfig) Validate() error { return positive("gain", g.Gain) }

// Create implements the Config interface
func (g GlorotUConfig) Create() G.InitWFn {
	return G.GlorotU(g.Gain)
}

// GlorotNConfig configures Glorot normal initialization, scaled by Gain
type GlorotNConfig struct {
	Gain float64 `json:"gain" yaml:"gain"`
}

// NewGlorotN returns a Glorot normal initializer
func NewGlorotN(gain float64) (*InitWFn, error) {
	return newInitWFn(GlorotNConfig{Gain: gain})
}

func (g GlorotNConfig) Type() Type { return GlorotN }

func (g GlorotNConfig) Validate() error { return positive("gain", g.Gain) }

// Create implements the Config interface
func (g GlorotNConfig) Create() G.InitWFn {
	return G.GlorotN(g.Gain)
}
