package initwfn

import G "gorgonia.org/gorgonia"

// HeUConfig configures He uniform initialization, which suits layers
// followed by a ReLU activation
type HeUConfig struct {
	Gain float64 `json:"gain" yaml:"gain"`
}

// NewHeU returns a He uniform initializer
func NewHeU(gain float64) (*InitWFn, error) {
	return newInitWFn(HeUConfig{Gain: gain})
}

func (h HeUConfig) Type() Type { return HeU }

func (h HeUConfig) Validate() error { return positive("gain", h.Gain) }

// Create implements the Config interface
func (h HeUConfig) Create() G.InitWFn {
	return G.HeU(h.Gain)
}

// HeNConfig configures He normal initialization
type HeNConfig struct {
	Gain float64 `json:"gain" yaml:"gain"`
}

// NewHeN returns a He normal initializer
func NewHeN(gain float64) (*InitWFn, error) {
	return newInitWFn(HeNConfig{Gain: gain})
}

func (h HeNConfig) Type() Type { return HeN }

func (h HeNConfig) Validate() error { return positive("gain", h.Gain) }

// Create implements the Config interface
func (h HeNConfig) Create() G.InitWFn {
	return G.HeN(h.Gain)
}
