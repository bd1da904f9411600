package solver

import G "gorgonia.org/gorgonia"

// AdamConfig describes a configuration of the Adam solver
type AdamConfig struct {
	StepSize float64 `json:"step_size" yaml:"step_size"`
	Epsilon  float64 `json:"epsilon" yaml:"epsilon"` // Smoothing factor
	Beta1    float64 `json:"beta1" yaml:"beta1"`
	Beta2    float64 `json:"beta2" yaml:"beta2"`
	Batch    int     `json:"batch" yaml:"batch"`
}

// NewDefaultAdam returns a new Adam Solver with default hyperparameters
func NewDefaultAdam(stepSize float64, batchSize int) (*Solver, error) {
	return NewAdam(stepSize, 1e-8, 0.9, 0.999, batchSize)
}

// NewAdam returns a new Adam Solver
func NewAdam(stepSize, epsilon, beta1, beta2 float64, batchSize int) (*Solver,
	error) {
	adam := AdamConfig{
		StepSize: stepSize,
		Epsilon:  epsilon,
		Beta1:    beta1,
		Beta2:    beta2,
		Batch:    batchSize,
	}

	return newSolver(Adam, adam)
}

// Create returns a new Gorgonia Adam Solver as described by the
// AdamConfig. Missing hyperparameters take Gorgonia's defaults.
func (a AdamConfig) Create() G.Solver {
	opts := []G.SolverOpt{G.WithLearnRate(a.StepSize)}
	if a.Epsilon > 0 {
		opts = append(opts, G.WithEps(a.Epsilon))
	}
	if a.Beta1 > 0 {
		opts = append(opts, G.WithBeta1(a.Beta1))
	}
	if a.Beta2 > 0 {
		opts = append(opts, G.WithBeta2(a.Beta2))
	}
	if a.Batch > 0 {
		opts = append(opts, G.WithBatchSize(float64(a.Batch)))
	}
	return G.NewAdamSolver(opts...)
}

// ValidType returns if the given Solver type is a valid type to be
// created with this config.
func (a AdamConfig) ValidType(t Type) bool {
	return t == Adam
}
