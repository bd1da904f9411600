package sac

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/rlroute/solver"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// temperature holds the entropy temperature α of SAC as a single
// learnable log α in its own computational graph, minimizing
//
//	-log α * mean(log π + target_entropy)
type temperature struct {
	g        *G.ExprGraph
	logAlpha *G.Node
	coef     *G.Node
	cost     *G.Node
	costVal  G.Value

	vm     G.VM
	solver G.Solver
}

func newTemperature(initLogAlpha float64, s *solver.Solver) (*temperature,
	error) {
	g := G.NewGraph()

	logAlpha := G.NewVector(g, tensor.Float64, G.WithShape(1),
		G.WithName("logAlpha"), G.WithValue(tensor.New(
			tensor.WithShape(1),
			tensor.WithBacking([]float64{initLogAlpha}),
		)))
	coef := G.NewVector(g, tensor.Float64, G.WithShape(1),
		G.WithName("entropyCoef"), G.WithInit(G.Zeroes()))

	cost := G.Must(G.HadamardProd(logAlpha, coef))
	cost = G.Must(G.Sum(cost))
	cost = G.Must(G.Neg(cost))

	if _, err := G.Grad(cost, logAlpha); err != nil {
		return nil, fmt.Errorf("newtemperature: could not compute "+
			"gradient: %w", err)
	}

	t := &temperature{
		g:        g,
		logAlpha: logAlpha,
		coef:     coef,
		cost:     cost,
		solver:   s.Create(),
	}
	G.Read(cost, &t.costVal)
	t.vm = G.NewTapeMachine(g, G.BindDualValues(logAlpha))
	return t, nil
}

// step takes one solver step given mean(log π + target_entropy) and
// returns the temperature loss before the step
func (t *temperature) step(coef float64) (float64, error) {
	c := tensor.New(tensor.WithShape(1), tensor.WithBacking([]float64{coef}))
	if err := G.Let(t.coef, c); err != nil {
		return 0, fmt.Errorf("step: could not set coefficient: %w", err)
	}

	if err := t.vm.RunAll(); err != nil {
		t.vm.Reset()
		return 0, fmt.Errorf("step: could not run machine: %w", err)
	}
	defer t.vm.Reset()

	loss := t.costVal.Data().(float64)
	if err := t.solver.Step(G.NodesToValueGrads(G.Nodes{t.logAlpha})); err != nil {
		return 0, fmt.Errorf("step: could not step solver: %w", err)
	}
	return loss, nil
}

// LogAlpha returns log α
func (t *temperature) LogAlpha() float64 {
	return t.logAlpha.Value().Data().([]float64)[0]
}

// Alpha returns α = exp(log α)
func (t *temperature) Alpha() float64 {
	return math.Exp(t.LogAlpha())
}
