// Package networktest provides a deterministic linear NeuralNet for
// testing learners without building computational graphs.
package networktest

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/network"
	"gonum.org/v1/gonum/mat"
)

var _ network.NeuralNet = (*Linear)(nil)

// Linear computes [Readout(obs), actions] W + b and learns by vanilla
// gradient descent with a fixed step size.
type Linear struct {
	Spec       graph.Spec
	Actions    int
	Out        int
	StepSize   float64
	W          *mat.Dense
	B          *mat.Dense
	StepCalls  int
	LastUpdate *mat.Dense
}

// New returns a new Linear network whose parameters are filled with
// value
func New(spec graph.Spec, actionSize, outputs int, stepSize,
	value float64) *Linear {
	in := network.ReadoutSize(spec) + actionSize
	w := mat.NewDense(in, outputs, nil)
	b := mat.NewDense(1, outputs, nil)
	for i := 0; i < in; i++ {
		for j := 0; j < outputs; j++ {
			w.Set(i, j, value)
		}
	}

	return &Linear{
		Spec:     spec,
		Actions:  actionSize,
		Out:      outputs,
		StepSize: stepSize,
		W:        w,
		B:        b,
	}
}

func (l *Linear) inputs(obs *graph.Batch, actions *mat.Dense) (*mat.Dense,
	error) {
	readout, err := network.Readout(obs, l.Spec)
	if err != nil {
		return nil, err
	}
	if l.Actions == 0 {
		return readout, nil
	}
	if actions == nil {
		return nil, fmt.Errorf("no actions given")
	}
	if r, c := actions.Dims(); r != obs.Len() || c != l.Actions {
		return nil, &graph.ContractError{Field: "action size",
			Want: l.Actions, Have: c}
	}

	rows, cols := readout.Dims()
	x := mat.NewDense(rows, cols+l.Actions, nil)
	x.Slice(0, rows, 0, cols).(*mat.Dense).Copy(readout)
	x.Slice(0, rows, cols, cols+l.Actions).(*mat.Dense).Copy(actions)
	return x, nil
}

// Forward implements the network.NeuralNet interface
func (l *Linear) Forward(obs *graph.Batch, actions *mat.Dense) (*mat.Dense,
	error) {
	x, err := l.inputs(obs, actions)
	if err != nil {
		return nil, err
	}

	var out mat.Dense
	out.Mul(x, l.W)
	rows, _ := out.Dims()
	for i := 0; i < rows; i++ {
		row := out.RawRowView(i)
		for j := range row {
			row[j] += l.B.At(0, j)
		}
	}
	return &out, nil
}

// ActionGrad implements the network.NeuralNet interface
func (l *Linear) ActionGrad(obs *graph.Batch, actions,
	upstream *mat.Dense) (*mat.Dense, error) {
	if l.Actions == 0 {
		return nil, fmt.Errorf("actiongrad: network has no action input")
	}
	in, _ := l.W.Dims()
	wa := l.W.Slice(in-l.Actions, in, 0, l.Out)

	var grad mat.Dense
	grad.Mul(upstream, wa.T())
	return &grad, nil
}

// Step implements the network.NeuralNet interface
func (l *Linear) Step(obs *graph.Batch, actions, upstream *mat.Dense) error {
	x, err := l.inputs(obs, actions)
	if err != nil {
		return err
	}

	var gw mat.Dense
	gw.Mul(x.T(), upstream)
	gw.Scale(l.StepSize, &gw)
	l.W.Sub(l.W, &gw)

	rows, _ := upstream.Dims()
	for j := 0; j < l.Out; j++ {
		var g float64
		for i := 0; i < rows; i++ {
			g += upstream.At(i, j)
		}
		l.B.Set(0, j, l.B.At(0, j)-l.StepSize*g)
	}

	l.StepCalls++
	l.LastUpdate = mat.DenseCopyOf(upstream)
	return nil
}

// Outputs implements the network.NeuralNet interface
func (l *Linear) Outputs() int { return l.Out }

// ActionSize implements the network.NeuralNet interface
func (l *Linear) ActionSize() int { return l.Actions }

// Weights implements the network.NeuralNet interface
func (l *Linear) Weights() []*mat.Dense {
	return network.CopyWeights([]*mat.Dense{l.W, l.B})
}

// SetWeights implements the network.NeuralNet interface
func (l *Linear) SetWeights(weights []*mat.Dense) error {
	if len(weights) != 2 {
		return fmt.Errorf("setweights: want 2 parameters, have %v",
			len(weights))
	}
	l.W.Copy(weights[0])
	l.B.Copy(weights[1])
	return nil
}

// Clone implements the network.NeuralNet interface
func (l *Linear) Clone() (network.NeuralNet, error) {
	return &Linear{
		Spec:     l.Spec,
		Actions:  l.Actions,
		Out:      l.Out,
		StepSize: l.StepSize,
		W:        mat.DenseCopyOf(l.W),
		B:        mat.DenseCopyOf(l.B),
	}, nil
}

type linearState struct {
	Spec     graph.Spec
	Actions  int
	Out      int
	StepSize float64
	W, B     *mat.Dense
}

// GobEncode implements the gob.GobEncoder interface
func (l *Linear) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	err := gob.NewEncoder(&buf).Encode(linearState{l.Spec, l.Actions, l.Out,
		l.StepSize, l.W, l.B})
	return buf.Bytes(), err
}

// GobDecode implements the gob.GobDecoder interface
func (l *Linear) GobDecode(in []byte) error {
	var s linearState
	if err := gob.NewDecoder(bytes.NewReader(in)).Decode(&s); err != nil {
		return err
	}
	l.Spec, l.Actions, l.Out, l.StepSize = s.Spec, s.Actions, s.Out,
		s.StepSize
	l.W, l.B = s.W, s.B
	return nil
}
