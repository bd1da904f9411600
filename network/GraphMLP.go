package network

import (
	"bytes"
	"encoding/gob"
	"encoding/json"
	"fmt"

	"github.com/samuelfneumann/rlroute/graph"
	"github.com/samuelfneumann/rlroute/initwfn"
	"github.com/samuelfneumann/rlroute/solver"
	"gonum.org/v1/gonum/mat"
	G "gorgonia.org/gorgonia"
	"gorgonia.org/tensor"
)

// Config describes the hidden layers, weight initialization and solver
// of a GraphMLP
type Config struct {
	Hidden      []int            `yaml:"hidden" json:"hidden"`
	Activations []*Activation    `yaml:"activations" json:"activations"`
	InitWFn     *initwfn.InitWFn `yaml:"init" json:"init"`
	Solver      *solver.Solver   `yaml:"solver" json:"solver"`
}

// Validate checks that the Config describes a valid GraphMLP
func (c Config) Validate() error {
	if len(c.Hidden) != len(c.Activations) {
		return fmt.Errorf("validate: invalid number of activations"+
			"\n\twant(%d)\n\thave(%d)", len(c.Hidden), len(c.Activations))
	}
	for i, h := range c.Hidden {
		if h <= 0 {
			return fmt.Errorf("validate: hidden layer %v has size %v", i, h)
		}
		if c.Activations[i] == nil {
			return fmt.Errorf("validate: hidden layer %v has no activation",
				i)
		}
	}
	if c.InitWFn == nil {
		return fmt.Errorf("validate: no weight initializer")
	}
	if c.Solver == nil {
		return fmt.Errorf("validate: no solver")
	}
	return nil
}

// GraphMLP is a multi-layered perceptron over a fixed readout of graph
// observations (see Readout). If the GraphMLP has an action input, the
// action is concatenated to the readout before the first layer. The
// final layer is linear.
//
// Parameters are held as gonum matrices. A gorgonia graph and tape
// machine is compiled lazily for each batch size the GraphMLP sees, and
// parameters are bound into the machine before every run.
type GraphMLP struct {
	spec       graph.Spec
	actionSize int
	outputs    int

	hiddenSizes []int
	activations []*Activation

	// weights[2*i] and weights[2*i+1] are the weights and bias of
	// layer i
	weights []*mat.Dense

	solverConfig *solver.Solver
	solver       G.Solver

	machines map[int]*machine
}

// machine is a compiled computational graph for a single batch size
type machine struct {
	g          *G.ExprGraph
	input      *G.Node
	action     *G.Node // nil if the GraphMLP has no action input
	upstream   *G.Node
	learnables G.Nodes
	model      []G.ValueGrad
	prediction *G.Node
	predVal    G.Value
	vm         G.VM
}

// NewGraphMLP returns a new GraphMLP for observations conforming to
// spec, with an action input of size actionSize (0 for none) and
// outputs outputs per observation.
func NewGraphMLP(spec graph.Spec, actionSize, outputs int,
	c Config) (*GraphMLP, error) {
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("newgraphmlp: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("newgraphmlp: %w", err)
	}
	if actionSize < 0 || outputs < 1 {
		return nil, fmt.Errorf("newgraphmlp: invalid action size (%v) or "+
			"outputs (%v)", actionSize, outputs)
	}

	sizes := append([]int{ReadoutSize(spec) + actionSize}, c.Hidden...)
	sizes = append(sizes, outputs)

	weights := make([]*mat.Dense, 0, 2*(len(sizes)-1))
	for i := 0; i < len(sizes)-1; i++ {
		weights = append(weights, c.InitWFn.Dense(sizes[i], sizes[i+1]))
		weights = append(weights, mat.NewDense(1, sizes[i+1], nil))
	}

	return newGraphMLP(spec, actionSize, outputs, c.Hidden, c.Activations,
		weights, c.Solver), nil
}

func newGraphMLP(spec graph.Spec, actionSize, outputs int, hidden []int,
	activations []*Activation, weights []*mat.Dense,
	s *solver.Solver) *GraphMLP {
	h := make([]int, len(hidden))
	copy(h, hidden)
	acts := make([]*Activation, len(activations))
	copy(acts, activations)

	return &GraphMLP{
		spec:         spec,
		actionSize:   actionSize,
		outputs:      outputs,
		hiddenSizes:  h,
		activations:  acts,
		weights:      weights,
		solverConfig: s,
		solver:       s.Create(),
		machines:     make(map[int]*machine),
	}
}

// Outputs returns the number of outputs per observation
func (n *GraphMLP) Outputs() int {
	return n.outputs
}

// ActionSize returns the size of the action input
func (n *GraphMLP) ActionSize() int {
	return n.actionSize
}

// Weights returns a copy of the parameters of the GraphMLP
func (n *GraphMLP) Weights() []*mat.Dense {
	return CopyWeights(n.weights)
}

// SetWeights sets the parameters of the GraphMLP
func (n *GraphMLP) SetWeights(weights []*mat.Dense) error {
	return setWeights(n.weights, weights)
}

// Clone returns a deep copy of the GraphMLP. The clone has its own
// solver state.
func (n *GraphMLP) Clone() (NeuralNet, error) {
	return newGraphMLP(n.spec, n.actionSize, n.outputs, n.hiddenSizes,
		n.activations, n.Weights(), n.solverConfig), nil
}

// Forward returns the outputs of the GraphMLP for a batch
func (n *GraphMLP) Forward(obs *graph.Batch, actions *mat.Dense) (*mat.Dense,
	error) {
	m, err := n.run(obs, actions, nil)
	if err != nil {
		return nil, fmt.Errorf("forward: %w", err)
	}
	defer m.vm.Reset()

	out := make([]float64, obs.Len()*n.outputs)
	copy(out, m.predVal.Data().([]float64))
	return mat.NewDense(obs.Len(), n.outputs, out), nil
}

// ActionGrad returns the gradient of Σ output ⊙ upstream with respect
// to the action input
func (n *GraphMLP) ActionGrad(obs *graph.Batch, actions,
	upstream *mat.Dense) (*mat.Dense, error) {
	if n.actionSize == 0 {
		return nil, fmt.Errorf("actiongrad: network has no action input")
	}

	m, err := n.run(obs, actions, upstream)
	if err != nil {
		return nil, fmt.Errorf("actiongrad: %w", err)
	}
	defer m.vm.Reset()

	grad, err := m.action.Grad()
	if err != nil {
		return nil, fmt.Errorf("actiongrad: %w", err)
	}

	out := make([]float64, obs.Len()*n.actionSize)
	copy(out, grad.Data().([]float64))
	return mat.NewDense(obs.Len(), n.actionSize, out), nil
}

// Step performs one solver step minimizing Σ output ⊙ upstream
func (n *GraphMLP) Step(obs *graph.Batch, actions, upstream *mat.Dense) error {
	if upstream == nil {
		return fmt.Errorf("step: no upstream gradient")
	}

	m, err := n.run(obs, actions, upstream)
	if err != nil {
		return fmt.Errorf("step: %w", err)
	}
	defer m.vm.Reset()

	if err := n.solver.Step(m.model); err != nil {
		return fmt.Errorf("step: could not step solver: %w", err)
	}

	// Copy the stepped parameters back from the machine
	for i, node := range m.learnables {
		copy(n.weights[i].RawMatrix().Data, node.Value().Data().([]float64))
	}
	return nil
}

// run binds the parameters and inputs into the machine for the batch
// size of obs and runs it. The caller must reset the machine.
func (n *GraphMLP) run(obs *graph.Batch, actions,
	upstream *mat.Dense) (*machine, error) {
	batch := obs.Len()

	readout, err := Readout(obs, n.spec)
	if err != nil {
		return nil, err
	}

	m, err := n.machine(batch)
	if err != nil {
		return nil, err
	}

	if err := G.Let(m.input, denseTensor(readout)); err != nil {
		return nil, fmt.Errorf("could not set input: %w", err)
	}

	if n.actionSize > 0 {
		if actions == nil {
			return nil, fmt.Errorf("no actions given")
		}
		if r, c := actions.Dims(); r != batch || c != n.actionSize {
			return nil, &graph.ContractError{
				Field: "action size",
				Want:  n.actionSize,
				Have:  c,
			}
		}
		if err := G.Let(m.action, denseTensor(actions)); err != nil {
			return nil, fmt.Errorf("could not set actions: %w", err)
		}
	}

	if upstream == nil {
		upstream = mat.NewDense(batch, n.outputs, nil)
	} else if r, c := upstream.Dims(); r != batch || c != n.outputs {
		return nil, fmt.Errorf("invalid upstream shape \n\twant(%v, %v) "+
			"\n\thave(%v, %v)", batch, n.outputs, r, c)
	}
	if err := G.Let(m.upstream, denseTensor(upstream)); err != nil {
		return nil, fmt.Errorf("could not set upstream gradient: %w", err)
	}

	for i, node := range m.learnables {
		if err := G.Let(node, denseTensor(n.weights[i])); err != nil {
			return nil, fmt.Errorf("could not set parameter %v: %w", i, err)
		}
	}

	if err := m.vm.RunAll(); err != nil {
		m.vm.Reset()
		return nil, fmt.Errorf("could not run machine: %w", err)
	}
	return m, nil
}

// machine returns the machine for a batch size, compiling it if needed
func (n *GraphMLP) machine(batch int) (*machine, error) {
	if m, ok := n.machines[batch]; ok {
		return m, nil
	}

	g := G.NewGraph()
	input := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, ReadoutSize(n.spec)), G.WithName("input"),
		G.WithInit(G.Zeroes()))

	x := input
	var action *G.Node
	if n.actionSize > 0 {
		action = G.NewMatrix(g, tensor.Float64,
			G.WithShape(batch, n.actionSize), G.WithName("action"),
			G.WithInit(G.Zeroes()))
		x = G.Must(G.Concat(1, input, action))
	}

	learnables := make(G.Nodes, 0, len(n.weights))
	layers := len(n.weights) / 2
	for i := 0; i < layers; i++ {
		w, b := n.weights[2*i], n.weights[2*i+1]
		wr, wc := w.Dims()
		weights := G.NewMatrix(g, tensor.Float64, G.WithShape(wr, wc),
			G.WithName(fmt.Sprintf("W%d", i)), G.WithValue(denseTensor(w)))
		bias := G.NewMatrix(g, tensor.Float64, G.WithShape(1, wc),
			G.WithName(fmt.Sprintf("b%d", i)), G.WithValue(denseTensor(b)))
		learnables = append(learnables, weights, bias)

		act := Identity()
		if i < len(n.activations) {
			act = n.activations[i]
		}
		layer := fcLayer{weights: weights, bias: bias, act: act}

		var err error
		if x, err = layer.fwd(x); err != nil {
			return nil, fmt.Errorf("could not compute forward pass of "+
				"layer %v: %w", i, err)
		}
	}

	upstream := G.NewMatrix(g, tensor.Float64,
		G.WithShape(batch, n.outputs), G.WithName("upstream"),
		G.WithInit(G.Zeroes()))
	cost := G.Must(G.Sum(G.Must(G.HadamardProd(x, upstream))))

	wrt := append(G.Nodes{}, learnables...)
	if action != nil {
		wrt = append(wrt, action)
	}
	if _, err := G.Grad(cost, wrt...); err != nil {
		return nil, fmt.Errorf("could not compute gradient: %w", err)
	}

	m := &machine{
		g:          g,
		input:      input,
		action:     action,
		upstream:   upstream,
		learnables: learnables,
		prediction: x,
	}
	G.Read(m.prediction, &m.predVal)

	m.model = make([]G.ValueGrad, len(learnables))
	for i, node := range learnables {
		m.model[i] = node
	}
	m.vm = G.NewTapeMachine(g, G.BindDualValues(wrt...))

	n.machines[batch] = m
	return m, nil
}

// denseTensor returns a tensor holding a copy of m
func denseTensor(m mat.Matrix) *tensor.Dense {
	r, c := m.Dims()
	backing := make([]float64, r*c)
	for i := 0; i < r; i++ {
		mat.Row(backing[i*c:(i+1)*c], i, m)
	}
	return tensor.New(tensor.WithShape(r, c), tensor.WithBacking(backing))
}

// GobEncode implements the gob.GobEncoder interface
func (n *GraphMLP) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	if err := enc.Encode(n.spec); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode spec: %v", err)
	}
	if err := enc.Encode(n.actionSize); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode action size")
	}
	if err := enc.Encode(n.outputs); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode outputs")
	}
	if err := enc.Encode(n.hiddenSizes); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode hidden sizes")
	}
	if err := enc.Encode(n.activations); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode activations")
	}

	solverConfig, err := json.Marshal(n.solverConfig)
	if err != nil {
		return nil, fmt.Errorf("gobencode: could not encode solver: %v", err)
	}
	if err := enc.Encode(solverConfig); err != nil {
		return nil, fmt.Errorf("gobencode: could not encode solver: %v", err)
	}

	for i, w := range n.weights {
		if err := enc.Encode(w); err != nil {
			return nil, fmt.Errorf("gobencode: could not encode parameter "+
				"%v: %v", i, err)
		}
	}
	return buf.Bytes(), nil
}

// GobDecode implements the gob.GobDecoder interface. If the GraphMLP
// already has parameters, the decoded architecture must match.
func (n *GraphMLP) GobDecode(in []byte) error {
	dec := gob.NewDecoder(bytes.NewReader(in))

	var spec graph.Spec
	if err := dec.Decode(&spec); err != nil {
		return fmt.Errorf("gobdecode: could not decode spec: %v", err)
	}
	var actionSize, outputs int
	if err := dec.Decode(&actionSize); err != nil {
		return fmt.Errorf("gobdecode: could not decode action size")
	}
	if err := dec.Decode(&outputs); err != nil {
		return fmt.Errorf("gobdecode: could not decode outputs")
	}
	var hiddenSizes []int
	if err := dec.Decode(&hiddenSizes); err != nil {
		return fmt.Errorf("gobdecode: could not decode hidden sizes")
	}
	var activations []*Activation
	if err := dec.Decode(&activations); err != nil {
		return fmt.Errorf("gobdecode: could not decode activations")
	}

	var solverConfig []byte
	if err := dec.Decode(&solverConfig); err != nil {
		return fmt.Errorf("gobdecode: could not decode solver: %v", err)
	}
	s := &solver.Solver{}
	if err := json.Unmarshal(solverConfig, s); err != nil {
		return fmt.Errorf("gobdecode: could not decode solver: %v", err)
	}

	weights := make([]*mat.Dense, 2*(len(hiddenSizes)+1))
	for i := range weights {
		weights[i] = &mat.Dense{}
		if err := dec.Decode(weights[i]); err != nil {
			return fmt.Errorf("gobdecode: could not decode parameter %v: %v",
				i, err)
		}
	}

	if n.weights != nil {
		if n.spec != spec || n.actionSize != actionSize ||
			n.outputs != outputs {
			return fmt.Errorf("gobdecode: decoded network does not match " +
				"the architecture of the receiver")
		}
		if err := setWeights(n.weights, weights); err != nil {
			return fmt.Errorf("gobdecode: %w", err)
		}
		return nil
	}

	*n = *newGraphMLP(spec, actionSize, outputs, hiddenSizes, activations,
		weights, s)
	return nil
}
