package network

import (
	G "gorgonia.org/gorgonia"
)

// fcLayer implements a fully connected layer of a feed forward neural
// network
type fcLayer struct {
	weights *G.Node
	bias    *G.Node
	act     *Activation
}

// fwd adds the forward pass of the fcLayer to the computational graph
func (f *fcLayer) fwd(x *G.Node) (*G.Node, error) {
	x = G.Must(G.Mul(x, f.weights))

	// Broadcast the bias weights to all samples along the batch
	// dimension
	x = G.Must(G.BroadcastAdd(x, f.bias, nil, []byte{0}))

	if f.act == nil || f.act.IsIdentity() {
		return x, nil
	}
	return f.act.fwd(x)
}
