// Package graph implements the graph-structured observations that
// routing agents receive: a node feature table, a list of directed edges
// and an edge feature table. Observations of possibly different sizes
// can be collated into a single Batch for batched function
// approximation.
package graph

import (
	"errors"
	"fmt"
)

// Reference deployment dimensions
const (
	NodeFeatures = 12
	EdgeFeatures = 9
	Actions      = 4
)

// Spec describes the fixed dimensionality of observations in a
// deployment. Observations that do not conform to the Spec violate the
// contract between the telemetry producer and the learner.
type Spec struct {
	NodeFeatures int `yaml:"node_features" json:"node_features"`
	EdgeFeatures int `yaml:"edge_features" json:"edge_features"`
	Actions      int `yaml:"actions" json:"actions"`
}

// DefaultSpec returns the Spec of the reference deployment
func DefaultSpec() Spec {
	return Spec{
		NodeFeatures: NodeFeatures,
		EdgeFeatures: EdgeFeatures,
		Actions:      Actions,
	}
}

// Validate returns an error if the Spec cannot describe any
// observation
func (s Spec) Validate() error {
	if s.NodeFeatures <= 0 {
		return fmt.Errorf("validate: node features must be > 0")
	}
	if s.EdgeFeatures <= 0 {
		return fmt.Errorf("validate: edge features must be > 0")
	}
	if s.Actions <= 0 {
		return fmt.Errorf("validate: actions must be > 0")
	}
	return nil
}

// ContractError is returned when an observation does not match the
// configured feature dimensionality. Such errors indicate a
// configuration mismatch and should not be retried.
type ContractError struct {
	Field string
	Want  int
	Have  int
}

func (c *ContractError) Error() string {
	return fmt.Sprintf("contract: invalid %v \n\twant(%v) \n\thave(%v)",
		c.Field, c.Want, c.Have)
}

// IsContractError returns whether err is, or wraps, a *ContractError
func IsContractError(err error) bool {
	var c *ContractError
	return errors.As(err, &c)
}

// Observation is a single graph observation. Node 0 is always the
// agent making the routing decision. Edges[i] is the directed edge
// (from, to) whose features are EdgeFeatures[i].
type Observation struct {
	Nodes        [][]float64
	Edges        [][2]int
	EdgeFeatures [][]float64
}

// NumNodes returns the number of nodes in the observation
func (o *Observation) NumNodes() int {
	return len(o.Nodes)
}

// NumEdges returns the number of edges in the observation
func (o *Observation) NumEdges() int {
	return len(o.Edges)
}

// Validate checks that the observation conforms to the Spec
func (o *Observation) Validate(s Spec) error {
	if o == nil || len(o.Nodes) == 0 {
		return &ContractError{Field: "node count", Want: 1, Have: 0}
	}
	for _, node := range o.Nodes {
		if len(node) != s.NodeFeatures {
			return &ContractError{
				Field: "node feature size",
				Want:  s.NodeFeatures,
				Have:  len(node),
			}
		}
	}

	if len(o.Edges) != len(o.EdgeFeatures) {
		return &ContractError{
			Field: "edge feature rows",
			Want:  len(o.Edges),
			Have:  len(o.EdgeFeatures),
		}
	}
	for i, edge := range o.Edges {
		for _, endpoint := range edge {
			if endpoint < 0 || endpoint >= len(o.Nodes) {
				return &ContractError{
					Field: fmt.Sprintf("endpoint of edge %d", i),
					Want:  len(o.Nodes) - 1,
					Have:  endpoint,
				}
			}
		}
		if len(o.EdgeFeatures[i]) != s.EdgeFeatures {
			return &ContractError{
				Field: "edge feature size",
				Want:  s.EdgeFeatures,
				Have:  len(o.EdgeFeatures[i]),
			}
		}
	}
	return nil
}
