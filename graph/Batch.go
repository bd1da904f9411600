package graph

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Batch is a collection of observations collated into a single
// disjoint graph. Edge indices are offset so that they index into the
// collated node table, and NodeBatch[i] (EdgeBatch[i]) records which
// observation node (edge) i originally belonged to.
type Batch struct {
	Nodes        *mat.Dense
	Edges        [][2]int
	EdgeFeatures *mat.Dense // nil if no observation has edges
	NodeBatch    []int
	EdgeBatch    []int

	// Roots[i] is the row in Nodes of the root node of observation i
	Roots []int

	size int
}

// Len returns the number of observations in the batch
func (b *Batch) Len() int {
	return b.size
}

// Collate collates observations into a single Batch. All observations
// must have the same feature sizes, though the number of nodes and
// edges may differ between observations.
func Collate(obs []*Observation) (*Batch, error) {
	if len(obs) == 0 {
		return nil, fmt.Errorf("collate: no observations to collate")
	}
	if obs[0] == nil || len(obs[0].Nodes) == 0 {
		return nil, &ContractError{Field: "node count", Want: 1, Have: 0}
	}

	nodeFeatures := len(obs[0].Nodes[0])
	if nodeFeatures == 0 {
		return nil, &ContractError{Field: "node feature size", Want: 1,
			Have: 0}
	}
	edgeFeatures := -1
	totalNodes, totalEdges := 0, 0
	for i, o := range obs {
		if o == nil || len(o.Nodes) == 0 {
			return nil, fmt.Errorf("collate: observation %d has no nodes", i)
		}
		totalNodes += len(o.Nodes)
		totalEdges += len(o.Edges)
		if len(o.EdgeFeatures) > 0 {
			if edgeFeatures < 0 {
				edgeFeatures = len(o.EdgeFeatures[0])
			}
		}
	}

	if totalEdges > 0 && edgeFeatures <= 0 {
		return nil, &ContractError{Field: "edge feature size", Want: 1,
			Have: 0}
	}

	nodes := mat.NewDense(totalNodes, nodeFeatures, nil)
	var edgeFeat *mat.Dense
	if totalEdges > 0 {
		edgeFeat = mat.NewDense(totalEdges, edgeFeatures, nil)
	}

	edges := make([][2]int, 0, totalEdges)
	nodeBatch := make([]int, 0, totalNodes)
	edgeBatch := make([]int, 0, totalEdges)
	roots := make([]int, len(obs))

	nodeOffset, edgeRow := 0, 0
	for i, o := range obs {
		roots[i] = nodeOffset
		for j, node := range o.Nodes {
			if len(node) != nodeFeatures {
				return nil, &ContractError{
					Field: "node feature size",
					Want:  nodeFeatures,
					Have:  len(node),
				}
			}
			nodes.SetRow(nodeOffset+j, node)
			nodeBatch = append(nodeBatch, i)
		}

		if len(o.Edges) != len(o.EdgeFeatures) {
			return nil, &ContractError{
				Field: "edge feature rows",
				Want:  len(o.Edges),
				Have:  len(o.EdgeFeatures),
			}
		}
		for j, edge := range o.Edges {
			if len(o.EdgeFeatures[j]) != edgeFeatures {
				return nil, &ContractError{
					Field: "edge feature size",
					Want:  edgeFeatures,
					Have:  len(o.EdgeFeatures[j]),
				}
			}
			edges = append(edges, [2]int{edge[0] + nodeOffset,
				edge[1] + nodeOffset})
			edgeFeat.SetRow(edgeRow, o.EdgeFeatures[j])
			edgeBatch = append(edgeBatch, i)
			edgeRow++
		}

		nodeOffset += len(o.Nodes)
	}

	return &Batch{
		Nodes:        nodes,
		Edges:        edges,
		EdgeFeatures: edgeFeat,
		NodeBatch:    nodeBatch,
		EdgeBatch:    edgeBatch,
		Roots:        roots,
		size:         len(obs),
	}, nil
}
