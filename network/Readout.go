package network

import (
	"math"

	"github.com/samuelfneumann/rlroute/graph"
	"gonum.org/v1/gonum/mat"
)

// ReadoutSize returns the number of features produced by Readout for
// observations conforming to spec
func ReadoutSize(spec graph.Spec) int {
	return 3*spec.NodeFeatures + 2*spec.EdgeFeatures
}

// Readout encodes each observation of a batch as a fixed-size feature
// vector: the features of the root node, followed by the element-wise
// maximum and mean over all nodes, followed by the element-wise maximum
// and mean over all edges. Observations without edges have zero edge
// features.
func Readout(obs *graph.Batch, spec graph.Spec) (*mat.Dense, error) {
	if _, cols := obs.Nodes.Dims(); cols != spec.NodeFeatures {
		return nil, &graph.ContractError{
			Field: "node feature size",
			Want:  spec.NodeFeatures,
			Have:  cols,
		}
	}
	if obs.EdgeFeatures != nil {
		if _, cols := obs.EdgeFeatures.Dims(); cols != spec.EdgeFeatures {
			return nil, &graph.ContractError{
				Field: "edge feature size",
				Want:  spec.EdgeFeatures,
				Have:  cols,
			}
		}
	}

	nf, ef := spec.NodeFeatures, spec.EdgeFeatures
	out := mat.NewDense(obs.Len(), ReadoutSize(spec), nil)

	for i, root := range obs.Roots {
		row := out.RawRowView(i)
		copy(row[:nf], obs.Nodes.RawRowView(root))
	}

	pool(out, obs.Nodes, obs.NodeBatch, nf, nf)
	if obs.EdgeFeatures != nil {
		pool(out, obs.EdgeFeatures, obs.EdgeBatch, 3*nf, ef)
	}
	return out, nil
}

// pool writes the maximum and mean of the rows of features belonging
// to each observation into out, starting at column offset
func pool(out, features *mat.Dense, batch []int, offset, width int) {
	rows, _ := out.Dims()
	counts := make([]int, rows)
	for i := 0; i < rows; i++ {
		max := out.RawRowView(i)[offset : offset+width]
		for j := range max {
			max[j] = math.Inf(-1)
		}
	}

	for r, b := range batch {
		counts[b]++
		feat := features.RawRowView(r)
		row := out.RawRowView(b)
		max := row[offset : offset+width]
		mean := row[offset+width : offset+2*width]
		for j, v := range feat {
			if v > max[j] {
				max[j] = v
			}
			mean[j] += v
		}
	}

	for i, n := range counts {
		row := out.RawRowView(i)
		max := row[offset : offset+width]
		mean := row[offset+width : offset+2*width]
		for j := range max {
			if n == 0 {
				max[j] = 0
				continue
			}
			mean[j] /= float64(n)
		}
	}
}
