package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallObservation(nodes, nodeFeatures, edgeFeatures int) *Observation {
	obs := &Observation{}
	for i := 0; i < nodes; i++ {
		row := make([]float64, nodeFeatures)
		for j := range row {
			row[j] = float64(i*10 + j)
		}
		obs.Nodes = append(obs.Nodes, row)
	}
	for i := 1; i < nodes; i++ {
		obs.Edges = append(obs.Edges, [2]int{0, i})
		row := make([]float64, edgeFeatures)
		for j := range row {
			row[j] = float64(i)
		}
		obs.EdgeFeatures = append(obs.EdgeFeatures, row)
	}
	return obs
}

func TestObservationValidate(t *testing.T) {
	spec := Spec{NodeFeatures: 3, EdgeFeatures: 2, Actions: 4}

	tests := []struct {
		name   string
		mutate func(o *Observation)
		field  string
	}{
		{"valid", func(o *Observation) {}, ""},
		{"no nodes", func(o *Observation) { o.Nodes = nil }, "node count"},
		{"wide node", func(o *Observation) {
			o.Nodes[1] = append(o.Nodes[1], 1)
		}, "node feature size"},
		{"missing edge features", func(o *Observation) {
			o.EdgeFeatures = o.EdgeFeatures[:1]
		}, "edge feature rows"},
		{"narrow edge", func(o *Observation) {
			o.EdgeFeatures[0] = o.EdgeFeatures[0][:1]
		}, "edge feature size"},
		{"dangling edge", func(o *Observation) {
			o.Edges[0] = [2]int{0, 7}
		}, "endpoint of edge 0"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			obs := smallObservation(3, 3, 2)
			test.mutate(obs)

			err := obs.Validate(spec)
			if test.field == "" {
				assert.NoError(t, err)
				return
			}

			require.Error(t, err)
			assert.True(t, IsContractError(err))
			assert.Equal(t, test.field, err.(*ContractError).Field)
		})
	}
}

func TestCollate(t *testing.T) {
	a := smallObservation(3, 2, 1)
	b := smallObservation(2, 2, 1)

	batch, err := Collate([]*Observation{a, b})
	require.NoError(t, err)

	assert.Equal(t, 2, batch.Len())
	rows, cols := batch.Nodes.Dims()
	assert.Equal(t, 5, rows)
	assert.Equal(t, 2, cols)
	assert.Equal(t, []int{0, 0, 0, 1, 1}, batch.NodeBatch)
	assert.Equal(t, []int{0, 0, 1}, batch.EdgeBatch)
	assert.Equal(t, []int{0, 3}, batch.Roots)

	// Edges of the second observation are offset by the nodes of the
	// first
	assert.Equal(t, [][2]int{{0, 1}, {0, 2}, {3, 4}}, batch.Edges)
	assert.Equal(t, b.Nodes[1], batch.Nodes.RawRowView(4))
	assert.Equal(t, 1.0, batch.EdgeFeatures.At(2, 0))
}

func TestCollateEdgeless(t *testing.T) {
	a := smallObservation(1, 2, 1)

	batch, err := Collate([]*Observation{a, a})
	require.NoError(t, err)
	assert.Nil(t, batch.EdgeFeatures)
	assert.Empty(t, batch.Edges)
	assert.Equal(t, []int{0, 1}, batch.Roots)
}

func TestCollateMismatch(t *testing.T) {
	a := smallObservation(2, 2, 1)
	b := smallObservation(2, 3, 1)

	_, err := Collate([]*Observation{a, b})
	assert.True(t, IsContractError(err))

	_, err = Collate(nil)
	assert.Error(t, err)
}

func TestDecompose(t *testing.T) {
	requested, actual, err := Decompose([]int{0, 1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []bool{false, true, false, true}, requested)
	assert.Equal(t, []bool{false, false, true, true}, actual)

	_, _, err = Decompose([]int{0, 4})
	assert.Error(t, err)
}

func TestStateSignature(t *testing.T) {
	obs := smallObservation(2, 2, 1)
	s, err := NewState(obs, []int{0, 1, 2, 3})
	require.NoError(t, err)

	assert.Equal(t, "mask_0123", s.Signature())
	assert.Equal(t, 2, s.NumLegal())
	assert.Equal(t, []bool{false, false, true, true}, s.Legal)

	other, err := NewState(obs, []int{0, 1, 2, 2})
	require.NoError(t, err)
	assert.NotEqual(t, s.Signature(), other.Signature())

	err = s.Validate(Spec{NodeFeatures: 2, EdgeFeatures: 1, Actions: 3})
	assert.True(t, IsContractError(err))
}

func TestFromTelemetry(t *testing.T) {
	rows := make([][]float64, TelemetryRows)
	for r := range rows {
		rows[r] = make([]float64, TelemetryWidth)
		for c := range rows[r] {
			rows[r][c] = float64(100*r + c)
		}
	}
	requested := []bool{true, false, false, true}
	actual := []bool{false, true, false, true}

	obs, err := FromTelemetry(rows, requested, actual)
	require.NoError(t, err)
	require.NoError(t, obs.Validate(DefaultSpec()))

	assert.Equal(t, ReferenceNodes, obs.NumNodes())
	assert.Equal(t, len(ReferenceEdges), obs.NumEdges())

	// Root node carries its own position and both masks
	assert.Equal(t, []float64{0, 1, 0.034, 0.039, 1, 0, 0, 1, 0, 1, 0, 1},
		obs.Nodes[0])

	// Node 5 is the first neighbour reported by node 1
	assert.Equal(t, []float64{102, 103, 0.135, 0.140}, obs.Nodes[5][:4])
	assert.Equal(t, make([]float64, 8), obs.Nodes[5][4:])

	// Edge 0 -> 2 is the second link reported by the root
	assert.InDelta(t, 11.0, obs.EdgeFeatures[1][0], 1e-12)
	assert.InDelta(t, 19.0/2_000_000, obs.EdgeFeatures[1][2], 1e-12)
	assert.InDelta(t, 0.027, obs.EdgeFeatures[1][4], 1e-12)

	_, err = FromTelemetry(rows[:4], requested, actual)
	assert.True(t, IsContractError(err))
}
