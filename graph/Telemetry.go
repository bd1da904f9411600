package graph

import "fmt"

// Telemetry layout of the reference deployment. Each agent reports
// TelemetryRows rows of TelemetryWidth values: its own row followed by
// the rows of its four direct neighbours.
const (
	TelemetryRows  = 5
	TelemetryWidth = 56

	distanceScale = 2_000_000
	countScale    = 1000
)

// ReferenceEdges is the edge index of the local neighbourhood of an
// agent (node 0) in the reference grid constellation:
//
//	                 node5
//	                   |
//	        node6---node1---node7
//	          |       |       |
//	node11--node3---node0---node4---node12
//	          |       |       |
//	        node9---node2---node10
//	                  |
//	                node8
var ReferenceEdges = [][2]int{
	{0, 1}, {0, 2}, {0, 3}, {0, 4},
	{1, 5}, {1, 6}, {1, 7}, {2, 8},
	{2, 9}, {2, 10}, {3, 6}, {3, 9},
	{3, 11}, {4, 7}, {4, 10}, {4, 12},
}

// ReferenceNodes is the number of nodes in the reference neighbourhood
const ReferenceNodes = 13

// nodeSource locates the telemetry of a node: the row reporting it and
// the neighbour slot in that row, or -1 if the row reports itself.
type nodeSource struct {
	row, slot int
}

var referenceNodeSources = [ReferenceNodes]nodeSource{
	{0, -1}, {1, -1}, {2, -1}, {3, -1}, {4, -1},
	{1, 0}, {1, 2}, {1, 3},
	{2, 1}, {2, 2}, {2, 3},
	{3, 2},
	{4, 3},
}

// referenceEdgeSources[i] locates the telemetry of ReferenceEdges[i]: the row
// reporting the link and the link slot in that row.
var referenceEdgeSources = [...]nodeSource{
	{0, 0}, {0, 1}, {0, 2}, {0, 3},
	{1, 0}, {1, 2}, {1, 3}, {2, 1},
	{2, 2}, {2, 3}, {3, 0}, {3, 1},
	{3, 2}, {4, 0}, {4, 1}, {4, 3},
}

// FromTelemetry constructs the reference neighbourhood Observation from
// raw telemetry rows and the requested and actual legality masks of the
// deciding agent.
//
// Node features are latitude, longitude, service link packets sent and
// received (in thousands) followed by the requested and actual masks
// (zero for every node but the root). Edge features are data rate,
// queue idle ratio, normalized distance, relative speed, packets sent
// and received (in thousands) and three link state flags.
func FromTelemetry(rows [][]float64, requested, actual []bool) (*Observation,
	error) {
	if len(rows) != TelemetryRows {
		return nil, &ContractError{
			Field: "telemetry rows",
			Want:  TelemetryRows,
			Have:  len(rows),
		}
	}
	for _, row := range rows {
		if len(row) < TelemetryWidth {
			return nil, &ContractError{
				Field: "telemetry width",
				Want:  TelemetryWidth,
				Have:  len(row),
			}
		}
	}
	if len(requested) != Actions || len(actual) != Actions {
		return nil, fmt.Errorf("fromtelemetry: masks must have %v entries",
			Actions)
	}

	nodes := make([][]float64, ReferenceNodes)
	for i, src := range referenceNodeSources {
		row := rows[src.row]
		node := make([]float64, NodeFeatures)

		if src.slot < 0 {
			node[0], node[1] = row[0], row[1]
			node[2], node[3] = row[34]/countScale, row[39]/countScale
		} else {
			node[0], node[1] = row[2+2*src.slot], row[3+2*src.slot]
			node[2] = row[35+src.slot] / countScale
			node[3] = row[40+src.slot] / countScale
		}

		if i == 0 {
			for j := 0; j < Actions; j++ {
				node[4+j] = boolToFloat(requested[j])
				node[4+Actions+j] = boolToFloat(actual[j])
			}
		}
		nodes[i] = node
	}

	edges := make([][2]int, len(ReferenceEdges))
	copy(edges, ReferenceEdges)

	edgeFeatures := make([][]float64, len(ReferenceEdges))
	for i, src := range referenceEdgeSources {
		row, l := rows[src.row], src.slot
		edgeFeatures[i] = []float64{
			row[10+l],
			row[14+l],
			row[18+l] / distanceScale,
			row[22+l],
			row[26+l] / countScale,
			row[30+l] / countScale,
			row[44+l],
			row[48+l],
			row[52+l],
		}
	}

	return &Observation{
		Nodes:        nodes,
		Edges:        edges,
		EdgeFeatures: edgeFeatures,
	}, nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
