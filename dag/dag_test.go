package dag

import (
	"testing"

	"github.com/maemowong/arago/opcode"
)

func op(o opcode.Opcode) *opcode.Opcode { return &o }

// chain3 builds an input feeding a chain of three scalar VAdd ops, each
// depending on the previous.
func chain3() *Dag {
	return New(
		[]*opcode.Opcode{nil, op(opcode.VAdd), op(opcode.VAdd), op(opcode.VAdd)},
		[]Edge{{0, 1}, {1, 2}, {2, 3}},
	)
}

// twoChains builds one input feeding two independent chains, one of
// VScaMul (matrix) ops and one of VMax (scalar) ops.
func twoChains() *Dag {
	return New(
		[]*opcode.Opcode{nil, op(opcode.VScaMul), op(opcode.VScaMul), op(opcode.VMax), op(opcode.VMax)},
		[]Edge{{0, 1}, {1, 2}, {0, 3}, {3, 4}},
	)
}

// demoDag builds a 15-node DAG with a shared input (14) feeding two
// reduction trees, one of VScaMul ops (0-6) and one of VMax ops (7-13).
func demoDag() *Dag {
	ops := make([]*opcode.Opcode, 15)
	for i := 0; i <= 6; i++ {
		ops[i] = op(opcode.VScaMul)
	}
	for i := 7; i <= 13; i++ {
		ops[i] = op(opcode.VMax)
	}
	ops[14] = nil
	edges := []Edge{
		{0, 4}, {1, 4}, {2, 5}, {3, 5}, {4, 6}, {5, 6},
		{7, 11}, {8, 11}, {9, 12}, {10, 12}, {11, 13}, {12, 13},
		{14, 0}, {14, 1}, {14, 2}, {14, 3}, {14, 7}, {14, 8}, {14, 9}, {14, 10},
	}
	return New(ops, edges)
}

func TestNew_InputWithSourcesPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("constructing an input node with a source should panic")
		}
	}()
	New([]*opcode.Opcode{nil, op(opcode.VAdd)}, []Edge{{1, 0}})
}

func TestNew_NonInputWithoutSourcesPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("constructing a non-input node with no sources should panic")
		}
	}()
	New([]*opcode.Opcode{op(opcode.VAdd)}, nil)
}

func TestNew_CyclePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("a cyclic edge set should panic during construction")
		}
	}()
	New(
		[]*opcode.Opcode{op(opcode.VAdd), op(opcode.VAdd)},
		[]Edge{{0, 1}, {1, 0}},
	)
}

func TestNew_DanglingEdgePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("an edge referencing an out-of-range id should panic")
		}
	}()
	New([]*opcode.Opcode{nil}, []Edge{{0, 5}})
}

func layerIndex(layers [][]Id, id Id) int {
	for i, layer := range layers {
		for _, v := range layer {
			if v == id {
				return i
			}
		}
	}
	return -1
}

func TestTopSort_RespectsEdgeOrder(t *testing.T) {
	d := demoDag()
	layers := d.TopSort()
	total := 0
	for _, l := range layers {
		total += len(l)
	}
	if total != len(d.Nodes) {
		t.Fatalf("top_sort covered %d of %d nodes", total, len(d.Nodes))
	}
	for _, n := range d.Nodes {
		for _, src := range n.Sources {
			if layerIndex(layers, src) >= layerIndex(layers, n.Id) {
				t.Errorf("source %d must be in an earlier layer than %d", src, n.Id)
			}
		}
	}
}

func TestGetCosts_ChainIsAdditive(t *testing.T) {
	d := chain3()
	costs := d.getCosts()
	// 3 -> sink, cost = PointwiseCost. 2 -> 2*PointwiseCost. 1 -> 3x. 0 -> input, 3x.
	want3 := opcode.PointwiseCost
	want2 := 2 * opcode.PointwiseCost
	want1 := 3 * opcode.PointwiseCost
	want0 := want1
	if costs[3] != want3 || costs[2] != want2 || costs[1] != want1 || costs[0] != want0 {
		t.Errorf("costs = %v, want [%d %d %d %d]", costs, want0, want1, want2, want3)
	}
}

// TestGetCosts_BranchingInputTakesMaxOverUsers checks cost propagation
// for a node with several divergent-cost users: the shared input (14)
// in the demo DAG feeds both a cheap VScaMul reduction tree (whose path
// to its sink costs 3*OpacCost = 3) and an expensive VMax reduction
// tree (whose path to its sink costs 3*PointwiseCost = 3000). Its own
// cost must be the max of the two, not whichever branch happens to
// finish first in some traversal order.
func TestGetCosts_BranchingInputTakesMaxOverUsers(t *testing.T) {
	d := demoDag()
	costs := d.getCosts()
	want := uint32(3 * opcode.PointwiseCost)
	if costs[14] != want {
		t.Errorf("costs[14] = %d, want %d (max over its users' paths, not min)", costs[14], want)
	}
}

func TestGetCosts_SinksEqualTheirOwnCost(t *testing.T) {
	d := twoChains()
	costs := d.getCosts()
	if costs[2] != opcode.OpacCost {
		t.Errorf("costs[2] (VScaMul sink) = %d, want %d", costs[2], opcode.OpacCost)
	}
	if costs[4] != opcode.PointwiseCost {
		t.Errorf("costs[4] (VMax sink) = %d, want %d", costs[4], opcode.PointwiseCost)
	}
}
