// Package dag implements the operation dependency graph: an arena of
// nodes with forward ("users") and back ("sources") edges, a layered
// topological sort, and longest-path-to-sink cost analysis. Construction
// is atomic and the graph is immutable afterward. There is no shared
// ownership or interior mutability here, unlike a naive Rc<RefCell<_>>
// port would produce: everything lives in one slice indexed by Id and
// edges are plain integers (see SPEC_FULL.md §3).
package dag

import (
	"fmt"

	"github.com/maemowong/arago/opcode"
)

// Id names a node by its 0-based position in Dag.Nodes.
type Id = int

// Edge is a (from, to) pair meaning from is a source of to.
type Edge struct {
	From, To Id
}

// Node is one vertex: an optional opcode (nil means "input node", i.e.
// externally supplied data with no sources), its own id, and its
// forward/back edge sets.
type Node struct {
	Op      *opcode.Opcode
	Id      Id
	Users   []Id
	Sources []Id
}

// Dag is the arena: every node lives in Nodes, indexed by Id. Inputs
// holds the ids with no sources.
type Dag struct {
	Nodes  []Node
	Inputs []Id
}

// New constructs a Dag from a list of optional opcodes (nil for input
// nodes) and an edge list where (from, to) means from is a source of to.
// Construction is atomic: the full node/edge structure is built, then
// validated once before New returns.
func New(ops []*opcode.Opcode, edges []Edge) *Dag {
	nodes := make([]Node, len(ops))
	for i, op := range ops {
		nodes[i] = Node{Op: op, Id: i}
	}
	for _, e := range edges {
		if e.From < 0 || e.From >= len(nodes) || e.To < 0 || e.To >= len(nodes) {
			panic(fmt.Sprintf("dag: edge (%d,%d) references an id outside 0..%d", e.From, e.To, len(nodes)))
		}
		nodes[e.From].Users = append(nodes[e.From].Users, e.To)
		nodes[e.To].Sources = append(nodes[e.To].Sources, e.From)
	}

	var inputs []Id
	for i := range nodes {
		if len(nodes[i].Sources) == 0 {
			inputs = append(inputs, i)
		}
	}

	d := &Dag{Nodes: nodes, Inputs: inputs}
	d.validate()
	return d
}

// validate enforces the graph's structural invariants: an opcode-less
// node has no sources, every non-input node has at least one source, and
// the graph is acyclic (checked by requiring TopSort to cover every
// node). Violations are fatal: they are construction-time programming
// errors, not recoverable conditions.
func (d *Dag) validate() {
	for _, n := range d.Nodes {
		if n.Op == nil && len(n.Sources) != 0 {
			panic(fmt.Sprintf("dag: input node %d must have no sources", n.Id))
		}
		if n.Op != nil && len(n.Sources) == 0 {
			panic(fmt.Sprintf("dag: non-input node %d must have at least one source", n.Id))
		}
	}
	total := 0
	for _, layer := range d.TopSort() {
		total += len(layer)
	}
	if total != len(d.Nodes) {
		panic(fmt.Sprintf("dag: graph is not acyclic: top_sort covered %d of %d nodes", total, len(d.Nodes)))
	}
}

// TopSort returns the DAG's layered topological order: each layer is the
// set of ids whose sources are all contained in earlier layers. Kahn's
// algorithm: the frontier starts at the inputs; a node graduates to the
// next frontier once every one of its sources has been emitted.
func (d *Dag) TopSort() [][]Id {
	arrived := make([]int, len(d.Nodes))
	frontier := append([]Id(nil), d.Inputs...)

	var layers [][]Id
	for len(frontier) > 0 {
		var next []Id
		for _, id := range frontier {
			for _, user := range d.Nodes[id].Users {
				arrived[user]++
				if arrived[user] > len(d.Nodes[user].Sources) {
					panic(fmt.Sprintf("dag: arrival counter for node %d exceeded its in-degree", user))
				}
				if arrived[user] == len(d.Nodes[user].Sources) {
					next = append(next, user)
				}
			}
		}
		layers = append(layers, frontier)
		frontier = next
	}
	return layers
}

// getCosts computes, for every id, the maximum-cost path from id to any
// sink: cost[sink] = cost_of(op); cost[v] = cost_of(op_v) + max(cost[u]
// for u in users(v)), 0 for input nodes. Used to rank criticality for
// EfficientSort.
//
// This is a reverse-topological release exactly mirroring TopSort's own
// arrival-counter mechanism, but walking Users instead of Sources: a node
// is only finalized once every one of its users has already been
// finalized, which is what guarantees the max-recurrence holds exactly
// for every node, including ones with several divergent-cost users (a
// shared input feeding both a cheap matrix chain and an expensive scalar
// chain, for instance; see DESIGN.md for why the original's ascending
// bucket-pop order does not have this guarantee and was not ported
// as-is).
func (d *Dag) getCosts() []uint32 {
	n := len(d.Nodes)
	cost := make([]uint32, n)
	maxUser := make([]uint32, n)
	arrived := make([]int, n)

	var frontier []Id
	for _, node := range d.Nodes {
		if len(node.Users) == 0 {
			frontier = append(frontier, node.Id)
		}
	}

	for len(frontier) > 0 {
		var next []Id
		for _, id := range frontier {
			node := &d.Nodes[id]
			own := uint32(0)
			if node.Op != nil {
				own = opcode.CostOf(*node.Op)
			}
			cost[id] = own + maxUser[id]
			for _, src := range node.Sources {
				if cost[id] > maxUser[src] {
					maxUser[src] = cost[id]
				}
				arrived[src]++
				if arrived[src] > len(d.Nodes[src].Users) {
					panic(fmt.Sprintf("dag: get_costs arrival counter for node %d exceeded its user count", src))
				}
				if arrived[src] == len(d.Nodes[src].Users) {
					next = append(next, src)
				}
			}
		}
		frontier = next
	}
	return cost
}
