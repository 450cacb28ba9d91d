package dag

import (
	"fmt"

	"github.com/google/btree"

	"github.com/maemowong/arago/device"
	"github.com/maemowong/arago/opcode"
)

// allOpcodes fixes a deterministic iteration order over the closed opcode
// set. The original's per-opcode ready buckets live in a hash map, whose
// iteration order is not reproducible; scheduling ties must be, so this
// heuristic always checks opcodes in declared enum order instead.
var allOpcodes = [...]opcode.Opcode{opcode.VAdd, opcode.VMin, opcode.VMax, opcode.VScaMul}

// timeBucket groups ids whose in-flight task completes at the same
// simulated time. Pop order within a bucket is FIFO: first pushed, first
// released.
type timeBucket struct {
	at  uint32
	ids []Id
}

// critBucket groups ready ids sharing the same criticality (longest-path
// cost). Pop order within a bucket is LIFO: the most recently inserted id
// wins ties.
type critBucket struct {
	crit uint32
	ids  []Id
}

func pushTimeBucket(t *btree.BTreeG[timeBucket], at uint32, id Id) {
	b, ok := t.Get(timeBucket{at: at})
	if !ok {
		b = timeBucket{at: at}
	}
	b.ids = append(b.ids, id)
	t.ReplaceOrInsert(b)
}

func pushCritBucket(t *btree.BTreeG[critBucket], crit uint32, id Id) {
	b, ok := t.Get(critBucket{crit: crit})
	if !ok {
		b = critBucket{crit: crit}
	}
	b.ids = append(b.ids, id)
	t.ReplaceOrInsert(b)
}

// EfficientSort produces a critical-path- and resource-contention-aware
// topological order: at every simulated cycle it prefers dispatching the
// most critical ready task on whichever chip has a free slot, tracked
// against a throwaway Device used purely as a contention model (see
// SPEC_FULL.md §4.D: this Device never touches the one the scheduler
// later replays the real instruction stream against).
//
// The order returned is always a valid topological order of the graph,
// but it is a heuristic, not an optimal schedule. There is no claim that
// it minimizes makespan.
func (d *Dag) EfficientSort() []Id {
	n := len(d.Nodes)
	costs := d.getCosts()
	dev := device.New()

	arrived := make([]int, n)
	res := make([]Id, 0, n)

	active := btree.NewG(32, func(a, b timeBucket) bool { return a.at < b.at })
	free := make(map[opcode.Opcode]*btree.BTreeG[critBucket], len(allOpcodes))
	for _, op := range allOpcodes {
		free[op] = btree.NewG(32, func(a, b critBucket) bool { return a.crit < b.crit })
	}

	release := func(id Id, at uint32) {
		for _, user := range d.Nodes[id].Users {
			arrived[user]++
			if arrived[user] > len(d.Nodes[user].Sources) {
				panic(fmt.Sprintf("dag: efficient_sort arrival counter for node %d exceeded its in-degree", user))
			}
			if arrived[user] == len(d.Nodes[user].Sources) {
				op := *d.Nodes[user].Op
				pushCritBucket(free[op], costs[user], user)
			}
		}
	}

	cycles := uint32(0)
	for _, id := range d.Inputs {
		res = append(res, id)
		pushTimeBucket(active, 0, id)
	}

	for {
		dispatched := false
		for _, op := range allOpcodes {
			t := free[op]
			if t.Len() == 0 {
				continue
			}
			top, _ := t.Max()
			if len(top.ids) == 0 {
				continue
			}
			candidate := top.ids[len(top.ids)-1]

			core := dev.Core(op)
			core.UpdateTime(cycles)
			if !core.TryAdd(candidate, cycles) {
				continue
			}

			res = append(res, candidate)
			pushTimeBucket(active, cycles+opcode.CostOf(op), candidate)

			top.ids = top.ids[:len(top.ids)-1]
			if len(top.ids) == 0 {
				t.Delete(critBucket{crit: top.crit})
			} else {
				t.ReplaceOrInsert(top)
			}
			dispatched = true
			break
		}
		if dispatched {
			continue
		}

		bucket, ok := active.DeleteMin()
		if !ok {
			break
		}
		if bucket.at > cycles {
			cycles = bucket.at
		}
		for _, id := range bucket.ids {
			release(id, bucket.at)
		}
	}

	if len(res) != n {
		panic(fmt.Sprintf("dag: efficient_sort produced %d of %d ids", len(res), n))
	}
	return res
}
