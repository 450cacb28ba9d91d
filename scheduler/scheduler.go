// Package scheduler replays a dispatch order against a fresh Device to
// measure modeled wall-clock cycles, in two modes: a naive baseline (flat
// topological order, always-move register allocation) and an optimal
// path (the critical-path-aware heuristic order plus furthest-next-use
// allocation). Both exist to be compared against each other: the whole
// point of the optimizer is the gap between them.
package scheduler

import (
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/maemowong/arago/dag"
	"github.com/maemowong/arago/device"
	"github.com/maemowong/arago/opcode"
	"github.com/maemowong/arago/regalloc"
)

// Scheduler wraps one immutable Dag. Both Execute methods build their own
// fresh Device per call, so repeated calls never interfere with each
// other.
type Scheduler struct {
	d *dag.Dag
}

func New(d *dag.Dag) *Scheduler {
	return &Scheduler{d: d}
}

// OptimalExecute runs EfficientSort's heuristic order through the
// furthest-next-use allocator, replays the resulting instructions against
// a fresh Device, and returns the modeled runtime alongside the dispatch
// order used.
func (s *Scheduler) OptimalExecute() (uint32, []dag.Id) {
	order := s.d.EfficientSort()

	pos := make(map[dag.Id]int, len(order))
	for i, id := range order {
		pos[id] = i
	}

	steps := make([]regalloc.Step, len(order))
	sources := make(map[regalloc.Id][]regalloc.Id, len(s.d.Nodes))
	users := make(map[regalloc.Id][]int, len(s.d.Nodes))
	for i, id := range order {
		node := s.d.Nodes[id]
		var c *opcode.ChipType
		if node.Op != nil {
			chip := opcode.ChipOf(*node.Op)
			c = &chip
		}
		steps[i] = regalloc.Step{Id: id, Chip: c}

		sources[id] = node.Sources
		uses := make([]int, 0, len(node.Users))
		for _, u := range node.Users {
			uses = append(uses, pos[u])
		}
		sort.Ints(uses)
		users[id] = uses
	}

	dev := device.New()
	alloc := regalloc.New(dev.RegStat())
	instrs := alloc.Regalloc(steps, sources, users)

	t := s.execTime(instrs, dev)
	logrus.WithFields(logrus.Fields{"makespan": t, "nodes": len(order)}).Info("scheduler: optimal_execute")
	return t, order
}

// BaselineExecute runs the flat topological order through naive
// always-move allocation (one fresh register per source per
// instruction, nothing ever reused across instructions) and replays it
// against a fresh Device.
func (s *Scheduler) BaselineExecute() (uint32, []dag.Id) {
	var order []dag.Id
	for _, layer := range s.d.TopSort() {
		order = append(order, layer...)
	}

	instrs := make([]regalloc.Instruction, 0, len(order))
	for _, id := range order {
		node := s.d.Nodes[id]
		moves := make([]regalloc.Move, len(node.Sources))
		for i, src := range node.Sources {
			moves[i] = regalloc.Move{Source: src, Reg: device.Register(i)}
		}
		instrs = append(instrs, regalloc.Instruction{
			Id:       id,
			ResReg:   device.Register(len(node.Sources)),
			PreMoves: moves,
		})
	}

	dev := device.New()
	t := s.execTime(instrs, dev)
	logrus.WithFields(logrus.Fields{"makespan": t, "nodes": len(order)}).Info("scheduler: baseline_execute")
	return t, order
}

// execTime replays a fixed instruction stream against dev: every
// pre-move lands on the device first, then the instruction's own op (if
// any) dispatches; for an input node, the instruction's own id is
// itself a to_device transfer. Returns the device's final elapsed time.
func (s *Scheduler) execTime(instrs []regalloc.Instruction, dev *device.Device) uint32 {
	for _, inst := range instrs {
		for _, mv := range inst.PreMoves {
			dev.ToDevice(mv.Source, mv.Reg)
		}
		node := s.d.Nodes[inst.Id]
		if node.Op != nil {
			dev.Schedule(*node.Op, inst.Id, inst.ResReg, node.Sources)
		} else {
			dev.ToDevice(inst.Id, inst.ResReg)
		}
	}
	return dev.ElapsedTime()
}
