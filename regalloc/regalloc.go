// Package regalloc implements furthest-next-use register allocation over
// a fixed dispatch order: for each step, move whatever sources aren't
// already resident, then assign the step's own result a register,
// evicting the resident value whose next use is furthest in the future
// (or never used again) when a chip's register file is full.
package regalloc

import (
	"fmt"
	"sort"

	"github.com/maemowong/arago/device"
	"github.com/maemowong/arago/opcode"
)

// Id is a plain alias for int, matching device.Id and dag.Id. The three
// packages never need to convert between each other's node identities.
type Id = int

// Move describes one host/device register transfer that must happen
// before a step executes: source id, target register. The chip it lands
// on is always decided by device.ToDevice (the scalar side), independent
// of what chip the allocator reserved it against. See device.go.
type Move struct {
	Source Id
	Reg    device.Register
}

// Instruction is one step's final lowering: its own id, the register its
// result lands in, and the pre-moves required before it can dispatch.
type Instruction struct {
	Id       Id
	ResReg   device.Register
	PreMoves []Move
}

// Step is one position in the dispatch order being allocated over: an id
// and its chip, or a nil chip for an input node.
type Step struct {
	Id   Id
	Chip *opcode.ChipType
}

// Allocator holds per-chip free-register pools and the residency map
// (which id currently occupies which register, per chip).
type Allocator struct {
	free map[opcode.ChipType][]device.Register
	mem  map[opcode.ChipType]map[Id]device.Register
}

// New builds an allocator with regStat[chip] registers free per chip,
// numbered 0..regStat[chip]-1.
func New(regStat map[opcode.ChipType]uint32) *Allocator {
	free := make(map[opcode.ChipType][]device.Register, len(regStat))
	mem := make(map[opcode.ChipType]map[Id]device.Register, len(regStat))
	for chip, n := range regStat {
		regs := make([]device.Register, 0, n)
		for r := uint32(0); r < n; r++ {
			regs = append(regs, device.Register(r))
		}
		free[chip] = regs
		mem[chip] = make(map[Id]device.Register)
	}
	return &Allocator{free: free, mem: mem}
}

// Regalloc walks order once, producing one Instruction per step.
//
// sources[id] lists id's DAG sources (empty for input nodes). users[id]
// lists, in ascending order, the step indices at which id is read. These
// are the furthest-next-use queues; an empty queue after the cursor
// passes it means "never used again", which must compare as the maximum
// (preferred eviction target), not the minimum.
func (a *Allocator) Regalloc(order []Step, sources map[Id][]Id, users map[Id][]int) []Instruction {
	cursor := make(map[Id]int, len(users))
	res := make([]Instruction, 0, len(order))

	for i, step := range order {
		a.syncMemory(users, cursor, i)

		if step.Chip == nil {
			if len(sources[step.Id]) != 0 {
				panic(fmt.Sprintf("regalloc: input node %d must have no sources", step.Id))
			}
			reg := a.allocReg(opcode.Scalar, users, cursor)
			a.bind(opcode.Scalar, step.Id, reg)
			res = append(res, Instruction{Id: step.Id, ResReg: reg})
			continue
		}

		chip := *step.Chip
		var moves []Move
		for _, src := range sources[step.Id] {
			if _, resident := a.mem[chip][src]; resident {
				continue
			}
			reg := a.allocReg(chip, users, cursor)
			a.bind(chip, src, reg)
			moves = append(moves, Move{Source: src, Reg: reg})
		}

		reg := a.allocReg(chip, users, cursor)
		a.bind(chip, step.Id, reg)
		res = append(res, Instruction{Id: step.Id, ResReg: reg, PreMoves: moves})
	}
	return res
}

func (a *Allocator) bind(chip opcode.ChipType, id Id, reg device.Register) {
	if _, exists := a.mem[chip][id]; exists {
		panic(fmt.Sprintf("regalloc: id %d already resident on chip %s", id, chip))
	}
	a.mem[chip][id] = reg
}

// syncMemory advances every resident id's furthest-next-use cursor past
// every use strictly before the current step, so allocReg always sees
// each id's true remaining use queue.
func (a *Allocator) syncMemory(users map[Id][]int, cursor map[Id]int, step int) {
	for _, mem := range a.mem {
		for id := range mem {
			u := users[id]
			c := cursor[id]
			for c < len(u) && u[c] < step {
				c++
			}
			cursor[id] = c
		}
	}
}

// allocReg returns a free register on chip, evicting via furthest-next-
// use if the pool is exhausted.
func (a *Allocator) allocReg(chip opcode.ChipType, users map[Id][]int, cursor map[Id]int) device.Register {
	free := a.free[chip]
	if len(free) > 0 {
		reg := free[len(free)-1]
		a.free[chip] = free[:len(free)-1]
		return reg
	}

	ids := make([]Id, 0, len(a.mem[chip]))
	for id := range a.mem[chip] {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	found := false
	var evictID Id
	var evictReg device.Register
	var bestRemaining []int
	for _, id := range ids {
		remaining := users[id][cursor[id]:]
		if !found || compareRemaining(remaining, bestRemaining) > 0 {
			found = true
			evictID = id
			evictReg = a.mem[chip][id]
			bestRemaining = remaining
		}
	}
	if !found {
		panic(fmt.Sprintf("regalloc: chip %s has zero register capacity", chip))
	}
	delete(a.mem[chip], evictID)
	return evictReg
}

// compareRemaining orders two furthest-next-use queues: an empty queue
// (never used again) is maximal, and otherwise the comparison is
// lexicographic over the remaining use-step indices. Returns -1, 0, or 1.
func compareRemaining(a, b []int) int {
	switch {
	case len(a) == 0 && len(b) == 0:
		return 0
	case len(a) == 0:
		return 1
	case len(b) == 0:
		return -1
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) == len(b):
		return 0
	case len(a) < len(b):
		return -1
	default:
		return 1
	}
}
