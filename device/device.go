// Package device is the hardware reference model for the accelerator: a
// monotonic simulated clock, two heterogeneous compute cores with bounded
// parallelism, and two independent per-chip register files. It measures
// time, nothing else; the scheduler decides what order to feed it.
//
// Separate Device instances share no state: the efficient-sort
// heuristic's contention model (which only uses Core.UpdateTime/TryAdd)
// and the final instruction replay each get their own.
package device

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/maemowong/arago/opcode"
)

// Tuning constants, process-wide and compile-time per the external
// interface contract.
const (
	TransferTime    uint32 = 1
	PointwiseCost          = opcode.PointwiseCost
	OpacCost               = opcode.OpacCost
	MaxRegPerChip   uint32 = 16
	CoreParallelism int    = 1
)

// Register is an 8-bit tag naming a slot in one chip's register file. It
// carries no chip information of its own; residency is tracked by which
// file it was bound in, not by the value.
type Register uint8

// Id names a DAG node. It is a plain alias for int (not a defined type)
// so callers never need to convert between dag.Id and device.Id. This
// package has no import dependency on the graph representation, it only
// ever sees opaque task identities.
type Id = int

type task struct {
	id   Id
	done uint32 // completion time
}

// core models one compute pipeline: a FIFO of in-flight tasks bounded by
// CoreParallelism, and the fixed per-dispatch cost for whatever chip it
// belongs to. The FIFO is a plain slice, push-back/pop-front only, never
// a keyed lookup, so no ordered-map library is warranted here (see
// DESIGN.md).
type core struct {
	chip   opcode.ChipType
	cost   uint32
	active []task
}

func newCore(chip opcode.ChipType, cost uint32) *core {
	return &core{chip: chip, cost: cost}
}

func (c *core) isFull() bool {
	if len(c.active) > CoreParallelism {
		panic(fmt.Sprintf("device: core %s over capacity: %d in flight", c.chip, len(c.active)))
	}
	return len(c.active) == CoreParallelism
}

// add dispatches id at dispatchTime. If the core has capacity the task is
// simply appended to finish at dispatchTime+cost. If the core is full, the
// head task is popped first: its completion time becomes the new
// dispatch time. This two-mode semantics must be preserved exactly or
// scheduling times diverge. Returns the popped task, if any, so the
// caller can advance the device clock and mark it done.
func (c *core) add(id Id, dispatchTime uint32) (popped task, hadPopped bool) {
	if c.isFull() {
		popped, c.active = c.active[0], c.active[1:]
		hadPopped = true
		dispatchTime = popped.done
	}
	c.active = append(c.active, task{id: id, done: dispatchTime + c.cost})
	return popped, hadPopped
}

// tryAdd is the non-evicting counterpart used by the efficient-sort
// heuristic's contention model: it never pops, it only reports whether
// there was room.
func (c *core) tryAdd(id Id, dispatchTime uint32) bool {
	if c.isFull() {
		return false
	}
	c.active = append(c.active, task{id: id, done: dispatchTime + c.cost})
	return true
}

// updateTime drains every task whose completion time is <= now, without
// advancing the clock itself (the caller owns the clock).
func (c *core) updateTime(now uint32) {
	i := 0
	for i < len(c.active) && c.active[i].done <= now {
		i++
	}
	c.active = c.active[i:]
}

func (c *core) peekEarliest() (task, bool) {
	if len(c.active) == 0 {
		return task{}, false
	}
	return c.active[0], true
}

func (c *core) popFront() task {
	t := c.active[0]
	c.active = c.active[1:]
	return t
}

// registerFile is one chip's pool of MaxRegPerChip registers, partitioned
// into free and bound. The two maps below are kept as exact inverses.
type registerFile struct {
	free    []Register
	boundTo map[Register]Id
	idReg   map[Id]Register
}

func newRegisterFile(n uint32) *registerFile {
	free := make([]Register, 0, n)
	for r := uint32(0); r < n; r++ {
		free = append(free, Register(r))
	}
	return &registerFile{
		free:    free,
		boundTo: make(map[Register]Id),
		idReg:   make(map[Id]Register),
	}
}

func (rf *registerFile) bind(id Id, reg Register) {
	rf.boundTo[reg] = id
	rf.idReg[id] = reg
}

// Device is the simulated two-chip accelerator: a monotonic clock, the
// matrix and scalar cores, and their two independent register files.
type Device struct {
	time      uint32
	cores     map[opcode.ChipType]*core
	regFiles  map[opcode.ChipType]*registerFile
	doneTasks map[Id]bool
}

// New builds a fresh device with both cores empty and both register files
// fully free. Construct a new Device per simulation run: see the
// "Two independent devices" design note; the efficient-sort heuristic's
// contention model and the final replay must never share one.
func New() *Device {
	return &Device{
		cores: map[opcode.ChipType]*core{
			opcode.Scalar: newCore(opcode.Scalar, PointwiseCost),
			opcode.Opac:   newCore(opcode.Opac, OpacCost),
		},
		regFiles: map[opcode.ChipType]*registerFile{
			opcode.Scalar: newRegisterFile(MaxRegPerChip),
			opcode.Opac:   newRegisterFile(MaxRegPerChip),
		},
		doneTasks: make(map[Id]bool),
	}
}

// ToDevice records a host->device transfer of id into register reg.
// This always binds on the Scalar chip's register file: inputs (and
// every pre-move, including ones destined for the Opac chip) are
// modeled as landing on the scalar side first. Advances time by
// TransferTime and marks id done.
func (d *Device) ToDevice(id Id, reg Register) {
	d.time += TransferTime
	d.regFiles[opcode.Scalar].bind(id, reg)
	d.doneTasks[id] = true
	logrus.WithFields(logrus.Fields{"id": id, "reg": reg, "time": d.time}).Debug("device: to_device")
}

// Schedule dispatches id (opcode op) into register reg, after asserting
// every id in requiredInputs is already resident in device memory.
// Dispatching advances the target core's FIFO per the two-mode policy
// described on core.add.
//
// id itself is marked resident/done as soon as it dispatches, not when
// its simulated completion time arrives: "resident in device memory"
// tracks program-order register occupancy (has this id ever been placed
// in a register downstream code can reference), while the in-flight FIFO
// is what enforces the actual cycle-accurate serialization. A core with
// CoreParallelism 1 cannot even start a dependent op on the same chip
// until the prior one's completion evicts it, so the two mechanisms
// never disagree about what's safe to dispatch next.
func (d *Device) Schedule(op opcode.Opcode, id Id, reg Register, requiredInputs []Id) {
	for _, in := range requiredInputs {
		if !d.doneTasks[in] {
			panic(fmt.Sprintf("device: scheduling id=%d requires id=%d which is not resident in device memory", id, in))
		}
	}

	chip := opcode.ChipOf(op)
	c := d.cores[chip]
	popped, hadPopped := c.add(id, d.time)
	d.regFiles[chip].bind(id, reg)
	d.doneTasks[id] = true

	if hadPopped {
		d.updateTime(popped.done)
		d.doneTasks[popped.id] = true
	}
	logrus.WithFields(logrus.Fields{
		"id": id, "op": op, "chip": chip, "reg": reg, "time": d.time,
	}).Debug("device: schedule")
}

// ElapsedTime drains both cores by repeatedly popping the in-flight task
// with the smallest completion time across the two cores (ties break
// toward the matrix/Opac core: Scalar is chosen only on a strict "<"),
// advancing the clock to it and marking it done, until both are empty. Returns the
// final clock value: the schedule's modeled runtime.
func (d *Device) ElapsedTime() uint32 {
	for d.step() {
	}
	return d.time
}

// step drains exactly one task across both cores, picking whichever
// finishes earliest. Returns false once both cores are empty.
func (d *Device) step() bool {
	matrix, hasMatrix := d.cores[opcode.Opac].peekEarliest()
	scalar, hasScalar := d.cores[opcode.Scalar].peekEarliest()

	var chip opcode.ChipType
	switch {
	case hasMatrix && hasScalar:
		if scalar.done < matrix.done {
			chip = opcode.Scalar
		} else {
			chip = opcode.Opac
		}
	case hasMatrix:
		chip = opcode.Opac
	case hasScalar:
		chip = opcode.Scalar
	default:
		return false
	}

	t := d.cores[chip].popFront()
	d.updateTime(t.done)
	d.doneTasks[t.id] = true
	return true
}

func (d *Device) updateTime(t uint32) {
	if t > d.time {
		d.time = t
	}
}

// GetCost mirrors opcode.CostOf; exposed on Device so callers that only
// hold a *Device (not the opcode package) can still query it.
func (d *Device) GetCost(op opcode.Opcode) uint32 {
	return opcode.CostOf(op)
}

// Core exposes the core matching op's chip for the efficient-sort
// heuristic's contention model (dag.EfficientSort), which needs tryAdd/
// updateTime directly rather than going through Schedule's full-replay
// semantics.
func (d *Device) Core(op opcode.Opcode) Core {
	return Core{c: d.cores[opcode.ChipOf(op)]}
}

// Core is the exported handle to a chip's FIFO, used only by the
// efficient-sort heuristic's contention model.
type Core struct{ c *core }

func (h Core) UpdateTime(now uint32)         { h.c.updateTime(now) }
func (h Core) TryAdd(id Id, now uint32) bool { return h.c.tryAdd(id, now) }

// RegStat returns the register-file capacity per chip, e.g. for sizing
// the register allocator's free pools.
func (d *Device) RegStat() map[opcode.ChipType]uint32 {
	return map[opcode.ChipType]uint32{
		opcode.Opac:   MaxRegPerChip,
		opcode.Scalar: MaxRegPerChip,
	}
}

// Time returns the device's current simulated clock value.
func (d *Device) Time() uint32 { return d.time }
