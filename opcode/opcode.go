// Package opcode defines the closed set of tensor operations the device
// understands and the (opcode -> chip, opcode -> cost) tables the rest of
// the scheduler is built on. Apart from dag's fixed iteration list
// (allOpcodes in dag/order.go), this is the only place the operation
// taxonomy is enumerated; adding a fifth opcode means adding a row here
// and an entry to that list.
package opcode

import "fmt"

// Opcode is a closed, four-variant enum. There is no fifth kind and no
// interface indirection: the set is fixed at compile time, so a plain
// integer constant with a switch beats a polymorphic "op" abstraction.
type Opcode int

const (
	VAdd Opcode = iota
	VMin
	VMax
	VScaMul
)

func (op Opcode) String() string {
	switch op {
	case VAdd:
		return "vadd"
	case VMin:
		return "vmin"
	case VMax:
		return "vmax"
	case VScaMul:
		return "vscamul"
	default:
		return fmt.Sprintf("opcode(%d)", int(op))
	}
}

// ChipType names the two heterogeneous compute chips on the device.
type ChipType int

const (
	// Scalar is the pointwise chip: VAdd, VMin, VMax.
	Scalar ChipType = iota
	// Opac is the matrix outer-product-accumulate chip: VScaMul.
	Opac
)

func (c ChipType) String() string {
	switch c {
	case Scalar:
		return "scalar"
	case Opac:
		return "opac"
	default:
		return fmt.Sprintf("chip(%d)", int(c))
	}
}

// Tuning constants, process-wide. See device.TransferTime and friends for
// the device-model constants; these two are the scheduling costs quoted
// directly in the opcode tables below.
const (
	PointwiseCost uint32 = 1000
	OpacCost      uint32 = 1
)

// ChipOf maps an opcode to the chip it runs on. Pure, no state.
func ChipOf(op Opcode) ChipType {
	switch op {
	case VAdd, VMin, VMax:
		return Scalar
	case VScaMul:
		return Opac
	default:
		panic(fmt.Sprintf("opcode: unknown opcode %d", int(op)))
	}
}

// CostOf maps an opcode to its fixed per-dispatch cost in cycles. Pure,
// no state.
func CostOf(op Opcode) uint32 {
	switch op {
	case VAdd, VMin, VMax:
		return PointwiseCost
	case VScaMul:
		return OpacCost
	default:
		panic(fmt.Sprintf("opcode: unknown opcode %d", int(op)))
	}
}
