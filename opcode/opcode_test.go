package opcode

import "testing"

func TestChipOf(t *testing.T) {
	cases := []struct {
		op   Opcode
		want ChipType
	}{
		{VAdd, Scalar},
		{VMin, Scalar},
		{VMax, Scalar},
		{VScaMul, Opac},
	}
	for _, c := range cases {
		if got := ChipOf(c.op); got != c.want {
			t.Errorf("ChipOf(%v) = %v, want %v", c.op, got, c.want)
		}
	}
}

func TestCostOf(t *testing.T) {
	cases := []struct {
		op   Opcode
		want uint32
	}{
		{VAdd, PointwiseCost},
		{VMin, PointwiseCost},
		{VMax, PointwiseCost},
		{VScaMul, OpacCost},
	}
	for _, c := range cases {
		if got := CostOf(c.op); got != c.want {
			t.Errorf("CostOf(%v) = %d, want %d", c.op, got, c.want)
		}
	}
}

func TestCostOf_ScalarMatrixDisjoint(t *testing.T) {
	// WHY: the scheduler's whole premise is that the two chips have very
	// different per-dispatch costs, which is what lets overlap beat
	// serialization. If these ever collapse to the same value the
	// efficient-sort heuristic stops buying anything.
	if CostOf(VAdd) == CostOf(VScaMul) {
		t.Fatal("scalar and opac costs must differ for the heuristic to matter")
	}
}

func TestChipOf_UnknownOpcodePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("ChipOf should panic on an opcode outside the closed enum")
		}
	}()
	ChipOf(Opcode(99))
}
