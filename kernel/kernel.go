// Package kernel is the quantized matrix-multiply collaborator the
// scheduler's device model stands in for: it quantizes f32 matrices to
// int8, accumulates block outer products into an int16 matrix, and
// dequantizes back to f32. It sits outside the scheduler's core proper:
// nothing here feeds the DAG, device, or allocator packages. It is the
// concrete collaborator the device model's VScaMul/VAdd/VMin/VMax
// opcodes are named after, so it is kept as a real, tested package
// rather than a stub.
package kernel

import "fmt"

// Dimension bounds the block size a single outer-product accumulation
// pass can cover, mirroring original_source/matrices/src/intrinsics'
// fixed-size on-chip register arrays.
const Dimension = 16

// chipT is the device's native quantized element type.
type chipT = int8

// Quantize maps one f32 value onto the chip's int8 range, matching
// original_source/matrices/src/intrinsics/intrinsics.rs::f32_to_chip.
func Quantize(x float32) chipT {
	return chipT(round32(x * 128))
}

// Dequantize reverses Quantize for an accumulated int16 product,
// matching intrinsics.rs::scaled_to_f32.
func Dequantize(x int16) float32 {
	return float32(x) / 128 / 128
}

func round32(x float32) float32 {
	if x >= 0 {
		return float32(int64(x + 0.5))
	}
	return float32(int64(x - 0.5))
}

func quantizeRow(xs []float32) []chipT {
	if len(xs) > Dimension {
		panic(fmt.Sprintf("kernel: row of %d elements exceeds Dimension=%d", len(xs), Dimension))
	}
	r := make([]chipT, len(xs))
	for i, x := range xs {
		r[i] = Quantize(x)
	}
	return r
}

// block accumulates outer products a⊗b for a run of shared-dimension
// columns into a bRows x aRows grid of int16, matching
// intrinsics.rs::opac's res[(j,i)] += a[i]*b[j] write order: the result
// of one outer-product pass is indexed by b's row first, a's row
// second, not the other way around.
type block struct {
	data         [][]int16
	aRows, bRows int
}

func newBlock(aRows, bRows int) *block {
	data := make([][]int16, bRows)
	for i := range data {
		data[i] = make([]int16, aRows)
	}
	return &block{data: data, aRows: aRows, bRows: bRows}
}

func (bl *block) opac(a, b []chipT) {
	for i := 0; i < bl.aRows; i++ {
		for j := 0; j < bl.bRows; j++ {
			bl.data[j][i] += int16(a[i]) * int16(b[j])
		}
	}
}

func (bl *block) dequantizeAddInto(res [][]float32, rowOff, colOff int) {
	for j := 0; j < bl.bRows; j++ {
		for i := 0; i < bl.aRows; i++ {
			res[rowOff+j][colOff+i] += Dequantize(bl.data[j][i])
		}
	}
}

// blockMul runs one outer-product accumulation pass over a Dimension-
// bounded slab of a and b's shared column range, matching
// wrappers.rs::block_mul. a and b are column-sliced views sharing the
// same column count (the contraction range for this pass); rows may
// differ.
func blockMul(res [][]float32, rowOff, colOff int, a, b [][]float32) {
	aRows, bRows, common := len(a), len(b), len(a[0])
	acc := newBlock(aRows, bRows)
	for k := 0; k < common; k++ {
		aCol := make([]float32, aRows)
		for i := range a {
			aCol[i] = a[i][k]
		}
		bCol := make([]float32, bRows)
		for i := range b {
			bCol[i] = b[i][k]
		}
		acc.opac(quantizeRow(aCol), quantizeRow(bCol))
	}
	acc.dequantizeAddInto(res, rowOff, colOff)
}

// MatMul quantizes a and b, accumulates their outer products over
// Dimension x Dimension x Dimension tiles, and dequantizes the result,
// matching wrappers.rs::mat_mul. a and b are row-major, each row indexed
// over the shared contraction dimension (a.shape()[1] == b.shape()[1]).
// The result has shape (len(b), len(a)): a's and b's row-count roles
// are swapped from what "mat_mul(a, b)" might suggest, because the
// underlying outer-product write is b-row-major, a-row-minor (see
// block.opac). Calling MatMul with a transposed first operand recovers
// conventional A·B.
func MatMul(a, b [][]float32) [][]float32 {
	if len(a) == 0 || len(b) == 0 {
		panic("kernel: MatMul operands must be non-empty")
	}
	common := len(a[0])
	if len(b[0]) != common {
		panic(fmt.Sprintf("kernel: MatMul shape mismatch: a has %d cols, b has %d", common, len(b[0])))
	}

	res := make([][]float32, len(b))
	for i := range res {
		res[i] = make([]float32, len(a))
	}

	for i := 0; i < len(a); i += Dimension {
		nextI := min(i+Dimension, len(a))
		for j := 0; j < len(b); j += Dimension {
			nextJ := min(j+Dimension, len(b))
			for k := 0; k < common; k += Dimension {
				nextK := min(k+Dimension, common)
				blockMul(res, j, i, sliceBlock(a, i, nextI, k, nextK), sliceBlock(b, j, nextJ, k, nextK))
			}
		}
	}
	return res
}

func sliceBlock(m [][]float32, rowLo, rowHi, colLo, colHi int) [][]float32 {
	out := make([][]float32, rowHi-rowLo)
	for i := range out {
		out[i] = m[rowLo+i][colLo:colHi]
	}
	return out
}

// VAdd adds two quantized int8 vectors elementwise, matching
// intrinsics.rs::sca_mul's structure but with addition (the generic
// elementwise-binop family the device's VAdd opcode models).
func VAdd(a, b []int8) []int8 {
	return elementwise(a, b, func(x, y int8) int8 { return x + y })
}

// VMin computes the elementwise minimum. The original's v_min calls max,
// a documented typo that this port does not reproduce.
func VMin(a, b []int8) []int8 {
	return elementwise(a, b, func(x, y int8) int8 {
		if x < y {
			return x
		}
		return y
	})
}

// VMax computes the elementwise maximum, matching intrinsics.rs::v_max.
func VMax(a, b []int8) []int8 {
	return elementwise(a, b, func(x, y int8) int8 {
		if x > y {
			return x
		}
		return y
	})
}

func elementwise(a, b []int8, op func(x, y int8) int8) []int8 {
	if len(a) != len(b) {
		panic(fmt.Sprintf("kernel: elementwise operands of length %d and %d", len(a), len(b)))
	}
	res := make([]int8, len(a))
	for i := range a {
		res[i] = op(a[i], b[i])
	}
	return res
}
