package linalg

import (
	"fmt"

	"github.com/born-ml/linop/internal/tensor"
)

// A block is a tensor of shape [batch..., n, t]: t columns of length n for
// every batch element. The routines in this package work on per-column
// slices and pack them back into blocks around each Matmul.

// checkRHS validates a right-hand side against op and resolves the batch shape
// both broadcast to.
func checkRHS(op Operator, rhs *tensor.RawTensor) (tensor.Shape, int, error) {
	shape := rhs.Shape()
	if len(shape) < 2 {
		return nil, 0, fmt.Errorf("%w: right-hand side must be [..., %d, t], got %v", ErrShapeMismatch, op.Size(), shape)
	}
	rows, cols := shape.MatrixDims()
	if rows != op.Size() {
		return nil, 0, fmt.Errorf("%w: expected right-hand side with %d rows, got %v", ErrShapeMismatch, op.Size(), shape)
	}
	batch, err := broadcastBatch(op.BatchShape(), shape.BatchShape())
	if err != nil {
		return nil, 0, err
	}
	return batch, cols, nil
}

// broadcastBatch resolves the batch shape shared by two operands. Each side
// must either match the result or hold a single batch element.
func broadcastBatch(a, b tensor.Shape) (tensor.Shape, error) {
	out, _, err := tensor.BroadcastShapes(a, b)
	if err != nil {
		return nil, fmt.Errorf("%w: batch %v vs %v", ErrShapeMismatch, a, b)
	}
	for _, s := range []tensor.Shape{a, b} {
		if s.NumElements() != 1 && !s.Equal(out) {
			return nil, fmt.Errorf("%w: batch %v cannot broadcast to %v", ErrShapeMismatch, s, out)
		}
	}
	return out, nil
}

// blockShape returns batch + [rows, cols].
func blockShape(batch tensor.Shape, rows, cols int) tensor.Shape {
	return append(batch.Clone(), rows, cols)
}

// expandBatch repeats a single-element batch of x across batch. x is returned
// unchanged when it already has that batch shape.
func expandBatch(x *tensor.RawTensor, batch tensor.Shape) *tensor.RawTensor {
	if x.Shape().BatchShape().Equal(batch) {
		return x
	}
	rows, cols := x.Shape().MatrixDims()
	out := tensor.Zeros(blockShape(batch, rows, cols))
	src := x.AsFloat64()
	dst := out.AsFloat64()
	for off := 0; off < len(dst); off += len(src) {
		copy(dst[off:], src)
	}
	return out
}

// columns splits a block into contiguous column copies indexed b*t + j.
func columns(x *tensor.RawTensor) [][]float64 {
	n, t := x.Shape().MatrixDims()
	nb := x.Shape().BatchShape().NumElements()
	data := x.AsFloat64()

	cols := make([][]float64, nb*t)
	for b := 0; b < nb; b++ {
		off := b * n * t
		for j := 0; j < t; j++ {
			col := make([]float64, n)
			for i := 0; i < n; i++ {
				col[i] = data[off+i*t+j]
			}
			cols[b*t+j] = col
		}
	}
	return cols
}

// fromColumns packs columns (indexed b*t + j) into a block of the given shape.
// Nil columns are left as zeros.
func fromColumns(cols [][]float64, shape tensor.Shape) *tensor.RawTensor {
	n, t := shape.MatrixDims()
	out := tensor.Zeros(shape)
	data := out.AsFloat64()
	for c, col := range cols {
		if col == nil {
			continue
		}
		b, j := c/t, c%t
		off := b * n * t
		for i, v := range col {
			data[off+i*t+j] = v
		}
	}
	return out
}

// batchIndex maps an index of a broadcast batch onto an operand holding
// either the full batch or a single element.
func batchIndex(b, count int) int {
	if count == 1 {
		return 0
	}
	return b
}
