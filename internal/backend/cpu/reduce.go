package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/linop/internal/tensor"
)

// Sum computes the total sum of all elements (returns scalar).
func (cpu *CPUBackend) Sum(x *tensor.RawTensor) *tensor.RawTensor {
	return tensor.Full(tensor.Shape{}, floats.Sum(x.AsFloat64()))
}

// SumDim sums tensor elements along the specified dimension.
//
// Parameters:
//   - x: input tensor
//   - dim: dimension to reduce (supports negative indexing: -1 = last dim)
//   - keepDim: if true, keep the reduced dimension with size 1
//
// Example:
//
//	x = [[1, 2, 3], [4, 5, 6]]  // shape [2, 3]
//	SumDim(x, -1, true)         // [[6], [15]] shape [2, 1]
//	SumDim(x, 0, false)         // [5, 7, 9]   shape [3]
func (cpu *CPUBackend) SumDim(x *tensor.RawTensor, dim int, keepDim bool) *tensor.RawTensor {
	shape := x.Shape()
	ndim := len(shape)

	// Normalize negative dimension
	if dim < 0 {
		dim = ndim + dim
	}
	if dim < 0 || dim >= ndim {
		panic(fmt.Sprintf("sumdim: dimension %d out of range for %dD tensor", dim, ndim))
	}

	var outShape tensor.Shape
	for i, d := range shape {
		switch {
		case i != dim:
			outShape = append(outShape, d)
		case keepDim:
			outShape = append(outShape, 1)
		}
	}
	if outShape == nil {
		outShape = tensor.Shape{}
	}

	// [outer, reduced, inner] view of the row-major layout.
	outer := shape[:dim].NumElements()
	reduced := shape[dim]
	inner := shape[dim+1:].NumElements()

	result := tensor.Zeros(outShape)
	src := x.AsFloat64()
	dst := result.AsFloat64()
	for o := 0; o < outer; o++ {
		for r := 0; r < reduced; r++ {
			base := (o*reduced + r) * inner
			floats.Add(dst[o*inner:(o+1)*inner], src[base:base+inner])
		}
	}
	return result
}

// Trace sums the diagonal of the trailing square matrix.
// The result has the batch shape of x ([] for a plain matrix).
func (cpu *CPUBackend) Trace(x *tensor.RawTensor) *tensor.RawTensor {
	shape := x.Shape()
	if len(shape) < 2 {
		panic(fmt.Sprintf("trace: input must be at least 2D, got %v", shape))
	}
	n, cols := shape.MatrixDims()
	if n != cols {
		panic(fmt.Sprintf("trace: matrix must be square, got %v", shape))
	}

	result := tensor.Zeros(shape.BatchShape())
	src := x.AsFloat64()
	dst := result.AsFloat64()
	for b := range dst {
		off := b * n * n
		for i := 0; i < n; i++ {
			dst[b] += src[off+i*n+i]
		}
	}
	return result
}
