package ops

import (
	"fmt"

	"github.com/born-ml/linop/internal/linalg"
	"github.com/born-ml/linop/internal/tensor"
)

// reduceBroadcast reduces a gradient tensor to match the target shape.
// This is necessary when broadcasting was used in the forward pass.
//
// Example:
//
//	Forward: a[3,3] @ b[2,3,1] -> c[2,3,1]  (a was broadcast over the batch)
//	Backward: grad_a[2,3,3] -> grad_a[3,3]  (sum along dim 0)
func reduceBroadcast(grad *tensor.RawTensor, targetShape tensor.Shape, backend tensor.Backend) *tensor.RawTensor {
	gradShape := grad.Shape()

	// Clone so that accumulated gradients never alias each other.
	if gradShape.Equal(targetShape) {
		return grad.Clone()
	}

	if len(targetShape) == 0 {
		return backend.Sum(grad)
	}

	// Shapes align from the right: extra leading dimensions are summed away.
	result := grad
	for len(result.Shape()) > len(targetShape) {
		result = backend.SumDim(result, 0, false)
	}

	shape := result.Shape()
	for i := range targetShape {
		if targetShape[i] == 1 && shape[i] > 1 {
			result = backend.SumDim(result, i, true)
		}
	}

	if !result.Shape().Equal(targetShape) {
		result = backend.Reshape(result, targetShape)
	}
	return result
}

// broadcastTo repeats t along every dimension where it has size one.
// t must have the same rank as shape.
func broadcastTo(t *tensor.RawTensor, shape tensor.Shape) *tensor.RawTensor {
	src := t.Shape()
	if len(src) != len(shape) {
		panic(fmt.Sprintf("broadcastTo: rank mismatch %v vs %v", src, shape))
	}
	if src.Equal(shape) {
		return t.Clone()
	}

	srcStrides := src.ComputeStrides()
	dstStrides := shape.ComputeStrides()
	result := tensor.Zeros(shape)
	in, out := t.AsFloat64(), result.AsFloat64()
	for i := range out {
		offset := 0
		rem := i
		for d := range shape {
			coord := rem / dstStrides[d]
			rem %= dstStrides[d]
			if src[d] != 1 {
				offset += coord * srcStrides[d]
			}
		}
		out[i] = in[offset]
	}
	return result
}

// transposeLast swaps the trailing two dimensions.
func transposeLast(t *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	ndim := len(t.Shape())
	axes := make([]int, ndim)
	for i := range axes {
		axes[i] = i
	}
	axes[ndim-2], axes[ndim-1] = axes[ndim-1], axes[ndim-2]
	return backend.Transpose(t, axes...)
}

// sym returns (x + xᵀ)/2 over the trailing two dimensions.
func sym(x *tensor.RawTensor, backend tensor.Backend) *tensor.RawTensor {
	return backend.MulScalar(backend.Add(x, transposeLast(x, backend)), 0.5)
}

// solve returns M⁻¹ rhs for the operand M by conjugate gradients, with the
// forward pass's preconditioner settings. Backward passes have no error
// return, so a failed solve panics.
func solve(operand Operand, rhs *tensor.RawTensor, opts linalg.CGOptions, backend tensor.Backend, name string) *tensor.RawTensor {
	op, err := operand.Operator(backend)
	if err != nil {
		panic(fmt.Sprintf("%s backward: %v", name, err))
	}
	x, _, err := linalg.CG(op, rhs, opts)
	if err != nil {
		panic(fmt.Sprintf("%s backward: %v", name, err))
	}
	return x
}
