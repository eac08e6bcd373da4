package ops

import (
	"github.com/born-ml/linop/internal/linalg"
	"github.com/born-ml/linop/internal/tensor"
)

// RootDecompositionOp represents a root factor R of the operand M (R Rᵀ ≈ M)
// or of its inverse (R Rᵀ ≈ M⁻¹), from dense Cholesky, plain Lanczos or
// pivoted-Cholesky-preconditioned Lanczos.
//
// The factorization is treated as locally linear in M. With upstream gradient G:
//   - root:         grad_M = sym(½ G (M⁻¹R)ᵀ)
//   - inverse root: grad_M = sym(-½ (M⁻¹G) Rᵀ)
//
// Both reproduce d tr(R Rᵀ) exactly: I for the root and -M⁻² for the inverse.
type RootDecompositionOp struct {
	operand Operand
	output  *tensor.RawTensor
	inverse bool
	opts    linalg.CGOptions
}

// NewRootDecompositionOp creates a new RootDecompositionOp.
func NewRootDecompositionOp(operand Operand, root *tensor.RawTensor, inverse bool, opts linalg.CGOptions) *RootDecompositionOp {
	return &RootDecompositionOp{
		operand: operand,
		output:  root,
		inverse: inverse,
		opts:    opts,
	}
}

// Backward computes the gradients of the operand inputs.
func (op *RootDecompositionOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	var outer *tensor.RawTensor
	if op.inverse {
		w := solve(op.operand, outputGrad, op.opts, backend, "root_inv_decomposition")
		outer = backend.MulScalar(backend.MatMul(w, transposeLast(op.output, backend)), -0.5)
	} else {
		z := solve(op.operand, op.output, op.opts, backend, "root_decomposition")
		outer = backend.MulScalar(backend.MatMul(outputGrad, transposeLast(z, backend)), 0.5)
	}

	return op.operand.grads(sym(outer, backend), backend)
}

// Inputs returns [A] or [A, d].
func (op *RootDecompositionOp) Inputs() []*tensor.RawTensor {
	return op.operand.Inputs()
}

// Output returns the root factor R.
func (op *RootDecompositionOp) Output() *tensor.RawTensor {
	return op.output
}
