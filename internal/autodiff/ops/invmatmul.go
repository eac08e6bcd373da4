package ops

import (
	"github.com/born-ml/linop/internal/linalg"
	"github.com/born-ml/linop/internal/tensor"
)

// InvMatmulOp represents a linear solve: output X = M⁻¹ B for the operand
// M = c·A + diag(d).
//
// Backward pass, with Y = M⁻¹ g from one more CG solve:
//   - grad_B = Y
//   - grad_M = -Y Xᵀ, summed over columns and broadcast batch dimensions,
//     then split into grad_A = c·grad_M and grad_d = diag(grad_M)
//
// M is symmetric, so M⁻ᵀ g = M⁻¹ g.
type InvMatmulOp struct {
	operand Operand
	rhs     *tensor.RawTensor
	output  *tensor.RawTensor // M⁻¹ B
	opts    linalg.CGOptions
}

// NewInvMatmulOp creates a new InvMatmulOp. opts are reused by the backward solve.
func NewInvMatmulOp(operand Operand, rhs, output *tensor.RawTensor, opts linalg.CGOptions) *InvMatmulOp {
	return &InvMatmulOp{
		operand: operand,
		rhs:     rhs,
		output:  output,
		opts:    opts,
	}
}

// Backward computes input gradients for the solve.
func (op *InvMatmulOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	y := solve(op.operand, outputGrad, op.opts, backend, "inv_matmul")

	gradB := reduceBroadcast(y, op.rhs.Shape(), backend)

	outer := backend.MatMul(y, transposeLast(op.output, backend))
	grads := op.operand.grads(backend.MulScalar(outer, -1), backend)

	return append(grads, gradB)
}

// Inputs returns the input tensors [A, B] or [A, d, B].
func (op *InvMatmulOp) Inputs() []*tensor.RawTensor {
	return append(op.operand.Inputs(), op.rhs)
}

// Output returns the solution M⁻¹ B.
func (op *InvMatmulOp) Output() *tensor.RawTensor {
	return op.output
}
