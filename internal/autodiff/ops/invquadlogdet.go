package ops

import (
	"github.com/born-ml/linop/internal/linalg"
	"github.com/born-ml/linop/internal/tensor"
)

// InvQuadLogDetOp represents the joint estimate of xᵀM⁻¹x and log det M for
// the operand M = c·A + diag(d). It is a multi-output operation:
// [invQuad, logDet], either of which may be absent.
//
// Backward pass, with Y = M⁻¹X and W = M⁻¹Z for the S forward probes Z:
//   - grad_M = -Yg Yᵀ + sym(g_l/S · W Zᵀ), split into grad_A and grad_d
//   - grad_X = 2 Yg
//
// where Yg is Y with each column scaled by its upstream gradient g_q. The
// log-determinant term is the Hutchinson estimate of g_l·M⁻¹ built from the
// same probes as the forward estimate.
type InvQuadLogDetOp struct {
	operand Operand
	rhs     *tensor.RawTensor // nil without a quadratic form
	invQuad *tensor.RawTensor
	logDet  *tensor.RawTensor
	probes  *tensor.RawTensor
	reduce  bool
	opts    linalg.CGOptions
}

// NewInvQuadLogDetOp creates a new InvQuadLogDetOp. rhs and invQuad are nil
// when no quadratic form was requested; logDet and probes are nil when no
// log-determinant was requested.
func NewInvQuadLogDetOp(
	operand Operand,
	rhs, invQuad, logDet, probes *tensor.RawTensor,
	reduce bool,
	opts linalg.CGOptions,
) *InvQuadLogDetOp {
	return &InvQuadLogDetOp{
		operand: operand,
		rhs:     rhs,
		invQuad: invQuad,
		logDet:  logDet,
		probes:  probes,
		reduce:  reduce,
		opts:    opts,
	}
}

// Inputs returns the operand inputs ([A] or [A, d]) followed by X when a
// quadratic form was requested.
func (op *InvQuadLogDetOp) Inputs() []*tensor.RawTensor {
	inputs := op.operand.Inputs()
	if op.rhs != nil {
		inputs = append(inputs, op.rhs)
	}
	return inputs
}

// Outputs returns the produced estimates in the order invQuad, logDet.
func (op *InvQuadLogDetOp) Outputs() []*tensor.RawTensor {
	var outs []*tensor.RawTensor
	if op.invQuad != nil {
		outs = append(outs, op.invQuad)
	}
	if op.logDet != nil {
		outs = append(outs, op.logDet)
	}
	return outs
}

// Output returns the first produced estimate.
func (op *InvQuadLogDetOp) Output() *tensor.RawTensor {
	return op.Outputs()[0]
}

// Backward handles the case where the op is driven as a single-output node.
func (op *InvQuadLogDetOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	grads := make([]*tensor.RawTensor, len(op.Outputs()))
	grads[0] = outputGrad
	return op.BackwardMulti(grads, backend)
}

// BackwardMulti computes input gradients from the gradients of both estimates.
func (op *InvQuadLogDetOp) BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	var gQuad, gLogDet *tensor.RawTensor
	k := 0
	if op.invQuad != nil {
		gQuad = outputGrads[k]
		k++
	}
	if op.logDet != nil {
		gLogDet = outputGrads[k]
	}

	shape := op.operand.Shape()
	var gradM, gradX *tensor.RawTensor

	if gQuad != nil {
		y := solve(op.operand, op.rhs, op.opts, backend, "inv_quad")
		yg := scaleColumns(y, gQuad, op.reduce)

		outer := backend.MatMul(yg, transposeLast(y, backend))
		gradM = reduceBroadcast(backend.MulScalar(outer, -1), shape, backend)
		gradX = reduceBroadcast(backend.MulScalar(yg, 2), op.rhs.Shape(), backend)
	}

	if gLogDet != nil {
		_, s := op.probes.Shape().MatrixDims()
		w := solve(op.operand, op.probes, op.opts, backend, "log_det")
		est := backend.MatMul(w, transposeLast(op.probes, backend))
		est = sym(scaleBatch(est, gLogDet, 1/float64(s)), backend)
		est = reduceBroadcast(est, shape, backend)
		if gradM == nil {
			gradM = est
		} else {
			gradM = backend.Add(gradM, est)
		}
	}

	grads := op.operand.grads(gradM, backend)
	if op.rhs == nil {
		return grads
	}
	return append(grads, gradX)
}

// scaleColumns multiplies column j of batch element b of y ([batch..., n, t])
// by g[b] when reduced, or by g[b, j] otherwise.
func scaleColumns(y, g *tensor.RawTensor, reduce bool) *tensor.RawTensor {
	n, t := y.Shape().MatrixDims()
	out := tensor.Zeros(y.Shape())
	src, dst, gd := y.AsFloat64(), out.AsFloat64(), g.AsFloat64()
	for idx, v := range src {
		b := idx / (n * t)
		j := idx % t
		if reduce {
			dst[idx] = v * gd[b]
		} else {
			dst[idx] = v * gd[b*t+j]
		}
	}
	return out
}

// scaleBatch multiplies batch element b of m by c·g[b].
func scaleBatch(m, g *tensor.RawTensor, c float64) *tensor.RawTensor {
	rows, cols := m.Shape().MatrixDims()
	out := tensor.Zeros(m.Shape())
	src, dst, gd := m.AsFloat64(), out.AsFloat64(), g.AsFloat64()
	for idx, v := range src {
		dst[idx] = v * c * gd[idx/(rows*cols)]
	}
	return out
}
