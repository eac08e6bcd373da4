package autodiff

import (
	"github.com/born-ml/linop/internal/autodiff/ops"
	"github.com/born-ml/linop/internal/linalg"
	"github.com/born-ml/linop/internal/tensor"
)

// Operand is the operator c·A + diag(d) the linear-algebra nodes work against.
// Operand{Matrix: a} is the plain matrix.
type Operand = ops.Operand

// RootKind selects the root decomposition computed by RootDecomposition.
type RootKind int

const (
	// Root computes R with R Rᵀ ≈ A.
	Root RootKind = iota
	// InverseRoot computes R with R Rᵀ ≈ A⁻¹.
	InverseRoot
	// PreconditionedRoot computes R = [L | R_E] with a pivoted Cholesky factor L.
	PreconditionedRoot
)

func (k RootKind) String() string {
	switch k {
	case Root:
		return "root_decomposition"
	case InverseRoot:
		return "root_inv_decomposition"
	case PreconditionedRoot:
		return "root_decomposition_pc"
	default:
		return "unknown"
	}
}

// InvMatmul solves M X = rhs by conjugate gradients on the wrapped backend
// and records an InvMatmulOp. cg also configures the backward solve.
func (b *AutodiffBackend[B]) InvMatmul(operand Operand, rhs *tensor.RawTensor, cg linalg.CGOptions) (*tensor.RawTensor, linalg.CGResult, error) {
	op, err := operand.Operator(b.inner)
	if err != nil {
		return nil, linalg.CGResult{}, err
	}
	x, res, err := linalg.CG(op, rhs, cg)
	if err != nil {
		return nil, res, err
	}

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewInvMatmulOp(operand, rhs, x, cg))
	}

	return x, res, nil
}

// InvQuadLogDet estimates rhsᵀM⁻¹rhs (rhs may be nil) and, when slq.LogDet is
// set, log det M. Both estimates are outputs of one recorded
// InvQuadLogDetOp; absent estimates are returned as nil.
func (b *AutodiffBackend[B]) InvQuadLogDet(
	operand Operand,
	rhs *tensor.RawTensor,
	slq linalg.SLQOptions,
	cg linalg.CGOptions,
) (invQuad, logDet *tensor.RawTensor, err error) {
	op, err := operand.Operator(b.inner)
	if err != nil {
		return nil, nil, err
	}
	res, err := linalg.InvQuadLogDet(op, rhs, slq)
	if err != nil {
		return nil, nil, err
	}

	if b.tape.IsRecording() && (res.InvQuad != nil || res.LogDet != nil) {
		b.tape.Record(ops.NewInvQuadLogDetOp(operand, rhs, res.InvQuad, res.LogDet, res.Probes, slq.Reduce, cg))
	}

	return res.InvQuad, res.LogDet, nil
}

// RootDecomposition computes the root factor selected by kind and records a
// RootDecompositionOp. cg configures the backward solves.
func (b *AutodiffBackend[B]) RootDecomposition(
	operand Operand,
	kind RootKind,
	opts linalg.RootOptions,
	cg linalg.CGOptions,
) (*tensor.RawTensor, error) {
	op, err := operand.Operator(b.inner)
	if err != nil {
		return nil, err
	}

	var r *tensor.RawTensor
	switch kind {
	case InverseRoot:
		r, err = linalg.RootInvDecomposition(op, opts)
	case PreconditionedRoot:
		r, err = linalg.RootDecompositionPC(op, opts)
	default:
		r, err = linalg.RootDecomposition(op, opts)
	}
	if err != nil {
		return nil, err
	}

	if b.tape.IsRecording() {
		b.tape.Record(ops.NewRootDecompositionOp(operand, r, kind == InverseRoot, cg))
	}

	return r, nil
}
