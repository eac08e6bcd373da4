package linalg

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/linop/internal/envconfig"
	"github.com/born-ml/linop/internal/tensor"
)

// Preconditioner applies M⁻¹ to a block of residuals [batch..., n, t].
type Preconditioner func(r *tensor.RawTensor) (*tensor.RawTensor, error)

// CGOptions configures a conjugate gradient solve. Zero values resolve from
// the environment at call time.
type CGOptions struct {
	// Tolerance is the relative residual ‖r‖/‖b‖ at which a column stops.
	Tolerance float64

	// MaxIterations caps the iteration count. Defaults to LINOP_MAX_CG_ITERATIONS,
	// or the matrix size when that is zero.
	MaxIterations int

	// Preconditioner turns the solve into preconditioned CG when set.
	Preconditioner Preconditioner

	// PreconditionerKind builds a preconditioner from the operator of every
	// solve when Preconditioner is nil. Backward solves reuse it.
	PreconditionerKind PreconditionerKind

	// PreconditionerRank is the pivoted Cholesky rank. Defaults to
	// LINOP_MAX_PRECONDITIONER_SIZE.
	PreconditionerRank int
}

func (o CGOptions) resolve(n int) (tol float64, maxIter int) {
	tol = o.Tolerance
	if tol <= 0 {
		tol = envconfig.CGTolerance()
	}
	maxIter = o.MaxIterations
	if maxIter <= 0 {
		maxIter = int(envconfig.MaxCGIterations())
	}
	if maxIter <= 0 {
		maxIter = n
	}
	return tol, maxIter
}

// CGResult reports how a solve ended. Non-convergence is not an error.
type CGResult struct {
	Iterations     int
	Converged      bool
	MaxRelResidual float64
}

// cgColumn is the solver state of one right-hand-side column.
type cgColumn struct {
	x, r, z, p []float64
	rz         float64
	bNorm      float64
	relRes     float64
	done       bool
	converged  bool
}

// CG solves A X = B for every column and batch element of rhs with the
// conjugate gradient method. Each iteration issues exactly one op.Matmul
// covering all columns still running.
//
// A column stops once ‖r‖/‖b‖ falls below the tolerance; a column whose
// search direction has non-positive curvature pᵀAp ≤ 0 is frozen at its
// current estimate. Zero columns solve to zero.
func CG(op Operator, rhs *tensor.RawTensor, opts CGOptions) (*tensor.RawTensor, CGResult, error) {
	batch, t, err := checkRHS(op, rhs)
	if err != nil {
		return nil, CGResult{}, fmt.Errorf("cg: %w", err)
	}
	n := op.Size()
	shape := blockShape(batch, n, t)
	rhs = expandBatch(rhs, batch)
	tol, maxIter := opts.resolve(n)

	m := opts.Preconditioner
	if m == nil {
		if m, err = NewPreconditioner(op, opts.PreconditionerKind, opts.PreconditionerRank); err != nil {
			return nil, CGResult{}, fmt.Errorf("cg: %w", err)
		}
	}

	state := make([]*cgColumn, 0, batch.NumElements()*t)
	for _, b := range columns(rhs) {
		col := &cgColumn{
			x:     make([]float64, n),
			r:     b,
			bNorm: floats.Norm(b, 2),
		}
		if col.bNorm == 0 {
			col.done, col.converged = true, true
		}
		state = append(state, col)
	}

	if err := precondition(state, shape, m); err != nil {
		return nil, CGResult{}, err
	}
	for _, col := range state {
		col.p = append([]float64(nil), col.z...)
		col.rz = floats.Dot(col.r, col.z)
	}

	iter := 0
	for ; iter < maxIter && running(state); iter++ {
		dirs := make([][]float64, len(state))
		for c, col := range state {
			if !col.done {
				dirs[c] = col.p
			}
		}
		ap, err := op.Matmul(fromColumns(dirs, shape))
		if err != nil {
			return nil, CGResult{}, fmt.Errorf("cg: iteration %d: %w", iter, err)
		}

		for c, apCol := range columns(ap) {
			col := state[c]
			if col.done {
				continue
			}
			pAp := floats.Dot(col.p, apCol)
			if pAp <= 0 {
				col.relRes = floats.Norm(col.r, 2) / col.bNorm
				col.done = true
				continue
			}
			alpha := col.rz / pAp
			floats.AddScaled(col.x, alpha, col.p)
			floats.AddScaled(col.r, -alpha, apCol)
			col.relRes = floats.Norm(col.r, 2) / col.bNorm
			if col.relRes < tol {
				col.done, col.converged = true, true
			}
		}

		if err := precondition(state, shape, m); err != nil {
			return nil, CGResult{}, err
		}
		for _, col := range state {
			if col.done {
				continue
			}
			rzNew := floats.Dot(col.r, col.z)
			beta := rzNew / col.rz
			col.rz = rzNew
			// p = z + beta p
			floats.AddScaledTo(col.p, col.z, beta, col.p)
		}
	}

	result := CGResult{Iterations: iter, Converged: true}
	sols := make([][]float64, len(state))
	for c, col := range state {
		sols[c] = col.x
		result.Converged = result.Converged && col.converged
		result.MaxRelResidual = math.Max(result.MaxRelResidual, col.relRes)
	}

	if !result.Converged {
		log.WithFields(log.Fields{
			"iterations":       result.Iterations,
			"max_rel_residual": result.MaxRelResidual,
			"tolerance":        tol,
		}).Warn("conjugate gradient did not converge")
	}

	return fromColumns(sols, shape), result, nil
}

func running(state []*cgColumn) bool {
	for _, col := range state {
		if !col.done {
			return true
		}
	}
	return false
}

// precondition sets z = M⁻¹ r for every running column (z = r without a
// preconditioner).
func precondition(state []*cgColumn, shape tensor.Shape, m Preconditioner) error {
	if m == nil {
		for _, col := range state {
			col.z = col.r
		}
		return nil
	}

	res := make([][]float64, len(state))
	for c, col := range state {
		res[c] = col.r
	}
	z, err := m(fromColumns(res, shape))
	if err != nil {
		return fmt.Errorf("cg: preconditioner: %w", err)
	}
	if !z.Shape().Equal(shape) {
		return fmt.Errorf("cg: preconditioner: %w: expected %v, got %v", ErrShapeMismatch, shape, z.Shape())
	}
	for c, zc := range columns(z) {
		state[c].z = zc
	}
	return nil
}

// JacobiPreconditioner returns M⁻¹ = diag(A)⁻¹ for an operator exposing its
// diagonal. Entries with a non-positive diagonal are left unscaled.
func JacobiPreconditioner(op Operator) (Preconditioner, error) {
	var diag *tensor.RawTensor
	if d, ok := op.(Diagonal); ok {
		diag = d.Diag()
	}
	if diag == nil {
		return nil, fmt.Errorf("jacobi preconditioner: operator %T does not expose its diagonal", op)
	}

	n := op.Size()
	nd := diag.NumElements() / max(n, 1)
	inv := make([]float64, diag.NumElements())
	for i, v := range diag.AsFloat64() {
		inv[i] = 1
		if v > 0 {
			inv[i] = 1 / v
		}
	}

	return func(r *tensor.RawTensor) (*tensor.RawTensor, error) {
		_, t := r.Shape().MatrixDims()
		out := r.Clone()
		data := out.AsFloat64()
		for b := 0; b < r.Shape().BatchShape().NumElements(); b++ {
			dOff := batchIndex(b, nd) * n
			for i := 0; i < n; i++ {
				floats.Scale(inv[dOff+i], data[(b*n+i)*t:(b*n+i+1)*t])
			}
		}
		return out, nil
	}, nil
}
