package linalg

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/linop/internal/envconfig"
	"github.com/born-ml/linop/internal/parallel"
	"github.com/born-ml/linop/internal/tensor"
)

// PreconditionerKind selects the preconditioner CG builds from its operator
// when CGOptions.Preconditioner is nil.
type PreconditionerKind int

const (
	// NoPreconditioner runs plain CG.
	NoPreconditioner PreconditionerKind = iota
	// JacobiPreconditioning uses M = diag(A).
	JacobiPreconditioning
	// PivotedCholeskyPreconditioning uses M = L Lᵀ + σI with a pivoted
	// Cholesky factor L.
	PivotedCholeskyPreconditioning
)

func (k PreconditionerKind) String() string {
	switch k {
	case NoPreconditioner:
		return "none"
	case JacobiPreconditioning:
		return "jacobi"
	case PivotedCholeskyPreconditioning:
		return "pivchol"
	default:
		return fmt.Sprintf("PreconditionerKind(%d)", int(k))
	}
}

// ParsePreconditionerKind maps "none", "jacobi" or "pivchol" (case
// insensitive, empty meaning none) to a kind.
func ParsePreconditionerKind(s string) (PreconditionerKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return NoPreconditioner, nil
	case "jacobi":
		return JacobiPreconditioning, nil
	case "pivchol", "pivoted-cholesky":
		return PivotedCholeskyPreconditioning, nil
	default:
		return NoPreconditioner, fmt.Errorf("unknown preconditioner %q (want none, jacobi or pivchol)", s)
	}
}

// NewPreconditioner builds the preconditioner of the given kind for op. rank
// is the pivoted Cholesky rank and defaults to LINOP_MAX_PRECONDITIONER_SIZE.
// NoPreconditioner yields a nil Preconditioner.
func NewPreconditioner(op Operator, kind PreconditionerKind, rank int) (Preconditioner, error) {
	switch kind {
	case NoPreconditioner:
		return nil, nil
	case JacobiPreconditioning:
		return JacobiPreconditioner(op)
	case PivotedCholeskyPreconditioning:
		if rank <= 0 {
			rank = int(envconfig.MaxPreconditionerSize())
		}
		return PivotedCholeskyPreconditioner(op, rank)
	default:
		return nil, fmt.Errorf("preconditioner: unknown kind %v", kind)
	}
}

// minNoiseRatio floors σ relative to the mean diagonal of A, so a factor that
// captures A completely still leaves M invertible.
const minNoiseRatio = 1e-3

// PivotedCholeskyPreconditioner returns M⁻¹ for M = L Lᵀ + σI, where L is the
// rank-k pivoted Cholesky factor of A and σ is the mean of the residual
// diagonal diag(A − L Lᵀ). By Woodbury,
//
//	M⁻¹ r = (r − L (σI + LᵀL)⁻¹ Lᵀ r) / σ
//
// so each application costs O(n k t) after one k×k factorization per batch
// element.
func PivotedCholeskyPreconditioner(op Operator, rank int) (Preconditioner, error) {
	l, _, err := pivotedCholesky(op, rank, 0)
	if err != nil {
		return nil, fmt.Errorf("pivoted cholesky preconditioner: %w", err)
	}
	diag, err := operatorDiag(op)
	if err != nil {
		return nil, fmt.Errorf("pivoted cholesky preconditioner: %w", err)
	}

	n, k := l.Shape().MatrixDims()
	nl := l.Shape().BatchShape().NumElements()
	nd := diag.NumElements() / max(n, 1)
	ld, dd := l.AsFloat64(), diag.AsFloat64()

	sigma := make([]float64, nl)
	chols := make([]*mat.Cholesky, nl)
	err = parallel.For(nl, func(b int) error {
		lb := ld[b*n*k : (b+1)*n*k]
		db := dd[batchIndex(b, nd)*n : (batchIndex(b, nd)+1)*n]

		var mean, resid float64
		for i, v := range db {
			mean += v
			resid += v
			for _, lij := range lb[i*k : (i+1)*k] {
				resid -= lij * lij
			}
		}
		mean /= float64(n)
		resid /= float64(n)
		sigma[b] = math.Max(resid, minNoiseRatio*math.Abs(mean))
		if sigma[b] <= 0 {
			return fmt.Errorf("%w: batch element %d has non-positive mean diagonal", ErrNotPositiveDefinite, b)
		}
		if k == 0 {
			return nil
		}

		var inner mat.SymDense
		inner.SymOuterK(1, mat.NewDense(n, k, lb).T())
		for j := 0; j < k; j++ {
			inner.SetSym(j, j, inner.At(j, j)+sigma[b])
		}
		var chol mat.Cholesky
		if ok := chol.Factorize(&inner); !ok {
			return fmt.Errorf("%w: preconditioner capacitance of batch element %d", ErrNotPositiveDefinite, b)
		}
		chols[b] = &chol
		return nil
	}, parallel.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("pivoted cholesky preconditioner: %w", err)
	}

	return func(r *tensor.RawTensor) (*tensor.RawTensor, error) {
		rows, t := r.Shape().MatrixDims()
		if rows != n {
			return nil, fmt.Errorf("%w: expected residuals with %d rows, got %v", ErrShapeMismatch, n, r.Shape())
		}
		out := r.Clone()
		if t == 0 {
			return out, nil
		}
		data := out.AsFloat64()
		for b := 0; b < r.Shape().BatchShape().NumElements(); b++ {
			lbi := batchIndex(b, nl)
			rb := mat.NewDense(n, t, data[b*n*t:(b+1)*n*t])
			if k > 0 {
				lb := mat.NewDense(n, k, ld[lbi*n*k:(lbi+1)*n*k])
				var ltr, y, ly mat.Dense
				ltr.Mul(lb.T(), rb)
				if err := chols[lbi].SolveTo(&y, &ltr); err != nil {
					return nil, fmt.Errorf("pivoted cholesky preconditioner: %w", err)
				}
				ly.Mul(lb, &y)
				rb.Sub(rb, &ly)
			}
			rb.Scale(1/sigma[lbi], rb)
		}
		return out, nil
	}, nil
}
