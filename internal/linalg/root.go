package linalg

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/linop/internal/envconfig"
	"github.com/born-ml/linop/internal/parallel"
	"github.com/born-ml/linop/internal/tensor"
)

// DefaultRootTolerance bounds how negative a Ritz value may be, relative to
// the largest one, before a root decomposition rejects the matrix.
const DefaultRootTolerance = 1e-8

// RootOptions configures the root decompositions.
type RootOptions struct {
	// MaxIterations caps the Lanczos subspace size.
	MaxIterations int

	// Rank is the pivoted Cholesky rank of RootDecompositionPC. Defaults to
	// LINOP_MAX_PRECONDITIONER_SIZE.
	Rank int

	// Tolerance is the relative negative-eigenvalue threshold. Defaults to
	// DefaultRootTolerance.
	Tolerance float64

	// Rand draws the Lanczos start vector. Defaults to NewRand(nil).
	Rand *rand.Rand

	// MaxCholeskyNumel is the largest n·n factored by dense Cholesky instead
	// of Lanczos. Zero defaults to LINOP_MAX_CHOLESKY_NUMEL; a negative value
	// always runs Lanczos.
	MaxCholeskyNumel int
}

func (o RootOptions) useCholesky(n int) bool {
	limit := o.MaxCholeskyNumel
	if limit == 0 {
		limit = int(envconfig.MaxCholeskyNumel())
	}
	return n*n <= limit
}

// RootDecomposition returns R ([batch..., n, m]) with R Rᵀ ≈ A.
//
// Small matrices (n·n ≤ MaxCholeskyNumel) are factored exactly as A = L Lᵀ,
// falling back to Lanczos when A is only semidefinite. Otherwise Lanczos from
// one random probe gives A ≈ Q T Qᵀ and T = U Λ Uᵀ, so R = Q U Λ^{1/2}, with
// round-off negative Ritz values clamped to zero.
func RootDecomposition(op Operator, opts RootOptions) (*tensor.RawTensor, error) {
	if opts.useCholesky(op.Size()) {
		r, err := choleskyRoot(op, false)
		if err == nil || !errors.Is(err, ErrNotPositiveDefinite) {
			return r, err
		}
		log.WithError(err).Debug("root_decomposition: cholesky failed, falling back to lanczos")
	}
	return lanczosRoot(op, opts, false, nil)
}

// RootInvDecomposition returns R with R Rᵀ ≈ A⁻¹: R = L⁻ᵀ from a dense
// Cholesky factor for small matrices, R = Q U Λ^{-1/2} from Lanczos otherwise.
// A matrix that is not positive definite fails with ErrNotPositiveDefinite.
func RootInvDecomposition(op Operator, opts RootOptions) (*tensor.RawTensor, error) {
	if opts.useCholesky(op.Size()) {
		return choleskyRoot(op, true)
	}
	return lanczosRoot(op, opts, true, nil)
}

// RootDecompositionPC returns R = [L | R_E] with R Rᵀ ≈ A, where L is a
// pivoted Cholesky factor of rank ≤ opts.Rank and R_E is the Lanczos root of
// the deflated operator A − L Lᵀ.
func RootDecompositionPC(op Operator, opts RootOptions) (*tensor.RawTensor, error) {
	rank := opts.Rank
	if rank <= 0 {
		rank = int(envconfig.MaxPreconditionerSize())
	}
	l, scale, err := pivotedCholesky(op, rank, 0)
	if err != nil {
		return nil, fmt.Errorf("root_decomposition_pc: %w", err)
	}
	residual, err := NewResidual(op, l)
	if err != nil {
		return nil, fmt.Errorf("root_decomposition_pc: %w", err)
	}
	// The residual spectrum is near zero once L captures A, so negative
	// round-off is judged against the scale of A rather than of the residual.
	re, err := lanczosRoot(residual, opts, false, scale)
	if err != nil {
		return nil, fmt.Errorf("root_decomposition_pc: %w", err)
	}
	return concatColumns(l, re), nil
}

// lanczosRoot builds R = Q U f(Λ) per batch element. scale, when set, is the
// per-batch magnitude used for the negative-eigenvalue threshold.
func lanczosRoot(op Operator, opts RootOptions, inverse bool, scale []float64) (*tensor.RawTensor, error) {
	n := op.Size()
	batch := op.BatchShape()
	nb := batch.NumElements()
	tol := opts.Tolerance
	if tol <= 0 {
		tol = DefaultRootTolerance
	}

	probe := tensor.Randn(blockShape(batch, n, 1), NewRand(opts.Rand))
	lz, err := Lanczos(op, probe, LanczosOptions{MaxIterations: opts.MaxIterations})
	if err != nil {
		return nil, err
	}

	roots := make([]*mat.Dense, nb)
	err = parallel.For(nb, func(b int) error {
		tri := lz.At(b, 0)
		if tri.Size() == 0 {
			return nil
		}
		vals, vecs, err := tri.Eigen()
		if err != nil {
			return err
		}

		lmax := 0.0
		for _, l := range vals {
			lmax = math.Max(lmax, math.Abs(l))
		}
		if scale != nil {
			lmax = math.Max(lmax, scale[b])
		}

		for k, l := range vals {
			var f float64
			switch {
			case inverse && l <= 0:
				return fmt.Errorf("%w: batch element %d has Ritz value %g", ErrNotPositiveDefinite, b, l)
			case inverse:
				f = 1 / math.Sqrt(l)
			case l < -tol*lmax:
				return fmt.Errorf("%w: batch element %d has Ritz value %g", ErrNotPositiveDefinite, b, l)
			default:
				f = math.Sqrt(math.Max(l, 0))
			}
			for i := 0; i < tri.Size(); i++ {
				vecs.Set(i, k, vecs.At(i, k)*f)
			}
		}

		var r mat.Dense
		r.Mul(tri.Q(n), vecs)
		roots[b] = &r
		return nil
	}, parallel.DefaultConfig())
	if err != nil {
		return nil, err
	}

	m := 0
	for _, r := range roots {
		if r != nil {
			_, c := r.Dims()
			m = max(m, c)
		}
	}
	out := tensor.Zeros(blockShape(batch, n, m))
	data := out.AsFloat64()
	for b, r := range roots {
		if r == nil {
			continue
		}
		_, c := r.Dims()
		for i := 0; i < n; i++ {
			for j := 0; j < c; j++ {
				data[(b*n+i)*m+j] = r.At(i, j)
			}
		}
	}
	return out, nil
}

// choleskyRoot factors every batch element of the materialized operator as
// A = L Lᵀ and returns L, or L⁻ᵀ when inverse is set.
func choleskyRoot(op Operator, inverse bool) (*tensor.RawTensor, error) {
	n := op.Size()
	batch := op.BatchShape()
	dense, err := op.Matmul(tensor.Eye(n, batch...))
	if err != nil {
		return nil, err
	}

	out := tensor.Zeros(blockShape(batch, n, n))
	src, dst := dense.AsFloat64(), out.AsFloat64()
	err = parallel.For(batch.NumElements(), func(b int) error {
		a := mat.NewSymDense(n, append([]float64(nil), src[b*n*n:(b+1)*n*n]...))
		var chol mat.Cholesky
		if ok := chol.Factorize(a); !ok {
			return fmt.Errorf("%w: cholesky of batch element %d failed", ErrNotPositiveDefinite, b)
		}
		var l mat.TriDense
		chol.LTo(&l)

		var r mat.Matrix = &l
		if inverse {
			var linv mat.TriDense
			if err := linv.InverseTri(&l); err != nil {
				var cond mat.Condition
				if !errors.As(err, &cond) {
					return fmt.Errorf("%w: batch element %d: %v", ErrNotPositiveDefinite, b, err)
				}
				log.WithFields(log.Fields{"batch": b, "condition": float64(cond)}).Warn("root_inv_decomposition: ill-conditioned cholesky factor")
			}
			r = linv.T()
		}
		block := mat.NewDense(n, n, dst[b*n*n:(b+1)*n*n])
		block.Copy(r)
		return nil
	}, parallel.DefaultConfig())
	if err != nil {
		return nil, err
	}
	return out, nil
}

// concatColumns joins two blocks with equal batch and row counts along the
// column dimension.
func concatColumns(a, b *tensor.RawTensor) *tensor.RawTensor {
	batch := a.Shape().BatchShape()
	n, ka := a.Shape().MatrixDims()
	_, kb := b.Shape().MatrixDims()
	k := ka + kb

	out := tensor.Zeros(blockShape(batch, n, k))
	src1, src2, dst := a.AsFloat64(), b.AsFloat64(), out.AsFloat64()
	for row := 0; row < batch.NumElements()*n; row++ {
		copy(dst[row*k:], src1[row*ka:(row+1)*ka])
		copy(dst[row*k+ka:], src2[row*kb:(row+1)*kb])
	}
	return out
}
