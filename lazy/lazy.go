// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package lazy

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/born-ml/linop/internal/autodiff"
	"github.com/born-ml/linop/internal/backend/cpu"
	"github.com/born-ml/linop/internal/linalg"
	"github.com/born-ml/linop/internal/tensor"
)

// Errors returned by NonLazy operations. Match them with errors.Is.
var (
	ErrShapeMismatch       = linalg.ErrShapeMismatch
	ErrNotSquare           = linalg.ErrNotSquare
	ErrNotSymmetric        = linalg.ErrNotSymmetric
	ErrNotPositiveDefinite = linalg.ErrNotPositiveDefinite
)

// SymmetryTolerance is the relative tolerance New applies when checking that
// the matrix is symmetric.
const SymmetryTolerance = 1e-8

// Tensor is the dense float64 tensor type.
type Tensor = tensor.RawTensor

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// CGResult reports how a conjugate gradient solve ended.
type CGResult = linalg.CGResult

// Backend is what a NonLazy needs from its compute backend: tensor primitives
// recorded on a gradient tape, plus the differentiable linear-algebra nodes.
// Any autodiff.AutodiffBackend satisfies it.
type Backend interface {
	autodiff.BackwardCapable

	InvMatmul(operand autodiff.Operand, rhs *Tensor, cg linalg.CGOptions) (*Tensor, linalg.CGResult, error)
	InvQuadLogDet(operand autodiff.Operand, rhs *Tensor, slq linalg.SLQOptions, cg linalg.CGOptions) (*Tensor, *Tensor, error)
	RootDecomposition(operand autodiff.Operand, kind autodiff.RootKind, opts linalg.RootOptions, cg linalg.CGOptions) (*Tensor, error)
}

// NewBackend returns an autodiff backend over the CPU backend. Its tape is
// not recording until Tape().StartRecording() is called.
func NewBackend() *autodiff.AutodiffBackend[*cpu.CPUBackend] {
	return autodiff.New(cpu.New())
}

// NonLazy wraps a dense symmetric matrix A [batch..., n, n], optionally
// scaled and shifted to c·A + diag(d) by MulConstant and AddDiag. Its solves,
// log-determinants and roots only multiply by that operator; the scaled and
// shifted matrix is never formed unless Evaluate asks for it.
type NonLazy struct {
	matrix  *Tensor
	scale   float64
	diag    *Tensor // nil without an added diagonal
	backend Backend
	opts    Options
}

// New wraps matrix. It fails when the matrix is not square or not symmetric
// within SymmetryTolerance.
func New(matrix *Tensor, backend Backend, opts Options) (*NonLazy, error) {
	if len(matrix.Shape()) < 2 {
		return nil, fmt.Errorf("lazy: %w: expected [batch..., n, n], got %v", ErrShapeMismatch, matrix.Shape())
	}
	if err := linalg.CheckSymmetric(matrix, SymmetryTolerance); err != nil {
		return nil, fmt.Errorf("lazy: %w", err)
	}
	return &NonLazy{matrix: matrix, scale: 1, backend: backend, opts: opts}, nil
}

// Matrix returns the wrapped matrix A, before any MulConstant or AddDiag.
func (a *NonLazy) Matrix() *Tensor {
	return a.matrix
}

func (a *NonLazy) operand() autodiff.Operand {
	return autodiff.Operand{Matrix: a.matrix, Scale: a.scale, Diag: a.diag}
}

// Size returns n.
func (a *NonLazy) Size() int {
	n, _ := a.matrix.Shape().MatrixDims()
	return n
}

// BatchShape returns the leading batch dimensions of the matrix.
func (a *NonLazy) BatchShape() Shape {
	return a.matrix.Shape().BatchShape()
}

// Matmul returns A @ rhs.
func (a *NonLazy) Matmul(rhs *Tensor) (*Tensor, error) {
	block, vector, err := a.block(rhs)
	if err != nil {
		return nil, fmt.Errorf("matmul: %w", err)
	}
	return a.unblock(a.backend.MatMul(a.Evaluate(), block), vector), nil
}

// InvMatmul returns A⁻¹ rhs by conjugate gradients.
func (a *NonLazy) InvMatmul(rhs *Tensor) (*Tensor, error) {
	x, _, err := a.InvMatmulResult(rhs)
	return x, err
}

// InvMatmulResult is InvMatmul that also reports how the solve ended.
// Hitting MaxCGIterations is not an error; check CGResult.Converged.
func (a *NonLazy) InvMatmulResult(rhs *Tensor) (*Tensor, CGResult, error) {
	block, vector, err := a.block(rhs)
	if err != nil {
		return nil, CGResult{}, fmt.Errorf("inv_matmul: %w", err)
	}
	x, res, err := a.backend.InvMatmul(a.operand(), block, a.opts.cg())
	if err != nil {
		return nil, res, fmt.Errorf("inv_matmul: %w", err)
	}
	log.WithFields(log.Fields{
		"iterations": res.Iterations,
		"converged":  res.Converged,
		"residual":   res.MaxRelResidual,
	}).Debug("inv_matmul")
	return a.unblock(x, vector), res, nil
}

// InvMatmulLeft returns left @ A⁻¹ rhs, where left is [batch..., k, n]. A
// vector rhs gives [batch..., k].
func (a *NonLazy) InvMatmulLeft(left, rhs *Tensor) (*Tensor, error) {
	if _, cols := left.Shape().MatrixDims(); len(left.Shape()) < 2 || cols != a.Size() {
		return nil, fmt.Errorf("inv_matmul: %w: expected left factor with %d columns, got %v",
			ErrShapeMismatch, a.Size(), left.Shape())
	}
	block, vector, err := a.block(rhs)
	if err != nil {
		return nil, fmt.Errorf("inv_matmul: %w", err)
	}
	x, err := a.InvMatmul(block)
	if err != nil {
		return nil, err
	}
	if !batchCompatible(left.Shape().BatchShape(), x.Shape().BatchShape()) {
		return nil, fmt.Errorf("inv_matmul: %w: left factor %v against solution %v",
			ErrShapeMismatch, left.Shape(), x.Shape())
	}
	return a.unblock(a.backend.MatMul(left, x), vector), nil
}

// InvQuad returns Σ_j x_jᵀ A⁻¹ x_j over the columns of x, one value per
// batch element.
func (a *NonLazy) InvQuad(x *Tensor) (*Tensor, error) {
	invQuad, _, err := a.invQuadLogDet(x, false, true)
	return invQuad, err
}

// LogDet returns the stochastic estimate of log det A, one value per batch
// element.
func (a *NonLazy) LogDet() (*Tensor, error) {
	_, logDet, err := a.invQuadLogDet(nil, true, true)
	return logDet, err
}

// InvQuadLogDet returns the quadratic form of rhs (nil when rhs is nil) and,
// when logDet is set, the log-determinant estimate (nil otherwise). The two
// share one Lanczos run and one tape node.
func (a *NonLazy) InvQuadLogDet(rhs *Tensor, logDet bool) (invQuad, logDetResult *Tensor, err error) {
	return a.invQuadLogDet(rhs, logDet, true)
}

// InvQuadPerColumn returns x_jᵀ A⁻¹ x_j for every column j of x.
func (a *NonLazy) InvQuadPerColumn(x *Tensor) (*Tensor, error) {
	invQuad, _, err := a.invQuadLogDet(x, false, false)
	return invQuad, err
}

func (a *NonLazy) invQuadLogDet(rhs *Tensor, logDet, reduce bool) (*Tensor, *Tensor, error) {
	var block *Tensor
	if rhs != nil {
		var err error
		if block, _, err = a.block(rhs); err != nil {
			return nil, nil, fmt.Errorf("inv_quad_log_det: %w", err)
		}
	}
	return a.backend.InvQuadLogDet(a.operand(), block, a.opts.slq(logDet, reduce), a.opts.cg())
}

// RootDecomposition returns R ([batch..., n, m]) with R Rᵀ ≈ A.
func (a *NonLazy) RootDecomposition() (*Tensor, error) {
	return a.backend.RootDecomposition(a.operand(), autodiff.Root, a.opts.root(), a.opts.cg())
}

// RootInvDecomposition returns R with R Rᵀ ≈ A⁻¹.
func (a *NonLazy) RootInvDecomposition() (*Tensor, error) {
	return a.backend.RootDecomposition(a.operand(), autodiff.InverseRoot, a.opts.root(), a.opts.cg())
}

// RootDecompositionPC returns R = [L | R_E] with R Rᵀ ≈ A, where L is a
// pivoted Cholesky factor of rank at most MaxPreconditionerSize and R_E the
// Lanczos root of A − L Lᵀ.
func (a *NonLazy) RootDecompositionPC() (*Tensor, error) {
	return a.backend.RootDecomposition(a.operand(), autodiff.PreconditionedRoot, a.opts.root(), a.opts.cg())
}

// Diag returns the diagonal [batch..., n].
func (a *NonLazy) Diag() *Tensor {
	eye := tensor.Eye(a.Size(), a.BatchShape()...)
	return a.backend.SumDim(a.backend.Mul(a.Evaluate(), eye), -1, false)
}

// Evaluate returns the dense matrix c·A + diag(d). Without MulConstant or
// AddDiag this is the wrapped matrix itself.
func (a *NonLazy) Evaluate() *Tensor {
	out := a.matrix
	if a.scale != 1 {
		out = a.backend.MulScalar(out, a.scale)
	}
	if a.diag != nil {
		// diag(d) = (d 1ᵀ) ⊙ I, spread over the matrix batch.
		n := a.Size()
		batch := a.BatchShape()
		column := a.backend.Reshape(a.spread(a.diag), append(batch.Clone(), n, 1))
		rows := a.backend.MatMul(column, tensor.Ones(append(batch.Clone(), 1, n)))
		out = a.backend.Add(out, a.backend.Mul(rows, tensor.Eye(n, batch...)))
	}
	return out
}

// Sum returns the evaluated matrix summed over dim, which may be negative.
// Summing a matrix dimension gives row or column sums [batch..., n]; summing
// a batch dimension gives a symmetric matrix with one batch dimension fewer.
func (a *NonLazy) Sum(dim int) (*Tensor, error) {
	ndim := len(a.matrix.Shape())
	if dim < -ndim || dim >= ndim {
		return nil, fmt.Errorf("sum: %w: dimension %d out of range for %v", ErrShapeMismatch, dim, a.matrix.Shape())
	}
	return a.backend.SumDim(a.Evaluate(), dim, false), nil
}

// Row returns row i of every batch element, [batch..., n]. It costs one
// product with a unit vector; by symmetry row i equals column i.
func (a *NonLazy) Row(i int) (*Tensor, error) {
	n := a.Size()
	if i < 0 || i >= n {
		return nil, fmt.Errorf("row: %w: index %d out of range [0, %d)", ErrShapeMismatch, i, n)
	}
	unit := tensor.Zeros(Shape{n})
	unit.AsFloat64()[i] = 1
	return a.Matmul(unit)
}

// AddDiag returns a handle on A + diag(d). d is [n], shared across the
// batch, or [batch..., n] matching the matrix batch. Solves, estimates and
// roots of the result run on the implicit sum and differentiate into both A
// and d.
func (a *NonLazy) AddDiag(d *Tensor) (*NonLazy, error) {
	n := a.Size()
	batch := a.BatchShape()
	shape := d.Shape()
	dBatch := shape[:max(len(shape)-1, 0)]
	if len(shape) == 0 || shape[len(shape)-1] != n || (len(dBatch) > 0 && !dBatch.Equal(batch)) {
		return nil, fmt.Errorf("add_diag: %w: expected [%d] or %v, got %v",
			ErrShapeMismatch, n, append(batch.Clone(), n), shape)
	}

	shifted := *a
	switch {
	case a.diag == nil:
		shifted.diag = d
	case a.diag.Shape().Equal(shape):
		shifted.diag = a.backend.Add(a.diag, d)
	default:
		shifted.diag = a.backend.Add(a.spread(a.diag), a.spread(d))
	}
	return &shifted, nil
}

// MulConstant returns a handle on c·A. An added diagonal is scaled with it.
// c must be finite and non-zero.
func (a *NonLazy) MulConstant(c float64) (*NonLazy, error) {
	if c == 0 || math.IsNaN(c) || math.IsInf(c, 0) {
		return nil, fmt.Errorf("mul_constant: invalid constant %g", c)
	}
	scaled := *a
	scaled.scale = a.scale * c
	if a.diag != nil {
		scaled.diag = a.backend.MulScalar(a.diag, c)
	}
	return &scaled, nil
}

// spread repeats a diagonal [n] across the matrix batch, on the tape.
func (a *NonLazy) spread(d *Tensor) *Tensor {
	batch := a.BatchShape()
	if len(d.Shape()) > 1 || len(batch) == 0 {
		return d
	}
	n := a.Size()
	row := a.backend.Reshape(d, Shape{1, n})
	out := a.backend.MatMul(tensor.Ones(append(batch.Clone(), 1, 1)), row)
	return a.backend.Reshape(out, append(batch.Clone(), n))
}

// ZeroMeanSamples draws num samples with covariance A as R ε, where R is the
// root decomposition and ε is standard normal. The result is [batch..., n, num].
func (a *NonLazy) ZeroMeanSamples(num int) (*Tensor, error) {
	if num <= 0 {
		return nil, fmt.Errorf("zero_mean_samples: %w: need a positive sample count, got %d", ErrShapeMismatch, num)
	}
	r, err := a.RootDecomposition()
	if err != nil {
		return nil, fmt.Errorf("zero_mean_samples: %w", err)
	}
	_, m := r.Shape().MatrixDims()
	eps := tensor.Randn(append(a.BatchShape(), m, num), linalg.NewRand(a.opts.Rand))
	return a.backend.MatMul(r, eps), nil
}

// block turns rhs into a [batch..., n, t] block, reshaping vectors into a
// single column on the tape.
func (a *NonLazy) block(rhs *Tensor) (*Tensor, bool, error) {
	n := a.Size()
	shape := rhs.Shape()
	if len(shape) == 1 {
		if shape[0] != n {
			return nil, false, fmt.Errorf("%w: expected vector of length %d, got %v", ErrShapeMismatch, n, shape)
		}
		return a.backend.Reshape(rhs, Shape{n, 1}), true, nil
	}
	rows, _ := shape.MatrixDims()
	if len(shape) == 0 || rows != n {
		return nil, false, fmt.Errorf("%w: expected right-hand side with %d rows, got %v", ErrShapeMismatch, n, shape)
	}
	if !batchCompatible(a.BatchShape(), shape.BatchShape()) {
		return nil, false, fmt.Errorf("%w: matrix batch %v against right-hand side %v",
			ErrShapeMismatch, a.BatchShape(), shape)
	}
	return rhs, false, nil
}

// unblock drops the column dimension of results computed from a vector.
func (a *NonLazy) unblock(x *Tensor, vector bool) *Tensor {
	if !vector {
		return x
	}
	return a.backend.Reshape(x, x.Shape()[:len(x.Shape())-1].Clone())
}

// batchCompatible reports whether two batch shapes broadcast under the MatMul
// rule: equal, or one of them holds a single batch element.
func batchCompatible(a, b Shape) bool {
	return a.Equal(b) || a.NumElements() == 1 || b.NumElements() == 1
}
