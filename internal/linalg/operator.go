package linalg

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/linop/internal/tensor"
)

// Operator is a square symmetric matrix known only through its product with
// a block of columns. Every algorithm in this package is written against this
// interface; implementations must keep Matmul read-only so concurrent calls
// are safe.
type Operator interface {
	// Matmul returns A @ rhs for rhs of shape [batch..., n, t]. A batch of one
	// on either side broadcasts.
	Matmul(rhs *tensor.RawTensor) (*tensor.RawTensor, error)

	// Size returns n, the trailing dimension.
	Size() int

	// BatchShape returns the leading batch dimensions ({} when unbatched).
	BatchShape() tensor.Shape
}

// Diagonal is implemented by operators that can report their diagonal
// without a product per entry. The result has shape [batch..., n].
type Diagonal interface {
	Diag() *tensor.RawTensor
}

// Dense wraps an explicit [batch..., n, n] matrix.
type Dense struct {
	matrix  *tensor.RawTensor
	backend tensor.Backend
}

// NewDense validates matrix and wraps it. Products run on backend.
func NewDense(matrix *tensor.RawTensor, backend tensor.Backend) (*Dense, error) {
	shape := matrix.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("%w: matrix must be [..., n, n], got %v", ErrShapeMismatch, shape)
	}
	if rows, cols := shape.MatrixDims(); rows != cols {
		return nil, fmt.Errorf("%w: got %v", ErrNotSquare, shape)
	}
	return &Dense{matrix: matrix, backend: backend}, nil
}

// Matmul returns A @ rhs.
func (d *Dense) Matmul(rhs *tensor.RawTensor) (*tensor.RawTensor, error) {
	if _, _, err := checkRHS(d, rhs); err != nil {
		return nil, err
	}
	return d.backend.MatMul(d.matrix, rhs), nil
}

// Size returns n.
func (d *Dense) Size() int {
	n, _ := d.matrix.Shape().MatrixDims()
	return n
}

// BatchShape returns the leading batch dimensions.
func (d *Dense) BatchShape() tensor.Shape {
	return d.matrix.Shape().BatchShape()
}

// Diag returns the diagonal of every batch element.
func (d *Dense) Diag() *tensor.RawTensor {
	n := d.Size()
	batch := d.BatchShape()
	out := tensor.Zeros(append(batch.Clone(), n))
	src := d.matrix.AsFloat64()
	dst := out.AsFloat64()
	for b := 0; b < batch.NumElements(); b++ {
		for i := 0; i < n; i++ {
			dst[b*n+i] = src[b*n*n+i*n+i]
		}
	}
	return out
}

// AddedDiag is the implicit operator A + diag(d).
type AddedDiag struct {
	base Operator
	diag *tensor.RawTensor
}

// NewAddedDiag returns base + diag(d). d has shape [n] or [batch..., n]
// matching the base batch.
func NewAddedDiag(base Operator, d *tensor.RawTensor) (*AddedDiag, error) {
	shape := d.Shape()
	n := base.Size()
	if len(shape) == 0 || shape[len(shape)-1] != n {
		return nil, fmt.Errorf("%w: expected diagonal [..., %d], got %v", ErrShapeMismatch, n, shape)
	}
	if _, err := broadcastBatch(base.BatchShape(), shape[:len(shape)-1]); err != nil {
		return nil, err
	}
	return &AddedDiag{base: base, diag: d}, nil
}

// Matmul returns (A + diag(d)) @ rhs.
func (a *AddedDiag) Matmul(rhs *tensor.RawTensor) (*tensor.RawTensor, error) {
	batch, _, err := checkRHS(a, rhs)
	if err != nil {
		return nil, err
	}
	rhs = expandBatch(rhs, batch)
	out, err := a.base.Matmul(rhs)
	if err != nil {
		return nil, err
	}

	n, t := out.Shape().MatrixDims()
	nb := out.Shape().BatchShape().NumElements()
	nd := a.diag.NumElements() / max(n, 1)
	nr := rhs.Shape().BatchShape().NumElements()

	d := a.diag.AsFloat64()
	x := rhs.AsFloat64()
	y := out.AsFloat64()
	for b := 0; b < nb; b++ {
		dOff := batchIndex(b, nd) * n
		xOff := batchIndex(b, nr) * n * t
		yOff := b * n * t
		for i := 0; i < n; i++ {
			for j := 0; j < t; j++ {
				y[yOff+i*t+j] += d[dOff+i] * x[xOff+i*t+j]
			}
		}
	}
	return out, nil
}

// Size returns n.
func (a *AddedDiag) Size() int { return a.base.Size() }

// BatchShape returns the batch shape of the base operator and the diagonal combined.
func (a *AddedDiag) BatchShape() tensor.Shape {
	shape := a.diag.Shape()
	batch, err := broadcastBatch(a.base.BatchShape(), shape[:len(shape)-1])
	if err != nil {
		panic(err) // validated in NewAddedDiag
	}
	return batch
}

// Diag returns diag(A) + d, or nil when the base operator does not expose its diagonal.
func (a *AddedDiag) Diag() *tensor.RawTensor {
	base, ok := a.base.(Diagonal)
	if !ok {
		return nil
	}
	bd := base.Diag()
	n := a.Size()
	batch := a.BatchShape()
	out := tensor.Zeros(append(batch.Clone(), n))
	nBase := bd.NumElements() / max(n, 1)
	nDiag := a.diag.NumElements() / max(n, 1)
	src, d, dst := bd.AsFloat64(), a.diag.AsFloat64(), out.AsFloat64()
	for b := 0; b < batch.NumElements(); b++ {
		for i := 0; i < n; i++ {
			dst[b*n+i] = src[batchIndex(b, nBase)*n+i] + d[batchIndex(b, nDiag)*n+i]
		}
	}
	return out
}

// Scaled is the implicit operator c·A.
type Scaled struct {
	base  Operator
	scale float64
}

// NewScaled returns c·base.
func NewScaled(base Operator, c float64) *Scaled {
	return &Scaled{base: base, scale: c}
}

// Matmul returns c·A @ rhs.
func (s *Scaled) Matmul(rhs *tensor.RawTensor) (*tensor.RawTensor, error) {
	out, err := s.base.Matmul(rhs)
	if err != nil {
		return nil, err
	}
	data := out.AsFloat64()
	for i := range data {
		data[i] *= s.scale
	}
	return out, nil
}

// Size returns n.
func (s *Scaled) Size() int { return s.base.Size() }

// BatchShape returns the base batch shape.
func (s *Scaled) BatchShape() tensor.Shape { return s.base.BatchShape() }

// Diag returns c·diag(A), or nil when the base operator does not expose its diagonal.
func (s *Scaled) Diag() *tensor.RawTensor {
	base, ok := s.base.(Diagonal)
	if !ok {
		return nil
	}
	out := base.Diag().Clone()
	data := out.AsFloat64()
	for i := range data {
		data[i] *= s.scale
	}
	return out
}

// Residual is the deflated operator A − L Lᵀ for a low-rank factor L of
// shape [batch..., n, k].
type Residual struct {
	base   Operator
	factor *tensor.RawTensor
}

// NewResidual returns base − factor factorᵀ.
func NewResidual(base Operator, factor *tensor.RawTensor) (*Residual, error) {
	shape := factor.Shape()
	if len(shape) < 2 {
		return nil, fmt.Errorf("%w: factor must be [..., %d, k], got %v", ErrShapeMismatch, base.Size(), shape)
	}
	if rows, _ := shape.MatrixDims(); rows != base.Size() {
		return nil, fmt.Errorf("%w: expected factor with %d rows, got %v", ErrShapeMismatch, base.Size(), shape)
	}
	if _, err := broadcastBatch(base.BatchShape(), shape.BatchShape()); err != nil {
		return nil, err
	}
	return &Residual{base: base, factor: factor}, nil
}

// Matmul returns (A − L Lᵀ) @ rhs.
func (r *Residual) Matmul(rhs *tensor.RawTensor) (*tensor.RawTensor, error) {
	batch, _, err := checkRHS(r, rhs)
	if err != nil {
		return nil, err
	}
	rhs = expandBatch(rhs, batch)
	out, err := r.base.Matmul(rhs)
	if err != nil {
		return nil, err
	}

	n, k := r.factor.Shape().MatrixDims()
	_, t := out.Shape().MatrixDims()
	if k == 0 || t == 0 {
		return out, nil
	}
	nb := out.Shape().BatchShape().NumElements()
	nl := r.factor.Shape().BatchShape().NumElements()
	nr := rhs.Shape().BatchShape().NumElements()

	l, x, y := r.factor.AsFloat64(), rhs.AsFloat64(), out.AsFloat64()
	tmp := make([]float64, k*t)
	for b := 0; b < nb; b++ {
		lb := blas64.General{Rows: n, Cols: k, Stride: k, Data: l[batchIndex(b, nl)*n*k:]}
		xb := blas64.General{Rows: n, Cols: t, Stride: t, Data: x[batchIndex(b, nr)*n*t:]}
		yb := blas64.General{Rows: n, Cols: t, Stride: t, Data: y[b*n*t:]}
		lx := blas64.General{Rows: k, Cols: t, Stride: t, Data: tmp}

		// tmp = Lᵀ x, y -= L tmp
		blas64.Gemm(blas.Trans, blas.NoTrans, 1, lb, xb, 0, lx)
		blas64.Gemm(blas.NoTrans, blas.NoTrans, -1, lb, lx, 1, yb)
	}
	return out, nil
}

// Size returns n.
func (r *Residual) Size() int { return r.base.Size() }

// BatchShape returns the base batch shape.
func (r *Residual) BatchShape() tensor.Shape {
	batch, err := broadcastBatch(r.base.BatchShape(), r.factor.Shape().BatchShape())
	if err != nil {
		panic(err) // validated in NewResidual
	}
	return batch
}

// Diag returns diag(A) − rowsum(L ⊙ L), or nil when the base operator does not
// expose its diagonal.
func (r *Residual) Diag() *tensor.RawTensor {
	base, ok := r.base.(Diagonal)
	if !ok {
		return nil
	}
	bd := base.Diag()
	n, k := r.factor.Shape().MatrixDims()
	batch := r.BatchShape()
	nBase := bd.NumElements() / max(n, 1)
	nl := r.factor.Shape().BatchShape().NumElements()

	out := tensor.Zeros(append(batch.Clone(), n))
	src, l, dst := bd.AsFloat64(), r.factor.AsFloat64(), out.AsFloat64()
	for b := 0; b < batch.NumElements(); b++ {
		lOff := batchIndex(b, nl) * n * k
		for i := 0; i < n; i++ {
			v := src[batchIndex(b, nBase)*n+i]
			for j := 0; j < k; j++ {
				v -= l[lOff+i*k+j] * l[lOff+i*k+j]
			}
			dst[b*n+i] = v
		}
	}
	return out
}

// CheckSymmetric reports ErrNotSymmetric when any batch element of matrix
// differs from its transpose by more than tol·max|a|.
func CheckSymmetric(matrix *tensor.RawTensor, tol float64) error {
	n, cols := matrix.Shape().MatrixDims()
	if n != cols {
		return fmt.Errorf("%w: got %v", ErrNotSquare, matrix.Shape())
	}
	data := matrix.AsFloat64()
	for b := 0; b < matrix.Shape().BatchShape().NumElements(); b++ {
		block := data[b*n*n : (b+1)*n*n]
		scale := 0.0
		for _, v := range block {
			scale = math.Max(scale, math.Abs(v))
		}
		for i := 0; i < n; i++ {
			for j := i + 1; j < n; j++ {
				if diff := math.Abs(block[i*n+j] - block[j*n+i]); diff > tol*scale {
					return fmt.Errorf("%w: batch element %d differs at (%d, %d) by %g", ErrNotSymmetric, b, i, j, diff)
				}
			}
		}
	}
	return nil
}
