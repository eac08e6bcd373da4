package ops

import (
	"fmt"

	"github.com/born-ml/linop/internal/linalg"
	"github.com/born-ml/linop/internal/tensor"
)

// Operand is the symmetric operator c·A + diag(d) a linear-algebra node works
// against. A is [batch..., n, n]. Scale zero means one. Diag is optional,
// with shape [n] or [batch..., n].
//
// Products go through linalg.Scaled and linalg.AddedDiag, so the sum is never
// materialized. Gradients flow to A and d; the scale is a constant.
type Operand struct {
	Matrix *tensor.RawTensor
	Scale  float64
	Diag   *tensor.RawTensor
}

// Scaling returns the effective scale c.
func (o Operand) Scaling() float64 {
	if o.Scale == 0 {
		return 1
	}
	return o.Scale
}

// Operator builds the implicit operator over backend.
func (o Operand) Operator(backend tensor.Backend) (linalg.Operator, error) {
	dense, err := linalg.NewDense(o.Matrix, backend)
	if err != nil {
		return nil, err
	}
	var op linalg.Operator = dense
	if c := o.Scaling(); c != 1 {
		op = linalg.NewScaled(op, c)
	}
	if o.Diag == nil {
		return op, nil
	}
	added, err := linalg.NewAddedDiag(op, o.Diag)
	if err != nil {
		return nil, err
	}
	return added, nil
}

// Inputs returns [A] or [A, d].
func (o Operand) Inputs() []*tensor.RawTensor {
	if o.Diag == nil {
		return []*tensor.RawTensor{o.Matrix}
	}
	return []*tensor.RawTensor{o.Matrix, o.Diag}
}

// Shape returns the shape of the combined operator, [batch..., n, n].
func (o Operand) Shape() tensor.Shape {
	shape := o.Matrix.Shape()
	if o.Diag == nil {
		return shape
	}
	ds := o.Diag.Shape()
	batch, _, err := tensor.BroadcastShapes(shape.BatchShape(), ds[:len(ds)-1])
	if err != nil {
		panic(fmt.Sprintf("operand: %v", err)) // validated by Operator
	}
	n, _ := shape.MatrixDims()
	return append(batch, n, n)
}

// grads splits the gradient of the combined operator M = c·A + diag(d) into
// [grad_A] or [grad_A, grad_d]: grad_A = c·grad_M and grad_d = diag(grad_M).
// gradM may carry extra broadcast batch dimensions.
func (o Operand) grads(gradM *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	gradA := gradM
	if c := o.Scaling(); c != 1 {
		gradA = backend.MulScalar(gradM, c)
	}
	out := []*tensor.RawTensor{reduceBroadcast(gradA, o.Matrix.Shape(), backend)}
	if o.Diag != nil {
		out = append(out, reduceBroadcast(diagonal(gradM), o.Diag.Shape(), backend))
	}
	return out
}

// diagonal extracts the diagonal of every trailing n×n block.
func diagonal(m *tensor.RawTensor) *tensor.RawTensor {
	shape := m.Shape()
	n, _ := shape.MatrixDims()
	out := tensor.Zeros(append(shape.BatchShape(), n))
	src, dst := m.AsFloat64(), out.AsFloat64()
	for b := 0; b < shape.BatchShape().NumElements(); b++ {
		for i := 0; i < n; i++ {
			dst[b*n+i] = src[(b*n+i)*n+i]
		}
	}
	return out
}
