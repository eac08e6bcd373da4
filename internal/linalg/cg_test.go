package linalg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/linop/internal/tensor"
)

func TestCG_Exact(t *testing.T) {
	op := newDense(t, tensor.Shape{3, 3}, simpleMatrix)
	rhs := tensor.Randn(tensor.Shape{3, 2}, testRand(t))

	x, res, err := CG(op, rhs, CGOptions{})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	assert.LessOrEqual(t, res.Iterations, 3)

	var want mat.Dense
	want.Mul(inverseOf(t, simpleMatrix), matrixOf(rhs, 0))
	requireMatrixNear(t, &want, matrixOf(x, 0), 1e-8)

	// A @ x reproduces the right-hand side.
	ax, err := op.Matmul(x)
	require.NoError(t, err)
	requireMatrixNear(t, matrixOf(rhs, 0), matrixOf(ax, 0), 1e-8)
}

func TestCG_BatchMatchesPerElement(t *testing.T) {
	batched := newDense(t, tensor.Shape{2, 5, 5}, rootMatrix, rootMatrix2)
	rhs := tensor.Randn(tensor.Shape{2, 5, 3}, testRand(t))

	x, _, err := CG(batched, rhs, CGOptions{MaxIterations: 50})
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2, 5, 3}, x.Shape())

	for b, data := range [][]float64{rootMatrix, rootMatrix2} {
		single := newDense(t, tensor.Shape{5, 5}, data)
		rb := tensor.MustFromSlice(matrixOf(rhs, b).RawMatrix().Data, tensor.Shape{5, 3})
		xb, _, err := CG(single, rb, CGOptions{MaxIterations: 50})
		require.NoError(t, err)
		requireMatrixNear(t, matrixOf(xb, 0), matrixOf(x, b), 1e-8)

		var want mat.Dense
		want.Mul(inverseOf(t, data), matrixOf(rhs, b))
		requireMatrixNear(t, &want, matrixOf(x, b), 1e-6)
	}
}

func TestCG_BroadcastRHS(t *testing.T) {
	batched := newDense(t, tensor.Shape{2, 3, 3}, simpleMatrix, diagDominant)
	rhs := tensor.MustFromSlice([]float64{1, 2, 3}, tensor.Shape{3, 1})

	x, _, err := CG(batched, rhs, CGOptions{})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{2, 3, 1}, x.Shape())

	var want mat.Dense
	want.Mul(inverseOf(t, diagDominant), matrixOf(rhs, 0))
	requireMatrixNear(t, &want, matrixOf(x, 1), 1e-8)
}

func TestCG_ZeroColumn(t *testing.T) {
	op := newDense(t, tensor.Shape{3, 3}, simpleMatrix)
	rhs := tensor.MustFromSlice([]float64{0, 1, 0, 2, 0, 3}, tensor.Shape{3, 2})

	x, res, err := CG(op, rhs, CGOptions{})
	require.NoError(t, err)
	assert.True(t, res.Converged)
	for i := 0; i < 3; i++ {
		assert.Zero(t, x.At(i, 0))
	}
}

func TestCG_NonConvergenceIsNotFatal(t *testing.T) {
	op := newDense(t, tensor.Shape{5, 5}, rootMatrix2)
	rhs := tensor.Randn(tensor.Shape{5, 1}, testRand(t))

	x, res, err := CG(op, rhs, CGOptions{MaxIterations: 1})
	require.NoError(t, err)
	assert.False(t, res.Converged)
	assert.Equal(t, 1, res.Iterations)
	assert.Greater(t, res.MaxRelResidual, 1e-10)
	assert.Equal(t, tensor.Shape{5, 1}, x.Shape())
}

func TestCG_JacobiPreconditioner(t *testing.T) {
	base := newDense(t, tensor.Shape{5, 5}, rootMatrix2)
	op, err := NewAddedDiag(base, tensor.Full(tensor.Shape{5}, 0.5))
	require.NoError(t, err)
	pre, err := JacobiPreconditioner(op)
	require.NoError(t, err)

	rhs := tensor.Randn(tensor.Shape{5, 2}, testRand(t))
	x, res, err := CG(op, rhs, CGOptions{Preconditioner: pre, MaxIterations: 50})
	require.NoError(t, err)
	assert.True(t, res.Converged)

	shifted := append([]float64(nil), rootMatrix2...)
	for i := 0; i < 5; i++ {
		shifted[i*5+i] += 0.5
	}
	var want mat.Dense
	want.Mul(inverseOf(t, shifted), matrixOf(rhs, 0))
	requireMatrixNear(t, &want, matrixOf(x, 0), 1e-6)
}

func TestCG_ShapeMismatch(t *testing.T) {
	op := newDense(t, tensor.Shape{3, 3}, simpleMatrix)
	_, _, err := CG(op, tensor.Zeros(tensor.Shape{2, 1}), CGOptions{})
	require.ErrorIs(t, err, ErrShapeMismatch)
	assert.Contains(t, err.Error(), "[2 1]")
}

func TestJacobiPreconditioner_RequiresDiagonal(t *testing.T) {
	op := NewScaled(opOnly{newDense(t, tensor.Shape{3, 3}, simpleMatrix)}, 2)
	_, err := JacobiPreconditioner(op)
	assert.Error(t, err)
}

// opOnly hides every optional capability of the wrapped operator.
type opOnly struct{ Operator }
