package linalg

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/linop/internal/backend/cpu"
	"github.com/born-ml/linop/internal/tensor"
)

func TestRootDecomposition(t *testing.T) {
	op := newDense(t, tensor.Shape{5, 5}, rootMatrix)

	r, err := RootDecomposition(op, RootOptions{Rand: testRand(t)})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 5}, r.Shape())
	assert.Less(t, relError(symOf(rootMatrix), outerOf(r, 0)), 1e-6)
}

func TestRootInvDecomposition(t *testing.T) {
	op := newDense(t, tensor.Shape{5, 5}, rootMatrix)

	r, err := RootInvDecomposition(op, RootOptions{Rand: testRand(t)})
	require.NoError(t, err)
	inv := inverseOf(t, rootMatrix)
	assert.Less(t, relError(inv, outerOf(r, 0)), 1e-6)
}

func TestRootDecomposition_Batched(t *testing.T) {
	op := newDense(t, tensor.Shape{2, 5, 5}, rootMatrix, rootMatrix2)

	r, err := RootDecomposition(op, RootOptions{Rand: testRand(t)})
	require.NoError(t, err)
	inv, err := RootInvDecomposition(op, RootOptions{Rand: testRand(t)})
	require.NoError(t, err)

	for b, data := range [][]float64{rootMatrix, rootMatrix2} {
		assert.Less(t, relError(symOf(data), outerOf(r, b)), 1e-6, "root, batch element %d", b)
		assert.Less(t, relError(inverseOf(t, data), outerOf(inv, b)), 1e-6, "inverse root, batch element %d", b)
	}
}

func TestRootDecomposition_SubspaceCap(t *testing.T) {
	op := newDense(t, tensor.Shape{5, 5}, rootMatrix)

	r, err := RootDecomposition(op, RootOptions{MaxIterations: 3, MaxCholeskyNumel: -1, Rand: testRand(t)})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 3}, r.Shape())
}

func TestRootInvDecomposition_NotPositiveDefinite(t *testing.T) {
	indefinite := []float64{
		1, 0, 0,
		0, -2, 0,
		0, 0, 3,
	}
	op := newDense(t, tensor.Shape{3, 3}, indefinite)

	for name, limit := range map[string]int{"cholesky": 9, "lanczos": -1} {
		t.Run(name, func(t *testing.T) {
			opts := RootOptions{MaxCholeskyNumel: limit, Rand: testRand(t)}
			_, err := RootInvDecomposition(op, opts)
			assert.ErrorIs(t, err, ErrNotPositiveDefinite)
			_, err = RootDecomposition(op, opts)
			assert.ErrorIs(t, err, ErrNotPositiveDefinite)
		})
	}
}

func TestRootDecomposition_CholeskyThreshold(t *testing.T) {
	op := newDense(t, tensor.Shape{2, 5, 5}, rootMatrix, rootMatrix2)

	// 25 entries fit the threshold: the roots are exact triangular factors.
	r, err := RootDecomposition(op, RootOptions{MaxCholeskyNumel: 25, Rand: testRand(t)})
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2, 5, 5}, r.Shape())
	inv, err := RootInvDecomposition(op, RootOptions{MaxCholeskyNumel: 25, Rand: testRand(t)})
	require.NoError(t, err)

	for b, data := range [][]float64{rootMatrix, rootMatrix2} {
		assert.Less(t, relError(symOf(data), outerOf(r, b)), 1e-12, "root, batch element %d", b)
		assert.Less(t, relError(inverseOf(t, data), outerOf(inv, b)), 1e-10, "inverse root, batch element %d", b)
		for i := 0; i < 5; i++ {
			for j := i + 1; j < 5; j++ {
				assert.Zero(t, r.At(b, i, j), "root is lower triangular at (%d, %d)", i, j)
				assert.Zero(t, inv.At(b, j, i), "inverse root is upper triangular at (%d, %d)", j, i)
			}
		}
	}

	// One entry short of the threshold runs Lanczos.
	r, err = RootDecomposition(op, RootOptions{MaxCholeskyNumel: 24, Rand: testRand(t)})
	require.NoError(t, err)
	for b, data := range [][]float64{rootMatrix, rootMatrix2} {
		assert.Less(t, relError(symOf(data), outerOf(r, b)), 1e-6, "lanczos root, batch element %d", b)
	}
}

func TestRootDecomposition_CholeskyThresholdFromEnvironment(t *testing.T) {
	t.Setenv("LINOP_MAX_CHOLESKY_NUMEL", "0")
	op := newDense(t, tensor.Shape{5, 5}, rootMatrix)

	r, err := RootDecomposition(op, RootOptions{MaxIterations: 3, Rand: testRand(t)})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 3}, r.Shape())

	t.Setenv("LINOP_MAX_CHOLESKY_NUMEL", "25")
	r, err = RootDecomposition(op, RootOptions{MaxIterations: 3, Rand: testRand(t)})
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{5, 5}, r.Shape())
}

func TestRootDecomposition_SemidefiniteFallsBackToLanczos(t *testing.T) {
	lowRank := []float64{
		1, 1, 0,
		1, 1, 0,
		0, 0, 0,
	}
	op := newDense(t, tensor.Shape{3, 3}, lowRank)

	r, err := RootDecomposition(op, RootOptions{MaxCholeskyNumel: 9, Rand: testRand(t)})
	require.NoError(t, err)
	assert.Less(t, relError(symOf(lowRank), outerOf(r, 0)), 1e-8)

	_, err = RootInvDecomposition(op, RootOptions{MaxCholeskyNumel: 9, Rand: testRand(t)})
	assert.ErrorIs(t, err, ErrNotPositiveDefinite)
}

func TestRootDecompositionPC(t *testing.T) {
	for _, rank := range []int{2, 5} {
		op := newDense(t, tensor.Shape{2, 5, 5}, rootMatrix, rootMatrix2)

		r, err := RootDecompositionPC(op, RootOptions{Rank: rank, Rand: testRand(t)})
		require.NoError(t, err)
		for b, data := range [][]float64{rootMatrix, rootMatrix2} {
			assert.Less(t, relError(symOf(data), outerOf(r, b)), 1e-6, "rank %d, batch element %d", rank, b)
		}
	}
}

func TestRootDecompositionPC_RankFromEnvironment(t *testing.T) {
	t.Setenv("LINOP_MAX_PRECONDITIONER_SIZE", "1")
	op := newDense(t, tensor.Shape{5, 5}, rootMatrix)

	r, err := RootDecompositionPC(op, RootOptions{Rand: testRand(t)})
	require.NoError(t, err)
	assert.Less(t, relError(symOf(rootMatrix), outerOf(r, 0)), 1e-6)

	// The leading column is the rank-one pivoted Cholesky factor.
	l, err := PivotedCholesky(op, 1, 0)
	require.NoError(t, err)
	_, cols := r.Shape().MatrixDims()
	require.Greater(t, cols, 1)
	for i := 0; i < 5; i++ {
		assert.InDelta(t, l.At(i, 0), r.At(i, 0), 1e-12, "row %d", i)
	}
}

func TestRootDecompositionPC_DeflationBeatsPlainLanczos(t *testing.T) {
	// Three dominant eigenvalues over a flat unit spectrum of dimension 27.
	const n = 30
	diag := make([]float64, n)
	for i := range diag {
		diag[i] = 1
	}
	diag[0], diag[1], diag[2] = 100, 80, 60
	a := mat.NewDiagDense(n, diag)
	data := make([]float64, n*n)
	for i, v := range diag {
		data[i*n+i] = v
	}
	op := newDense(t, tensor.Shape{n, n}, data)

	plain, err := RootDecomposition(op, RootOptions{MaxIterations: 3, MaxCholeskyNumel: -1, Rand: testRand(t)})
	require.NoError(t, err)
	pc, err := RootDecompositionPC(op, RootOptions{MaxIterations: 3, Rank: 3, Rand: testRand(t)})
	require.NoError(t, err)

	frob := func(r *tensor.RawTensor) float64 {
		var diff mat.Dense
		diff.Sub(a, outerOf(r, 0))
		return mat.Norm(&diff, 2)
	}

	// Any root with three columns misses at least 27 unit eigenvalues; the
	// deflated residual is a projector, whose Lanczos root recovers one of them.
	assert.GreaterOrEqual(t, frob(plain), math.Sqrt(27)-1e-9)
	assert.InDelta(t, math.Sqrt(26), frob(pc), 1e-6)
	assert.Less(t, frob(pc), frob(plain))
}

func TestPivotedCholesky(t *testing.T) {
	op := newDense(t, tensor.Shape{5, 5}, rootMatrix)

	l, err := PivotedCholesky(op, 5, 0)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{5, 5}, l.Shape())
	assert.Less(t, relError(symOf(rootMatrix), outerOf(l, 0)), 1e-10)

	// The first pivot is the largest diagonal entry.
	assert.InDelta(t, 5.0212, l.At(0, 0)*l.At(0, 0), 1e-12)
}

func TestPivotedCholesky_TruncatesOnLowRank(t *testing.T) {
	// B Bᵀ with B 4×2 has rank two.
	b := mat.NewDense(4, 2, []float64{
		1, 2,
		0, 1,
		3, -1,
		1, 1,
	})
	var a mat.Dense
	a.Mul(b, b.T())

	op, err := NewDense(tensor.MustFromSlice(a.RawMatrix().Data, tensor.Shape{4, 4}), cpu.New())
	require.NoError(t, err)

	l, err := PivotedCholesky(op, 4, 0)
	require.NoError(t, err)
	assert.Equal(t, tensor.Shape{4, 2}, l.Shape())
	assert.Less(t, relError(&a, outerOf(l, 0)), 1e-10)
}

func TestPivotedCholesky_BatchZeroPadding(t *testing.T) {
	lowRank := []float64{
		1, 1, 0,
		1, 1, 0,
		0, 0, 0,
	}
	op := newDense(t, tensor.Shape{2, 3, 3}, lowRank, diagDominant)

	l, err := PivotedCholesky(op, 3, 0)
	require.NoError(t, err)
	require.Equal(t, tensor.Shape{2, 3, 3}, l.Shape())

	for j := 1; j < 3; j++ {
		for i := 0; i < 3; i++ {
			assert.Zero(t, l.At(0, i, j), "padding at (%d, %d)", i, j)
		}
	}
	assert.Less(t, relError(symOf(lowRank), outerOf(l, 0)), 1e-12)
	assert.Less(t, relError(symOf(diagDominant), outerOf(l, 1)), 1e-12)
}

func TestPivotedCholesky_WithoutDiagonalCapability(t *testing.T) {
	op := opOnly{newDense(t, tensor.Shape{3, 3}, diagDominant)}

	l, err := PivotedCholesky(op, 3, 0)
	require.NoError(t, err)
	assert.Less(t, relError(symOf(diagDominant), outerOf(l, 0)), 1e-12)
}
