package linalg

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/linop/internal/backend/cpu"
	"github.com/born-ml/linop/internal/envconfig"
	"github.com/born-ml/linop/internal/tensor"
)

// Test matrices shared across the package tests.
var (
	// eigenvalues 2, 3, 4; det 24
	simpleMatrix = []float64{
		3, -1, 0,
		-1, 3, 0,
		0, 0, 3,
	}

	diagDominant = []float64{
		10, -2, 1,
		-2, 10, 0,
		1, 0, 10,
	}

	rootMatrix = []float64{
		5.0212, 0.5504, -0.1810, 1.5414, 2.9611,
		0.5504, 2.8000, 1.9944, 0.6208, -0.8902,
		-0.1810, 1.9944, 3.0505, 1.0790, -1.1774,
		1.5414, 0.6208, 1.0790, 2.9430, 0.4170,
		2.9611, -0.8902, -1.1774, 0.4170, 3.3208,
	}

	rootMatrix2 = []float64{
		7.2466, -4.5575, -6.6612, -2.2324, 0.6995,
		-4.5575, 4.7240, 3.2760, -0.8072, 2.3705,
		-6.6612, 3.2760, 12.4762, -0.6675, 0.2109,
		-2.2324, -0.8072, -0.6675, 14.3313, -8.0960,
		0.6995, 2.3705, 0.2109, -8.0960, 11.5678,
	}
)

// testRand returns a fixed-seed source unless UNLOCK_SEED is set.
func testRand(t *testing.T) *rand.Rand {
	t.Helper()
	seed := uint64(0)
	if envconfig.UnlockSeed() {
		seed = rand.Uint64()
		t.Logf("seed %d", seed)
	}
	return Seeded(seed)
}

func newDense(t *testing.T, shape tensor.Shape, blocks ...[]float64) *Dense {
	t.Helper()
	var data []float64
	for _, b := range blocks {
		data = append(data, b...)
	}
	d, err := NewDense(tensor.MustFromSlice(data, shape), cpu.New())
	require.NoError(t, err)
	return d
}

func symOf(data []float64) *mat.SymDense {
	n := 0
	for n*n < len(data) {
		n++
	}
	return mat.NewSymDense(n, append([]float64(nil), data...))
}

func inverseOf(t *testing.T, data []float64) *mat.Dense {
	t.Helper()
	sym := symOf(data)
	var inv mat.Dense
	require.NoError(t, inv.Inverse(sym))
	return &inv
}

func logDetOf(t *testing.T, data []float64) float64 {
	t.Helper()
	var chol mat.Cholesky
	require.True(t, chol.Factorize(symOf(data)), "reference matrix is not positive definite")
	return chol.LogDet()
}

// matrixOf reads batch element b of a [batch..., rows, cols] block.
func matrixOf(x *tensor.RawTensor, b int) *mat.Dense {
	rows, cols := x.Shape().MatrixDims()
	data := x.AsFloat64()[b*rows*cols : (b+1)*rows*cols]
	if rows == 0 || cols == 0 {
		return &mat.Dense{}
	}
	return mat.NewDense(rows, cols, append([]float64(nil), data...))
}

// outerOf returns R Rᵀ for batch element b.
func outerOf(r *tensor.RawTensor, b int) *mat.Dense {
	rb := matrixOf(r, b)
	var out mat.Dense
	out.Mul(rb, rb.T())
	return &out
}

func requireMatrixNear(t *testing.T, want, got mat.Matrix, tol float64) {
	t.Helper()
	wr, wc := want.Dims()
	gr, gc := got.Dims()
	require.Equal(t, []int{wr, wc}, []int{gr, gc}, "dimension mismatch")
	require.Truef(t, mat.EqualApprox(want, got, tol), "matrices differ:\nwant %v\ngot  %v",
		mat.Formatted(want, mat.Squeeze()), mat.Formatted(got, mat.Squeeze()))
}

// relError returns ‖want − got‖_F / ‖want‖_F.
func relError(want, got mat.Matrix) float64 {
	var diff mat.Dense
	diff.Sub(want, got)
	return mat.Norm(&diff, 2) / mat.Norm(want, 2)
}
