package linalg

import (
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/born-ml/linop/internal/envconfig"
	"github.com/born-ml/linop/internal/parallel"
	"github.com/born-ml/linop/internal/tensor"
)

// DefaultLanczosTolerance is the relative breakdown threshold β_k ≤ tol·‖A v_k‖
// below which a Krylov subspace is treated as invariant.
const DefaultLanczosTolerance = 1e-10

// LanczosOptions configures a Lanczos run.
type LanczosOptions struct {
	// MaxIterations caps the subspace size m. Defaults to
	// LINOP_MAX_LANCZOS_ITERATIONS; m never exceeds the matrix size.
	MaxIterations int

	// Tolerance is the relative breakdown threshold. Defaults to DefaultLanczosTolerance.
	Tolerance float64
}

func (o LanczosOptions) resolve(n int) (maxIter int, tol float64) {
	maxIter = o.MaxIterations
	if maxIter <= 0 {
		maxIter = int(envconfig.MaxLanczosIterations())
	}
	tol = o.Tolerance
	if tol <= 0 {
		tol = DefaultLanczosTolerance
	}
	return min(maxIter, n), tol
}

// Tridiag is the m×m symmetric tridiagonal T = Qᵀ A Q produced by one
// Lanczos run, together with the orthonormal basis Q.
type Tridiag struct {
	Alpha []float64   // diagonal, length m
	Beta  []float64   // off-diagonal, length m-1
	Basis [][]float64 // m Lanczos vectors of length n
}

// Size returns m.
func (t *Tridiag) Size() int {
	return len(t.Alpha)
}

// Dense returns T as a symmetric matrix.
func (t *Tridiag) Dense() *mat.SymDense {
	m := t.Size()
	if m == 0 {
		return &mat.SymDense{}
	}
	sym := mat.NewSymDense(m, nil)
	for i, a := range t.Alpha {
		sym.SetSym(i, i, a)
	}
	for i, b := range t.Beta {
		sym.SetSym(i, i+1, b)
	}
	return sym
}

// Eigen returns the Ritz values of T in ascending order and the matching
// eigenvectors as the columns of an m×m matrix.
func (t *Tridiag) Eigen() ([]float64, *mat.Dense, error) {
	if t.Size() == 0 {
		return nil, &mat.Dense{}, nil
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(t.Dense(), true); !ok {
		return nil, nil, errors.New("lanczos: tridiagonal eigendecomposition failed")
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)
	return eig.Values(nil), &vecs, nil
}

// Q returns the basis as an n×m matrix.
func (t *Tridiag) Q(n int) *mat.Dense {
	if t.Size() == 0 {
		return &mat.Dense{}
	}
	q := mat.NewDense(n, t.Size(), nil)
	for k, v := range t.Basis {
		q.SetCol(k, v)
	}
	return q
}

// LanczosResult holds one Tridiag per batch element and probe column.
type LanczosResult struct {
	Batch    tensor.Shape
	Columns  int
	Tridiags []*Tridiag // indexed b*Columns + j
}

// At returns the decomposition for batch element b and probe column j.
func (r *LanczosResult) At(b, j int) *Tridiag {
	return r.Tridiags[b*r.Columns+j]
}

// lanczosColumn is the running state of one probe column.
type lanczosColumn struct {
	tri      *Tridiag
	v, vPrev []float64
	done     bool
}

// Lanczos tridiagonalizes op on the Krylov subspace of every column of init
// ([batch..., n, p]). Columns are normalized first; a zero column yields an
// empty decomposition.
//
// All running columns share one op.Matmul per step. Each new vector is
// orthogonalized against the whole basis twice, and a column stops early
// when β_k ≤ tol·‖A v_k‖ instead of dividing by a vanishing norm.
func Lanczos(op Operator, init *tensor.RawTensor, opts LanczosOptions) (*LanczosResult, error) {
	batch, p, err := checkRHS(op, init)
	if err != nil {
		return nil, fmt.Errorf("lanczos: %w", err)
	}
	n := op.Size()
	shape := blockShape(batch, n, p)
	maxIter, tol := opts.resolve(n)

	state := make([]*lanczosColumn, 0, batch.NumElements()*p)
	for _, v := range columns(expandBatch(init, batch)) {
		col := &lanczosColumn{tri: &Tridiag{}}
		if norm := floats.Norm(v, 2); norm > 0 && maxIter > 0 {
			floats.Scale(1/norm, v)
			col.v = v
			col.tri.Basis = append(col.tri.Basis, v)
		} else {
			col.done = true
		}
		state = append(state, col)
	}

	cfg := parallel.DefaultConfig()
	for step := 0; step < maxIter; step++ {
		vecs := make([][]float64, len(state))
		active := 0
		for c, col := range state {
			if !col.done {
				vecs[c] = col.v
				active++
			}
		}
		if active == 0 {
			break
		}

		av, err := op.Matmul(fromColumns(vecs, shape))
		if err != nil {
			return nil, fmt.Errorf("lanczos: step %d: %w", step, err)
		}
		avCols := columns(av)

		err = parallel.For(len(state), func(c int) error {
			if !state[c].done {
				state[c].advance(avCols[c], maxIter, tol)
			}
			return nil
		}, cfg)
		if err != nil {
			return nil, err
		}
	}

	result := &LanczosResult{Batch: batch, Columns: p, Tridiags: make([]*Tridiag, len(state))}
	for c, col := range state {
		result.Tridiags[c] = col.tri
		if m := col.tri.Size(); m < maxIter && m > 0 {
			log.WithFields(log.Fields{
				"batch":  c / max(p, 1),
				"column": c % max(p, 1),
				"size":   m,
			}).Debug("lanczos found an invariant subspace")
		}
	}
	return result, nil
}

// advance consumes w = A v_k and either extends the basis with v_{k+1} or
// marks the column done.
func (col *lanczosColumn) advance(w []float64, maxIter int, tol float64) {
	tri := col.tri
	normAv := floats.Norm(w, 2)

	alpha := floats.Dot(w, col.v)
	tri.Alpha = append(tri.Alpha, alpha)
	floats.AddScaled(w, -alpha, col.v)
	if k := len(tri.Beta); k > 0 {
		floats.AddScaled(w, -tri.Beta[k-1], col.vPrev)
	}

	// Full reorthogonalization, two Gram-Schmidt passes.
	for range 2 {
		for _, q := range tri.Basis {
			floats.AddScaled(w, -floats.Dot(w, q), q)
		}
	}

	if len(tri.Basis) == maxIter {
		col.done = true
		return
	}
	beta := floats.Norm(w, 2)
	if beta <= tol*normAv {
		col.done = true
		return
	}

	floats.Scale(1/beta, w)
	tri.Beta = append(tri.Beta, beta)
	tri.Basis = append(tri.Basis, w)
	col.vPrev, col.v = col.v, w
}
