package linalg

import (
	"fmt"
	"math"

	log "github.com/sirupsen/logrus"

	"github.com/born-ml/linop/internal/tensor"
)

// DefaultPivotTolerance is the relative residual-diagonal threshold at which
// pivoted Cholesky stops.
const DefaultPivotTolerance = 1e-10

// PivotedCholesky computes a greedy rank-k factor L ([batch..., n, k],
// k ≤ rank) with L Lᵀ ≈ A. Each step picks the largest remaining diagonal
// residual as pivot and costs one op.Matmul against unit vectors.
//
// When the residual diagonal of a batch element falls below tol times its
// largest initial diagonal entry, that element stops at the rank it reached.
// Shorter batch elements are zero-padded to the common k.
func PivotedCholesky(op Operator, rank int, tol float64) (*tensor.RawTensor, error) {
	l, _, err := pivotedCholesky(op, rank, tol)
	return l, err
}

func pivotedCholesky(op Operator, rank int, tol float64) (*tensor.RawTensor, []float64, error) {
	n := op.Size()
	batch := op.BatchShape()
	nb := batch.NumElements()
	if tol <= 0 {
		tol = DefaultPivotTolerance
	}
	rank = max(min(rank, n), 0)

	diag, err := operatorDiag(op)
	if err != nil {
		return nil, nil, fmt.Errorf("pivoted cholesky: %w", err)
	}
	d := diag.AsFloat64()

	scale := make([]float64, nb)
	for b := range scale {
		for _, v := range d[b*n : (b+1)*n] {
			scale[b] = math.Max(scale[b], v)
		}
	}

	factors := make([][][]float64, nb) // factors[b][k] is column k of L_b
	picked := make([][]bool, nb)
	done := make([]bool, nb)
	for b := range picked {
		picked[b] = make([]bool, n)
	}

	for k := 0; k < rank; k++ {
		pivots := make([]int, nb)
		units := make([][]float64, nb)
		for b := 0; b < nb; b++ {
			pivots[b] = -1
			if done[b] {
				continue
			}
			db := d[b*n : (b+1)*n]
			best := -1
			for i, v := range db {
				if !picked[b][i] && (best < 0 || v > db[best]) {
					best = i
				}
			}
			if best < 0 || db[best] <= tol*scale[b] {
				done[b] = true
				log.WithFields(log.Fields{"batch": b, "rank": k}).Debug("pivoted cholesky truncated")
				continue
			}
			pivots[b] = best
			units[b] = make([]float64, n)
			units[b][best] = 1
		}
		if allTrue(done) {
			break
		}

		cols, err := op.Matmul(fromColumns(units, blockShape(batch, n, 1)))
		if err != nil {
			return nil, nil, fmt.Errorf("pivoted cholesky: step %d: %w", k, err)
		}
		colData := columns(cols)

		for b := 0; b < nb; b++ {
			p := pivots[b]
			if p < 0 {
				continue
			}
			db := d[b*n : (b+1)*n]
			pivot := math.Sqrt(db[p])
			l := colData[b]
			for _, prev := range factors[b] {
				lp := prev[p]
				for i := range l {
					l[i] -= prev[i] * lp
				}
			}
			for i := range l {
				if picked[b][i] {
					l[i] = 0
					continue
				}
				l[i] /= pivot
			}
			l[p] = pivot
			for i := range db {
				db[i] -= l[i] * l[i]
			}
			db[p] = 0
			picked[b][p] = true
			factors[b] = append(factors[b], l)
		}
	}

	k := 0
	for _, f := range factors {
		k = max(k, len(f))
	}
	out := tensor.Zeros(blockShape(batch, n, k))
	data := out.AsFloat64()
	for b, f := range factors {
		for j, col := range f {
			for i, v := range col {
				data[(b*n+i)*k+j] = v
			}
		}
	}
	return out, scale, nil
}

// operatorDiag returns the diagonal [batch..., n] through the Diagonal
// capability, or by multiplying with the identity when op lacks it.
func operatorDiag(op Operator) (*tensor.RawTensor, error) {
	if d, ok := op.(Diagonal); ok {
		if diag := d.Diag(); diag != nil {
			return diag, nil
		}
	}

	n := op.Size()
	batch := op.BatchShape()
	full, err := op.Matmul(tensor.Eye(n, batch...))
	if err != nil {
		return nil, err
	}
	out := tensor.Zeros(append(batch.Clone(), n))
	src, dst := full.AsFloat64(), out.AsFloat64()
	for b := 0; b < batch.NumElements(); b++ {
		for i := 0; i < n; i++ {
			dst[b*n+i] = src[(b*n+i)*n+i]
		}
	}
	return out, nil
}

func allTrue(xs []bool) bool {
	for _, x := range xs {
		if !x {
			return false
		}
	}
	return true
}
