package linalg

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/born-ml/linop/internal/envconfig"
	"github.com/born-ml/linop/internal/parallel"
	"github.com/born-ml/linop/internal/tensor"
)

// SLQOptions configures stochastic Lanczos quadrature.
type SLQOptions struct {
	// LogDet requests the log-determinant estimate.
	LogDet bool

	// NumProbes is the number of Rademacher probes. Defaults to LINOP_NUM_TRACE_SAMPLES.
	NumProbes int

	// Reduce sums the quadratic form over right-hand-side columns.
	Reduce bool

	// Rand draws the probes. Defaults to NewRand(nil).
	Rand *rand.Rand

	// MaxIterations caps the Lanczos subspace size.
	MaxIterations int
}

// SLQResult holds the estimates of one InvQuadLogDet call.
type SLQResult struct {
	// InvQuad is xᵀA⁻¹x with shape [batch...] when reduced, [batch..., t]
	// otherwise. Nil without a right-hand side.
	InvQuad *tensor.RawTensor

	// LogDet has shape [batch...]. Nil unless requested.
	LogDet *tensor.RawTensor

	// Probes are the Rademacher vectors [batch..., n, S] behind LogDet.
	Probes *tensor.RawTensor
}

// InvQuadLogDet estimates xᵀA⁻¹x for every column of rhs and, when requested,
// log det A by stochastic Lanczos quadrature.
//
// The quadratic form runs Lanczos from x/‖x‖ and evaluates ‖x‖² Σ τ_k²/λ_k
// over the Ritz pairs. The log-determinant averages ‖z‖² Σ τ_k² log λ_k over
// S Rademacher probes z. Right-hand-side columns and probes share one
// batched Lanczos run; only the probes enter the log-determinant average.
//
// rhs may be nil. A non-positive Ritz value fails with ErrNotPositiveDefinite.
func InvQuadLogDet(op Operator, rhs *tensor.RawTensor, opts SLQOptions) (*SLQResult, error) {
	n := op.Size()
	batch := op.BatchShape()
	t := 0
	if rhs != nil {
		var err error
		if batch, t, err = checkRHS(op, rhs); err != nil {
			return nil, fmt.Errorf("inv_quad_log_det: %w", err)
		}
		rhs = expandBatch(rhs, batch)
	}
	nb := batch.NumElements()

	s := 0
	result := &SLQResult{}
	if opts.LogDet {
		s = opts.NumProbes
		if s <= 0 {
			s = max(int(envconfig.NumTraceSamples()), 1)
		}
		result.Probes = tensor.Rademacher(blockShape(batch, n, s), NewRand(opts.Rand))
	}

	// Probe block: [rhs columns | Rademacher columns] per batch element.
	width := t + s
	var rhsCols, probeCols [][]float64
	if rhs != nil {
		rhsCols = columns(rhs)
	}
	if result.Probes != nil {
		probeCols = columns(result.Probes)
	}
	init := make([][]float64, nb*width)
	for b := 0; b < nb; b++ {
		copy(init[b*width:], rhsCols[b*t:(b+1)*t])
		copy(init[b*width+t:], probeCols[b*s:(b+1)*s])
	}

	lz, err := Lanczos(op, fromColumns(init, blockShape(batch, n, width)), LanczosOptions{MaxIterations: opts.MaxIterations})
	if err != nil {
		return nil, fmt.Errorf("inv_quad_log_det: %w", err)
	}

	// quad[c] = ‖v‖² Σ_k τ_k² f(λ_k) with f = 1/λ for rhs columns, log λ for probes.
	quad := make([]float64, nb*width)
	err = parallel.ForBatch(nb, width, func(b, j int) error {
		c := b*width + j
		f := math.Log
		if j < t {
			f = func(l float64) float64 { return 1 / l }
		}
		v, err := quadrature(lz.At(b, j), f)
		if err != nil {
			return fmt.Errorf("inv_quad_log_det: batch element %d, probe %d: %w", b, j, err)
		}
		norm := floats.Norm(init[c], 2)
		quad[c] = norm * norm * v
		return nil
	}, parallel.DefaultConfig())
	if err != nil {
		return nil, err
	}

	if rhs != nil {
		result.InvQuad = collectInvQuad(quad, batch, t, width, opts.Reduce)
	}
	if opts.LogDet {
		result.LogDet = tensor.Zeros(batch)
		ld := result.LogDet.AsFloat64()
		for b := 0; b < nb; b++ {
			ld[b] = floats.Sum(quad[b*width+t:(b+1)*width]) / float64(s)
		}
	}
	return result, nil
}

func collectInvQuad(quad []float64, batch tensor.Shape, t, width int, reduce bool) *tensor.RawTensor {
	nb := batch.NumElements()
	if reduce {
		out := tensor.Zeros(batch)
		data := out.AsFloat64()
		for b := 0; b < nb; b++ {
			data[b] = floats.Sum(quad[b*width : b*width+t])
		}
		return out
	}
	out := tensor.Zeros(append(batch.Clone(), t))
	data := out.AsFloat64()
	for b := 0; b < nb; b++ {
		copy(data[b*t:(b+1)*t], quad[b*width:b*width+t])
	}
	return out
}

// quadrature returns e₁ᵀ f(T) e₁ = Σ_k τ_k² f(λ_k), τ_k being the first
// component of the k-th eigenvector of T.
func quadrature(tri *Tridiag, f func(float64) float64) (float64, error) {
	vals, vecs, err := tri.Eigen()
	if err != nil {
		return 0, err
	}
	sum := 0.0
	for k, l := range vals {
		if l <= 0 {
			return 0, fmt.Errorf("%w: Ritz value %g", ErrNotPositiveDefinite, l)
		}
		tau := vecs.At(0, k)
		sum += tau * tau * f(l)
	}
	return sum, nil
}
