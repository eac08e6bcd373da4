// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package lazy

import (
	"math/rand/v2"

	"github.com/born-ml/linop/internal/linalg"
)

// Options tunes the iterative routines of a NonLazy. Zero values resolve from
// the environment at call time.
type Options struct {
	// NumTraceSamples is the number of Rademacher probes per log-determinant.
	NumTraceSamples int

	// MaxCGIterations caps conjugate gradient iterations.
	MaxCGIterations int

	// CGTolerance is the relative residual at which CG stops.
	CGTolerance float64

	// MaxLanczosIterations caps the Lanczos subspace size.
	MaxLanczosIterations int

	// MaxPreconditionerSize is the pivoted Cholesky rank of RootDecompositionPC
	// and of the PivotedCholesky preconditioner.
	MaxPreconditionerSize int

	// Preconditioner selects the CG preconditioner used by every solve,
	// forward and backward.
	Preconditioner PreconditionerKind

	// MaxCholeskyNumel is the largest n·n whose roots come from a dense
	// Cholesky factor rather than Lanczos. Zero defaults to
	// LINOP_MAX_CHOLESKY_NUMEL; a negative value always runs Lanczos.
	MaxCholeskyNumel int

	// Rand draws probes and sampling noise. A nil source is seeded from
	// LINOP_SEED when set, randomly otherwise. Use Seeded for reproducible
	// estimates.
	Rand *rand.Rand
}

// PreconditionerKind selects a CG preconditioner.
type PreconditionerKind = linalg.PreconditionerKind

// Preconditioner kinds.
const (
	NoPreconditioner = linalg.NoPreconditioner
	Jacobi           = linalg.JacobiPreconditioning
	PivotedCholesky  = linalg.PivotedCholeskyPreconditioning
)

// ParsePreconditionerKind maps "none", "jacobi" or "pivchol" to a kind.
func ParsePreconditionerKind(s string) (PreconditionerKind, error) {
	return linalg.ParsePreconditionerKind(s)
}

// Seeded returns a deterministic random source for Options.Rand.
func Seeded(seed uint64) *rand.Rand {
	return linalg.Seeded(seed)
}

func (o Options) cg() linalg.CGOptions {
	return linalg.CGOptions{
		Tolerance:          o.CGTolerance,
		MaxIterations:      o.MaxCGIterations,
		PreconditionerKind: o.Preconditioner,
		PreconditionerRank: o.MaxPreconditionerSize,
	}
}

func (o Options) slq(logDet, reduce bool) linalg.SLQOptions {
	return linalg.SLQOptions{
		LogDet:        logDet,
		NumProbes:     o.NumTraceSamples,
		Reduce:        reduce,
		Rand:          o.Rand,
		MaxIterations: o.MaxLanczosIterations,
	}
}

func (o Options) root() linalg.RootOptions {
	return linalg.RootOptions{
		MaxIterations:    o.MaxLanczosIterations,
		Rank:             o.MaxPreconditionerSize,
		Rand:             o.Rand,
		MaxCholeskyNumel: o.MaxCholeskyNumel,
	}
}
