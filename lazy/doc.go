// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package lazy provides a differentiable handle on a symmetric matrix whose
// expensive operations never factorize or invert it.
//
// Solves run conjugate gradients, log-determinants use stochastic Lanczos
// quadrature over Rademacher probes, and roots come from Lanczos or pivoted
// Cholesky. Every result is recorded on the backend's gradient tape with a
// backward rule that again uses CG solves instead of explicit inverses.
//
// # Basic Usage
//
//	backend := lazy.NewBackend()
//	backend.Tape().StartRecording()
//
//	a := tensor.MustFromSlice([]float64{3, -1, 0, -1, 3, 0, 0, 0, 3}, tensor.Shape{3, 3})
//	op, err := lazy.New(a, backend, lazy.Options{NumTraceSamples: 100})
//	if err != nil {
//	    return err
//	}
//	logDet, err := op.LogDet()
//	if err != nil {
//	    return err
//	}
//	grads := autodiff.Backward(logDet, backend)
//	_ = grads[a] // ≈ A⁻¹
//
// # Configuration
//
// Zero-valued Options fields fall back to the LINOP_* environment variables,
// read on every call:
//
//	LINOP_NUM_TRACE_SAMPLES        probe count for log-determinants (10)
//	LINOP_MAX_CG_ITERATIONS        CG iteration cap, 0 means the matrix size
//	LINOP_CG_TOLERANCE             CG relative residual (1e-10)
//	LINOP_MAX_LANCZOS_ITERATIONS   Lanczos subspace cap (100)
//	LINOP_MAX_PRECONDITIONER_SIZE  pivoted Cholesky rank (5)
//	LINOP_SEED                     seed for probes when Options.Rand is nil
//
// # Shapes
//
// Matrices are [n, n] or [b, n, n]. Right-hand sides are vectors [n], blocks
// [n, t] or batched blocks [b, n, t]; a batch of one on either side
// broadcasts. Vector inputs produce vector outputs.
package lazy
