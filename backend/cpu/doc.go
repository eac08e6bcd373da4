// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package cpu provides a pure Go CPU backend for tensor operations.
//
// # Overview
//
// This package implements a CPU backend with:
//   - Pure Go implementation (no CGO)
//   - float64 arithmetic throughout
//   - Batched matrix products with batch broadcasting (gonum BLAS)
//   - Reductions: Sum, SumDim, Trace
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/linop/backend/cpu"
//	    "github.com/born-ml/linop/lazy"
//	)
//
//	func main() {
//	    backend := lazy.NewBackend()          // autodiff over cpu.New()
//	    a, _ := lazy.New(matrix, backend, lazy.Options{})
//	    x, _ := a.InvMatmul(rhs)
//	}
//
// # Thread Safety
//
// The CPU backend is safe for concurrent use. Each tensor operation
// allocates its result and does not share mutable state.
package cpu
