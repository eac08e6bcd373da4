// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package cpu

import (
	internalcpu "github.com/born-ml/linop/internal/backend/cpu"
	"github.com/born-ml/linop/tensor"
)

// Backend represents the CPU backend implementation.
//
// The CPU backend is pure Go; matrix products run through gonum's BLAS.
type Backend = internalcpu.CPUBackend

// Compile-time check that Backend implements tensor.Backend.
var _ tensor.Backend = (*Backend)(nil)

// New creates a new CPU backend.
//
// Example:
//
//	import (
//	    "github.com/born-ml/linop/backend/cpu"
//	    "github.com/born-ml/linop/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    a := tensor.Eye(3)
//	    b := backend.MatMul(a, a)
//	}
func New() *Backend {
	return internalcpu.New()
}
