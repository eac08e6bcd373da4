// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package autodiff provides automatic differentiation capabilities.
//
// This package implements reverse-mode automatic differentiation (backpropagation)
// using a gradient tape. It wraps any backend to add autodiff capabilities, and
// records the iterative linear-algebra routines as single nodes whose backward
// passes run conjugate-gradient solves.
//
// Example:
//
//	import (
//	    "github.com/born-ml/linop/autodiff"
//	    "github.com/born-ml/linop/backend/cpu"
//	    "github.com/born-ml/linop/tensor"
//	)
//
//	func main() {
//	    backend := autodiff.New(cpu.New())
//	    backend.Tape().StartRecording()
//
//	    a := tensor.MustFromSlice([]float64{2, 1, 1, 2}, tensor.Shape{2, 2})
//	    loss := backend.Trace(backend.MatMul(a, a))
//
//	    grads := autodiff.Backward(loss, backend)
//	    _ = grads[a] // 2a
//	}
package autodiff

import (
	"github.com/born-ml/linop/internal/autodiff"
	"github.com/born-ml/linop/internal/tensor"
)

// Backend is the autodiff-enabled backend.
type Backend[B tensor.Backend] = autodiff.AutodiffBackend[B]

// New creates a new autodiff backend wrapping the given backend.
//
// Example:
//
//	base := cpu.New()
//	backend := autodiff.New(base)
func New[B tensor.Backend](backend B) *Backend[B] {
	return autodiff.New(backend)
}

// GradientTape records operations for automatic differentiation.
type GradientTape = autodiff.GradientTape

// NewGradientTape creates a new gradient tape.
func NewGradientTape() *GradientTape {
	return autodiff.NewGradientTape()
}

// BackwardCapable interface for backends that support backpropagation.
type BackwardCapable = autodiff.BackwardCapable

// Operand is the operator c·A + diag(d) of the linear-algebra nodes.
type Operand = autodiff.Operand

// RootKind selects a root decomposition.
type RootKind = autodiff.RootKind

// Root decomposition kinds.
const (
	Root               = autodiff.Root
	InverseRoot        = autodiff.InverseRoot
	PreconditionedRoot = autodiff.PreconditionedRoot
)

// Backward computes gradients of t via backpropagation, seeding t with ones.
func Backward(t *tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.Backward(t, backend)
}

// BackwardFrom computes gradients from several seeded outputs at once.
func BackwardFrom(seeds map[*tensor.RawTensor]*tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	return autodiff.BackwardFrom(seeds, backend)
}
