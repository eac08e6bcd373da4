// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"math/rand/v2"

	"github.com/born-ml/linop/internal/tensor"
)

// RawTensor is a dense row-major float64 tensor.
//
// RawTensor provides:
//   - Shape information via Shape(), NumElements()
//   - Data access via AsFloat64(), At(), Item()
//   - Deep copies via Clone()
//
// Matrices are stored as [batch..., n, n] and right-hand sides as
// [batch..., n, t].
type RawTensor = tensor.RawTensor

// Shape represents the dimensions of a tensor.
type Shape = tensor.Shape

// FromSlice creates a tensor from a Go slice. The slice is copied.
func FromSlice(data []float64, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(data, shape)
}

// MustFromSlice is FromSlice that panics on error.
func MustFromSlice(data []float64, shape Shape) *RawTensor {
	return tensor.MustFromSlice(data, shape)
}

// Zeros creates a tensor filled with zeros.
func Zeros(shape Shape) *RawTensor {
	return tensor.Zeros(shape)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *RawTensor {
	return tensor.Ones(shape)
}

// Eye creates an n×n identity matrix, repeated over the given batch shape.
func Eye(n int, batch ...int) *RawTensor {
	return tensor.Eye(n, batch...)
}

// Randn creates a tensor with standard normal entries drawn from rng.
func Randn(shape Shape, rng *rand.Rand) *RawTensor {
	return tensor.Randn(shape, rng)
}
