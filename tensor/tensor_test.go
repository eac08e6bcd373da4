// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/born-ml/linop/internal/backend/cpu"
	"github.com/born-ml/linop/tensor"
)

// TestBackendInterface verifies that cpu.CPUBackend implements tensor.Backend.
func TestBackendInterface(_ *testing.T) {
	var _ tensor.Backend = (*cpu.CPUBackend)(nil)
}

func TestRawTensorAPI(t *testing.T) {
	raw, err := tensor.FromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})
	require.NoError(t, err)

	assert.True(t, raw.Shape().Equal(tensor.Shape{2, 3}))
	assert.Equal(t, 6, raw.NumElements())
	assert.Equal(t, 6.0, raw.At(1, 2))

	clone := raw.Clone()
	clone.Set(-1, 0, 0)
	assert.Equal(t, 1.0, raw.At(0, 0), "Clone must not share data")

	_, err = tensor.FromSlice([]float64{1, 2}, tensor.Shape{3})
	assert.Error(t, err)
}

func TestCreation(t *testing.T) {
	assert.Equal(t, []float64{0, 0}, tensor.Zeros(tensor.Shape{2}).AsFloat64())
	assert.Equal(t, []float64{1, 1}, tensor.Ones(tensor.Shape{2}).AsFloat64())
	assert.Equal(t, []float64{1, 0, 0, 1, 1, 0, 0, 1}, tensor.Eye(2, 2).AsFloat64())
}
