package cpu

import (
	"testing"

	"github.com/born-ml/linop/internal/tensor"
)

func TestSum(t *testing.T) {
	backend := New()
	x := tensor.MustFromSlice([]float64{1, 2, 3, 4}, tensor.Shape{2, 2})

	result := backend.Sum(x)
	if len(result.Shape()) != 0 {
		t.Errorf("Expected scalar shape, got %v", result.Shape())
	}
	if result.Item() != 10 {
		t.Errorf("Expected 10, got %v", result.Item())
	}
}

func TestSumDim_1D(t *testing.T) {
	backend := New()
	x := tensor.MustFromSlice([]float64{1, 2, 3, 4}, tensor.Shape{4})

	// Sum along dim 0 with keepDim=true -> [1]
	result := backend.SumDim(x, 0, true)
	if !result.Shape().Equal(tensor.Shape{1}) {
		t.Errorf("Expected shape [1], got %v", result.Shape())
	}
	if result.AsFloat64()[0] != 10 {
		t.Errorf("Expected 10, got %v", result.AsFloat64()[0])
	}

	// Sum along dim 0 with keepDim=false -> []
	result = backend.SumDim(x, 0, false)
	if len(result.Shape()) != 0 {
		t.Errorf("Expected shape [], got %v", result.Shape())
	}
	if result.Item() != 10 {
		t.Errorf("Expected 10, got %v", result.Item())
	}
}

func TestSumDim_2D(t *testing.T) {
	backend := New()
	// Row 0: [1, 2, 3]
	// Row 1: [4, 5, 6]
	x := tensor.MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, tensor.Shape{2, 3})

	result := backend.SumDim(x, -1, true)
	if !result.Shape().Equal(tensor.Shape{2, 1}) {
		t.Errorf("Expected shape [2, 1], got %v", result.Shape())
	}
	if !float64SliceEqual(result.AsFloat64(), []float64{6, 15}) {
		t.Errorf("Expected [6 15], got %v", result.AsFloat64())
	}

	result = backend.SumDim(x, 0, false)
	if !result.Shape().Equal(tensor.Shape{3}) {
		t.Errorf("Expected shape [3], got %v", result.Shape())
	}
	if !float64SliceEqual(result.AsFloat64(), []float64{5, 7, 9}) {
		t.Errorf("Expected [5 7 9], got %v", result.AsFloat64())
	}
}

func TestTrace(t *testing.T) {
	backend := New()

	t.Run("Matrix", func(t *testing.T) {
		x := tensor.MustFromSlice([]float64{3, -1, 0, -1, 3, 0, 0, 0, 3}, tensor.Shape{3, 3})
		if got := backend.Trace(x).Item(); got != 9 {
			t.Errorf("Trace = %v, want 9", got)
		}
	})

	t.Run("Batched", func(t *testing.T) {
		x := tensor.MustFromSlice([]float64{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{2, 2, 2})
		result := backend.Trace(x)
		if !result.Shape().Equal(tensor.Shape{2}) {
			t.Fatalf("Expected shape [2], got %v", result.Shape())
		}
		if !float64SliceEqual(result.AsFloat64(), []float64{5, 13}) {
			t.Errorf("Expected [5 13], got %v", result.AsFloat64())
		}
	})

	t.Run("NonSquarePanics", func(t *testing.T) {
		defer func() {
			if recover() == nil {
				t.Error("expected panic for non-square input")
			}
		}()
		backend.Trace(tensor.Zeros(tensor.Shape{2, 3}))
	})
}
