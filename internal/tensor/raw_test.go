package tensor

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// RawTensor Tests

func TestNewRaw(t *testing.T) {
	raw, err := NewRaw(Shape{2, 3})
	if err != nil {
		t.Fatalf("NewRaw failed: %v", err)
	}

	if raw.NumElements() != 6 {
		t.Errorf("NumElements = %d, want 6", raw.NumElements())
	}
	for i, v := range raw.AsFloat64() {
		if v != 0 {
			t.Errorf("element %d = %v, want 0", i, v)
		}
	}
	if diff := cmp.Diff([]int{3, 1}, raw.Strides()); diff != "" {
		t.Errorf("strides mismatch (-want +got):\n%s", diff)
	}
}

func TestNewRaw_InvalidShape(t *testing.T) {
	if _, err := NewRaw(Shape{2, -1}); err == nil {
		t.Error("expected error for negative dimension")
	}
}

func TestFromSlice_Copies(t *testing.T) {
	data := []float64{1, 2, 3, 4}
	raw, err := FromSlice(data, Shape{2, 2})
	if err != nil {
		t.Fatalf("FromSlice failed: %v", err)
	}

	data[0] = 42
	if raw.At(0, 0) != 1 {
		t.Error("FromSlice should copy its input")
	}
	if raw.At(1, 0) != 3 {
		t.Errorf("At(1, 0) = %v, want 3", raw.At(1, 0))
	}
}

func TestFromSlice_SizeMismatch(t *testing.T) {
	if _, err := FromSlice([]float64{1, 2, 3}, Shape{2, 2}); err == nil {
		t.Error("expected error for element count mismatch")
	}
}

func TestRawTensorSetAt(t *testing.T) {
	raw := Zeros(Shape{2, 3, 4})
	raw.Set(7, 1, 2, 3)

	if raw.At(1, 2, 3) != 7 {
		t.Errorf("At(1, 2, 3) = %v, want 7", raw.At(1, 2, 3))
	}
	if raw.AsFloat64()[1*12+2*4+3] != 7 {
		t.Error("Set wrote to the wrong offset")
	}
}

func TestRawTensorAt_OutOfBounds(t *testing.T) {
	raw := Zeros(Shape{2, 2})
	defer func() {
		if recover() == nil {
			t.Error("expected panic for out-of-bounds index")
		}
	}()
	raw.At(2, 0)
}

func TestRawTensorClone_IsDeep(t *testing.T) {
	raw := Ones(Shape{3})
	clone := raw.Clone()

	clone.AsFloat64()[0] = 5
	if raw.AsFloat64()[0] != 1 {
		t.Error("Clone should not share storage")
	}
	if clone == raw {
		t.Error("Clone should return a new pointer")
	}
}

func TestRawTensorView(t *testing.T) {
	raw := MustFromSlice([]float64{1, 2, 3, 4, 5, 6}, Shape{6})
	view, err := raw.View(Shape{2, 3})
	if err != nil {
		t.Fatalf("View failed: %v", err)
	}
	if view.At(1, 0) != 4 {
		t.Errorf("view.At(1, 0) = %v, want 4", view.At(1, 0))
	}

	if _, err := raw.View(Shape{4, 2}); err == nil {
		t.Error("expected error for incompatible view")
	}
}

func TestItem(t *testing.T) {
	scalar := Full(Shape{}, 2.5)
	if scalar.Item() != 2.5 {
		t.Errorf("Item() = %v, want 2.5", scalar.Item())
	}

	defer func() {
		if recover() == nil {
			t.Error("Item() on a vector should panic")
		}
	}()
	Zeros(Shape{2}).Item()
}

func TestEye(t *testing.T) {
	eye := Eye(3, 2)
	if diff := cmp.Diff(Shape{2, 3, 3}, eye.Shape()); diff != "" {
		t.Fatalf("shape mismatch (-want +got):\n%s", diff)
	}
	for b := 0; b < 2; b++ {
		for i := 0; i < 3; i++ {
			for j := 0; j < 3; j++ {
				want := 0.0
				if i == j {
					want = 1
				}
				if got := eye.At(b, i, j); got != want {
					t.Errorf("Eye[%d,%d,%d] = %v, want %v", b, i, j, got, want)
				}
			}
		}
	}
}

func TestRademacher(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	z := Rademacher(Shape{4000}, rng)

	sum := 0.0
	for _, v := range z.AsFloat64() {
		if v != 1 && v != -1 {
			t.Fatalf("Rademacher entry %v is not ±1", v)
		}
		sum += v
	}
	if mean := sum / 4000; mean > 0.1 || mean < -0.1 {
		t.Errorf("Rademacher mean = %v, want ≈ 0", mean)
	}
}

func TestRandn_Deterministic(t *testing.T) {
	a := Randn(Shape{5}, rand.New(rand.NewPCG(7, 7)))
	b := Randn(Shape{5}, rand.New(rand.NewPCG(7, 7)))
	if diff := cmp.Diff(a.AsFloat64(), b.AsFloat64()); diff != "" {
		t.Errorf("same seed should give same draws (-a +b):\n%s", diff)
	}
}
