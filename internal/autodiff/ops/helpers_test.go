package ops

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/born-ml/linop/internal/backend/cpu"
	"github.com/born-ml/linop/internal/tensor"
)

func TestReduceBroadcast(t *testing.T) {
	backend := cpu.New()

	// grad[2, 2, 3] = 0..11
	data := make([]float64, 12)
	for i := range data {
		data[i] = float64(i)
	}
	grad := tensor.MustFromSlice(data, tensor.Shape{2, 2, 3})

	tests := []struct {
		name   string
		target tensor.Shape
		want   []float64
	}{
		{"same shape", tensor.Shape{2, 2, 3}, data},
		{"scalar", tensor.Shape{}, []float64{66}},
		{"drop batch", tensor.Shape{2, 3}, []float64{6, 8, 10, 12, 14, 16}},
		{"unit batch", tensor.Shape{1, 2, 3}, []float64{6, 8, 10, 12, 14, 16}},
		{"unit columns", tensor.Shape{2, 2, 1}, []float64{3, 12, 21, 30}},
		{"drop batch and rows", tensor.Shape{1, 3}, []float64{18, 22, 26}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := reduceBroadcast(grad, tt.target, backend)
			if diff := cmp.Diff(tt.target, got.Shape()); diff != "" {
				t.Fatalf("shape mismatch (-want +got):\n%s", diff)
			}
			if diff := cmp.Diff(tt.want, got.AsFloat64()); diff != "" {
				t.Errorf("values mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReduceBroadcast_SameShapeDoesNotAlias(t *testing.T) {
	grad := tensor.MustFromSlice([]float64{1, 2}, tensor.Shape{2})
	got := reduceBroadcast(grad, tensor.Shape{2}, cpu.New())
	got.AsFloat64()[0] = 100
	if grad.AsFloat64()[0] != 1 {
		t.Errorf("reduceBroadcast aliased its input")
	}
}

func TestBroadcastTo(t *testing.T) {
	src := tensor.MustFromSlice([]float64{1, 2}, tensor.Shape{2, 1})
	got := broadcastTo(src, tensor.Shape{2, 3})
	want := []float64{1, 1, 1, 2, 2, 2}
	if diff := cmp.Diff(want, got.AsFloat64()); diff != "" {
		t.Errorf("broadcastTo mismatch (-want +got):\n%s", diff)
	}

	row := tensor.MustFromSlice([]float64{1, 2, 3}, tensor.Shape{1, 1, 3})
	got = broadcastTo(row, tensor.Shape{2, 2, 3})
	want = []float64{1, 2, 3, 1, 2, 3, 1, 2, 3, 1, 2, 3}
	if diff := cmp.Diff(want, got.AsFloat64()); diff != "" {
		t.Errorf("broadcastTo mismatch (-want +got):\n%s", diff)
	}
}

func TestBroadcastTo_RankMismatchPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for rank mismatch")
		}
	}()
	broadcastTo(tensor.Zeros(tensor.Shape{3}), tensor.Shape{2, 3})
}

func TestTransposeLastAndSym(t *testing.T) {
	backend := cpu.New()
	x := tensor.MustFromSlice([]float64{
		1, 2,
		3, 4,

		0, 6,
		2, 0,
	}, tensor.Shape{2, 2, 2})

	xt := transposeLast(x, backend)
	if diff := cmp.Diff([]float64{1, 3, 2, 4, 0, 2, 6, 0}, xt.AsFloat64()); diff != "" {
		t.Errorf("transposeLast mismatch (-want +got):\n%s", diff)
	}

	s := sym(x, backend)
	if diff := cmp.Diff([]float64{1, 2.5, 2.5, 4, 0, 4, 4, 0}, s.AsFloat64()); diff != "" {
		t.Errorf("sym mismatch (-want +got):\n%s", diff)
	}
}

func TestScaleColumns(t *testing.T) {
	y := tensor.MustFromSlice([]float64{1, 2, 3, 4, 5, 6, 7, 8}, tensor.Shape{2, 2, 2})

	reduced := scaleColumns(y, tensor.MustFromSlice([]float64{2, -1}, tensor.Shape{2}), true)
	if diff := cmp.Diff([]float64{2, 4, 6, 8, -5, -6, -7, -8}, reduced.AsFloat64()); diff != "" {
		t.Errorf("reduced scaling mismatch (-want +got):\n%s", diff)
	}

	perColumn := scaleColumns(y, tensor.MustFromSlice([]float64{1, 0, 0, 10}, tensor.Shape{2, 2}), false)
	if diff := cmp.Diff([]float64{1, 0, 3, 0, 0, 60, 0, 80}, perColumn.AsFloat64()); diff != "" {
		t.Errorf("per-column scaling mismatch (-want +got):\n%s", diff)
	}
}
