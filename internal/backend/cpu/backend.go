// Package cpu implements the CPU backend with gonum BLAS integration.
package cpu

import (
	"fmt"

	"github.com/born-ml/linop/internal/tensor"
)

// CPUBackend implements tensor operations on CPU.
//
// All methods are read-only with respect to their inputs and safe for
// concurrent use.
type CPUBackend struct{}

// New creates a new CPU backend.
func New() *CPUBackend {
	return &CPUBackend{}
}

// Name returns the backend name.
func (cpu *CPUBackend) Name() string {
	return "CPU"
}

// Add performs element-wise addition of two tensors with identical shapes.
func (cpu *CPUBackend) Add(a, b *tensor.RawTensor) *tensor.RawTensor {
	return elementwise("add", a, b, func(x, y float64) float64 { return x + y })
}

// Sub performs element-wise subtraction of two tensors with identical shapes.
func (cpu *CPUBackend) Sub(a, b *tensor.RawTensor) *tensor.RawTensor {
	return elementwise("sub", a, b, func(x, y float64) float64 { return x - y })
}

// Mul performs element-wise multiplication of two tensors with identical shapes.
func (cpu *CPUBackend) Mul(a, b *tensor.RawTensor) *tensor.RawTensor {
	return elementwise("mul", a, b, func(x, y float64) float64 { return x * y })
}

// MulScalar multiplies every element by scalar.
func (cpu *CPUBackend) MulScalar(x *tensor.RawTensor, scalar float64) *tensor.RawTensor {
	result := tensor.Zeros(x.Shape())
	dst := result.AsFloat64()
	for i, v := range x.AsFloat64() {
		dst[i] = v * scalar
	}
	return result
}

func elementwise(name string, a, b *tensor.RawTensor, f func(x, y float64) float64) *tensor.RawTensor {
	if !a.Shape().Equal(b.Shape()) {
		panic(fmt.Sprintf("%s: shape mismatch %v vs %v", name, a.Shape(), b.Shape()))
	}

	result := tensor.Zeros(a.Shape())
	dst := result.AsFloat64()
	bData := b.AsFloat64()
	for i, v := range a.AsFloat64() {
		dst[i] = f(v, bData[i])
	}
	return result
}

// Reshape returns a copy of t with a new shape holding the same number of elements.
func (cpu *CPUBackend) Reshape(t *tensor.RawTensor, newShape tensor.Shape) *tensor.RawTensor {
	if newShape.NumElements() != t.NumElements() {
		panic(fmt.Sprintf("reshape: cannot reshape %v (%d elements) to %v (%d elements)",
			t.Shape(), t.NumElements(), newShape, newShape.NumElements()))
	}
	result, err := tensor.FromSlice(t.AsFloat64(), newShape)
	if err != nil {
		panic(fmt.Sprintf("reshape: %v", err))
	}
	return result
}

// Transpose permutes the dimensions of t.
// With no axes, all dimensions are reversed.
func (cpu *CPUBackend) Transpose(t *tensor.RawTensor, axes ...int) *tensor.RawTensor {
	shape := t.Shape()
	ndim := len(shape)

	// Default: reverse all dimensions
	if len(axes) == 0 {
		axes = make([]int, ndim)
		for i := range axes {
			axes[i] = ndim - 1 - i
		}
	}

	// Validate axes
	if len(axes) != ndim {
		panic(fmt.Sprintf("transpose: axes length %d != ndim %d", len(axes), ndim))
	}

	seen := make([]bool, ndim)
	for _, ax := range axes {
		if ax < 0 || ax >= ndim {
			panic(fmt.Sprintf("transpose: invalid axis %d for %dD tensor", ax, ndim))
		}
		if seen[ax] {
			panic(fmt.Sprintf("transpose: duplicate axis %d", ax))
		}
		seen[ax] = true
	}

	// Compute new shape
	newShape := make(tensor.Shape, ndim)
	for i, ax := range axes {
		newShape[i] = shape[ax]
	}

	result := tensor.Zeros(newShape)
	transposeData(result, t, axes)
	return result
}

// transposeData walks the output in row-major order and gathers the source
// element through the permuted strides.
func transposeData(result, t *tensor.RawTensor, axes []int) {
	src := t.AsFloat64()
	dst := result.AsFloat64()
	srcStrides := t.Strides()
	outShape := result.Shape()
	ndim := len(outShape)

	coords := make([]int, ndim)
	for outIdx := range dst {
		srcIdx := 0
		for i := 0; i < ndim; i++ {
			srcIdx += coords[i] * srcStrides[axes[i]]
		}
		dst[outIdx] = src[srcIdx]

		// Advance the output coordinate odometer.
		for d := ndim - 1; d >= 0; d-- {
			coords[d]++
			if coords[d] < outShape[d] {
				break
			}
			coords[d] = 0
		}
	}
}
