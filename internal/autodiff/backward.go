package autodiff

import (
	"github.com/born-ml/linop/internal/tensor"
)

// BackwardCapable is an interface for backends that support backward pass.
// AutodiffBackend implements this interface.
type BackwardCapable interface {
	tensor.Backend
	// GetTape returns the gradient tape for backward computation.
	GetTape() *GradientTape
}

// GetTape returns the gradient tape (implements BackwardCapable interface).
func (b *AutodiffBackend[B]) GetTape() *GradientTape {
	return b.tape
}

// Backward computes gradients of t, seeded with ones, using the backend's tape.
// t must be the output of the last recorded operation.
//
// Example:
//
//	backend := autodiff.New(cpu.New())
//	backend.Tape().StartRecording()
//	y := backend.Trace(backend.MatMul(a, a))
//	grads := autodiff.Backward(y, backend)
//	gradA := grads[a]
func Backward(t *tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.GetTape()

	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}

	return tape.Backward(tensor.Ones(t.Shape()), backend)
}

// BackwardFrom computes gradients of several outputs at once. Each seed maps an
// output tensor to its upstream gradient, which must have the output's shape.
func BackwardFrom(seeds map[*tensor.RawTensor]*tensor.RawTensor, backend BackwardCapable) map[*tensor.RawTensor]*tensor.RawTensor {
	tape := backend.GetTape()

	if tape.NumOps() == 0 {
		panic("backward: no operations recorded (did you forget to call Tape().StartRecording()?)")
	}

	return tape.BackwardFrom(seeds, backend)
}
