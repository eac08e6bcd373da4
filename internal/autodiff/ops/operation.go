// Package ops defines the differentiable operations recorded on a gradient tape.
//
// Each operation keeps references to its inputs and output from the forward
// pass and turns an output gradient into input gradients:
//   - AddOp, SubOp, MulOp: element-wise arithmetic
//   - MulScalarOp: multiplication by a constant
//   - MatMulOp: batched matrix product (dA = g Bᵀ, dB = Aᵀ g)
//   - TransposeOp, ReshapeOp: layout changes
//   - SumOp, SumDimOp, TraceOp: reductions
//   - InvMatmulOp, InvQuadLogDetOp, RootDecompositionOp: iterative linear
//     algebra whose backward passes run further CG solves instead of
//     differentiating through the iterations
package ops

import "github.com/born-ml/linop/internal/tensor"

// Operation represents a differentiable operation in the computation graph.
// Each operation records its inputs and output during the forward pass,
// and computes input gradients during the backward pass.
type Operation interface {
	// Backward computes gradients for inputs given the output gradient.
	// Returns a slice of gradients corresponding to each input tensor; a nil
	// entry means no gradient flows to that input.
	Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor

	// Inputs returns the input tensors for this operation.
	Inputs() []*tensor.RawTensor

	// Output returns the output tensor produced by this operation.
	Output() *tensor.RawTensor
}

// MultiOutputOperation represents an operation that produces multiple outputs,
// such as the joint inverse quadratic form and log-determinant.
//
// The tape collects gradients for ALL outputs before calling BackwardMulti.
// Outputs without an upstream gradient receive zeros.
type MultiOutputOperation interface {
	Operation

	// Outputs returns all output tensors produced by this operation.
	Outputs() []*tensor.RawTensor

	// BackwardMulti computes gradients for inputs given gradients for ALL outputs.
	BackwardMulti(outputGrads []*tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor
}
