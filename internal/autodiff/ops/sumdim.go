package ops

import "github.com/born-ml/linop/internal/tensor"

// SumOp represents a full reduction to a scalar: output = Σ x.
//
// Backward: every element receives the scalar output gradient.
type SumOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewSumOp creates a new SumOp.
func NewSumOp(x, output *tensor.RawTensor) *SumOp {
	return &SumOp{input: x, output: output}
}

// Backward broadcasts the scalar gradient to the input shape.
func (op *SumOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	return []*tensor.RawTensor{tensor.Full(op.input.Shape(), outputGrad.Item())}
}

// Inputs returns the input tensors [x].
func (op *SumOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the scalar sum.
func (op *SumOp) Output() *tensor.RawTensor {
	return op.output
}

// SumDimOp represents a reduction sum operation along a dimension: output = sum(x, dim).
//
// Forward:
//
//	y = sum(x, dim, keepDim)
//
// Backward:
//
//	grad_x = broadcast(grad_y, x.shape)
//
// If keepDim=false, grad_y is unsqueezed first.
type SumDimOp struct {
	inputs  []*tensor.RawTensor // [x]
	output  *tensor.RawTensor   // sum(x, dim)
	dim     int                 // dimension to reduce
	keepDim bool                // whether to keep dimension
}

// NewSumDimOp creates a new SumDimOp.
func NewSumDimOp(x, output *tensor.RawTensor, dim int, keepDim bool) *SumDimOp {
	if dim < 0 {
		dim += len(x.Shape())
	}
	return &SumDimOp{
		inputs:  []*tensor.RawTensor{x},
		output:  output,
		dim:     dim,
		keepDim: keepDim,
	}
}

// Backward computes input gradients for sum reduction.
func (op *SumDimOp) Backward(outputGrad *tensor.RawTensor, backend tensor.Backend) []*tensor.RawTensor {
	x := op.inputs[0]
	grad := outputGrad

	if !op.keepDim {
		kept := x.Shape().Clone()
		kept[op.dim] = 1
		grad = backend.Reshape(grad, kept)
	}

	return []*tensor.RawTensor{broadcastTo(grad, x.Shape())}
}

// Inputs returns the input tensors [x].
func (op *SumDimOp) Inputs() []*tensor.RawTensor {
	return op.inputs
}

// Output returns the output tensor sum(x, dim).
func (op *SumDimOp) Output() *tensor.RawTensor {
	return op.output
}

// TraceOp represents the trace of the trailing matrix: output[b] = Σ_i x[b, i, i].
//
// Backward: grad_x[b] = grad_y[b] · I.
type TraceOp struct {
	input  *tensor.RawTensor
	output *tensor.RawTensor
}

// NewTraceOp creates a new TraceOp.
func NewTraceOp(x, output *tensor.RawTensor) *TraceOp {
	return &TraceOp{input: x, output: output}
}

// Backward places the per-batch gradient on each diagonal.
func (op *TraceOp) Backward(outputGrad *tensor.RawTensor, _ tensor.Backend) []*tensor.RawTensor {
	n, _ := op.input.Shape().MatrixDims()
	grad := tensor.Zeros(op.input.Shape())
	g, dst := outputGrad.AsFloat64(), grad.AsFloat64()
	for b, v := range g {
		for i := 0; i < n; i++ {
			dst[(b*n+i)*n+i] = v
		}
	}
	return []*tensor.RawTensor{grad}
}

// Inputs returns the input tensors [x].
func (op *TraceOp) Inputs() []*tensor.RawTensor {
	return []*tensor.RawTensor{op.input}
}

// Output returns the batch of traces.
func (op *TraceOp) Output() *tensor.RawTensor {
	return op.output
}
