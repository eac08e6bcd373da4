package tensor

// Backend defines the interface that all compute backends must implement.
// Backends handle the actual computation for tensor operations.
//
// Implementations:
//   - CPU: Pure Go with gonum BLAS for matrix products
//   - Autodiff: decorator that records operations on a gradient tape
type Backend interface {
	// Element-wise binary operations (identical shapes)
	Add(a, b *RawTensor) *RawTensor
	Sub(a, b *RawTensor) *RawTensor
	Mul(a, b *RawTensor) *RawTensor

	// Scalar operations (element-wise with scalar)
	MulScalar(x *RawTensor, scalar float64) *RawTensor

	// MatMul multiplies the trailing two dimensions.
	// [.., M, K] @ [.., K, N] -> [.., M, N]; leading batch dimensions
	// broadcast (a missing batch dimension is repeated).
	MatMul(a, b *RawTensor) *RawTensor

	// Shape operations
	Reshape(t *RawTensor, newShape Shape) *RawTensor
	Transpose(t *RawTensor, axes ...int) *RawTensor

	// Reduction operations
	// Sum returns the total sum as a scalar, SumDim sums along one dimension
	// and Trace sums the diagonal of the trailing matrix (shape = batch shape).
	Sum(x *RawTensor) *RawTensor
	SumDim(x *RawTensor, dim int, keepDim bool) *RawTensor
	Trace(x *RawTensor) *RawTensor

	// Metadata
	Name() string
}
