package cpu

import (
	"fmt"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/born-ml/linop/internal/tensor"
)

// MatMul performs (batched) matrix multiplication over the trailing two dimensions.
//
//	2D:    [M, K] @ [K, N]       -> [M, N]
//	3D:    [B, M, K] @ [B, K, N] -> [B, M, N]
//	mixed: [M, K] @ [B, K, N]    -> [B, M, N] (the unbatched side is repeated)
//
// A batch dimension of size 1 also broadcasts. Each batch element is a single
// blas64 Gemm call.
func (cpu *CPUBackend) MatMul(a, b *tensor.RawTensor) *tensor.RawTensor {
	aShape := a.Shape()
	bShape := b.Shape()

	// Validate dimensions
	if len(aShape) < 2 || len(bShape) < 2 {
		panic(fmt.Sprintf("matmul: inputs must be at least 2D, got %dD and %dD", len(aShape), len(bShape)))
	}

	m, k := aShape.MatrixDims()
	kAlt, n := bShape.MatrixDims()
	if k != kAlt {
		panic(fmt.Sprintf("matmul: shape mismatch %v @ %v (inner dimension %d vs %d)", aShape, bShape, k, kAlt))
	}

	batchShape, _, err := tensor.BroadcastShapes(aShape.BatchShape(), bShape.BatchShape())
	if err != nil {
		panic(fmt.Sprintf("matmul: batch dimensions: %v", err))
	}

	outShape := append(batchShape.Clone(), m, n)
	result := tensor.Zeros(outShape)
	if result.NumElements() == 0 || k == 0 {
		return result
	}

	aBatch := aShape.BatchShape().NumElements()
	bBatch := bShape.BatchShape().NumElements()
	batchSize := batchShape.NumElements()

	aData, bData, cData := a.AsFloat64(), b.AsFloat64(), result.AsFloat64()
	for batch := 0; batch < batchSize; batch++ {
		aOffset := (batch % aBatch) * m * k
		bOffset := (batch % bBatch) * k * n
		cOffset := batch * m * n

		blas64.Gemm(blas.NoTrans, blas.NoTrans, 1,
			blas64.General{Rows: m, Cols: k, Stride: k, Data: aData[aOffset : aOffset+m*k]},
			blas64.General{Rows: k, Cols: n, Stride: n, Data: bData[bOffset : bOffset+k*n]},
			0,
			blas64.General{Rows: m, Cols: n, Stride: n, Data: cData[cOffset : cOffset+m*n]},
		)
	}

	return result
}
