// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the float64 tensors consumed by the linear-operator
// engine.
//
// # Overview
//
// A RawTensor is a dense row-major float64 array with a Shape. Matrices are
// rank 2 ([n, n]) or rank 3 ([b, n, n]); right-hand sides are vectors ([n]),
// blocks of columns ([n, t]) or batched blocks ([b, n, t]).
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/linop/backend/cpu"
//	    "github.com/born-ml/linop/tensor"
//	)
//
//	func main() {
//	    backend := cpu.New()
//	    a := tensor.MustFromSlice([]float64{3, -1, -1, 3}, tensor.Shape{2, 2})
//	    x := tensor.Ones(tensor.Shape{2, 1})
//	    y := backend.MatMul(a, x)
//	}
//
// # Broadcasting
//
// MatMul broadcasts leading batch dimensions when one side has a single batch
// element (or none):
//
//	a := tensor.Zeros(tensor.Shape{3, 3})    // (3, 3)
//	x := tensor.Ones(tensor.Shape{2, 3, 1})  // (2, 3, 1)
//	y := backend.MatMul(a, x)                // (2, 3, 1)
//
// Element-wise operations require identical shapes.
package tensor
