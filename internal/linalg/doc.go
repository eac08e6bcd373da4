// Package linalg implements the matrix-free numerical engine behind the lazy
// operator API.
//
// Every routine consumes an Operator, which exposes only a batched product
// with a block of columns, so the same code runs on dense, diagonally
// shifted, scaled and low-rank-deflated matrices:
//
//   - CG: batched conjugate gradient solves, optionally preconditioned
//   - Lanczos: tridiagonalization with full reorthogonalization
//   - InvQuadLogDet: stochastic Lanczos quadrature for xᵀA⁻¹x and log det A
//   - RootDecomposition, RootInvDecomposition: Lanczos (inverse) square roots
//   - RootDecompositionPC: pivoted Cholesky plus Lanczos on the remainder
//
// Forward routines return errors wrapping the sentinels in errors.go.
// Nothing here records gradients; the autodiff layer wraps these routines
// in operations with explicit backward rules.
package linalg
