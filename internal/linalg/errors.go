package linalg

import "errors"

// Sentinel errors returned by the numerical routines. Callers match them with
// errors.Is; the wrapped message carries the expected and actual shapes or the
// offending batch element.
var (
	// ErrShapeMismatch reports incompatible matrix, right-hand side or batch dimensions.
	ErrShapeMismatch = errors.New("shape mismatch")

	// ErrNotSquare reports a matrix whose trailing two dimensions differ.
	ErrNotSquare = errors.New("matrix is not square")

	// ErrNotSymmetric reports a matrix that is not symmetric within tolerance.
	ErrNotSymmetric = errors.New("matrix is not symmetric")

	// ErrNotPositiveDefinite reports a non-positive Ritz value where the
	// estimate needs a positive spectrum (log-determinant, quadratic form,
	// inverse root).
	ErrNotPositiveDefinite = errors.New("matrix is not positive definite")
)
