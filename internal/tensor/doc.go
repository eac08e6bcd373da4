// Package tensor provides the float64 tensor runtime used by the linear
// operator engine: shapes, row-major raw tensors, creation helpers and the
// Backend interface that compute backends implement.
package tensor
