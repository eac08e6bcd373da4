package tensor

import (
	"math/rand/v2"
)

// Zeros creates a tensor filled with zeros.
//
// Example:
//
//	t := tensor.Zeros(tensor.Shape{3, 4})
func Zeros(shape Shape) *RawTensor {
	raw, err := NewRaw(shape)
	if err != nil {
		panic(err) // Shape validation should prevent this
	}
	return raw
}

// Full creates a tensor filled with a specific value.
func Full(shape Shape, value float64) *RawTensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *RawTensor {
	return Full(shape, 1)
}

// Eye creates an n×n identity matrix, repeated over the given batch shape.
//
// Example:
//
//	tensor.Eye(3)       // [3, 3]
//	tensor.Eye(3, 2)    // [2, 3, 3]
func Eye(n int, batch ...int) *RawTensor {
	shape := append(Shape(batch).Clone(), n, n)
	t := Zeros(shape)
	for b := 0; b < Shape(batch).NumElements(); b++ {
		off := b * n * n
		for i := 0; i < n; i++ {
			t.data[off+i*n+i] = 1
		}
	}
	return t
}

// Randn creates a tensor with standard normal entries drawn from rng.
// Note: Uses math/rand (not crypto/rand) - appropriate for statistical purposes.
func Randn(shape Shape, rng *rand.Rand) *RawTensor {
	t := Zeros(shape)
	for i := range t.data {
		t.data[i] = rng.NormFloat64()
	}
	return t
}

// Rademacher creates a tensor with independent ±1 entries of equal
// probability drawn from rng. Entries have zero mean and unit variance.
func Rademacher(shape Shape, rng *rand.Rand) *RawTensor {
	t := Zeros(shape)
	for i := range t.data {
		if rng.Uint64()&1 == 0 {
			t.data[i] = -1
		} else {
			t.data[i] = 1
		}
	}
	return t
}
