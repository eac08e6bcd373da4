package parallel

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFor(t *testing.T) {
	cfg := DefaultConfig()

	var counter int64
	n := 1000

	err := For(n, func(_ int) error {
		atomic.AddInt64(&counter, 1)
		return nil
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, int64(n), counter)
}

func TestForBatch(t *testing.T) {
	cfg := DefaultConfig()

	batch, columns := 4, 8
	results := make([][]bool, batch)
	for b := range results {
		results[b] = make([]bool, columns)
	}

	err := ForBatch(batch, columns, func(b, c int) error {
		results[b][c] = true
		return nil
	}, cfg)
	require.NoError(t, err)

	for b := 0; b < batch; b++ {
		for c := 0; c < columns; c++ {
			assert.True(t, results[b][c], "missing result at [%d][%d]", b, c)
		}
	}
}

func TestFor_Sequential(t *testing.T) {
	cfg := Config{Enabled: false}

	var order []int
	err := For(5, func(i int) error {
		order = append(order, i)
		return nil
	}, cfg)

	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFor_Error(t *testing.T) {
	errBoom := errors.New("boom")

	for _, cfg := range []Config{
		{Enabled: false},
		{Enabled: true, NumWorkers: 4, MinChunkSize: 1},
	} {
		err := For(100, func(i int) error {
			if i == 37 {
				return errBoom
			}
			return nil
		}, cfg)
		assert.ErrorIs(t, err, errBoom)
	}
}

func TestFor_OrderIndependent(t *testing.T) {
	parallelCfg := Config{Enabled: true, NumWorkers: 8, MinChunkSize: 1}

	seq := make([]float64, 64)
	par := make([]float64, 64)
	fill := func(dst []float64) func(i int) error {
		return func(i int) error {
			dst[i] = float64(i*i) / 3
			return nil
		}
	}

	require.NoError(t, For(64, fill(seq), Config{}))
	require.NoError(t, For(64, fill(par), parallelCfg))
	assert.Equal(t, seq, par)
}

func BenchmarkFor(b *testing.B) {
	cfg := DefaultConfig()
	n := 10000

	b.Run("parallel", func(b *testing.B) {
		for i := 0; i < b.N; i++ {
			var sum int64
			_ = For(n, func(j int) error {
				atomic.AddInt64(&sum, int64(j))
				return nil
			}, cfg)
		}
	})

	b.Run("sequential", func(b *testing.B) {
		seqCfg := Config{Enabled: false}
		for i := 0; i < b.N; i++ {
			var sum int64
			_ = For(n, func(j int) error {
				sum += int64(j)
				return nil
			}, seqCfg)
		}
	})
}
