// Package parallel runs independent batch elements and probe columns concurrently.
package parallel

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// Config controls parallel execution behavior.
type Config struct {
	Enabled      bool // Whether parallel execution is enabled.
	NumWorkers   int  // Maximum number of goroutines in flight.
	MinChunkSize int  // Minimum items per goroutine to avoid overhead.
}

// DefaultConfig returns sensible defaults based on CPU count.
func DefaultConfig() Config {
	n := runtime.NumCPU()
	return Config{
		Enabled:      n > 1,
		NumWorkers:   n,
		MinChunkSize: 4, // One Lanczos column or tridiagonal eigenproblem is already a sizeable unit.
	}
}

// For executes f(i) for i in [0, n) with optional parallelism and returns
// the first error. Falls back to sequential execution if parallelism is
// disabled or n is too small.
//
// Callers must make f(i) independent of every f(j); results are written to
// per-index slots so the outcome never depends on scheduling.
func For(n int, f func(i int) error, cfg Config) error {
	if !cfg.Enabled || n < cfg.MinChunkSize || cfg.NumWorkers < 2 {
		// Sequential fallback.
		for i := 0; i < n; i++ {
			if err := f(i); err != nil {
				return err
			}
		}
		return nil
	}

	var g errgroup.Group
	g.SetLimit(cfg.NumWorkers)

	chunkSize := max((n+cfg.NumWorkers-1)/cfg.NumWorkers, cfg.MinChunkSize)
	for start := 0; start < n; start += chunkSize {
		end := min(start+chunkSize, n)
		g.Go(func() error {
			for i := start; i < end; i++ {
				if err := f(i); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

// ForBatch is For over the batch*columns iteration pattern of batched
// Krylov methods.
func ForBatch(batch, columns int, f func(b, c int) error, cfg Config) error {
	if columns == 0 {
		return nil
	}
	return For(batch*columns, func(k int) error {
		return f(k/columns, k%columns)
	}, cfg)
}
