package linalg

import (
	"math/rand/v2"

	"github.com/born-ml/linop/internal/envconfig"
)

// NewRand returns r when set; otherwise a source seeded from LINOP_SEED, or
// a fresh random seed when none is configured.
func NewRand(r *rand.Rand) *rand.Rand {
	if r != nil {
		return r
	}
	seed, ok := envconfig.Seed()
	if !ok {
		seed = rand.Uint64()
	}
	return Seeded(seed)
}

// Seeded returns a deterministic source for seed.
func Seeded(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}
