package store

import (
	"math/rand/v2"
	"sync"
)

// pcgStream is the fixed PCG increment; only the seed varies between runs.
const pcgStream = 0x9e3779b97f4a7c15

// Random is the deterministic random source owned by a Store.
// It is safe for concurrent use.
type Random struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newRandom() *Random {
	return &Random{}
}

// reseed replaces the generator, discarding any prior state.
func (r *Random) reseed(seed int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.r = rand.New(rand.NewPCG(uint64(seed), pcgStream))
}

// Seeded reports whether a seed has been installed.
func (r *Random) Seeded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.r != nil
}

// Uniform draws from [0, 1).
func (r *Random) Uniform() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.r == nil {
		return 0, ErrUnseeded
	}
	return r.r.Float64(), nil
}

// Normal draws from the standard normal distribution.
func (r *Random) Normal() (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.r == nil {
		return 0, ErrUnseeded
	}
	return r.r.NormFloat64(), nil
}

// Gaussian draws from N(mu, sigma).
func (r *Random) Gaussian(mu, sigma float64) (float64, error) {
	n, err := r.Normal()
	if err != nil {
		return 0, err
	}
	return mu + sigma*n, nil
}

// NormalFloat32 fills dst with standard normal draws.
func (r *Random) NormalFloat32(dst []float32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.r == nil {
		return ErrUnseeded
	}
	for i := range dst {
		dst[i] = float32(r.r.NormFloat64())
	}
	return nil
}
