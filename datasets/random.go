package datasets

import (
	"math/rand"
	"sync"
)

// zipfMax caps Zipf draws at the largest integer a float64 holds exactly.
// Only draws below the caller's limit are ever kept, so the cap does not
// change the shape of the accepted distribution.
const zipfMax = 1 << 53

// lockedRand serializes access to a rand.Rand and the Zipf generator built
// on it, so one sampler can serve several goroutines.
type lockedRand struct {
	mu   sync.Mutex
	r    *rand.Rand
	zipf *rand.Zipf
}

// newLockedRand returns a source whose Zipf draws k >= 0 have
// P(k) ∝ (1+k)^-shape, i.e. a Zipf(shape) law shifted to start at 0.
func newLockedRand(seed int64, shape float64) *lockedRand {
	r := rand.New(rand.NewSource(seed))
	return &lockedRand{
		r:    r,
		zipf: rand.NewZipf(r, shape, 1, zipfMax),
	}
}

func (l *lockedRand) int63n(n int64) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Int63n(n)
}

func (l *lockedRand) intn(n int) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Intn(n)
}

// sample returns k distinct values of [0, n) in random order.
func (l *lockedRand) sample(n, k int) []int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Perm(n)[:k]
}

func (l *lockedRand) zipfUint64() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.zipf.Uint64()
}
