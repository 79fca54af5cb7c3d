package app

import (
	"math/rand/v2"
	"sync"
)

// lockedRand делает *rand.Rand безопасным для параллельных сборок расписаний.
type lockedRand struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func newLockedRand(rnd *rand.Rand) *lockedRand {
	return &lockedRand{rnd: rnd}
}

func (r *lockedRand) IntN(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rnd.IntN(n)
}
