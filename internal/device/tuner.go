package device

import (
	"sync"
	"time"

	"k8s.io/klog/v2"
)

// Tuner caches a kernel variant per problem key. With autotuning enabled the
// first request for a key runs every candidate once and keeps the fastest;
// otherwise the first candidate is taken. Either way the first request for a
// key is the one-time cost warm-up iterations exist to absorb.
type Tuner struct {
	autotune bool

	mu      sync.Mutex
	choices map[string]int
}

// NewTuner returns an empty cache.
func NewTuner(autotune bool) *Tuner {
	return &Tuner{autotune: autotune, choices: make(map[string]int)}
}

// Autotune reports whether candidates are benchmarked.
func (t *Tuner) Autotune() bool { return t.autotune }

// Select returns the cached choice for key, choosing one on first use.
// run executes the kernel with a given candidate and is only called while tuning.
func (t *Tuner) Select(key string, candidates []int, run func(choice int)) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.choices[key]; ok {
		return c
	}
	if len(candidates) == 0 {
		return 0
	}

	best := candidates[0]
	if t.autotune && run != nil && len(candidates) > 1 {
		var bestTime time.Duration
		for i, c := range candidates {
			start := time.Now()
			run(c)
			elapsed := time.Since(start)
			if i == 0 || elapsed < bestTime {
				best, bestTime = c, elapsed
			}
		}
		klog.V(1).Infof("autotune %s: picked %d (%s)", key, best, bestTime)
	}
	t.choices[key] = best
	return best
}

// Len reports how many keys have a cached choice.
func (t *Tuner) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.choices)
}
