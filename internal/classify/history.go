package classify

import (
	"sync"

	"github.com/ocularqa/ocular/api/schemas"
)

// History is a bounded, concurrency-safe record of classification results.
// Once the cap is exceeded the oldest entry is evicted, so a long-running
// session cannot grow memory without bound.
type History struct {
	mu      sync.Mutex
	cap     int
	results []schemas.ClassificationResult
}

// NewHistory creates a history bounded at cap entries. A cap below one
// disables recording entirely.
func NewHistory(cap int) *History {
	return &History{cap: cap}
}

// Append records a result, evicting the oldest entry when over cap.
func (h *History) Append(result schemas.ClassificationResult) {
	if h.cap < 1 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	h.results = append(h.results, result)
	if len(h.results) > h.cap {
		h.results = h.results[len(h.results)-h.cap:]
	}
}

// Len returns the number of recorded results.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.results)
}

// Last returns the most recent result, if any.
func (h *History) Last() (schemas.ClassificationResult, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.results) == 0 {
		return schemas.ClassificationResult{}, false
	}
	return h.results[len(h.results)-1], true
}

// Snapshot copies the recorded results, oldest first.
func (h *History) Snapshot() []schemas.ClassificationResult {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]schemas.ClassificationResult, len(h.results))
	copy(out, h.results)
	return out
}
