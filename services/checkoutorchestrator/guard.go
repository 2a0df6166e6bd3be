package checkoutorchestrator

import (
	"sync"
)

// attemptGuard serializes the mutating operations of one checkout attempt.
// It enforces two rules: at most one submit in flight, and last-request-wins
// for price previews.
type attemptGuard struct {
	mutex         sync.Mutex
	submitting    bool
	previewIssued int64
}

// beginSubmit reports whether the caller may submit. A false return means
// another submit is still in flight and this one must be rejected locally,
// before any network call is made.
func (g *attemptGuard) beginSubmit() bool {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if g.submitting {
		return false
	}
	g.submitting = true
	return true
}

func (g *attemptGuard) endSubmit() {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.submitting = false
}

// issuePreview hands out a monotonically increasing sequence number for a
// new preview request.
func (g *attemptGuard) issuePreview() int64 {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	g.previewIssued++
	return g.previewIssued
}

// applyPreview runs apply only if seq still identifies the most recently
// issued preview. A superseded response is discarded, so a slow early
// response can never overwrite the outcome of a later request.
func (g *attemptGuard) applyPreview(seq int64, apply func() error) (bool, error) {
	g.mutex.Lock()
	defer g.mutex.Unlock()

	if seq != g.previewIssued {
		return false, nil
	}
	return true, apply()
}

// guardRegistry holds one guard per checkout attempt.
type guardRegistry struct {
	mutex  sync.Mutex
	guards map[string]*attemptGuard
}

func newGuardRegistry() *guardRegistry {
	return &guardRegistry{
		guards: map[string]*attemptGuard{},
	}
}

func (r *guardRegistry) guardFor(attemptUID string) *attemptGuard {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	guard, found := r.guards[attemptUID]
	if !found {
		guard = &attemptGuard{}
		r.guards[attemptUID] = guard
	}
	return guard
}
