package reconcile

import "sync"

// Guard serializes reconciliation against completions. Completions hold the shared side while
// they replace a file in the media root; a reconciliation pass holds the exclusive side for
// its whole scan.
type Guard struct {
	mu sync.RWMutex
}

func NewGuard() *Guard {
	return &Guard{}
}

// Shared acquires the completion side and returns its release function.
func (g *Guard) Shared() func() {
	g.mu.RLock()

	return g.mu.RUnlock
}

// Exclusive acquires the reconciliation side and returns its release function.
func (g *Guard) Exclusive() func() {
	g.mu.Lock()

	return g.mu.Unlock
}
