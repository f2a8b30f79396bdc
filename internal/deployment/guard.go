package deployment

import "sync"

// guard tracks which subscription ids have a run in flight.
type guard struct {
	mu     sync.Mutex
	active map[int]struct{}
}

func newGuard() *guard {
	return &guard{active: make(map[int]struct{})}
}

// acquire claims id, reporting false if it is already claimed.
func (g *guard) acquire(id int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.active[id]; busy {
		return false
	}
	g.active[id] = struct{}{}
	return true
}

func (g *guard) release(id int) {
	g.mu.Lock()
	delete(g.active, id)
	g.mu.Unlock()
}

func (g *guard) held(id int) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, busy := g.active[id]
	return busy
}
