package engine

import (
	"reflect"
	"sync"
)

// stateCell holds the engine's current state.
//
// Only the dispatch loop writes; State may read from any goroutine.
type stateCell[S any] struct {
	mu    sync.RWMutex
	value S
}

func (c *stateCell[S]) load() S {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

func (c *stateCell[S]) store(v S) {
	c.mu.Lock()
	c.value = v
	c.mu.Unlock()
}

// DeepEqual is the default change detector: structural equality, so two
// distinct values with the same contents do not count as a change.
func DeepEqual[S any](a, b S) bool {
	return reflect.DeepEqual(a, b)
}
