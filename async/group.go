package async

import (
	"fmt"
	"sync"
)

// Grouped collects n completions and delivers one aggregate outcome: the
// collected responses on all-success, or the first failure (subsequent
// failures are suppressed). Completions beyond n are a programming error.
type Grouped[T any] struct {
	mu        sync.Mutex
	remaining int
	results   []T
	firstErr  error
	done      Listener[[]T]
}

// NewGrouped builds a fan-in listener for exactly n completions; n must be
// positive.
func NewGrouped[T any](n int, done Listener[[]T]) *Grouped[T] {
	if n <= 0 {
		panic(fmt.Sprintf("grouped listener requires a positive count, got %d", n))
	}
	return &Grouped[T]{remaining: n, done: done}
}

func (g *Grouped[T]) OnResponse(v T) {
	g.mu.Lock()
	g.results = append(g.results, v)
	g.complete()
}

func (g *Grouped[T]) OnFailure(err error) {
	g.mu.Lock()
	if g.firstErr == nil {
		g.firstErr = err
	}
	g.complete()
}

// complete is called with the mutex held and releases it before invoking the
// final listener, so the callback may re-enter the group's owner freely.
func (g *Grouped[T]) complete() {
	g.remaining--
	if g.remaining > 0 {
		g.mu.Unlock()
		return
	}
	err := g.firstErr
	results := g.results
	g.mu.Unlock()
	if err != nil {
		g.done.OnFailure(err)
	} else {
		g.done.OnResponse(results)
	}
}
