// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bbq

// Builder creates queues with fluent configuration.
//
// Example:
//
//	// Plain bounded queue
//	q := bbq.New[int](1024).Build()
//
//	// Fair wake order for blocked producers/consumers
//	q := bbq.New[Request](64).Fair().Build()
//
//	// Pre-seeded, with equality for detached iterator removal
//	q := bbq.New[string](8).
//		Seed("a", "b", "c").
//		Equal(func(a, b string) bool { return a == b }).
//		Build()
type Builder[T any] struct {
	capacity int
	fair     bool
	same     func(a, b T) bool
	seed     []T
}

// New creates a queue builder with the given fixed capacity.
// Capacity is exact; it does not round up.
//
// Panics if capacity < 1.
func New[T any](capacity int) *Builder[T] {
	if capacity < 1 {
		panic("bbq: capacity must be >= 1")
	}
	return &Builder[T]{capacity: capacity}
}

// Fair selects strict first-blocked-first-woken order for goroutines
// parked on a full or empty queue. The default is best-effort order,
// which wakes the most recently parked goroutine first. Fairness never
// affects the FIFO order of elements.
func (b *Builder[T]) Fair() *Builder[T] {
	b.fair = true
	return b
}

// Equal supplies an equality function. It is only consulted when a
// detached iterator's Remove must verify that the slot it remembers
// still holds the element it returned; without one, such removals
// report false. Not needed for the comparable-element helpers Remove
// and Contains.
func (b *Builder[T]) Equal(same func(a, b T) bool) *Builder[T] {
	b.same = same
	return b
}

// Seed sets the queue's initial contents, in order, oldest first.
//
// Build panics if the seed is longer than the capacity.
func (b *Builder[T]) Seed(items ...T) *Builder[T] {
	b.seed = items
	return b
}

// Build creates the configured queue.
func (b *Builder[T]) Build() *Queue[T] {
	if len(b.seed) > b.capacity {
		panic("bbq: seed exceeds capacity")
	}
	q := &Queue[T]{
		ring:     newRing[T](b.capacity),
		notEmpty: newWaitq(b.fair),
		notFull:  newWaitq(b.fair),
		same:     b.same,
	}
	for i := range b.seed {
		q.ring.enqueue(b.seed[i])
	}
	return q
}

// NewQueue creates an unfair queue with the given capacity; shorthand
// for New[T](capacity).Build().
func NewQueue[T any](capacity int) *Queue[T] {
	return New[T](capacity).Build()
}
