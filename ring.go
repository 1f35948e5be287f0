// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bbq

// ring is the circular slot array behind a Queue.
//
// takeIndex and putIndex advance modulo len(items); count disambiguates
// takeIndex == putIndex between empty and full. ring performs no
// synchronization of its own: every method must be called with the owning
// queue's lock held.
type ring[T any] struct {
	items     []T
	takeIndex int // next slot to dequeue; meaningful only when count > 0
	putIndex  int // next free slot; meaningful only when count < len(items)
	count     int
}

func newRing[T any](capacity int) ring[T] {
	return ring[T]{items: make([]T, capacity)}
}

func (r *ring[T]) cap() int    { return len(r.items) }
func (r *ring[T]) len() int    { return r.count }
func (r *ring[T]) empty() bool { return r.count == 0 }
func (r *ring[T]) full() bool  { return r.count == len(r.items) }

func (r *ring[T]) at(i int) T { return r.items[i] }

// enqueue stores v at putIndex and advances the cursor.
func (r *ring[T]) enqueue(v T) {
	r.items[r.putIndex] = v
	r.putIndex = r.inc(r.putIndex)
	r.count++
}

// dequeue extracts the slot at takeIndex, clears it so referenced memory
// can be collected, and advances the cursor.
func (r *ring[T]) dequeue() T {
	v := r.items[r.takeIndex]
	var zero T
	r.items[r.takeIndex] = zero
	r.takeIndex = r.inc(r.takeIndex)
	r.count--
	return v
}

// inc increments i mod capacity.
func (r *ring[T]) inc(i int) int {
	if i++; i >= len(r.items) {
		i = 0
	}
	return i
}

// dec decrements i mod capacity.
func (r *ring[T]) dec(i int) int {
	if i--; i < 0 {
		i = len(r.items) - 1
	}
	return i
}

// clearRange zeroes slots from i up to end, wrapping past the array end
// if needed. i == end means "full": the entire array is cleared.
func (r *ring[T]) clearRange(i, end int) {
	var zero T
	to := end
	if i >= end {
		to = len(r.items)
	}
	for {
		for ; i < to; i++ {
			r.items[i] = zero
		}
		if to == end {
			return
		}
		i, to = 0, end
	}
}

// distanceNonEmpty returns the circular distance from i to j,
// disambiguating i == j to the full capacity; never returns 0.
func (r *ring[T]) distanceNonEmpty(i, j int) int {
	d := j - i
	if d <= 0 {
		d += len(r.items)
	}
	return d
}

// slice copies the live elements, oldest first, into a fresh slice.
func (r *ring[T]) slice() []T {
	out := make([]T, 0, r.count)
	if r.count == 0 {
		return out
	}
	first := r.takeIndex + r.count
	if first > len(r.items) {
		first = len(r.items)
	}
	out = append(out, r.items[r.takeIndex:first]...)
	if rest := r.count - (first - r.takeIndex); rest > 0 {
		out = append(out, r.items[:rest]...)
	}
	return out
}
