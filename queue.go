// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bbq

import (
	"context"
	"math"
	"sync"
	"time"
)

// Queue is a bounded blocking FIFO queue backed by a circular array.
//
// One mutex guards all state; producers blocked on a full queue and
// consumers blocked on an empty one park on separate wait queues. Elements
// are always delivered in strict FIFO order regardless of the fairness
// setting, which only chooses the wake order of blocked goroutines.
//
// Every insertion form has a matching removal form:
//
//	Add / Take               assert readiness (ErrFull / ErrEmpty)
//	Enqueue / Dequeue        try-immediate (ErrWouldBlock)
//	EnqueueContext / DequeueContext   block until done or cancelled
//	EnqueueTimeout / DequeueTimeout   block up to a bound (ErrWouldBlock)
//
// Memory: n slots for capacity n plus O(1) per blocked goroutine and per
// live iterator.
type Queue[T any] struct {
	mu       sync.Mutex
	ring     ring[T]
	notEmpty waitq
	notFull  waitq
	itrs     *itrs[T] // nil unless iterators are (or recently were) active
	same     func(a, b T) bool
}

// Cap returns the fixed capacity.
func (q *Queue[T]) Cap() int { return q.ring.cap() }

// Len returns the number of elements currently queued.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.len()
}

// Free returns the remaining capacity. Another goroutine may consume it
// before the caller acts on the answer.
func (q *Queue[T]) Free() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.cap() - q.ring.len()
}

// Add inserts an element unconditionally.
// Returns ErrFull if the queue is full; the element is never dropped silently.
func (q *Queue[T]) Add(elem *T) error {
	if elem == nil {
		return ErrNilElement
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.full() {
		return ErrFull
	}
	q.enqueueLocked(*elem)
	return nil
}

// Enqueue adds an element without waiting. The element is copied into
// the queue's internal buffer, so the original can be modified after
// Enqueue returns. Returns ErrWouldBlock if the queue is full.
func (q *Queue[T]) Enqueue(elem *T) error {
	if elem == nil {
		return ErrNilElement
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.full() {
		return ErrWouldBlock
	}
	q.enqueueLocked(*elem)
	return nil
}

// EnqueueContext adds an element, waiting for space while the queue is
// full. Returns the context's error on cancellation; the element is never
// left half-enqueued and any wakeup already granted to this caller is
// forwarded to another waiter.
func (q *Queue[T]) EnqueueContext(ctx context.Context, elem *T) error {
	if elem == nil {
		return ErrNilElement
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.ring.full() {
		if err := q.wait(&q.notFull, ctx, nil); err != nil {
			return err
		}
	}
	q.enqueueLocked(*elem)
	return nil
}

// EnqueueTimeout adds an element, waiting up to timeout for space.
// Returns ErrWouldBlock once the budget is exhausted; the deadline spans
// all wakeups, so repeated signals cannot extend it.
func (q *Queue[T]) EnqueueTimeout(elem *T, timeout time.Duration) error {
	if elem == nil {
		return ErrNilElement
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.ring.full() {
		q.enqueueLocked(*elem)
		return nil
	}
	if timeout <= 0 {
		return ErrWouldBlock
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for q.ring.full() {
		if err := q.wait(&q.notFull, nil, timer.C); err != nil {
			return err
		}
	}
	q.enqueueLocked(*elem)
	return nil
}

// Take removes and returns the oldest element unconditionally.
// Returns (zero-value, ErrEmpty) if the queue is empty; like Add's
// ErrFull this marks a broken expectation rather than backpressure.
func (q *Queue[T]) Take() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.empty() {
		var zero T
		return zero, ErrEmpty
	}
	return q.dequeueLocked(), nil
}

// Dequeue removes and returns the oldest element without waiting.
// Returns (zero-value, ErrWouldBlock) if the queue is empty.
func (q *Queue[T]) Dequeue() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.empty() {
		var zero T
		return zero, ErrWouldBlock
	}
	return q.dequeueLocked(), nil
}

// DequeueContext removes and returns the oldest element, waiting while
// the queue is empty. Returns the context's error on cancellation.
func (q *Queue[T]) DequeueContext(ctx context.Context) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.ring.empty() {
		if err := q.wait(&q.notEmpty, ctx, nil); err != nil {
			return zero, err
		}
	}
	return q.dequeueLocked(), nil
}

// DequeueTimeout removes and returns the oldest element, waiting up to
// timeout. Returns (zero-value, ErrWouldBlock) once the budget is exhausted.
func (q *Queue[T]) DequeueTimeout(timeout time.Duration) (T, error) {
	var zero T
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.ring.empty() {
		return q.dequeueLocked(), nil
	}
	if timeout <= 0 {
		return zero, ErrWouldBlock
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for q.ring.empty() {
		if err := q.wait(&q.notEmpty, nil, timer.C); err != nil {
			return zero, err
		}
	}
	return q.dequeueLocked(), nil
}

// Peek returns the oldest element without removing it.
// Returns (zero-value, ErrWouldBlock) if the queue is empty.
func (q *Queue[T]) Peek() (T, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.empty() {
		var zero T
		return zero, ErrWouldBlock
	}
	return q.ring.at(q.ring.takeIndex), nil
}

// RemoveFunc removes the first element for which match returns true.
// Interior removal in a circular array shifts every element between the
// victim and the tail back by one, an O(capacity) operation; prefer
// RemoveIf for removing many elements at once. match must not call back
// into the queue.
func (q *Queue[T]) RemoveFunc(match func(T) bool) bool {
	if match == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if i, ok := q.findLocked(match); ok {
		q.removeAtLocked(i)
		return true
	}
	return false
}

// Remove removes the first element equal to v.
func Remove[T comparable](q *Queue[T], v T) bool {
	return q.RemoveFunc(func(e T) bool { return e == v })
}

// ContainsFunc reports whether any queued element satisfies match.
// match must not call back into the queue.
func (q *Queue[T]) ContainsFunc(match func(T) bool) bool {
	if match == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.findLocked(match)
	return ok
}

// Contains reports whether the queue holds an element equal to v.
func Contains[T comparable](q *Queue[T], v T) bool {
	return q.ContainsFunc(func(e T) bool { return e == v })
}

// RemoveIf removes every element for which pred returns true, in one
// locked pass, and reports whether anything was removed.
//
// With no live iterators this runs the bitmap fast path: one scan to find
// the first doomed element (no allocation when nothing matches), a marking
// scan over the doomed range, then a two-finger compaction. With live
// iterators it falls back to repeated tracked single removals so their
// cursors stay correct. pred must not call back into the queue.
func (q *Queue[T]) RemoveIf(pred func(T) bool) bool {
	if pred == nil {
		return false
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.itrs != nil {
		// Iterator-safe slow path: correctness over throughput.
		removed := false
		for {
			i, ok := q.findLocked(pred)
			if !ok {
				return removed
			}
			q.removeAtLocked(i)
			removed = true
		}
	}
	i, ok := q.findLocked(pred)
	if !ok {
		return false
	}
	q.bulkRemoveLocked(pred, i)
	return true
}

// Drain removes every element, oldest first, feeding each to fn.
// If fn returns an error the transfer stops with the rejected element
// still at the head of the queue; Drain returns the number transferred
// and that error. Queue invariants hold either way.
func (q *Queue[T]) Drain(fn func(T) error) (int, error) {
	return q.DrainN(fn, math.MaxInt)
}

// DrainN is Drain capped at max elements.
func (q *Queue[T]) DrainN(fn func(T) error, max int) (int, error) {
	if fn == nil {
		panic("bbq: nil drain destination")
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	r := &q.ring
	n := max
	if r.count < n {
		n = r.count
	}
	if n <= 0 {
		return 0, nil
	}
	take := r.takeIndex
	moved := 0
	var ferr error
	var zero T
	for moved < n {
		if ferr = fn(r.items[take]); ferr != nil {
			break
		}
		r.items[take] = zero
		take = r.inc(take)
		moved++
	}
	if moved > 0 {
		r.count -= moved
		wrapped := moved > take // the transfer crossed slot 0
		r.takeIndex = take
		if q.itrs != nil {
			if r.count == 0 {
				q.itrs.queueIsEmpty()
			} else if wrapped {
				q.itrs.takeIndexWrapped()
			}
		}
		for k := moved; k > 0 && q.notFull.hasWaiters(); k-- {
			q.notFull.signal()
		}
	}
	return moved, ferr
}

// Clear removes all elements in one locked pass.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	r := &q.ring
	k := r.count
	if k == 0 {
		return
	}
	r.clearRange(r.takeIndex, r.putIndex)
	r.takeIndex = r.putIndex
	r.count = 0
	if q.itrs != nil {
		q.itrs.queueIsEmpty()
	}
	for ; k > 0 && q.notFull.hasWaiters(); k-- {
		q.notFull.signal()
	}
}

// Slice copies the queued elements, oldest first, into a fresh slice.
func (q *Queue[T]) Slice() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ring.slice()
}

// ForEach calls fn for every queued element, oldest first, under the
// lock. fn must not call back into the queue.
func (q *Queue[T]) ForEach(fn func(T)) {
	if fn == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	r := &q.ring
	if r.count == 0 {
		return
	}
	i, end := r.takeIndex, r.putIndex
	to := end
	if i >= end {
		to = len(r.items)
	}
	for {
		for ; i < to; i++ {
			fn(r.items[i])
		}
		if to == end {
			return
		}
		i, to = 0, end
	}
}

// enqueueLocked writes at putIndex and wakes one consumer.
func (q *Queue[T]) enqueueLocked(v T) {
	q.ring.enqueue(v)
	q.notEmpty.signal()
}

// dequeueLocked extracts at takeIndex, tells the iterator tracker, and
// wakes one producer.
func (q *Queue[T]) dequeueLocked() T {
	v := q.ring.dequeue()
	if q.itrs != nil {
		q.itrs.elementDequeued()
	}
	q.notFull.signal()
	return v
}

// findLocked scans the live range from takeIndex toward putIndex,
// handling the wraparound split, and returns the absolute index of the
// first element satisfying match.
func (q *Queue[T]) findLocked(match func(T) bool) (int, bool) {
	r := &q.ring
	if r.count == 0 {
		return 0, false
	}
	i, end := r.takeIndex, r.putIndex
	to := end
	if i >= end {
		to = len(r.items)
	}
	for {
		for ; i < to; i++ {
			if match(r.items[i]) {
				return i, true
			}
		}
		if to == end {
			return 0, false
		}
		i, to = 0, end
	}
}

// removeAtLocked deletes the element at the given absolute index.
// Removing the head just advances takeIndex; an interior remove slides
// every later element back by one and reports the index to the tracker
// so iterator cursors follow the shift.
func (q *Queue[T]) removeAtLocked(removeIndex int) {
	r := &q.ring
	if removeIndex == r.takeIndex {
		var zero T
		r.items[r.takeIndex] = zero
		r.takeIndex = r.inc(r.takeIndex)
		r.count--
		if q.itrs != nil {
			q.itrs.elementDequeued()
		}
	} else {
		for i := removeIndex; ; {
			pred := i
			i = r.inc(i)
			if i == r.putIndex {
				var zero T
				r.items[pred] = zero
				r.putIndex = pred
				break
			}
			r.items[pred] = r.items[i]
		}
		r.count--
		if q.itrs != nil {
			q.itrs.removedAt(removeIndex)
		}
	}
	q.notFull.signal()
}

// bulkRemoveLocked expunges every element satisfying pred, given the
// absolute index of the first one. A bitmap sized to the doomed range
// marks victims in a second scan; a two-finger pass (reader ahead of
// writer) then compacts the survivors across the possibly wrapped live
// range. Freed slots are handed to blocked producers.
func (q *Queue[T]) bulkRemoveLocked(pred func(T) bool, beg int) {
	r := &q.ring
	es := r.items
	capacity := len(es)
	end := r.putIndex

	deathRow := nBits(r.distanceNonEmpty(beg, end))
	deathRow[0] = 1 // beg itself

	// Marking scan. k rebases absolute indices onto the bitmap.
	{
		i, k := beg+1, beg
		to := end
		if i > end {
			to = capacity
		}
		for {
			for ; i < to; i++ {
				if pred(es[i]) {
					setBit(deathRow, i-k)
				}
			}
			if to == end {
				break
			}
			i, to, k = 0, end, k-capacity
		}
	}

	// Compaction: reader i, writer w.
	w := beg
	{
		i, k := beg+1, beg
		to := end
		if i > end {
			to = capacity
		}
		for {
			// i and w on the same leg, i > w.
			for ; i < to; i++ {
				if isClear(deathRow, i-k) {
					es[w] = es[i]
					w++
				}
			}
			if to == end {
				break
			}
			// w still on the first leg, i on the second.
			i, to, k = 0, end, k-capacity
			for ; i < to && w < capacity; i++ {
				if isClear(deathRow, i-k) {
					es[w] = es[i]
					w++
				}
			}
			if i >= to {
				if w == capacity {
					w = 0 // writer filled the array edge exactly
				}
				break
			}
			w = 0 // writer rejoins the second leg
		}
	}

	removed := r.distanceNonEmpty(w, end)
	r.count -= removed
	r.putIndex = w
	r.clearRange(w, end)
	for ; removed > 0 && q.notFull.hasWaiters(); removed-- {
		q.notFull.signal()
	}
}

func nBits(n int) []uint64 { return make([]uint64, (n-1)>>6+1) }

func setBit(bits []uint64, i int) { bits[i>>6] |= 1 << (uint(i) & 63) }

func isClear(bits []uint64, i int) bool { return bits[i>>6]&(1<<(uint(i)&63)) == 0 }
