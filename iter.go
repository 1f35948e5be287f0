// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bbq

import "iter"

// Sentinel index values for iterator cursors.
const (
	itNone     = -1 // not available / undefined
	itRemoved  = -2 // removed by an operation other than this iterator's Remove
	itDetached = -3 // prevTakeIndex value for detached mode
)

const (
	shortSweepProbes = 4
	longSweepProbes  = 16
)

// itrs links a queue to its live iterators so structural mutations can
// keep their cursors correct. A circular array is unlike a linked
// structure: dequeues advance everyone's frame of reference and interior
// removes physically shift elements, so without these callbacks an
// iterator would lose its place or (re)report elements it shouldn't.
//
// The registry is a singly linked list of strong references with an
// explicit Close hook on the iterator, swept opportunistically: a bounded
// number of probes per sweep, escalating after a stale entry is found.
// Entries are expunged when their iterator reports detached. The whole
// structure is discarded whenever the queue becomes empty or the last
// tracked iterator detaches. Accessed only under the queue lock.
type itrs[T any] struct {
	q       *Queue[T]
	cycles  int // times takeIndex has wrapped around to 0
	head    *itrNode[T]
	sweeper *itrNode[T] // resume point for the next sweep
}

type itrNode[T any] struct {
	it   *Iterator[T]
	next *itrNode[T]
}

func (s *itrs[T]) register(it *Iterator[T]) {
	s.head = &itrNode[T]{it: it, next: s.head}
}

// doSomeSweeping expunges detached iterators, a few probes at a time.
// tryHarder starts in escalated mode because a stale entry is known to
// exist. Must not be reentered from the callbacks below.
func (s *itrs[T]) doSomeSweeping(tryHarder bool) {
	probes := shortSweepProbes
	if tryHarder {
		probes = longSweepProbes
	}
	var o *itrNode[T]
	p := s.head
	passedGo := true // limit the search to one full lap
	if s.sweeper != nil {
		o = s.sweeper
		p = o.next
		passedGo = false
	}
	for ; probes > 0; probes-- {
		if p == nil {
			if passedGo {
				break
			}
			o, p, passedGo = nil, s.head, true
		}
		next := p.next
		if p.it.isDetached() {
			probes = longSweepProbes // try harder
			p.it = nil
			p.next = nil
			if o == nil {
				s.head = next
				if next == nil {
					s.q.itrs = nil // nothing left to track
					return
				}
			} else {
				o.next = next
			}
		} else {
			o = p
		}
		p = next
	}
	if p == nil {
		s.sweeper = nil
	} else {
		s.sweeper = o
	}
}

// takeIndexWrapped bumps the wrap cycle and notifies every iterator;
// ones that report stale are unlinked.
func (s *itrs[T]) takeIndexWrapped() {
	s.cycles++
	var o *itrNode[T]
	for p := s.head; p != nil; {
		next := p.next
		if p.it.takeIndexWrapped() {
			p.it = nil
			p.next = nil
			if o == nil {
				s.head = next
			} else {
				o.next = next
			}
		} else {
			o = p
		}
		p = next
	}
	if s.head == nil {
		s.q.itrs = nil
	}
}

// removedAt reports an interior remove to every iterator; ones that
// report stale are unlinked.
func (s *itrs[T]) removedAt(removedIndex int) {
	var o *itrNode[T]
	for p := s.head; p != nil; {
		next := p.next
		if p.it.removedAt(removedIndex) {
			p.it = nil
			p.next = nil
			if o == nil {
				s.head = next
			} else {
				o.next = next
			}
		} else {
			o = p
		}
		p = next
	}
	if s.head == nil {
		s.q.itrs = nil
	}
}

// queueIsEmpty shuts every iterator down and discards the registry.
func (s *itrs[T]) queueIsEmpty() {
	for p := s.head; p != nil; {
		next := p.next
		p.it.shutdown()
		p.it = nil
		p.next = nil
		p = next
	}
	s.head = nil
	s.q.itrs = nil
}

// elementDequeued is the post-dequeue hook: an empty queue detaches
// everyone, a takeIndex back at 0 is a wrap.
func (s *itrs[T]) elementDequeued() {
	if s.q.ring.count == 0 {
		s.queueIsEmpty()
	} else if s.q.ring.takeIndex == 0 {
		s.takeIndexWrapped()
	}
}

// Iterator walks the queue from head to tail under the weak-consistency
// contract: it never fails because of concurrent mutation and reflects
// some valid state of the queue, but not necessarily every individual
// put and take.
//
// The iterator reads one element ahead so a successful Next precheck can
// always deliver. It switches into detached mode, and stops costing the
// queue anything, once all its indices are invalid or the first Next
// miss occurs; Close detaches it eagerly and should be called when an
// iteration is abandoned early.
type Iterator[T any] struct {
	q *Queue[T]

	cursor        int // where to look for nextItem; itNone at end
	nextIndex     int // index of nextItem; itNone or itRemoved
	lastRet       int // index of the last returned element; itNone or itRemoved
	prevTakeIndex int // takeIndex at last sync; itDetached when detached
	prevCycles    int // wrap count at last sync

	nextItem T // read-ahead element returned by the next call to Next
	nextOK   bool
	lastItem T // last returned element, kept only in detached mode for Remove
	lastOK   bool
}

// Iterator returns a new iterator positioned at the head. Iterators over
// an empty queue are born detached and cost nothing.
func (q *Queue[T]) Iterator() *Iterator[T] {
	it := &Iterator[T]{q: q, lastRet: itNone}
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.ring.count == 0 {
		it.cursor = itNone
		it.nextIndex = itNone
		it.prevTakeIndex = itDetached
		return it
	}
	takeIndex := q.ring.takeIndex
	it.prevTakeIndex = takeIndex
	it.nextIndex = takeIndex
	it.nextItem = q.ring.at(takeIndex)
	it.nextOK = true
	it.cursor = it.incCursor(takeIndex)
	if q.itrs == nil {
		q.itrs = &itrs[T]{q: q}
		q.itrs.register(it)
	} else {
		q.itrs.register(it) // register before sweeping
		q.itrs.doSomeSweeping(false)
	}
	it.prevCycles = q.itrs.cycles
	return it
}

// All returns a lazy sequence over the queue's elements. Each range
// statement starts a fresh weakly consistent iteration; the underlying
// iterator is closed when the loop ends, so an exhausted sequence is not
// resumable.
func (q *Queue[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		it := q.Iterator()
		defer it.Close()
		for {
			v, ok := it.Next()
			if !ok {
				return
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Next returns the next element in head-to-tail order, or ok == false
// when the iteration is exhausted.
func (it *Iterator[T]) Next() (T, bool) {
	if !it.nextOK {
		it.noNext()
		var zero T
		return zero, false
	}
	e := it.nextItem
	q := it.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if !it.isDetached() {
		it.incorporateDequeues()
	}
	it.lastRet = it.nextIndex
	if cursor := it.cursor; cursor >= 0 {
		it.nextIndex = cursor
		it.nextItem = q.ring.at(cursor)
		it.nextOK = true
		it.cursor = it.incCursor(cursor)
	} else {
		it.nextIndex = itNone
		var zero T
		it.nextItem = zero
		it.nextOK = false
		if it.lastRet == itRemoved {
			it.detach()
		}
	}
	return e, true
}

// Remove removes the element most recently returned by Next, reporting
// whether the queue changed. It returns false when Next has not been
// called, when the element was already removed by someone else, or, in
// detached mode without an Equal function configured, when identity
// cannot be verified.
func (it *Iterator[T]) Remove() bool {
	q := it.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if !it.isDetached() {
		it.incorporateDequeues() // might update lastRet or detach
	}
	lastRet := it.lastRet
	it.lastRet = itNone
	removed := false
	if lastRet >= 0 {
		if !it.isDetached() {
			q.removeAtLocked(lastRet)
			removed = true
		} else if it.lastOK {
			// Detached: the saved index may be stale, so only remove when
			// the slot is still live and holds the element we handed out.
			// Dead slots are zeroed, so the equality check alone would
			// false-match a zero-valued element; the distance check keeps
			// lastRet inside [takeIndex, takeIndex+count).
			lastItem := it.lastItem
			var zero T
			it.lastItem = zero
			it.lastOK = false
			if q.same != nil && q.ring.count > 0 &&
				distance(lastRet, q.ring.takeIndex, len(q.ring.items)) < q.ring.count &&
				q.same(q.ring.at(lastRet), lastItem) {
				q.removeAtLocked(lastRet)
				removed = true
			}
		}
	}
	// lastRet == itRemoved: the element went away through another
	// operation; nothing to do.
	if it.cursor < 0 && it.nextIndex < 0 {
		it.detach()
	}
	return removed
}

// Close detaches the iterator from the queue's tracker. Abandoned
// iterators are swept out eventually anyway; closing promptly keeps the
// tracker list short. Safe to call more than once.
func (it *Iterator[T]) Close() {
	q := it.q
	q.mu.Lock()
	defer q.mu.Unlock()
	it.cursor = itNone
	it.nextIndex = itNone
	it.lastRet = itNone
	var zero T
	it.nextItem = zero
	it.nextOK = false
	it.lastItem = zero
	it.lastOK = false
	it.detach()
}

func (it *Iterator[T]) isDetached() bool { return it.prevTakeIndex < 0 }

func (it *Iterator[T]) incCursor(index int) int {
	index = it.q.ring.inc(index)
	if index == it.q.ring.putIndex {
		index = itNone
	}
	return index
}

// noNext runs on the first exhausted Next: fold in dequeues one last
// time, remember the last returned element so a late Remove can still
// verify it, and detach.
func (it *Iterator[T]) noNext() {
	q := it.q
	q.mu.Lock()
	defer q.mu.Unlock()
	if it.isDetached() {
		return
	}
	it.incorporateDequeues() // might update lastRet
	if it.lastRet >= 0 {
		it.lastItem = q.ring.at(it.lastRet)
		it.lastOK = true
		it.detach()
	}
}

// shutdown tells the iterator the queue is empty, or that it has fallen
// hopelessly behind, so it should abandon iteration — except that a
// read-ahead element already promised by a Next precheck may still be
// delivered once.
func (it *Iterator[T]) shutdown() {
	it.cursor = itNone
	if it.nextIndex >= 0 {
		it.nextIndex = itRemoved
	}
	if it.lastRet >= 0 {
		it.lastRet = itRemoved
		var zero T
		it.lastItem = zero
		it.lastOK = false
	}
	it.prevTakeIndex = itDetached
	// nextItem is kept: the caller unlinks this iterator from the
	// tracker when convenient.
}

// removedAt recomputes the saved indices relative to an interior remove
// at removedIndex. An index at exactly the removed distance is
// invalidated; one further along follows the physical shift back by one.
// Reports whether the iterator should be unlinked.
func (it *Iterator[T]) removedAt(removedIndex int) bool {
	if it.isDetached() {
		return true
	}
	q := it.q
	takeIndex := q.ring.takeIndex
	prevTakeIndex := it.prevTakeIndex
	length := len(q.ring.items)

	cycleDiff := q.itrs.cycles - it.prevCycles
	if removedIndex < takeIndex {
		cycleDiff++
	}
	removedDistance := length*cycleDiff + (removedIndex - prevTakeIndex)

	cursor := it.cursor
	if cursor >= 0 {
		switch x := distance(cursor, prevTakeIndex, length); {
		case x == removedDistance:
			if cursor == q.ring.putIndex {
				cursor = itNone
				it.cursor = cursor
			}
		case x > removedDistance:
			cursor = q.ring.dec(cursor)
			it.cursor = cursor
		}
	}
	lastRet := it.lastRet
	if lastRet >= 0 {
		switch x := distance(lastRet, prevTakeIndex, length); {
		case x == removedDistance:
			lastRet = itRemoved
			it.lastRet = lastRet
		case x > removedDistance:
			lastRet = q.ring.dec(lastRet)
			it.lastRet = lastRet
		}
	}
	nextIndex := it.nextIndex
	if nextIndex >= 0 {
		switch x := distance(nextIndex, prevTakeIndex, length); {
		case x == removedDistance:
			nextIndex = itRemoved
			it.nextIndex = nextIndex
		case x > removedDistance:
			nextIndex = q.ring.dec(nextIndex)
			it.nextIndex = nextIndex
		}
	}
	if cursor < 0 && nextIndex < 0 && lastRet < 0 {
		it.prevTakeIndex = itDetached
		return true
	}
	return false
}

// takeIndexWrapped reacts to a head wraparound. More than one whole
// cycle behind means every element this iterator knew about is gone.
// Reports whether the iterator should be unlinked.
func (it *Iterator[T]) takeIndexWrapped() bool {
	if it.isDetached() {
		return true
	}
	if it.q.itrs.cycles-it.prevCycles > 1 {
		it.shutdown()
		return true
	}
	return false
}

// incorporateDequeues folds in every dequeue since this iterator last
// synchronized: (cycle delta)*capacity + (takeIndex delta). Saved indices
// that many dequeues have consumed are invalidated; this is what lets a
// long-idle iterator catch up on activity it never observed one call at
// a time.
func (it *Iterator[T]) incorporateDequeues() {
	q := it.q
	cycles := q.itrs.cycles
	prevCycles := it.prevCycles
	takeIndex := q.ring.takeIndex
	prevTakeIndex := it.prevTakeIndex
	if cycles == prevCycles && takeIndex == prevTakeIndex {
		return
	}
	length := len(q.ring.items)
	dequeues := int64(cycles-prevCycles)*int64(length) + int64(takeIndex-prevTakeIndex)

	if invalidated(it.lastRet, prevTakeIndex, dequeues, length) {
		it.lastRet = itRemoved
	}
	if invalidated(it.nextIndex, prevTakeIndex, dequeues, length) {
		it.nextIndex = itRemoved
	}
	if invalidated(it.cursor, prevTakeIndex, dequeues, length) {
		it.cursor = takeIndex
	}
	if it.cursor < 0 && it.nextIndex < 0 && it.lastRet < 0 {
		it.detach()
	} else {
		it.prevCycles = cycles
		it.prevTakeIndex = takeIndex
	}
}

// detach switches to detached mode and nudges the tracker to unlink.
func (it *Iterator[T]) detach() {
	if it.prevTakeIndex >= 0 {
		it.prevTakeIndex = itDetached
		it.q.itrs.doSomeSweeping(true)
	}
}

// invalidated reports whether index has been consumed by the given
// number of dequeues counted from prevTakeIndex.
func invalidated(index, prevTakeIndex int, dequeues int64, length int) bool {
	if index < 0 {
		return false
	}
	d := index - prevTakeIndex
	if d < 0 {
		d += length
	}
	return dequeues > int64(d)
}

// distance is the circular distance from prevTakeIndex forward to index.
func distance(index, prevTakeIndex, length int) int {
	d := index - prevTakeIndex
	if d < 0 {
		d += length
	}
	return d
}
