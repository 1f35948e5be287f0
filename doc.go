// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package bbq provides a bounded blocking FIFO queue.
//
// Where the lock-free queues of this ecosystem spin, bbq parks: a single
// mutex guards a fixed-capacity circular array, and goroutines blocked on
// a full or empty queue sleep on per-condition wait queues until signaled.
// The price is a lock; the payoff is blocking, timed, and cancellable
// operation forms, weakly consistent iteration, and interior removal,
// none of which a lock-free ring can offer.
//
// # Quick Start
//
//	q := bbq.NewQueue[Event](1024)
//
//	// Try forms (never block)
//	err := q.Enqueue(&ev)            // ErrWouldBlock when full
//	ev, err := q.Dequeue()           // ErrWouldBlock when empty
//
//	// Blocking forms
//	err = q.EnqueueContext(ctx, &ev) // waits for space
//	ev, err = q.DequeueContext(ctx)  // waits for data
//
//	// Timed forms
//	err = q.EnqueueTimeout(&ev, time.Second)
//	ev, err = q.DequeueTimeout(time.Second)
//
// Configuration goes through the builder:
//
//	q := bbq.New[Job](64).Fair().Build()           // FIFO wake order
//	q := bbq.New[int](8).Seed(1, 2, 3).Build()     // initial contents
//
// # Blocking Model
//
// All four insertion forms share one failure ladder on a full queue: Add
// returns ErrFull at once, Enqueue returns ErrWouldBlock at once,
// EnqueueTimeout gives the queue a bounded chance, EnqueueContext waits
// until cancelled. The removal forms mirror this on an empty queue, with
// Take returning ErrEmpty as Add's counterpart.
//
// A cancelled or timed-out waiter never leaves an element half-enqueued,
// and a wakeup it had already been granted is passed to the next waiter.
// The Fair option wakes blocked goroutines strictly first-blocked-first;
// by default the most recently blocked goroutine is woken first. Elements
// are delivered in FIFO order either way.
//
// # Iteration
//
// Iterators are weakly consistent: they never fail because the queue
// changed underneath them, they reflect some valid state of the queue,
// and they tolerate concurrent takes, interior removals, and head
// wraparound while they are live.
//
//	for v := range q.All() { ... }
//
//	it := q.Iterator()
//	defer it.Close()
//	for v, ok := it.Next(); ok; v, ok = it.Next() {
//	    if stale(v) {
//	        it.Remove()
//	    }
//	}
//
// # Bulk Operations
//
//	q.RemoveIf(func(e Event) bool { return e.Expired() }) // bitmap compaction
//	n, err := q.Drain(func(e Event) error { return sink.Write(e) })
//	q.Clear()
//
// RemoveIf removes all matching elements in a single locked pass using a
// bitmap over the doomed range and a two-finger compaction, avoiding the
// quadratic cost of removing matches one at a time.
package bbq
