// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bbq

import (
	"context"
	"time"

	"github.com/eapache/queue"
)

// waiter is one parked goroutine. The channel carries the wakeup token
// and is buffered so a signaler never blocks while holding the lock.
type waiter struct {
	ch       chan struct{}
	signaled bool // token was handed to this waiter
	aborted  bool // waiter gave up (cancelled or timed out) before a token arrived
}

// waitq is a set of goroutines parked on one condition ("not empty" or
// "not full"). All fields are guarded by the owning queue's mutex.
//
// Wake order is the fairness policy: fair queues hand the token to the
// longest-parked waiter (strict FIFO, backed by an eapache ring queue);
// unfair queues hand it to the most recently parked one, which is the
// cheapest to resume. The policy decides which goroutine wakes first,
// never the FIFO order of elements.
type waitq struct {
	fair    bool
	fifo    *queue.Queue // fair mode
	lifo    []*waiter    // unfair mode
	live    int          // parked waiters that have neither aborted nor been signaled
	aborted int          // fair mode: abandoned records still in fifo
}

func newWaitq(fair bool) waitq {
	if fair {
		return waitq{fair: true, fifo: queue.New()}
	}
	return waitq{}
}

func (wq *waitq) park() *waiter {
	w := &waiter{ch: make(chan struct{}, 1)}
	if wq.fair {
		wq.fifo.Add(w)
	} else {
		wq.lifo = append(wq.lifo, w)
	}
	wq.live++
	return w
}

func (wq *waitq) pop() *waiter {
	if wq.fair {
		if wq.fifo.Length() == 0 {
			return nil
		}
		return wq.fifo.Remove().(*waiter)
	}
	n := len(wq.lifo)
	if n == 0 {
		return nil
	}
	w := wq.lifo[n-1]
	wq.lifo[n-1] = nil
	wq.lifo = wq.lifo[:n-1]
	return w
}

// signal hands the wakeup token to one parked waiter, if any. Aborted
// records that slipped past remove are reclaimed here.
func (wq *waitq) signal() {
	for {
		w := wq.pop()
		if w == nil {
			return
		}
		if w.aborted {
			if wq.fair {
				wq.aborted--
			}
			continue
		}
		w.signaled = true
		wq.live--
		w.ch <- struct{}{}
		return
	}
}

// remove reclaims an aborted waiter's record so a stalled queue cannot
// accumulate dead entries from timed-retry loops. Unfair mode unlinks in
// place; the fair FIFO has no random access, so dead records are counted
// and the whole queue compacted once they outnumber the live ones.
func (wq *waitq) remove(w *waiter) {
	if !wq.fair {
		for i := len(wq.lifo) - 1; i >= 0; i-- {
			if wq.lifo[i] == w {
				copy(wq.lifo[i:], wq.lifo[i+1:])
				wq.lifo[len(wq.lifo)-1] = nil
				wq.lifo = wq.lifo[:len(wq.lifo)-1]
				return
			}
		}
		return
	}
	wq.aborted++
	if wq.aborted > wq.live {
		n := wq.fifo.Length()
		for range n {
			x := wq.fifo.Remove().(*waiter)
			if !x.aborted {
				wq.fifo.Add(x)
			}
		}
		wq.aborted = 0
	}
}

func (wq *waitq) hasWaiters() bool { return wq.live > 0 }

// wait parks the caller on wq until a token arrives, ctx is cancelled, or
// the deadline channel fires. Called with q.mu held; the lock is released
// while parked and reacquired before returning, so the caller must
// re-check its predicate in a loop: a token only means the condition held
// at signal time, and another goroutine may have consumed it since.
//
// A timed-out or cancelled waiter that lost the race with its own wakeup
// forwards the token to the next waiter so no signal is swallowed.
func (q *Queue[T]) wait(wq *waitq, ctx context.Context, deadline <-chan time.Time) error {
	w := wq.park()
	q.mu.Unlock()

	var done <-chan struct{}
	if ctx != nil {
		done = ctx.Done()
	}
	var err error
	select {
	case <-w.ch:
	case <-done:
		err = ctx.Err()
	case <-deadline:
		err = ErrWouldBlock
	}

	q.mu.Lock()
	if err != nil {
		if w.signaled {
			// The token raced in anyway; pass it on.
			wq.signal()
		} else {
			w.aborted = true
			wq.live--
			wq.remove(w)
		}
	}
	return err
}
