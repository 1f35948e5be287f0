// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bbq_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/bbq"
	"code.hybscloud.com/iox"
)

// =============================================================================
// Test Helpers
// =============================================================================

// retryWithTimeout retries f until it returns true or timeout expires.
// Reports failure with the given message if timeout is reached.
func retryWithTimeout(t *testing.T, timeout time.Duration, f func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	backoff := iox.Backoff{}
	for !f() {
		if time.Now().After(deadline) {
			t.Fatalf("timeout after %v: %s", timeout, msg)
		}
		backoff.Wait()
	}
}

// waitForCount waits until counter reaches target or timeout expires.
func waitForCount(t *testing.T, timeout time.Duration, counter *atomix.Int64, target int64, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	backoff := iox.Backoff{}
	for counter.Load() < target {
		if time.Now().After(deadline) {
			t.Fatalf("timeout after %v: %s (got %d, want %d)", timeout, msg, counter.Load(), target)
		}
		backoff.Wait()
	}
}

// park gives a freshly launched goroutine time to block inside the queue.
// Blocked waiters are not externally observable, so ordering-sensitive
// tests stagger their waiters with this.
func park() { time.Sleep(50 * time.Millisecond) }

// =============================================================================
// Blocking Correctness
// =============================================================================

// TestBlockingEnqueueUnblocksOnDequeue checks the capacity-1 handoff:
// a blocking insert on a full queue completes only after a removal.
func TestBlockingEnqueueUnblocksOnDequeue(t *testing.T) {
	q := bbq.New[int](1).Seed(1).Build()

	var done atomix.Bool
	var enqErr error
	go func() {
		v := 2
		enqErr = q.EnqueueContext(context.Background(), &v)
		done.Store(true)
	}()

	park()
	if done.Load() {
		t.Fatal("EnqueueContext completed while the queue was full")
	}

	got, err := q.Dequeue()
	if err != nil || got != 1 {
		t.Fatalf("Dequeue: got (%d, %v), want (1, nil)", got, err)
	}
	retryWithTimeout(t, 5*time.Second, done.Load, "blocked producer never completed")
	if enqErr != nil {
		t.Fatalf("EnqueueContext: %v", enqErr)
	}
	got, err = q.Dequeue()
	if err != nil || got != 2 {
		t.Fatalf("Dequeue: got (%d, %v), want (2, nil)", got, err)
	}
}

// TestBlockingDequeueUnblocksOnEnqueue is the symmetric consumer case.
func TestBlockingDequeueUnblocksOnEnqueue(t *testing.T) {
	q := bbq.NewQueue[int](1)

	var done atomix.Bool
	var got int
	var deqErr error
	go func() {
		got, deqErr = q.DequeueContext(context.Background())
		done.Store(true)
	}()

	park()
	if done.Load() {
		t.Fatal("DequeueContext completed while the queue was empty")
	}

	v := 42
	if err := q.Enqueue(&v); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	retryWithTimeout(t, 5*time.Second, done.Load, "blocked consumer never completed")
	if deqErr != nil || got != 42 {
		t.Fatalf("DequeueContext: got (%d, %v), want (42, nil)", got, deqErr)
	}
}

// TestScenarioFullHandoff is the two-slot handoff: with ["a","b"] queued
// at capacity 2, a blocked put of "x" must complete after one take and
// leave exactly ["b","x"].
func TestScenarioFullHandoff(t *testing.T) {
	q := bbq.New[string](2).Seed("a", "b").Build()

	var done atomix.Bool
	go func() {
		x := "x"
		if err := q.EnqueueContext(context.Background(), &x); err != nil {
			t.Errorf("EnqueueContext: %v", err)
		}
		done.Store(true)
	}()

	park()
	if done.Load() {
		t.Fatal("EnqueueContext completed while the queue was full")
	}

	got, err := q.Dequeue()
	if err != nil || got != "a" {
		t.Fatalf("Dequeue: got (%q, %v), want (a, nil)", got, err)
	}
	retryWithTimeout(t, 5*time.Second, done.Load, "blocked producer never completed")

	want := []string{"b", "x"}
	s := q.Slice()
	if len(s) != 2 || s[0] != want[0] || s[1] != want[1] {
		t.Fatalf("contents: got %v, want %v", s, want)
	}
}

// =============================================================================
// Timeout Correctness
// =============================================================================

func TestEnqueueTimeoutExpires(t *testing.T) {
	q := bbq.New[string](1).Seed("x").Build()

	const budget = 100 * time.Millisecond
	v := "y"
	start := time.Now()
	err := q.EnqueueTimeout(&v, budget)
	elapsed := time.Since(start)

	if !errors.Is(err, bbq.ErrWouldBlock) {
		t.Fatalf("EnqueueTimeout: got %v, want ErrWouldBlock", err)
	}
	if elapsed < budget {
		t.Fatalf("EnqueueTimeout returned after %v, want >= %v", elapsed, budget)
	}
	// The queue was not modified
	s := q.Slice()
	if len(s) != 1 || s[0] != "x" {
		t.Fatalf("contents after timeout: got %v, want [x]", s)
	}
}

func TestDequeueTimeoutExpires(t *testing.T) {
	q := bbq.NewQueue[int](1)

	const budget = 100 * time.Millisecond
	start := time.Now()
	_, err := q.DequeueTimeout(budget)
	elapsed := time.Since(start)

	if !errors.Is(err, bbq.ErrWouldBlock) {
		t.Fatalf("DequeueTimeout: got %v, want ErrWouldBlock", err)
	}
	if elapsed < budget {
		t.Fatalf("DequeueTimeout returned after %v, want >= %v", elapsed, budget)
	}
	if q.Len() != 0 {
		t.Fatalf("Len after timeout: got %d, want 0", q.Len())
	}
}

func TestTimedEnqueueCompletesWithinBudget(t *testing.T) {
	q := bbq.New[int](1).Seed(1).Build()

	var done atomix.Bool
	var enqErr error
	go func() {
		v := 2
		enqErr = q.EnqueueTimeout(&v, 5*time.Second)
		done.Store(true)
	}()

	park()
	if _, err := q.Dequeue(); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	retryWithTimeout(t, 5*time.Second, done.Load, "timed producer never completed")
	if enqErr != nil {
		t.Fatalf("EnqueueTimeout: %v", enqErr)
	}
}

// =============================================================================
// Cancellation
// =============================================================================

func TestCancellationUnblocks(t *testing.T) {
	q := bbq.New[int](1).Seed(1).Build()
	ctx, cancel := context.WithCancel(context.Background())

	var done atomix.Bool
	var enqErr error
	go func() {
		v := 2
		enqErr = q.EnqueueContext(ctx, &v)
		done.Store(true)
	}()

	park()
	cancel()
	retryWithTimeout(t, 5*time.Second, done.Load, "cancelled producer never returned")
	if !errors.Is(enqErr, context.Canceled) {
		t.Fatalf("EnqueueContext: got %v, want context.Canceled", enqErr)
	}
	// Nothing was half-enqueued and the queue still works
	s := q.Slice()
	if len(s) != 1 || s[0] != 1 {
		t.Fatalf("contents after cancel: got %v, want [1]", s)
	}
	if _, err := q.Dequeue(); err != nil {
		t.Fatalf("Dequeue after cancel: %v", err)
	}
	v := 3
	if err := q.Enqueue(&v); err != nil {
		t.Fatalf("Enqueue after cancel: %v", err)
	}
}

func TestCancelledContextFailsFast(t *testing.T) {
	q := bbq.NewQueue[int](1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := 1
	if err := q.EnqueueContext(ctx, &v); !errors.Is(err, context.Canceled) {
		t.Fatalf("EnqueueContext on cancelled ctx: got %v, want context.Canceled", err)
	}
	if _, err := q.DequeueContext(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("DequeueContext on cancelled ctx: got %v, want context.Canceled", err)
	}
	if q.Len() != 0 {
		t.Fatalf("Len: got %d, want 0", q.Len())
	}
}

// TestCancelDoesNotStarveOtherWaiters parks two producers on a fair
// queue, cancels the first in line, and checks that the next wakeup
// reaches the surviving one instead of being swallowed.
func TestCancelDoesNotStarveOtherWaiters(t *testing.T) {
	q := bbq.New[int](1).Fair().Seed(0).Build()
	ctx1, cancel1 := context.WithCancel(context.Background())

	var doomed, survivor atomix.Bool
	var doomedErr error
	go func() {
		v := 1
		doomedErr = q.EnqueueContext(ctx1, &v)
		doomed.Store(true)
	}()
	park()
	go func() {
		v := 2
		if err := q.EnqueueContext(context.Background(), &v); err != nil {
			t.Errorf("survivor EnqueueContext: %v", err)
		}
		survivor.Store(true)
	}()
	park()

	cancel1()
	retryWithTimeout(t, 5*time.Second, doomed.Load, "cancelled producer never returned")
	if !errors.Is(doomedErr, context.Canceled) {
		t.Fatalf("cancelled producer: got %v, want context.Canceled", doomedErr)
	}

	// Free one slot; the wakeup must reach the survivor.
	if _, err := q.Dequeue(); err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	retryWithTimeout(t, 5*time.Second, survivor.Load, "surviving producer never completed")
	got, err := q.Dequeue()
	if err != nil || got != 2 {
		t.Fatalf("Dequeue: got (%d, %v), want (2, nil)", got, err)
	}
}

// TestManyTimedWaitersExpire floods a stalled queue with concurrent
// timed producers, lets every one expire, and checks the queue still
// signals correctly afterwards.
func TestManyTimedWaitersExpire(t *testing.T) {
	for _, fair := range []bool{false, true} {
		b := bbq.New[int](1).Seed(1)
		if fair {
			b = b.Fair()
		}
		q := b.Build()

		var wg sync.WaitGroup
		for i := range 32 {
			wg.Add(1)
			go func(v int) {
				defer wg.Done()
				if err := q.EnqueueTimeout(&v, 20*time.Millisecond); !errors.Is(err, bbq.ErrWouldBlock) {
					t.Errorf("fair=%v EnqueueTimeout: got %v, want ErrWouldBlock", fair, err)
				}
			}(i)
		}
		wg.Wait()

		// A fresh blocked producer must still be woken by a dequeue.
		var done atomix.Bool
		go func() {
			v := 99
			if err := q.EnqueueContext(context.Background(), &v); err != nil {
				t.Errorf("fair=%v EnqueueContext: %v", fair, err)
			}
			done.Store(true)
		}()
		park()
		if _, err := q.Dequeue(); err != nil {
			t.Fatalf("fair=%v Dequeue: %v", fair, err)
		}
		retryWithTimeout(t, 5*time.Second, done.Load, "producer after mass expiry never completed")
		got, err := q.Dequeue()
		if err != nil || got != 99 {
			t.Fatalf("fair=%v Dequeue: got (%d, %v), want (99, nil)", fair, got, err)
		}
	}
}

// =============================================================================
// Fairness
// =============================================================================

// TestFairWakeOrder parks producers in a known order on a fair queue and
// checks they are admitted first-blocked-first.
func TestFairWakeOrder(t *testing.T) {
	q := bbq.New[int](1).Fair().Seed(99).Build()

	var wg sync.WaitGroup
	for i := range 4 {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			if err := q.EnqueueContext(context.Background(), &v); err != nil {
				t.Errorf("producer %d: %v", v, err)
			}
		}(i)
		park()
	}

	got, err := q.Dequeue()
	if err != nil || got != 99 {
		t.Fatalf("Dequeue: got (%d, %v), want (99, nil)", got, err)
	}
	for want := range 4 {
		v, err := q.DequeueTimeout(5 * time.Second)
		if err != nil {
			t.Fatalf("DequeueTimeout(%d): %v", want, err)
		}
		if v != want {
			t.Fatalf("fair admission order: got %d, want %d", v, want)
		}
	}
	wg.Wait()
}

// TestUnfairWakeOrder checks the default policy admits the most recently
// blocked producer first.
func TestUnfairWakeOrder(t *testing.T) {
	q := bbq.New[int](1).Seed(99).Build()

	var wg sync.WaitGroup
	for i := range 3 {
		wg.Add(1)
		go func(v int) {
			defer wg.Done()
			if err := q.EnqueueContext(context.Background(), &v); err != nil {
				t.Errorf("producer %d: %v", v, err)
			}
		}(i)
		park()
	}

	got, err := q.Dequeue()
	if err != nil || got != 99 {
		t.Fatalf("Dequeue: got (%d, %v), want (99, nil)", got, err)
	}
	for _, want := range []int{2, 1, 0} {
		v, err := q.DequeueTimeout(5 * time.Second)
		if err != nil {
			t.Fatalf("DequeueTimeout: %v", err)
		}
		if v != want {
			t.Fatalf("unfair admission order: got %d, want %d", v, want)
		}
	}
	wg.Wait()
}

// =============================================================================
// Concurrent Churn
// =============================================================================

// TestConcurrentChurn runs producers and consumers through the blocking
// forms and checks every value is delivered exactly once while the
// capacity invariant holds at every sampled point.
func TestConcurrentChurn(t *testing.T) {
	const (
		numP, numC   = 4, 4
		itemsPerProd = 1000
		capacity     = 64
	)
	q := bbq.NewQueue[int](capacity)
	expectedTotal := numP * itemsPerProd
	seen := make([]atomix.Int32, expectedTotal)
	var consumed atomix.Int64

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	for p := range numP {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for s := range itemsPerProd {
				v := p*itemsPerProd + s
				if err := q.EnqueueContext(ctx, &v); err != nil {
					t.Errorf("producer %d: %v", p, err)
					return
				}
			}
		}(p)
	}
	for range numC {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if consumed.Load() >= int64(expectedTotal) {
					return
				}
				v, err := q.DequeueTimeout(100 * time.Millisecond)
				if err != nil {
					continue // empty; re-check the total
				}
				seen[v].Add(1)
				consumed.Add(1)
			}
		}()
	}

	// Sample the capacity invariant while the churn runs.
	for consumed.Load() < int64(expectedTotal) {
		if n := q.Len(); n < 0 || n > capacity {
			t.Fatalf("capacity invariant violated: Len=%d, capacity=%d", n, capacity)
		}
		if ctx.Err() != nil {
			t.Fatalf("churn timed out with %d/%d consumed", consumed.Load(), expectedTotal)
		}
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	for v := range expectedTotal {
		if n := seen[v].Load(); n != 1 {
			t.Fatalf("value %d delivered %d times, want exactly once", v, n)
		}
	}
	if q.Len() != 0 {
		t.Fatalf("Len after churn: got %d, want 0", q.Len())
	}
}

// TestFIFOUnderSingleProducer checks strict FIFO delivery through the
// blocking forms with one producer and one consumer.
func TestFIFOUnderSingleProducer(t *testing.T) {
	const total = 5000
	q := bbq.NewQueue[int](8)
	ctx := context.Background()

	go func() {
		for i := range total {
			v := i
			if err := q.EnqueueContext(ctx, &v); err != nil {
				t.Errorf("EnqueueContext: %v", err)
				return
			}
		}
	}()

	for want := range total {
		got, err := q.DequeueContext(ctx)
		if err != nil {
			t.Fatalf("DequeueContext(%d): %v", want, err)
		}
		if got != want {
			t.Fatalf("FIFO violated: got %d, want %d", got, want)
		}
	}
}
