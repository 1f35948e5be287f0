// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bbq

import (
	"context"
	"time"
)

// Producer is the interface for the try-immediate enqueue form. The
// element is passed by pointer to avoid copying large structs; the queue
// stores a copy of the pointed-to value, so the original can be modified
// after Enqueue returns.
//
// The signature is shared with the non-blocking queues of this ecosystem,
// so a *Queue can stand in wherever one of those is produced into.
type Producer[T any] interface {
	// Enqueue adds an element to the queue (non-blocking).
	// Returns nil on success, ErrWouldBlock if the queue is full.
	Enqueue(elem *T) error
}

// Consumer is the interface for the try-immediate dequeue form. The
// element is returned by value; the vacated slot is cleared so referenced
// objects can be collected.
type Consumer[T any] interface {
	// Dequeue removes and returns an element from the queue (non-blocking).
	// Returns (zero-value, ErrWouldBlock) if the queue is empty.
	Dequeue() (T, error)
}

// BlockingProducer extends Producer with the waiting insertion forms.
type BlockingProducer[T any] interface {
	Producer[T]

	// EnqueueContext blocks while the queue is full, until the element is
	// stored or ctx is cancelled.
	EnqueueContext(ctx context.Context, elem *T) error

	// EnqueueTimeout blocks while the queue is full, up to timeout.
	// Returns ErrWouldBlock when the budget is exhausted.
	EnqueueTimeout(elem *T, timeout time.Duration) error
}

// BlockingConsumer extends Consumer with the waiting removal forms.
type BlockingConsumer[T any] interface {
	Consumer[T]

	// DequeueContext blocks while the queue is empty, until an element
	// arrives or ctx is cancelled.
	DequeueContext(ctx context.Context) (T, error)

	// DequeueTimeout blocks while the queue is empty, up to timeout.
	// Returns (zero-value, ErrWouldBlock) when the budget is exhausted.
	DequeueTimeout(timeout time.Duration) (T, error)
}
