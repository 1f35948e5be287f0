// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package bbq

import (
	"errors"

	"code.hybscloud.com/iox"
)

// ErrWouldBlock indicates the operation cannot complete within its budget.
//
// For Enqueue: the queue is full (backpressure)
// For Dequeue/Peek: the queue is empty (no data available)
// For the Timeout forms: the deadline expired before the operation could
// complete; the queue was not modified.
//
// ErrWouldBlock is a control flow signal, not a failure. The caller should
// retry later (with backoff or a longer budget) rather than propagating
// the error.
//
// This is an alias for [iox.ErrWouldBlock] for ecosystem consistency.
var ErrWouldBlock = iox.ErrWouldBlock

// ErrFull is returned by Add when the queue is at capacity. Unlike
// ErrWouldBlock it marks a broken expectation: the caller asserted there
// was room.
var ErrFull = errors.New("bbq: queue full")

// ErrEmpty is returned by Take when the queue has no elements. The
// mirror of ErrFull: the caller asserted there was data.
var ErrEmpty = errors.New("bbq: queue empty")

// ErrNilElement is returned by every insertion form when the element
// pointer is nil. The queue is never partially mutated.
var ErrNilElement = errors.New("bbq: nil element")

// IsWouldBlock reports whether err indicates the operation would block
// (or timed out waiting). Delegates to [iox.IsWouldBlock] for wrapped
// error support.
func IsWouldBlock(err error) bool {
	return iox.IsWouldBlock(err)
}

// IsSemantic reports whether err is a control flow signal (not a failure).
// Delegates to [iox.IsSemantic].
func IsSemantic(err error) bool {
	return iox.IsSemantic(err)
}

// IsNonFailure reports whether err represents a non-failure condition.
// Delegates to [iox.IsNonFailure].
func IsNonFailure(err error) bool {
	return iox.IsNonFailure(err)
}
