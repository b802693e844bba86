package engine

import (
	"sync"

	"github.com/roach88/backchannel/internal/table"
)

// submission pairs a transaction with the identity it executes under.
type submission struct {
	Sender table.Identity
	Tx     Transaction
}

// txQueue is a thread-safe FIFO queue of pending submissions.
//
// The queue is unbounded: submission is fire-and-forget and must never
// block the caller, even under bursts of rapid-fire transactions from
// impatient clients.
//
// Thread-safety exists for external submitters (client sessions, CLI)
// while the Engine's Run loop dequeues. The queue uses a channel for
// signaling to enable context-aware waiting in the Run loop.
type txQueue struct {
	mu     sync.Mutex
	items  []submission
	closed bool
	signal chan struct{} // Signals item availability (buffered, size 1)
}

func newTxQueue() *txQueue {
	return &txQueue{
		items:  make([]submission, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a submission to the back of the queue.
// Thread-safe: may be called from any goroutine.
// Returns false if the queue is closed.
func (q *txQueue) Enqueue(s submission) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, s)

	// Non-blocking signal - buffer of 1 coalesces multiple signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue attempts to dequeue without blocking.
// Returns (submission{}, false) if the queue is empty.
func (q *txQueue) TryDequeue() (submission, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return submission{}, false
	}

	s := q.items[0]

	// Nil out the slot so the Transaction payload can be collected even
	// while the backing array is retained.
	q.items[0] = submission{}

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}

	return s, true
}

// Wait returns a channel that signals when items may be available.
// Use with select alongside ctx.Done in the Run loop.
func (q *txQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *txQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close signals that no more submissions will be accepted.
// Wakes any blocked waiters by closing the signal channel.
func (q *txQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
