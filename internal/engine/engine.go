// Package engine is the authoritative transaction engine: a single-writer
// state machine that validates and applies named transactions (reducers)
// against the store, and publishes a full snapshot after every commit.
//
// Submission is fire-and-forget: callers never learn whether a transaction
// committed. A rejection is logged and otherwise invisible; clients
// observe outcomes only through the snapshot feed, which is exactly the
// contract the optimistic overlay layer reconciles against.
package engine

import (
	"context"
	"log/slog"

	"github.com/roach88/backchannel/internal/store"
	"github.com/roach88/backchannel/internal/table"
)

// SnapshotPublisher receives the full table snapshot after every committed
// transaction. Implemented by view.Feed in production and by test doubles.
type SnapshotPublisher interface {
	Publish(table.Snapshot)
}

// Engine is the single-writer transaction loop.
//
// Thread-safety model:
//   - Submit(): safe from any goroutine
//   - Run(): must be called from exactly one goroutine
//   - Apply(): synchronous path for the CLI and the harness; must not be
//     called concurrently with a running loop
//
// All store mutations happen through Apply, one transaction at a time, so
// reducer reads and writes always see one consistent state and no locks
// are needed around the tables.
type Engine struct {
	store *store.Store
	clock Clock
	queue *txQueue
	pub   SnapshotPublisher
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock substitutes the wall clock. Tests pass a manual clock so
// committed timestamps are deterministic.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithPublisher sets the snapshot publisher. Without one, commits are
// still durable but nobody is notified (useful for one-shot CLI work).
func WithPublisher(p SnapshotPublisher) Option {
	return func(e *Engine) { e.pub = p }
}

// New creates an Engine over the given store.
func New(s *store.Store, opts ...Option) *Engine {
	e := &Engine{
		store: s,
		clock: SystemClock{},
		queue: newTxQueue(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Submit queues a transaction for processing under the sender's identity.
// Fire-and-forget: it never blocks and returns no outcome. The effect, if
// the transaction commits, becomes visible on a later snapshot.
//
// Returns false only if the engine has been stopped.
func (e *Engine) Submit(sender table.Identity, tx Transaction) bool {
	return e.queue.Enqueue(submission{Sender: sender, Tx: tx})
}

// Connect enqueues the connection lifecycle hook for an identity.
func (e *Engine) Connect(id table.Identity) bool {
	return e.Submit(id, ClientConnected{})
}

// Disconnect enqueues the disconnection lifecycle hook for an identity.
func (e *Engine) Disconnect(id table.Identity) bool {
	return e.Submit(id, ClientDisconnected{})
}

// Run starts the single-writer loop. Blocks until the context is
// cancelled or Stop is called.
//
// ERROR HANDLING: a rejected transaction is logged with its code and
// otherwise dropped - there is no retry and no reply channel. This is the
// spec'd failure policy: the caller decides whether to resubmit, and the
// overlay layer self-heals from snapshots either way.
func (e *Engine) Run(ctx context.Context) error {
	slog.Info("engine starting")

	for {
		sub, ok := e.queue.TryDequeue()
		if ok {
			if err := e.Apply(ctx, sub.Sender, sub.Tx); err != nil {
				logReducerError(sub, err)
			}
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("engine stopping: context cancelled")
			e.queue.Close()
			return ctx.Err()

		case <-e.queue.Wait():
			// The signal channel closes when the queue is closed, which
			// makes this case fire immediately.
			if e.queue.Len() == 0 {
				slog.Info("engine stopping: queue closed")
				return nil
			}
		}
	}
}

// Stop gracefully shuts down the engine.
// Closes the queue, which will cause Run to return.
func (e *Engine) Stop() {
	e.queue.Close()
}

// QueueLen returns the number of pending submissions.
// Useful for monitoring and tests.
func (e *Engine) QueueLen() int {
	return e.queue.Len()
}

// Apply validates and applies one transaction synchronously, publishing a
// fresh snapshot on commit. The Run loop funnels every submission through
// here; the CLI and the harness call it directly to observe typed errors.
func (e *Engine) Apply(ctx context.Context, sender table.Identity, tx Transaction) error {
	if err := e.store.Update(ctx, func(st *store.Tx) error {
		return e.reduce(ctx, st, sender, tx)
	}); err != nil {
		return err
	}

	slog.Debug("transaction committed", "tx", tx.Name(), "sender", string(sender))
	return e.publish(ctx)
}

// publish reads and broadcasts the current full snapshot.
func (e *Engine) publish(ctx context.Context) error {
	if e.pub == nil {
		return nil
	}
	snap, err := e.store.Snapshot(ctx)
	if err != nil {
		return err
	}
	e.pub.Publish(snap)
	return nil
}

// logReducerError reports a failed submission on the engine log - the
// only channel through which a rejection is ever visible.
func logReducerError(sub submission, err error) {
	var code ReducerErrorCode
	switch {
	case IsValidationError(err):
		code = ErrCodeValidation
	case IsNotFoundError(err):
		code = ErrCodeNotFound
	case IsAuthorizationError(err):
		code = ErrCodeUnauthorized
	default:
		slog.Error("transaction failed",
			"error", err,
			"tx", sub.Tx.Name(),
			"sender", string(sub.Sender),
		)
		return
	}

	slog.Warn("transaction rejected",
		"code", string(code),
		"error", err,
		"tx", sub.Tx.Name(),
		"sender", string(sub.Sender),
	)
}
