// Package view is the client-facing side of the system: a snapshot
// fan-out feed, per-client sessions holding optimistic overlays, and the
// pure composer functions that merge both into what the application
// displays.
package view

import (
	"sync"

	"github.com/roach88/backchannel/internal/table"
)

// Feed fans engine snapshots out to subscribed clients.
//
// Subscriptions are explicit: Subscribe returns a channel and an
// unsubscribe func, there is no ambient global registry. Each subscriber
// channel is buffered with capacity one and publishes coalesce, so a slow
// client only ever sees the latest snapshot and never blocks the engine
// loop.
type Feed struct {
	mu     sync.Mutex
	subs   map[int]chan table.Snapshot
	nextID int
	closed bool
}

// NewFeed creates an empty feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[int]chan table.Snapshot)}
}

// Subscribe registers a new subscriber. The returned channel delivers
// every snapshot published after this call, coalesced to the latest.
// The unsubscribe func is idempotent and closes the channel.
func (f *Feed) Subscribe() (<-chan table.Snapshot, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := f.nextID
	f.nextID++

	ch := make(chan table.Snapshot, 1)
	if f.closed {
		close(ch)
		return ch, func() {}
	}
	f.subs[id] = ch

	unsubscribe := func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		if sub, ok := f.subs[id]; ok {
			delete(f.subs, id)
			close(sub)
		}
	}
	return ch, unsubscribe
}

// Publish delivers a snapshot to every subscriber. Never blocks: a full
// subscriber buffer is drained first so the stale snapshot is replaced by
// the fresh one.
//
// Publish implements engine.SnapshotPublisher.
func (f *Feed) Publish(snap table.Snapshot) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	for _, ch := range f.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}

// Close shuts the feed down and closes every subscriber channel.
func (f *Feed) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.closed {
		return
	}
	f.closed = true
	for id, ch := range f.subs {
		delete(f.subs, id)
		close(ch)
	}
}

// SubscriberCount returns the number of active subscribers.
func (f *Feed) SubscriberCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
