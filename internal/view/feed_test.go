package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/backchannel/internal/table"
)

func TestFeed_DeliversToAllSubscribers(t *testing.T) {
	f := NewFeed()
	defer f.Close()

	a, cancelA := f.Subscribe()
	b, cancelB := f.Subscribe()
	defer cancelA()
	defer cancelB()
	assert.Equal(t, 2, f.SubscriberCount())

	snap := table.Snapshot{Channels: []table.Channel{{ID: 1, Name: "general"}}}
	f.Publish(snap)

	assert.Equal(t, snap, <-a)
	assert.Equal(t, snap, <-b)
}

func TestFeed_CoalescesToLatest(t *testing.T) {
	f := NewFeed()
	defer f.Close()

	ch, cancel := f.Subscribe()
	defer cancel()

	// Three publishes with nobody reading: only the last survives.
	f.Publish(table.Snapshot{Channels: []table.Channel{{ID: 1}}})
	f.Publish(table.Snapshot{Channels: []table.Channel{{ID: 2}}})
	f.Publish(table.Snapshot{Channels: []table.Channel{{ID: 3}}})

	got := <-ch
	require.Len(t, got.Channels, 1)
	assert.Equal(t, int64(3), got.Channels[0].ID)

	select {
	case <-ch:
		t.Fatal("stale snapshot was not coalesced away")
	default:
	}
}

func TestFeed_UnsubscribeClosesChannel(t *testing.T) {
	f := NewFeed()
	defer f.Close()

	ch, cancel := f.Subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, f.SubscriberCount())

	// Publishing after unsubscribe must not panic.
	f.Publish(table.Snapshot{})
}

func TestFeed_CloseClosesSubscribers(t *testing.T) {
	f := NewFeed()
	ch, _ := f.Subscribe()

	f.Close()
	_, open := <-ch
	assert.False(t, open)

	// Subscribing to a closed feed yields a closed channel.
	late, _ := f.Subscribe()
	_, open = <-late
	assert.False(t, open)
}
