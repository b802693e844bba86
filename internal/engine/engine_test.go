package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/backchannel/internal/store"
	"github.com/roach88/backchannel/internal/table"
	"github.com/roach88/backchannel/internal/testutil"
)

// capturingPublisher records every published snapshot.
type capturingPublisher struct {
	mu    sync.Mutex
	snaps []table.Snapshot
}

func (p *capturingPublisher) Publish(s table.Snapshot) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.snaps = append(p.snaps, s)
}

func (p *capturingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.snaps)
}

func (p *capturingPublisher) last() table.Snapshot {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.snaps[len(p.snaps)-1]
}

func TestEngine_PublishesAfterEveryCommit(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	pub := &capturingPublisher{}
	e := New(s, WithClock(testutil.NewManualClock()), WithPublisher(pub))
	ctx := context.Background()

	require.NoError(t, e.Apply(ctx, testutil.Alice, CreateChannel{ChannelName: "general"}))
	require.Equal(t, 1, pub.count())

	chID := pub.last().Channels[0].ID
	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "hi"}))
	require.Equal(t, 2, pub.count())

	snap := pub.last()
	assert.Len(t, snap.Channels, 1)
	assert.Len(t, snap.Messages, 1)
	assert.Len(t, snap.Threads, 1)
}

func TestEngine_NoPublishOnRejection(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	pub := &capturingPublisher{}
	e := New(s, WithClock(testutil.NewManualClock()), WithPublisher(pub))

	err = e.Apply(context.Background(), testutil.Alice, SendMessage{ChannelID: 1, Text: "hi"})
	assert.True(t, IsNotFoundError(err), "got %v", err)
	assert.Equal(t, 0, pub.count())
}

func TestEngine_RunProcessesSubmissions(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	pub := &capturingPublisher{}
	e := New(s, WithClock(testutil.NewManualClock()), WithPublisher(pub))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	require.True(t, e.Submit(testutil.Alice, CreateChannel{ChannelName: "general"}))

	// Wait for the loop to drain the submission.
	require.Eventually(t, func() bool { return pub.count() >= 1 }, time.Second, time.Millisecond)

	chID := pub.last().Channels[0].ID
	require.True(t, e.Submit(testutil.Alice, SendMessage{ChannelID: chID, Text: "one"}))
	require.True(t, e.Submit(testutil.Bob, SendMessage{ChannelID: chID, Text: "two"}))

	require.Eventually(t, func() bool { return pub.count() >= 3 }, time.Second, time.Millisecond)

	snap := pub.last()
	require.Len(t, snap.Messages, 2)
	// FIFO: earlier submission gets the smaller ID.
	assert.Equal(t, "one", snap.Messages[0].Text)
	assert.Equal(t, "two", snap.Messages[1].Text)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestEngine_RunToleratesRejections(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	pub := &capturingPublisher{}
	e := New(s, WithClock(testutil.NewManualClock()), WithPublisher(pub))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()

	// A rejected submission must not stall the loop.
	require.True(t, e.Submit(testutil.Alice, SendMessage{ChannelID: 999, Text: "nope"}))
	require.True(t, e.Submit(testutil.Alice, CreateChannel{ChannelName: "general"}))

	require.Eventually(t, func() bool { return pub.count() >= 1 }, time.Second, time.Millisecond)
	assert.Len(t, pub.last().Channels, 1)
	assert.Empty(t, pub.last().Messages)

	cancel()
	<-done
}

func TestEngine_StopDrainsAndReturns(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	e := New(s, WithClock(testutil.NewManualClock()))

	done := make(chan error, 1)
	go func() { done <- e.Run(context.Background()) }()

	e.Stop()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	// Submissions after Stop are refused.
	assert.False(t, e.Submit(testutil.Alice, ClearTyping{}))
	assert.False(t, e.Connect(testutil.Alice))
}

func TestEngine_LifecycleHelpers(t *testing.T) {
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	defer s.Close()

	e := New(s, WithClock(testutil.NewManualClock()))

	require.True(t, e.Connect(testutil.Alice))
	require.True(t, e.Disconnect(testutil.Alice))
	assert.Equal(t, 2, e.QueueLen())
}

func TestTxQueue_FIFO(t *testing.T) {
	q := newTxQueue()

	require.True(t, q.Enqueue(submission{Sender: testutil.Alice, Tx: ClearTyping{}}))
	require.True(t, q.Enqueue(submission{Sender: testutil.Bob, Tx: ClearTyping{}}))
	assert.Equal(t, 2, q.Len())

	first, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, testutil.Alice, first.Sender)

	second, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, testutil.Bob, second.Sender)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestTxQueue_CloseWakesWaiter(t *testing.T) {
	q := newTxQueue()
	q.Close()

	select {
	case <-q.Wait():
	case <-time.After(time.Second):
		t.Fatal("Wait channel did not fire after Close")
	}

	assert.False(t, q.Enqueue(submission{Sender: testutil.Alice, Tx: ClearTyping{}}))
}
