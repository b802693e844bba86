package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/backchannel/internal/seed"
	"github.com/roach88/backchannel/internal/store"
	"github.com/roach88/backchannel/internal/table"
	"github.com/roach88/backchannel/internal/testutil"
)

// newTestEngine returns an engine over a fresh in-memory store with a
// manual clock, plus the store for direct snapshot inspection.
func newTestEngine(t *testing.T) (*Engine, *store.Store, *testutil.ManualClock) {
	t.Helper()
	s, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := testutil.NewManualClock()
	return New(s, WithClock(clock)), s, clock
}

func snapshot(t *testing.T, s *store.Store) table.Snapshot {
	t.Helper()
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

// createChannel applies create_channel and returns the new channel's ID.
func createChannel(t *testing.T, e *Engine, s *store.Store, name string) int64 {
	t.Helper()
	require.NoError(t, e.Apply(context.Background(), testutil.Alice, CreateChannel{ChannelName: name}))
	snap := snapshot(t, s)
	return snap.Channels[len(snap.Channels)-1].ID
}

func TestSendMessage_CreatesCompanionThread(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")

	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "hi"}))

	snap := snapshot(t, s)
	require.Len(t, snap.Messages, 1)
	msg := snap.Messages[0]
	assert.True(t, msg.IsRoot())
	assert.Equal(t, "hi", msg.Text)
	assert.Equal(t, testutil.Alice, msg.Sender)

	require.Len(t, snap.Threads, 1, "every root message seeds exactly one thread")
	th := snap.Threads[0]
	assert.Equal(t, msg.ID, th.ParentMessageID)
	assert.Equal(t, "hi", th.Name)
	assert.Equal(t, int64(0), th.ReplyCount)
}

func TestSendMessage_ClearsTyping(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")

	require.NoError(t, e.Apply(ctx, testutil.Alice, SetTyping{ChannelID: chID}))
	require.Len(t, snapshot(t, s).Typing, 1)

	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "done typing"}))
	assert.Empty(t, snapshot(t, s).Typing)
}

func TestSendMessage_Validation(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")

	err := e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "   "})
	assert.True(t, IsValidationError(err), "whitespace-only text: got %v", err)

	err = e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: strings.Repeat("x", 2001)})
	assert.True(t, IsValidationError(err), "oversized text: got %v", err)

	err = e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: 999, Text: "hi"})
	assert.True(t, IsNotFoundError(err), "absent channel: got %v", err)

	assert.Empty(t, snapshot(t, s).Messages, "rejected sends must leave no rows")
	assert.Empty(t, snapshot(t, s).Threads)
}

func TestSendThreadReply_AlsoSendToChannel(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")

	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "hi"}))
	thID := snapshot(t, s).Threads[0].ID

	require.NoError(t, e.Apply(ctx, testutil.Bob, SendThreadReply{ThreadID: thID, Text: "yo", AlsoSendToChannel: true}))

	snap := snapshot(t, s)
	require.Len(t, snap.Messages, 3, "root + reply + channel copy")

	var reply, copyMsg *table.Message
	for i := range snap.Messages {
		m := &snap.Messages[i]
		switch {
		case m.ThreadID == thID:
			reply = m
		case m.SourceThreadID == thID:
			copyMsg = m
		}
	}

	require.NotNil(t, reply, "reply must live in the thread")
	assert.Equal(t, "yo", reply.Text)
	assert.True(t, reply.AlsoSentToChannel)

	require.NotNil(t, copyMsg, "channel copy must link back via sourceThreadId")
	assert.True(t, copyMsg.IsRoot())
	assert.Equal(t, "yo", copyMsg.Text)
	assert.Equal(t, reply.Sender, copyMsg.Sender)
	assert.Equal(t, reply.SentAt, copyMsg.SentAt)

	assert.Equal(t, int64(1), snap.Threads[0].ReplyCount)
	assert.Equal(t, reply.SentAt, snap.Threads[0].LastActivity)
}

func TestSendThreadReply_WithoutCrossPost(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")

	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "hi"}))
	thID := snapshot(t, s).Threads[0].ID

	require.NoError(t, e.Apply(ctx, testutil.Bob, SendThreadReply{ThreadID: thID, Text: "yo"}))

	snap := snapshot(t, s)
	assert.Len(t, snap.Messages, 2, "no channel copy without also_send_to_channel")
}

func TestToggleReaction_Idempotent(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")
	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "hi"}))
	msgID := snapshot(t, s).Messages[0].ID

	require.NoError(t, e.Apply(ctx, testutil.Bob, ToggleReaction{MessageID: msgID, Emoji: "👍"}))
	require.Len(t, snapshot(t, s).Reactions, 1)

	// Same identity, same emoji: second toggle removes the row.
	require.NoError(t, e.Apply(ctx, testutil.Bob, ToggleReaction{MessageID: msgID, Emoji: "👍"}))
	assert.Empty(t, snapshot(t, s).Reactions)
}

func TestToggleReaction_PerReactorPerEmoji(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")
	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "hi"}))
	msgID := snapshot(t, s).Messages[0].ID

	require.NoError(t, e.Apply(ctx, testutil.Bob, ToggleReaction{MessageID: msgID, Emoji: "👍"}))
	require.NoError(t, e.Apply(ctx, testutil.Carol, ToggleReaction{MessageID: msgID, Emoji: "👍"}))
	require.NoError(t, e.Apply(ctx, testutil.Bob, ToggleReaction{MessageID: msgID, Emoji: "🎉"}))

	assert.Len(t, snapshot(t, s).Reactions, 3, "distinct (emoji, reactor) pairs coexist")
}

func TestEditMessage_Authorization(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")
	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "original"}))
	msgID := snapshot(t, s).Messages[0].ID

	err := e.Apply(ctx, testutil.Bob, EditMessage{MessageID: msgID, Text: "hijacked"})
	assert.True(t, IsAuthorizationError(err), "got %v", err)

	msg := snapshot(t, s).Messages[0]
	assert.Equal(t, "original", msg.Text, "row must be unchanged after rejection")
	assert.False(t, msg.Edited)

	require.NoError(t, e.Apply(ctx, testutil.Alice, EditMessage{MessageID: msgID, Text: "fixed"}))
	msg = snapshot(t, s).Messages[0]
	assert.Equal(t, "fixed", msg.Text)
	assert.True(t, msg.Edited)
}

func TestDeleteMessage_Authorization(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")
	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "mine"}))
	msgID := snapshot(t, s).Messages[0].ID

	err := e.Apply(ctx, testutil.Bob, DeleteMessage{MessageID: msgID})
	assert.True(t, IsAuthorizationError(err), "got %v", err)
	assert.Len(t, snapshot(t, s).Messages, 1)

	err = e.Apply(ctx, testutil.Alice, DeleteMessage{MessageID: 999})
	assert.True(t, IsNotFoundError(err), "got %v", err)
}

func TestDeleteMessage_RootCascades(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")

	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "root"}))
	snap := snapshot(t, s)
	rootID := snap.Messages[0].ID
	thID := snap.Threads[0].ID

	require.NoError(t, e.Apply(ctx, testutil.Bob, SendThreadReply{ThreadID: thID, Text: "reply"}))
	replyID := func() int64 {
		for _, m := range snapshot(t, s).Messages {
			if m.ThreadID == thID {
				return m.ID
			}
		}
		t.Fatal("reply not found")
		return 0
	}()
	require.NoError(t, e.Apply(ctx, testutil.Bob, ToggleReaction{MessageID: replyID, Emoji: "👍"}))
	require.NoError(t, e.Apply(ctx, testutil.Carol, ToggleReaction{MessageID: rootID, Emoji: "🔥"}))

	// An unrelated root survives the cascade.
	require.NoError(t, e.Apply(ctx, testutil.Bob, SendMessage{ChannelID: chID, Text: "bystander"}))

	require.NoError(t, e.Apply(ctx, testutil.Alice, DeleteMessage{MessageID: rootID}))

	snap = snapshot(t, s)
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "bystander", snap.Messages[0].Text)
	require.Len(t, snap.Threads, 1, "only the bystander's companion thread remains")
	assert.Equal(t, snap.Messages[0].ID, snap.Threads[0].ParentMessageID)
	assert.Empty(t, snap.Reactions)
}

func TestDeleteMessage_ReplyDeletesOnlyItself(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")

	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "root"}))
	thID := snapshot(t, s).Threads[0].ID
	require.NoError(t, e.Apply(ctx, testutil.Bob, SendThreadReply{ThreadID: thID, Text: "reply"}))

	var replyID int64
	for _, m := range snapshot(t, s).Messages {
		if m.ThreadID == thID {
			replyID = m.ID
		}
	}
	require.NoError(t, e.Apply(ctx, testutil.Carol, ToggleReaction{MessageID: replyID, Emoji: "👍"}))

	require.NoError(t, e.Apply(ctx, testutil.Bob, DeleteMessage{MessageID: replyID}))

	snap := snapshot(t, s)
	assert.Len(t, snap.Messages, 1, "root survives")
	assert.Len(t, snap.Threads, 1, "thread survives")
	assert.Empty(t, snap.Reactions, "the reply's reactions go with it")
}

func TestDeleteChannel_CascadeCompleteness(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "doomed")
	otherID := createChannel(t, e, s, "survivor")

	// Populate: two roots (companion threads), one reply, reactions on
	// root and reply.
	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "one"}))
	require.NoError(t, e.Apply(ctx, testutil.Bob, SendMessage{ChannelID: chID, Text: "two"}))
	snap := snapshot(t, s)
	thID := snap.Threads[0].ID
	rootID := snap.Messages[0].ID
	require.NoError(t, e.Apply(ctx, testutil.Carol, SendThreadReply{ThreadID: thID, Text: "three"}))
	var replyID int64
	for _, m := range snapshot(t, s).Messages {
		if m.ThreadID == thID {
			replyID = m.ID
		}
	}
	require.NoError(t, e.Apply(ctx, testutil.Bob, ToggleReaction{MessageID: rootID, Emoji: "👍"}))
	require.NoError(t, e.Apply(ctx, testutil.Alice, ToggleReaction{MessageID: replyID, Emoji: "🎉"}))

	// A message in the surviving channel.
	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: otherID, Text: "safe"}))

	require.NoError(t, e.Apply(ctx, testutil.Alice, DeleteChannel{ChannelID: chID}))

	snap = snapshot(t, s)
	for _, m := range snap.Messages {
		assert.NotEqual(t, chID, m.ChannelID, "no message may reference the deleted channel")
	}
	for _, th := range snap.Threads {
		assert.NotEqual(t, chID, th.ChannelID, "no thread may reference the deleted channel")
	}
	assert.Empty(t, snap.Reactions, "reactions on the channel's messages cascade too")
	require.Len(t, snap.Channels, 1)
	assert.Equal(t, "survivor", snap.Channels[0].Name)
}

func TestCreateChannel_SlugifiesName(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Apply(ctx, testutil.Alice, CreateChannel{ChannelName: "  My  Cool   Channel ", Topic: " stuff "}))

	snap := snapshot(t, s)
	require.Len(t, snap.Channels, 1)
	assert.Equal(t, "my-cool-channel", snap.Channels[0].Name)
	assert.Equal(t, "stuff", snap.Channels[0].Topic)
	assert.Equal(t, testutil.Alice, snap.Channels[0].CreatedBy)
}

func TestCreateChannel_Validation(t *testing.T) {
	e, _, _ := newTestEngine(t)
	ctx := context.Background()

	err := e.Apply(ctx, testutil.Alice, CreateChannel{ChannelName: "  "})
	assert.True(t, IsValidationError(err), "got %v", err)

	err = e.Apply(ctx, testutil.Alice, CreateChannel{ChannelName: strings.Repeat("n", 101)})
	assert.True(t, IsValidationError(err), "got %v", err)
}

func TestUpdateChannelTopic(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")

	require.NoError(t, e.Apply(ctx, testutil.Bob, UpdateChannelTopic{ChannelID: chID, Topic: "  new topic  "}))
	assert.Equal(t, "new topic", snapshot(t, s).Channels[0].Topic)

	err := e.Apply(ctx, testutil.Bob, UpdateChannelTopic{ChannelID: 999, Topic: "x"})
	assert.True(t, IsNotFoundError(err), "got %v", err)
}

func TestCreateThread_RejectsDuplicate(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")

	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: "root"}))
	msgID := snapshot(t, s).Messages[0].ID

	// The companion thread already exists, so an explicit create is a
	// duplicate.
	err := e.Apply(ctx, testutil.Bob, CreateThread{ChannelID: chID, ParentMessageID: msgID, ThreadName: "again"})
	assert.True(t, IsValidationError(err), "got %v", err)
	assert.Len(t, snapshot(t, s).Threads, 1)
}

func TestCreateThread_FallbackName(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")

	longText := strings.Repeat("a", 80)
	require.NoError(t, e.Apply(ctx, testutil.Alice, SendMessage{ChannelID: chID, Text: longText}))

	// The companion thread uses the first 50 runes of the message.
	th := snapshot(t, s).Threads[0]
	assert.Equal(t, strings.Repeat("a", 50), th.Name)
}

func TestSetDisplayName(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	// No user row yet.
	err := e.Apply(ctx, testutil.Alice, SetDisplayName{DisplayName: "alice"})
	assert.True(t, IsNotFoundError(err), "got %v", err)

	require.NoError(t, e.Apply(ctx, testutil.Alice, ClientConnected{}))
	require.NoError(t, e.Apply(ctx, testutil.Alice, SetDisplayName{DisplayName: "  alice  "}))
	assert.Equal(t, "alice", snapshot(t, s).Users[0].DisplayName)

	err = e.Apply(ctx, testutil.Alice, SetDisplayName{DisplayName: strings.Repeat("x", 33)})
	assert.True(t, IsValidationError(err), "got %v", err)

	err = e.Apply(ctx, testutil.Alice, SetDisplayName{DisplayName: " "})
	assert.True(t, IsValidationError(err), "got %v", err)
}

func TestToggleStar(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")

	require.NoError(t, e.Apply(ctx, testutil.Alice, ToggleStar{ChannelID: chID}))
	require.Len(t, snapshot(t, s).Stars, 1)

	// Different identity keeps its own pair.
	require.NoError(t, e.Apply(ctx, testutil.Bob, ToggleStar{ChannelID: chID}))
	require.Len(t, snapshot(t, s).Stars, 2)

	require.NoError(t, e.Apply(ctx, testutil.Alice, ToggleStar{ChannelID: chID}))
	snap := snapshot(t, s)
	require.Len(t, snap.Stars, 1)
	assert.Equal(t, testutil.Bob, snap.Stars[0].Identity)
}

func TestLifecycle(t *testing.T) {
	e, s, _ := newTestEngine(t)
	ctx := context.Background()

	require.NoError(t, e.Apply(ctx, testutil.Alice, ClientConnected{}))
	snap := snapshot(t, s)
	require.Len(t, snap.Users, 1)
	assert.True(t, snap.Users[0].Online)
	assert.Equal(t, table.AvatarColor(testutil.Alice), snap.Users[0].AvatarColor)
	assert.Empty(t, snap.Users[0].DisplayName)

	// Disconnect flips online and clears typing.
	chID := createChannel(t, e, s, "general")
	require.NoError(t, e.Apply(ctx, testutil.Alice, SetTyping{ChannelID: chID}))
	require.NoError(t, e.Apply(ctx, testutil.Alice, ClientDisconnected{}))
	snap = snapshot(t, s)
	assert.False(t, snap.Users[0].Online)
	assert.Empty(t, snap.Typing)

	// Reconnect keeps the row and flips online back.
	require.NoError(t, e.Apply(ctx, testutil.Alice, ClientConnected{}))
	snap = snapshot(t, s)
	require.Len(t, snap.Users, 1)
	assert.True(t, snap.Users[0].Online)
}

func TestInit_SeedsOnce(t *testing.T) {
	e, s, clock := newTestEngine(t)
	ctx := context.Background()

	channels, err := seed.Default()
	require.NoError(t, err)

	require.NoError(t, e.Init(ctx, "system", channels))
	snap := snapshot(t, s)
	require.Len(t, snap.Channels, 3)
	assert.Equal(t, "general", snap.Channels[0].Name)
	assert.Equal(t, clock.Now(), snap.Channels[0].CreatedAt)

	// Second init is a no-op.
	require.NoError(t, e.Init(ctx, "system", channels))
	assert.Len(t, snapshot(t, s).Channels, 3)
}

func TestSetTyping_Upserts(t *testing.T) {
	e, s, clock := newTestEngine(t)
	ctx := context.Background()
	chID := createChannel(t, e, s, "general")

	require.NoError(t, e.Apply(ctx, testutil.Alice, SetTyping{ChannelID: chID}))
	first := snapshot(t, s).Typing[0].StartedAt

	clock.Advance(2 * time.Second)
	require.NoError(t, e.Apply(ctx, testutil.Alice, SetTyping{ChannelID: chID, ThreadID: 7}))

	snap := snapshot(t, s)
	require.Len(t, snap.Typing, 1)
	assert.True(t, snap.Typing[0].StartedAt.After(first))
	assert.Equal(t, int64(7), snap.Typing[0].ThreadID)
}
