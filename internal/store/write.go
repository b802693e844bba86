package store

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/backchannel/internal/table"
)

// InsertChannel inserts a channel row and returns its store-assigned ID.
// The ID field on the argument is ignored; keys are always assigned here.
func (t *Tx) InsertChannel(ctx context.Context, ch table.Channel) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO channels (name, topic, created_by, created_at)
		VALUES (?, ?, ?, ?)
	`, ch.Name, ch.Topic, string(ch.CreatedBy), toMillis(ch.CreatedAt))
	if err != nil {
		return 0, fmt.Errorf("insert channel: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert channel: last insert id: %w", err)
	}
	return id, nil
}

// UpdateChannelTopic replaces a channel's topic.
func (t *Tx) UpdateChannelTopic(ctx context.Context, channelID int64, topic string) error {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE channels SET topic = ? WHERE id = ?
	`, topic, channelID); err != nil {
		return fmt.Errorf("update channel topic: %w", err)
	}
	return nil
}

// DeleteChannelCascade removes a channel and everything referencing it:
// reactions on the channel's messages, the messages themselves, the
// channel's threads, and the channel row last.
//
// Runs inside the caller's transaction, so a failure anywhere leaves the
// channel fully intact.
func (t *Tx) DeleteChannelCascade(ctx context.Context, channelID int64) error {
	steps := []struct {
		name  string
		query string
	}{
		{"delete reactions", `
			DELETE FROM reactions WHERE message_id IN
				(SELECT id FROM messages WHERE channel_id = ?)`},
		{"delete messages", `DELETE FROM messages WHERE channel_id = ?`},
		{"delete threads", `DELETE FROM threads WHERE channel_id = ?`},
		{"delete channel", `DELETE FROM channels WHERE id = ?`},
	}

	for _, step := range steps {
		if _, err := t.tx.ExecContext(ctx, step.query, channelID); err != nil {
			return fmt.Errorf("channel cascade: %s: %w", step.name, err)
		}
	}
	return nil
}

// InsertThread inserts a thread row and returns its store-assigned ID.
func (t *Tx) InsertThread(ctx context.Context, th table.Thread) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO threads
		(channel_id, parent_message_id, name, created_by, created_at, last_activity, reply_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		th.ChannelID,
		th.ParentMessageID,
		th.Name,
		string(th.CreatedBy),
		toMillis(th.CreatedAt),
		toMillis(th.LastActivity),
		th.ReplyCount,
	)
	if err != nil {
		return 0, fmt.Errorf("insert thread: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert thread: last insert id: %w", err)
	}
	return id, nil
}

// BumpThread records reply activity: last_activity moves to at and
// reply_count increments by one, atomically with the caller's reply insert.
func (t *Tx) BumpThread(ctx context.Context, threadID int64, at time.Time) error {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE threads SET last_activity = ?, reply_count = reply_count + 1
		WHERE id = ?
	`, toMillis(at), threadID); err != nil {
		return fmt.Errorf("bump thread: %w", err)
	}
	return nil
}

// InsertMessage inserts a message row and returns its store-assigned ID.
func (t *Tx) InsertMessage(ctx context.Context, m table.Message) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO messages
		(channel_id, thread_id, source_thread_id, sender, text, sent_at, edited, also_sent_to_channel)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		m.ChannelID,
		m.ThreadID,
		m.SourceThreadID,
		string(m.Sender),
		m.Text,
		toMillis(m.SentAt),
		m.Edited,
		m.AlsoSentToChannel,
	)
	if err != nil {
		return 0, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert message: last insert id: %w", err)
	}
	return id, nil
}

// SetMessageText replaces a message's text and sets the edited flag.
func (t *Tx) SetMessageText(ctx context.Context, messageID int64, text string) error {
	if _, err := t.tx.ExecContext(ctx, `
		UPDATE messages SET text = ?, edited = 1 WHERE id = ?
	`, text, messageID); err != nil {
		return fmt.Errorf("set message text: %w", err)
	}
	return nil
}

// DeleteMessage removes a single message together with its own reactions.
// Callers deleting a thread root must use DeleteRootMessageCascade instead.
func (t *Tx) DeleteMessage(ctx context.Context, messageID int64) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM reactions WHERE message_id = ?`, messageID); err != nil {
		return fmt.Errorf("delete message: reactions: %w", err)
	}
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM messages WHERE id = ?`, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// DeleteRootMessageCascade removes a channel-root message and its entire
// reply container: reactions on the replies, the replies, the companion
// thread, then the root's own reactions and the root itself.
func (t *Tx) DeleteRootMessageCascade(ctx context.Context, messageID int64) error {
	steps := []struct {
		name  string
		query string
	}{
		{"delete reply reactions", `
			DELETE FROM reactions WHERE message_id IN
				(SELECT id FROM messages WHERE thread_id IN
					(SELECT id FROM threads WHERE parent_message_id = ?))`},
		{"delete replies", `
			DELETE FROM messages WHERE thread_id IN
				(SELECT id FROM threads WHERE parent_message_id = ?)`},
		{"delete thread", `DELETE FROM threads WHERE parent_message_id = ?`},
		{"delete root reactions", `DELETE FROM reactions WHERE message_id = ?`},
		{"delete root", `DELETE FROM messages WHERE id = ?`},
	}

	for _, step := range steps {
		if _, err := t.tx.ExecContext(ctx, step.query, messageID); err != nil {
			return fmt.Errorf("root message cascade: %s: %w", step.name, err)
		}
	}
	return nil
}

// UpsertTyping inserts or refreshes the caller's single typing row.
// The identity primary key makes this a true upsert.
func (t *Tx) UpsertTyping(ctx context.Context, ti table.TypingIndicator) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO typing_indicators (identity, channel_id, thread_id, started_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			channel_id = excluded.channel_id,
			thread_id = excluded.thread_id,
			started_at = excluded.started_at
	`, string(ti.Identity), ti.ChannelID, ti.ThreadID, toMillis(ti.StartedAt)); err != nil {
		return fmt.Errorf("upsert typing: %w", err)
	}
	return nil
}

// DeleteTyping removes the identity's typing row if present.
// Deleting an absent row is not an error.
func (t *Tx) DeleteTyping(ctx context.Context, id table.Identity) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM typing_indicators WHERE identity = ?`, string(id)); err != nil {
		return fmt.Errorf("delete typing: %w", err)
	}
	return nil
}

// InsertReaction inserts a reaction row and returns its store-assigned ID.
func (t *Tx) InsertReaction(ctx context.Context, r table.Reaction) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `
		INSERT INTO reactions (message_id, emoji, reactor)
		VALUES (?, ?, ?)
	`, r.MessageID, r.Emoji, string(r.Reactor))
	if err != nil {
		return 0, fmt.Errorf("insert reaction: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert reaction: last insert id: %w", err)
	}
	return id, nil
}

// DeleteReaction removes a reaction row by ID.
func (t *Tx) DeleteReaction(ctx context.Context, reactionID int64) error {
	if _, err := t.tx.ExecContext(ctx,
		`DELETE FROM reactions WHERE id = ?`, reactionID); err != nil {
		return fmt.Errorf("delete reaction: %w", err)
	}
	return nil
}

// InsertUser inserts a user row. The identity is the primary key; callers
// must check existence first (see Tx.GetUser).
func (t *Tx) InsertUser(ctx context.Context, u table.User) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO users (identity, display_name, online, avatar_color)
		VALUES (?, ?, ?, ?)
	`, string(u.Identity), u.DisplayName, u.Online, u.AvatarColor); err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// SetUserDisplayName overwrites a user's display name.
func (t *Tx) SetUserDisplayName(ctx context.Context, id table.Identity, name string) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE users SET display_name = ? WHERE identity = ?`, name, string(id)); err != nil {
		return fmt.Errorf("set display name: %w", err)
	}
	return nil
}

// SetUserOnline flips a user's online flag.
func (t *Tx) SetUserOnline(ctx context.Context, id table.Identity, online bool) error {
	if _, err := t.tx.ExecContext(ctx,
		`UPDATE users SET online = ? WHERE identity = ?`, online, string(id)); err != nil {
		return fmt.Errorf("set online: %w", err)
	}
	return nil
}

// InsertStar adds the (identity, channel) favorite pair.
// Inserting an existing pair is silently ignored; the engine's toggle
// checks existence first, so a conflict only happens on races it already
// tolerates.
func (t *Tx) InsertStar(ctx context.Context, s table.StarredChannel) error {
	if _, err := t.tx.ExecContext(ctx, `
		INSERT INTO starred_channels (identity, channel_id) VALUES (?, ?)
		ON CONFLICT DO NOTHING
	`, string(s.Identity), s.ChannelID); err != nil {
		return fmt.Errorf("insert star: %w", err)
	}
	return nil
}

// DeleteStar removes the (identity, channel) favorite pair.
func (t *Tx) DeleteStar(ctx context.Context, s table.StarredChannel) error {
	if _, err := t.tx.ExecContext(ctx, `
		DELETE FROM starred_channels WHERE identity = ? AND channel_id = ?
	`, string(s.Identity), s.ChannelID); err != nil {
		return fmt.Errorf("delete star: %w", err)
	}
	return nil
}
