package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/backchannel/internal/table"
)

// Lookups used by reducers mid-transaction. Each returns (row, found, err):
// "absent" is a normal outcome the reducer turns into a NotFound error,
// not a store failure.

// GetChannel fetches a channel by ID.
func (t *Tx) GetChannel(ctx context.Context, id int64) (table.Channel, bool, error) {
	var (
		ch        table.Channel
		createdAt int64
		createdBy string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, name, topic, created_by, created_at
		FROM channels WHERE id = ?
	`, id).Scan(&ch.ID, &ch.Name, &ch.Topic, &createdBy, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return table.Channel{}, false, nil
	}
	if err != nil {
		return table.Channel{}, false, fmt.Errorf("get channel: %w", err)
	}
	ch.CreatedBy = table.Identity(createdBy)
	ch.CreatedAt = fromMillis(createdAt)
	return ch, true, nil
}

// GetMessage fetches a message by ID.
func (t *Tx) GetMessage(ctx context.Context, id int64) (table.Message, bool, error) {
	var (
		m      table.Message
		sender string
		sentAt int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT id, channel_id, thread_id, source_thread_id, sender, text, sent_at, edited, also_sent_to_channel
		FROM messages WHERE id = ?
	`, id).Scan(&m.ID, &m.ChannelID, &m.ThreadID, &m.SourceThreadID, &sender, &m.Text, &sentAt, &m.Edited, &m.AlsoSentToChannel)
	if errors.Is(err, sql.ErrNoRows) {
		return table.Message{}, false, nil
	}
	if err != nil {
		return table.Message{}, false, fmt.Errorf("get message: %w", err)
	}
	m.Sender = table.Identity(sender)
	m.SentAt = fromMillis(sentAt)
	return m, true, nil
}

// GetThread fetches a thread by ID.
func (t *Tx) GetThread(ctx context.Context, id int64) (table.Thread, bool, error) {
	return t.scanThread(ctx, `
		SELECT id, channel_id, parent_message_id, name, created_by, created_at, last_activity, reply_count
		FROM threads WHERE id = ?
	`, id)
}

// ThreadForMessage fetches the thread whose parent is the given message.
// At most one such thread exists (enforced by the engine's createThread).
func (t *Tx) ThreadForMessage(ctx context.Context, messageID int64) (table.Thread, bool, error) {
	return t.scanThread(ctx, `
		SELECT id, channel_id, parent_message_id, name, created_by, created_at, last_activity, reply_count
		FROM threads WHERE parent_message_id = ?
		ORDER BY id ASC LIMIT 1
	`, messageID)
}

func (t *Tx) scanThread(ctx context.Context, query string, arg int64) (table.Thread, bool, error) {
	var (
		th                      table.Thread
		createdBy               string
		createdAt, lastActivity int64
	)
	err := t.tx.QueryRowContext(ctx, query, arg).Scan(
		&th.ID, &th.ChannelID, &th.ParentMessageID, &th.Name,
		&createdBy, &createdAt, &lastActivity, &th.ReplyCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return table.Thread{}, false, nil
	}
	if err != nil {
		return table.Thread{}, false, fmt.Errorf("get thread: %w", err)
	}
	th.CreatedBy = table.Identity(createdBy)
	th.CreatedAt = fromMillis(createdAt)
	th.LastActivity = fromMillis(lastActivity)
	return th, true, nil
}

// GetUser fetches a user by identity.
func (t *Tx) GetUser(ctx context.Context, id table.Identity) (table.User, bool, error) {
	var (
		u        table.User
		identity string
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT identity, display_name, online, avatar_color
		FROM users WHERE identity = ?
	`, string(id)).Scan(&identity, &u.DisplayName, &u.Online, &u.AvatarColor)
	if errors.Is(err, sql.ErrNoRows) {
		return table.User{}, false, nil
	}
	if err != nil {
		return table.User{}, false, fmt.Errorf("get user: %w", err)
	}
	u.Identity = table.Identity(identity)
	return u, true, nil
}

// FindReaction locates the caller's reaction row for (message, emoji).
// Returns the row ID so a toggle can delete exactly that row.
func (t *Tx) FindReaction(ctx context.Context, messageID int64, emoji string, reactor table.Identity) (int64, bool, error) {
	var id int64
	err := t.tx.QueryRowContext(ctx, `
		SELECT id FROM reactions
		WHERE message_id = ? AND emoji = ? AND reactor = ?
		ORDER BY id ASC LIMIT 1
	`, messageID, emoji, string(reactor)).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("find reaction: %w", err)
	}
	return id, true, nil
}

// HasStar reports whether the (identity, channel) favorite pair exists.
func (t *Tx) HasStar(ctx context.Context, id table.Identity, channelID int64) (bool, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM starred_channels WHERE identity = ? AND channel_id = ?
	`, string(id), channelID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has star: %w", err)
	}
	return count > 0, nil
}

// HasTyping reports whether the identity currently has a typing row.
func (t *Tx) HasTyping(ctx context.Context, id table.Identity) (bool, error) {
	var count int
	err := t.tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM typing_indicators WHERE identity = ?
	`, string(id)).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("has typing: %w", err)
	}
	return count > 0, nil
}
