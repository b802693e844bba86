package store

import (
	"context"
	"fmt"

	"github.com/roach88/backchannel/internal/table"
)

// Snapshot reads the complete current row set of every table.
//
// Ordering is deterministic (primary key ascending) so two snapshots of
// the same state are identical, and row slices are always non-nil: an
// empty table reads as an empty slice. Both matter downstream - overlay
// reconciliation and golden transcripts compare snapshots structurally.
//
// The engine calls this after every committed transaction and publishes
// the result as a replace-on-change feed; it is also safe to call from
// read paths (the engine is the only writer).
func (s *Store) Snapshot(ctx context.Context) (table.Snapshot, error) {
	var snap table.Snapshot
	var err error

	if snap.Channels, err = s.readChannels(ctx); err != nil {
		return table.Snapshot{}, err
	}
	if snap.Threads, err = s.readThreads(ctx); err != nil {
		return table.Snapshot{}, err
	}
	if snap.Messages, err = s.readMessages(ctx); err != nil {
		return table.Snapshot{}, err
	}
	if snap.Reactions, err = s.readReactions(ctx); err != nil {
		return table.Snapshot{}, err
	}
	if snap.Typing, err = s.readTyping(ctx); err != nil {
		return table.Snapshot{}, err
	}
	if snap.Users, err = s.readUsers(ctx); err != nil {
		return table.Snapshot{}, err
	}
	if snap.Stars, err = s.readStars(ctx); err != nil {
		return table.Snapshot{}, err
	}

	return snap, nil
}

func (s *Store) readChannels(ctx context.Context) ([]table.Channel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, topic, created_by, created_at
		FROM channels ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	out := []table.Channel{}
	for rows.Next() {
		var (
			ch        table.Channel
			createdBy string
			createdAt int64
		)
		if err := rows.Scan(&ch.ID, &ch.Name, &ch.Topic, &createdBy, &createdAt); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		ch.CreatedBy = table.Identity(createdBy)
		ch.CreatedAt = fromMillis(createdAt)
		out = append(out, ch)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return out, nil
}

func (s *Store) readThreads(ctx context.Context) ([]table.Thread, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, parent_message_id, name, created_by, created_at, last_activity, reply_count
		FROM threads ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	out := []table.Thread{}
	for rows.Next() {
		var (
			th                      table.Thread
			createdBy               string
			createdAt, lastActivity int64
		)
		if err := rows.Scan(
			&th.ID, &th.ChannelID, &th.ParentMessageID, &th.Name,
			&createdBy, &createdAt, &lastActivity, &th.ReplyCount,
		); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		th.CreatedBy = table.Identity(createdBy)
		th.CreatedAt = fromMillis(createdAt)
		th.LastActivity = fromMillis(lastActivity)
		out = append(out, th)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}
	return out, nil
}

func (s *Store) readMessages(ctx context.Context) ([]table.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, channel_id, thread_id, source_thread_id, sender, text, sent_at, edited, also_sent_to_channel
		FROM messages ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	out := []table.Message{}
	for rows.Next() {
		var (
			m      table.Message
			sender string
			sentAt int64
		)
		if err := rows.Scan(
			&m.ID, &m.ChannelID, &m.ThreadID, &m.SourceThreadID,
			&sender, &m.Text, &sentAt, &m.Edited, &m.AlsoSentToChannel,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Sender = table.Identity(sender)
		m.SentAt = fromMillis(sentAt)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return out, nil
}

func (s *Store) readReactions(ctx context.Context) ([]table.Reaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, message_id, emoji, reactor
		FROM reactions ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query reactions: %w", err)
	}
	defer rows.Close()

	out := []table.Reaction{}
	for rows.Next() {
		var (
			r       table.Reaction
			reactor string
		)
		if err := rows.Scan(&r.ID, &r.MessageID, &r.Emoji, &reactor); err != nil {
			return nil, fmt.Errorf("scan reaction: %w", err)
		}
		r.Reactor = table.Identity(reactor)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reactions: %w", err)
	}
	return out, nil
}

func (s *Store) readTyping(ctx context.Context) ([]table.TypingIndicator, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, channel_id, thread_id, started_at
		FROM typing_indicators ORDER BY identity ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query typing indicators: %w", err)
	}
	defer rows.Close()

	out := []table.TypingIndicator{}
	for rows.Next() {
		var (
			ti        table.TypingIndicator
			identity  string
			startedAt int64
		)
		if err := rows.Scan(&identity, &ti.ChannelID, &ti.ThreadID, &startedAt); err != nil {
			return nil, fmt.Errorf("scan typing indicator: %w", err)
		}
		ti.Identity = table.Identity(identity)
		ti.StartedAt = fromMillis(startedAt)
		out = append(out, ti)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate typing indicators: %w", err)
	}
	return out, nil
}

func (s *Store) readUsers(ctx context.Context) ([]table.User, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, display_name, online, avatar_color
		FROM users ORDER BY identity ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer rows.Close()

	out := []table.User{}
	for rows.Next() {
		var (
			u        table.User
			identity string
		)
		if err := rows.Scan(&identity, &u.DisplayName, &u.Online, &u.AvatarColor); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		u.Identity = table.Identity(identity)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate users: %w", err)
	}
	return out, nil
}

func (s *Store) readStars(ctx context.Context) ([]table.StarredChannel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT identity, channel_id
		FROM starred_channels ORDER BY identity ASC, channel_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query starred channels: %w", err)
	}
	defer rows.Close()

	out := []table.StarredChannel{}
	for rows.Next() {
		var (
			st       table.StarredChannel
			identity string
		)
		if err := rows.Scan(&identity, &st.ChannelID); err != nil {
			return nil, fmt.Errorf("scan starred channel: %w", err)
		}
		st.Identity = table.Identity(identity)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate starred channels: %w", err)
	}
	return out, nil
}
