// Package table defines the row types held in the authoritative store.
//
// All rows are immutable once committed. Numeric keys are assigned by the
// store on insertion (AUTOINCREMENT); a zero ID on an in-memory row means
// "not yet committed". Client-chosen keys are placeholders, never
// authoritative.
package table

import "time"

// Channel is a top-level conversation container.
type Channel struct {
	ID        int64
	Name      string
	Topic     string
	CreatedBy Identity
	CreatedAt time.Time
}

// Thread is the reply container hanging off a root message.
//
// Every root message (Message.ThreadID == 0) owns exactly one Thread,
// created in the same transaction as the message itself. ReplyCount is
// bumped atomically alongside reply insertion.
type Thread struct {
	ID              int64
	ChannelID       int64
	ParentMessageID int64
	Name            string
	CreatedBy       Identity
	CreatedAt       time.Time
	LastActivity    time.Time
	ReplyCount      int64
}

// Message is a single chat message.
//
// ThreadID == 0 marks a channel-root message (which seeds its own Thread).
// SourceThreadID != 0 marks a channel copy of a thread reply that was also
// sent to the channel; the copy carries duplicated text, not a reference.
type Message struct {
	ID                int64
	ChannelID         int64
	ThreadID          int64
	SourceThreadID    int64
	Sender            Identity
	Text              string
	SentAt            time.Time
	Edited            bool
	AlsoSentToChannel bool
}

// IsRoot reports whether the message lives directly in a channel
// (as opposed to inside a thread).
func (m Message) IsRoot() bool { return m.ThreadID == 0 }

// Reaction is one emoji reaction by one reactor on one message.
//
// At most one row exists per (MessageID, Emoji, Reactor) triple. The
// invariant is enforced by toggle semantics in the engine, not by a
// storage constraint.
type Reaction struct {
	ID        int64
	MessageID int64
	Emoji     string
	Reactor   Identity
}

// TypingIndicator is the single "is typing" row per identity.
//
// Expiry is a client-side age check against StartedAt; the server never
// reaps these rows on its own (except on disconnect).
type TypingIndicator struct {
	Identity  Identity
	ChannelID int64
	ThreadID  int64
	StartedAt time.Time
}

// User is one row per connected principal. DisplayName is empty until the
// user sets one; AvatarColor is derived from the identity at first sight
// and never changes.
type User struct {
	Identity    Identity
	DisplayName string
	Online      bool
	AvatarColor string
}

// StarredChannel marks a per-user favorite channel.
type StarredChannel struct {
	Identity  Identity
	ChannelID int64
}

// Snapshot is the complete current row set of every table.
//
// The store delivers a fresh Snapshot whenever anything changes. Consumers
// must treat it as a full replacement, never as a delta to merge: overlay
// reconciliation depends on absent rows actually being absent.
//
// Row slices are ordered by primary key and must not be mutated by
// consumers; a Snapshot is shared across subscribers.
type Snapshot struct {
	Channels  []Channel
	Threads   []Thread
	Messages  []Message
	Reactions []Reaction
	Typing    []TypingIndicator
	Users     []User
	Stars     []StarredChannel
}
