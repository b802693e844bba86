package view

import (
	"sort"
	"time"

	"github.com/roach88/backchannel/internal/table"
)

// ChannelView is a channel as displayed: authoritative row with the
// topic override applied plus the caller's effective starred state.
type ChannelView struct {
	table.Channel
	Starred bool
}

// ReactionGroup aggregates one emoji's reactions on one message.
type ReactionGroup struct {
	Emoji    string
	Count    int
	Reactors []table.Identity
	Mine     bool
}

// MessageView is a message as displayed: authoritative or pending, with
// overrides, deletion suppression, and grouped reactions applied.
//
// Pending rows have ID 0 (the store has not assigned one yet) and carry
// no reactions.
type MessageView struct {
	ID             int64
	ChannelID      int64
	ThreadID       int64
	SourceThreadID int64
	Sender         table.Identity
	SenderName     string
	Text           string
	SentAt         time.Time
	Edited         bool
	Pending        bool
	Reactions      []ReactionGroup
}

// UserView is a user as displayed, with the display-name fallback and
// any pending rename applied.
type UserView struct {
	Identity    table.Identity
	Name        string
	Online      bool
	AvatarColor string
}

// TypingUser is one currently typing principal.
type TypingUser struct {
	Identity table.Identity
	Name     string
}

// Channels returns the displayed channel list: snapshot channels minus
// pending deletions, topic overrides applied, starred flags from the
// star overlay.
func (s *Session) Channels() []ChannelView {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []ChannelView{}
	for _, ch := range s.snap.Channels {
		if s.chDeletes.IsDeleted(ch.ID) {
			continue
		}
		if topic, ok := s.topicEdits.Get(ch.ID); ok {
			ch.Topic = topic
		}
		out = append(out, ChannelView{
			Channel: ch,
			Starred: s.stars.Has(ch.ID, s.hasOwnStar),
		})
	}
	return out
}

// ChannelMessages returns the merged root-message list for a channel:
// authoritative roots (cross-post copies included) plus unconfirmed
// pending sends, stable-sorted by timestamp. Predicted timestamps may
// race server ones; the stable sort keeps insertion order on ties.
func (s *Session) ChannelMessages(channelID int64) []MessageView {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []MessageView{}
	for _, m := range s.snap.Messages {
		if m.ChannelID != channelID || !m.IsRoot() {
			continue
		}
		if s.msgDeletes.IsDeleted(m.ID) {
			continue
		}
		out = append(out, s.messageView(m))
	}
	for _, p := range s.msgInserts.Pending() {
		if p.ChannelID == channelID && p.ThreadID == 0 {
			out = append(out, s.pendingView(p))
		}
	}
	sortMessages(out)
	return out
}

// ThreadMessages returns the merged reply list for a thread.
func (s *Session) ThreadMessages(threadID int64) []MessageView {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []MessageView{}
	for _, m := range s.snap.Messages {
		if m.ThreadID != threadID {
			continue
		}
		if s.msgDeletes.IsDeleted(m.ID) {
			continue
		}
		out = append(out, s.messageView(m))
	}
	for _, p := range s.msgInserts.Pending() {
		if p.ThreadID == threadID {
			out = append(out, s.pendingView(p))
		}
	}
	sortMessages(out)
	return out
}

// ThreadForMessage returns the reply container for a root message.
func (s *Session) ThreadForMessage(messageID int64) (table.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, th := range s.snap.Threads {
		if th.ParentMessageID == messageID {
			return th, true
		}
	}
	return table.Thread{}, false
}

// Users returns every known user with display fallbacks applied.
func (s *Session) Users() []UserView {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []UserView{}
	for _, u := range s.snap.Users {
		out = append(out, UserView{
			Identity:    u.Identity,
			Name:        s.displayName(u.Identity),
			Online:      u.Online,
			AvatarColor: u.AvatarColor,
		})
	}
	return out
}

// DisplayName resolves an identity to its displayed name: pending rename
// first, then the authoritative name, then the first eight characters of
// the identity.
func (s *Session) DisplayName(id table.Identity) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.displayName(id)
}

// TypingUsers returns who is currently typing in a channel or thread,
// excluding the caller. Indicators older than the staleness window are
// invisible; expiry is this age check, not a server TTL.
func (s *Session) TypingUsers(channelID, threadID int64) []TypingUser {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	out := []TypingUser{}
	for _, ti := range s.snap.Typing {
		if ti.Identity == s.identity {
			continue
		}
		if ti.ChannelID != channelID || ti.ThreadID != threadID {
			continue
		}
		if now.Sub(ti.StartedAt) > s.staleWindow {
			continue
		}
		out = append(out, TypingUser{
			Identity: ti.Identity,
			Name:     s.displayName(ti.Identity),
		})
	}
	return out
}

// messageView builds the displayed form of an authoritative row.
func (s *Session) messageView(m table.Message) MessageView {
	v := MessageView{
		ID:             m.ID,
		ChannelID:      m.ChannelID,
		ThreadID:       m.ThreadID,
		SourceThreadID: m.SourceThreadID,
		Sender:         m.Sender,
		SenderName:     s.displayName(m.Sender),
		Text:           m.Text,
		SentAt:         m.SentAt,
		Edited:         m.Edited,
		Reactions:      s.reactionGroups(m.ID),
	}
	if text, ok := s.textEdits.Get(m.ID); ok {
		v.Text = text
		v.Edited = true
	}
	return v
}

// pendingView builds the displayed form of an unconfirmed prediction.
func (s *Session) pendingView(p PendingMessage) MessageView {
	return MessageView{
		ChannelID:  p.ChannelID,
		ThreadID:   p.ThreadID,
		Sender:     p.Sender,
		SenderName: s.displayName(p.Sender),
		Text:       p.Text,
		SentAt:     p.SentAt,
		Pending:    true,
	}
}

// reactionGroups aggregates a message's reactions per emoji and applies
// the caller's pending toggles: an unconfirmed own-reaction shows up
// immediately, an unconfirmed removal disappears immediately.
func (s *Session) reactionGroups(messageID int64) []ReactionGroup {
	byEmoji := map[string]*ReactionGroup{}
	order := []string{}

	add := func(emoji string, reactor table.Identity) {
		g, ok := byEmoji[emoji]
		if !ok {
			g = &ReactionGroup{Emoji: emoji}
			byEmoji[emoji] = g
			order = append(order, emoji)
		}
		g.Count++
		g.Reactors = append(g.Reactors, reactor)
		if reactor == s.identity {
			g.Mine = true
		}
	}

	for _, r := range s.snap.Reactions {
		if r.MessageID != messageID {
			continue
		}
		key := ReactionKey{MessageID: messageID, Emoji: r.Emoji}
		if r.Reactor == s.identity && !s.reactions.Has(key, s.hasOwnReaction) {
			// Pending removal of the caller's own reaction.
			continue
		}
		add(r.Emoji, r.Reactor)
	}

	// The caller's pending additions have no authoritative row yet; a
	// pending add exists only while the base lacks the row, so this never
	// double-counts.
	pending := s.reactions.PendingAdds()
	sort.Slice(pending, func(i, j int) bool { return pending[i].Emoji < pending[j].Emoji })
	for _, key := range pending {
		if key.MessageID == messageID {
			add(key.Emoji, s.identity)
		}
	}

	out := []ReactionGroup{}
	for _, emoji := range order {
		out = append(out, *byEmoji[emoji])
	}
	return out
}

func sortMessages(msgs []MessageView) {
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].SentAt.Before(msgs[j].SentAt)
	})
}

// displayName is the lock-held form of DisplayName.
func (s *Session) displayName(id table.Identity) string {
	if name, ok := s.nameEdit.Get(id); ok {
		return name
	}
	if name, ok := s.userDisplayName(id); ok && name != "" {
		return name
	}
	return table.ShortName(id)
}
