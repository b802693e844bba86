package view

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roach88/backchannel/internal/engine"
	"github.com/roach88/backchannel/internal/overlay"
	"github.com/roach88/backchannel/internal/table"
)

// Client-side timing defaults. The typing windows mirror the wire
// behavior the composer expects: an indicator older than the stale window
// is invisible, and the lease re-arms on every keystroke.
const (
	DefaultTypingStaleWindow = 8 * time.Second
	DefaultTypingRearm       = 5 * time.Second

	// DefaultPendingTTL bounds how long an unconfirmed insertion
	// prediction stays visible. A silently rejected transaction leaves
	// its prediction stranded forever otherwise; 0 disables eviction.
	DefaultPendingTTL = 30 * time.Second
)

// Submitter is the session's handle on the transaction engine.
// Fire-and-forget per the engine contract.
type Submitter interface {
	Submit(sender table.Identity, tx engine.Transaction) bool
}

// PendingMessage is a locally predicted message insertion, matched
// against authoritative rows by content rather than by key: the store
// assigns ids, so a prediction cannot know its row's id in advance.
type PendingMessage struct {
	ChannelID int64
	ThreadID  int64
	Sender    table.Identity
	Text      string
	SentAt    time.Time
}

// ReactionKey identifies one of the caller's own reactions for the
// reaction toggle overlay.
type ReactionKey struct {
	MessageID int64
	Emoji     string
}

// matchesMessage reports whether an authoritative row accounts for a
// prediction. Cross-post copies never confirm a prediction; the copy is
// produced server-side and was never predicted.
func matchesMessage(p PendingMessage, m table.Message) bool {
	if m.SourceThreadID != 0 {
		return false
	}
	if p.ChannelID != 0 && p.ChannelID != m.ChannelID {
		return false
	}
	return p.Sender == m.Sender && p.ThreadID == m.ThreadID && p.Text == m.Text
}

// Session is one client's view of the system: the latest authoritative
// snapshot plus every optimistic overlay, with submit wrappers that
// record a prediction and fire the matching transaction in one step.
//
// All methods are safe for concurrent use; the session mutex serializes
// snapshot arrival against reads and submissions, which is the whole of
// the locking story (the overlays themselves are unsynchronized by
// contract).
type Session struct {
	identity table.Identity
	engine   Submitter
	clock    engine.Clock

	pendingTTL  time.Duration
	staleWindow time.Duration
	rearm       time.Duration

	mu         sync.Mutex
	snap       table.Snapshot
	msgInserts *overlay.Insert[PendingMessage, table.Message]
	msgDeletes *overlay.Deletion[int64]
	chDeletes  *overlay.Deletion[int64]
	textEdits  *overlay.Override[int64, string]
	topicEdits *overlay.Override[int64, string]
	nameEdit   *overlay.Override[table.Identity, string]
	stars      *overlay.Set[int64]
	reactions  *overlay.Set[ReactionKey]

	typing typingLease
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionClock substitutes the wall clock used for prediction
// timestamps and typing staleness.
func WithSessionClock(c engine.Clock) SessionOption {
	return func(s *Session) { s.clock = c }
}

// WithPendingTTL sets the eviction age for unconfirmed insertion
// predictions. 0 disables eviction.
func WithPendingTTL(d time.Duration) SessionOption {
	return func(s *Session) { s.pendingTTL = d }
}

// WithTypingWindows sets the staleness window and the lease re-arm
// interval.
func WithTypingWindows(stale, rearm time.Duration) SessionOption {
	return func(s *Session) {
		s.staleWindow = stale
		s.rearm = rearm
	}
}

// NewSession creates a session for the given identity.
func NewSession(id table.Identity, submitter Submitter, opts ...SessionOption) *Session {
	s := &Session{
		identity:    id,
		engine:      submitter,
		clock:       engine.SystemClock{},
		pendingTTL:  DefaultPendingTTL,
		staleWindow: DefaultTypingStaleWindow,
		rearm:       DefaultTypingRearm,
		msgInserts:  overlay.NewInsert[PendingMessage, table.Message](matchesMessage),
		msgDeletes:  overlay.NewDeletion[int64](),
		chDeletes:   overlay.NewDeletion[int64](),
		textEdits:   overlay.NewOverride[int64, string](),
		topicEdits:  overlay.NewOverride[int64, string](),
		nameEdit:    overlay.NewOverride[table.Identity, string](),
		stars:       overlay.NewSet[int64](),
		reactions:   overlay.NewSet[ReactionKey](),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewIdentity mints a fresh client identity: a UUIDv7 rendered as plain
// lowercase hex. Time-ordered ids keep adjacent sessions adjacent in
// logs.
func NewIdentity() table.Identity {
	u := uuid.Must(uuid.NewV7())
	return table.Identity(strings.ReplaceAll(u.String(), "-", ""))
}

// Identity returns the session's principal.
func (s *Session) Identity() table.Identity {
	return s.identity
}

// Connect submits the connection lifecycle hook.
func (s *Session) Connect() {
	s.engine.Submit(s.identity, engine.ClientConnected{})
}

// Disconnect cancels the typing lease and submits the disconnection hook.
func (s *Session) Disconnect() {
	s.typing.Cancel()
	s.engine.Submit(s.identity, engine.ClientDisconnected{})
}

// OnSnapshot installs a new authoritative snapshot and reconciles every
// overlay against it. A snapshot may confirm zero, one, or many pending
// predictions; anything it does not confirm stays pending.
func (s *Session) OnSnapshot(snap table.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snap = snap

	s.msgInserts.Reconcile(snap.Messages)
	s.msgInserts.Expire(s.clock.Now(), s.pendingTTL)
	s.msgDeletes.Reconcile(s.hasMessage)
	s.chDeletes.Reconcile(s.hasChannel)
	s.textEdits.Reconcile(s.messageText)
	s.topicEdits.Reconcile(s.channelTopic)
	s.nameEdit.Reconcile(s.userDisplayName)
	s.stars.Reconcile(s.hasOwnStar)
	s.reactions.Reconcile(s.hasOwnReaction)
}

// Run consumes a feed subscription until the context ends or the feed
// closes.
func (s *Session) Run(ctx context.Context, feed <-chan table.Snapshot) {
	for {
		select {
		case <-ctx.Done():
			return
		case snap, ok := <-feed:
			if !ok {
				return
			}
			s.OnSnapshot(snap)
		}
	}
}

// SendMessage predicts a channel-root message and submits the
// transaction. The prediction carries the normalized text so the
// authoritative row, which stores normalized text, will match it.
func (s *Session) SendMessage(channelID int64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgInserts.Add(PendingMessage{
		ChannelID: channelID,
		Sender:    s.identity,
		Text:      engine.NormalizeText(text),
		SentAt:    s.clock.Now(),
	}, s.clock.Now())
	s.engine.Submit(s.identity, engine.SendMessage{ChannelID: channelID, Text: text})
	s.typing.Cancel()
}

// SendThreadReply predicts a reply and submits the transaction. The
// cross-post copy, if requested, is server-produced and not predicted;
// it appears on the next snapshot.
func (s *Session) SendThreadReply(threadID int64, text string, alsoSendToChannel bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var channelID int64
	if th, ok := s.threadByID(threadID); ok {
		channelID = th.ChannelID
	}
	s.msgInserts.Add(PendingMessage{
		ChannelID: channelID,
		ThreadID:  threadID,
		Sender:    s.identity,
		Text:      engine.NormalizeText(text),
		SentAt:    s.clock.Now(),
	}, s.clock.Now())
	s.engine.Submit(s.identity, engine.SendThreadReply{
		ThreadID:          threadID,
		Text:              text,
		AlsoSendToChannel: alsoSendToChannel,
	})
	s.typing.Cancel()
}

// EditMessage predicts the new text and submits the edit.
func (s *Session) EditMessage(messageID int64, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.textEdits.Set(messageID, engine.NormalizeText(text))
	s.engine.Submit(s.identity, engine.EditMessage{MessageID: messageID, Text: text})
}

// DeleteMessage suppresses the row locally and submits the deletion.
func (s *Session) DeleteMessage(messageID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.msgDeletes.Mark(messageID)
	s.engine.Submit(s.identity, engine.DeleteMessage{MessageID: messageID})
}

// CreateChannel submits channel creation. No prediction: the displayed
// channel list tolerates the one-snapshot delay and the server-side name
// slugification has no client counterpart to predict with.
func (s *Session) CreateChannel(name, topic string) {
	s.engine.Submit(s.identity, engine.CreateChannel{ChannelName: name, Topic: topic})
}

// DeleteChannel suppresses the channel locally and submits the deletion.
func (s *Session) DeleteChannel(channelID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chDeletes.Mark(channelID)
	s.engine.Submit(s.identity, engine.DeleteChannel{ChannelID: channelID})
}

// UpdateChannelTopic predicts the new topic and submits the update.
func (s *Session) UpdateChannelTopic(channelID int64, topic string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.topicEdits.Set(channelID, engine.NormalizeText(topic))
	s.engine.Submit(s.identity, engine.UpdateChannelTopic{ChannelID: channelID, Topic: topic})
}

// CreateThread submits explicit thread creation for a parent message.
func (s *Session) CreateThread(channelID, parentMessageID int64, name string) {
	s.engine.Submit(s.identity, engine.CreateThread{
		ChannelID:       channelID,
		ParentMessageID: parentMessageID,
		ThreadName:      name,
	})
}

// SetDisplayName predicts the caller's new name and submits it.
func (s *Session) SetDisplayName(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nameEdit.Set(s.identity, engine.NormalizeText(name))
	s.engine.Submit(s.identity, engine.SetDisplayName{DisplayName: name})
}

// ToggleReaction flips the caller's reaction locally and submits the
// toggle. Double-toggling before a snapshot lands cancels cleanly.
func (s *Session) ToggleReaction(messageID int64, emoji string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.reactions.Toggle(ReactionKey{MessageID: messageID, Emoji: emoji}, s.hasOwnReaction)
	s.engine.Submit(s.identity, engine.ToggleReaction{MessageID: messageID, Emoji: emoji})
}

// ToggleStar flips the channel's starred state locally and submits the
// toggle.
func (s *Session) ToggleStar(channelID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stars.Toggle(channelID, s.hasOwnStar)
	s.engine.Submit(s.identity, engine.ToggleStar{ChannelID: channelID})
}

// PendingCount returns the total number of unconfirmed predictions
// across all overlays.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.msgInserts.PendingCount() +
		s.msgDeletes.PendingCount() +
		s.chDeletes.PendingCount() +
		s.textEdits.PendingCount() +
		s.topicEdits.PendingCount() +
		s.nameEdit.PendingCount() +
		s.stars.PendingCount() +
		s.reactions.PendingCount()
}

// Base lookups over the current snapshot. Callers hold s.mu.

func (s *Session) hasMessage(id int64) bool {
	for _, m := range s.snap.Messages {
		if m.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) hasChannel(id int64) bool {
	for _, ch := range s.snap.Channels {
		if ch.ID == id {
			return true
		}
	}
	return false
}

func (s *Session) messageText(id int64) (string, bool) {
	for _, m := range s.snap.Messages {
		if m.ID == id {
			return m.Text, true
		}
	}
	return "", false
}

func (s *Session) channelTopic(id int64) (string, bool) {
	for _, ch := range s.snap.Channels {
		if ch.ID == id {
			return ch.Topic, true
		}
	}
	return "", false
}

func (s *Session) userDisplayName(id table.Identity) (string, bool) {
	for _, u := range s.snap.Users {
		if u.Identity == id {
			return u.DisplayName, true
		}
	}
	return "", false
}

func (s *Session) hasOwnStar(channelID int64) bool {
	for _, st := range s.snap.Stars {
		if st.Identity == s.identity && st.ChannelID == channelID {
			return true
		}
	}
	return false
}

func (s *Session) hasOwnReaction(k ReactionKey) bool {
	for _, r := range s.snap.Reactions {
		if r.MessageID == k.MessageID && r.Emoji == k.Emoji && r.Reactor == s.identity {
			return true
		}
	}
	return false
}

func (s *Session) threadByID(id int64) (table.Thread, bool) {
	for _, th := range s.snap.Threads {
		if th.ID == id {
			return th, true
		}
	}
	return table.Thread{}, false
}
