package engine

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/roach88/backchannel/internal/store"
	"github.com/roach88/backchannel/internal/table"
)

// Field limits, in runes. Inputs are NFC-normalized before counting so the
// same visible text measures the same regardless of how the client
// composed it.
const (
	maxDisplayNameLen = 32
	maxChannelNameLen = 100
	maxMessageLen     = 2000

	// threadNamePrefixLen is how much of a root message seeds its
	// thread's fallback name.
	threadNamePrefixLen = 50
)

// reduce dispatches a transaction to its reducer. Runs inside a single
// store transaction: any returned error rolls everything back.
func (e *Engine) reduce(ctx context.Context, st *store.Tx, sender table.Identity, tx Transaction) error {
	switch t := tx.(type) {
	case SetDisplayName:
		return e.setDisplayName(ctx, st, sender, t)
	case CreateChannel:
		return e.createChannel(ctx, st, sender, t)
	case DeleteChannel:
		return e.deleteChannel(ctx, st, t)
	case UpdateChannelTopic:
		return e.updateChannelTopic(ctx, st, t)
	case SendMessage:
		return e.sendMessage(ctx, st, sender, t)
	case EditMessage:
		return e.editMessage(ctx, st, sender, t)
	case DeleteMessage:
		return e.deleteMessage(ctx, st, sender, t)
	case CreateThread:
		return e.createThread(ctx, st, sender, t)
	case SendThreadReply:
		return e.sendThreadReply(ctx, st, sender, t)
	case SetTyping:
		return e.setTyping(ctx, st, sender, t)
	case ClearTyping:
		return st.DeleteTyping(ctx, sender)
	case ToggleReaction:
		return e.toggleReaction(ctx, st, sender, t)
	case ToggleStar:
		return e.toggleStar(ctx, st, sender, t)
	case ClientConnected:
		return e.clientConnected(ctx, st, sender)
	case ClientDisconnected:
		return e.clientDisconnected(ctx, st, sender)
	default:
		return fmt.Errorf("no reducer for transaction type %T", tx)
	}
}

func (e *Engine) setDisplayName(ctx context.Context, st *store.Tx, sender table.Identity, tx SetDisplayName) error {
	name := NormalizeText(tx.DisplayName)
	if name == "" {
		return NewValidationError("display name must not be empty")
	}
	if utf8.RuneCountInString(name) > maxDisplayNameLen {
		return NewValidationError("display name must be %d characters or less", maxDisplayNameLen)
	}

	_, found, err := st.GetUser(ctx, sender)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("user %s not found", sender)
	}

	return st.SetUserDisplayName(ctx, sender, name)
}

func (e *Engine) createChannel(ctx context.Context, st *store.Tx, sender table.Identity, tx CreateChannel) error {
	name := NormalizeText(tx.ChannelName)
	if name == "" {
		return NewValidationError("channel name must not be empty")
	}
	if utf8.RuneCountInString(name) > maxChannelNameLen {
		return NewValidationError("channel name must be %d characters or less", maxChannelNameLen)
	}

	_, err := st.InsertChannel(ctx, table.Channel{
		Name:      slugifyChannelName(name),
		Topic:     NormalizeText(tx.Topic),
		CreatedBy: sender,
		CreatedAt: e.clock.Now(),
	})
	return err
}

func (e *Engine) deleteChannel(ctx context.Context, st *store.Tx, tx DeleteChannel) error {
	_, found, err := st.GetChannel(ctx, tx.ChannelID)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("channel %d not found", tx.ChannelID)
	}
	return st.DeleteChannelCascade(ctx, tx.ChannelID)
}

func (e *Engine) updateChannelTopic(ctx context.Context, st *store.Tx, tx UpdateChannelTopic) error {
	_, found, err := st.GetChannel(ctx, tx.ChannelID)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("channel %d not found", tx.ChannelID)
	}
	return st.UpdateChannelTopic(ctx, tx.ChannelID, NormalizeText(tx.Topic))
}

// sendMessage inserts a channel-root message and, in the same transaction,
// its companion thread - so every root message has a reply target ready
// before anyone opens it. Also clears the sender's typing indicator.
func (e *Engine) sendMessage(ctx context.Context, st *store.Tx, sender table.Identity, tx SendMessage) error {
	text, err := validMessageText(tx.Text)
	if err != nil {
		return err
	}

	_, found, err := st.GetChannel(ctx, tx.ChannelID)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("channel %d not found", tx.ChannelID)
	}

	now := e.clock.Now()
	msgID, err := st.InsertMessage(ctx, table.Message{
		ChannelID: tx.ChannelID,
		Sender:    sender,
		Text:      text,
		SentAt:    now,
	})
	if err != nil {
		return err
	}

	if _, err := st.InsertThread(ctx, table.Thread{
		ChannelID:       tx.ChannelID,
		ParentMessageID: msgID,
		Name:            runePrefix(text, threadNamePrefixLen),
		CreatedBy:       sender,
		CreatedAt:       now,
		LastActivity:    now,
	}); err != nil {
		return err
	}

	return st.DeleteTyping(ctx, sender)
}

func (e *Engine) editMessage(ctx context.Context, st *store.Tx, sender table.Identity, tx EditMessage) error {
	text, err := validMessageText(tx.Text)
	if err != nil {
		return err
	}

	msg, found, err := st.GetMessage(ctx, tx.MessageID)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("message %d not found", tx.MessageID)
	}
	if msg.Sender != sender {
		return NewAuthorizationError("can only edit your own messages")
	}

	return st.SetMessageText(ctx, tx.MessageID, text)
}

// deleteMessage removes the caller's message. Deleting a thread root takes
// its whole reply container with it: the companion thread, every reply,
// and every reaction on the root or its replies.
func (e *Engine) deleteMessage(ctx context.Context, st *store.Tx, sender table.Identity, tx DeleteMessage) error {
	msg, found, err := st.GetMessage(ctx, tx.MessageID)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("message %d not found", tx.MessageID)
	}
	if msg.Sender != sender {
		return NewAuthorizationError("can only delete your own messages")
	}

	if msg.IsRoot() {
		return st.DeleteRootMessageCascade(ctx, tx.MessageID)
	}
	return st.DeleteMessage(ctx, tx.MessageID)
}

func (e *Engine) createThread(ctx context.Context, st *store.Tx, sender table.Identity, tx CreateThread) error {
	_, found, err := st.GetChannel(ctx, tx.ChannelID)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("channel %d not found", tx.ChannelID)
	}

	parent, found, err := st.GetMessage(ctx, tx.ParentMessageID)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("parent message %d not found", tx.ParentMessageID)
	}

	// One thread per parent message. Root messages get a companion thread
	// at send time, so an explicit create for one is always a duplicate.
	if _, exists, err := st.ThreadForMessage(ctx, tx.ParentMessageID); err != nil {
		return err
	} else if exists {
		return NewValidationError("message %d already has a thread", tx.ParentMessageID)
	}

	name := NormalizeText(tx.ThreadName)
	if name == "" {
		name = runePrefix(parent.Text, threadNamePrefixLen)
	}

	now := e.clock.Now()
	_, err = st.InsertThread(ctx, table.Thread{
		ChannelID:       tx.ChannelID,
		ParentMessageID: tx.ParentMessageID,
		Name:            name,
		CreatedBy:       sender,
		CreatedAt:       now,
		LastActivity:    now,
	})
	return err
}

// sendThreadReply inserts a reply and, when AlsoSendToChannel is set, a
// second root message carrying the same text with SourceThreadID linking
// back. This is the only reducer that produces two message rows from one
// action; the copy is a deliberate duplication, not a reference.
func (e *Engine) sendThreadReply(ctx context.Context, st *store.Tx, sender table.Identity, tx SendThreadReply) error {
	text, err := validMessageText(tx.Text)
	if err != nil {
		return err
	}

	th, found, err := st.GetThread(ctx, tx.ThreadID)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("thread %d not found", tx.ThreadID)
	}

	now := e.clock.Now()
	if _, err := st.InsertMessage(ctx, table.Message{
		ChannelID:         th.ChannelID,
		ThreadID:          tx.ThreadID,
		Sender:            sender,
		Text:              text,
		SentAt:            now,
		AlsoSentToChannel: tx.AlsoSendToChannel,
	}); err != nil {
		return err
	}

	if tx.AlsoSendToChannel {
		if _, err := st.InsertMessage(ctx, table.Message{
			ChannelID:      th.ChannelID,
			SourceThreadID: tx.ThreadID,
			Sender:         sender,
			Text:           text,
			SentAt:         now,
		}); err != nil {
			return err
		}
	}

	if err := st.BumpThread(ctx, tx.ThreadID, now); err != nil {
		return err
	}

	return st.DeleteTyping(ctx, sender)
}

func (e *Engine) setTyping(ctx context.Context, st *store.Tx, sender table.Identity, tx SetTyping) error {
	return st.UpsertTyping(ctx, table.TypingIndicator{
		Identity:  sender,
		ChannelID: tx.ChannelID,
		ThreadID:  tx.ThreadID,
		StartedAt: e.clock.Now(),
	})
}

// toggleReaction is the authoritative definition of "toggle": exactly one
// reaction row may exist per (message, emoji, reactor) triple.
func (e *Engine) toggleReaction(ctx context.Context, st *store.Tx, sender table.Identity, tx ToggleReaction) error {
	_, found, err := st.GetMessage(ctx, tx.MessageID)
	if err != nil {
		return err
	}
	if !found {
		return NewNotFoundError("message %d not found", tx.MessageID)
	}

	existing, found, err := st.FindReaction(ctx, tx.MessageID, tx.Emoji, sender)
	if err != nil {
		return err
	}
	if found {
		return st.DeleteReaction(ctx, existing)
	}

	_, err = st.InsertReaction(ctx, table.Reaction{
		MessageID: tx.MessageID,
		Emoji:     tx.Emoji,
		Reactor:   sender,
	})
	return err
}

func (e *Engine) toggleStar(ctx context.Context, st *store.Tx, sender table.Identity, tx ToggleStar) error {
	pair := table.StarredChannel{Identity: sender, ChannelID: tx.ChannelID}

	starred, err := st.HasStar(ctx, sender, tx.ChannelID)
	if err != nil {
		return err
	}
	if starred {
		return st.DeleteStar(ctx, pair)
	}
	return st.InsertStar(ctx, pair)
}

func (e *Engine) clientConnected(ctx context.Context, st *store.Tx, sender table.Identity) error {
	_, found, err := st.GetUser(ctx, sender)
	if err != nil {
		return err
	}
	if found {
		return st.SetUserOnline(ctx, sender, true)
	}

	return st.InsertUser(ctx, table.User{
		Identity:    sender,
		Online:      true,
		AvatarColor: table.AvatarColor(sender),
	})
}

func (e *Engine) clientDisconnected(ctx context.Context, st *store.Tx, sender table.Identity) error {
	_, found, err := st.GetUser(ctx, sender)
	if err != nil {
		return err
	}
	if !found {
		// Never connected - nothing to mark offline.
		return nil
	}

	if err := st.SetUserOnline(ctx, sender, false); err != nil {
		return err
	}
	return st.DeleteTyping(ctx, sender)
}

// NormalizeText NFC-normalizes and trims an input string. Every text
// field passes through here before validation or storage. Exported so
// client sessions can predict exactly the text the reducer will commit.
func NormalizeText(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

// validMessageText applies the shared message text rules.
func validMessageText(s string) (string, error) {
	text := NormalizeText(s)
	if text == "" {
		return "", NewValidationError("message must not be empty")
	}
	if utf8.RuneCountInString(text) > maxMessageLen {
		return "", NewValidationError("message must be %d characters or less", maxMessageLen)
	}
	return text, nil
}

// slugifyChannelName lowercases a channel name and collapses runs of
// whitespace into single hyphens: "My  Cool Channel" -> "my-cool-channel".
func slugifyChannelName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), "-")
}

// runePrefix returns the first n runes of s.
func runePrefix(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
