package engine

import (
	"fmt"
	"sort"
)

// Transaction is a named mutation submitted to the engine.
//
// One struct per reducer; the engine dispatches on the concrete type and
// executes under the identity of the submitting principal. Transactions
// carry arguments only - the caller's identity is supplied at submission
// and is never part of the payload.
type Transaction interface {
	// Name returns the wire name of the reducer, used for logging and
	// for constructing transactions from CLI/harness input.
	Name() string
}

// SetDisplayName overwrites the caller's display name.
type SetDisplayName struct {
	DisplayName string
}

// CreateChannel inserts a channel owned by the caller.
type CreateChannel struct {
	ChannelName string
	Topic       string
}

// DeleteChannel removes a channel and cascades per the data model.
type DeleteChannel struct {
	ChannelID int64
}

// UpdateChannelTopic replaces a channel's topic.
type UpdateChannelTopic struct {
	ChannelID int64
	Topic     string
}

// SendMessage inserts a channel-root message plus its companion thread.
type SendMessage struct {
	ChannelID int64
	Text      string
}

// EditMessage replaces the text of the caller's own message.
type EditMessage struct {
	MessageID int64
	Text      string
}

// DeleteMessage removes the caller's own message, cascading if it is a
// thread root.
type DeleteMessage struct {
	MessageID int64
}

// CreateThread creates a reply container for a parent message.
type CreateThread struct {
	ChannelID       int64
	ParentMessageID int64
	ThreadName      string
}

// SendThreadReply inserts a reply, optionally cross-posting a copy to the
// channel, and bumps the thread's activity counters.
type SendThreadReply struct {
	ThreadID          int64
	Text              string
	AlsoSendToChannel bool
}

// SetTyping upserts the caller's typing indicator.
type SetTyping struct {
	ChannelID int64
	ThreadID  int64
}

// ClearTyping deletes the caller's typing indicator if present.
type ClearTyping struct{}

// ToggleReaction flips the caller's reaction on a message: deletes the
// (message, emoji, caller) row if it exists, inserts it otherwise.
type ToggleReaction struct {
	MessageID int64
	Emoji     string
}

// ToggleStar flips the caller's (identity, channel) favorite pair.
type ToggleStar struct {
	ChannelID int64
}

// ClientConnected is the connection lifecycle hook: first sight inserts a
// User row, reconnect flips online back on.
type ClientConnected struct{}

// ClientDisconnected marks the caller offline and clears their typing row.
type ClientDisconnected struct{}

func (SetDisplayName) Name() string     { return "set_name" }
func (CreateChannel) Name() string      { return "create_channel" }
func (DeleteChannel) Name() string      { return "delete_channel" }
func (UpdateChannelTopic) Name() string { return "update_channel_topic" }
func (SendMessage) Name() string        { return "send_message" }
func (EditMessage) Name() string        { return "edit_message" }
func (DeleteMessage) Name() string      { return "delete_message" }
func (CreateThread) Name() string       { return "create_thread" }
func (SendThreadReply) Name() string    { return "send_thread_reply" }
func (SetTyping) Name() string          { return "set_typing" }
func (ClearTyping) Name() string        { return "clear_typing" }
func (ToggleReaction) Name() string     { return "toggle_reaction" }
func (ToggleStar) Name() string         { return "toggle_star" }
func (ClientConnected) Name() string    { return "client_connected" }
func (ClientDisconnected) Name() string { return "client_disconnected" }

// Decode constructs a Transaction from its wire name and a loosely typed
// argument map (JSON from the CLI, YAML from the harness). Unknown names
// and missing or mistyped arguments are errors; extra keys are ignored.
func Decode(name string, args map[string]any) (Transaction, error) {
	d := &decoder{args: args}
	var tx Transaction

	switch name {
	case "set_name":
		tx = SetDisplayName{DisplayName: d.str("name")}
	case "create_channel":
		tx = CreateChannel{ChannelName: d.str("name"), Topic: d.optStr("topic")}
	case "delete_channel":
		tx = DeleteChannel{ChannelID: d.id("channel_id")}
	case "update_channel_topic":
		tx = UpdateChannelTopic{ChannelID: d.id("channel_id"), Topic: d.optStr("topic")}
	case "send_message":
		tx = SendMessage{ChannelID: d.id("channel_id"), Text: d.str("text")}
	case "edit_message":
		tx = EditMessage{MessageID: d.id("message_id"), Text: d.str("text")}
	case "delete_message":
		tx = DeleteMessage{MessageID: d.id("message_id")}
	case "create_thread":
		tx = CreateThread{ChannelID: d.id("channel_id"), ParentMessageID: d.id("parent_message_id"), ThreadName: d.optStr("name")}
	case "send_thread_reply":
		tx = SendThreadReply{ThreadID: d.id("thread_id"), Text: d.str("text"), AlsoSendToChannel: d.boolean("also_send_to_channel")}
	case "set_typing":
		tx = SetTyping{ChannelID: d.id("channel_id"), ThreadID: d.optID("thread_id")}
	case "clear_typing":
		tx = ClearTyping{}
	case "toggle_reaction":
		tx = ToggleReaction{MessageID: d.id("message_id"), Emoji: d.str("emoji")}
	case "toggle_star":
		tx = ToggleStar{ChannelID: d.id("channel_id")}
	case "client_connected":
		tx = ClientConnected{}
	case "client_disconnected":
		tx = ClientDisconnected{}
	default:
		return nil, fmt.Errorf("unknown transaction %q (known: %v)", name, TransactionNames())
	}

	if d.err != nil {
		return nil, fmt.Errorf("decode %s: %w", name, d.err)
	}
	return tx, nil
}

// TransactionNames returns the wire names Decode accepts, sorted.
func TransactionNames() []string {
	names := []string{
		SetDisplayName{}.Name(), CreateChannel{}.Name(), DeleteChannel{}.Name(),
		UpdateChannelTopic{}.Name(), SendMessage{}.Name(), EditMessage{}.Name(),
		DeleteMessage{}.Name(), CreateThread{}.Name(), SendThreadReply{}.Name(),
		SetTyping{}.Name(), ClearTyping{}.Name(), ToggleReaction{}.Name(),
		ToggleStar{}.Name(), ClientConnected{}.Name(), ClientDisconnected{}.Name(),
	}
	sort.Strings(names)
	return names
}

// decoder accumulates the first argument error instead of forcing every
// call site to check. JSON delivers numbers as float64 and YAML as int;
// both are accepted for ID fields.
type decoder struct {
	args map[string]any
	err  error
}

func (d *decoder) str(key string) string {
	v, ok := d.args[key]
	if !ok {
		d.fail("missing argument %q", key)
		return ""
	}
	s, ok := v.(string)
	if !ok {
		d.fail("argument %q: expected string, got %T", key, v)
		return ""
	}
	return s
}

func (d *decoder) optStr(key string) string {
	if _, ok := d.args[key]; !ok {
		return ""
	}
	return d.str(key)
}

func (d *decoder) id(key string) int64 {
	v, ok := d.args[key]
	if !ok {
		d.fail("missing argument %q", key)
		return 0
	}
	return d.coerceID(key, v)
}

func (d *decoder) optID(key string) int64 {
	v, ok := d.args[key]
	if !ok {
		return 0
	}
	return d.coerceID(key, v)
}

func (d *decoder) coerceID(key string, v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		if n != float64(int64(n)) {
			d.fail("argument %q: %v is not an integer", key, n)
			return 0
		}
		return int64(n)
	default:
		d.fail("argument %q: expected integer, got %T", key, v)
		return 0
	}
}

func (d *decoder) boolean(key string) bool {
	v, ok := d.args[key]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	if !ok {
		d.fail("argument %q: expected bool, got %T", key, v)
		return false
	}
	return b
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}
