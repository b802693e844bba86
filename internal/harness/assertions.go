package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/backchannel/internal/table"
)

// tableRows renders one table of a snapshot as loosely typed rows so
// scenario assertions can match YAML values against them. Timestamps are
// left out: assertions pin structure and content, not clock readings.
func tableRows(snap table.Snapshot, name string) ([]map[string]any, bool) {
	rows := []map[string]any{}
	switch name {
	case "channels":
		for _, c := range snap.Channels {
			rows = append(rows, map[string]any{
				"id":         c.ID,
				"name":       c.Name,
				"topic":      c.Topic,
				"created_by": string(c.CreatedBy),
			})
		}
	case "threads":
		for _, t := range snap.Threads {
			rows = append(rows, map[string]any{
				"id":                t.ID,
				"channel_id":        t.ChannelID,
				"parent_message_id": t.ParentMessageID,
				"name":              t.Name,
				"created_by":        string(t.CreatedBy),
				"reply_count":       t.ReplyCount,
			})
		}
	case "messages":
		for _, m := range snap.Messages {
			rows = append(rows, map[string]any{
				"id":                   m.ID,
				"channel_id":           m.ChannelID,
				"thread_id":            m.ThreadID,
				"source_thread_id":     m.SourceThreadID,
				"sender":               string(m.Sender),
				"text":                 m.Text,
				"edited":               m.Edited,
				"also_sent_to_channel": m.AlsoSentToChannel,
			})
		}
	case "reactions":
		for _, r := range snap.Reactions {
			rows = append(rows, map[string]any{
				"id":         r.ID,
				"message_id": r.MessageID,
				"emoji":      r.Emoji,
				"reactor":    string(r.Reactor),
			})
		}
	case "typing":
		for _, ti := range snap.Typing {
			rows = append(rows, map[string]any{
				"identity":   string(ti.Identity),
				"channel_id": ti.ChannelID,
				"thread_id":  ti.ThreadID,
			})
		}
	case "users":
		for _, u := range snap.Users {
			rows = append(rows, map[string]any{
				"identity":     string(u.Identity),
				"display_name": u.DisplayName,
				"online":       u.Online,
				"avatar_color": u.AvatarColor,
			})
		}
	case "stars":
		for _, s := range snap.Stars {
			rows = append(rows, map[string]any{
				"identity":   string(s.Identity),
				"channel_id": s.ChannelID,
			})
		}
	default:
		return nil, false
	}
	return rows, true
}

func knownTable(name string) bool {
	_, ok := tableRows(table.Snapshot{}, name)
	return ok
}

// evaluateAssertion checks one assertion against the final snapshot.
func evaluateAssertion(snap table.Snapshot, a Assertion) error {
	rows, _ := tableRows(snap, a.Table)

	switch a.Type {
	case AssertCount:
		if len(rows) != a.Count {
			return fmt.Errorf("table %s: expected %d rows, got %d", a.Table, a.Count, len(rows))
		}
		return nil

	case AssertState:
		matched := 0
		for _, row := range rows {
			if !rowMatches(row, a.Where) {
				continue
			}
			matched++
			if err := rowSubset(row, a.Expect); err != nil {
				return fmt.Errorf("table %s, row matching %s: %w", a.Table, describeFields(a.Where), err)
			}
		}
		if matched == 0 {
			return fmt.Errorf("table %s: no row matches %s", a.Table, describeFields(a.Where))
		}
		return nil

	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// rowMatches reports whether every where-field matches exactly. An empty
// where matches every row.
func rowMatches(row map[string]any, where map[string]any) bool {
	for field, want := range where {
		got, ok := row[field]
		if !ok || !valueEqual(got, want) {
			return false
		}
	}
	return true
}

// rowSubset checks every expected field against the row.
func rowSubset(row map[string]any, expect map[string]any) error {
	for field, want := range expect {
		got, ok := row[field]
		if !ok {
			return fmt.Errorf("no field %q", field)
		}
		if !valueEqual(got, want) {
			return fmt.Errorf("field %q: expected %v, got %v", field, want, got)
		}
	}
	return nil
}

// valueEqual compares a snapshot value against a YAML value. YAML
// integers arrive as int, row integers are int64; actor names stand in
// for raw identities.
func valueEqual(got, want any) bool {
	if s, ok := want.(string); ok {
		if id, isActor := actorIdentity(s); isActor {
			if g, isStr := got.(string); isStr && g == string(id) {
				return true
			}
		}
	}
	return normalize(got) == normalize(want)
}

func normalize(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		if n == float64(int64(n)) {
			return int64(n)
		}
		return n
	default:
		return v
	}
}

func describeFields(fields map[string]any) string {
	if len(fields) == 0 {
		return "(any)"
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, fields[k])
	}
	return strings.Join(parts, " ")
}
