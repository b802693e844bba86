package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/backchannel/internal/store"
	"github.com/roach88/backchannel/internal/table"
)

// TablesOptions holds flags for the tables command.
type TablesOptions struct {
	*RootOptions
	Database string
}

// NewTablesCommand creates the tables command.
func NewTablesCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TablesOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "Dump the current row sets",
		Long: `Read the full snapshot from a database and print every table.

Example:
  backchannel tables --db ./chat.db
  backchannel tables --db ./chat.db --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return dumpTables(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func dumpTables(opts *TablesOptions, cmd *cobra.Command) error {
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	snap, err := st.Snapshot(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read snapshot", err)
	}

	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}
	return out.Success(snap, renderSnapshot(snap))
}

// renderSnapshot formats a snapshot for human consumption.
func renderSnapshot(snap table.Snapshot) string {
	var b strings.Builder

	fmt.Fprintf(&b, "channels (%d)\n", len(snap.Channels))
	for _, c := range snap.Channels {
		fmt.Fprintf(&b, "  [%d] #%s topic=%q created_by=%s\n", c.ID, c.Name, c.Topic, c.CreatedBy)
	}

	fmt.Fprintf(&b, "threads (%d)\n", len(snap.Threads))
	for _, t := range snap.Threads {
		fmt.Fprintf(&b, "  [%d] channel=%d parent=%d name=%q replies=%d\n",
			t.ID, t.ChannelID, t.ParentMessageID, t.Name, t.ReplyCount)
	}

	fmt.Fprintf(&b, "messages (%d)\n", len(snap.Messages))
	for _, m := range snap.Messages {
		flags := ""
		if m.Edited {
			flags += " edited"
		}
		if m.SourceThreadID != 0 {
			flags += fmt.Sprintf(" from_thread=%d", m.SourceThreadID)
		}
		fmt.Fprintf(&b, "  [%d] channel=%d thread=%d %s: %q%s\n",
			m.ID, m.ChannelID, m.ThreadID, m.Sender, m.Text, flags)
	}

	fmt.Fprintf(&b, "reactions (%d)\n", len(snap.Reactions))
	for _, r := range snap.Reactions {
		fmt.Fprintf(&b, "  [%d] message=%d %s by %s\n", r.ID, r.MessageID, r.Emoji, r.Reactor)
	}

	fmt.Fprintf(&b, "typing (%d)\n", len(snap.Typing))
	for _, ti := range snap.Typing {
		fmt.Fprintf(&b, "  %s channel=%d thread=%d\n", ti.Identity, ti.ChannelID, ti.ThreadID)
	}

	fmt.Fprintf(&b, "users (%d)\n", len(snap.Users))
	for _, u := range snap.Users {
		state := "offline"
		if u.Online {
			state = "online"
		}
		fmt.Fprintf(&b, "  %s name=%q %s\n", u.Identity, u.DisplayName, state)
	}

	fmt.Fprintf(&b, "stars (%d)", len(snap.Stars))
	for _, s := range snap.Stars {
		fmt.Fprintf(&b, "\n  %s channel=%d", s.Identity, s.ChannelID)
	}

	return b.String()
}
