package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/backchannel/internal/engine"
	"github.com/roach88/backchannel/internal/store"
	"github.com/roach88/backchannel/internal/table"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Database string
	As       string
	Args     string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <transaction>",
		Short: "Apply one transaction to a database",
		Long: fmt.Sprintf(`Apply one named transaction to the database under a given identity
and print the outcome. A rejection prints the reducer's error code and
exits non-zero.

Known transactions:
  %s

Example:
  backchannel invoke create_channel --db ./chat.db --as a11ce00000000001 --args '{"name":"General","topic":"chat"}'`,
			strings.Join(engine.TransactionNames(), "\n  ")),
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeTransaction(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.As, "as", "", "identity to execute under (required)")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "transaction arguments as JSON")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("as")

	return cmd
}

func invokeTransaction(opts *InvokeOptions, name string, cmd *cobra.Command) error {
	var argsMap map[string]any
	if err := json.Unmarshal([]byte(opts.Args), &argsMap); err != nil {
		return WrapExitError(ExitCommandError, "invalid --args JSON", err)
	}

	tx, err := engine.Decode(name, argsMap)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid transaction", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	eng := engine.New(st)
	out := &OutputFormatter{Format: opts.Format, Writer: cmd.OutOrStdout()}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if err := eng.Apply(ctx, table.Identity(opts.As), tx); err != nil {
		var re *engine.ReducerError
		if errors.As(err, &re) {
			if outErr := out.Failure(string(re.Code), re.Message); outErr != nil {
				return outErr
			}
			return WrapExitError(ExitFailure, "transaction rejected", err)
		}
		return WrapExitError(ExitCommandError, "failed to apply transaction", err)
	}

	return out.Success(map[string]any{"transaction": name}, fmt.Sprintf("committed %s", name))
}
