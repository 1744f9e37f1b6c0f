package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/windlass-io/windlass/internal/dlq"
)

// NewDLQCommand creates the dlq command group.
func NewDLQCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and retry dead-lettered events",
		Long: `Inspect events whose handlers failed, and explicitly re-publish them.

Retry is always an operator action; the engine never retries
dead-lettered events on its own.`,
	}

	cmd.AddCommand(newDLQListCommand(rootOpts))
	cmd.AddCommand(newDLQInspectCommand(rootOpts))
	cmd.AddCommand(newDLQRetryCommand(rootOpts))

	return cmd
}

func newDLQListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List all dead-letter entries",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDLQList(rootOpts, cmd)
		},
	}
}

func runDLQList(opts *RootOptions, cmd *cobra.Command) error {
	f := formatter(opts, cmd)

	eng, err := openEngine(opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	entries, err := eng.DLQ.List()
	if err != nil {
		return WrapExitError(ExitFailure, "dlq list failed", err)
	}

	if opts.Format == "json" {
		if entries == nil {
			entries = []dlq.Entry{}
		}
		return f.SuccessJSON(entries)
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "dead letter queue is empty")
		return nil
	}
	printDLQEntries(cmd, entries)
	return nil
}

func newDLQInspectCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "inspect <event-id>",
		Short:         "Show all dead-letter entries for one event",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDLQInspect(rootOpts, args[0], cmd)
		},
	}
}

func runDLQInspect(opts *RootOptions, eventID string, cmd *cobra.Command) error {
	f := formatter(opts, cmd)

	eng, err := openEngine(opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	entries, err := eng.DLQ.Inspect(eventID)
	if err != nil {
		if dlq.IsNotFound(err) {
			return f.Fail(ErrCodeNotFound, err.Error())
		}
		return WrapExitError(ExitFailure, "dlq inspect failed", err)
	}

	if opts.Format == "json" {
		return f.SuccessJSON(entries)
	}
	printDLQEntries(cmd, entries)
	return nil
}

func newDLQRetryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <event-id>",
		Short: "Re-publish a dead-lettered event",
		Long: `Re-publish the original event behind a dead-letter entry at a new log
position, preserving its event id. The next consume pass will hand it to
the handler again.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDLQRetry(rootOpts, args[0], cmd)
		},
	}
}

func runDLQRetry(opts *RootOptions, eventID string, cmd *cobra.Command) error {
	f := formatter(opts, cmd)

	eng, err := openEngine(opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	ev, err := eng.RetryDLQ(eventID)
	if err != nil {
		if dlq.IsNotFound(err) {
			return f.Fail(ErrCodeNotFound, err.Error())
		}
		return WrapExitError(ExitFailure, "dlq retry failed", err)
	}

	if opts.Format == "json" {
		return f.SuccessJSON(PublishResult{EventID: ev.EventID, Sequence: ev.Sequence})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "re-published %s at sequence %d\n", ev.EventID, ev.Sequence)
	return nil
}

func printDLQEntries(cmd *cobra.Command, entries []dlq.Entry) {
	w := cmd.OutOrStdout()
	for _, e := range entries {
		fmt.Fprintf(w, "%s  retry=%d  %s  %s\n",
			e.SentToDLQAt.UTC().Format(time.RFC3339),
			e.RetryCount,
			e.EventID,
			e.Reason,
		)
	}
}
