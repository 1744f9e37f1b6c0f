package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewConsumeCommand creates the consume command.
func NewConsumeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "consume <consumer-id> <handler-cmd> [handler-args...]",
		Short: "Process all new events for a consumer",
		Long: `Process every log record beyond the consumer's saved offset.

The handler command is executed once per event with the event JSON on
stdin. Exit 0 marks the event handled (stdout becomes its stored result);
a non-zero exit dead-letters the event and the loop continues. Events whose
id already has a completion record are skipped without re-executing the
handler.

Prints "processed=N failed=M". Handler failures do not fail the command;
they are reported in the counts and the dead letter queue.

Examples:
  windlass consume billing ./handle-billing.sh
  windlass consume audit -- jq -e '.payload'`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConsume(rootOpts, args[0], args[1:], cmd)
		},
	}

	// Handler flags belong to the handler, not to windlass.
	cmd.Flags().SetInterspersed(false)

	return cmd
}

func runConsume(opts *RootOptions, consumerID string, handlerArgv []string, cmd *cobra.Command) error {
	f := formatter(opts, cmd)

	eng, err := openEngine(opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.Consume(consumerID, execHandler(handlerArgv))
	if err != nil {
		return WrapExitError(ExitFailure, "consume failed", err)
	}

	if opts.Format == "json" {
		return f.SuccessJSON(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "processed=%d failed=%d\n", res.Processed, res.Failed)
	if opts.Verbose && res.Skipped > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "skipped=%d (already completed)\n", res.Skipped)
	}
	return nil
}
