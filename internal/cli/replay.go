package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <start-sequence> <handler-cmd> [handler-args...]",
		Short: "Re-run a handler over historical events",
		Long: `Re-invoke the handler for every record at or after the given sequence,
in log order, ignoring consumer offsets and the idempotency cache.

This is a diagnostic/rebuild tool, not normal consumption: the handler must
be safe to run against already-applied events (e.g. a projection rebuild).
Unlike consume, a handler failure aborts the replay.

Example:
  windlass replay 1 ./rebuild-projection.sh`,
		Args:          cobra.MinimumNArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(rootOpts, args[0], args[1:], cmd)
		},
	}

	cmd.Flags().SetInterspersed(false)

	return cmd
}

func runReplay(opts *RootOptions, startArg string, handlerArgv []string, cmd *cobra.Command) error {
	f := formatter(opts, cmd)

	start, err := strconv.ParseInt(startArg, 10, 64)
	if err != nil || start < 1 {
		return NewExitError(ExitFailure, fmt.Sprintf("invalid start sequence %q: must be a positive integer", startArg))
	}

	eng, err := openEngine(opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.Replay(start, execHandler(handlerArgv))
	if err != nil {
		return WrapExitError(ExitFailure, "replay failed", err)
	}

	if opts.Format == "json" {
		return f.SuccessJSON(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "replayed=%d\n", res.Replayed)
	if opts.Verbose && res.Corrupt > 0 {
		fmt.Fprintf(cmd.OutOrStdout(), "corrupt=%d (skipped)\n", res.Corrupt)
	}
	return nil
}
