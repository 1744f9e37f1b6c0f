package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewCompactCommand creates the compact command.
func NewCompactCommand(rootOpts *RootOptions) *cobra.Command {
	var prune bool

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Snapshot the event log and optionally prune consumed events",
		Long: `Write a point-in-time snapshot of the event log, and with --prune drop
events already consumed by every registered consumer and covered by every
checkpoint. Pruning never runs without a snapshot.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(rootOpts, prune, cmd)
		},
	}

	cmd.Flags().BoolVar(&prune, "prune", false, "prune events below the consume horizon after snapshotting")

	return cmd
}

func runCompact(opts *RootOptions, prune bool, cmd *cobra.Command) error {
	f := formatter(opts, cmd)

	eng, err := openEngine(opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	res, err := eng.Compact(prune)
	if err != nil {
		return WrapExitError(ExitFailure, "compact failed", err)
	}

	if opts.Format == "json" {
		return f.SuccessJSON(res)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "snapshot %s\n", res.SnapshotPath)
	if prune {
		fmt.Fprintf(cmd.OutOrStdout(), "pruned=%d kept=%d\n", res.Pruned, res.Kept)
	}
	return nil
}
