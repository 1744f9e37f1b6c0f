package cli

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "status",
		Short:         "Summarize the store: log size, consumers, locks, DLQ depth",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(rootOpts, cmd)
		},
	}
}

func runStatus(opts *RootOptions, cmd *cobra.Command) error {
	f := formatter(opts, cmd)

	eng, err := openEngine(opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	st, err := eng.Status()
	if err != nil {
		return WrapExitError(ExitFailure, "status failed", err)
	}

	if opts.Format == "json" {
		return f.SuccessJSON(st)
	}

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "events:         %d\n", st.Events)
	fmt.Fprintf(w, "last sequence:  %d\n", st.LastSequence)
	fmt.Fprintf(w, "dlq entries:    %d\n", st.DLQEntries)
	fmt.Fprintf(w, "snapshots:      %d\n", st.Snapshots)

	fmt.Fprintf(w, "consumers:      %d\n", len(st.Consumers))
	names := make([]string, 0, len(st.Consumers))
	for name := range st.Consumers {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %s at %d\n", name, st.Consumers[name])
	}

	fmt.Fprintf(w, "active locks:   %d\n", len(st.ActiveLocks))
	for _, o := range st.ActiveLocks {
		fmt.Fprintf(w, "  %s held by pid %d\n", o.Resource, o.PID)
	}
	return nil
}
