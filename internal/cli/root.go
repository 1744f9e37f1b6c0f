package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Root    string // storage root directory
	Verbose bool
	Format  string // "json" | "text"
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the windlass CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "windlass",
		Short: "windlass - durable coordination for fleets of worker processes",
		Long: `Durable, crash-safe coordination primitives backed by a shared filesystem:
an append-only event log, per-workflow checkpoints, an idempotency cache,
advisory locks with dead-owner detection, a dead letter queue, consumer
offsets and log compaction.

Workers may start, crash and restart at any point; the stores under the
storage root let them resume exactly where they left off.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.Root, "root", "", "storage root directory (default .windlass, env WINDLASS_ROOT)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Add subcommands
	cmd.AddCommand(NewPublishCommand(opts))
	cmd.AddCommand(NewConsumeCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewCheckpointCommand(opts))
	cmd.AddCommand(NewLockCommand(opts))
	cmd.AddCommand(NewDLQCommand(opts))
	cmd.AddCommand(NewCompactCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewIndexCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
