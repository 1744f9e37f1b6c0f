package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/windlass-io/windlass/internal/checkpoint"
)

// CheckpointSaveOptions holds flags for checkpoint save.
type CheckpointSaveOptions struct {
	*RootOptions
	State string
}

// NewCheckpointCommand creates the checkpoint command group.
func NewCheckpointCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkpoint",
		Short: "Save or restore workflow checkpoints",
		Long: `Persist and restore per-workflow progress snapshots.

A workflow saves a checkpoint on every stage transition; after a crash it
restores the checkpoint and resumes from the recorded stage and state.`,
	}

	cmd.AddCommand(newCheckpointSaveCommand(rootOpts))
	cmd.AddCommand(newCheckpointRestoreCommand(rootOpts))

	return cmd
}

func newCheckpointSaveCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckpointSaveOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "save <workflow-id> <stage> <sequence>",
		Short: "Persist a workflow checkpoint",
		Long: `Persist a checkpoint, atomically replacing any previous one for the
workflow. Sequence is the log position this checkpoint corresponds to.

Example:
  windlass checkpoint save deploy-7 build 12 --state '{"artifacts":3}'`,
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointSave(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.State, "state", "{}", "workflow state as a JSON object")

	return cmd
}

func runCheckpointSave(opts *CheckpointSaveOptions, args []string, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd)

	sequence, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil || sequence < 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("invalid sequence %q: must be a non-negative integer", args[2]))
	}
	state, err := parseJSONDocument("state", opts.State)
	if err != nil {
		return err
	}

	eng, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer eng.Close()

	cp, err := eng.Checkpoints.Save(args[0], args[1], sequence, state)
	if err != nil {
		return WrapExitError(ExitFailure, "checkpoint save failed", err)
	}

	if opts.Format == "json" {
		return f.SuccessJSON(cp)
	}
	fmt.Fprintln(cmd.OutOrStdout(), cp.CheckpointID)
	return nil
}

func newCheckpointRestoreCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <workflow-id>",
		Short: "Print the workflow's most recent checkpoint",
		Long: `Print the most recent checkpoint for a workflow.

Exits 1 if no checkpoint exists; the workflow should then start fresh.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheckpointRestore(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runCheckpointRestore(opts *RootOptions, workflowID string, cmd *cobra.Command) error {
	f := formatter(opts, cmd)

	eng, err := openEngine(opts)
	if err != nil {
		return err
	}
	defer eng.Close()

	cp, err := eng.Checkpoints.Restore(workflowID)
	if err != nil {
		if checkpoint.IsNotFound(err) {
			return f.Fail(ErrCodeNotFound, err.Error())
		}
		return WrapExitError(ExitFailure, "checkpoint restore failed", err)
	}

	if opts.Format == "json" {
		return f.SuccessJSON(cp)
	}
	out, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return WrapExitError(ExitFailure, "encode checkpoint", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}
