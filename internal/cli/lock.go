package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/windlass-io/windlass/internal/engine"
	"github.com/windlass-io/windlass/internal/lock"
)

// LockOptions holds flags for the lock commands.
type LockOptions struct {
	*RootOptions
	Timeout  time.Duration
	OwnerPID int
}

// NewLockCommand creates the lock command group.
func NewLockCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &LockOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Acquire or release named locks",
		Long: `Advisory mutual exclusion for named resources on this host's filesystem.

Locks record their owner pid. By default the CLI registers its parent
process (the invoking worker) as the owner, so the lock outlives this
short-lived command; a lock whose owner process dies is detected as stale
and broken by the next acquirer.`,
	}

	cmd.PersistentFlags().IntVar(&opts.OwnerPID, "owner-pid", 0, "pid to record as lock owner (default: parent process)")

	cmd.AddCommand(newLockAcquireCommand(opts))
	cmd.AddCommand(newLockReleaseCommand(opts))

	return cmd
}

func newLockAcquireCommand(opts *LockOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acquire <resource>",
		Short: "Block until the lock is held or the timeout elapses",
		Long: `Block until the named lock is acquired or the timeout elapses.

Exits 1 on timeout. A stale lock (dead owner) is broken and re-acquired
immediately, well before the timeout.

Example:
  windlass lock acquire repo-main --timeout 5s`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLockAcquire(opts, args[0], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "acquire timeout (default: lock_timeout from config)")

	return cmd
}

func runLockAcquire(opts *LockOptions, resource string, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd)

	eng, err := openEngine(opts.RootOptions, engine.WithLockOwnerPID(lockOwnerPID(opts)))
	if err != nil {
		return err
	}
	defer eng.Close()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Duration(eng.Config().LockTimeout)
	}

	if err := eng.Locks.Acquire(resource, timeout); err != nil {
		if lock.IsTimeout(err) {
			return f.Fail(ErrCodeTimeout, err.Error())
		}
		return WrapExitError(ExitFailure, "lock acquire failed", err)
	}

	if opts.Format == "json" {
		return f.SuccessJSON(map[string]any{"resource": resource, "acquired": true})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "acquired %s\n", resource)
	return nil
}

func newLockReleaseCommand(opts *LockOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "release <resource>",
		Short: "Release a held lock",
		Long: `Release the named lock if held by the caller's owner pid.

Exits 1 if the lock is not held, or is held by a different owner.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLockRelease(opts, args[0], cmd)
		},
	}

	return cmd
}

func runLockRelease(opts *LockOptions, resource string, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd)

	eng, err := openEngine(opts.RootOptions, engine.WithLockOwnerPID(lockOwnerPID(opts)))
	if err != nil {
		return err
	}
	defer eng.Close()

	if err := eng.Locks.Release(resource); err != nil {
		var nh *lock.NotHeldError
		if errors.As(err, &nh) {
			return f.Fail(ErrCodeNotHeld, err.Error())
		}
		return WrapExitError(ExitFailure, "lock release failed", err)
	}

	if opts.Format == "json" {
		return f.SuccessJSON(map[string]any{"resource": resource, "released": true})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "released %s\n", resource)
	return nil
}

// lockOwnerPID resolves the owner pid flag: explicit value, else the parent
// process (the worker that invoked this CLI).
func lockOwnerPID(opts *LockOptions) int {
	if opts.OwnerPID > 0 {
		return opts.OwnerPID
	}
	return os.Getppid()
}
