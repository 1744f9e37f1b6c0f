package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/windlass-io/windlass/internal/schema"
)

// PublishOptions holds flags for the publish command.
type PublishOptions struct {
	*RootOptions
	Payload string
}

// PublishResult is the published event's identity.
type PublishResult struct {
	EventID  string `json:"event_id"`
	Sequence int64  `json:"sequence"`
}

// NewPublishCommand creates the publish command.
func NewPublishCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PublishOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "publish <event-type>",
		Short: "Append one event to the log",
		Long: `Append one event to the log and print its event id.

The event type is a free-form dotted string (e.g. workflow.started). If a
schema file exists at <root>/schemas/<event-type>.cue the payload must
satisfy it, otherwise nothing is appended.

Examples:
  windlass publish workflow.started --payload '{"workflow_id":"deploy-7"}'
  windlass publish build.finished --payload '{"status":"green"}' --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPublish(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Payload, "payload", "{}", "event payload as a JSON object")

	return cmd
}

func runPublish(opts *PublishOptions, eventType string, cmd *cobra.Command) error {
	f := formatter(opts.RootOptions, cmd)

	payload, err := parseJSONDocument("payload", opts.Payload)
	if err != nil {
		return err
	}

	eng, err := openEngine(opts.RootOptions)
	if err != nil {
		return err
	}
	defer eng.Close()

	ev, err := eng.Publish(eventType, payload)
	if err != nil {
		if schema.IsValidation(err) {
			return f.Fail(ErrCodeValidation, err.Error())
		}
		return WrapExitError(ExitFailure, "publish failed", err)
	}

	if opts.Format == "json" {
		return f.SuccessJSON(PublishResult{EventID: ev.EventID, Sequence: ev.Sequence})
	}
	fmt.Fprintln(cmd.OutOrStdout(), ev.EventID)
	return nil
}
