package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/windlass-io/windlass/internal/config"
	"github.com/windlass-io/windlass/internal/engine"
)

// openEngine resolves the storage root, loads configuration and opens the
// engine for one command invocation.
func openEngine(opts *RootOptions, engineOpts ...engine.Option) (*engine.Engine, error) {
	root := config.ResolveRoot(opts.Root)
	cfg, err := config.Load(root)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to load configuration", err)
	}
	eng, err := engine.Open(cfg, engineOpts...)
	if err != nil {
		return nil, WrapExitError(ExitFailure, "failed to open engine", err)
	}
	return eng, nil
}

// loadConfig resolves the storage root and loads configuration without
// opening the engine. Used by commands that only touch derived state.
func loadConfig(opts *RootOptions) (config.Config, error) {
	root := config.ResolveRoot(opts.Root)
	cfg, err := config.Load(root)
	if err != nil {
		return config.Config{}, WrapExitError(ExitFailure, "failed to load configuration", err)
	}
	return cfg, nil
}

// formatter builds the output formatter for a command.
func formatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}
}

// parseJSONDocument parses a --payload / --state style JSON object flag.
func parseJSONDocument(flagName, raw string) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, NewExitError(ExitFailure, fmt.Sprintf("invalid --%s JSON: %v", flagName, err))
	}
	return doc, nil
}
