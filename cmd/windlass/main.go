package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/windlass-io/windlass/internal/cli"
)

func main() {
	// Load .env file (ignore error if not found)
	_ = godotenv.Load()

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
