// voicebox manages named reference voices and speaks text in them.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const flagConfig = "config"

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "voicebox",
		Short:         "Voice profile store and speech synthesis",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, flagConfig, "",
		"Path to a TOML config file (defaults to the central configurator)")

	cmd.AddCommand(
		newServeCmd(opts),
		newWorkerCmd(opts),
		newVoicesCmd(opts),
		newGenerateCmd(opts),
		newHealthCmd(opts),
	)

	return cmd
}

func main() {
	err := newRootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voicebox exited with error: %v\n", err)
		os.Exit(1)
	}
}
