package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "mevflow",
	Short: "Chain event decision and dispatch pipeline",
	Long: `mevflow watches the mempool and new blocks through a redundant
provider pool, classifies events for registered strategies, gates the
resulting opportunities through weighted risk checks and a circuit
breaker, and dispatches approved plans to the public mempool or a
private bundle relay.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}
