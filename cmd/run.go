package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/sgriggs/mevflow/internal/app"
	"github.com/sgriggs/mevflow/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the pipeline",
	Long: `Starts the full pipeline:
1. Connect the provider pool and WebSocket subscriptions
2. Ingest, deduplicate and classify pending transactions and blocks
3. Route typed events to registered strategies
4. Admit opportunities through risk checks and the circuit breaker
5. Build, simulate and dispatch approved execution plans`,
	RunE: runPipeline,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		fmt.Printf("Warning: .env file not found\n")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger()
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger, nil)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
