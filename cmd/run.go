package cmd

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/quantfold/perpsim/internal/app"
	"github.com/quantfold/perpsim/pkg/config"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the simulator",
	Long: `Starts the exchange simulator, which will:
1. Refresh order books for the registered markets from the data feed
2. Serve the REST API and websocket event stream
3. Accrue funding and mark accounts to market every refresh cycle
4. Auto-close positions whose stop or target is breached`,
	RunE: runSimulator,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(runCmd)
}

func runSimulator(cmd *cobra.Command, args []string) error {
	// .env is optional; environment variables win either way.
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := config.NewLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	application, err := app.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("create app: %w", err)
	}

	err = application.Run()
	if err != nil {
		return fmt.Errorf("run app: %w", err)
	}

	return nil
}
