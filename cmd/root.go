package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var rootCmd = &cobra.Command{
	Use:   "perpsim",
	Short: "Perpetual-futures exchange simulator",
	Long: `Perpetual-futures exchange simulator backed by live market data.

The simulator refreshes order books from an external feed, matches paper
orders against them with slippage and latency, tracks margin and PnL per
account, accrues funding, and auto-closes positions when their stop or
target is breached.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.PersistentFlags().String("host", "http://localhost:8080", "Base URL of a running simulator (client commands)")
}
