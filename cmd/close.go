package cmd

import (
	"fmt"

	"github.com/quantfold/perpsim/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var closeCmd = &cobra.Command{
	Use:   "close [symbols...]",
	Short: "Close open positions (all positions when no symbols given)",
	RunE:  runClose,
}

//nolint:gochecknoglobals // Cobra boilerplate
var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset the account to its initial capital",
	RunE:  runReset,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(closeCmd)
	rootCmd.AddCommand(resetCmd)
	closeCmd.Flags().String("account", "", "Account id")
	resetCmd.Flags().String("account", "", "Account id")
}

func runClose(cmd *cobra.Command, args []string) error {
	client := newAPIClient(cmd)
	account, _ := cmd.Flags().GetString("account")

	var results map[string]*types.Execution
	err := client.postJSON("/api/close", map[string]any{
		"account": account,
		"symbols": args,
	}, &results)
	if err != nil {
		return err
	}

	for symbol, exec := range results {
		if exec.Status == types.ExecRejected {
			fmt.Printf("%-8s REJECTED: %s\n", symbol, exec.Reason)
			continue
		}
		fmt.Printf("%-8s %s  qty=%.6f  avg=%.4f\n",
			symbol, exec.Status, exec.TotalQuantity, exec.AveragePrice)
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	client := newAPIClient(cmd)
	account, _ := cmd.Flags().GetString("account")

	var snap types.AccountSnapshot
	err := client.postJSON("/api/reset", map[string]any{"account": account}, &snap)
	if err != nil {
		return err
	}

	fmt.Printf("Account reset. Cash: %.2f %s\n", snap.CashBalance, snap.QuoteCurrency)
	return nil
}
