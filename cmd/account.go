package cmd

import (
	"fmt"

	"github.com/quantfold/perpsim/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Display account balances and open positions",
	RunE:  runAccount,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(accountCmd)
	accountCmd.Flags().String("account", "", "Account id (default account when empty)")
}

func runAccount(cmd *cobra.Command, args []string) error {
	client := newAPIClient(cmd)
	account, _ := cmd.Flags().GetString("account")

	var snap types.AccountSnapshot
	err := client.getJSON("/api/account?account="+account, &snap)
	if err != nil {
		return err
	}

	fmt.Printf("Cash:       %.2f %s\n", snap.CashBalance, snap.QuoteCurrency)
	fmt.Printf("Available:  %.2f\n", snap.AvailableCash)
	fmt.Printf("Borrowed:   %.2f\n", snap.BorrowedBalance)
	fmt.Printf("Equity:     %.2f\n", snap.Equity)
	fmt.Printf("Margin:     %.2f\n", snap.MarginBalance)
	fmt.Printf("Realized:   %.2f   Unrealized: %.2f   Funding: %.2f\n",
		snap.TotalRealizedPnl, snap.TotalUnrealizedPnl, snap.TotalFundingPnl)

	if len(snap.Positions) == 0 {
		fmt.Println("\nNo open positions.")
		return nil
	}

	fmt.Printf("\n%-8s %-6s %10s %12s %12s %12s %10s\n",
		"SYMBOL", "SIDE", "QTY", "ENTRY", "MARK", "UPNL", "MARGIN")
	for _, pos := range snap.Positions {
		fmt.Printf("%-8s %-6s %10.4f %12.4f %12.4f %12.4f %10.2f\n",
			pos.Symbol, pos.Side, pos.Quantity, pos.AvgEntryPrice,
			pos.MarkPrice, pos.UnrealizedPnl, pos.Margin)
	}
	return nil
}
