package cmd

import (
	"fmt"

	"github.com/quantfold/perpsim/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var bookCmd = &cobra.Command{
	Use:   "book <symbol>",
	Short: "Display the current order book for a market",
	Args:  cobra.ExactArgs(1),
	RunE:  runBook,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(bookCmd)
	bookCmd.Flags().Int("depth", 10, "Number of levels to display per side")
}

func runBook(cmd *cobra.Command, args []string) error {
	client := newAPIClient(cmd)
	depth, _ := cmd.Flags().GetInt("depth")

	var snap types.BookSnapshot
	err := client.getJSON("/api/orderbook?symbol="+args[0], &snap)
	if err != nil {
		return err
	}

	fmt.Printf("%s  mid=%.4f  spread=%.4f  (as of %s)\n\n",
		args[0], snap.MidPrice(), snap.Spread(), snap.Timestamp.Format("15:04:05"))
	fmt.Printf("%12s %12s  |  %-12s %-12s\n", "BID QTY", "BID", "ASK", "ASK QTY")

	for i := 0; i < depth; i++ {
		var bidQty, bid, ask, askQty string
		if i < len(snap.Bids) {
			bidQty = fmt.Sprintf("%.4f", snap.Bids[i].Quantity)
			bid = fmt.Sprintf("%.4f", snap.Bids[i].Price)
		}
		if i < len(snap.Asks) {
			ask = fmt.Sprintf("%.4f", snap.Asks[i].Price)
			askQty = fmt.Sprintf("%.4f", snap.Asks[i].Quantity)
		}
		if bid == "" && ask == "" {
			break
		}
		fmt.Printf("%12s %12s  |  %-12s %-12s\n", bidQty, bid, ask, askQty)
	}
	return nil
}
