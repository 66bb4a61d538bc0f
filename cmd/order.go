package cmd

import (
	"fmt"
	"strconv"

	"github.com/quantfold/perpsim/pkg/types"
	"github.com/spf13/cobra"
)

//nolint:gochecknoglobals // Cobra boilerplate
var orderCmd = &cobra.Command{
	Use:   "order <symbol> <buy|sell> <quantity>",
	Short: "Place a simulated order",
	Long: `Places an order against the simulator.

Examples:
  # Market buy
  perpsim order BTC buy 0.5

  # Limit sell with leverage
  perpsim order BTC sell 0.5 --limit 105000 --leverage 3

  # Market buy with an attached exit plan
  perpsim order ETH buy 2 --stop 3000 --target 4200`,
	Args: cobra.ExactArgs(3),
	RunE: runOrder,
}

//nolint:gochecknoinits // Cobra boilerplate
func init() {
	rootCmd.AddCommand(orderCmd)
	orderCmd.Flags().Float64("limit", 0, "Limit price (market order when omitted)")
	orderCmd.Flags().Float64("leverage", 0, "Leverage for margin sizing")
	orderCmd.Flags().Float64("stop", 0, "Stop price for the exit plan")
	orderCmd.Flags().Float64("target", 0, "Target price for the exit plan")
	orderCmd.Flags().String("account", "", "Account id")
}

func runOrder(cmd *cobra.Command, args []string) error {
	client := newAPIClient(cmd)

	qty, err := strconv.ParseFloat(args[2], 64)
	if err != nil {
		return fmt.Errorf("parse quantity %q: %w", args[2], err)
	}

	account, _ := cmd.Flags().GetString("account")
	payload := map[string]any{
		"account":  account,
		"symbol":   args[0],
		"side":     args[1],
		"quantity": qty,
	}

	if limit, _ := cmd.Flags().GetFloat64("limit"); limit > 0 {
		payload["type"] = "limit"
		payload["limitPrice"] = limit
	}
	if leverage, _ := cmd.Flags().GetFloat64("leverage"); leverage > 0 {
		payload["leverage"] = leverage
	}

	stop, _ := cmd.Flags().GetFloat64("stop")
	target, _ := cmd.Flags().GetFloat64("target")
	if stop > 0 || target > 0 {
		plan := map[string]any{}
		if stop > 0 {
			plan["stop"] = stop
		}
		if target > 0 {
			plan["target"] = target
		}
		payload["exitPlan"] = plan
	}

	var exec types.Execution
	err = client.postJSON("/api/orders", payload, &exec)
	if err != nil {
		return err
	}

	if exec.Status == types.ExecRejected {
		fmt.Printf("REJECTED: %s\n", exec.Reason)
		return nil
	}

	fmt.Printf("%s  qty=%.6f  avg=%.4f  fees=%.6f  fills=%d\n",
		exec.Status, exec.TotalQuantity, exec.AveragePrice, exec.TotalFees, len(exec.Fills))
	return nil
}
