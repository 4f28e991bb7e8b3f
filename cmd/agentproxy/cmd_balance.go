package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/adapter/flow"
	"github.com/diegofornalha/neo4j-agent-flow-sub000/internal/config"
)

func init() {
	balanceCmd.Flags().Bool("json", false, "print the full balance record as JSON")
	rootCmd.AddCommand(balanceCmd)
}

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Look up a Flow account balance",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		address := cfg.FlowDefaultAddress
		if len(args) == 1 {
			address = args[0]
		}

		client := flow.NewClient(cfg.FlowAccessURL, cfg.FlowNetwork, cfg.FlowTimeout)
		bal, err := client.GetBalance(cmd.Context(), address)
		if flow.IsNotFound(err) {
			return fmt.Errorf("account %s does not exist on %s", address, client.Network())
		}
		if err != nil {
			return err
		}

		if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(bal)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  (%s)\n", bal.Address, bal.BalanceFormatted, bal.Network)
		return nil
	},
}
