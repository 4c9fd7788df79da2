package main

import (
	"github.com/spf13/cobra"

	"github.com/sbellem/SiennaNetwork/internal/types"
)

// CmdStatus queries a pool, and an account in it when --address is set
func CmdStatus() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status [pool]",
		Short: "Query pool state, and account state with --address and --key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			at, err := momentFlag(cmd)
			if err != nil {
				return err
			}
			address, key, err := accountFlags(cmd)
			if err != nil {
				return err
			}
			status, err := c.Status(cmd.Context(), args[0], at, address, key)
			if err != nil {
				return err
			}
			return printJSON(cmd, status)
		},
	}
	cmd.Flags().String(flagAt, "", "moment to project to, default now")
	addAccountFlags(cmd)
	return cmd
}

// CmdSimulate evaluates claims without executing them
func CmdSimulate() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate [pool...]",
		Short: "Simulate claims in the given pools, or all pools",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			at, err := momentFlag(cmd)
			if err != nil {
				return err
			}
			address, key, err := accountFlags(cmd)
			if err != nil {
				return err
			}
			sim, err := c.SimulateClaims(cmd.Context(), args, address, key, at)
			if err != nil {
				return err
			}
			return printJSON(cmd, sim)
		},
	}
	cmd.Flags().String(flagAt, "", "moment to project to, default now")
	addAccountFlags(cmd)
	_ = cmd.MarkFlagRequired(flagAddress)
	_ = cmd.MarkFlagRequired(flagKey)
	return cmd
}

// CmdPools lists pools
func CmdPools() *cobra.Command {
	return &cobra.Command{
		Use:   "pools",
		Short: "List pools and their escrows",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			pools, err := c.Pools(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd, pools)
		},
	}
}

// CmdSummary reports aggregates over all pools
func CmdSummary() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Aggregate stake, budget and payouts over all pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			at, err := momentFlag(cmd)
			if err != nil {
				return err
			}
			summary, err := c.Summary(cmd.Context(), at)
			if err != nil {
				return err
			}
			return printJSON(cmd, summary)
		},
	}
	cmd.Flags().String(flagAt, "", "moment to project to, default now")
	return cmd
}

// CmdReceipt fetches and verifies a receipt
func CmdReceipt() *cobra.Command {
	return &cobra.Command{
		Use:   "receipt [id]",
		Short: "Fetch a transaction receipt and verify its content id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			r, err := c.Receipt(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, r)
		},
	}
}

// CmdBalance queries a token balance
func CmdBalance() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "balance [token]",
		Short: "Query a token balance with the account's token viewing key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			hash, err := cmd.Flags().GetString("code-hash")
			if err != nil {
				return err
			}
			address, key, err := accountFlags(cmd)
			if err != nil {
				return err
			}
			link := types.ContractLink{Address: types.Address(args[0]), CodeHash: hash}
			amount, err := c.Balance(cmd.Context(), link, address, key)
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"token": link, "address": address, "amount": amount})
		},
	}
	cmd.Flags().String("code-hash", "", "code hash of the token contract")
	addAccountFlags(cmd)
	_ = cmd.MarkFlagRequired(flagAddress)
	return cmd
}
