package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/sbellem/SiennaNetwork/internal/contract"
	"github.com/sbellem/SiennaNetwork/internal/fixed"
)

func submit(cmd *cobra.Command, tx contract.Tx) error {
	c, err := newClient(cmd)
	if err != nil {
		return err
	}
	receipt, err := c.Execute(cmd.Context(), tx)
	if err != nil {
		return err
	}
	return printJSON(cmd, receipt)
}

// CmdTx submits a transaction given as JSON
func CmdTx() *cobra.Command {
	return &cobra.Command{
		Use:   "tx [file]",
		Short: "Submit a JSON transaction read from a file, or stdin when omitted or -",
		Example: `  rewardsctl tx <<<'{"kind":"claim","pool":"sienna-lp"}'
  rewardsctl tx configure.json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			var tx contract.Tx
			dec := json.NewDecoder(r)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&tx); err != nil {
				return fmt.Errorf("parse transaction: %w", err)
			}
			return submit(cmd, tx)
		},
	}
}

func amountTx(kind contract.Kind, short string) *cobra.Command {
	return &cobra.Command{
		Use:   string(kind) + " [pool] [amount]",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := fixed.ParseAmount(args[1])
			if err != nil {
				return fmt.Errorf("amount: %w", err)
			}
			return submit(cmd, contract.Tx{Kind: kind, Pool: args[0], Amount: &amount})
		},
	}
}

// CmdLock locks liquidity in a pool
func CmdLock() *cobra.Command {
	return amountTx(contract.KindLock, "Lock LP tokens in a pool")
}

// CmdRetrieve withdraws locked liquidity
func CmdRetrieve() *cobra.Command {
	return amountTx(contract.KindRetrieve, "Retrieve locked LP tokens from a pool")
}

// CmdClaim claims rewards from a pool
func CmdClaim() *cobra.Command {
	return &cobra.Command{
		Use:   "claim [pool]",
		Short: "Claim rewards from a pool",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return submit(cmd, contract.Tx{Kind: contract.KindClaim, Pool: args[0]})
		},
	}
}
