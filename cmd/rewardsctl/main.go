// Package main is rewardsctl, a command line client of rewardsd.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/sbellem/SiennaNetwork/internal/auth"
	"github.com/sbellem/SiennaNetwork/internal/client"
	"github.com/sbellem/SiennaNetwork/internal/config"
	"github.com/sbellem/SiennaNetwork/internal/types"
)

const (
	flagServer  = "server"
	flagToken   = "token"
	flagRetries = "retries"
	flagSigner  = "signer"
	flagAt      = "at"
	flagAddress = "address"
	flagKey     = "key"
)

func main() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the rewardsctl command tree
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "rewardsctl",
		Short:         "Query and transact with a rewardsd server",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if v, _ := cmd.Flags().GetBool("verbose"); v {
				logrus.SetLevel(logrus.DebugLevel)
			} else {
				logrus.SetLevel(logrus.WarnLevel)
			}
		},
	}
	root.PersistentFlags().String(flagServer, config.GetEnvOrDefault("REWARDS_URL", "http://localhost:8080"), "rewardsd base URL")
	root.PersistentFlags().String(flagToken, config.GetEnvOrDefault("REWARDS_TOKEN", ""), "bearer token for transactions")
	root.PersistentFlags().String(flagSigner, config.GetEnvOrDefault("REWARDS_SIGNER", ""), "address that must have signed receipts")
	root.PersistentFlags().Int(flagRetries, 3, "retries of unavailable or rate limited requests")
	root.PersistentFlags().BoolP("verbose", "v", false, "debug logging")

	root.AddCommand(
		CmdLogin(),
		CmdToken(),
		CmdTx(),
		CmdLock(),
		CmdRetrieve(),
		CmdClaim(),
		CmdStatus(),
		CmdSimulate(),
		CmdPools(),
		CmdSummary(),
		CmdReceipt(),
		CmdBalance(),
	)
	return root
}

func newClient(cmd *cobra.Command) (*client.Client, error) {
	server, err := cmd.Flags().GetString(flagServer)
	if err != nil {
		return nil, err
	}
	token, err := cmd.Flags().GetString(flagToken)
	if err != nil {
		return nil, err
	}
	retries, err := cmd.Flags().GetInt(flagRetries)
	if err != nil {
		return nil, err
	}
	signer, err := cmd.Flags().GetString(flagSigner)
	if err != nil {
		return nil, err
	}
	return client.New(server,
		client.WithToken(token),
		client.WithSigner(types.Address(signer)),
		client.WithRetries(retries, 500*time.Millisecond, 3*time.Second),
	), nil
}

func printJSON(cmd *cobra.Command, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}

// momentFlag reads --at, nil when unset
func momentFlag(cmd *cobra.Command) (*types.Moment, error) {
	raw, err := cmd.Flags().GetString(flagAt)
	if err != nil || raw == "" {
		return nil, err
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("--%s: %w", flagAt, err)
	}
	m := types.Moment(n)
	return &m, nil
}

func addAccountFlags(cmd *cobra.Command) {
	cmd.Flags().String(flagAddress, "", "account address")
	cmd.Flags().String(flagKey, "", "viewing key of the account")
}

func accountFlags(cmd *cobra.Command) (types.Address, string, error) {
	address, err := cmd.Flags().GetString(flagAddress)
	if err != nil {
		return "", "", err
	}
	key, err := cmd.Flags().GetString(flagKey)
	return types.Address(address), key, err
}

// CmdLogin exchanges a viewing key for a bearer token
func CmdLogin() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Exchange a viewing key for a bearer token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient(cmd)
			if err != nil {
				return err
			}
			address, key, err := accountFlags(cmd)
			if err != nil {
				return err
			}
			resp, err := c.Login(cmd.Context(), address, key)
			if err != nil {
				return err
			}
			return printJSON(cmd, resp)
		},
	}
	addAccountFlags(cmd)
	_ = cmd.MarkFlagRequired(flagAddress)
	_ = cmd.MarkFlagRequired(flagKey)
	return cmd
}

// CmdToken signs a bearer token offline with the server's secret
func CmdToken() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token [address]",
		Short: "Sign a bearer token with the shared JWT secret",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			secret, err := cmd.Flags().GetString("secret")
			if err != nil {
				return err
			}
			if len(secret) < 16 {
				return fmt.Errorf("--secret must be at least 16 bytes")
			}
			ttl, err := cmd.Flags().GetDuration("ttl")
			if err != nil {
				return err
			}
			tok, exp, err := auth.NewIssuer(secret, ttl).Issue(types.Address(args[0]))
			if err != nil {
				return err
			}
			return printJSON(cmd, map[string]any{"token": tok, "expires_at": exp})
		},
	}
	cmd.Flags().String("secret", config.GetEnvOrDefault("JWT_SECRET", ""), "JWT signing secret")
	cmd.Flags().Duration("ttl", 15*time.Minute, "token lifetime")
	return cmd
}
