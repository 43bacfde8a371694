package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/missioncontrol"
	"github.com/jpalmerr/missioncontrol/config"
)

// tokenCmd mints a bearer token for writes.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a bearer token for writes",
	Long: `Print an HS256 bearer token accepted by a server whose auth_secret
matches. The secret comes from --secret, $MC_SECRET, or the auth_secret of
the config file given with -c, in that order.

Example:
  export MC_TOKEN=$(missioncontrol token -c config.yaml --subject ci --ttl 1h)
  missioncontrol set ledger run-1 cost=2`,
	RunE: runToken,
}

func init() {
	rootCmd.AddCommand(tokenCmd)

	tokenCmd.Flags().String("secret", "", "signing secret")
	tokenCmd.Flags().StringP("config", "c", "", "read the secret from this config file")
	tokenCmd.Flags().String("subject", "operator", "token subject")
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime")
}

func runToken(cmd *cobra.Command, args []string) error {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		secret = os.Getenv("MC_SECRET")
	}
	if configFile, _ := cmd.Flags().GetString("config"); secret == "" && configFile != "" {
		cfg, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		secret = cfg.AuthSecret
	}
	if secret == "" {
		return errors.New("no secret: use --secret, $MC_SECRET or a config with auth_secret")
	}

	subject, _ := cmd.Flags().GetString("subject")
	ttl, _ := cmd.Flags().GetDuration("ttl")
	token, err := missioncontrol.IssueToken(secret, subject, ttl)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
