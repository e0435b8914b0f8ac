package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mossy-p/reception-signaling/internal/middleware"
)

var (
	tokenName       string
	tokenDepartment string
	tokenUserID     string
	tokenTTL        time.Duration

	tokenCmd = &cobra.Command{
		Use:   "token",
		Short: "Issue a staff token for the dashboard or for testing",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if tokenName == "" {
				return errors.New("--name is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ttl := tokenTTL
			if ttl <= 0 {
				ttl = cfg.Auth.TokenTTL
			}
			token, _, err := middleware.IssueToken(cfg.Auth.JWTSecret, tokenUserID, tokenName, tokenDepartment, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
)

func init() {
	tokenCmd.Flags().StringVar(&tokenName, "name", "", "staff display name")
	tokenCmd.Flags().StringVar(&tokenDepartment, "department", "", "staff department")
	tokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "stable staff user id (random when empty)")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to auth.token_ttl)")
}
