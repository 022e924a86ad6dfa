package main

import (
	"errors"
	"fmt"
	"time"

	userapp "feedcore/internal/core/user/service"
	userPort "feedcore/internal/ports/user"

	"github.com/spf13/cobra"
)

var (
	tokenTTL   time.Duration
	tokenAdmin bool
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Sign an API token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.App.JWTSecret == "" {
			return errors.New("JWT secret is not set (APP_JWT_SECRET)")
		}
		audience := ""
		if tokenAdmin {
			audience = userPort.AdminAudience
		}
		// signing needs no stores
		svc := userapp.NewUserService(nil, nil, []byte(cfg.App.JWTSecret), cfg.App.Issuer, logger)
		resp, err := svc.IssueToken(args[0], tokenTTL, audience)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), resp.Token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
	tokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "grant access to the admin routes")
}
