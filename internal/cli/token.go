package cli

import (
	"errors"
	"fmt"
	"time"

	"festival-mileage/internal/auth"
	"festival-mileage/internal/config"
	"github.com/spf13/cobra"
)

// NewTokenCmd issues a signed token for local testing and kiosk devices.
func NewTokenCmd(configPath *string) *cobra.Command {
	var (
		name  string
		email string
		ttl   time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token UID",
		Short: "Issue an HS256 bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			if cfg.Auth.Provider != "jwt" {
				return errors.New("tokens can only be issued with the jwt auth provider")
			}
			verifier, err := auth.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
			if err != nil {
				return err
			}
			token, err := verifier.Issue(auth.Identity{UID: args[0], DisplayName: name, Email: email}, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&name, "name", "", `display name, e.g. "20315 Kim"`)
	cmd.Flags().StringVar(&email, "email", "", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
