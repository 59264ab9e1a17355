package cli

import (
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/gonglijing/nbconsole/internal/auth"
)

func newTokenCommand(opts *rootOptions) *cobra.Command {
	var (
		subject string
		role    string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token signed with the configured JWT secret",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.cfg.JWTSecret == "" {
				return errors.New("jwt secret not configured (JWT_SECRET)")
			}
			token, err := auth.NewJWTManager([]byte(opts.cfg.JWTSecret)).GenerateToken(subject, role, ttl)
			if err != nil {
				return err
			}
			fprintf(cmd.OutOrStdout(), "%s\n", token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "nbconsole", "token subject")
	cmd.Flags().StringVar(&role, "role", "admin", "token role claim")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenTTL, "token lifetime")
	return cmd
}
