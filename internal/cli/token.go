package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	transport "trivia-live/internal/transport/http"
)

// NewTokenCmd issues a host token for local use.
func NewTokenCmd(opts *rootOptions) *cobra.Command {
	var (
		user string
		ttl  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a host token",
		RunE: func(cmd *cobra.Command, args []string) error {
			auth := transport.NewAuthenticator(opts.cfg.Auth.JWTSecret, opts.cfg.Auth.Issuer)
			if !auth.Enabled() {
				return errors.New("auth.jwtSecret not configured")
			}
			token, err := auth.Issue(user, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVar(&user, "user", "", "user id to put in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
