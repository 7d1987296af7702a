package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	jwttoken "carepilot/internal/jwt_token"
)

// newTokenCmd signs a token with the server's shared key, for local servers
// that have no practice app in front of them.
func newTokenCmd() *cobra.Command {
	var (
		key, issuer, audience, user string
		ttl                         time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				return errors.New("a signing key is required: pass --signing-key or set JWT_SIGNING_KEY")
			}
			userID, err := uuid.Parse(user)
			if err != nil {
				return fmt.Errorf("--user must be a UUID: %w", err)
			}
			token, err := jwttoken.New(key, issuer, audience).Issue(userID, uuid.NewString(), ttl)
			if err != nil {
				return fmt.Errorf("sign token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&key, "signing-key", os.Getenv("JWT_SIGNING_KEY"), "HS256 signing key (default $JWT_SIGNING_KEY)")
	f.StringVar(&issuer, "issuer", envOr("JWT_ISSUER", "carepilot"), "token issuer")
	f.StringVar(&audience, "audience", envOr("JWT_AUDIENCE", "carepilot-api"), "token audience")
	f.StringVar(&user, "user", "", "therapist user id")
	f.DurationVar(&ttl, "ttl", time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
