package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	jwttoken "certledger/internal/jwt_token"
	"certledger/internal/platform/config"
	"certledger/pkg/domain"
)

type tokenOutput struct {
	Token     string `json:"token"`
	Subject   string `json:"sub"`
	Role      string `json:"role"`
	ExpiresIn string `json:"expires_in"`
}

// tokenCommand mints a bearer token signed with the key the server reads
// from the environment. Without JWT_SIGNING_KEY that is the development key.
func tokenCommand() *cobra.Command {
	var (
		role   string
		ttl    time.Duration
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Generate a bearer token for a subject and role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := domain.ParseRole(role)
			if err != nil {
				return err
			}
			cfg := config.FromEnv()
			if ttl <= 0 {
				ttl = cfg.TokenTTL
			}
			svc := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, ttl)
			token, err := svc.GenerateToken(cmd.Context(), args[0], r)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(tokenOutput{Token: token, Subject: args[0], Role: string(r), ExpiresIn: ttl.String()})
			}
			_, err = fmt.Fprintln(out, token)
			return err
		},
	}
	cmd.Flags().StringVarP(&role, "role", "r", string(domain.RoleVerifier), "issuer, holder or verifier")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "token lifetime (defaults to TOKEN_TTL)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print token and claims as JSON")
	return cmd
}
