package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"certledger/pkg/secrets"
)

// adminTokenCommand prints a fresh operator token and the bcrypt hash to
// deploy as ADMIN_API_TOKEN_HASH. Only the hash belongs in the server's
// environment.
func adminTokenCommand() *cobra.Command {
	var fromValue string
	cmd := &cobra.Command{
		Use:   "admin-token",
		Short: "Generate an admin token and its hash",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			token := fromValue
			if token == "" {
				var err error
				if token, err = secrets.Generate(); err != nil {
					return err
				}
			}
			hash, err := secrets.Hash(token)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "ADMIN_API_TOKEN=%s\n", token); err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "ADMIN_API_TOKEN_HASH=%s\n", hash)
			return err
		},
	}
	cmd.Flags().StringVar(&fromValue, "token", "", "hash this token instead of generating one")
	return cmd
}
