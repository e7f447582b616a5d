package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"certledger/internal/platform/config"
	"certledger/internal/platform/database"
	"certledger/migrations"
)

func migrateCommand() *cobra.Command {
	var url string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the PostgreSQL schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			log := commonRun()
			pool, err := database.Open(cmd.Context(), database.DefaultConfig(url))
			if err != nil {
				return fmt.Errorf("connect (--database-url or DATABASE_URL): %w", err)
			}
			defer pool.Close() //nolint:errcheck // process exits right after

			if err := migrations.Up(cmd.Context(), pool.DB()); err != nil {
				return err
			}
			log.Info("schema applied")
			return nil
		},
	}
	cmd.Flags().StringVar(&url, "database-url", config.FromEnv().DatabaseURL, "PostgreSQL connection URL")
	return cmd
}
