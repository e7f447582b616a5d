// Command certctl is the operator tool for certledger. It mints development
// and admin tokens, computes fingerprints offline, applies the PostgreSQL
// schema, and runs a standalone ledger node.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"certledger/internal/platform/logger"
)

const programName = "certctl"

var globalFlags = struct {
	debug bool
}{}

func commonRun() *slog.Logger {
	level := "info"
	if globalFlags.debug {
		level = "debug"
	}
	log := logger.NewWithWriter(os.Stderr, level)
	slog.SetDefault(log)
	if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
		log.Debug(fmt.Sprintf(format, v...), "component", programName)
	})); err != nil {
		log.Warn("failed to set GOMAXPROCS", "error", err)
	}
	return log
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Operator tooling for certledger",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().
		BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.AddCommand(tokenCommand())
	rootCmd.AddCommand(adminTokenCommand())
	rootCmd.AddCommand(fingerprintCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(ledgerNodeCommand())
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(1)
	}
}
