package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"certledger/internal/certificate/fingerprint"
	"certledger/pkg/validation"
)

// fingerprintCommand computes a certificate fingerprint without a server,
// for checking a diploma against a published hash.
func fingerprintCommand() *cobra.Command {
	var (
		f        fingerprint.Fields
		issuedOn string
	)
	cmd := &cobra.Command{
		Use:   "fingerprint",
		Short: "Compute the fingerprint of certificate fields",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			day, err := validation.ParseISODate(issuedOn)
			if err != nil {
				return err
			}
			f.IssuedOn = day
			_, err = fmt.Fprintln(cmd.OutOrStdout(), fingerprint.Compute(f))
			return err
		},
	}
	cmd.Flags().StringVar(&f.IssuerID, "issuer", "", "issuer identity")
	cmd.Flags().StringVar(&f.HolderID, "holder", "", "holder identity")
	cmd.Flags().StringVar(&f.Title, "title", "", "certificate title")
	cmd.Flags().StringVar(&f.Classification.College, "college", "", "college")
	cmd.Flags().StringVar(&f.Classification.Course, "course", "", "course")
	cmd.Flags().StringVar(&f.Classification.Major, "major", "", "major")
	cmd.Flags().StringVar(&issuedOn, "issued-on", "", "issue date, YYYY-MM-DD")
	for _, name := range []string{"issuer", "holder", "title", "issued-on"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}
