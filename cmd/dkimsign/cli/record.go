package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DefaultTTL is the TTL of the printed key record.
const DefaultTTL = 3600

// Record returns the record command.
func Record(ro *RootOptions) *cobra.Command {
	var ttl uint32

	cmd := &cobra.Command{
		Use:   "record [--ttl N]",
		Short: "Print the DNS TXT record that publishes the public key.",
		Long: `Print the DNS TXT record that publishes the public key.

    The record is owned by <s>._domainkey.<d> and is printed in zone file
    format, split into 255 byte strings.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer, err := ro.signer(cmd)
			if err != nil {
				return err
			}
			record, err := signer.Record()
			if err != nil {
				return err
			}
			rr, err := record.TXT(signer.RecordName(), ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rr.String())
			return err
		},
	}
	cmd.Flags().Uint32Var(&ttl, "ttl", DefaultTTL, "TTL of the record in seconds")
	return cmd
}
