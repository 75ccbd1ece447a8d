package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	dkimdns "github.com/synqronlabs/dkimsign/dns"
)

// CheckOptions holds the flags of the check command.
type CheckOptions struct {
	// Nameservers overrides the system resolvers.
	Nameservers []string
	// Timeout is the per query timeout.
	Timeout time.Duration
}

// AddFlags adds the check flags to cmd.
func (o *CheckOptions) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&o.Nameservers, "nameserver", nil,
		"nameserver to query, host:port (default from /etc/resolv.conf)")
	cmd.Flags().DurationVar(&o.Timeout, "timeout", 5*time.Second,
		"timeout per DNS query")
}

// Check returns the check command.
func Check(ro *RootOptions) *cobra.Command {
	o := &CheckOptions{}

	cmd := &cobra.Command{
		Use:   "check [--nameserver HOST:PORT]",
		Short: "Check that DNS publishes the configured public key.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			signer, err := ro.signer(cmd)
			if err != nil {
				return err
			}
			resolver := dkimdns.NewResolver(dkimdns.ResolverConfig{
				Nameservers: o.Nameservers,
				Timeout:     o.Timeout,
			})
			record, err := signer.CheckRecord(cmd.Context(), resolver)
			if err != nil {
				return err
			}
			status := "ok"
			if record.IsTesting() {
				status = "ok (testing)"
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", signer.RecordName(), status)
			return err
		},
	}
	o.AddFlags(cmd)
	return cmd
}
