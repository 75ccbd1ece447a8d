// Package cli implements the dkimsign command line.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/synqronlabs/dkimsign/config"
	"github.com/synqronlabs/dkimsign/dkim"
)

// RootOptions holds the flags shared by all subcommands.
type RootOptions struct {
	// ConfigPath is the YAML configuration file.
	ConfigPath string
	// Verbose enables debug logging.
	Verbose bool
}

// AddFlags adds the root flags to cmd.
func (o *RootOptions) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&o.ConfigPath, "config", "c", "dkim.yaml",
		"path to the YAML configuration file")
	_ = cmd.MarkPersistentFlagFilename("config", "yaml", "yml")

	cmd.PersistentFlags().BoolVarP(&o.Verbose, "verbose", "v", false,
		"enable debug logging")
}

// logger returns a text logger writing to the command's stderr.
func (o *RootOptions) logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelInfo
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

// signer loads the configuration and builds a signer from it.
func (o *RootOptions) signer(cmd *cobra.Command) (*dkim.Signer, error) {
	f, err := config.Load(o.ConfigPath)
	if err != nil {
		return nil, err
	}
	return f.NewSigner(dkim.WithLogger(o.logger(cmd)))
}

// New returns the root dkimsign command.
func New() *cobra.Command {
	ro := &RootOptions{}

	cmd := &cobra.Command{
		Use:               "dkimsign",
		Short:             "Sign email messages with DKIM (relaxed, rsa-sha1).",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
	}
	ro.AddFlags(cmd)

	cmd.AddCommand(Sign(ro))
	cmd.AddCommand(Record(ro))
	cmd.AddCommand(Check(ro))
	cmd.AddCommand(Version())
	return cmd
}
