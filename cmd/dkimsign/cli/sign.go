package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/synqronlabs/dkimsign"
	"github.com/synqronlabs/dkimsign/dkim"
)

// Message encodings accepted by --format.
const (
	FormatEML     = "eml"
	FormatMsgpack = "msgpack"
)

// SignOptions holds the flags of the sign command.
type SignOptions struct {
	// Input is the message file. Empty or "-" reads stdin.
	Input string
	// Output is the signed message file. Empty or "-" writes stdout.
	Output string
	// Format is the encoding of both input and output.
	Format string
}

// AddFlags adds the sign flags to cmd.
func (o *SignOptions) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.Input, "in", "i", "", "message to sign (default stdin)")
	cmd.Flags().StringVarP(&o.Output, "out", "o", "", "where to write the signed message (default stdout)")
	cmd.Flags().StringVarP(&o.Format, "format", "f", FormatEML, "message encoding: eml or msgpack")
}

// Sign returns the sign command.
func Sign(ro *RootOptions) *cobra.Command {
	o := &SignOptions{}

	cmd := &cobra.Command{
		Use:   "sign [--in FILE] [--out FILE] [--format eml|msgpack]",
		Short: "Add a DKIM-Signature header to a message.",
		Long: `Add a DKIM-Signature header to a message.

    The message is read from --in (stdin by default), signed with the key and
    params of the dkim block in --config, and written to --out (stdout by
    default). The body is normalized to CRLF line endings and the signature
    header is placed first. Existing DKIM-Signature headers are replaced.

    With --format msgpack the input and output are MessagePack encoded
    messages instead of RFC 5322 text.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.Format != FormatEML && o.Format != FormatMsgpack {
				return fmt.Errorf("unknown format %q", o.Format)
			}

			signer, err := ro.signer(cmd)
			if err != nil {
				return err
			}

			in, err := readInput(cmd, o.Input)
			if err != nil {
				return err
			}

			out, err := signEncoded(signer, in, o.Format)
			if err != nil {
				return err
			}
			return writeOutput(cmd, o.Output, out)
		},
	}
	o.AddFlags(cmd)
	return cmd
}

func signEncoded(signer *dkim.Signer, in []byte, format string) ([]byte, error) {
	if format == FormatEML {
		return signer.SignBytes(in)
	}
	msg, err := dkimsign.FromMessagePack(in)
	if err != nil {
		return nil, fmt.Errorf("decoding message: %w", err)
	}
	if err := signer.SignMessage(msg); err != nil {
		return nil, err
	}
	return msg.ToMessagePack()
}

func readInput(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading message: %w", err)
	}
	return data, nil
}

func writeOutput(cmd *cobra.Command, path string, data []byte) error {
	if path == "" || path == "-" {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing message: %w", err)
	}
	return nil
}
