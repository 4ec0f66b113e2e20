package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/fluencelabs/aquavm-sub001/internal/config"
	"github.com/fluencelabs/aquavm-sub001/internal/signature"
)

// KeygenOptions holds flags for the keygen command.
type KeygenOptions struct {
	*RootOptions
	KeyFormat string
	Peer      string
	Out       string // optional - write the config here
}

// KeyReport is a freshly generated key pair.
type KeyReport struct {
	PeerID    string `json:"peer_id"`
	KeyFormat string `json:"key_format"`
	SecretKey string `json:"secret_key"`
	Config    string `json:"config"`
}

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeygenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate a peer key pair",
		Long: `Generate a peer key pair and the CUE config that uses it.

Examples:
  air keygen
  air keygen --key-format secp256k1 --peer bob
  air keygen --peer alice --out alice.cue`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runKeygen(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.KeyFormat, "key-format", signature.Ed25519.String(), "key format (ed25519|secp256k1)")
	cmd.Flags().StringVar(&opts.Peer, "peer", "", "peer name recorded in the config")
	cmd.Flags().StringVarP(&opts.Out, "out", "o", "", "write the config to this file")

	return cmd
}

func runKeygen(opts *KeygenOptions, cmd *cobra.Command) error {
	format, err := signature.ParseKeyFormat(opts.KeyFormat)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid key format", err)
	}
	kp, err := signature.NewKeyPair(format)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to generate key pair", err)
	}

	report := &KeyReport{
		PeerID:    kp.PeerID(),
		KeyFormat: format.String(),
		SecretKey: config.EncodeSecret(kp),
	}
	report.Config = peerConfig(opts.Peer, report)

	// The generated config must load back into the same peer.
	cfg, err := config.Parse([]byte(report.Config), "keygen.cue")
	if err != nil {
		return WrapExitError(ExitCommandError, "generated config is invalid", err)
	}
	if loaded, err := cfg.KeyPair(); err != nil || loaded.PeerID() != report.PeerID {
		return NewExitError(ExitCommandError, "generated config does not round-trip")
	}

	if opts.Out != "" {
		if err := os.WriteFile(opts.Out, []byte(report.Config), 0o600); err != nil {
			return WrapExitError(ExitCommandError, "failed to write config", err)
		}
	}
	return newFormatter(opts.RootOptions, cmd).Success(report)
}

func peerConfig(peer string, r *KeyReport) string {
	var cfg string
	if peer != "" {
		cfg += fmt.Sprintf("peer:       %q\n", peer)
	}
	cfg += fmt.Sprintf("key_format: %q\n", r.KeyFormat)
	cfg += fmt.Sprintf("secret_key: %q\n", r.SecretKey)
	return cfg
}

func (r *KeyReport) renderText(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Peer id:    %s\n", r.PeerID)
	fmt.Fprintf(w, "Key format: %s\n", r.KeyFormat)
	fmt.Fprintln(w)
	fmt.Fprint(w, r.Config)
}
