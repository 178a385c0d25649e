package commands

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/leapstack-labs/leapdata/pkg/secret"
)

// EncryptOptions holds options for the encrypt command.
type EncryptOptions struct {
	KeyEnv      string
	GenerateKey bool
}

// NewEncryptCommand creates the encrypt command.
func NewEncryptCommand() *cobra.Command {
	opts := &EncryptOptions{}

	cmd := &cobra.Command{
		Use:   "encrypt",
		Short: "Encrypt a connection string or credential for the config file",
		Long: `Read a value from stdin and print it sealed with XChaCha20-Poly1305, ready to
paste into connection_string or credentials when decryption.provider is
xchacha20poly1305.

The key comes from --key-env or from the decryption options in the config
file. On a terminal the value is read without echo.`,
		Example: `  # Create a key once
  export LEAPDATA_KEY=$(leapdata encrypt --generate-key)

  # Encrypt a credential
  leapdata encrypt --key-env LEAPDATA_KEY
  echo -n 'CORP\svc:s3cret' | leapdata encrypt --key-env LEAPDATA_KEY`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runEncrypt(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.KeyEnv, "key-env", "", "Environment variable holding the base64 key")
	cmd.Flags().BoolVar(&opts.GenerateKey, "generate-key", false, "Print a new random key and exit")
	return cmd
}

func runEncrypt(cmd *cobra.Command, opts *EncryptOptions) error {
	out := cmd.OutOrStdout()
	if opts.GenerateKey {
		key, err := secret.GenerateKey()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, key)
		return err
	}

	keyOpts := map[string]any{"key_env": opts.KeyEnv}
	if opts.KeyEnv == "" {
		app, err := GetApp(cmd)
		if err != nil {
			return err
		}
		keyOpts = app.Cfg.Decryption.Options
	}
	key, err := secret.KeyFromOptions(keyOpts)
	if err != nil {
		if errors.Is(err, secret.ErrKeyNotSet) {
			return fmt.Errorf("%w\nHint: Pass --key-env or set decryption.options.key_env", err)
		}
		return err
	}

	plaintext, err := readSecret(cmd)
	if err != nil {
		return err
	}
	if plaintext == "" {
		return errors.New("nothing to encrypt")
	}

	ciphertext, err := secret.Encrypt(key, plaintext)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, ciphertext)
	return err
}

// readSecret reads without echo from a terminal, otherwise all of stdin
// minus one trailing newline.
func readSecret(cmd *cobra.Command) (string, error) {
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		_, _ = fmt.Fprint(cmd.ErrOrStderr(), "Value: ")
		b, err := term.ReadPassword(int(f.Fd()))
		_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return string(b), nil
	}

	b, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	s := strings.TrimSuffix(string(b), "\n")
	return strings.TrimSuffix(s, "\r"), nil
}
