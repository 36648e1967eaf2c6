package cli

import (
	"crypto/rand"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/vidproof/internal/auth"
)

// NewKeygenCommand creates the keygen command.
func NewKeygenCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		outPath string
		force   bool
	)

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an ed25519 signing key",
		Long: `Generate a new ed25519 key and write it to a key file readable only
by its owner. The key's public half is the account address.

Examples:
  vidproof keygen
  vidproof keygen --out alice.key`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := rootOpts.formatter(cmd)
			path := outPath
			if path == "" {
				path = rootOpts.config(cmd).KeyFile
			}
			if !force {
				if _, err := os.Stat(path); err == nil {
					return out.Fail(ExitCommandError, ErrCodeKeyFile, fmt.Sprintf("%s already exists (use --force to replace it)", path), nil)
				}
			}
			key, err := auth.GenerateKeyPair(rand.Reader)
			if err != nil {
				return out.Fail(ExitCommandError, ErrCodeGeneric, "failed to generate key", err)
			}
			if err := auth.SaveKeyFile(path, key); err != nil {
				return out.Fail(ExitCommandError, ErrCodeWriteFailed, "failed to write key file", err)
			}
			return out.Success(keyView{Address: key.Address().String(), Path: path})
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "key file to write (default from config)")
	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key file")
	return cmd
}
