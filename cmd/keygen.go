/*
Copyright © 2025 Travis Lyons travis.lyons@gmail.com

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/trly/pei-docker/internal/sshkey"
)

// KeygenCommand represents the keygen command for pei-docker CLI.
type KeygenCommand struct{}

var (
	keygenOutput  string
	keygenComment string
)

// GetCobraCommand returns the cobra command for deriving public keys.
func (c *KeygenCommand) GetCobraCommand() *cobra.Command {
	keygenCmd := &cobra.Command{
		Use:   "keygen <private-key>",
		Short: "Writes the public key of an unencrypted ssh private key",
		Long: `Writes the public key of an unencrypted ssh private key in authorized_keys format.

Useful when user_config.yml lists only a privkey_file for an ssh user and the
matching public key should be kept beside it.

Examples:
  # Writes installation/stage-1/keys/me.pub
  pei-docker keygen installation/stage-1/keys/me`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := getApp(cmd)
			if app == nil {
				return errors.New("application not initialized")
			}

			privPath := app.Config.ResolvePath(args[0])
			data, err := app.FSService.ReadFile(privPath)
			if err != nil {
				return fmt.Errorf("reading private key: %w", err)
			}
			if err := sshkey.ValidatePrivateKey(string(data)); err != nil {
				return err
			}
			pub, err := sshkey.DerivePublicKey(data, keygenComment)
			if err != nil {
				return err
			}

			if keygenOutput == "-" {
				_, err := cmd.OutOrStdout().Write(pub)
				return err
			}
			outPath := privPath + ".pub"
			if keygenOutput != "" {
				outPath = app.Config.ResolvePath(keygenOutput)
			}
			if _, err := app.FSService.WriteFile(outPath, pub, 0o644); err != nil {
				return fmt.Errorf("writing public key: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), colorSuccess("Wrote "+outPath))
			return nil
		},
	}

	keygenCmd.Flags().StringVarP(&keygenOutput, "output", "o", "", "Public key file, defaults to <private-key>.pub, or - for stdout")
	keygenCmd.Flags().StringVar(&keygenComment, "comment", "", "Comment appended to the public key")

	return keygenCmd
}
