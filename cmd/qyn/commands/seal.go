// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/quenyan/cmd/qyn/cli"
	"github.com/bureau-foundation/quenyan/lib/sealed"
)

type sealParams struct {
	commonParams
	keyParams
	Output     string   `flag:"output,o" desc:"sealed passphrase file to write"`
	Recipients []string `flag:"recipient,r" desc:"age public key allowed to open the file; repeatable"`
	Keygen     string   `flag:"keygen" desc:"generate an age identity file at this path and print its public key"`
}

func (a *app) sealCommand() *cli.Command {
	var params sealParams
	return &cli.Command{
		Name:    "seal",
		Summary: "Seal the archive passphrase to age recipients",
		Description: `Encrypt the current passphrase to one or more age public keys, for
use with the "age" key provider. The passphrase is taken from
--passphrase-file or the configured provider.

--keygen creates a new identity file instead, in the format written by
age-keygen, and prints the matching public key.`,
		Usage: "qyn seal -o <file> -r <age1...> [flags]\n  qyn seal --keygen <identity-file>",
		Examples: []cli.Example{
			{Description: "Create an identity", Command: "qyn seal --keygen ~/.config/qyn/identity.txt"},
			{Description: "Seal for two operators", Command: "qyn seal --passphrase-file - -o keys/passphrase.age -r age1... -r age1..."},
		},
		Flags: func() *pflag.FlagSet { return cli.FlagsFromParams("seal", &params) },
		Run: func(args []string) error {
			if err := requireArgs(args, 0, "qyn seal -o <file> -r <age1...> [flags]"); err != nil {
				return err
			}
			if params.Keygen != "" {
				return a.runKeygen(params.Keygen)
			}
			if params.Output == "" || len(params.Recipients) == 0 {
				return cli.Usagef("seal needs --output and at least one --recipient")
			}
			return a.runSeal(params)
		},
	}
}

func (a *app) runKeygen(path string) error {
	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return err
	}
	defer keypair.Close()

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	_, err = fmt.Fprintf(file, "# created: %s\n# public key: %s\n%s\n",
		a.clock.Now().UTC().Format(time.RFC3339), keypair.PublicKey, keypair.PrivateKey.String())
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(path)
		return fmt.Errorf("writing identity file: %w", err)
	}
	fmt.Fprintln(a.stdout, keypair.PublicKey)
	return nil
}

func (a *app) runSeal(params sealParams) error {
	s, err := a.open(params.commonParams, "seal")
	if err != nil {
		return err
	}
	for _, recipient := range params.Recipients {
		if err := sealed.ParsePublicKey(recipient); err != nil {
			return cli.Usagef("--recipient %s: %v", recipient, err)
		}
	}
	key, err := a.key(s, params.keyParams)
	if err != nil {
		return err
	}
	defer key.Close()

	if err := sealed.WriteFile(params.Output, key.Bytes(), params.Recipients); err != nil {
		return err
	}
	s.logger.Info("sealed passphrase", "path", params.Output, "recipients", len(params.Recipients))
	fmt.Fprintf(a.stdout, "sealed passphrase to %d recipient(s) in %s\n", len(params.Recipients), params.Output)
	return nil
}
