// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	"filippo.io/age"
	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gatekeeper/lib/credentials"
	"github.com/bureau-foundation/gatekeeper/lib/secret"
)

// runKeygen writes a new identity file to stdout and its public key to
// stderr.
func runKeygen(stdout, stderr io.Writer) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating identity: %w", err)
	}
	recipient := identity.Recipient().String()
	fmt.Fprintf(stdout, "# created: %s\n# public key: %s\n%s\n",
		time.Now().UTC().Format(time.RFC3339), recipient, identity.String())
	fmt.Fprintf(stderr, "Public key: %s\n", recipient)
	return nil
}

// runSeal encrypts the bundle on stdin to every --recipient. The
// plaintext must parse as a bundle.
func runSeal(args []string, stdin io.Reader, stdout io.Writer) error {
	flags := pflag.NewFlagSet("seal", pflag.ContinueOnError)
	recipients := flags.StringArrayP("recipient", "r", nil, "age recipient (age1...); repeatable")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if len(*recipients) == 0 {
		return errors.New("seal: at least one --recipient is required")
	}

	plaintext, err := io.ReadAll(stdin)
	if err != nil {
		return fmt.Errorf("seal: reading stdin: %w", err)
	}
	defer secret.Zero(plaintext)

	bundle, err := credentials.Parse(plaintext)
	if err != nil {
		return fmt.Errorf("seal: %w", err)
	}
	bundle.Close()

	ciphertext, err := credentials.Seal(plaintext, *recipients)
	if err != nil {
		return err
	}
	_, err = stdout.Write(ciphertext)
	return err
}
