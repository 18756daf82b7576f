// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/term"

	"github.com/bureau-foundation/gatekeeper/lib/process"
	"github.com/bureau-foundation/gatekeeper/lib/version"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		process.Fatal(err)
	}
}

func run(args []string) error {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return fmt.Errorf("subcommand required")
	}

	switch subcommand := args[0]; subcommand {
	case "serve":
		return runServe(args[1:])
	case "ctl":
		return runCtl(args[1:], os.Stdout)
	case "keygen":
		return runKeygen(os.Stdout, os.Stderr)
	case "seal":
		return runSeal(args[1:], os.Stdin, os.Stdout)
	case "version":
		fmt.Printf("gatekeeper %s\n", version.Full())
		return nil
	case "-h", "--help", "help":
		printUsage(os.Stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown subcommand: %q", subcommand)
	}
}

func printUsage(writer io.Writer) {
	fmt.Fprint(writer, `Usage: gatekeeper <subcommand> [flags]

Subcommands:
  serve     Run the bot
  ctl       Query or drive a running bot over its control socket
  keygen    Generate an age keypair for the credential bundle
  seal      Encrypt a credential bundle read from stdin
  version   Print version information

Run 'gatekeeper <subcommand> --help' for subcommand flags.
`)
}

// newLogger writes text to a terminal and JSON otherwise.
func newLogger(file *os.File, level slog.Level) *slog.Logger {
	options := &slog.HandlerOptions{Level: level}
	if term.IsTerminal(int(file.Fd())) {
		return slog.New(slog.NewTextHandler(file, options))
	}
	return slog.New(slog.NewJSONHandler(file, options))
}
