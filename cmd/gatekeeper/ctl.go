// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/gatekeeper/internal/control"
	"github.com/bureau-foundation/gatekeeper/lib/config"
	"github.com/bureau-foundation/gatekeeper/lib/service"
)

func runCtl(args []string, stdout io.Writer) error {
	flags := pflag.NewFlagSet("ctl", pflag.ContinueOnError)
	socketPath := flags.String("socket", "", "control socket (default: control.socket_path from the configuration)")
	configPath := flags.String("config", "", "configuration file (default $"+config.PathVariable+")")
	timeout := flags.Duration("timeout", 10*time.Minute, "give up after this long")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: gatekeeper ctl [flags] status | lookup <user-id> | sweep\n\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	action, fields, err := parseCtlArgs(flags.Args())
	if err != nil {
		return err
	}

	path := *socketPath
	if path == "" {
		if path, err = socketFromConfig(*configPath); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	return callAndPrint(ctx, service.NewClient(path), action, fields, stdout)
}

// parseCtlArgs maps the positional arguments onto an action and its
// request fields.
func parseCtlArgs(positional []string) (string, map[string]any, error) {
	if len(positional) == 0 {
		return "", nil, errors.New("ctl: action required (status, lookup, sweep)")
	}
	action, rest := positional[0], positional[1:]
	switch action {
	case control.ActionStatus, control.ActionSweep:
		if len(rest) != 0 {
			return "", nil, fmt.Errorf("ctl: %s takes no arguments", action)
		}
		return action, nil, nil
	case control.ActionLookup:
		if len(rest) != 1 || rest[0] == "" {
			return "", nil, errors.New("ctl: usage: lookup <user-id>")
		}
		return action, map[string]any{"user_id": rest[0]}, nil
	default:
		return "", nil, fmt.Errorf("ctl: unknown action %q", action)
	}
}

func socketFromConfig(flagValue string) (string, error) {
	path, err := config.ResolvePath(flagValue)
	if err != nil {
		return "", fmt.Errorf("ctl: --socket not given: %w", err)
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		return "", err
	}
	if cfg.Control.SocketPath == "" {
		return "", fmt.Errorf("ctl: %s does not set control.socket_path", path)
	}
	return cfg.Control.SocketPath, nil
}

// callAndPrint writes the action's response data as indented JSON.
func callAndPrint(ctx context.Context, client *service.Client, action string, fields map[string]any, stdout io.Writer) error {
	var data any
	if err := client.Call(ctx, action, fields, &data); err != nil {
		return err
	}
	encoder := json.NewEncoder(stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
