// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"github.com/tidwall/jsonc"
)

//go:embed commands.jsonc
var commandManifest []byte

// Commands parses the embedded slash command manifest.
func Commands() ([]*discordgo.ApplicationCommand, error) {
	var commands []*discordgo.ApplicationCommand
	if err := json.Unmarshal(jsonc.ToJSON(commandManifest), &commands); err != nil {
		return nil, fmt.Errorf("discord: parsing command manifest: %w", err)
	}
	for index, command := range commands {
		if command.Name == "" || command.Description == "" {
			return nil, fmt.Errorf("discord: command manifest entry %d lacks a name or description", index)
		}
	}
	return commands, nil
}
