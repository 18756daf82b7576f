// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Gatekeeper is a Discord bot that links guild members to Roblox
// accounts.
//
// Subcommands:
//
//	gatekeeper serve --config gatekeeper.yaml
//	gatekeeper ctl [--socket path] status|lookup <user-id>|sweep
//	gatekeeper keygen
//	gatekeeper seal --recipient age1... < credentials.yaml > credentials.age
//	gatekeeper version
//
// serve connects to the Discord gateway, registers the slash commands
// in the configured guild, and runs until SIGINT or SIGTERM. The
// credential bundle (bot token, Gemini API key, admin secret) is YAML,
// age-encrypted in production with seal. ctl talks to a running bot
// over its control socket.
package main
