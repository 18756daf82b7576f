// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads gatekeeper's YAML configuration.
//
// The file is named by the --config flag or, failing that, the
// GATEKEEPER_CONFIG environment variable ([ResolvePath]). There is no
// search path. After the YAML is decoded over [Default], variables with
// the GATEKEEPER_ prefix override individual fields (for example
// GATEKEEPER_DISCORD_GUILD_ID or GATEKEEPER_REVOCATION_INTERVAL), so a
// container can reuse one file across guilds. Path fields then have
// ${HOME} and ${VAR:-default} patterns expanded.
//
// Secrets never appear here: the file points at a credential bundle
// (see lib/credentials). [Config.Validate] reports every problem at
// once and requires an age identity for the bundle in production.
package config
