// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package credentials loads gatekeeper's credential bundle: a small
// YAML document holding the Discord bot token, the Gemini API key, and
// the admin bypass secret.
//
//	discord_token: "MTA..."
//	gemini_api_key: "AIza..."
//	admin_secret: "correct horse battery staple"
//
// In production the file is encrypted with age to an x25519 recipient
// ([Seal], or the age CLI) and decrypted at startup with the matching
// identity file. Development deployments may point at a plaintext file.
// Either way every value is moved into a [secret.Buffer] immediately
// after parsing.
package credentials
