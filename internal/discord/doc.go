// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package discord connects gatekeeper to the Discord gateway through
// discordgo.
//
// [Gateway] is the single implementation of every chat-side
// collaborator the other packages declare: role and nickname changes
// for the verification machine, member lookups and direct messages for
// the revocation sweep, message posting and deletion for the access
// gate and the AI chat adapter. It translates discordgo's types to the
// platform-neutral values in internal/chat and maps REST failures onto
// chat.ErrMemberNotFound and chat.ErrPermissionDenied.
//
// Events are delivered to [Handlers] on their own goroutines.
// Interactions that may be slow are acknowledged first and answered by
// editing the deferred response, so external calls never race the
// platform's three-second acknowledgement window.
//
// Slash commands are declared in the embedded commands.jsonc manifest
// and bulk-registered in the configured guild on Start.
package discord
