// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package verification drives a Discord user from unverified to a
// verified link with a Roblox account.
//
// The flow has three steps, each a [Machine] method:
//
//  1. [Machine.Start] opens a pending session and asks for a Roblox
//     username (or re-shows the outstanding challenge).
//  2. [Machine.SubmitIdentity] resolves the username, stores a
//     pending_proof link with a fresh proof token, and returns the
//     challenge. The configured admin identifier plus the admin secret
//     skips straight to verified without touching Roblox.
//  3. [Machine.SubmitProof] reads the Roblox profile description and,
//     if it equals the token and the account is in the group, marks
//     the link verified and swaps the member roles.
//
// [Machine.Unverify] deletes a link and [Machine.Status] reads one for
// admins. Every user-facing failure is an [*Error] carrying a [Code];
// role and nickname failures are logged and never fail the flow.
//
// Pending sessions ([Sessions]) live in memory with a TTL. A proof
// submission must present the nonce of the live session, so stale
// buttons are rejected before any Roblox traffic.
package verification
