// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package linkstore persists principal links: one row per Discord user
// who has started verification, recording the Roblox account they
// claimed, the outstanding proof token, and whether the link is
// verified.
//
// The store enforces the link invariants on every write (see
// [Link.Validate]) so no caller can persist a verified link without a
// username or a proof token outside the pending state. A user with no
// row is implicitly unverified.
//
// Timestamps are stored as Unix nanoseconds. Each method is a single
// statement except [Store.Put], which upserts inside an IMMEDIATE
// transaction.
package linkstore
