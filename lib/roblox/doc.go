// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package roblox is a small client for the public Roblox users and
// groups web APIs, covering exactly what identity linking needs:
//
//   - [Client.ResolveIdentity]: exact, case-sensitive username lookup
//     (POST users.roblox.com/v1/usernames/users)
//   - [Client.FetchProfileText]: the free-text profile description
//     (GET users.roblox.com/v1/users/{id})
//   - [Client.CheckGroupMembership]: whether the user is in the
//     configured group (GET groups.roblox.com/v2/users/{id}/groups/roles)
//
// All calls share one token-bucket limiter so the periodic revocation
// sweep cannot burst past Roblox's anonymous rate limits, and each call
// has its own deadline. Transport errors, deadlines, and non-2xx
// statuses all wrap [ErrUnavailable]; a 404 wraps [ErrNotFound] instead.
package roblox
