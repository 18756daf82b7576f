// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package revocation periodically re-checks that verified principals
// still belong to the configured Roblox group and demotes those that
// left.
//
// A sweep loads every link whose last known membership is true, checks
// each one sequentially (so the identity provider sees at most one
// request at a time from the sweep), then demotes the lapsed members
// concurrently. Demotion swaps the member role for the unverified role,
// sends a best-effort direct message, and marks the link unverified
// without deleting it. A failure on one principal never aborts the
// batch.
//
// Sweeps are serialized: [Scheduler.Sweep] called while a sweep is in
// progress waits for it and then runs its own.
package revocation
