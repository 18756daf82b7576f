// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sqlitepool opens the process-wide SQLite connection pool that
// every gatekeeper handler shares.
//
// Each connection gets WAL journaling and a busy timeout so concurrent
// interaction handlers and the revocation sweep can read while a
// single writer commits. A schema script, when given, is applied once
// through the first connection before Open returns, so a database that
// cannot hold the schema fails at startup rather than on the first
// user request.
//
// Use [sqlitex.Execute] with Args for every statement that carries
// user-supplied values. Connections are not safe for concurrent use:
// take one per operation and put it back with defer.
package sqlitepool
