// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process holds the one place gatekeeper writes to stderr
// without the structured logger: reporting the error that made run()
// fail, which may have happened before the logger existed (bad flags,
// unreadable config, a schema that will not apply).
package process
