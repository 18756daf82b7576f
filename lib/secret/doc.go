// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds gatekeeper's credentials (the Discord bot token,
// the Gemini API key, and the admin bypass secret) outside the Go heap.
//
// A [Buffer] is an anonymous mmap region locked against swap (mlock)
// and excluded from core dumps (MADV_DONTDUMP). Close zeroes and
// unmaps it. Secrets are converted to strings only at the boundary that
// demands one (an HTTP header, the Discord session constructor), and
// compared with [Buffer.Equal] in constant time.
package secret
