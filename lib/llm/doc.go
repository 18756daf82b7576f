// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package llm is gatekeeper's text-generation client.
//
// [Provider] is the one operation AI chat needs: a system instruction
// and a prompt in, generated text out. [Gemini] implements it against
// the Gemini generateContent REST endpoint. [Retry] wraps any Provider
// with a bounded attempt count and exponential backoff measured on an
// injected clock; it is the only retrying caller in gatekeeper.
//
// Non-2xx responses surface as [*ProviderError]. Rate limits (429) and
// overload (500, 503) are retryable; other 4xx statuses are not, since
// repeating a malformed or unauthorized request cannot succeed.
package llm
