// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package service provides the two listeners gatekeeper exposes
// besides the chat gateway: an HTTP server for the status dashboard
// and a CBOR request/response server on a Unix socket for operator
// control.
//
// Both follow the same lifecycle: Serve(ctx) binds, signals Ready, and
// blocks until ctx is cancelled, then drains in-flight requests before
// returning.
//
// The socket protocol is one request per connection. The client
// writes a CBOR map carrying an "action" field plus action-specific
// fields; the server answers {ok, error, data} and closes. [Client]
// is the matching caller.
package service
