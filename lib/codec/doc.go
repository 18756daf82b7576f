// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec holds gatekeeper's CBOR configuration for the operator
// control socket.
//
// Encoding is Core Deterministic (RFC 8949 §4.2): sorted map keys and
// smallest integer encodings, so equal values always produce equal
// bytes. Times travel as RFC 3339 strings with nanoseconds. Decoding
// into an untyped target yields map[string]any rather than CBOR's
// default map[any]any, so decoded payloads print and compare like
// JSON-decoded ones.
//
//	data, err := codec.Marshal(value)
//	err = codec.Unmarshal(data, &value)
//
// For sockets, use NewEncoder and NewDecoder; CBOR values are
// self-delimiting, so no framing is needed.
package codec
