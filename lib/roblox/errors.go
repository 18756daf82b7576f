// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roblox

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means Roblox could not answer: the request failed,
	// timed out, was rate limited, or returned a non-2xx status.
	ErrUnavailable = errors.New("roblox: service unavailable")

	// ErrNotFound means Roblox answered 404 for the requested user.
	ErrNotFound = errors.New("roblox: not found")
)

// APIError is a non-2xx response. It unwraps to ErrNotFound for 404
// and to ErrUnavailable otherwise.
type APIError struct {
	StatusCode int
	Message    string
}

func (err *APIError) Error() string {
	if err.Message == "" {
		return fmt.Sprintf("roblox: HTTP %d", err.StatusCode)
	}
	return fmt.Sprintf("roblox: HTTP %d: %s", err.StatusCode, err.Message)
}

func (err *APIError) Unwrap() error {
	if err.StatusCode == 404 {
		return ErrNotFound
	}
	return ErrUnavailable
}

// IsNotFound reports whether err is a Roblox 404.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsUnavailable reports whether err means the call should be retried
// later rather than treated as an answer.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}

// unavailable wraps a transport-level failure.
type unavailable struct {
	operation string
	err       error
}

func (err *unavailable) Error() string {
	return fmt.Sprintf("roblox: %s: %v", err.operation, err.err)
}

func (err *unavailable) Unwrap() []error {
	return []error{ErrUnavailable, err.err}
}
