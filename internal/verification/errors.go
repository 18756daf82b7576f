// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verification

import (
	"errors"
	"fmt"
)

// Code classifies a verification failure.
type Code string

const (
	AlreadyVerified            Code = "already_verified"
	IdentityNotFound           Code = "identity_not_found"
	ProofMismatch              Code = "proof_mismatch"
	NotAMember                 Code = "not_a_member"
	SessionExpired             Code = "session_expired"
	NotCurrentlyVerified       Code = "not_currently_verified"
	ExternalServiceUnavailable Code = "external_service_unavailable"
	PersistenceFailure         Code = "persistence_failure"
	PermissionDenied           Code = "permission_denied"
)

// Error is a classified failure. Err, when set, is the underlying
// cause and is never shown to users.
type Error struct {
	Code Code
	Err  error
}

func (err *Error) Error() string {
	if err.Err != nil {
		return fmt.Sprintf("verification: %s: %v", err.Code, err.Err)
	}
	return fmt.Sprintf("verification: %s", err.Code)
}

func (err *Error) Unwrap() error {
	return err.Err
}

// IsCode reports whether err is an *Error with the given code.
func IsCode(err error, code Code) bool {
	var verificationError *Error
	return errors.As(err, &verificationError) && verificationError.Code == code
}

// CodeOf returns err's code, or "" if err is not an *Error.
func CodeOf(err error) Code {
	var verificationError *Error
	if errors.As(err, &verificationError) {
		return verificationError.Code
	}
	return ""
}

func fail(code Code, cause error) error {
	return &Error{Code: code, Err: cause}
}
