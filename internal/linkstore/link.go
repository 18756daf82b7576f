// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package linkstore

import (
	"errors"
	"fmt"
	"time"
)

// Status is a link's position in the verification flow.
type Status string

const (
	Unverified   Status = "unverified"
	PendingProof Status = "pending_proof"
	Verified     Status = "verified"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case Unverified, PendingProof, Verified:
		return true
	}
	return false
}

var (
	// ErrNotFound means the user has no link.
	ErrNotFound = errors.New("linkstore: link not found")

	// ErrLinkChanged means a conditional update found the link missing
	// or no longer in the state it was read in.
	ErrLinkChanged = errors.New("linkstore: link changed since it was read")

	// ErrInvalidLink means a write would break a link invariant.
	ErrInvalidLink = errors.New("linkstore: invalid link")
)

// Link is one user's verification record. Empty strings, a zero
// ExternalID, and a zero VerifiedAt stand for absent values.
type Link struct {
	ChatUserID       string
	Status           Status
	ExternalUsername string
	ExternalID       int64
	ProofToken       string

	// IsExternalGroupMember is the last known group membership. Only
	// links with this set are re-checked by the revocation sweep.
	IsExternalGroupMember bool

	// IsAdminOverride marks links created through the admin bypass.
	IsAdminOverride bool

	VerifiedAt time.Time

	// UpdatedAt is stamped by the store on every write.
	UpdatedAt time.Time
}

// Validate checks the invariants every stored link satisfies.
func (l *Link) Validate() error {
	if l.ChatUserID == "" {
		return fmt.Errorf("%w: empty chat user id", ErrInvalidLink)
	}
	if !l.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidLink, l.Status)
	}
	if l.Status == Verified && l.ExternalUsername == "" {
		return fmt.Errorf("%w: verified link without an external username", ErrInvalidLink)
	}
	if l.ProofToken != "" && l.Status != PendingProof {
		return fmt.Errorf("%w: proof token on a %s link", ErrInvalidLink, l.Status)
	}
	if l.Status == PendingProof && l.ProofToken == "" {
		return fmt.Errorf("%w: pending link without a proof token", ErrInvalidLink)
	}
	return nil
}

// Counts summarizes the table for the dashboard and control socket.
type Counts struct {
	ByStatus       map[Status]int
	AdminOverrides int
	GroupMembers   int
	Total          int
}
