// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verification

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"sync"
	"time"

	"github.com/zeebo/blake3"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
)

// DefaultSessionTTL is how long a challenge stays answerable.
const DefaultSessionTTL = 15 * time.Minute

// nonceContext domain-separates session nonces from any other blake3
// use.
const nonceContext = "gatekeeper 2026 verification session nonce"

// Stage is where a pending session is waiting.
type Stage int

const (
	AwaitingIdentity Stage = iota + 1
	AwaitingProof
)

func (s Stage) String() string {
	switch s {
	case AwaitingIdentity:
		return "awaiting_identity"
	case AwaitingProof:
		return "awaiting_proof"
	}
	return "unknown"
}

// Session is one user's in-flight challenge.
type Session struct {
	UserID    string
	Stage     Stage
	Nonce     string
	ExpiresAt time.Time
}

// Sessions is the in-memory pending session table. An expired entry
// is dropped when next looked up; abandoned entries are swept by Run
// and at most once per TTL from Open. Safe for concurrent use.
type Sessions struct {
	mu      sync.Mutex
	clock   clock.Clock
	ttl     time.Duration
	entries map[string]Session

	// nextPurge is when Open next sweeps expired entries.
	nextPurge time.Time
}

// NewSessions creates an empty table. A non-positive ttl means
// DefaultSessionTTL.
func NewSessions(clk clock.Clock, ttl time.Duration) *Sessions {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Sessions{clock: clk, ttl: ttl, entries: make(map[string]Session)}
}

// Open starts (or restarts) userID's session at stage with a new
// nonce and a full TTL.
func (s *Sessions) Open(userID string, stage Stage) Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	if !now.Before(s.nextPurge) {
		s.purgeLocked(now)
		s.nextPurge = now.Add(s.ttl)
	}

	session := Session{
		UserID:    userID,
		Stage:     stage,
		Nonce:     newNonce(userID, now),
		ExpiresAt: now.Add(s.ttl),
	}
	s.entries[userID] = session
	return session
}

// Get returns userID's live session.
func (s *Sessions) Get(userID string) (Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.entries[userID]
	if !ok {
		return Session{}, false
	}
	if !s.clock.Now().Before(session.ExpiresAt) {
		delete(s.entries, userID)
		return Session{}, false
	}
	return session, true
}

// Close ends userID's session.
func (s *Sessions) Close(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, userID)
}

// Purge drops every expired session and returns how many it dropped.
func (s *Sessions) Purge() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.purgeLocked(s.clock.Now())
}

// Run purges expired sessions once per TTL until ctx is cancelled.
func (s *Sessions) Run(ctx context.Context) {
	ticker := s.clock.NewTicker(s.ttl)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Purge()
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sessions) purgeLocked(now time.Time) int {
	purged := 0
	for userID, session := range s.entries {
		if !now.Before(session.ExpiresAt) {
			delete(s.entries, userID)
			purged++
		}
	}
	return purged
}

// Len returns the number of entries, expired or not.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// newNonce derives a 16-hex-character nonce. It only has to be
// unpredictable enough that a button from an older session never
// matches a newer one.
func newNonce(userID string, now time.Time) string {
	hasher := blake3.NewDeriveKey(nonceContext)
	hasher.WriteString(userID)

	var timestamp [8]byte
	binary.BigEndian.PutUint64(timestamp[:], uint64(now.UnixNano()))
	hasher.Write(timestamp[:])

	var salt [16]byte
	rand.Read(salt[:])
	hasher.Write(salt[:])

	return hex.EncodeToString(hasher.Sum(nil)[:8])
}
