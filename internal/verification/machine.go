// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bureau-foundation/gatekeeper/internal/linkstore"
	"github.com/bureau-foundation/gatekeeper/internal/metrics"
	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/proofkey"
	"github.com/bureau-foundation/gatekeeper/lib/roblox"
	"github.com/bureau-foundation/gatekeeper/lib/secret"
)

// Links is the subset of the link store the machine uses.
type Links interface {
	Get(ctx context.Context, userID string) (*linkstore.Link, error)
	Put(ctx context.Context, link *linkstore.Link) error
	Delete(ctx context.Context, userID string) (bool, error)
}

// Identities is the Roblox client.
type Identities interface {
	ResolveIdentity(ctx context.Context, name string) (roblox.Identity, error)
	FetchProfileText(ctx context.Context, userID int64) (string, error)
	CheckGroupMembership(ctx context.Context, userID int64) (bool, error)
}

// Effects applies Discord-side changes for a verified or unverified
// user.
type Effects interface {
	GrantRole(ctx context.Context, userID, roleID string) error
	RevokeRole(ctx context.Context, userID, roleID string) error
	SetDisplayName(ctx context.Context, userID, name string) error
}

// Config holds the parameters for New. Links, Identities, Effects,
// and Logger are required.
type Config struct {
	Links      Links
	Identities Identities
	Effects    Effects

	MemberRoleID     string
	UnverifiedRoleID string

	// RequireGroupMembership gates the final step on the configured
	// Roblox group.
	RequireGroupMembership bool

	// AdminIdentifier and AdminSecret enable the bypass. Either empty
	// disables it. AdminSecret is borrowed.
	AdminIdentifier string
	AdminSecret     *secret.Buffer

	// SessionTTL defaults to DefaultSessionTTL.
	SessionTTL time.Duration

	// GenerateToken defaults to proofkey.Generate.
	GenerateToken proofkey.Generator

	// Clock defaults to clock.Real().
	Clock clock.Clock

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Machine runs the verification flow. Safe for concurrent use; two
// concurrent writes for the same user resolve last-write-wins.
type Machine struct {
	links      Links
	identities Identities
	effects    Effects

	memberRoleID           string
	unverifiedRoleID       string
	requireGroupMembership bool
	adminIdentifier        string
	adminSecret            *secret.Buffer

	sessions      *Sessions
	generateToken proofkey.Generator
	clock         clock.Clock
	logger        *slog.Logger
	metrics       *metrics.Metrics
}

// New creates a Machine.
func New(config Config) (*Machine, error) {
	if config.Links == nil || config.Identities == nil || config.Effects == nil {
		return nil, fmt.Errorf("verification: Links, Identities, and Effects are required")
	}
	if config.Logger == nil {
		return nil, fmt.Errorf("verification: Logger is required")
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	generateToken := config.GenerateToken
	if generateToken == nil {
		generateToken = proofkey.Generate
	}

	return &Machine{
		links:                  config.Links,
		identities:             config.Identities,
		effects:                config.Effects,
		memberRoleID:           config.MemberRoleID,
		unverifiedRoleID:       config.UnverifiedRoleID,
		requireGroupMembership: config.RequireGroupMembership,
		adminIdentifier:        strings.TrimSpace(config.AdminIdentifier),
		adminSecret:            config.AdminSecret,
		sessions:               NewSessions(clk, config.SessionTTL),
		generateToken:          generateToken,
		clock:                  clk,
		logger:                 config.Logger,
		metrics:                config.Metrics,
	}, nil
}

// Sessions exposes the pending session table so the caller can run
// its purge loop and report its size.
func (m *Machine) Sessions() *Sessions {
	return m.sessions
}

// Challenge is what the user must do to finish verifying: put Token
// in the profile of ExternalUsername, then click the proof button
// carrying Nonce.
type Challenge struct {
	Token            string
	Nonce            string
	ExternalUsername string
	ExpiresAt        time.Time
}

// StartResult is the outcome of Start. Stage AwaitingIdentity means
// prompt for a username; AwaitingProof carries the existing Challenge.
type StartResult struct {
	Stage     Stage
	Challenge *Challenge
}

// ClaimResult is the outcome of SubmitIdentity: either an admin
// override (Link set, already verified) or a Challenge.
type ClaimResult struct {
	AdminOverride bool
	Link          *linkstore.Link
	Challenge     *Challenge
}

// Start begins or resumes verification for userID.
func (m *Machine) Start(ctx context.Context, userID string) (StartResult, error) {
	link, err := m.getLink(ctx, userID)
	if err != nil {
		return StartResult{}, m.outcome(err)
	}

	if link != nil && link.Status == linkstore.Verified {
		return StartResult{}, m.outcome(fail(AlreadyVerified, nil))
	}

	if link != nil && link.Status == linkstore.PendingProof && link.ProofToken != "" {
		session := m.sessions.Open(userID, AwaitingProof)
		m.metrics.VerificationOutcome("challenge_reissued")
		return StartResult{Stage: AwaitingProof, Challenge: challengeFor(link, session)}, nil
	}

	m.sessions.Open(userID, AwaitingIdentity)
	m.metrics.VerificationOutcome("started")
	return StartResult{Stage: AwaitingIdentity}, nil
}

// SubmitIdentity handles the username form. adminSecret is the
// optional second field; it only matters when claim is the admin
// identifier.
func (m *Machine) SubmitIdentity(ctx context.Context, userID, claim, adminSecret string) (ClaimResult, error) {
	if _, ok := m.sessions.Get(userID); !ok {
		return ClaimResult{}, m.outcome(fail(SessionExpired, nil))
	}

	claim = strings.TrimSpace(claim)
	if claim == "" {
		return ClaimResult{}, m.outcome(fail(IdentityNotFound, nil))
	}

	if m.isAdminClaim(claim) {
		if m.adminSecretMatches(adminSecret) {
			return m.adminOverride(ctx, userID, claim)
		}
		m.logger.Warn("admin identifier claimed without a valid secret", "user_id", userID)
	}

	existing, err := m.getLink(ctx, userID)
	if err != nil {
		return ClaimResult{}, m.outcome(err)
	}
	if existing != nil && existing.Status == linkstore.Verified {
		m.sessions.Close(userID)
		return ClaimResult{}, m.outcome(fail(AlreadyVerified, nil))
	}

	identity, err := m.identities.ResolveIdentity(ctx, claim)
	if err != nil {
		return ClaimResult{}, m.outcome(fail(ExternalServiceUnavailable, err))
	}
	if !identity.Exists {
		return ClaimResult{}, m.outcome(fail(IdentityNotFound, nil))
	}

	token := ""
	if existing != nil && existing.Status == linkstore.PendingProof && existing.ExternalID == identity.ID {
		token = existing.ProofToken
	}
	if token == "" {
		token, err = m.generateToken()
		if err != nil {
			return ClaimResult{}, fmt.Errorf("verification: generating proof token: %w", err)
		}
	}

	link := &linkstore.Link{
		ChatUserID:       userID,
		Status:           linkstore.PendingProof,
		ExternalUsername: identity.Name,
		ExternalID:       identity.ID,
		ProofToken:       token,
	}
	if err := m.links.Put(ctx, link); err != nil {
		return ClaimResult{}, m.outcome(fail(PersistenceFailure, err))
	}

	session := m.sessions.Open(userID, AwaitingProof)
	m.logger.Info("identity claimed",
		"user_id", userID,
		"external_username", identity.Name,
		"external_id", identity.ID,
	)
	m.metrics.VerificationOutcome("challenge_issued")
	return ClaimResult{Challenge: challengeFor(link, session)}, nil
}

// SubmitProof checks the challenge for the session identified by
// nonce.
func (m *Machine) SubmitProof(ctx context.Context, userID, nonce string) (*linkstore.Link, error) {
	session, ok := m.sessions.Get(userID)
	if !ok || session.Stage != AwaitingProof || session.Nonce != nonce {
		return nil, m.outcome(fail(SessionExpired, nil))
	}

	link, err := m.getLink(ctx, userID)
	if err != nil {
		return nil, m.outcome(err)
	}
	if link == nil {
		m.sessions.Close(userID)
		return nil, m.outcome(fail(SessionExpired, nil))
	}
	if link.Status == linkstore.Verified {
		m.sessions.Close(userID)
		return nil, m.outcome(fail(AlreadyVerified, nil))
	}
	if link.Status != linkstore.PendingProof {
		m.sessions.Close(userID)
		return nil, m.outcome(fail(SessionExpired, nil))
	}

	profile, err := m.identities.FetchProfileText(ctx, link.ExternalID)
	if err != nil {
		return nil, m.outcome(fail(ExternalServiceUnavailable, err))
	}
	if strings.TrimSpace(profile) != link.ProofToken {
		return nil, m.outcome(fail(ProofMismatch, nil))
	}

	if m.requireGroupMembership {
		member, err := m.identities.CheckGroupMembership(ctx, link.ExternalID)
		if err != nil {
			return nil, m.outcome(fail(ExternalServiceUnavailable, err))
		}
		if !member {
			return nil, m.outcome(fail(NotAMember, nil))
		}
	}

	link.Status = linkstore.Verified
	link.ProofToken = ""
	link.IsExternalGroupMember = true
	link.VerifiedAt = m.clock.Now()
	if err := m.links.Put(ctx, link); err != nil {
		return nil, m.outcome(fail(PersistenceFailure, err))
	}

	m.sessions.Close(userID)
	m.applyVerified(ctx, userID, link.ExternalUsername)
	m.logger.Info("principal verified",
		"user_id", userID,
		"external_username", link.ExternalUsername,
		"external_id", link.ExternalID,
	)
	m.metrics.VerificationOutcome("verified")
	return link, nil
}

// Unverify deletes userID's verified link and restores the unverified
// role. A pending or unverified record is deleted without touching
// roles and reported as NotCurrentlyVerified.
func (m *Machine) Unverify(ctx context.Context, userID string) error {
	link, err := m.getLink(ctx, userID)
	if err != nil {
		return m.outcome(err)
	}
	if link == nil {
		return m.outcome(fail(NotCurrentlyVerified, nil))
	}

	if _, err := m.links.Delete(ctx, userID); err != nil {
		return m.outcome(fail(PersistenceFailure, err))
	}
	m.sessions.Close(userID)
	if link.Status != linkstore.Verified {
		m.logger.Info("discarded unfinished verification", "user_id", userID, "status", string(link.Status))
		return m.outcome(fail(NotCurrentlyVerified, nil))
	}

	m.sideEffect("revoke member role", userID, m.effects.RevokeRole(ctx, userID, m.memberRoleID))
	m.sideEffect("grant unverified role", userID, m.effects.GrantRole(ctx, userID, m.unverifiedRoleID))
	m.logger.Info("principal unverified", "user_id", userID)
	m.metrics.VerificationOutcome("unverified")
	return nil
}

// Status returns targetUserID's link for an admin, or nil if there is
// none. It never writes.
func (m *Machine) Status(ctx context.Context, requesterIsAdmin bool, targetUserID string) (*linkstore.Link, error) {
	if !requesterIsAdmin {
		return nil, m.outcome(fail(PermissionDenied, nil))
	}
	link, err := m.getLink(ctx, targetUserID)
	if err != nil {
		return nil, m.outcome(err)
	}
	return link, nil
}

func (m *Machine) adminOverride(ctx context.Context, userID, claim string) (ClaimResult, error) {
	link := &linkstore.Link{
		ChatUserID:       userID,
		Status:           linkstore.Verified,
		ExternalUsername: claim,
		IsAdminOverride:  true,
		VerifiedAt:       m.clock.Now(),
	}
	if err := m.links.Put(ctx, link); err != nil {
		return ClaimResult{}, m.outcome(fail(PersistenceFailure, err))
	}

	m.sessions.Close(userID)
	m.applyVerified(ctx, userID, claim)
	m.logger.Warn("admin override verification", "user_id", userID)
	m.metrics.VerificationOutcome("admin_override")
	return ClaimResult{AdminOverride: true, Link: link}, nil
}

func (m *Machine) isAdminClaim(claim string) bool {
	return m.adminIdentifier != "" && strings.EqualFold(claim, m.adminIdentifier)
}

func (m *Machine) adminSecretMatches(candidate string) bool {
	return m.adminSecret != nil && candidate != "" && m.adminSecret.Equal([]byte(candidate))
}

// applyVerified swaps the roles and renames the member.
func (m *Machine) applyVerified(ctx context.Context, userID, displayName string) {
	m.sideEffect("revoke unverified role", userID, m.effects.RevokeRole(ctx, userID, m.unverifiedRoleID))
	m.sideEffect("grant member role", userID, m.effects.GrantRole(ctx, userID, m.memberRoleID))
	m.sideEffect("set display name", userID, m.effects.SetDisplayName(ctx, userID, displayName))
}

func (m *Machine) sideEffect(action, userID string, err error) {
	if err != nil {
		m.logger.Warn("verification side effect failed",
			"action", action,
			"user_id", userID,
			"error", err,
		)
	}
}

// getLink returns nil, nil when userID has no link.
func (m *Machine) getLink(ctx context.Context, userID string) (*linkstore.Link, error) {
	link, err := m.links.Get(ctx, userID)
	if errors.Is(err, linkstore.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fail(PersistenceFailure, err)
	}
	return link, nil
}

// outcome records a failure's code and returns it unchanged.
func (m *Machine) outcome(err error) error {
	code := CodeOf(err)
	if code == "" {
		code = "internal"
	}
	m.metrics.VerificationOutcome(string(code))
	if code == PersistenceFailure || code == ExternalServiceUnavailable {
		m.logger.Error("verification step failed", "code", string(code), "error", err)
	}
	return err
}

func challengeFor(link *linkstore.Link, session Session) *Challenge {
	return &Challenge{
		Token:            link.ProofToken,
		Nonce:            session.Nonce,
		ExternalUsername: link.ExternalUsername,
		ExpiresAt:        session.ExpiresAt,
	}
}
