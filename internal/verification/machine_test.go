// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/bureau-foundation/gatekeeper/internal/linkstore"
	"github.com/bureau-foundation/gatekeeper/internal/metrics"
	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/proofkey"
	"github.com/bureau-foundation/gatekeeper/lib/roblox"
	"github.com/bureau-foundation/gatekeeper/lib/secret"
)

const (
	memberRole     = "role-member"
	unverifiedRole = "role-unverified"
)

// fakeIdentities is an in-memory Roblox.
type fakeIdentities struct {
	mu       sync.Mutex
	accounts map[string]int64
	profiles map[int64]string
	members  map[int64]bool
	err      error
	calls    int
}

func newFakeIdentities() *fakeIdentities {
	return &fakeIdentities{
		accounts: map[string]int64{"alice": 156, "bob": 157},
		profiles: make(map[int64]string),
		members:  map[int64]bool{156: true, 157: false},
	}
}

func (f *fakeIdentities) ResolveIdentity(ctx context.Context, name string) (roblox.Identity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return roblox.Identity{}, f.err
	}
	id, ok := f.accounts[name]
	if !ok {
		return roblox.Identity{}, nil
	}
	return roblox.Identity{Exists: true, ID: id, Name: name}, nil
}

func (f *fakeIdentities) FetchProfileText(ctx context.Context, userID int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", f.err
	}
	return f.profiles[userID], nil
}

func (f *fakeIdentities) CheckGroupMembership(ctx context.Context, userID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.members[userID], nil
}

func (f *fakeIdentities) setProfile(userID int64, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.profiles[userID] = text
}

func (f *fakeIdentities) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// recordingEffects logs every side effect as "verb:user:arg".
type recordingEffects struct {
	mu      sync.Mutex
	actions []string
	err     error
}

func (r *recordingEffects) record(action string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.actions = append(r.actions, action)
	return r.err
}

func (r *recordingEffects) GrantRole(ctx context.Context, userID, roleID string) error {
	return r.record(fmt.Sprintf("grant:%s:%s", userID, roleID))
}

func (r *recordingEffects) RevokeRole(ctx context.Context, userID, roleID string) error {
	return r.record(fmt.Sprintf("revoke:%s:%s", userID, roleID))
}

func (r *recordingEffects) SetDisplayName(ctx context.Context, userID, name string) error {
	return r.record(fmt.Sprintf("nick:%s:%s", userID, name))
}

func (r *recordingEffects) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.actions...)
}

type harness struct {
	machine    *Machine
	store      *linkstore.Store
	identities *fakeIdentities
	effects    *recordingEffects
	clock      *clock.FakeClock
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	ctx := context.Background()
	fakeClock := clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	logger := slog.New(slog.DiscardHandler)

	store, err := linkstore.Open(ctx, linkstore.Config{
		Path:   filepath.Join(t.TempDir(), "links.db"),
		Clock:  fakeClock,
		Logger: logger,
	})
	if err != nil {
		t.Fatalf("linkstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	adminSecret, err := secret.NewFromString("open sesame")
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	t.Cleanup(func() { adminSecret.Close() })

	identities := newFakeIdentities()
	effects := &recordingEffects{}
	machine, err := New(Config{
		Links:                  store,
		Identities:             identities,
		Effects:                effects,
		MemberRoleID:           memberRole,
		UnverifiedRoleID:       unverifiedRole,
		RequireGroupMembership: true,
		AdminIdentifier:        "Overseer",
		AdminSecret:            adminSecret,
		Clock:                  fakeClock,
		Logger:                 logger,
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &harness{machine: machine, store: store, identities: identities, effects: effects, clock: fakeClock}
}

func (h *harness) link(t *testing.T, userID string) *linkstore.Link {
	t.Helper()
	link, err := h.store.Get(context.Background(), userID)
	if errors.Is(err, linkstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		t.Fatalf("store.Get(%s): %v", userID, err)
	}
	return link
}

// claim runs Start then SubmitIdentity and returns the challenge.
func (h *harness) claim(t *testing.T, userID, name string) *Challenge {
	t.Helper()
	ctx := context.Background()
	if _, err := h.machine.Start(ctx, userID); err != nil {
		t.Fatalf("Start: %v", err)
	}
	result, err := h.machine.SubmitIdentity(ctx, userID, name, "")
	if err != nil {
		t.Fatalf("SubmitIdentity(%s): %v", name, err)
	}
	if result.Challenge == nil {
		t.Fatalf("SubmitIdentity(%s) returned no challenge", name)
	}
	return result.Challenge
}

func TestAliceVerifies(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	start, err := h.machine.Start(ctx, "u1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if start.Stage != AwaitingIdentity || start.Challenge != nil {
		t.Fatalf("Start = %+v, want a prompt for identity", start)
	}
	if h.link(t, "u1") != nil {
		t.Fatal("Start persisted a link")
	}

	result, err := h.machine.SubmitIdentity(ctx, "u1", "  alice ", "")
	if err != nil {
		t.Fatalf("SubmitIdentity: %v", err)
	}
	challenge := result.Challenge
	if !proofkey.Valid(challenge.Token) {
		t.Fatalf("token %q is not 12 characters of A-Z0-9", challenge.Token)
	}

	pending := h.link(t, "u1")
	if pending.Status != linkstore.PendingProof || pending.ProofToken != challenge.Token ||
		pending.ExternalUsername != "alice" || pending.ExternalID != 156 {
		t.Fatalf("after claim, link = %+v", pending)
	}

	h.identities.setProfile(156, "\n"+challenge.Token+"  ")
	verified, err := h.machine.SubmitProof(ctx, "u1", challenge.Nonce)
	if err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	if verified.Status != linkstore.Verified {
		t.Errorf("returned status = %s, want verified", verified.Status)
	}

	stored := h.link(t, "u1")
	if stored.Status != linkstore.Verified || stored.ExternalUsername != "alice" {
		t.Errorf("stored link = %+v", stored)
	}
	if stored.ProofToken != "" {
		t.Error("proof token survived verification")
	}
	if !stored.IsExternalGroupMember || stored.IsAdminOverride {
		t.Errorf("flags: member=%v admin=%v", stored.IsExternalGroupMember, stored.IsAdminOverride)
	}
	if !stored.VerifiedAt.Equal(h.clock.Now()) {
		t.Errorf("VerifiedAt = %v, want %v", stored.VerifiedAt, h.clock.Now())
	}

	want := []string{"revoke:u1:" + unverifiedRole, "grant:u1:" + memberRole, "nick:u1:alice"}
	if got := h.effects.recorded(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("effects = %v, want %v", got, want)
	}
	if h.machine.Sessions().Len() != 0 {
		t.Error("session not closed after verification")
	}
}

func TestStartTwiceReusesToken(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	first := h.claim(t, "u1", "alice")

	for attempt := 1; attempt <= 2; attempt++ {
		start, err := h.machine.Start(ctx, "u1")
		if err != nil {
			t.Fatalf("Start #%d: %v", attempt, err)
		}
		if start.Stage != AwaitingProof || start.Challenge == nil {
			t.Fatalf("Start #%d = %+v, want the pending challenge", attempt, start)
		}
		if start.Challenge.Token != first.Token {
			t.Errorf("Start #%d token = %q, want %q", attempt, start.Challenge.Token, first.Token)
		}
	}
}

func TestReclaimSameAccountReusesToken(t *testing.T) {
	h := newHarness(t)
	first := h.claim(t, "u1", "alice")
	second := h.claim(t, "u1", "alice")
	if second.Token != first.Token {
		t.Errorf("reclaiming alice changed the token from %q to %q", first.Token, second.Token)
	}

	other := h.claim(t, "u1", "bob")
	if other.Token == first.Token {
		t.Error("claiming a different account reused the old token")
	}
}

func TestGhostIdentityNotFound(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.machine.Start(ctx, "u1")

	_, err := h.machine.SubmitIdentity(ctx, "u1", "ghost404", "")
	if !IsCode(err, IdentityNotFound) {
		t.Fatalf("err = %v, want IdentityNotFound", err)
	}
	if link := h.link(t, "u1"); link != nil {
		t.Errorf("a link was persisted: %+v", link)
	}
}

func TestProofMismatchKeepsPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	challenge := h.claim(t, "u1", "alice")

	for _, profile := range []string{"", "hello", challenge.Token + "X", " " + challenge.Token[:11]} {
		h.identities.setProfile(156, profile)
		_, err := h.machine.SubmitProof(ctx, "u1", challenge.Nonce)
		if !IsCode(err, ProofMismatch) {
			t.Fatalf("profile %q: err = %v, want ProofMismatch", profile, err)
		}
		if link := h.link(t, "u1"); link.Status != linkstore.PendingProof || link.ProofToken != challenge.Token {
			t.Fatalf("profile %q: link = %+v, want unchanged pending", profile, link)
		}
	}

	// The session survives a mismatch, so fixing the profile works.
	h.identities.setProfile(156, challenge.Token)
	if _, err := h.machine.SubmitProof(ctx, "u1", challenge.Nonce); err != nil {
		t.Fatalf("SubmitProof after fixing profile: %v", err)
	}
}

func TestNotAMemberStaysPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	challenge := h.claim(t, "u2", "bob")
	h.identities.setProfile(157, challenge.Token)

	_, err := h.machine.SubmitProof(ctx, "u2", challenge.Nonce)
	if !IsCode(err, NotAMember) {
		t.Fatalf("err = %v, want NotAMember", err)
	}
	if link := h.link(t, "u2"); link.Status != linkstore.PendingProof {
		t.Errorf("status = %s, want pending_proof", link.Status)
	}
	if len(h.effects.recorded()) != 0 {
		t.Errorf("roles changed for a non-member: %v", h.effects.recorded())
	}
}

func TestAdminBypass(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.identities.err = roblox.ErrUnavailable

	h.machine.Start(ctx, "admin")
	result, err := h.machine.SubmitIdentity(ctx, "admin", "OVERSEER", "open sesame")
	if err != nil {
		t.Fatalf("SubmitIdentity: %v", err)
	}
	if !result.AdminOverride {
		t.Fatal("AdminOverride = false")
	}
	if h.identities.callCount() != 0 {
		t.Errorf("admin bypass made %d Roblox calls", h.identities.callCount())
	}

	link := h.link(t, "admin")
	if link.Status != linkstore.Verified || !link.IsAdminOverride {
		t.Errorf("link = %+v, want verified admin override", link)
	}
	if link.IsExternalGroupMember {
		t.Error("admin links must not be swept")
	}
	want := []string{"revoke:admin:" + unverifiedRole, "grant:admin:" + memberRole, "nick:admin:OVERSEER"}
	if got := h.effects.recorded(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("effects = %v, want %v", got, want)
	}
}

func TestAdminWrongSecretTakesNormalPath(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, attempt := range []string{"", "Open Sesame", "open sesame!"} {
		h.machine.Start(ctx, "mallory")
		_, err := h.machine.SubmitIdentity(ctx, "mallory", "overseer", attempt)
		if !IsCode(err, IdentityNotFound) {
			t.Errorf("secret %q: err = %v, want IdentityNotFound from the normal path", attempt, err)
		}
	}
	if link := h.link(t, "mallory"); link != nil {
		t.Errorf("link persisted: %+v", link)
	}
}

func TestSubmitProofWithoutSessionSkipsRoblox(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, err := h.machine.SubmitProof(ctx, "u1", "deadbeefdeadbeef"); !IsCode(err, SessionExpired) {
		t.Fatalf("err = %v, want SessionExpired", err)
	}

	challenge := h.claim(t, "u1", "alice")
	calls := h.identities.callCount()
	if _, err := h.machine.SubmitProof(ctx, "u1", challenge.Nonce+"x"); !IsCode(err, SessionExpired) {
		t.Fatalf("stale nonce: err = %v, want SessionExpired", err)
	}
	if h.identities.callCount() != calls {
		t.Error("a rejected proof submission reached Roblox")
	}
}

func TestOldButtonRejectedAfterRestart(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	challenge := h.claim(t, "u1", "alice")

	restart, err := h.machine.Start(ctx, "u1")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	h.identities.setProfile(156, challenge.Token)
	if _, err := h.machine.SubmitProof(ctx, "u1", challenge.Nonce); !IsCode(err, SessionExpired) {
		t.Fatalf("old nonce: err = %v, want SessionExpired", err)
	}
	if _, err := h.machine.SubmitProof(ctx, "u1", restart.Challenge.Nonce); err != nil {
		t.Fatalf("new nonce: %v", err)
	}
}

func TestSessionExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.machine.Start(ctx, "u1")

	h.clock.Advance(DefaultSessionTTL)
	if _, err := h.machine.SubmitIdentity(ctx, "u1", "alice", ""); !IsCode(err, SessionExpired) {
		t.Fatalf("err = %v, want SessionExpired", err)
	}
}

func TestAlreadyVerified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	challenge := h.claim(t, "u1", "alice")
	h.identities.setProfile(156, challenge.Token)
	if _, err := h.machine.SubmitProof(ctx, "u1", challenge.Nonce); err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}

	if _, err := h.machine.Start(ctx, "u1"); !IsCode(err, AlreadyVerified) {
		t.Errorf("Start: err = %v, want AlreadyVerified", err)
	}
}

func TestExternalServiceUnavailable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	challenge := h.claim(t, "u1", "alice")

	h.identities.err = fmt.Errorf("fetch profile: %w", roblox.ErrUnavailable)
	if _, err := h.machine.SubmitProof(ctx, "u1", challenge.Nonce); !IsCode(err, ExternalServiceUnavailable) {
		t.Fatalf("SubmitProof: err = %v, want ExternalServiceUnavailable", err)
	}
	if link := h.link(t, "u1"); link.Status != linkstore.PendingProof {
		t.Errorf("status = %s, want pending_proof", link.Status)
	}

	h.machine.Start(ctx, "u3")
	if _, err := h.machine.SubmitIdentity(ctx, "u3", "alice", ""); !IsCode(err, ExternalServiceUnavailable) {
		t.Fatalf("SubmitIdentity: err = %v, want ExternalServiceUnavailable", err)
	}
}

func TestSideEffectFailureDoesNotBlock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.effects.err = errors.New("missing permissions")

	challenge := h.claim(t, "u1", "alice")
	h.identities.setProfile(156, challenge.Token)
	if _, err := h.machine.SubmitProof(ctx, "u1", challenge.Nonce); err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	if h.link(t, "u1").Status != linkstore.Verified {
		t.Error("role failure prevented verification")
	}
}

func TestUnverify(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.machine.Unverify(ctx, "never"); !IsCode(err, NotCurrentlyVerified) {
		t.Fatalf("err = %v, want NotCurrentlyVerified", err)
	}
	if h.link(t, "never") != nil {
		t.Fatal("Unverify created a record")
	}
	if len(h.effects.recorded()) != 0 {
		t.Fatal("Unverify of a stranger touched roles")
	}

	challenge := h.claim(t, "u1", "alice")
	h.identities.setProfile(156, challenge.Token)
	if _, err := h.machine.SubmitProof(ctx, "u1", challenge.Nonce); err != nil {
		t.Fatalf("SubmitProof: %v", err)
	}
	h.effects.actions = nil

	if err := h.machine.Unverify(ctx, "u1"); err != nil {
		t.Fatalf("Unverify: %v", err)
	}
	if h.link(t, "u1") != nil {
		t.Error("link survived Unverify")
	}
	want := []string{"revoke:u1:" + memberRole, "grant:u1:" + unverifiedRole}
	if got := h.effects.recorded(); fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("effects = %v, want %v", got, want)
	}
}

func TestUnverifyPendingClaimLeavesRolesAlone(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.claim(t, "u1", "alice")
	h.effects.actions = nil

	if err := h.machine.Unverify(ctx, "u1"); !IsCode(err, NotCurrentlyVerified) {
		t.Fatalf("Unverify of a pending claim: err = %v, want NotCurrentlyVerified", err)
	}
	if h.link(t, "u1") != nil {
		t.Error("pending claim survived Unverify")
	}
	if _, ok := h.machine.Sessions().Get("u1"); ok {
		t.Error("pending session survived Unverify")
	}
	if got := h.effects.recorded(); len(got) != 0 {
		t.Errorf("Unverify of a pending claim touched roles: %v", got)
	}
}

func TestStatusDeniedIsCounted(t *testing.T) {
	h := newHarness(t)
	registry := prometheus.NewRegistry()
	h.machine.metrics = metrics.New(registry)

	if _, err := h.machine.Status(context.Background(), false, "u1"); !IsCode(err, PermissionDenied) {
		t.Fatalf("err = %v, want PermissionDenied", err)
	}

	expected := `
# HELP gatekeeper_verification_outcomes_total Verification flow outcomes by result code
# TYPE gatekeeper_verification_outcomes_total counter
gatekeeper_verification_outcomes_total{outcome="permission_denied"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "gatekeeper_verification_outcomes_total"); err != nil {
		t.Error(err)
	}
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.claim(t, "u1", "alice")

	if _, err := h.machine.Status(ctx, false, "u1"); !IsCode(err, PermissionDenied) {
		t.Fatalf("non-admin: err = %v, want PermissionDenied", err)
	}

	link, err := h.machine.Status(ctx, true, "u1")
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if link.Status != linkstore.PendingProof {
		t.Errorf("Status = %s, want pending_proof", link.Status)
	}
	before := link.UpdatedAt

	h.clock.Advance(time.Minute)
	again, _ := h.machine.Status(ctx, true, "u1")
	if !again.UpdatedAt.Equal(before) {
		t.Error("Status modified the record")
	}

	missing, err := h.machine.Status(ctx, true, "nobody")
	if err != nil || missing != nil {
		t.Errorf("Status(nobody) = %+v, %v; want nil, nil", missing, err)
	}
}

func TestIsCode(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", fail(ProofMismatch, nil))
	if !IsCode(wrapped, ProofMismatch) {
		t.Error("IsCode did not see through wrapping")
	}
	if IsCode(errors.New("plain"), ProofMismatch) {
		t.Error("IsCode matched a plain error")
	}
	if CodeOf(wrapped) != ProofMismatch {
		t.Errorf("CodeOf = %q", CodeOf(wrapped))
	}
}
