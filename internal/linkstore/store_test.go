// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package linkstore

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
)

var epoch = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func openTestStore(t *testing.T) (*Store, *clock.FakeClock) {
	t.Helper()
	fakeClock := clock.Fake(epoch)
	store, err := Open(context.Background(), Config{
		Path:   filepath.Join(t.TempDir(), "links.db"),
		Clock:  fakeClock,
		Logger: slog.New(slog.DiscardHandler),
	})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, fakeClock
}

func verifiedLink(userID, username string) *Link {
	return &Link{
		ChatUserID:            userID,
		Status:                Verified,
		ExternalUsername:      username,
		ExternalID:            42,
		IsExternalGroupMember: true,
		VerifiedAt:            epoch,
	}
}

func TestGetMissing(t *testing.T) {
	store, _ := openTestStore(t)
	if _, err := store.Get(context.Background(), "nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get = %v, want ErrNotFound", err)
	}
}

func TestPutRoundTrip(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	pending := &Link{
		ChatUserID:       "u1",
		Status:           PendingProof,
		ExternalUsername: "alice",
		ExternalID:       156,
		ProofToken:       "ABCDEF123456",
	}
	if err := store.Put(ctx, pending); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != PendingProof || got.ExternalUsername != "alice" || got.ExternalID != 156 ||
		got.ProofToken != "ABCDEF123456" {
		t.Errorf("Get = %+v", got)
	}
	if !got.VerifiedAt.IsZero() {
		t.Errorf("VerifiedAt = %v, want zero", got.VerifiedAt)
	}
	if !got.UpdatedAt.Equal(fakeClock.Now()) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, fakeClock.Now())
	}
}

func TestPutUpserts(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	store.Put(ctx, &Link{ChatUserID: "u1", Status: PendingProof, ExternalUsername: "alice", ProofToken: "TOKEN0000000"})
	fakeClock.Advance(time.Minute)
	if err := store.Put(ctx, verifiedLink("u1", "alice")); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, _ := store.Get(ctx, "u1")
	if got.Status != Verified || got.ProofToken != "" {
		t.Errorf("after upsert, link = %+v", got)
	}
	if !got.UpdatedAt.Equal(epoch.Add(time.Minute)) {
		t.Errorf("UpdatedAt = %v", got.UpdatedAt)
	}

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Total != 1 {
		t.Errorf("Total = %d, want 1 row per user", counts.Total)
	}
}

func TestPutRejectsInvalidLinks(t *testing.T) {
	store, _ := openTestStore(t)
	tests := []struct {
		name string
		link Link
	}{
		{"empty user", Link{Status: Unverified}},
		{"unknown status", Link{ChatUserID: "u1", Status: "banned"}},
		{"verified without username", Link{ChatUserID: "u1", Status: Verified}},
		{"token outside pending", Link{ChatUserID: "u1", Status: Verified, ExternalUsername: "a", ProofToken: "T"}},
		{"pending without token", Link{ChatUserID: "u1", Status: PendingProof, ExternalUsername: "a"}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			link := test.link
			if err := store.Put(context.Background(), &link); !errors.Is(err, ErrInvalidLink) {
				t.Fatalf("Put = %v, want ErrInvalidLink", err)
			}
		})
	}
	if counts, _ := store.Counts(context.Background()); counts.Total != 0 {
		t.Errorf("invalid writes left %d rows", counts.Total)
	}
}

func TestDelete(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()
	store.Put(ctx, verifiedLink("u1", "alice"))

	existed, err := store.Delete(ctx, "u1")
	if err != nil || !existed {
		t.Fatalf("Delete = %v, %v; want true, nil", existed, err)
	}
	existed, err = store.Delete(ctx, "u1")
	if err != nil || existed {
		t.Fatalf("second Delete = %v, %v; want false, nil", existed, err)
	}
}

func TestListGroupMembersAndMarkRevoked(t *testing.T) {
	store, fakeClock := openTestStore(t)
	ctx := context.Background()

	store.Put(ctx, verifiedLink("u2", "bob"))
	fakeClock.Advance(time.Second)
	store.Put(ctx, verifiedLink("u1", "alice"))
	admin := &Link{ChatUserID: "admin", Status: Verified, ExternalUsername: "Overseer", IsAdminOverride: true}
	store.Put(ctx, admin)

	members, err := store.ListGroupMembers(ctx)
	if err != nil {
		t.Fatalf("ListGroupMembers: %v", err)
	}
	if len(members) != 2 || members[0].ChatUserID != "u2" || members[1].ChatUserID != "u1" {
		t.Fatalf("members = %+v, want u2 then u1", members)
	}

	fakeClock.Advance(time.Hour)
	if err := store.MarkRevoked(ctx, "u2", 42); err != nil {
		t.Fatalf("MarkRevoked: %v", err)
	}
	revoked, err := store.Get(ctx, "u2")
	if err != nil {
		t.Fatalf("revoked record deleted: %v", err)
	}
	if revoked.Status != Unverified || revoked.IsExternalGroupMember {
		t.Errorf("revoked = %+v", revoked)
	}
	if revoked.ExternalUsername != "bob" {
		t.Error("revocation dropped the external username")
	}
	if !revoked.UpdatedAt.Equal(fakeClock.Now()) {
		t.Errorf("UpdatedAt = %v, want %v", revoked.UpdatedAt, fakeClock.Now())
	}

	if err := store.MarkRevoked(ctx, "ghost", 42); !errors.Is(err, ErrLinkChanged) {
		t.Errorf("MarkRevoked(ghost) = %v, want ErrLinkChanged", err)
	}
	if err := store.MarkRevoked(ctx, "u2", 42); !errors.Is(err, ErrLinkChanged) {
		t.Errorf("second MarkRevoked(u2) = %v, want ErrLinkChanged", err)
	}

	members, _ = store.ListGroupMembers(ctx)
	if len(members) != 1 || members[0].ChatUserID != "u1" {
		t.Errorf("after revocation, members = %+v", members)
	}
}

func TestMarkRevokedLeavesRelinkedAccountAlone(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	relinked := verifiedLink("u1", "alice2")
	relinked.ExternalID = 2
	if err := store.Put(ctx, relinked); err != nil {
		t.Fatalf("Put: %v", err)
	}

	if err := store.MarkRevoked(ctx, "u1", 1); !errors.Is(err, ErrLinkChanged) {
		t.Fatalf("MarkRevoked with a stale external id = %v, want ErrLinkChanged", err)
	}
	link, err := store.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if link.Status != Verified || !link.IsExternalGroupMember || link.ExternalID != 2 {
		t.Errorf("relinked account was demoted: %+v", link)
	}
}

func TestCounts(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	store.Put(ctx, verifiedLink("u1", "alice"))
	store.Put(ctx, verifiedLink("u2", "bob"))
	store.Put(ctx, &Link{ChatUserID: "u3", Status: PendingProof, ExternalUsername: "carol", ProofToken: "TOKEN0000000"})
	store.Put(ctx, &Link{ChatUserID: "admin", Status: Verified, ExternalUsername: "Overseer", IsAdminOverride: true})

	counts, err := store.Counts(ctx)
	if err != nil {
		t.Fatalf("Counts: %v", err)
	}
	if counts.Total != 4 || counts.ByStatus[Verified] != 3 || counts.ByStatus[PendingProof] != 1 {
		t.Errorf("counts = %+v", counts)
	}
	if counts.AdminOverrides != 1 || counts.GroupMembers != 2 {
		t.Errorf("admin=%d members=%d, want 1 and 2", counts.AdminOverrides, counts.GroupMembers)
	}
}

func TestOpenRequiresClockAndLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "links.db")
	if _, err := Open(context.Background(), Config{Path: path, Logger: slog.New(slog.DiscardHandler)}); err == nil {
		t.Error("Open without a Clock succeeded")
	}
	if _, err := Open(context.Background(), Config{Path: path, Clock: clock.Real()}); err == nil {
		t.Error("Open without a Logger succeeded")
	}
}
