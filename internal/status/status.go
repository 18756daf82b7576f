// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package status assembles the operator-facing status report shared by
// the dashboard and the control socket.
package status

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bureau-foundation/gatekeeper/internal/linkstore"
	"github.com/bureau-foundation/gatekeeper/internal/metrics"
	"github.com/bureau-foundation/gatekeeper/internal/revocation"
	"github.com/bureau-foundation/gatekeeper/lib/clock"
	"github.com/bureau-foundation/gatekeeper/lib/version"
)

// Store is the link-store read the report needs.
type Store interface {
	Counts(ctx context.Context) (linkstore.Counts, error)
}

// Sweeps exposes the latest revocation summary.
type Sweeps interface {
	LastSummary() *revocation.Summary
}

// Sessions exposes the number of open verification sessions.
type Sessions interface {
	Len() int
}

// Report is a point-in-time view of the bot.
type Report struct {
	Version   string    `json:"version" cbor:"version"`
	StartedAt time.Time `json:"started_at" cbor:"started_at"`
	Uptime    string    `json:"uptime" cbor:"uptime"`

	// Links counts stored links by status. Every known status is
	// present, zero or not.
	Links          map[string]int `json:"links" cbor:"links"`
	TotalLinks     int            `json:"total_links" cbor:"total_links"`
	AdminOverrides int            `json:"admin_overrides" cbor:"admin_overrides"`
	GroupMembers   int            `json:"group_members" cbor:"group_members"`

	// PendingSessions counts in-memory /verify sessions not yet purged.
	PendingSessions int `json:"pending_sessions" cbor:"pending_sessions"`

	// RevocationEnabled is false when no sweep runs in this process.
	RevocationEnabled bool                `json:"revocation_enabled" cbor:"revocation_enabled"`
	LastSweep         *revocation.Summary `json:"last_sweep,omitempty" cbor:"last_sweep,omitempty"`
}

// Config holds the Reporter's collaborators.
type Config struct {
	Store Store

	// Sweeps is nil when revocation is disabled.
	Sweeps Sweeps

	// Sessions is optional.
	Sessions Sessions

	Clock   clock.Clock
	Metrics *metrics.Metrics
}

// Reporter builds Reports. Safe for concurrent use.
type Reporter struct {
	store     Store
	sweeps    Sweeps
	sessions  Sessions
	clock     clock.Clock
	metrics   *metrics.Metrics
	startedAt time.Time
}

// New returns a Reporter whose uptime counts from now.
func New(config Config) (*Reporter, error) {
	if config.Store == nil {
		return nil, errors.New("status: Store is required")
	}
	if config.Clock == nil {
		return nil, errors.New("status: Clock is required")
	}
	return &Reporter{
		store:     config.Store,
		sweeps:    config.Sweeps,
		sessions:  config.Sessions,
		clock:     config.Clock,
		metrics:   config.Metrics,
		startedAt: config.Clock.Now(),
	}, nil
}

// Collect reads the store and refreshes the link gauges.
func (r *Reporter) Collect(ctx context.Context) (*Report, error) {
	counts, err := r.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("status: %w", err)
	}

	links := map[string]int{
		string(linkstore.Unverified):   0,
		string(linkstore.PendingProof): 0,
		string(linkstore.Verified):     0,
	}
	for linkStatus, count := range counts.ByStatus {
		links[string(linkStatus)] = count
	}
	r.metrics.Links(links)

	report := &Report{
		Version:           version.Info(),
		StartedAt:         r.startedAt,
		Uptime:            r.clock.Now().Sub(r.startedAt).Truncate(time.Second).String(),
		Links:             links,
		TotalLinks:        counts.Total,
		AdminOverrides:    counts.AdminOverrides,
		GroupMembers:      counts.GroupMembers,
		RevocationEnabled: r.sweeps != nil,
	}
	if r.sessions != nil {
		report.PendingSessions = r.sessions.Len()
	}
	if r.sweeps != nil {
		report.LastSweep = r.sweeps.LastSummary()
	}
	return report, nil
}
