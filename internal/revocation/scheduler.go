// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package revocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bureau-foundation/gatekeeper/internal/chat"
	"github.com/bureau-foundation/gatekeeper/internal/linkstore"
	"github.com/bureau-foundation/gatekeeper/internal/metrics"
	"github.com/bureau-foundation/gatekeeper/lib/clock"
)

// DefaultInterval is the time between scheduled sweeps.
const DefaultInterval = 12 * time.Hour

// revokedNotice is sent to demoted members who still share the guild.
const revokedNotice = "Your verification has been removed because your Roblox account " +
	"is no longer a member of the community group. Rejoin the group and run /verify to regain access."

// Store is the subset of the link store the sweep uses.
type Store interface {
	ListGroupMembers(ctx context.Context) ([]linkstore.Link, error)
	// MarkRevoked demotes userID only while its link still names
	// externalID as a group member, and returns
	// linkstore.ErrLinkChanged otherwise.
	MarkRevoked(ctx context.Context, userID string, externalID int64) error
}

// Membership answers whether a Roblox user is in the group.
type Membership interface {
	CheckGroupMembership(ctx context.Context, userID int64) (bool, error)
}

// Guild applies demotions on the chat side. Member returns
// chat.ErrMemberNotFound for users who have left the guild.
type Guild interface {
	Member(ctx context.Context, userID string) (chat.Member, error)
	GrantRole(ctx context.Context, userID, roleID string) error
	RevokeRole(ctx context.Context, userID, roleID string) error
	SendDirect(ctx context.Context, userID, content string) error
}

// Config holds the Scheduler's collaborators.
type Config struct {
	Store      Store
	Membership Membership
	Guild      Guild

	MemberRoleID     string
	UnverifiedRoleID string

	// Interval between scheduled sweeps. Zero means DefaultInterval.
	Interval time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Summary describes one finished sweep.
type Summary struct {
	RunID      string    `json:"run_id" cbor:"run_id"`
	StartedAt  time.Time `json:"started_at" cbor:"started_at"`
	FinishedAt time.Time `json:"finished_at" cbor:"finished_at"`

	// Checked counts principals whose membership was determined.
	Checked int `json:"checked" cbor:"checked"`

	// Revoked counts principals demoted and persisted as unverified.
	Revoked int `json:"revoked" cbor:"revoked"`

	// Skipped counts lapsed principals whose link was rewritten
	// between the check and the demotion, for example by a fresh
	// /verify. They are left as they are.
	Skipped int `json:"skipped" cbor:"skipped"`

	// Failed counts principals skipped because a check or a write
	// failed. They are retried on the next sweep.
	Failed int `json:"failed" cbor:"failed"`

	// Error is set when the sweep could not load its work list.
	Error string `json:"error,omitempty" cbor:"error,omitempty"`
}

// Duration is the wall time the sweep took.
func (s Summary) Duration() time.Duration {
	return s.FinishedAt.Sub(s.StartedAt)
}

// Scheduler runs revocation sweeps.
type Scheduler struct {
	store      Store
	membership Membership
	guild      Guild

	memberRoleID     string
	unverifiedRoleID string
	interval         time.Duration

	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	// sweepMu serializes sweeps.
	sweepMu sync.Mutex

	lastMu sync.Mutex
	last   *Summary
}

// New validates config and returns a Scheduler.
func New(config Config) (*Scheduler, error) {
	switch {
	case config.Store == nil:
		return nil, errors.New("revocation: Store is required")
	case config.Membership == nil:
		return nil, errors.New("revocation: Membership is required")
	case config.Guild == nil:
		return nil, errors.New("revocation: Guild is required")
	case config.Clock == nil:
		return nil, errors.New("revocation: Clock is required")
	case config.Logger == nil:
		return nil, errors.New("revocation: Logger is required")
	}
	if config.Interval < 0 {
		return nil, fmt.Errorf("revocation: negative interval %s", config.Interval)
	}
	if config.Interval == 0 {
		config.Interval = DefaultInterval
	}
	return &Scheduler{
		store:            config.Store,
		membership:       config.Membership,
		guild:            config.Guild,
		memberRoleID:     config.MemberRoleID,
		unverifiedRoleID: config.UnverifiedRoleID,
		interval:         config.Interval,
		clock:            config.Clock,
		logger:           config.Logger,
		metrics:          config.Metrics,
	}, nil
}

// Run sweeps once immediately and then every interval until ctx is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.Sweep(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// LastSummary returns the most recent sweep's summary, or nil before
// the first sweep finishes.
func (s *Scheduler) LastSummary() *Summary {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	if s.last == nil {
		return nil
	}
	summary := *s.last
	return &summary
}

// Sweep runs one revocation pass and returns its summary.
func (s *Scheduler) Sweep(ctx context.Context) Summary {
	s.sweepMu.Lock()
	defer s.sweepMu.Unlock()

	summary := Summary{RunID: uuid.NewString(), StartedAt: s.clock.Now()}
	logger := s.logger.With("run_id", summary.RunID)

	links, err := s.store.ListGroupMembers(ctx)
	if err != nil {
		logger.Error("revocation sweep could not load links", "error", err)
		summary.Error = err.Error()
		return s.finish(summary)
	}
	logger.Info("revocation sweep started", "count", len(links))

	var lapsed []linkstore.Link
	for _, link := range links {
		if ctx.Err() != nil {
			summary.Error = ctx.Err().Error()
			break
		}
		if link.ExternalID == 0 {
			logger.Warn("skipping link without an external id", "user_id", link.ChatUserID)
			summary.Failed++
			continue
		}
		member, err := s.membership.CheckGroupMembership(ctx, link.ExternalID)
		if err != nil {
			logger.Warn("membership check failed",
				"user_id", link.ChatUserID,
				"external_id", link.ExternalID,
				"error", err,
			)
			summary.Failed++
			continue
		}
		summary.Checked++
		if !member {
			lapsed = append(lapsed, link)
		}
	}

	s.demoteAll(ctx, logger, lapsed, &summary)

	logger.Info("revocation sweep finished",
		"checked", summary.Checked,
		"revoked", summary.Revoked,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return s.finish(summary)
}

func (s *Scheduler) finish(summary Summary) Summary {
	summary.FinishedAt = s.clock.Now()
	s.metrics.Sweep(summary.Checked, summary.Revoked, summary.Skipped, summary.Failed, summary.Duration())

	s.lastMu.Lock()
	s.last = &summary
	s.lastMu.Unlock()
	return summary
}

// demoteAll demotes every lapsed link concurrently and tallies the
// results into summary.
func (s *Scheduler) demoteAll(ctx context.Context, logger *slog.Logger, lapsed []linkstore.Link, summary *Summary) {
	var (
		mu        sync.Mutex
		waitGroup sync.WaitGroup
	)
	for _, link := range lapsed {
		waitGroup.Add(1)
		go func() {
			defer waitGroup.Done()
			err := s.demote(ctx, logger, link)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, linkstore.ErrLinkChanged):
				logger.Info("lapsed link changed before demotion, leaving it",
					"user_id", link.ChatUserID,
					"external_id", link.ExternalID,
				)
				summary.Skipped++
			case err != nil:
				logger.Error("demotion not persisted", "user_id", link.ChatUserID, "error", err)
				summary.Failed++
			default:
				summary.Revoked++
			}
		}()
	}
	waitGroup.Wait()
}

// demote persists link's demotion and then strips its user of
// verified access. The chat side is only touched once the write has
// landed; chat-side failures are logged.
func (s *Scheduler) demote(ctx context.Context, logger *slog.Logger, link linkstore.Link) error {
	if err := s.store.MarkRevoked(ctx, link.ChatUserID, link.ExternalID); err != nil {
		if errors.Is(err, linkstore.ErrLinkChanged) {
			return err
		}
		return fmt.Errorf("mark revoked: %w", err)
	}
	logger = logger.With("user_id", link.ChatUserID, "external_username", link.ExternalUsername)

	_, err := s.guild.Member(ctx, link.ChatUserID)
	switch {
	case errors.Is(err, chat.ErrMemberNotFound):
		logger.Info("lapsed principal already left the guild")
	case err != nil:
		logger.Warn("could not resolve lapsed principal", "error", err)
	default:
		if s.memberRoleID != "" {
			if err := s.guild.RevokeRole(ctx, link.ChatUserID, s.memberRoleID); err != nil {
				logger.Warn("revoking member role failed", "error", err)
			}
		}
		if s.unverifiedRoleID != "" {
			if err := s.guild.GrantRole(ctx, link.ChatUserID, s.unverifiedRoleID); err != nil {
				logger.Warn("granting unverified role failed", "error", err)
			}
		}
		if err := s.guild.SendDirect(ctx, link.ChatUserID, revokedNotice); err != nil {
			logger.Warn("revocation notice not delivered", "error", err)
		}
	}
	logger.Info("principal demoted")
	return nil
}
