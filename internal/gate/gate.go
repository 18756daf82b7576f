// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package gate decides, message by message, whether a guild message
// may stay where it was posted.
//
// The verification channel holds only the verification panel, so
// every member message there is deleted. Restricted channels accept
// messages only from verified principals: anyone else has the message
// deleted and sees a short-lived notice pointing at the verification
// channel. Other channels are not gated and cost no store read.
//
// Nothing is cached: a user who verifies is let through on their very
// next message.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/gatekeeper/internal/chat"
	"github.com/bureau-foundation/gatekeeper/internal/linkstore"
	"github.com/bureau-foundation/gatekeeper/internal/metrics"
	"github.com/bureau-foundation/gatekeeper/lib/clock"
)

// DefaultNoticeLifetime is how long a redirect notice stays visible.
const DefaultNoticeLifetime = 10 * time.Second

// cleanupTimeout bounds the delayed notice deletion.
const cleanupTimeout = 10 * time.Second

// Decision is the gate's verdict on a message.
type Decision int

const (
	// Ignore: the message is the bot's own, another bot's, or not in
	// a guild.
	Ignore Decision = iota

	// Allow: the message stays.
	Allow

	// DeleteVerificationChannel: the message was posted in the
	// verification channel and is removed.
	DeleteVerificationChannel

	// DeleteAndRedirect: an unverified user posted in a restricted
	// channel; the message is removed and the user is pointed at
	// the verification channel.
	DeleteAndRedirect
)

func (d Decision) String() string {
	switch d {
	case Ignore:
		return "ignore"
	case Allow:
		return "allow"
	case DeleteVerificationChannel:
		return "delete_verification_channel"
	case DeleteAndRedirect:
		return "delete_and_redirect"
	default:
		return fmt.Sprintf("decision(%d)", int(d))
	}
}

// Links reads verification state.
type Links interface {
	Get(ctx context.Context, userID string) (*linkstore.Link, error)
}

// Channels deletes and posts messages.
type Channels interface {
	DeleteMessage(ctx context.Context, channelID, messageID string) error
	SendMessage(ctx context.Context, channelID string, message chat.Outgoing) (string, error)
}

// Config holds the Gate's parameters.
type Config struct {
	Links    Links
	Channels Channels

	// SelfID is the bot's own user id.
	SelfID string

	VerificationChannelID string
	RestrictedChannelIDs  []string

	// NoticeLifetime defaults to DefaultNoticeLifetime.
	NoticeLifetime time.Duration

	Clock   clock.Clock
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Gate evaluates and enforces access decisions.
type Gate struct {
	links    Links
	channels Channels

	selfID                string
	verificationChannelID string
	restricted            map[string]struct{}
	noticeLifetime        time.Duration

	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New returns a Gate for config.
func New(config Config) (*Gate, error) {
	switch {
	case config.Links == nil:
		return nil, errors.New("gate: Links is required")
	case config.Channels == nil:
		return nil, errors.New("gate: Channels is required")
	case config.Clock == nil:
		return nil, errors.New("gate: Clock is required")
	case config.Logger == nil:
		return nil, errors.New("gate: Logger is required")
	}
	if config.NoticeLifetime <= 0 {
		config.NoticeLifetime = DefaultNoticeLifetime
	}

	restricted := make(map[string]struct{}, len(config.RestrictedChannelIDs))
	for _, channelID := range config.RestrictedChannelIDs {
		restricted[channelID] = struct{}{}
	}
	return &Gate{
		links:                 config.Links,
		channels:              config.Channels,
		selfID:                config.SelfID,
		verificationChannelID: config.VerificationChannelID,
		restricted:            restricted,
		noticeLifetime:        config.NoticeLifetime,
		clock:                 config.Clock,
		logger:                config.Logger,
		metrics:               config.Metrics,
	}, nil
}

// Evaluate decides what should happen to message without acting on
// it. A store failure in a restricted channel yields Allow together
// with the error: an outage must not silence verified members.
func (g *Gate) Evaluate(ctx context.Context, message chat.Message) (Decision, error) {
	if message.AuthorID == g.selfID || message.AuthorIsBot || message.GuildID == "" {
		return Ignore, nil
	}
	if g.verificationChannelID != "" && message.ChannelID == g.verificationChannelID {
		return DeleteVerificationChannel, nil
	}
	if _, gated := g.restricted[message.ChannelID]; !gated {
		return Allow, nil
	}

	link, err := g.links.Get(ctx, message.AuthorID)
	switch {
	case errors.Is(err, linkstore.ErrNotFound):
		return DeleteAndRedirect, nil
	case err != nil:
		return Allow, fmt.Errorf("gate: read link for %s: %w", message.AuthorID, err)
	case link.Status == linkstore.Verified:
		return Allow, nil
	default:
		return DeleteAndRedirect, nil
	}
}

// Enforce evaluates message and carries out the decision. The
// returned error reports a store failure or a failed deletion; the
// decision is still meaningful when err is non-nil.
func (g *Gate) Enforce(ctx context.Context, message chat.Message) (Decision, error) {
	decision, err := g.Evaluate(ctx, message)
	g.metrics.GateDecision(decision.String())
	if err != nil {
		return decision, err
	}

	switch decision {
	case DeleteVerificationChannel:
		if err := g.channels.DeleteMessage(ctx, message.ChannelID, message.ID); err != nil {
			return decision, fmt.Errorf("gate: delete message in verification channel: %w", err)
		}
	case DeleteAndRedirect:
		if err := g.channels.DeleteMessage(ctx, message.ChannelID, message.ID); err != nil {
			return decision, fmt.Errorf("gate: delete restricted message: %w", err)
		}
		g.redirect(ctx, message)
	}
	return decision, nil
}

// redirect posts a notice pointing at the verification channel and
// schedules its removal.
func (g *Gate) redirect(ctx context.Context, message chat.Message) {
	notice := chat.Outgoing{
		Content: fmt.Sprintf("<@%s>, you need to verify your Roblox account before chatting here.", message.AuthorID),
	}
	if g.verificationChannelID != "" {
		notice.Buttons = []chat.Button{{
			Label: "Go to verification",
			Style: chat.ButtonLink,
			URL:   fmt.Sprintf("https://discord.com/channels/%s/%s", message.GuildID, g.verificationChannelID),
		}}
	}

	noticeID, err := g.channels.SendMessage(ctx, message.ChannelID, notice)
	if err != nil {
		g.logger.Warn("posting verification notice failed",
			"channel_id", message.ChannelID,
			"user_id", message.AuthorID,
			"error", err,
		)
		return
	}

	background := context.WithoutCancel(ctx)
	g.clock.AfterFunc(g.noticeLifetime, func() {
		cleanupCtx, cancel := context.WithTimeout(background, cleanupTimeout)
		defer cancel()
		if err := g.channels.DeleteMessage(cleanupCtx, message.ChannelID, noticeID); err != nil {
			g.logger.Debug("removing verification notice failed",
				"channel_id", message.ChannelID,
				"message_id", noticeID,
				"error", err,
			)
		}
	})
}
