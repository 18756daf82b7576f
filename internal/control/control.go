// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package control registers gatekeeper's operator actions on a unix
// socket. Requests and responses are CBOR; see lib/service.
//
// Actions:
//
//	status          counts by status and the last sweep
//	lookup user_id  one user's stored link
//	sweep           run a revocation sweep now and return its summary
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/gatekeeper/internal/linkstore"
	"github.com/bureau-foundation/gatekeeper/internal/revocation"
	"github.com/bureau-foundation/gatekeeper/internal/status"
	"github.com/bureau-foundation/gatekeeper/lib/codec"
	"github.com/bureau-foundation/gatekeeper/lib/service"
)

// Action names.
const (
	ActionStatus = "status"
	ActionLookup = "lookup"
	ActionSweep  = "sweep"
)

// Reporter produces the status report.
type Reporter interface {
	Collect(ctx context.Context) (*status.Report, error)
}

// Links reads stored links.
type Links interface {
	Get(ctx context.Context, userID string) (*linkstore.Link, error)
}

// Sweeper runs an on-demand revocation sweep.
type Sweeper interface {
	Sweep(ctx context.Context) revocation.Summary
}

// Config holds the actions' collaborators.
type Config struct {
	Reporter Reporter
	Links    Links

	// Sweeper is nil when revocation is disabled; the sweep action
	// then answers with an error.
	Sweeper Sweeper

	Logger *slog.Logger
}

// LinkView is the lookup response.
type LinkView struct {
	UserID                string    `cbor:"user_id"`
	Found                 bool      `cbor:"found"`
	Status                string    `cbor:"status,omitempty"`
	ExternalUsername      string    `cbor:"external_username,omitempty"`
	ExternalID            int64     `cbor:"external_id,omitempty"`
	IsExternalGroupMember bool      `cbor:"is_external_group_member"`
	IsAdminOverride       bool      `cbor:"is_admin_override"`
	VerifiedAt            time.Time `cbor:"verified_at"`
	UpdatedAt             time.Time `cbor:"updated_at"`
}

// Register installs the actions on server.
func Register(server *service.SocketServer, config Config) error {
	if config.Reporter == nil {
		return errors.New("control: Reporter is required")
	}
	if config.Links == nil {
		return errors.New("control: Links is required")
	}
	if config.Logger == nil {
		return errors.New("control: Logger is required")
	}

	server.Handle(ActionStatus, func(ctx context.Context, raw []byte) (any, error) {
		return config.Reporter.Collect(ctx)
	})

	server.Handle(ActionLookup, func(ctx context.Context, raw []byte) (any, error) {
		var request struct {
			UserID string `cbor:"user_id"`
		}
		if err := codec.Unmarshal(raw, &request); err != nil {
			return nil, fmt.Errorf("invalid lookup request: %w", err)
		}
		if request.UserID == "" {
			return nil, errors.New("missing required field: user_id")
		}
		return lookup(ctx, config.Links, request.UserID)
	})

	server.Handle(ActionSweep, func(ctx context.Context, raw []byte) (any, error) {
		if config.Sweeper == nil {
			return nil, errors.New("revocation is disabled")
		}
		config.Logger.Info("sweep requested over control socket")
		summary := config.Sweeper.Sweep(ctx)
		return summary, nil
	})
	return nil
}

func lookup(ctx context.Context, links Links, userID string) (*LinkView, error) {
	link, err := links.Get(ctx, userID)
	if errors.Is(err, linkstore.ErrNotFound) {
		return &LinkView{UserID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &LinkView{
		UserID:                link.ChatUserID,
		Found:                 true,
		Status:                string(link.Status),
		ExternalUsername:      link.ExternalUsername,
		ExternalID:            link.ExternalID,
		IsExternalGroupMember: link.IsExternalGroupMember,
		IsAdminOverride:       link.IsAdminOverride,
		VerifiedAt:            link.VerifiedAt,
		UpdatedAt:             link.UpdatedAt,
	}, nil
}
