// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"

	"github.com/bureau-foundation/gatekeeper/internal/chat"
)

// classify wraps REST failures the rest of the bot reacts to in the
// matching chat sentinel. Other errors pass through wrapped with op.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var restError *discordgo.RESTError
	if errors.As(err, &restError) {
		if restError.Message != nil {
			switch restError.Message.Code {
			case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownUser:
				return fmt.Errorf("discord: %s: %w: %w", op, chat.ErrMemberNotFound, err)
			case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
				return fmt.Errorf("discord: %s: %w: %w", op, chat.ErrPermissionDenied, err)
			}
		}
		if restError.Response != nil && restError.Response.StatusCode == http.StatusForbidden {
			return fmt.Errorf("discord: %s: %w: %w", op, chat.ErrPermissionDenied, err)
		}
	}
	return fmt.Errorf("discord: %s: %w", op, err)
}
