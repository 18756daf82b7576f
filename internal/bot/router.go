// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bureau-foundation/gatekeeper/internal/chat"
	"github.com/bureau-foundation/gatekeeper/internal/gate"
	"github.com/bureau-foundation/gatekeeper/internal/linkstore"
	"github.com/bureau-foundation/gatekeeper/internal/verification"
)

// Command, button, form, and field identifiers. These are part of the
// bot's wire surface: the command manifest and previously posted
// panels refer to them.
const (
	CommandVerify      = "verify"
	CommandUnverify    = "unverify"
	CommandCheckStatus = "checkstatus"
	CommandDeployPanel = "deploy_verification_message"
	OptionUser         = "user"
	ButtonAgree        = "agree"
	ButtonProofPrefix  = "submit-proof:"
	FormIdentity       = "submit-identity"
	FieldIdentity      = "identity"
	FieldAdminSecret   = "admin_secret"
)

const (
	usernameMaxLength    = 20
	adminSecretMaxLength = 100
)

// Verifier is the verification state machine.
type Verifier interface {
	Start(ctx context.Context, userID string) (verification.StartResult, error)
	SubmitIdentity(ctx context.Context, userID, claim, adminSecret string) (verification.ClaimResult, error)
	SubmitProof(ctx context.Context, userID, nonce string) (*linkstore.Link, error)
	Unverify(ctx context.Context, userID string) error
	Status(ctx context.Context, requesterIsAdmin bool, targetUserID string) (*linkstore.Link, error)
}

// Gate is the access gate.
type Gate interface {
	Enforce(ctx context.Context, message chat.Message) (gate.Decision, error)
}

// Chatter answers messages the gate allowed.
type Chatter interface {
	Handle(ctx context.Context, message chat.Message) (bool, error)
}

// Poster posts messages on the bot's own initiative.
type Poster interface {
	SendMessage(ctx context.Context, channelID string, message chat.Outgoing) (string, error)
}

// Config holds the Router's collaborators.
type Config struct {
	Verifier Verifier
	Gate     Gate
	Poster   Poster

	// Chatter is optional; without it allowed messages are left alone.
	Chatter Chatter

	VerificationChannelID string

	Logger *slog.Logger
}

// Router dispatches interactions and messages.
type Router struct {
	verifier Verifier
	gate     Gate
	poster   Poster
	chatter  Chatter

	verificationChannelID string

	logger *slog.Logger
}

// New returns a Router for config.
func New(config Config) (*Router, error) {
	switch {
	case config.Verifier == nil:
		return nil, errors.New("bot: Verifier is required")
	case config.Gate == nil:
		return nil, errors.New("bot: Gate is required")
	case config.Poster == nil:
		return nil, errors.New("bot: Poster is required")
	case config.Logger == nil:
		return nil, errors.New("bot: Logger is required")
	}
	return &Router{
		verifier:              config.Verifier,
		gate:                  config.Gate,
		poster:                config.Poster,
		chatter:               config.Chatter,
		verificationChannelID: config.VerificationChannelID,
		logger:                config.Logger,
	}, nil
}

// Slow reports whether handling interaction may outlast the
// platform's acknowledgement window, so the gateway adapter should
// acknowledge first and deliver the response as a follow-up. Slow
// interactions never answer with a Form.
func Slow(interaction chat.Interaction) bool {
	switch interaction.Kind {
	case chat.FormSubmit:
		return interaction.Name == FormIdentity
	case chat.ButtonPress:
		return strings.HasPrefix(interaction.Name, ButtonProofPrefix)
	case chat.Command:
		return interaction.Name == CommandDeployPanel
	}
	return false
}

// HandleInteraction answers one interaction. The response is always
// ephemeral unless it is a Form.
func (r *Router) HandleInteraction(ctx context.Context, interaction chat.Interaction) chat.Response {
	logger := r.logger.With(
		"kind", interaction.Kind.String(),
		"name", interaction.Name,
		"user_id", interaction.UserID,
	)
	logger.Debug("interaction received")

	response := r.dispatch(ctx, logger, interaction)
	if response.Form == nil {
		response.Ephemeral = true
	}
	return response
}

func (r *Router) dispatch(ctx context.Context, logger *slog.Logger, interaction chat.Interaction) chat.Response {
	switch interaction.Kind {
	case chat.Command:
		switch interaction.Name {
		case CommandVerify:
			return r.start(ctx, logger, interaction.UserID)
		case CommandUnverify:
			return r.unverify(ctx, logger, interaction.UserID)
		case CommandCheckStatus:
			return r.checkStatus(ctx, logger, interaction)
		case CommandDeployPanel:
			return r.deployPanel(ctx, logger, interaction)
		}
	case chat.ButtonPress:
		if interaction.Name == ButtonAgree {
			return r.start(ctx, logger, interaction.UserID)
		}
		if nonce, ok := strings.CutPrefix(interaction.Name, ButtonProofPrefix); ok {
			return r.submitProof(ctx, logger, interaction.UserID, nonce)
		}
	case chat.FormSubmit:
		if interaction.Name == FormIdentity {
			return r.submitIdentity(ctx, logger, interaction)
		}
	}
	logger.Warn("unrecognized interaction")
	return chat.Response{Content: "That action is no longer supported."}
}

func (r *Router) start(ctx context.Context, logger *slog.Logger, userID string) chat.Response {
	result, err := r.verifier.Start(ctx, userID)
	if err != nil {
		return r.failure(logger, err)
	}
	if result.Challenge != nil {
		return challengeResponse(result.Challenge, true)
	}
	return chat.Response{Form: identityForm()}
}

func (r *Router) submitIdentity(ctx context.Context, logger *slog.Logger, interaction chat.Interaction) chat.Response {
	claim := interaction.Values[FieldIdentity]
	secret := interaction.Values[FieldAdminSecret]

	result, err := r.verifier.SubmitIdentity(ctx, interaction.UserID, claim, secret)
	if err != nil {
		return r.failure(logger, err)
	}
	if result.AdminOverride {
		logger.Info("admin override used")
		return chat.Response{Content: "Admin override accepted. You now have full access."}
	}
	return challengeResponse(result.Challenge, false)
}

func (r *Router) submitProof(ctx context.Context, logger *slog.Logger, userID, nonce string) chat.Response {
	link, err := r.verifier.SubmitProof(ctx, userID, nonce)
	if err != nil {
		return r.failure(logger, err)
	}
	return chat.Response{Content: fmt.Sprintf(
		"You're verified as **%s**. Welcome! You can remove the code from your profile now.",
		link.ExternalUsername)}
}

func (r *Router) unverify(ctx context.Context, logger *slog.Logger, userID string) chat.Response {
	if err := r.verifier.Unverify(ctx, userID); err != nil {
		return r.failure(logger, err)
	}
	return chat.Response{Content: "Your verification has been removed. Run /verify any time to link an account again."}
}

func (r *Router) checkStatus(ctx context.Context, logger *slog.Logger, interaction chat.Interaction) chat.Response {
	target := interaction.Values[OptionUser]
	if target == "" {
		return chat.Response{Content: "Pick a user to check."}
	}
	link, err := r.verifier.Status(ctx, interaction.IsAdmin, target)
	if err != nil {
		return r.failure(logger, err)
	}
	return chat.Response{Content: describeLink(target, link)}
}

func (r *Router) deployPanel(ctx context.Context, logger *slog.Logger, interaction chat.Interaction) chat.Response {
	if !interaction.IsAdmin {
		return chat.Response{Content: replyFor(verification.PermissionDenied)}
	}
	channelID := r.verificationChannelID
	if channelID == "" {
		channelID = interaction.ChannelID
	}
	_, err := r.poster.SendMessage(ctx, channelID, chat.Outgoing{
		Content: panelText,
		Buttons: []chat.Button{{Label: "I agree, verify me", Style: chat.ButtonSuccess, CustomID: ButtonAgree}},
	})
	if err != nil {
		logger.Error("posting verification panel failed", "channel_id", channelID, "error", err)
		return chat.Response{Content: "I couldn't post the verification message. Check my permissions in that channel."}
	}
	logger.Info("verification panel posted", "channel_id", channelID)
	return chat.Response{Content: fmt.Sprintf("Verification message posted in <#%s>.", channelID)}
}

// HandleMessage runs message through the gate and, if it stays, the
// AI chat adapter. Errors are logged.
func (r *Router) HandleMessage(ctx context.Context, message chat.Message) {
	decision, err := r.gate.Enforce(ctx, message)
	if err != nil {
		r.logger.Error("access gate failed",
			"decision", decision.String(),
			"channel_id", message.ChannelID,
			"user_id", message.AuthorID,
			"error", err,
		)
	}
	if decision != gate.Allow || r.chatter == nil {
		return
	}
	if _, err := r.chatter.Handle(ctx, message); err != nil {
		r.logger.Error("ai reply failed",
			"channel_id", message.ChannelID,
			"user_id", message.AuthorID,
			"error", err,
		)
	}
}

// failure renders err for the member. Unexpected errors are logged
// here; coded errors were already logged by the state machine.
func (r *Router) failure(logger *slog.Logger, err error) chat.Response {
	code := verification.CodeOf(err)
	if code == "" {
		logger.Error("interaction failed", "error", err)
	}
	return chat.Response{Content: replyFor(code)}
}
