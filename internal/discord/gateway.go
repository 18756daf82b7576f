// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/bureau-foundation/gatekeeper/internal/chat"
	"github.com/bureau-foundation/gatekeeper/lib/secret"
)

// DefaultHandlerTimeout bounds the handling of one event.
const DefaultHandlerTimeout = 2 * time.Minute

// intents covers guild metadata and guild message content. Message
// content is privileged and must be enabled for the application.
const intents = discordgo.IntentsGuilds | discordgo.IntentsGuildMessages | discordgo.IntentMessageContent

// Handlers receive gateway events.
type Handlers struct {
	// Message is called for every message the bot can see.
	Message func(ctx context.Context, message chat.Message)

	// Interaction answers commands, button presses, and forms.
	Interaction func(ctx context.Context, interaction chat.Interaction) chat.Response

	// Slow reports whether an interaction should be acknowledged
	// before Interaction runs. Optional.
	Slow func(interaction chat.Interaction) bool
}

// Config holds the Gateway's parameters.
type Config struct {
	// Token is the bot token. Required.
	Token *secret.Buffer

	// GuildID is the guild the bot serves. Required.
	GuildID string

	// HandlerTimeout defaults to DefaultHandlerTimeout.
	HandlerTimeout time.Duration

	Logger *slog.Logger
}

// Gateway is a connected bot session scoped to one guild.
type Gateway struct {
	session        *discordgo.Session
	guildID        string
	handlerTimeout time.Duration
	logger         *slog.Logger

	selfID string

	// base is cancelled by Close so in-flight handlers stop.
	base   context.Context
	cancel context.CancelFunc
}

// New creates a session and resolves the bot's own user. It does not
// connect to the gateway; call Start.
func New(ctx context.Context, config Config) (*Gateway, error) {
	switch {
	case config.Token == nil:
		return nil, errors.New("discord: Token is required")
	case config.GuildID == "":
		return nil, errors.New("discord: GuildID is required")
	case config.Logger == nil:
		return nil, errors.New("discord: Logger is required")
	}
	if config.HandlerTimeout <= 0 {
		config.HandlerTimeout = DefaultHandlerTimeout
	}

	session, err := discordgo.New("Bot " + config.Token.String())
	if err != nil {
		return nil, fmt.Errorf("discord: creating session: %w", err)
	}
	session.Identify.Intents = intents

	self, err := session.User("@me", discordgo.WithContext(ctx))
	if err != nil {
		return nil, classify("resolve bot user", err)
	}

	base, cancel := context.WithCancel(context.Background())
	return &Gateway{
		session:        session,
		guildID:        config.GuildID,
		handlerTimeout: config.HandlerTimeout,
		logger:         config.Logger,
		selfID:         self.ID,
		base:           base,
		cancel:         cancel,
	}, nil
}

// SelfID returns the bot's user id.
func (g *Gateway) SelfID() string {
	return g.selfID
}

// Start installs handlers, connects to the gateway, and registers the
// slash commands in the guild.
func (g *Gateway) Start(ctx context.Context, handlers Handlers) error {
	if handlers.Message == nil || handlers.Interaction == nil {
		return errors.New("discord: Message and Interaction handlers are required")
	}
	commands, err := Commands()
	if err != nil {
		return err
	}

	g.session.AddHandler(func(_ *discordgo.Session, event *discordgo.MessageCreate) {
		g.onMessage(handlers, event.Message)
	})
	g.session.AddHandler(func(_ *discordgo.Session, event *discordgo.InteractionCreate) {
		g.onInteraction(handlers, event.Interaction)
	})
	g.session.AddHandler(func(_ *discordgo.Session, event *discordgo.Ready) {
		g.logger.Info("gateway ready", "session_id", event.SessionID, "guilds", len(event.Guilds))
	})

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("discord: opening gateway: %w", err)
	}

	registered, err := g.session.ApplicationCommandBulkOverwrite(g.selfID, g.guildID, commands, discordgo.WithContext(ctx))
	if err != nil {
		g.session.Close()
		return classify("register commands", err)
	}
	g.logger.Info("slash commands registered", "guild_id", g.guildID, "count", len(registered))
	return nil
}

// Close cancels in-flight handlers and disconnects.
func (g *Gateway) Close() error {
	g.cancel()
	return g.session.Close()
}

func (g *Gateway) onMessage(handlers Handlers, message *discordgo.Message) {
	if message == nil || message.GuildID != g.guildID {
		return
	}
	ctx, cancel := context.WithTimeout(g.base, g.handlerTimeout)
	defer cancel()
	handlers.Message(ctx, messageFrom(message))
}

func (g *Gateway) onInteraction(handlers Handlers, interaction *discordgo.Interaction) {
	converted, ok := interactionFrom(interaction)
	if !ok {
		return
	}
	logger := g.logger.With("interaction_id", interaction.ID, "name", converted.Name, "user_id", converted.UserID)
	ctx, cancel := context.WithTimeout(g.base, g.handlerTimeout)
	defer cancel()

	if handlers.Slow != nil && handlers.Slow(converted) {
		err := g.session.InteractionRespond(interaction, &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{Flags: discordgo.MessageFlagsEphemeral},
		}, discordgo.WithContext(ctx))
		if err != nil {
			logger.Error("acknowledging interaction failed", "error", classify("defer", err))
			return
		}

		response := handlers.Interaction(ctx, converted)
		if _, err := g.session.InteractionResponseEdit(interaction, editFor(response), discordgo.WithContext(ctx)); err != nil {
			logger.Error("delivering deferred response failed", "error", classify("edit response", err))
		}
		return
	}

	response := handlers.Interaction(ctx, converted)
	if err := g.session.InteractionRespond(interaction, responseFor(response), discordgo.WithContext(ctx)); err != nil {
		logger.Error("responding to interaction failed", "error", classify("respond", err))
	}
}

// GrantRole adds roleID to userID.
func (g *Gateway) GrantRole(ctx context.Context, userID, roleID string) error {
	return classify("grant role", g.session.GuildMemberRoleAdd(g.guildID, userID, roleID, discordgo.WithContext(ctx)))
}

// RevokeRole removes roleID from userID.
func (g *Gateway) RevokeRole(ctx context.Context, userID, roleID string) error {
	return classify("revoke role", g.session.GuildMemberRoleRemove(g.guildID, userID, roleID, discordgo.WithContext(ctx)))
}

// SetDisplayName sets userID's guild nickname. The guild owner's
// nickname cannot be changed by bots; that fails with
// chat.ErrPermissionDenied.
func (g *Gateway) SetDisplayName(ctx context.Context, userID, name string) error {
	return classify("set nickname", g.session.GuildMemberNickname(g.guildID, userID, name, discordgo.WithContext(ctx)))
}

// Member looks up userID in the guild.
func (g *Gateway) Member(ctx context.Context, userID string) (chat.Member, error) {
	member, err := g.session.GuildMember(g.guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return chat.Member{}, classify("get member", err)
	}
	return memberFrom(member), nil
}

// SendDirect sends content to userID in a direct message.
func (g *Gateway) SendDirect(ctx context.Context, userID, content string) error {
	channel, err := g.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return classify("open direct channel", err)
	}
	_, err = g.session.ChannelMessageSendComplex(channel.ID, &discordgo.MessageSend{Content: content}, discordgo.WithContext(ctx))
	return classify("send direct message", err)
}

// SendMessage posts message in channelID and returns its id.
func (g *Gateway) SendMessage(ctx context.Context, channelID string, message chat.Outgoing) (string, error) {
	sent, err := g.session.ChannelMessageSendComplex(channelID, messageSendFor(channelID, message), discordgo.WithContext(ctx))
	if err != nil {
		return "", classify("send message", err)
	}
	return sent.ID, nil
}

// DeleteMessage deletes messageID from channelID.
func (g *Gateway) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	return classify("delete message", g.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx)))
}

// RouteLibraryLogs sends discordgo's internal log output to logger.
// discordgo's logger is process-global.
func RouteLibraryLogs(logger *slog.Logger) {
	discordgo.Logger = func(level, caller int, format string, arguments ...any) {
		message := fmt.Sprintf(format, arguments...)
		switch level {
		case discordgo.LogError:
			logger.Error(message, "source", "discordgo")
		case discordgo.LogWarning:
			logger.Warn(message, "source", "discordgo")
		case discordgo.LogInformational:
			logger.Info(message, "source", "discordgo")
		default:
			logger.Debug(message, "source", "discordgo")
		}
	}
}
