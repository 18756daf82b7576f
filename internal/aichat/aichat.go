// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package aichat answers guild messages with generated text.
//
// A message triggers a reply when it is posted in one of the
// configured AI channels or mentions the bot. The bot's mention is
// stripped from the prompt, the configured system instruction is sent
// alongside it, and the provider is called through [llm.Retry]. Replies
// longer than the platform's message limit are split into several
// messages, the first threaded as a reply to the prompt.
//
// The adapter trusts its caller to have run the access gate: it only
// ever sees messages the gate allowed.
package aichat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/bureau-foundation/gatekeeper/internal/chat"
	"github.com/bureau-foundation/gatekeeper/internal/metrics"
	"github.com/bureau-foundation/gatekeeper/lib/llm"
)

// MessageLimit is the longest message the chat platform accepts, in
// characters.
const MessageLimit = 2000

const (
	unavailableReply = "I can't reach my brain right now. Please try again later."
	emptyPromptReply = "Ask me something after the mention and I'll do my best to answer."
)

// Poster sends messages to a channel.
type Poster interface {
	SendMessage(ctx context.Context, channelID string, message chat.Outgoing) (string, error)
}

// Config holds the Adapter's parameters.
type Config struct {
	Provider llm.Provider
	Poster   Poster

	// SelfID is the bot's user id, used to detect and strip mentions.
	SelfID string

	// ChannelIDs are channels where every message is answered.
	ChannelIDs []string

	SystemInstruction string
	MaxOutputTokens   int

	// Retry controls provider retries. Its Clock and Logger default
	// to the adapter's Logger and a real clock.
	Retry llm.RetryPolicy

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Adapter turns triggering messages into generated replies.
type Adapter struct {
	provider llm.Provider
	poster   Poster

	selfID   string
	channels map[string]struct{}

	systemInstruction string
	maxOutputTokens   int
	retry             llm.RetryPolicy

	logger  *slog.Logger
	metrics *metrics.Metrics
}

// New returns an Adapter for config.
func New(config Config) (*Adapter, error) {
	switch {
	case config.Provider == nil:
		return nil, errors.New("aichat: Provider is required")
	case config.Poster == nil:
		return nil, errors.New("aichat: Poster is required")
	case config.Logger == nil:
		return nil, errors.New("aichat: Logger is required")
	}

	channels := make(map[string]struct{}, len(config.ChannelIDs))
	for _, channelID := range config.ChannelIDs {
		channels[channelID] = struct{}{}
	}

	adapter := &Adapter{
		provider:          config.Provider,
		poster:            config.Poster,
		selfID:            config.SelfID,
		channels:          channels,
		systemInstruction: config.SystemInstruction,
		maxOutputTokens:   config.MaxOutputTokens,
		retry:             config.Retry,
		logger:            config.Logger,
		metrics:           config.Metrics,
	}
	if adapter.retry.Logger == nil {
		adapter.retry.Logger = config.Logger
	}
	previous := adapter.retry.OnAttempt
	adapter.retry.OnAttempt = func(attempt int, err error) {
		adapter.metrics.GenerationAttempt(err)
		if previous != nil {
			previous(attempt, err)
		}
	}
	return adapter, nil
}

// Triggered reports whether message should be answered.
func (a *Adapter) Triggered(message chat.Message) bool {
	if message.AuthorIsBot || message.AuthorID == a.selfID {
		return false
	}
	if _, ok := a.channels[message.ChannelID]; ok {
		return true
	}
	for _, mentioned := range message.MentionIDs {
		if mentioned == a.selfID {
			return true
		}
	}
	return false
}

// Handle answers message if it triggers the adapter and reports
// whether it did. Provider failures are answered with an apology and
// are not returned; only a failure to post is.
func (a *Adapter) Handle(ctx context.Context, message chat.Message) (bool, error) {
	if !a.Triggered(message) {
		return false, nil
	}

	prompt := StripMention(message.Content, a.selfID)
	if prompt == "" {
		return true, a.post(ctx, message, emptyPromptReply)
	}

	response, err := llm.Retry(ctx, a.provider, llm.Request{
		SystemInstruction: a.systemInstruction,
		Prompt:            prompt,
		MaxOutputTokens:   a.maxOutputTokens,
	}, a.retry)
	if err != nil {
		if ctx.Err() != nil {
			return true, ctx.Err()
		}
		a.logger.Error("text generation failed",
			"channel_id", message.ChannelID,
			"user_id", message.AuthorID,
			"error", err,
		)
		return true, a.post(ctx, message, unavailableReply)
	}

	a.logger.Debug("generated reply",
		"channel_id", message.ChannelID,
		"model", response.Model,
		"input_tokens", response.Usage.InputTokens,
		"output_tokens", response.Usage.OutputTokens,
	)
	return true, a.post(ctx, message, response.Text)
}

func (a *Adapter) post(ctx context.Context, message chat.Message, text string) error {
	for index, chunk := range Split(text, MessageLimit) {
		outgoing := chat.Outgoing{Content: chunk}
		if index == 0 {
			outgoing.ReplyToID = message.ID
		}
		if _, err := a.poster.SendMessage(ctx, message.ChannelID, outgoing); err != nil {
			return fmt.Errorf("aichat: post reply: %w", err)
		}
	}
	return nil
}

// StripMention removes every mention of userID from content and trims
// the result.
func StripMention(content, userID string) string {
	if userID != "" {
		content = strings.ReplaceAll(content, "<@"+userID+">", "")
		content = strings.ReplaceAll(content, "<@!"+userID+">", "")
	}
	return strings.TrimSpace(content)
}

// Split cuts text into chunks of at most limit characters. It prefers
// to break after a newline, then after a space, and otherwise cuts
// mid-word. Whitespace-only text yields no chunks.
func Split(text string, limit int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if limit <= 0 {
		return []string{text}
	}

	var chunks []string
	for utf8.RuneCountInString(text) > limit {
		cut := byteOffset(text, limit)
		window := text[:cut]
		if newline := strings.LastIndexByte(window, '\n'); newline > 0 {
			cut = newline + 1
		} else if space := strings.LastIndexByte(window, ' '); space > 0 {
			cut = space + 1
		}
		if chunk := strings.TrimSpace(text[:cut]); chunk != "" {
			chunks = append(chunks, chunk)
		}
		text = strings.TrimSpace(text[cut:])
	}
	if text != "" {
		chunks = append(chunks, text)
	}
	return chunks
}

// byteOffset returns the byte index just past the first n runes.
func byteOffset(text string, n int) int {
	offset := 0
	for count := 0; count < n && offset < len(text); count++ {
		_, size := utf8.DecodeRuneInString(text[offset:])
		offset += size
	}
	return offset
}
