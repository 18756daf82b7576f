// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat holds the platform-neutral values that flow between
// gatekeeper's components and the chat gateway adapter: incoming
// messages, members, interaction responses, and the buttons and forms
// they carry. Components declare the narrow collaborator interfaces
// they need in their own packages; internal/discord implements all of
// them.
package chat

import "errors"

var (
	// ErrMemberNotFound means the user is no longer in the guild.
	ErrMemberNotFound = errors.New("chat: member not found")

	// ErrPermissionDenied means the bot lacks permission for the
	// action (role hierarchy, missing Manage Nicknames, and so on).
	ErrPermissionDenied = errors.New("chat: permission denied")
)

// Message is a message posted in a channel.
type Message struct {
	ID        string
	ChannelID string

	// GuildID is empty for direct messages.
	GuildID string

	AuthorID    string
	AuthorIsBot bool
	Content     string

	// MentionIDs are the user ids mentioned in the message.
	MentionIDs []string
}

// Member is a guild member.
type Member struct {
	UserID      string
	Username    string
	DisplayName string
	RoleIDs     []string
}

// HasRole reports whether the member holds roleID.
func (m Member) HasRole(roleID string) bool {
	for _, held := range m.RoleIDs {
		if held == roleID {
			return true
		}
	}
	return false
}

// ButtonStyle selects how a button renders.
type ButtonStyle int

const (
	ButtonPrimary ButtonStyle = iota
	ButtonSecondary
	ButtonSuccess
	ButtonDanger

	// ButtonLink opens Button.URL instead of sending an interaction.
	ButtonLink
)

// Button is an interactive button. CustomID is what the router sees
// when it is clicked; link buttons carry URL instead.
type Button struct {
	Label    string
	Style    ButtonStyle
	CustomID string
	URL      string
}

// Field is a single text input in a Form.
type Field struct {
	ID          string
	Label       string
	Placeholder string
	Required    bool
	MaxLength   int
}

// Form is a modal dialog. Submitting it delivers the field values
// keyed by Field.ID under the form's CustomID.
type Form struct {
	CustomID string
	Title    string
	Fields   []Field
}

// Response is the bot's answer to an interaction. Exactly one of
// Content or Form is meaningful: a Form response opens the dialog.
type Response struct {
	Content string
	Buttons []Button
	Form    *Form

	// Ephemeral responses are visible only to the invoking user.
	Ephemeral bool
}

// Outgoing is a message the bot posts on its own initiative.
type Outgoing struct {
	Content string
	Buttons []Button

	// ReplyToID threads the message as a reply. Optional.
	ReplyToID string
}

// InteractionKind distinguishes the ways a user can invoke the bot.
type InteractionKind int

const (
	// Command is a slash command; Name is the command name.
	Command InteractionKind = iota + 1

	// ButtonPress is a button click; Name is the button's CustomID.
	ButtonPress

	// FormSubmit is a submitted Form; Name is the form's CustomID.
	FormSubmit
)

func (k InteractionKind) String() string {
	switch k {
	case Command:
		return "command"
	case ButtonPress:
		return "button"
	case FormSubmit:
		return "form"
	default:
		return "unknown"
	}
}

// Interaction is a command, button press, or form submission.
type Interaction struct {
	Kind InteractionKind
	Name string

	UserID    string
	GuildID   string
	ChannelID string

	// IsAdmin is true when the invoking member holds the guild's
	// administrator permission.
	IsAdmin bool

	// Values holds command options (user options carry the user id)
	// or form field values keyed by Field.ID.
	Values map[string]string
}
