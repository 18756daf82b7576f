// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package discord

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/bureau-foundation/gatekeeper/internal/chat"
)

// maxButtonsPerRow is the platform's limit on components per actions
// row.
const maxButtonsPerRow = 5

func messageFrom(message *discordgo.Message) chat.Message {
	converted := chat.Message{
		ID:        message.ID,
		ChannelID: message.ChannelID,
		GuildID:   message.GuildID,
		Content:   message.Content,
	}
	if message.Author != nil {
		converted.AuthorID = message.Author.ID
		converted.AuthorIsBot = message.Author.Bot
	}
	for _, user := range message.Mentions {
		if user != nil {
			converted.MentionIDs = append(converted.MentionIDs, user.ID)
		}
	}
	return converted
}

func memberFrom(member *discordgo.Member) chat.Member {
	converted := chat.Member{RoleIDs: member.Roles, DisplayName: member.Nick}
	if member.User != nil {
		converted.UserID = member.User.ID
		converted.Username = member.User.Username
		converted.DisplayName = member.DisplayName()
	}
	return converted
}

// interactionFrom converts a gateway interaction. ok is false for
// interaction types the bot does not handle.
func interactionFrom(interaction *discordgo.Interaction) (chat.Interaction, bool) {
	converted := chat.Interaction{
		GuildID:   interaction.GuildID,
		ChannelID: interaction.ChannelID,
		Values:    make(map[string]string),
	}
	switch {
	case interaction.Member != nil:
		if interaction.Member.User != nil {
			converted.UserID = interaction.Member.User.ID
		}
		converted.IsAdmin = interaction.Member.Permissions&discordgo.PermissionAdministrator != 0
	case interaction.User != nil:
		converted.UserID = interaction.User.ID
	}

	switch interaction.Type {
	case discordgo.InteractionApplicationCommand:
		data := interaction.ApplicationCommandData()
		converted.Kind = chat.Command
		converted.Name = data.Name
		for _, option := range data.Options {
			if option != nil && option.Value != nil {
				converted.Values[option.Name] = fmt.Sprint(option.Value)
			}
		}
	case discordgo.InteractionMessageComponent:
		converted.Kind = chat.ButtonPress
		converted.Name = interaction.MessageComponentData().CustomID
	case discordgo.InteractionModalSubmit:
		data := interaction.ModalSubmitData()
		converted.Kind = chat.FormSubmit
		converted.Name = data.CustomID
		collectInputs(data.Components, converted.Values)
	default:
		return chat.Interaction{}, false
	}
	return converted, true
}

// collectInputs walks modal components and records every text input.
func collectInputs(components []discordgo.MessageComponent, values map[string]string) {
	for _, component := range components {
		switch typed := component.(type) {
		case *discordgo.ActionsRow:
			collectInputs(typed.Components, values)
		case discordgo.ActionsRow:
			collectInputs(typed.Components, values)
		case *discordgo.TextInput:
			values[typed.CustomID] = typed.Value
		case discordgo.TextInput:
			values[typed.CustomID] = typed.Value
		}
	}
}

var buttonStyles = map[chat.ButtonStyle]discordgo.ButtonStyle{
	chat.ButtonPrimary:   discordgo.PrimaryButton,
	chat.ButtonSecondary: discordgo.SecondaryButton,
	chat.ButtonSuccess:   discordgo.SuccessButton,
	chat.ButtonDanger:    discordgo.DangerButton,
	chat.ButtonLink:      discordgo.LinkButton,
}

// buttonRows lays buttons out in actions rows.
func buttonRows(buttons []chat.Button) []discordgo.MessageComponent {
	var rows []discordgo.MessageComponent
	for start := 0; start < len(buttons); start += maxButtonsPerRow {
		end := min(start+maxButtonsPerRow, len(buttons))
		row := discordgo.ActionsRow{}
		for _, button := range buttons[start:end] {
			converted := discordgo.Button{Label: button.Label, Style: buttonStyles[button.Style]}
			if button.Style == chat.ButtonLink {
				converted.URL = button.URL
			} else {
				converted.CustomID = button.CustomID
			}
			row.Components = append(row.Components, converted)
		}
		rows = append(rows, row)
	}
	return rows
}

// responseFor converts an immediate interaction response.
func responseFor(response chat.Response) *discordgo.InteractionResponse {
	if response.Form != nil {
		return &discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseModal,
			Data: &discordgo.InteractionResponseData{
				CustomID:   response.Form.CustomID,
				Title:      response.Form.Title,
				Components: formRows(response.Form),
			},
		}
	}

	data := &discordgo.InteractionResponseData{
		Content:    response.Content,
		Components: buttonRows(response.Buttons),
	}
	if response.Ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: data,
	}
}

// formRows puts each form field in its own row, as modals require.
func formRows(form *chat.Form) []discordgo.MessageComponent {
	rows := make([]discordgo.MessageComponent, 0, len(form.Fields))
	for _, field := range form.Fields {
		rows = append(rows, discordgo.ActionsRow{Components: []discordgo.MessageComponent{
			discordgo.TextInput{
				CustomID:    field.ID,
				Label:       field.Label,
				Style:       discordgo.TextInputShort,
				Placeholder: field.Placeholder,
				Required:    field.Required,
				MaxLength:   field.MaxLength,
			},
		}})
	}
	return rows
}

// editFor converts a response delivered after a deferred
// acknowledgement.
func editFor(response chat.Response) *discordgo.WebhookEdit {
	content := response.Content
	components := buttonRows(response.Buttons)
	if components == nil {
		components = []discordgo.MessageComponent{}
	}
	return &discordgo.WebhookEdit{Content: &content, Components: &components}
}

func messageSendFor(channelID string, message chat.Outgoing) *discordgo.MessageSend {
	send := &discordgo.MessageSend{
		Content:    message.Content,
		Components: buttonRows(message.Buttons),
	}
	if message.ReplyToID != "" {
		failIfNotExists := false
		send.Reference = &discordgo.MessageReference{
			MessageID:       message.ReplyToID,
			ChannelID:       channelID,
			FailIfNotExists: &failIfNotExists,
		}
	}
	return send
}
