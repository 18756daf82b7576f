// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package bot

import (
	"fmt"
	"strings"

	"github.com/bureau-foundation/gatekeeper/internal/chat"
	"github.com/bureau-foundation/gatekeeper/internal/linkstore"
	"github.com/bureau-foundation/gatekeeper/internal/verification"
)

const panelText = "**Welcome!** This server is for members of our Roblox group.\n\n" +
	"To get access, link your Roblox account: press the button below, enter your " +
	"Roblox username, and paste the code you are given into your Roblox profile " +
	"description. Your nickname here will be set to your Roblox username."

const tryAgainLater = "Something went wrong on our side. Please try again in a few minutes."

// replyFor maps a verification outcome to member-facing text. The
// empty code covers unexpected failures.
func replyFor(code verification.Code) string {
	switch code {
	case verification.AlreadyVerified:
		return "You're already verified."
	case verification.IdentityNotFound:
		return "I couldn't find a Roblox account with that exact username. Check the spelling and capitalization, then run /verify again."
	case verification.ProofMismatch:
		return "Your Roblox profile description doesn't match the code yet. Make sure it contains only the code, save it, and press the button again."
	case verification.NotAMember:
		return "Your profile checks out, but your account isn't in the community group. Join the group, then press the button again."
	case verification.SessionExpired:
		return "This verification session has expired. Run /verify to start again."
	case verification.NotCurrentlyVerified:
		return "You're not verified, so there's nothing to remove."
	case verification.ExternalServiceUnavailable:
		return "Roblox isn't responding right now. Please try again in a few minutes."
	case verification.PermissionDenied:
		return "Only server administrators can do that."
	default:
		return tryAgainLater
	}
}

func identityForm() *chat.Form {
	return &chat.Form{
		CustomID: FormIdentity,
		Title:    "Verify your Roblox account",
		Fields: []chat.Field{
			{
				ID:          FieldIdentity,
				Label:       "Roblox username",
				Placeholder: "Your exact username, not your display name",
				Required:    true,
				MaxLength:   usernameMaxLength,
			},
			{
				ID:          FieldAdminSecret,
				Label:       "Admin secret (leave blank)",
				Placeholder: "Only for server staff",
				MaxLength:   adminSecretMaxLength,
			},
		},
	}
}

// challengeResponse shows the proof code and the button that submits
// it. resumed marks a challenge picked back up by /verify.
func challengeResponse(challenge *verification.Challenge, resumed bool) chat.Response {
	var text strings.Builder
	if resumed {
		text.WriteString("You already have a verification in progress")
		if challenge.ExternalUsername != "" {
			fmt.Fprintf(&text, " for **%s**", challenge.ExternalUsername)
		}
		text.WriteString(".\n\n")
	}
	fmt.Fprintf(&text, "Set your Roblox profile description to this code:\n```\n%s\n```\n", challenge.Token)
	fmt.Fprintf(&text, "Then press **Done** before <t:%d:t>.", challenge.ExpiresAt.Unix())

	return chat.Response{
		Content: text.String(),
		Buttons: []chat.Button{{
			Label:    "Done",
			Style:    chat.ButtonPrimary,
			CustomID: ButtonProofPrefix + challenge.Nonce,
		}},
	}
}

// describeLink renders a link for /checkstatus.
func describeLink(userID string, link *linkstore.Link) string {
	if link == nil {
		return fmt.Sprintf("<@%s> has never started verification.", userID)
	}

	var text strings.Builder
	fmt.Fprintf(&text, "<@%s>: **%s**", userID, link.Status)
	if link.ExternalUsername != "" {
		fmt.Fprintf(&text, "\nRoblox: %s", link.ExternalUsername)
		if link.ExternalID != 0 {
			fmt.Fprintf(&text, " (%d)", link.ExternalID)
		}
	}
	fmt.Fprintf(&text, "\nGroup member: %s", yesNo(link.IsExternalGroupMember))
	if link.IsAdminOverride {
		text.WriteString("\nAdmin override: yes")
	}
	if !link.VerifiedAt.IsZero() {
		fmt.Fprintf(&text, "\nVerified: <t:%d:f>", link.VerifiedAt.Unix())
	}
	fmt.Fprintf(&text, "\nLast updated: <t:%d:R>", link.UpdatedAt.Unix())
	return text.String()
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
