// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package bot routes chat events to gatekeeper's components and turns
// every outcome into a reply a member can act on.
//
// Interactions:
//
//	/verify, "agree" button       verification.Machine.Start
//	"submit-identity" form        verification.Machine.SubmitIdentity
//	"submit-proof:<nonce>" button verification.Machine.SubmitProof
//	/unverify                     verification.Machine.Unverify
//	/checkstatus user             verification.Machine.Status (admins)
//	/deploy_verification_message  posts the verification panel (admins)
//
// Guild messages go through the access gate first; messages the gate
// allows are offered to the AI chat adapter.
//
// Replies never echo internal errors. Failures that are the member's
// to fix (a typo in a username, a profile without the code) say what
// to do next; failures that are not say to try again later.
package bot
