// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package proofkey generates the short tokens a user pastes into their
// Roblox profile description to prove they own the account.
//
// A token is a human-copyable shared secret, not a credential: twelve
// symbols from A-Z0-9 (36^12, about 62 bits) is enough that two
// concurrent challenges never collide in practice.
package proofkey

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	// Length is the number of symbols in a token.
	Length = 12

	// Alphabet is the symbol set, uppercase so the token survives
	// profile editors that change case of the first letter.
	Alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generator produces a fresh token. The verification machine takes one
// so tests can supply fixed tokens.
type Generator func() (string, error)

// Generate returns a token drawn uniformly from Alphabet.
func Generate() (string, error) {
	alphabetSize := big.NewInt(int64(len(Alphabet)))
	token := make([]byte, Length)
	for index := range token {
		choice, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("proofkey: reading randomness: %w", err)
		}
		token[index] = Alphabet[choice.Int64()]
	}
	return string(token), nil
}

// Valid reports whether token has the shape Generate produces.
func Valid(token string) bool {
	if len(token) != Length {
		return false
	}
	for index := 0; index < len(token); index++ {
		character := token[index]
		if (character < 'A' || character > 'Z') && (character < '0' || character > '9') {
			return false
		}
	}
	return true
}
