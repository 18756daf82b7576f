// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package proofkey

import "testing"

func TestGenerateShape(t *testing.T) {
	for range 100 {
		token, err := Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if !Valid(token) {
			t.Fatalf("Generate returned %q, not %d symbols of A-Z0-9", token, Length)
		}
	}
}

func TestGenerateVaries(t *testing.T) {
	seen := make(map[string]bool)
	for range 50 {
		token, err := Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		if seen[token] {
			t.Fatalf("Generate repeated %q within 50 draws", token)
		}
		seen[token] = true
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		token string
		want  bool
	}{
		{"ABCDEF123456", true},
		{"ABCDEF12345", false},
		{"ABCDEF1234567", false},
		{"abcdef123456", false},
		{"ABCDEF-23456", false},
		{"", false},
	}
	for _, test := range tests {
		if got := Valid(test.token); got != test.want {
			t.Errorf("Valid(%q) = %v, want %v", test.token, got, test.want)
		}
	}
}
