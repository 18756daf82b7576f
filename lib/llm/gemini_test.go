// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bureau-foundation/gatekeeper/lib/secret"
)

func newTestGemini(t *testing.T, handler http.HandlerFunc) *Gemini {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	apiKey, err := secret.NewFromString("test-key")
	if err != nil {
		t.Fatalf("secret: %v", err)
	}
	t.Cleanup(func() { apiKey.Close() })

	provider, err := NewGemini(GeminiConfig{
		BaseURL:    server.URL,
		Model:      "gemini-test",
		APIKey:     apiKey,
		HTTPClient: server.Client(),
	})
	if err != nil {
		t.Fatalf("NewGemini: %v", err)
	}
	return provider
}

func TestGeminiGenerate(t *testing.T) {
	provider := newTestGemini(t, func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/v1beta/models/gemini-test:generateContent" {
			t.Errorf("path = %s", request.URL.Path)
		}
		if got := request.Header.Get("x-goog-api-key"); got != "test-key" {
			t.Errorf("x-goog-api-key = %q, want test-key", got)
		}

		var wireRequest geminiRequest
		if err := json.NewDecoder(request.Body).Decode(&wireRequest); err != nil {
			t.Fatalf("decoding request: %v", err)
		}
		if wireRequest.SystemInstruction == nil || wireRequest.SystemInstruction.Parts[0].Text != "be brief" {
			t.Errorf("system instruction not sent: %+v", wireRequest.SystemInstruction)
		}
		if len(wireRequest.Contents) != 1 || wireRequest.Contents[0].Role != "user" ||
			wireRequest.Contents[0].Parts[0].Text != "hello" {
			t.Errorf("contents = %+v", wireRequest.Contents)
		}

		writer.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "Hi "}, {"text": "there!"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 3},
			"modelVersion": "gemini-test-001"
		}`))
	})

	response, err := provider.Generate(context.Background(), Request{SystemInstruction: "be brief", Prompt: "hello"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if response.Text != "Hi there!" {
		t.Errorf("Text = %q, want %q", response.Text, "Hi there!")
	}
	if response.Model != "gemini-test-001" || response.FinishReason != "STOP" {
		t.Errorf("Model/FinishReason = %q/%q", response.Model, response.FinishReason)
	}
	if response.Usage.InputTokens != 7 || response.Usage.OutputTokens != 3 {
		t.Errorf("Usage = %+v", response.Usage)
	}
}

func TestGeminiProviderError(t *testing.T) {
	provider := newTestGemini(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusTooManyRequests)
		writer.Write([]byte(`{"error":{"code":429,"message":"quota exceeded","status":"RESOURCE_EXHAUSTED"}}`))
	})

	_, err := provider.Generate(context.Background(), Request{Prompt: "hello"})
	var providerError *ProviderError
	if !errors.As(err, &providerError) {
		t.Fatalf("err = %v, want *ProviderError", err)
	}
	if !providerError.IsRateLimited() || providerError.Status != "RESOURCE_EXHAUSTED" {
		t.Errorf("ProviderError = %+v", providerError)
	}
}

func TestGeminiBlockedPrompt(t *testing.T) {
	provider := newTestGemini(t, func(writer http.ResponseWriter, request *http.Request) {
		writer.Write([]byte(`{"promptFeedback":{"blockReason":"SAFETY"}}`))
	})

	_, err := provider.Generate(context.Background(), Request{Prompt: "hello"})
	if !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("err = %v, want ErrEmptyResponse", err)
	}
}

func TestNewGeminiRequiresKey(t *testing.T) {
	if _, err := NewGemini(GeminiConfig{Model: "m"}); err == nil {
		t.Fatal("NewGemini without an API key succeeded")
	}
}
