// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/secret"
)

const defaultGeminiBaseURL = "https://generativelanguage.googleapis.com"

// GeminiConfig holds the parameters for NewGemini.
type GeminiConfig struct {
	// BaseURL defaults to the public Generative Language API.
	BaseURL string

	// Model is the model id, for example "gemini-2.0-flash".
	Model string

	// APIKey is borrowed, not closed by the provider.
	APIKey *secret.Buffer

	// Timeout bounds each attempt. Zero means no per-attempt limit.
	Timeout time.Duration

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Gemini implements [Provider] with generateContent.
type Gemini struct {
	endpoint   string
	model      string
	apiKey     *secret.Buffer
	timeout    time.Duration
	httpClient *http.Client
}

// NewGemini creates a Gemini provider.
func NewGemini(config GeminiConfig) (*Gemini, error) {
	if config.Model == "" {
		return nil, fmt.Errorf("llm/gemini: Model is required")
	}
	if config.APIKey == nil {
		return nil, fmt.Errorf("llm/gemini: APIKey is required")
	}
	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = defaultGeminiBaseURL
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Gemini{
		endpoint:   fmt.Sprintf("%s/v1beta/models/%s:generateContent", strings.TrimRight(baseURL, "/"), url.PathEscape(config.Model)),
		model:      config.Model,
		apiKey:     config.APIKey,
		timeout:    config.Timeout,
		httpClient: httpClient,
	}, nil
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	MaxOutputTokens int `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	SystemInstruction *geminiContent          `json:"systemInstruction,omitempty"`
	Contents          []geminiContent         `json:"contents"`
	GenerationConfig  *geminiGenerationConfig `json:"generationConfig,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content      geminiContent `json:"content"`
		FinishReason string        `json:"finishReason"`
	} `json:"candidates"`
	PromptFeedback struct {
		BlockReason string `json:"blockReason"`
	} `json:"promptFeedback"`
	UsageMetadata struct {
		PromptTokenCount     int64 `json:"promptTokenCount"`
		CandidatesTokenCount int64 `json:"candidatesTokenCount"`
	} `json:"usageMetadata"`
	ModelVersion string `json:"modelVersion"`
}

// Generate sends one generateContent request.
func (provider *Gemini) Generate(ctx context.Context, request Request) (*Response, error) {
	if provider.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, provider.timeout)
		defer cancel()
	}

	headers := http.Header{}
	headers.Set("x-goog-api-key", provider.apiKey.String())

	httpResponse, err := doProviderRequest(ctx, provider.httpClient, provider.endpoint,
		headers, provider.buildRequest(request), "llm/gemini")
	if err != nil {
		return nil, err
	}
	defer httpResponse.Body.Close()

	var wireResponse geminiResponse
	if err := json.NewDecoder(httpResponse.Body).Decode(&wireResponse); err != nil {
		return nil, fmt.Errorf("llm/gemini: decoding response: %w", err)
	}
	return wireResponse.toResponse(provider.model)
}

func (provider *Gemini) buildRequest(request Request) geminiRequest {
	wireRequest := geminiRequest{
		Contents: []geminiContent{{
			Role:  "user",
			Parts: []geminiPart{{Text: request.Prompt}},
		}},
	}
	if request.SystemInstruction != "" {
		wireRequest.SystemInstruction = &geminiContent{
			Parts: []geminiPart{{Text: request.SystemInstruction}},
		}
	}
	if request.MaxOutputTokens > 0 {
		wireRequest.GenerationConfig = &geminiGenerationConfig{MaxOutputTokens: request.MaxOutputTokens}
	}
	return wireRequest
}

func (wireResponse *geminiResponse) toResponse(model string) (*Response, error) {
	if len(wireResponse.Candidates) == 0 {
		if reason := wireResponse.PromptFeedback.BlockReason; reason != "" {
			return nil, fmt.Errorf("%w: prompt blocked (%s)", ErrEmptyResponse, reason)
		}
		return nil, ErrEmptyResponse
	}

	candidate := wireResponse.Candidates[0]
	var text strings.Builder
	for _, part := range candidate.Content.Parts {
		text.WriteString(part.Text)
	}
	if text.Len() == 0 {
		return nil, fmt.Errorf("%w: finish reason %s", ErrEmptyResponse, candidate.FinishReason)
	}

	if wireResponse.ModelVersion != "" {
		model = wireResponse.ModelVersion
	}
	return &Response{
		Text:         text.String(),
		Model:        model,
		FinishReason: candidate.FinishReason,
		Usage: Usage{
			InputTokens:  wireResponse.UsageMetadata.PromptTokenCount,
			OutputTokens: wireResponse.UsageMetadata.CandidatesTokenCount,
		},
	}, nil
}
