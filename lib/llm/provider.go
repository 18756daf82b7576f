// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Provider generates text.
type Provider interface {
	Generate(ctx context.Context, request Request) (*Response, error)
}

// Request is one single-turn generation.
type Request struct {
	// SystemInstruction steers the model. Optional.
	SystemInstruction string

	// Prompt is the user's text.
	Prompt string

	// MaxOutputTokens caps the reply. Zero leaves the provider default.
	MaxOutputTokens int
}

// Response is a completed generation.
type Response struct {
	Text         string
	Model        string
	FinishReason string
	Usage        Usage
}

type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// ErrEmptyResponse means the provider answered 200 with no text, for
// example because a safety filter blocked the prompt.
var ErrEmptyResponse = errors.New("llm: empty response")

// ProviderError is a non-2xx response from the provider.
type ProviderError struct {
	StatusCode int

	// Status is the provider's symbolic status (for Gemini, the
	// google.rpc code name such as "RESOURCE_EXHAUSTED").
	Status string

	Message string
}

func (err *ProviderError) Error() string {
	if err.Status != "" {
		return fmt.Sprintf("llm: HTTP %d: %s: %s", err.StatusCode, err.Status, err.Message)
	}
	return fmt.Sprintf("llm: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsRateLimited reports an HTTP 429.
func (err *ProviderError) IsRateLimited() bool {
	return err.StatusCode == http.StatusTooManyRequests
}

// IsOverloaded reports a server-side failure worth retrying.
func (err *ProviderError) IsOverloaded() bool {
	return err.StatusCode == http.StatusInternalServerError ||
		err.StatusCode == http.StatusServiceUnavailable ||
		err.StatusCode == http.StatusGatewayTimeout
}

// retryable reports whether another attempt could succeed.
func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrEmptyResponse) {
		return false
	}
	var providerError *ProviderError
	if errors.As(err, &providerError) {
		return providerError.IsRateLimited() || providerError.IsOverloaded() || providerError.StatusCode >= 500
	}
	// Transport failures and per-attempt deadlines.
	return true
}

// doProviderRequest POSTs wireRequest as JSON and returns the response
// on 200. Any other status is read into a ProviderError and the body
// closed. On success the caller closes the body.
func doProviderRequest(ctx context.Context, httpClient *http.Client, endpoint string, headers http.Header, wireRequest any, prefix string) (*http.Response, error) {
	body, err := json.Marshal(wireRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: marshaling request: %w", prefix, err)
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", prefix, err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	for name, values := range headers {
		for _, value := range values {
			httpRequest.Header.Add(name, value)
		}
	}

	httpResponse, err := httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("%s: sending request: %w", prefix, err)
	}
	if httpResponse.StatusCode != http.StatusOK {
		defer httpResponse.Body.Close()
		return nil, readProviderError(httpResponse)
	}
	return httpResponse, nil
}

// readProviderError parses the Google API error envelope:
// {"error":{"code":429,"message":"...","status":"RESOURCE_EXHAUSTED"}}.
func readProviderError(httpResponse *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(httpResponse.Body, 4096))

	var wireError struct {
		Error struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
			Status  string `json:"status"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Error.Message != "" {
		return &ProviderError{
			StatusCode: httpResponse.StatusCode,
			Status:     wireError.Error.Status,
			Message:    wireError.Error.Message,
		}
	}
	return &ProviderError{StatusCode: httpResponse.StatusCode, Message: string(body)}
}
