// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bureau-foundation/gatekeeper/lib/clock"
)

// RetryPolicy configures Retry. The zero value means three attempts
// with 1s then 2s between them, on the real clock.
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	Clock          clock.Clock
	Logger         *slog.Logger

	// OnAttempt, if set, is called after every attempt with its
	// 1-based number and error (nil on success).
	OnAttempt func(attempt int, err error)
}

func (policy RetryPolicy) withDefaults() RetryPolicy {
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 3
	}
	if policy.InitialBackoff <= 0 {
		policy.InitialBackoff = time.Second
	}
	if policy.Clock == nil {
		policy.Clock = clock.Real()
	}
	if policy.Logger == nil {
		policy.Logger = slog.Default()
	}
	return policy
}

// Retry calls provider.Generate until it succeeds, a non-retryable
// error occurs, or MaxAttempts is reached. The backoff doubles after
// each failed attempt. The last error is returned wrapped.
func Retry(ctx context.Context, provider Provider, request Request, policy RetryPolicy) (*Response, error) {
	policy = policy.withDefaults()
	backoff := policy.InitialBackoff

	var lastError error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		response, err := provider.Generate(ctx, request)
		if policy.OnAttempt != nil {
			policy.OnAttempt(attempt, err)
		}
		if err == nil {
			return response, nil
		}
		lastError = err

		if !retryable(err) || attempt == policy.MaxAttempts {
			break
		}
		policy.Logger.Warn("text generation failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)
		select {
		case <-policy.Clock.After(backoff):
		case <-ctx.Done():
			return nil, fmt.Errorf("llm: retry interrupted: %w", ctx.Err())
		}
		backoff *= 2
	}
	return nil, fmt.Errorf("llm: generation failed: %w", lastError)
}
