// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roblox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	defaultUsersBaseURL  = "https://users.roblox.com"
	defaultGroupsBaseURL = "https://groups.roblox.com"
	defaultTimeout       = 10 * time.Second

	// maxResponseSize bounds every body read. The largest legitimate
	// response (a user in 100 groups) is well under this.
	maxResponseSize = 1 << 20
)

// Config holds the parameters for NewClient.
type Config struct {
	// UsersBaseURL and GroupsBaseURL default to the public endpoints.
	UsersBaseURL  string
	GroupsBaseURL string

	// GroupID is the group CheckGroupMembership tests for.
	GroupID int64

	// RequestsPerSecond caps the combined call rate. Zero means
	// unlimited.
	RequestsPerSecond float64

	// Timeout bounds each request, including the body read. Defaults
	// to 10s.
	Timeout time.Duration

	// HTTPClient defaults to http.DefaultClient.
	HTTPClient *http.Client

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Client calls the Roblox web APIs. Safe for concurrent use.
type Client struct {
	usersBaseURL  string
	groupsBaseURL string
	groupID       int64
	timeout       time.Duration
	limiter       *rate.Limiter
	httpClient    *http.Client
	logger        *slog.Logger
}

// Identity is the result of ResolveIdentity. When Exists is false the
// other fields are zero.
type Identity struct {
	Exists      bool
	ID          int64
	Name        string
	DisplayName string
}

// NewClient creates a Client from config.
func NewClient(config Config) *Client {
	usersBaseURL := config.UsersBaseURL
	if usersBaseURL == "" {
		usersBaseURL = defaultUsersBaseURL
	}
	groupsBaseURL := config.GroupsBaseURL
	if groupsBaseURL == "" {
		groupsBaseURL = defaultGroupsBaseURL
	}
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	limit := rate.Inf
	if config.RequestsPerSecond > 0 {
		limit = rate.Limit(config.RequestsPerSecond)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		usersBaseURL:  strings.TrimRight(usersBaseURL, "/"),
		groupsBaseURL: strings.TrimRight(groupsBaseURL, "/"),
		groupID:       config.GroupID,
		timeout:       timeout,
		limiter:       rate.NewLimiter(limit, 1),
		httpClient:    httpClient,
		logger:        logger,
	}
}

type usernamesRequest struct {
	Usernames          []string `json:"usernames"`
	ExcludeBannedUsers bool     `json:"excludeBannedUsers"`
}

type usernamesResponse struct {
	Data []struct {
		RequestedUsername string `json:"requestedUsername"`
		ID                int64  `json:"id"`
		Name              string `json:"name"`
		DisplayName       string `json:"displayName"`
	} `json:"data"`
}

// ResolveIdentity looks up name. Roblox matches usernames
// case-insensitively; only a result whose canonical name equals name
// exactly counts as existing.
func (client *Client) ResolveIdentity(ctx context.Context, name string) (Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Identity{}, nil
	}

	var response usernamesResponse
	err := client.call(ctx, "resolve identity", http.MethodPost,
		client.usersBaseURL+"/v1/usernames/users",
		usernamesRequest{Usernames: []string{name}, ExcludeBannedUsers: true},
		&response)
	if err != nil {
		return Identity{}, err
	}

	for _, user := range response.Data {
		if user.Name == name {
			return Identity{Exists: true, ID: user.ID, Name: user.Name, DisplayName: user.DisplayName}, nil
		}
	}
	return Identity{}, nil
}

type userResponse struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// FetchProfileText returns the user's profile description, untrimmed.
func (client *Client) FetchProfileText(ctx context.Context, userID int64) (string, error) {
	var response userResponse
	err := client.call(ctx, "fetch profile", http.MethodGet,
		fmt.Sprintf("%s/v1/users/%d", client.usersBaseURL, userID), nil, &response)
	if err != nil {
		return "", err
	}
	return response.Description, nil
}

type groupRolesResponse struct {
	Data []struct {
		Group struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
		} `json:"group"`
		Role struct {
			ID   int64  `json:"id"`
			Name string `json:"name"`
			Rank int    `json:"rank"`
		} `json:"role"`
	} `json:"data"`
}

// CheckGroupMembership reports whether userID is in the configured
// group. A user Roblox no longer knows (404) is not a member.
func (client *Client) CheckGroupMembership(ctx context.Context, userID int64) (bool, error) {
	if client.groupID == 0 {
		return false, fmt.Errorf("roblox: no group configured")
	}

	var response groupRolesResponse
	err := client.call(ctx, "check group membership", http.MethodGet,
		fmt.Sprintf("%s/v2/users/%d/groups/roles", client.groupsBaseURL, userID), nil, &response)
	if err != nil {
		if IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	for _, membership := range response.Data {
		if membership.Group.ID == client.groupID {
			return true, nil
		}
	}
	return false, nil
}

type errorBody struct {
	Errors []struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
}

// call waits for the limiter, performs one request under the client's
// timeout, and decodes a 2xx JSON body into result.
func (client *Client) call(ctx context.Context, operation, method, url string, requestBody, result any) error {
	if err := client.limiter.Wait(ctx); err != nil {
		return &unavailable{operation: operation, err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, client.timeout)
	defer cancel()

	var body io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return fmt.Errorf("roblox: %s: encoding request: %w", operation, err)
		}
		body = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("roblox: %s: %w", operation, err)
	}
	request.Header.Set("Accept", "application/json")
	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	response, err := client.httpClient.Do(request)
	if err != nil {
		client.logger.Warn("roblox request failed",
			"operation", operation,
			"error", err,
		)
		return &unavailable{operation: operation, err: err}
	}
	defer response.Body.Close()

	data, err := io.ReadAll(io.LimitReader(response.Body, maxResponseSize))
	if err != nil {
		return &unavailable{operation: operation, err: fmt.Errorf("reading response: %w", err)}
	}

	client.logger.Debug("roblox request",
		"operation", operation,
		"status", response.StatusCode,
		"duration", time.Since(started),
	)

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		apiError := &APIError{StatusCode: response.StatusCode}
		var parsed errorBody
		if json.Unmarshal(data, &parsed) == nil && len(parsed.Errors) > 0 {
			apiError.Message = parsed.Errors[0].Message
		}
		return fmt.Errorf("%s: %w", operation, apiError)
	}

	if err := json.Unmarshal(data, result); err != nil {
		return &unavailable{operation: operation, err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}
