// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package roblox

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const testGroupID = 4242

// newTestClient points both API bases at server.
func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	return NewClient(Config{
		UsersBaseURL:  server.URL,
		GroupsBaseURL: server.URL,
		GroupID:       testGroupID,
		Timeout:       2 * time.Second,
		HTTPClient:    server.Client(),
	})
}

func TestResolveIdentity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost || request.URL.Path != "/v1/usernames/users" {
			t.Errorf("unexpected request %s %s", request.Method, request.URL.Path)
		}
		var body usernamesRequest
		if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
			t.Errorf("decoding request: %v", err)
		}
		if !body.ExcludeBannedUsers {
			t.Error("excludeBannedUsers should be true")
		}
		// Roblox matches case-insensitively and returns the canonical name.
		json.NewEncoder(writer).Encode(map[string]any{
			"data": []map[string]any{{
				"requestedUsername": body.Usernames[0],
				"id":                156,
				"name":              "alice",
				"displayName":       "Alice",
			}},
		})
	}))
	defer server.Close()
	client := newTestClient(t, server)

	identity, err := client.ResolveIdentity(context.Background(), "alice")
	if err != nil {
		t.Fatalf("ResolveIdentity: %v", err)
	}
	if !identity.Exists || identity.ID != 156 || identity.DisplayName != "Alice" {
		t.Errorf("ResolveIdentity(alice) = %+v", identity)
	}

	identity, err = client.ResolveIdentity(context.Background(), "ALICE")
	if err != nil {
		t.Fatalf("ResolveIdentity: %v", err)
	}
	if identity.Exists {
		t.Error("ResolveIdentity(ALICE) matched a differently-cased name")
	}
}

func TestResolveIdentityUnknown(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Write([]byte(`{"data":[]}`))
	}))
	defer server.Close()

	identity, err := newTestClient(t, server).ResolveIdentity(context.Background(), "ghost404")
	if err != nil {
		t.Fatalf("ResolveIdentity: %v", err)
	}
	if identity.Exists {
		t.Errorf("ghost404 should not exist, got %+v", identity)
	}
}

func TestFetchProfileText(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.URL.Path != "/v1/users/156" {
			t.Errorf("path = %s, want /v1/users/156", request.URL.Path)
		}
		writer.Write([]byte(`{"id":156,"name":"alice","description":"  ABCDEF123456\n"}`))
	}))
	defer server.Close()

	text, err := newTestClient(t, server).FetchProfileText(context.Background(), 156)
	if err != nil {
		t.Fatalf("FetchProfileText: %v", err)
	}
	if text != "  ABCDEF123456\n" {
		t.Errorf("FetchProfileText = %q, want the raw description", text)
	}
}

func TestFetchProfileTextNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusNotFound)
		writer.Write([]byte(`{"errors":[{"code":3,"message":"The user id is invalid."}]}`))
	}))
	defer server.Close()

	_, err := newTestClient(t, server).FetchProfileText(context.Background(), 1)
	if !IsNotFound(err) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if IsUnavailable(err) {
		t.Error("404 should not count as unavailable")
	}
	var apiError *APIError
	if !errors.As(err, &apiError) || apiError.Message != "The user id is invalid." {
		t.Errorf("APIError message not parsed: %v", err)
	}
}

func TestCheckGroupMembership(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		switch request.URL.Path {
		case "/v2/users/1/groups/roles":
			writer.Write([]byte(`{"data":[{"group":{"id":1},"role":{"rank":1}},{"group":{"id":4242},"role":{"rank":10}}]}`))
		case "/v2/users/2/groups/roles":
			writer.Write([]byte(`{"data":[{"group":{"id":1},"role":{"rank":1}}]}`))
		default:
			writer.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()
	client := newTestClient(t, server)

	tests := []struct {
		userID int64
		want   bool
	}{
		{1, true},
		{2, false},
		{3, false},
	}
	for _, test := range tests {
		got, err := client.CheckGroupMembership(context.Background(), test.userID)
		if err != nil {
			t.Fatalf("CheckGroupMembership(%d): %v", test.userID, err)
		}
		if got != test.want {
			t.Errorf("CheckGroupMembership(%d) = %v, want %v", test.userID, got, test.want)
		}
	}
}

func TestServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()
	client := newTestClient(t, server)

	if _, err := client.ResolveIdentity(context.Background(), "alice"); !IsUnavailable(err) {
		t.Errorf("ResolveIdentity on 429: err = %v, want ErrUnavailable", err)
	}
	if _, err := client.CheckGroupMembership(context.Background(), 1); !IsUnavailable(err) {
		t.Errorf("CheckGroupMembership on 429: err = %v, want ErrUnavailable", err)
	}
}

func TestTimeoutIsUnavailable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		select {
		case <-release:
		case <-request.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	client := NewClient(Config{
		UsersBaseURL: server.URL,
		Timeout:      50 * time.Millisecond,
		HTTPClient:   server.Client(),
	})
	if _, err := client.FetchProfileText(context.Background(), 1); !IsUnavailable(err) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client := NewClient(Config{UsersBaseURL: url, Timeout: time.Second})
	if _, err := client.ResolveIdentity(context.Background(), "alice"); !IsUnavailable(err) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
