// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/huddlechat/huddle/lib/netutil"
)

func TestTokenProvider(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		if request.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", request.Method)
		}
		if err := request.ParseForm(); err != nil {
			t.Fatalf("ParseForm failed: %v", err)
		}
		if got := request.PostForm.Get("grant_type"); got != "client_credentials" {
			t.Errorf("grant_type = %q", got)
		}
		switch request.PostForm.Get("user_id") {
		case "a@x.com":
			writeJSON(writer, map[string]any{"access_token": "chat-token", "user_id": "@a:local", "expires_in": 60})
		case "empty@x.com":
			writeJSON(writer, map[string]any{"user_id": "@empty:local"})
		default:
			writer.WriteHeader(http.StatusForbidden)
			writeJSON(writer, map[string]string{"error": "unknown user"})
		}
	}))
	t.Cleanup(server.Close)

	provider, err := NewTokenProvider(TokenProviderConfig{URL: server.URL})
	if err != nil {
		t.Fatalf("NewTokenProvider failed: %v", err)
	}

	t.Run("issued", func(t *testing.T) {
		token, err := provider.Token(context.Background(), "a@x.com")
		if err != nil {
			t.Fatalf("Token failed: %v", err)
		}
		defer token.AccessToken.Close()
		if token.AccessToken.String() != "chat-token" {
			t.Errorf("access token mismatch")
		}
		if token.UserID.String() != "@a:local" {
			t.Errorf("UserID = %s", token.UserID)
		}
		if token.ExpiresIn != time.Minute {
			t.Errorf("ExpiresIn = %s, want 1m", token.ExpiresIn)
		}
	})

	t.Run("rejected", func(t *testing.T) {
		_, err := provider.Token(context.Background(), "nobody@x.com")
		var statusErr *netutil.StatusError
		if !errors.As(err, &statusErr) {
			t.Fatalf("expected *netutil.StatusError, got %v", err)
		}
		if statusErr.StatusCode != http.StatusForbidden {
			t.Errorf("StatusCode = %d, want 403", statusErr.StatusCode)
		}
	})

	t.Run("missing token", func(t *testing.T) {
		if _, err := provider.Token(context.Background(), "empty@x.com"); err == nil {
			t.Fatal("response without access_token should fail")
		}
	})

	t.Run("empty email", func(t *testing.T) {
		if _, err := provider.Token(context.Background(), ""); err == nil {
			t.Fatal("empty email should fail")
		}
	})
}
