// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/huddlechat/huddle/lib/clock"
	"github.com/huddlechat/huddle/lib/failure"
	"github.com/huddlechat/huddle/lib/secret"
)

// identityProvider is a fake issuer and management API. Tokens map to
// subjects; subjects map to emails.
type identityProvider struct {
	subjects      map[string]string
	emails        map[string]string
	userInfoCode  int
	profileCode   int
	userInfoCalls atomic.Int32
	profileCalls  atomic.Int32
}

func (p *identityProvider) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /userinfo", func(writer http.ResponseWriter, request *http.Request) {
		p.userInfoCalls.Add(1)
		if p.userInfoCode != 0 {
			writer.WriteHeader(p.userInfoCode)
			return
		}
		token := request.Header.Get("Authorization")[len("Bearer "):]
		subject, ok := p.subjects[token]
		if !ok {
			writer.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(writer).Encode(map[string]string{"sub": subject})
	})
	mux.HandleFunc("GET /api/v2/users/{id}", func(writer http.ResponseWriter, request *http.Request) {
		p.profileCalls.Add(1)
		if p.profileCode != 0 {
			writer.WriteHeader(p.profileCode)
			return
		}
		id := request.PathValue("id")
		email, ok := p.emails[id]
		if !ok {
			writer.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(writer).Encode(map[string]string{"user_id": id, "email": email})
	})
	return mux
}

func newTestResolver(t *testing.T, provider *identityProvider, clk clock.Clock) *Resolver {
	t.Helper()
	server := httptest.NewServer(provider.handler(t))
	t.Cleanup(server.Close)
	resolver, err := NewResolver(Config{
		IssuerURL:     server.URL,
		ManagementURL: server.URL + "/",
		Clock:         clk,
	})
	if err != nil {
		t.Fatalf("NewResolver failed: %v", err)
	}
	return resolver
}

func credential(t *testing.T, token string) *secret.Buffer {
	t.Helper()
	buffer, err := secret.NewFromBytes([]byte(token))
	if err != nil {
		t.Fatalf("NewFromBytes failed: %v", err)
	}
	t.Cleanup(func() { buffer.Close() })
	return buffer
}

func signedToken(t *testing.T, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u1",
		ExpiresAt: jwt.NewNumericDate(expires),
	})
	signed, err := token.SignedString([]byte("test-key"))
	if err != nil {
		t.Fatalf("SignedString failed: %v", err)
	}
	return signed
}

func TestResolve(t *testing.T) {
	provider := &identityProvider{
		subjects: map[string]string{"tok123": "u1"},
		emails:   map[string]string{"u1": "a@x.com"},
	}
	resolver := newTestResolver(t, provider, nil)

	identity, err := resolver.Resolve(context.Background(), credential(t, "tok123"))
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if identity.ID != "u1" || identity.Email != "a@x.com" {
		t.Errorf("identity = %+v, want {u1 a@x.com}", identity)
	}
}

func TestResolveFailures(t *testing.T) {
	tests := []struct {
		name         string
		provider     *identityProvider
		token        string
		wantKind     failure.Kind
		wantSentinel error
		wantNotice   string
	}{
		{
			name:         "credential refused",
			provider:     &identityProvider{subjects: map[string]string{}},
			token:        "unknown",
			wantKind:     failure.AuthFailed,
			wantSentinel: ErrInvalidCredential,
			wantNotice:   "User info request failed",
		},
		{
			name:         "userinfo forbidden",
			provider:     &identityProvider{userInfoCode: http.StatusForbidden},
			token:        "tok123",
			wantKind:     failure.AuthFailed,
			wantSentinel: ErrInvalidCredential,
			wantNotice:   "User info request failed",
		},
		{
			name:       "userinfo server error",
			provider:   &identityProvider{userInfoCode: http.StatusInternalServerError},
			token:      "tok123",
			wantKind:   failure.AuthFailed,
			wantNotice: "User info request failed",
		},
		{
			name: "profile missing",
			provider: &identityProvider{
				subjects: map[string]string{"tok123": "u1"},
				emails:   map[string]string{},
			},
			token:        "tok123",
			wantKind:     failure.ProfileUnavailable,
			wantSentinel: ErrProfileUnavailable,
			wantNotice:   "Profile request failed",
		},
		{
			name: "profile forbidden",
			provider: &identityProvider{
				subjects:    map[string]string{"tok123": "u1"},
				profileCode: http.StatusForbidden,
			},
			token:        "tok123",
			wantKind:     failure.ProfileUnavailable,
			wantSentinel: ErrProfileUnavailable,
			wantNotice:   "Profile request failed",
		},
		{
			name: "profile without email",
			provider: &identityProvider{
				subjects: map[string]string{"tok123": "u1"},
				emails:   map[string]string{"u1": ""},
			},
			token:        "tok123",
			wantKind:     failure.ProfileUnavailable,
			wantSentinel: ErrProfileUnavailable,
			wantNotice:   "Profile request failed",
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			resolver := newTestResolver(t, test.provider, nil)
			identity, err := resolver.Resolve(context.Background(), credential(t, test.token))
			if err == nil {
				t.Fatalf("Resolve should fail, got %+v", identity)
			}
			if identity != (Identity{}) {
				t.Errorf("failed Resolve returned a non-zero identity: %+v", identity)
			}
			if kind, _ := failure.KindOf(err); kind != test.wantKind {
				t.Errorf("kind = %q, want %q (err: %v)", kind, test.wantKind, err)
			}
			if test.wantSentinel != nil && !errors.Is(err, test.wantSentinel) {
				t.Errorf("errors.Is(err, %v) = false (err: %v)", test.wantSentinel, err)
			}
			if test.wantSentinel == nil && errors.Is(err, ErrInvalidCredential) {
				t.Errorf("server error should not read as an invalid credential: %v", err)
			}
			if notice := failure.Notice(err); notice != test.wantNotice {
				t.Errorf("Notice = %q, want %q", notice, test.wantNotice)
			}
		})
	}
}

func TestResolveExpiryPrecheck(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("expired token makes no calls", func(t *testing.T) {
		provider := &identityProvider{}
		resolver := newTestResolver(t, provider, clock.Fake(now))

		_, err := resolver.Resolve(context.Background(), credential(t, signedToken(t, now.Add(-time.Minute))))
		if !errors.Is(err, ErrInvalidCredential) {
			t.Fatalf("expected ErrInvalidCredential, got %v", err)
		}
		if !failure.Is(err, failure.AuthFailed) {
			t.Errorf("expected AuthFailed, got %v", err)
		}
		if calls := provider.userInfoCalls.Load(); calls != 0 {
			t.Errorf("userinfo called %d times, want 0", calls)
		}
	})

	t.Run("valid token is resolved", func(t *testing.T) {
		token := signedToken(t, now.Add(time.Hour))
		provider := &identityProvider{
			subjects: map[string]string{token: "u1"},
			emails:   map[string]string{"u1": "a@x.com"},
		}
		resolver := newTestResolver(t, provider, clock.Fake(now))

		identity, err := resolver.Resolve(context.Background(), credential(t, token))
		if err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
		if identity.Email != "a@x.com" {
			t.Errorf("Email = %q", identity.Email)
		}
	})
}

func TestResolveClosedCredential(t *testing.T) {
	provider := &identityProvider{}
	resolver := newTestResolver(t, provider, nil)

	buffer := credential(t, "tok123")
	buffer.Close()
	if _, err := resolver.Resolve(context.Background(), buffer); !errors.Is(err, ErrInvalidCredential) {
		t.Fatalf("expected ErrInvalidCredential, got %v", err)
	}
	if calls := provider.userInfoCalls.Load(); calls != 0 {
		t.Errorf("userinfo called %d times, want 0", calls)
	}
}

func TestNewResolverRequiresURLs(t *testing.T) {
	if _, err := NewResolver(Config{IssuerURL: "http://issuer"}); err == nil {
		t.Error("missing ManagementURL should fail")
	}
	if _, err := NewResolver(Config{ManagementURL: "http://mgmt"}); err == nil {
		t.Error("missing IssuerURL should fail")
	}
}
