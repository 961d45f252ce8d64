// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/huddlechat/huddle/lib/netutil"
	"github.com/huddlechat/huddle/lib/ref"
	"github.com/huddlechat/huddle/lib/secret"
)

// TokenProviderConfig configures a TokenProvider.
type TokenProviderConfig struct {
	// URL is the token endpoint.
	URL string
	// HTTPClient is used for requests. If nil, netutil.NewHTTPClient(0) is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// TokenProvider exchanges a user's verified email for a chat access
// token. The endpoint sits in front of the homeserver and owns the
// mapping from identity-provider accounts to Matrix accounts.
//
// Request: POST {URL} with form body
// grant_type=client_credentials&user_id=<email>.
// Response: {"access_token", "user_id", "expires_in"}.
type TokenProvider struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// ChatToken is an issued chat credential. The caller owns AccessToken
// and must close it, or hand it to Client.SessionFromBuffer.
type ChatToken struct {
	UserID      ref.UserID
	AccessToken *secret.Buffer
	ExpiresIn   time.Duration
}

type tokenResponse struct {
	AccessToken string     `json:"access_token"`
	UserID      ref.UserID `json:"user_id"`
	ExpiresIn   int64      `json:"expires_in"`
}

// NewTokenProvider creates a TokenProvider.
func NewTokenProvider(config TokenProviderConfig) (*TokenProvider, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("messaging: token provider URL is required")
	}
	if _, err := url.Parse(config.URL); err != nil {
		return nil, fmt.Errorf("messaging: invalid token provider URL %q: %w", config.URL, err)
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = netutil.NewHTTPClient(0)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &TokenProvider{url: config.URL, httpClient: httpClient, logger: logger}, nil
}

// Token requests a chat access token for email.
func (p *TokenProvider) Token(ctx context.Context, email string) (*ChatToken, error) {
	if email == "" {
		return nil, fmt.Errorf("messaging: token request requires an email")
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("user_id", email)

	var response tokenResponse
	err := netutil.DoJSON(ctx, p.httpClient, netutil.Request{
		Method: http.MethodPost,
		URL:    p.url,
		Form:   form.Encode(),
	}, &response)
	if err != nil {
		return nil, fmt.Errorf("messaging: token request failed: %w", err)
	}

	if response.AccessToken == "" {
		return nil, fmt.Errorf("messaging: token response has no access_token")
	}
	if response.UserID.IsZero() {
		return nil, fmt.Errorf("messaging: token response has no user_id")
	}

	tokenBuffer, err := secret.NewFromBytes([]byte(response.AccessToken))
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}

	p.logger.Debug("chat token issued",
		"user_id", response.UserID,
		"expires_in", response.ExpiresIn,
	)

	return &ChatToken{
		UserID:      response.UserID,
		AccessToken: tokenBuffer,
		ExpiresIn:   time.Duration(response.ExpiresIn) * time.Second,
	}, nil
}
