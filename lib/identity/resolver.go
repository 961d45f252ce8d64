// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/huddlechat/huddle/lib/clock"
	"github.com/huddlechat/huddle/lib/failure"
	"github.com/huddlechat/huddle/lib/netutil"
	"github.com/huddlechat/huddle/lib/secret"
)

var (
	// ErrInvalidCredential means the credential is expired or was
	// refused by the identity provider.
	ErrInvalidCredential = errors.New("identity: invalid credential")

	// ErrProfileUnavailable means the user's profile could not be read
	// or carries no email.
	ErrProfileUnavailable = errors.New("identity: profile unavailable")
)

// Identity is the resolved user. Email is never empty.
type Identity struct {
	ID    string
	Email string
}

// Config configures a Resolver.
type Config struct {
	// IssuerURL is the identity provider base URL; userinfo is served
	// at {IssuerURL}/userinfo.
	IssuerURL string
	// ManagementURL is the management API base URL; user records are
	// served at {ManagementURL}/api/v2/users/{id}.
	ManagementURL string
	// HTTPClient is used for requests. If nil, netutil.NewHTTPClient(0) is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Clock is used for the expiry precheck. If nil, clock.Real() is used.
	Clock clock.Clock
}

// Resolver resolves credentials to identities. It holds no per-user
// state and is safe for concurrent use.
type Resolver struct {
	issuerURL     string
	managementURL string
	httpClient    *http.Client
	logger        *slog.Logger
	clock         clock.Clock
}

type userInfoResponse struct {
	Subject string `json:"sub"`
	Email   string `json:"email,omitempty"`
	Name    string `json:"name,omitempty"`
}

type profileResponse struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	Name   string `json:"name,omitempty"`
}

// NewResolver creates a Resolver.
func NewResolver(config Config) (*Resolver, error) {
	if config.IssuerURL == "" {
		return nil, fmt.Errorf("identity: IssuerURL is required")
	}
	if config.ManagementURL == "" {
		return nil, fmt.Errorf("identity: ManagementURL is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = netutil.NewHTTPClient(0)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Resolver{
		issuerURL:     strings.TrimRight(config.IssuerURL, "/"),
		managementURL: strings.TrimRight(config.ManagementURL, "/"),
		httpClient:    httpClient,
		logger:        logger,
		clock:         clk,
	}, nil
}

// Resolve looks up the identity behind credential. It returns an
// Identity with a non-empty email, or an error; never both.
// The credential buffer is read but not closed.
func (r *Resolver) Resolve(ctx context.Context, credential *secret.Buffer) (Identity, error) {
	if credential == nil || credential.Closed() || credential.Len() == 0 {
		return Identity{}, failure.New(failure.AuthFailed, "resolve identity",
			fmt.Errorf("%w: empty credential", ErrInvalidCredential))
	}
	token := credential.String()

	if err := r.checkExpiry(token); err != nil {
		return Identity{}, failure.New(failure.AuthFailed, "resolve identity", err)
	}

	var userInfo userInfoResponse
	err := netutil.DoJSON(ctx, r.httpClient, netutil.Request{
		Method: http.MethodGet,
		URL:    r.issuerURL + "/userinfo",
		Bearer: token,
	}, &userInfo)
	if err != nil {
		var statusErr *netutil.StatusError
		if errors.As(err, &statusErr) &&
			(statusErr.StatusCode == http.StatusUnauthorized || statusErr.StatusCode == http.StatusForbidden) {
			err = fmt.Errorf("%w: %w", ErrInvalidCredential, err)
		}
		return Identity{}, failure.New(failure.AuthFailed, "user info request", err)
	}
	if userInfo.Subject == "" {
		return Identity{}, failure.New(failure.AuthFailed, "user info request",
			fmt.Errorf("identity: userinfo response has no subject"))
	}

	var profile profileResponse
	err = netutil.DoJSON(ctx, r.httpClient, netutil.Request{
		Method: http.MethodGet,
		URL:    r.managementURL + "/api/v2/users/" + url.PathEscape(userInfo.Subject),
		Bearer: token,
	}, &profile)
	if err != nil {
		return Identity{}, failure.New(failure.ProfileUnavailable, "profile request",
			fmt.Errorf("%w: %w", ErrProfileUnavailable, err))
	}
	if profile.Email == "" {
		return Identity{}, failure.New(failure.ProfileUnavailable, "profile request",
			fmt.Errorf("%w: profile for %s has no email", ErrProfileUnavailable, userInfo.Subject))
	}

	r.logger.Info("identity resolved", "user_id", userInfo.Subject)
	return Identity{ID: userInfo.Subject, Email: profile.Email}, nil
}

// checkExpiry rejects a JWT credential whose exp claim has passed.
// Credentials that do not parse as JWTs are opaque and pass; the
// signature is the provider's to verify.
func (r *Resolver) checkExpiry(token string) error {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return nil
	}
	if claims.ExpiresAt == nil {
		return nil
	}
	if !r.clock.Now().Before(claims.ExpiresAt.Time) {
		return fmt.Errorf("%w: token expired at %s", ErrInvalidCredential,
			claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
	}
	return nil
}
