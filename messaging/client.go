// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/huddlechat/huddle/lib/clock"
	"github.com/huddlechat/huddle/lib/netutil"
	"github.com/huddlechat/huddle/lib/ref"
	"github.com/huddlechat/huddle/lib/secret"
)

// ClientConfig configures the connection to the Huddle homeserver.
type ClientConfig struct {
	// HomeserverURL is config.Homeserver.URL, e.g. "http://localhost:8008".
	HomeserverURL string
	// HTTPClient defaults to netutil.NewHTTPClient(0). It must not set a
	// whole-request timeout, since /sync long-polls hold the connection.
	HTTPClient *http.Client
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Clock stamps transaction IDs. Defaults to clock.Real().
	Clock clock.Clock
}

// Client reaches the homeserver before login. chat.Connect builds one
// per pipeline run and turns it into a DirectSession.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	clock      clock.Clock
}

// NewClient validates the homeserver URL and fills in defaults.
func NewClient(config ClientConfig) (*Client, error) {
	if config.HomeserverURL == "" {
		return nil, errors.New("messaging: homeserver URL is empty")
	}
	if _, err := url.Parse(config.HomeserverURL); err != nil {
		return nil, fmt.Errorf("messaging: parsing homeserver URL %q: %w", config.HomeserverURL, err)
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

	return &Client{
		baseURL:    strings.TrimRight(config.HomeserverURL, "/"),
		httpClient: httpClient,
		logger:     logger,
		clock:      clk,
	}, nil
}

// CloseIdleConnections drops pooled connections after a network error.
func (c *Client) CloseIdleConnections() {
	c.httpClient.CloseIdleConnections()
}

// SessionFromToken moves accessToken into a secret.Buffer, zeroing the
// caller's bytes. chat.Connect checks the token with WhoAmI afterwards.
func (c *Client) SessionFromToken(userID ref.UserID, accessToken []byte) (*DirectSession, error) {
	tokenBuffer, err := secret.NewFromBytes(accessToken)
	if err != nil {
		return nil, fmt.Errorf("messaging: protecting access token: %w", err)
	}
	return c.SessionFromBuffer(userID, tokenBuffer), nil
}

// SessionFromBuffer hands an already protected token to a new
// DirectSession, which closes it.
func (c *Client) SessionFromBuffer(userID ref.UserID, accessToken *secret.Buffer) *DirectSession {
	return &DirectSession{
		client:      c,
		accessToken: accessToken,
		userID:      userID,
	}
}

// doRequest returns the body of a 2xx reply and a *MatrixError for an
// error reply. accessToken is nil before login.
func (c *Client) doRequest(ctx context.Context, method, path string, accessToken *secret.Buffer, requestBody any, query ...url.Values) ([]byte, error) {
	requestURL := c.baseURL + path
	if len(query) > 0 && query[0] != nil {
		requestURL += "?" + query[0].Encode()
	}

	var bodyReader io.Reader
	if requestBody != nil {
		encoded, err := json.Marshal(requestBody)
		if err != nil {
			return nil, fmt.Errorf("messaging: encoding %s %s body: %w", method, path, err)
		}
		bodyReader = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, requestURL, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("messaging: building %s %s: %w", method, path, err)
	}

	if requestBody != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	if accessToken != nil {
		request.Header.Set("Authorization", "Bearer "+accessToken.String())
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("messaging: %s %s: %w", method, path, err)
	}
	defer response.Body.Close()

	responseBody, err := netutil.ReadResponse(response.Body)
	if err != nil {
		return nil, fmt.Errorf("messaging: reading %s %s reply: %w", method, path, err)
	}

	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return responseBody, nil
	}

	var matrixErr MatrixError
	if jsonErr := json.Unmarshal(responseBody, &matrixErr); jsonErr != nil || matrixErr.Code == "" {
		return nil, fmt.Errorf("messaging: homeserver answered %s %s with %d: %s",
			method, path, response.StatusCode, strings.TrimSpace(string(responseBody)))
	}
	matrixErr.StatusCode = response.StatusCode

	return nil, &matrixErr
}
