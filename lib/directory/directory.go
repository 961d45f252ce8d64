// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package directory reads the user directory: the list of people a
// Huddle user can start a direct conversation with.
//
// The directory is a plain HTTP service, separate from the chat
// backend. GET {base}/users returns a JSON array of users. Concurrent
// callers share one in-flight request.
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/huddlechat/huddle/lib/failure"
	"github.com/huddlechat/huddle/lib/netutil"
	"github.com/huddlechat/huddle/lib/ref"
)

// ErrDirectoryFailed wraps every ListUsers failure.
var ErrDirectoryFailed = errors.New("directory: listing users failed")

// DefaultTimeout bounds a listing when Config.HTTPClient is nil.
const DefaultTimeout = 10 * time.Second

// User is one directory entry.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// DisplayName returns Name, or ID when the entry has no name.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.ID
}

// UserID maps the entry to a Matrix user ID on server. IDs that are
// already Matrix user IDs are parsed as-is. Email-shaped IDs use the
// part before the '@'. The localpart is normalized to the characters
// Matrix allows.
func (u User) UserID(server string) (ref.UserID, error) {
	if strings.HasPrefix(u.ID, "@") {
		return ref.ParseUserID(u.ID)
	}
	localpart := u.ID
	if at := strings.IndexByte(localpart, '@'); at > 0 {
		localpart = localpart[:at]
	}
	return ref.NewUserID(ref.NormalizeLocalpart(localpart), server)
}

// Config configures a Client.
type Config struct {
	// URL is the directory service base URL.
	URL string
	// HTTPClient is used for requests. If nil, a gzip-capable client
	// with DefaultTimeout is used.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Client lists directory users.
type Client struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
	group      singleflight.Group
}

// NewClient creates a directory client.
func NewClient(config Config) (*Client, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("directory: URL is required")
	}
	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = netutil.NewHTTPClient(DefaultTimeout)
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		url:        strings.TrimRight(config.URL, "/"),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// ListUsers fetches the directory. Callers arriving while a listing is
// in flight share its result (and its cancellation, which follows the
// first caller's ctx). Each caller receives its own copy of the slice.
//
// Errors are failure.DirectoryFailed and match ErrDirectoryFailed.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	value, err, shared := c.group.Do("users", func() (any, error) {
		var users []User
		err := netutil.DoJSON(ctx, c.httpClient, netutil.Request{
			Method: http.MethodGet,
			URL:    c.url + "/users",
		}, &users)
		return users, err
	})
	if err != nil {
		return nil, failure.New(failure.DirectoryFailed, "list users",
			fmt.Errorf("%w: %w", ErrDirectoryFailed, err))
	}
	users := slices.Clone(value.([]User))
	c.logger.Debug("directory listed", "users", len(users), "shared", shared)
	return users, nil
}
