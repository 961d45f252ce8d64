// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package session holds the signed-in state of one client: the resolved
// identity, the connected chat session, and what to run on logout.
//
// A Context is owned by the connection pipeline for its lifetime and
// read by the command. Every accessor is safe for concurrent use.
package session

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/huddlechat/huddle/lib/identity"
)

// Chat is the part of a chat session the Context manages.
// *chat.Session implements it.
type Chat interface {
	Close() error
}

// LogoutHook runs during Teardown after the chat session is closed.
type LogoutHook func() error

// Context is the process-wide signed-in state.
type Context struct {
	logger *slog.Logger

	mu          sync.Mutex
	identity    identity.Identity
	hasIdentity bool
	chat        Chat
	logoutHook  LogoutHook
}

// New creates an empty Context. A nil logger uses slog.Default().
func New(logger *slog.Logger) *Context {
	if logger == nil {
		logger = slog.Default()
	}
	return &Context{logger: logger}
}

// SetIdentity publishes the resolved identity.
func (c *Context) SetIdentity(user identity.Identity) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = user
	c.hasIdentity = true
}

// ClearIdentity withdraws the published identity.
func (c *Context) ClearIdentity() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.identity = identity.Identity{}
	c.hasIdentity = false
}

// Identity returns the published identity, if any.
func (c *Context) Identity() (identity.Identity, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity, c.hasIdentity
}

// Install makes chat the current session and returns the one it
// replaced, which the caller must close. Installing the session that
// is already current returns nil.
func (c *Context) Install(chat Chat) Chat {
	c.mu.Lock()
	defer c.mu.Unlock()
	previous := c.chat
	c.chat = chat
	if previous == chat {
		return nil
	}
	return previous
}

// Chat returns the current chat session, or nil.
func (c *Context) Chat() Chat {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chat
}

// SetLogoutHook replaces the hook Teardown runs.
func (c *Context) SetLogoutHook(hook LogoutHook) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logoutHook = hook
}

// Teardown closes the chat session, runs the logout hook, and clears
// the identity. Calling it on an empty Context does nothing.
func (c *Context) Teardown() error {
	c.mu.Lock()
	chat := c.chat
	hook := c.logoutHook
	user, hadIdentity := c.identity, c.hasIdentity
	c.chat = nil
	c.logoutHook = nil
	c.identity = identity.Identity{}
	c.hasIdentity = false
	c.mu.Unlock()

	var errs []error
	if chat != nil {
		if err := chat.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if hook != nil {
		if err := hook(); err != nil {
			errs = append(errs, err)
		}
	}
	if hadIdentity {
		c.logger.Info("session torn down", "user_id", user.ID)
	}
	return errors.Join(errs...)
}
