// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package messagingtest provides an in-memory Matrix homeserver for
// tests of code built on the messaging package.
//
// [Homeserver] implements the endpoints Huddle uses: /sync with
// long-polling and inline room filters, /messages, send, createRoom,
// the alias directory, join, whoami and logout. It
// also serves the chat token provider at /token so a single server
// covers the whole connect path. Faults can be queued per endpoint to
// exercise error handling, including dropped connections and requests
// that stall until the client gives up.
package messagingtest
