// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package messaging wraps the subset of the Matrix client-server API a
// chat client needs.
//
// [Client] is unauthenticated. It holds the homeserver URL and HTTP
// transport and mints [DirectSession] values from access tokens.
// [TokenProvider] exchanges a resolved email for such a token; it is
// the only place Huddle obtains chat credentials.
//
// [DirectSession] carries the access token in a secret.Buffer and
// implements [Session]: room discovery through /sync, history through
// /messages, sending through idempotent PUTs with transaction IDs,
// room creation, alias resolution, joins and invites.
//
// [RoomWatcher] follows one room's timeline through /sync long-polls.
// The chat package builds its live subscriptions on it.
//
// API errors are returned as [*MatrixError] carrying the Matrix error
// code and HTTP status; [IsMatrixError] tests for a specific code.
// Request URLs are built by string concatenation with per-segment
// escaping rather than through url.URL, which would re-encode escaped
// path segments.
package messaging
