// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package chat is Huddle's chat session: one connected user on the
// Matrix homeserver, the rooms they belong to, and the single room
// whose live message stream is being followed.
//
// [Connect] exchanges a resolved identity for a chat token, validates
// it, and discovers the user's rooms with one initial /sync. The
// returned [Session] sends and fetches messages, creates rooms, and
// opens two-party direct rooms whose names are derived from both
// participants ([DirectRoomName]) so either side converges on the same
// room.
//
// Live updates go through [Subscriptions], which keeps at most one
// active room feed per session. Subscribing to a new room tears down
// the previous feed first, and a generation counter checked under lock
// keeps events from a superseded feed from reaching the listener.
//
// Errors carry a lib/failure kind and wrap this package's sentinels
// (ErrConnectFailed, ErrFetchFailed, ErrSendFailed, ErrNotConnected).
package chat
