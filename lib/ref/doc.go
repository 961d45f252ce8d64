// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package ref provides validated, immutable value types for the Matrix
// identifiers Huddle exchanges with the homeserver: user IDs, room IDs,
// room aliases, event IDs, and event types.
//
// Identifiers arriving from the network are parsed into these types at
// the boundary (JSON decoding uses encoding.TextUnmarshaler), so code
// past the boundary never handles an unvalidated string. The zero value
// of every struct type means "unset"; check with IsZero.
package ref
