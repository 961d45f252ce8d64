// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable source of the current time.
//
// Code that compares against wall time (credential expiry, stage
// durations, transaction IDs) holds a Clock instead of calling
// time.Now. Production wires Real(); tests wire Fake() and move time
// explicitly with Advance or Set.
package clock
