// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for Huddle packages.
//
// [RequireReceive], [RequireClosed] and [RequireNoReceive] wrap the
// select-with-timeout pattern so that tests exercising subscriptions
// and the pipeline never block forever and never call time.After
// directly.
//
// All helpers call t.Fatalf on failure.
package testutil
