// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package version reports build information for Huddle binaries.
//
// [GitCommit], [GitDirty] and [BuildTime] are injected at build time:
//
//	go build -ldflags "-X github.com/huddlechat/huddle/lib/version.GitCommit=$(git rev-parse --short HEAD)"
//
// Development builds and tests see "unknown" and "0.1.0-dev".
package version
