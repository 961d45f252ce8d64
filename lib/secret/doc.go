// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package secret holds credentials and access tokens in memory that
// the garbage collector never sees.
//
// [Buffer] allocates with mmap(MAP_ANONYMOUS), locks the pages with
// mlock so they are never swapped, and marks them MADV_DONTDUMP so
// they are absent from core dumps. Close zeroes, unlocks, and unmaps.
//
// Huddle keeps two secrets per login: the identity credential handed
// to the pipeline, and the chat access token issued by the token
// provider. Both live in Buffers from the moment they are read until
// logout.
package secret
