// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package view projects chat and directory data into what the terminal
// client shows: the room list, the message list of the open room, and
// the user list. Projections do no I/O and are not safe for concurrent
// use; the command owns them on one goroutine and feeds them
// subscription events through a channel.
//
// render.go turns projection items into styled terminal lines. Text
// from the network is stripped of escape sequences before it is
// styled, so a remote message cannot drive the terminal.
package view
