// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"errors"
	"fmt"

	"github.com/huddlechat/huddle/lib/failure"
)

var (
	// ErrNotConnected is returned by room operations on a session that
	// was never connected or has been closed.
	ErrNotConnected = errors.New("chat: not connected")

	// ErrConnectFailed wraps every Connect failure.
	ErrConnectFailed = errors.New("chat: connect failed")

	// ErrFetchFailed wraps every FetchMessages failure.
	ErrFetchFailed = errors.New("chat: fetch messages failed")

	// ErrSendFailed wraps every SendMessage failure.
	ErrSendFailed = errors.New("chat: send message failed")

	// ErrEmptyMessage is returned for blank message text.
	ErrEmptyMessage = errors.New("chat: message text is empty")

	// ErrRoomFailed wraps CreateRoom and OpenDirectRoom failures.
	ErrRoomFailed = errors.New("chat: room operation failed")

	// ErrSubscribeFailed wraps failures to open a room subscription and
	// the error that ends a live one.
	ErrSubscribeFailed = errors.New("chat: subscription failed")
)

// classify wraps err with a sentinel and, when kind is set, a failure
// kind for op.
func classify(kind failure.Kind, sentinel error, op string, err error) error {
	wrapped := fmt.Errorf("%w: %w", sentinel, err)
	if kind == "" {
		return fmt.Errorf("%s: %w", op, wrapped)
	}
	return failure.New(kind, op, wrapped)
}
