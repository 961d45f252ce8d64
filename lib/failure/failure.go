// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package failure classifies the errors a chat session can report to
// its user. Every operation that can fail at a user-visible boundary
// (signing in, connecting, loading history, sending, live updates, the
// user directory) wraps its cause in an *Error carrying one Kind.
//
// Failures are terminal for the operation that produced them and never
// for the session: the caller logs the error, shows Notice(err) to the
// user, and lets the user retry the triggering action.
package failure

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by the operation that produced it.
type Kind string

const (
	// AuthFailed: the credential was rejected, expired, or the identity
	// lookup could not complete.
	AuthFailed Kind = "auth_failed"

	// ProfileUnavailable: the identity was established but the extended
	// profile (email) could not be read.
	ProfileUnavailable Kind = "profile_unavailable"

	// ConnectFailed: the chat backend could not be reached or refused
	// the session.
	ConnectFailed Kind = "connect_failed"

	// FetchFailed: message history could not be retrieved.
	FetchFailed Kind = "fetch_failed"

	// SendFailed: a message was not delivered to the backend.
	SendFailed Kind = "send_failed"

	// SubscriptionError: a room's live feed stopped.
	SubscriptionError Kind = "subscription_error"

	// DirectoryFailed: the user directory could not be loaded.
	DirectoryFailed Kind = "directory_failed"
)

// String returns the kind's identifier.
func (k Kind) String() string { return string(k) }

// notices holds the short user-facing text for each kind.
var notices = map[Kind]string{
	AuthFailed:         "User info request failed",
	ProfileUnavailable: "Profile request failed",
	ConnectFailed:      "Could not connect to chat",
	FetchFailed:        "Could not load messages",
	SendFailed:         "Message not sent",
	SubscriptionError:  "Live updates stopped for this room",
	DirectoryFailed:    "Could not load users",
}

// Error is a classified failure. Op names the operation in progress
// ("resolve identity", "send message"); Err is the cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New wraps err as a failure of the given kind.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	case e.Op != "":
		return e.Op + ": " + string(e.Kind)
	default:
		return string(e.Kind)
	}
}

// Unwrap returns the cause so errors.Is and errors.As reach it.
func (e *Error) Unwrap() error { return e.Err }

// Is matches a bare kind marker (an *Error with only Kind set), which
// is what failure.Is builds. Two full failures are never equal.
func (e *Error) Is(target error) bool {
	marker, ok := target.(*Error)
	if !ok || marker.Err != nil || marker.Op != "" {
		return false
	}
	return marker.Kind == e.Kind
}

// Is reports whether any failure in err's tree has the given kind.
// A connect that failed because of an expired token is both
// ConnectFailed and, deeper down, AuthFailed.
func Is(err error, kind Kind) bool {
	return errors.Is(err, &Error{Kind: kind})
}

// KindOf returns the kind of the outermost failure in err's chain.
func KindOf(err error) (Kind, bool) {
	var failure *Error
	if errors.As(err, &failure) {
		return failure.Kind, true
	}
	return "", false
}

// Notice returns the short text shown to the user for err. The most
// specific (innermost) failure wins, so a sign-in that failed at the
// profile step reads "Profile request failed". Unclassified errors get
// a generic notice.
func Notice(err error) string {
	if err == nil {
		return ""
	}
	var deepest *Error
	for current := err; current != nil; {
		var failure *Error
		if !errors.As(current, &failure) {
			break
		}
		deepest = failure
		current = failure.Err
	}
	if deepest == nil {
		return "Something went wrong"
	}
	if text, ok := notices[deepest.Kind]; ok {
		return text
	}
	return "Something went wrong"
}
