// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package failure

import (
	"errors"
	"fmt"
	"io"
	"testing"
)

func TestErrorMessage(t *testing.T) {
	err := New(SendFailed, "send message", io.ErrUnexpectedEOF)
	if err.Error() != "send message: unexpected EOF" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("cause not reachable through errors.Is")
	}
}

func TestIs(t *testing.T) {
	profile := New(ProfileUnavailable, "fetch profile", errors.New("403"))
	auth := New(AuthFailed, "resolve identity", profile)
	wrapped := fmt.Errorf("pipeline: %w", auth)

	tests := []struct {
		kind Kind
		want bool
	}{
		{AuthFailed, true},
		{ProfileUnavailable, true},
		{ConnectFailed, false},
	}
	for _, test := range tests {
		t.Run(string(test.kind), func(t *testing.T) {
			if got := Is(wrapped, test.kind); got != test.want {
				t.Errorf("Is(%s) = %v, want %v", test.kind, got, test.want)
			}
		})
	}

	joined := errors.Join(errors.New("unrelated"), New(DirectoryFailed, "list users", nil))
	if !Is(joined, DirectoryFailed) {
		t.Error("Is did not find a failure inside errors.Join")
	}
}

func TestKindOf(t *testing.T) {
	auth := New(AuthFailed, "resolve identity", New(ProfileUnavailable, "fetch profile", nil))
	kind, ok := KindOf(fmt.Errorf("outer: %w", auth))
	if !ok || kind != AuthFailed {
		t.Errorf("KindOf = %q, %v; want auth_failed, true", kind, ok)
	}
	if _, ok := KindOf(errors.New("plain")); ok {
		t.Error("KindOf classified a plain error")
	}
}

func TestNotice(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"plain", errors.New("boom"), "Something went wrong"},
		{"directory", New(DirectoryFailed, "list users", errors.New("dial tcp")), "Could not load users"},
		{"innermost wins", New(AuthFailed, "resolve", New(ProfileUnavailable, "profile", nil)), "Profile request failed"},
		{"auth", fmt.Errorf("x: %w", New(AuthFailed, "userinfo", errors.New("401"))), "User info request failed"},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := Notice(test.err); got != test.want {
				t.Errorf("Notice = %q, want %q", got, test.want)
			}
		})
	}
}
