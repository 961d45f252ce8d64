// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"errors"
	"sync"
	"testing"

	"github.com/huddlechat/huddle/lib/identity"
)

type fakeChat struct {
	closes int
	err    error
}

func (f *fakeChat) Close() error {
	f.closes++
	return f.err
}

func TestIdentity(t *testing.T) {
	ctx := New(nil)
	if _, ok := ctx.Identity(); ok {
		t.Fatal("new Context has an identity")
	}
	user := identity.Identity{ID: "u1", Email: "a@x.com"}
	ctx.SetIdentity(user)
	got, ok := ctx.Identity()
	if !ok || got != user {
		t.Fatalf("Identity = %+v, %v, want %+v", got, ok, user)
	}
	ctx.ClearIdentity()
	if got, ok := ctx.Identity(); ok {
		t.Errorf("Identity after ClearIdentity = %+v", got)
	}
}

func TestInstall(t *testing.T) {
	ctx := New(nil)
	first := &fakeChat{}
	second := &fakeChat{}

	if previous := ctx.Install(first); previous != nil {
		t.Fatalf("Install on empty Context returned %v", previous)
	}
	if ctx.Chat() != first {
		t.Fatal("Chat does not return the installed session")
	}
	if previous := ctx.Install(first); previous != nil {
		t.Fatal("reinstalling the current session returned it for closing")
	}
	if previous := ctx.Install(second); previous != first {
		t.Fatalf("Install returned %v, want the replaced session", previous)
	}
	if first.closes != 0 {
		t.Error("Install closed the replaced session itself")
	}
}

func TestTeardown(t *testing.T) {
	ctx := New(nil)
	chat := &fakeChat{}
	hookCalls := 0
	ctx.SetIdentity(identity.Identity{ID: "u1", Email: "a@x.com"})
	ctx.Install(chat)
	ctx.SetLogoutHook(func() error {
		hookCalls++
		if chat.closes != 1 {
			t.Error("logout hook ran before the chat session closed")
		}
		return nil
	})

	if err := ctx.Teardown(); err != nil {
		t.Fatalf("Teardown failed: %v", err)
	}
	if err := ctx.Teardown(); err != nil {
		t.Fatalf("second Teardown failed: %v", err)
	}
	if chat.closes != 1 || hookCalls != 1 {
		t.Errorf("closes=%d hookCalls=%d, want 1 and 1", chat.closes, hookCalls)
	}
	if _, ok := ctx.Identity(); ok {
		t.Error("identity survived Teardown")
	}
	if ctx.Chat() != nil {
		t.Error("chat session survived Teardown")
	}
}

func TestTeardownJoinsErrors(t *testing.T) {
	closeErr := errors.New("close failed")
	hookErr := errors.New("hook failed")
	ctx := New(nil)
	ctx.Install(&fakeChat{err: closeErr})
	ctx.SetLogoutHook(func() error { return hookErr })

	err := ctx.Teardown()
	if !errors.Is(err, closeErr) || !errors.Is(err, hookErr) {
		t.Fatalf("Teardown error = %v, want both failures", err)
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := New(nil)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx.SetIdentity(identity.Identity{ID: "u", Email: "a@x.com"})
			ctx.Install(&fakeChat{})
			ctx.Identity()
			if i%2 == 0 {
				ctx.Teardown()
			}
		}()
	}
	wg.Wait()
}
