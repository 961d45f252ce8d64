// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/muesli/termenv"

	"github.com/huddlechat/huddle/chat"
	"github.com/huddlechat/huddle/lib/directory"
	"github.com/huddlechat/huddle/lib/failure"
	"github.com/huddlechat/huddle/lib/identity"
	"github.com/huddlechat/huddle/lib/ref"
	"github.com/huddlechat/huddle/messaging/messagingtest"
	"github.com/huddlechat/huddle/pipeline"
	"github.com/huddlechat/huddle/view"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want command
	}{
		{"hello there", command{arg: "hello there"}},
		{"/rooms", command{name: "rooms"}},
		{"  /JOIN  General  ", command{name: "join", arg: "General"}},
		{"/history 20", command{name: "history", arg: "20"}},
		{"//shrug", command{arg: "/shrug"}},
		{"", command{}},
	}
	for _, tt := range tests {
		if got := parseLine(tt.line); got != tt.want {
			t.Errorf("parseLine(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

type replFixture struct {
	homeserver *messagingtest.Homeserver
	session    *chat.Session
	output     *bytes.Buffer
	inbox      *inbox
	loggedOut  int
}

func newReplFixture(t *testing.T) *replFixture {
	t.Helper()
	homeserver := messagingtest.New(t, "local")
	u1 := homeserver.AddUser("u1", "a@x.com", "tok-u1")
	u2 := homeserver.AddUser("u2", "b@x.com", "tok-u2")
	general := homeserver.AddRoom("r1", "General", true, u1, u2)
	homeserver.Post(general, u2, "earlier")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	session, err := chat.Connect(ctx, chat.Config{
		HomeserverURL:    homeserver.URL(),
		TokenProviderURL: homeserver.TokenURL(),
		LongPollTimeout:  500 * time.Millisecond,
	}, identity.Identity{ID: "a@x.com", Email: "a@x.com"})
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { session.Close() })

	return &replFixture{
		homeserver: homeserver,
		session:    session,
		output:     &bytes.Buffer{},
		inbox:      newInbox(),
	}
}

func (f *replFixture) client(result *pipeline.Result) *client {
	return newClient(clientConfig{
		output:   f.output,
		renderer: view.NewRenderer(f.output, termenv.Ascii, 0, view.DefaultTheme),
		result:   result,
		inbox:    f.inbox,
		logout: func(context.Context) error {
			f.loggedOut++
			return f.session.Close()
		},
	})
}

func (f *replFixture) result(users []directory.User, notices ...error) *pipeline.Result {
	return &pipeline.Result{
		Identity: identity.Identity{ID: "a@x.com", Email: "a@x.com"},
		Session:  f.session,
		Rooms:    f.session.Rooms(),
		Users:    users,
		Notices:  notices,
	}
}

func runScript(t *testing.T, c *client, script string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := c.run(ctx, strings.NewReader(script)); err != nil {
		t.Fatalf("run failed: %v", err)
	}
}

func TestClientCommands(t *testing.T) {
	fixture := newReplFixture(t)
	users := []directory.User{
		{ID: "a@x.com", Name: "Me", Email: "a@x.com"},
		{ID: "u2", Name: "Bob", Email: "b@x.com"},
	}
	c := fixture.client(fixture.result(users))

	runScript(t, c, strings.Join([]string{
		"/rooms",
		"/join General",
		"hello",
		"/users",
		"/dm Bob",
		"/rooms",
		"/nope",
		"/quit",
		"not sent",
	}, "\n")+"\n")

	output := fixture.output.String()
	for _, want := range []string{
		"signed in as @u1:local",
		"#General",
		"u2: earlier",
		"Bob <b@x.com>",
		"@u2",
		"unknown command /nope",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
	if strings.Contains(output, "Me <a@x.com>") {
		t.Errorf("user list includes the signed-in user:\n%s", output)
	}

	generalRoom, _ := fixture.session.RoomByName("General")
	general := generalRoom.ID
	var bodies []string
	for _, event := range fixture.homeserver.Messages(general) {
		bodies = append(bodies, event.ContentString("body"))
	}
	if strings.Join(bodies, ",") != "earlier,hello" {
		t.Errorf("General timeline = %v, want earlier,hello", bodies)
	}
	if count := fixture.homeserver.RoomCount(); count != 2 {
		t.Errorf("RoomCount = %d, want 2 after /dm", count)
	}
	if _, ok := fixture.session.RoomByName("u1_u2"); !ok {
		t.Error("direct room u1_u2 missing from the session snapshot")
	}
}

func TestClientWithoutRoom(t *testing.T) {
	fixture := newReplFixture(t)
	directoryDown := failure.New(failure.DirectoryFailed, "list users", errors.New("connection refused"))
	c := fixture.client(fixture.result(nil, directoryDown))

	runScript(t, c, "hello\n/history\n/join Nowhere\n/history abc\n/users\n")

	output := fixture.output.String()
	for _, want := range []string{
		"no room selected",
		"no joined room matches \"Nowhere\"",
		"usage: /history [n]",
		failure.Notice(directoryDown),
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
	general := fixture.session.Rooms()[0].ID
	if n := len(fixture.homeserver.Messages(general)); n != 1 {
		t.Errorf("General has %d messages, want only the seeded one", n)
	}
}

func TestClientDefaultRoomAndEvents(t *testing.T) {
	fixture := newReplFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	general, _ := fixture.session.RoomByName("General")
	subscription, err := fixture.session.Subscribe(ctx, general.ID, 0, fixture.inbox.deliver)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	result := fixture.result(nil)
	result.DefaultRoom = &general
	result.Subscription = subscription
	result.History = []chat.Message{{ID: mustEventID(t, fixture, general), RoomID: general.ID, SenderID: general.MemberIDs[1], Text: "earlier"}}
	c := fixture.client(result)

	if c.messages.RoomID() != general.ID || c.messages.Generation() != subscription.Generation() {
		t.Fatalf("message list = %s/%d, want %s/%d",
			c.messages.RoomID(), c.messages.Generation(), general.ID, subscription.Generation())
	}

	stale := chat.Event{Kind: chat.NewMessage, RoomID: general.ID, Generation: subscription.Generation() + 1,
		Message: chat.Message{RoomID: general.ID, Text: "stale"}}
	c.handleEvent(stale)
	live := chat.Event{Kind: chat.SubscriptionError, RoomID: general.ID, Generation: subscription.Generation(),
		Err: failure.New(failure.SubscriptionError, "live updates", errors.New("gone"))}
	c.handleEvent(live)

	output := fixture.output.String()
	if strings.Contains(output, "stale") {
		t.Errorf("event from another generation was shown:\n%s", output)
	}
	if !strings.Contains(output, "live updates stopped") {
		t.Errorf("subscription error notice missing:\n%s", output)
	}
}

func TestClientLogout(t *testing.T) {
	fixture := newReplFixture(t)
	c := fixture.client(fixture.result(nil))

	runScript(t, c, "/logout\n/rooms\n")

	if fixture.loggedOut != 1 {
		t.Errorf("logout called %d times, want 1", fixture.loggedOut)
	}
	if fixture.session.Connected() {
		t.Error("session still connected after /logout")
	}
	if !strings.Contains(fixture.output.String(), "signed out") {
		t.Errorf("output missing sign-out notice:\n%s", fixture.output.String())
	}
}

func mustEventID(t *testing.T, fixture *replFixture, room chat.Room) ref.EventID {
	t.Helper()
	messages := fixture.homeserver.Messages(room.ID)
	if len(messages) == 0 {
		t.Fatal("room has no seeded message")
	}
	return messages[0].EventID
}

func TestInboxKeepsOrderWithoutBlocking(t *testing.T) {
	b := newInbox()
	for i := range 1000 {
		b.deliver(chat.Event{Generation: uint64(i)})
	}
	select {
	case <-b.Ready():
	default:
		t.Fatal("Ready not signalled after deliver")
	}
	events := b.drain()
	if len(events) != 1000 {
		t.Fatalf("drain returned %d events, want 1000", len(events))
	}
	for i, event := range events {
		if event.Generation != uint64(i) {
			t.Fatalf("events[%d].Generation = %d, want %d", i, event.Generation, i)
		}
	}
	if rest := b.drain(); len(rest) != 0 {
		t.Errorf("second drain returned %d events, want 0", len(rest))
	}
}
