// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package view

import (
	"errors"
	"io"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/huddlechat/huddle/chat"
	"github.com/huddlechat/huddle/lib/directory"
	"github.com/huddlechat/huddle/lib/failure"
	"github.com/huddlechat/huddle/lib/ref"
)

var (
	u1      = ref.MustParseUserID("@u1:local")
	u2      = ref.MustParseUserID("@u2:local")
	u3      = ref.MustParseUserID("@u3:local")
	general = ref.MustParseRoomID("!r1:local")
	random  = ref.MustParseRoomID("!r2:local")
)

func message(id string, roomID ref.RoomID, sender ref.UserID, text string) chat.Message {
	return chat.Message{
		ID:        ref.MustParseEventID(id),
		RoomID:    roomID,
		SenderID:  sender,
		Text:      text,
		Timestamp: time.Date(2026, 1, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestRoomList(t *testing.T) {
	list := NewRoomList(u1)
	list.Set([]chat.Room{
		{ID: general, Name: "General", MemberIDs: []ref.UserID{u1, u2, u3}},
		{ID: ref.MustParseRoomID("!dm:local"), Name: "u2_u1", Private: true, MemberIDs: []ref.UserID{u1, u2}},
		{ID: ref.MustParseRoomID("!team:local"), Name: "Team", Private: true, MemberIDs: []ref.UserID{u1, u2}},
	})

	items := list.Items()
	want := []RoomItem{
		{ID: general, Label: "General"},
		{ID: ref.MustParseRoomID("!dm:local"), Label: "@u2", Private: true, Direct: true},
		{ID: ref.MustParseRoomID("!team:local"), Label: "Team", Private: true},
	}
	if !slices.Equal(items, want) {
		t.Errorf("Items = %+v, want %+v", items, want)
	}
}

func TestMessageList(t *testing.T) {
	list := NewMessageList()
	list.Reset(general, 3)

	added := list.Append(
		message("$e1", general, u2, "one"),
		message("$e2", random, u2, "other room"),
		message("$e1", general, u2, "duplicate"),
	)
	if added != 1 {
		t.Errorf("Append added %d, want 1", added)
	}

	t.Run("apply current generation", func(t *testing.T) {
		applied := list.Apply(chat.Event{Kind: chat.NewMessage, RoomID: general, Generation: 3, Message: message("$e3", general, u1, "two")})
		if !applied {
			t.Error("Apply rejected an event for the shown room")
		}
	})

	t.Run("superseded generation is ignored", func(t *testing.T) {
		if list.Apply(chat.Event{Kind: chat.NewMessage, RoomID: general, Generation: 2, Message: message("$e4", general, u1, "stale")}) {
			t.Error("Apply accepted an event from an old generation")
		}
		if list.Apply(chat.Event{Kind: chat.NewMessage, RoomID: random, Generation: 3, Message: message("$e5", random, u1, "elsewhere")}) {
			t.Error("Apply accepted an event for another room")
		}
	})

	t.Run("replayed event is deduplicated", func(t *testing.T) {
		list.Apply(chat.Event{Kind: chat.NewMessage, RoomID: general, Generation: 3, Message: message("$e1", general, u2, "one")})
	})

	var texts []string
	for _, item := range list.Items() {
		texts = append(texts, item.Text)
	}
	if want := []string{"one", "two"}; !slices.Equal(texts, want) {
		t.Errorf("Items = %v, want %v", texts, want)
	}

	t.Run("subscription error sets notice", func(t *testing.T) {
		list.Apply(chat.Event{
			Kind:       chat.SubscriptionError,
			RoomID:     general,
			Generation: 3,
			Err:        failure.New(failure.SubscriptionError, "live updates", errors.New("gone")),
		})
		if list.Notice() != "Live updates stopped for this room" {
			t.Errorf("Notice = %q", list.Notice())
		}
	})

	list.Reset(random, 4)
	if len(list.Items()) != 0 || list.Notice() != "" {
		t.Error("Reset did not clear the list")
	}
	if list.Append(message("$e1", random, u2, "same ID, new room")) != 1 {
		t.Error("dedup state survived Reset")
	}
}

func TestMessageListMergesWiderHistory(t *testing.T) {
	at := func(id string, minute int) chat.Message {
		m := message(id, general, u2, id)
		m.Timestamp = time.Date(2026, 1, 1, 9, minute, 0, 0, time.UTC)
		return m
	}
	list := NewMessageList()
	list.Reset(general, 1)
	list.Append(at("$b", 2), at("$c", 3))
	list.Apply(chat.Event{Kind: chat.NewMessage, RoomID: general, Generation: 1, Message: at("$d", 4)})

	// A later /history with a larger limit returns the older window again.
	if added := list.Append(at("$a", 1), at("$b", 2), at("$c", 3)); added != 1 {
		t.Errorf("Append added %d, want 1", added)
	}
	// Same timestamp as $d: arrival order decides.
	list.Append(at("$e", 4))

	var ids []string
	for _, item := range list.Items() {
		ids = append(ids, item.ID.String())
	}
	if want := []string{"$a", "$b", "$c", "$d", "$e"}; !slices.Equal(ids, want) {
		t.Errorf("Items = %v, want %v", ids, want)
	}
}

func TestUserList(t *testing.T) {
	list := NewUserList("u1", "a@x.com")
	list.Set([]directory.User{
		{ID: "u1", Name: "Ada", Email: "a@x.com"},
		{ID: "u2", Name: "Grace", Email: "b@x.com"},
		{ID: "legacy", Email: "a@x.com"},
	})
	items := list.Items()
	if len(items) != 1 || items[0].ID != "u2" {
		t.Errorf("Items = %+v, want only u2", items)
	}
	if user, ok := list.Find("Grace"); !ok || user.ID != "u2" {
		t.Errorf("Find(Grace) = %+v, %v", user, ok)
	}
	if _, ok := list.Find("Ada"); ok {
		t.Error("Find returned the signed-in user")
	}

	list.SetError(failure.New(failure.DirectoryFailed, "list users", errors.New("connection refused")))
	if len(list.Items()) != 0 {
		t.Error("SetError left users in the list")
	}
	if list.Notice() != "Could not load users" {
		t.Errorf("Notice = %q", list.Notice())
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"plain", "plain"},
		{"\x1b[31mred\x1b[0m", "red"},
		{"\x1b]0;pwned\x07title", "title"},
		{"two\nlines\r", "two lines "},
		{"bell\x07", "bell "},
	}
	for _, test := range tests {
		if got := Sanitize(test.input); got != test.want {
			t.Errorf("Sanitize(%q) = %q, want %q", test.input, got, test.want)
		}
	}
}

func TestRenderer(t *testing.T) {
	renderer := NewRenderer(io.Discard, termenv.ANSI256, 0, DefaultTheme)

	t.Run("message", func(t *testing.T) {
		line := renderer.Message(message("$e1", general, u2, "hi \x1b[2Jthere"), u1)
		if got := ansi.Strip(line); got != "09:30 u2: hi there" {
			t.Errorf("Message = %q", got)
		}
		if !strings.Contains(line, "\x1b[") {
			t.Error("Message rendered without styling")
		}
	})

	t.Run("rooms", func(t *testing.T) {
		list := NewRoomList(u1)
		list.Set([]chat.Room{
			{ID: general, Name: "General"},
			{ID: random, Name: "Random", Private: true},
		})
		lines := renderer.Rooms(list, random)
		var plain []string
		for _, line := range lines {
			plain = append(plain, ansi.Strip(line))
		}
		if want := []string{"#General", "*Random"}; !slices.Equal(plain, want) {
			t.Errorf("Rooms = %q, want %q", plain, want)
		}
	})

	t.Run("users with notice", func(t *testing.T) {
		list := NewUserList("u1", "")
		list.SetError(failure.New(failure.DirectoryFailed, "list users", errors.New("down")))
		lines := renderer.Users(list)
		if len(lines) != 1 || ansi.Strip(lines[0]) != "Could not load users" {
			t.Errorf("Users = %q", lines)
		}
	})

	t.Run("truncation", func(t *testing.T) {
		narrow := NewRenderer(io.Discard, termenv.ANSI256, 12, DefaultTheme)
		line := narrow.Message(message("$e1", general, u2, "a long message that does not fit"), u1)
		if width := ansi.StringWidth(line); width > 12 {
			t.Errorf("line width = %d, want at most 12", width)
		}
		if !strings.HasSuffix(ansi.Strip(line), ellipsis) {
			t.Errorf("truncated line = %q, want trailing ellipsis", ansi.Strip(line))
		}
	})

	t.Run("plain profile", func(t *testing.T) {
		plain := NewRenderer(io.Discard, termenv.Ascii, 0, DefaultTheme)
		line := plain.User(directory.User{ID: "u2", Name: "Grace", Email: "b@x.com"})
		if line != "Grace <b@x.com>" {
			t.Errorf("User = %q", line)
		}
	})
}
