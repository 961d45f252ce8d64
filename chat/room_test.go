// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"slices"
	"testing"

	"github.com/huddlechat/huddle/lib/ref"
	"github.com/huddlechat/huddle/messaging"
)

func stateEvent(eventType ref.EventType, stateKey string, content map[string]any) messaging.Event {
	return messaging.Event{Type: eventType, StateKey: &stateKey, Content: content}
}

func TestRoomFromSync(t *testing.T) {
	roomID := ref.MustParseRoomID("!r1:local")
	alice := ref.MustParseUserID("@alice:local")
	bob := ref.MustParseUserID("@bob:local")
	carol := ref.MustParseUserID("@carol:local")

	t.Run("name, privacy and members", func(t *testing.T) {
		room := roomFromSync(roomID, messaging.JoinedRoom{
			State: messaging.StateSection{Events: []messaging.Event{
				stateEvent(ref.EventTypeRoomName, "", map[string]any{"name": "General"}),
				stateEvent(ref.EventTypeJoinRules, "", map[string]any{"join_rule": "public"}),
				stateEvent(ref.EventTypeMember, bob.String(), map[string]any{"membership": "join"}),
				stateEvent(ref.EventTypeMember, alice.String(), map[string]any{"membership": "invite"}),
				stateEvent(ref.EventTypeMember, carol.String(), map[string]any{"membership": "leave"}),
			}},
		})
		if room.Name != "General" || room.Private {
			t.Errorf("room = %+v, want public General", room)
		}
		if want := []ref.UserID{alice, bob}; !slices.Equal(room.MemberIDs, want) {
			t.Errorf("MemberIDs = %v, want %v", room.MemberIDs, want)
		}
	})

	t.Run("timeline state applies after state section", func(t *testing.T) {
		room := roomFromSync(roomID, messaging.JoinedRoom{
			State: messaging.StateSection{Events: []messaging.Event{
				stateEvent(ref.EventTypeMember, carol.String(), map[string]any{"membership": "join"}),
			}},
			Timeline: messaging.TimelineSection{Events: []messaging.Event{
				stateEvent(ref.EventTypeMember, carol.String(), map[string]any{"membership": "leave"}),
			}},
		})
		if len(room.MemberIDs) != 0 {
			t.Errorf("MemberIDs = %v, want none after leave", room.MemberIDs)
		}
	})

	t.Run("name falls back to alias then ID", func(t *testing.T) {
		aliased := roomFromSync(roomID, messaging.JoinedRoom{
			State: messaging.StateSection{Events: []messaging.Event{
				stateEvent(ref.EventTypeCanonicalAlias, "", map[string]any{"alias": "#lobby:local"}),
			}},
		})
		if aliased.Name != "lobby" {
			t.Errorf("Name = %q, want lobby", aliased.Name)
		}
		if !aliased.Private {
			t.Error("room without join rules should be private")
		}
		bare := roomFromSync(roomID, messaging.JoinedRoom{})
		if bare.Name != roomID.String() {
			t.Errorf("Name = %q, want %q", bare.Name, roomID)
		}
	})
}

func TestMessageFromEvent(t *testing.T) {
	roomID := ref.MustParseRoomID("!r1:local")
	sender := ref.MustParseUserID("@alice:local")

	message, ok := messageFromEvent(roomID, messaging.Event{
		EventID:        ref.MustParseEventID("$e1"),
		Type:           ref.EventTypeMessage,
		Sender:         sender,
		OriginServerTS: 1_767_225_600_000,
		Content:        map[string]any{"msgtype": "m.text", "body": "hello"},
	})
	if !ok {
		t.Fatal("messageFromEvent rejected a text message")
	}
	if message.Text != "hello" || message.SenderID != sender || message.RoomID != roomID {
		t.Errorf("message = %+v", message)
	}
	if message.Timestamp.UnixMilli() != 1_767_225_600_000 {
		t.Errorf("Timestamp = %v", message.Timestamp)
	}

	if _, ok := messageFromEvent(roomID, messaging.Event{Type: ref.EventTypeRoomName}); ok {
		t.Error("messageFromEvent accepted a state event")
	}
	if _, ok := messageFromEvent(roomID, messaging.Event{Type: ref.EventTypeMessage, Content: map[string]any{}}); ok {
		t.Error("messageFromEvent accepted a message without a body")
	}
}

func TestSortRooms(t *testing.T) {
	rooms := []Room{
		{ID: ref.MustParseRoomID("!b:local"), Name: "Zeta"},
		{ID: ref.MustParseRoomID("!c:local"), Name: "Alpha"},
		{ID: ref.MustParseRoomID("!a:local"), Name: "Alpha"},
	}
	sortRooms(rooms)
	var got []string
	for _, room := range rooms {
		got = append(got, room.ID.String())
	}
	if want := []string{"!a:local", "!c:local", "!b:local"}; !slices.Equal(got, want) {
		t.Errorf("order = %v, want %v", got, want)
	}
}
