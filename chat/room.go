// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"cmp"
	"slices"
	"strings"
	"time"

	"github.com/huddlechat/huddle/lib/ref"
	"github.com/huddlechat/huddle/messaging"
)

// Room is one room in the session snapshot.
type Room struct {
	ID        ref.RoomID
	Name      string
	Private   bool
	MemberIDs []ref.UserID
}

// HasMember reports whether userID is in the room's member list.
func (r Room) HasMember(userID ref.UserID) bool {
	return slices.Contains(r.MemberIDs, userID)
}

func (r Room) clone() Room {
	r.MemberIDs = slices.Clone(r.MemberIDs)
	return r
}

// Message is one text message.
type Message struct {
	ID        ref.EventID
	RoomID    ref.RoomID
	SenderID  ref.UserID
	Text      string
	Timestamp time.Time
}

// Direction orders a fetched message window.
type Direction int

const (
	// OlderFirst returns messages chronologically, newest last.
	OlderFirst Direction = iota
	// NewerFirst returns the newest message first.
	NewerFirst
)

func (d Direction) String() string {
	if d == NewerFirst {
		return "newer_first"
	}
	return "older_first"
}

// messageFromEvent converts an m.room.message event with a text body.
func messageFromEvent(roomID ref.RoomID, event messaging.Event) (Message, bool) {
	if event.Type != ref.EventTypeMessage {
		return Message{}, false
	}
	body := event.ContentString("body")
	if body == "" {
		return Message{}, false
	}
	if !event.RoomID.IsZero() {
		roomID = event.RoomID
	}
	return Message{
		ID:        event.EventID,
		RoomID:    roomID,
		SenderID:  event.Sender,
		Text:      body,
		Timestamp: time.UnixMilli(event.OriginServerTS),
	}, true
}

// roomFromSync builds a Room from a joined room's state. State events
// in the timeline are applied after the state section, matching their
// order on the server.
func roomFromSync(roomID ref.RoomID, joined messaging.JoinedRoom) Room {
	var name, aliasLocalpart, joinRule string
	members := make(map[ref.UserID]bool)

	apply := func(event messaging.Event) {
		if event.StateKey == nil {
			return
		}
		switch event.Type {
		case ref.EventTypeRoomName:
			name = event.ContentString("name")
		case ref.EventTypeCanonicalAlias:
			if alias, err := ref.ParseRoomAlias(event.ContentString("alias")); err == nil {
				aliasLocalpart = alias.Localpart()
			}
		case ref.EventTypeJoinRules:
			joinRule = event.ContentString("join_rule")
		case ref.EventTypeMember:
			userID, err := ref.ParseUserID(*event.StateKey)
			if err != nil {
				return
			}
			switch event.ContentString("membership") {
			case "join", "invite":
				members[userID] = true
			default:
				delete(members, userID)
			}
		}
	}
	for _, event := range joined.State.Events {
		apply(event)
	}
	for _, event := range joined.Timeline.Events {
		apply(event)
	}

	room := Room{
		ID:      roomID,
		Name:    cmp.Or(name, aliasLocalpart, roomID.String()),
		Private: joinRule != "public",
	}
	for member := range members {
		room.MemberIDs = append(room.MemberIDs, member)
	}
	sortUserIDs(room.MemberIDs)
	return room
}

func sortRooms(rooms []Room) {
	slices.SortFunc(rooms, func(a, b Room) int {
		return cmp.Or(
			strings.Compare(a.Name, b.Name),
			strings.Compare(a.ID.String(), b.ID.String()),
		)
	})
}

func sortUserIDs(ids []ref.UserID) {
	slices.SortFunc(ids, func(a, b ref.UserID) int {
		return strings.Compare(a.String(), b.String())
	})
}
