// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package view

import (
	"github.com/huddlechat/huddle/chat"
	"github.com/huddlechat/huddle/lib/ref"
)

// RoomItem is one row of the room list.
type RoomItem struct {
	ID      ref.RoomID
	Label   string
	Private bool
	Direct  bool
}

// RoomList projects the session's room snapshot.
type RoomList struct {
	self  ref.UserID
	items []RoomItem
}

// NewRoomList creates a room list for the signed-in user.
func NewRoomList(self ref.UserID) *RoomList {
	return &RoomList{self: self}
}

// Set replaces the list, keeping the order of rooms.
func (l *RoomList) Set(rooms []chat.Room) {
	l.items = make([]RoomItem, 0, len(rooms))
	for _, room := range rooms {
		item := RoomItem{ID: room.ID, Label: room.Name, Private: room.Private}
		if peer, ok := l.directPeer(room); ok {
			item.Direct = true
			item.Label = "@" + peer.Localpart()
		}
		l.items = append(l.items, item)
	}
}

// directPeer reports the other participant when room is a direct room
// of the signed-in user: private, two members, and named after them.
func (l *RoomList) directPeer(room chat.Room) (ref.UserID, bool) {
	if !room.Private || len(room.MemberIDs) != 2 || !room.HasMember(l.self) {
		return ref.UserID{}, false
	}
	peer := room.MemberIDs[0]
	if peer == l.self {
		peer = room.MemberIDs[1]
	}
	mine, theirs := l.self.Localpart(), peer.Localpart()
	if room.Name != mine+"_"+theirs && room.Name != theirs+"_"+mine {
		return ref.UserID{}, false
	}
	return peer, true
}

// Items returns the rows.
func (l *RoomList) Items() []RoomItem {
	return l.items
}
