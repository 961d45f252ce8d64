// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"github.com/huddlechat/huddle/lib/ref"
)

// Presets chat.Session.CreateRoom picks from the private flag.
const (
	PresetPrivateChat = "private_chat"
	PresetPublicChat  = "public_chat"
)

// History paging directions.
const (
	DirectionBackward = "b"
	DirectionForward  = "f"
)

// CreateRoomRequest is the body of a createRoom call. Direct rooms set
// Alias to their derived name so the peer can find them.
type CreateRoomRequest struct {
	Name     string   `json:"name,omitempty"`
	Alias    string   `json:"room_alias_name,omitempty"` // localpart only, no # or :server
	Preset   string   `json:"preset,omitempty"`
	Invite   []string `json:"invite,omitempty"`
	IsDirect bool     `json:"is_direct,omitempty"`
}

// CreateRoomResponse is returned by CreateRoom.
type CreateRoomResponse struct {
	RoomID ref.RoomID `json:"room_id"`
}

// MessageContent is what a Huddle message carries. Format and
// FormattedBody are set together when the text renders to HTML.
type MessageContent struct {
	MsgType       string `json:"msgtype"`
	Body          string `json:"body"`
	Format        string `json:"format,omitempty"`
	FormattedBody string `json:"formatted_body,omitempty"`
}

// Event is one timeline or state entry from /sync or /messages.
type Event struct {
	EventID        ref.EventID    `json:"event_id"`
	Type           ref.EventType  `json:"type"`
	Sender         ref.UserID     `json:"sender"`
	OriginServerTS int64          `json:"origin_server_ts"`
	Content        map[string]any `json:"content"`
	RoomID         ref.RoomID     `json:"room_id,omitempty"`
	StateKey       *string        `json:"state_key,omitempty"`
	Unsigned       *EventUnsigned `json:"unsigned,omitempty"`
}

// EventUnsigned holds optional unsigned data attached to events.
type EventUnsigned struct {
	Age           int64  `json:"age,omitempty"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// ContentString returns the string value of a top-level content key,
// or "" when the key is absent or not a string.
func (e Event) ContentString(key string) string {
	value, _ := e.Content[key].(string)
	return value
}

// RoomMessagesOptions selects one page of room history.
type RoomMessagesOptions struct {
	From      string // page token; empty starts at the newest message
	Direction string // DirectionBackward or DirectionForward
	Limit     int    // 0 lets the homeserver choose
	Filter    string // inline RoomEventFilter JSON
}

// RoomMessagesResponse is returned by RoomMessages.
type RoomMessagesResponse struct {
	Start string  `json:"start"`
	End   string  `json:"end"`
	Chunk []Event `json:"chunk"`
}

// SyncOptions shapes a /sync call.
type SyncOptions struct {
	Since      string // previous next_batch; empty for room discovery
	Timeout    int    // long-poll wait in milliseconds
	SetTimeout bool   // send Timeout even when it is 0
	Filter     string // inline JSON filter
}

// SyncResponse is the part of a /sync reply Huddle reads.
type SyncResponse struct {
	NextBatch string       `json:"next_batch"`
	Rooms     RoomsSection `json:"rooms"`
}

// RoomsSection groups rooms by the user's membership. Only joined
// rooms reach the room list; invites are listed for completeness.
type RoomsSection struct {
	Join   map[ref.RoomID]JoinedRoom  `json:"join,omitempty"`
	Invite map[ref.RoomID]InvitedRoom `json:"invite,omitempty"`
}

// JoinedRoom holds the name and members (State) and new messages
// (Timeline) of a joined room.
type JoinedRoom struct {
	Timeline TimelineSection `json:"timeline"`
	State    StateSection    `json:"state"`
}

// InvitedRoom is a room the user has been asked into.
type InvitedRoom struct {
	InviteState StateSection `json:"invite_state"`
}

// TimelineSection lists messages since the last sync. Limited means
// older ones were skipped.
type TimelineSection struct {
	Events    []Event `json:"events"`
	PrevBatch string  `json:"prev_batch"`
	Limited   bool    `json:"limited"`
}

// StateSection lists state events such as m.room.name.
type StateSection struct {
	Events []Event `json:"events"`
}

// SendEventResponse carries the ID of a posted message.
type SendEventResponse struct {
	EventID ref.EventID `json:"event_id"`
}

// WhoAmIResponse names the token's owner.
type WhoAmIResponse struct {
	UserID   ref.UserID `json:"user_id"`
	DeviceID string     `json:"device_id,omitempty"`
}

// ResolveAliasResponse maps a direct room alias to its room.
type ResolveAliasResponse struct {
	RoomID  ref.RoomID `json:"room_id"`
	Servers []string   `json:"servers"`
}
