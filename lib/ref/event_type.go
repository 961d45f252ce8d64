// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package ref

// EventType identifies a Matrix state or timeline event type. It is a
// named string rather than a struct: event types need no validation,
// only protection against being confused with a state key.
type EventType string

// String returns the event type string (e.g., "m.room.message").
func (t EventType) String() string { return string(t) }

// Event types Huddle reads or writes.
const (
	EventTypeMessage        EventType = "m.room.message"
	EventTypeRoomName       EventType = "m.room.name"
	EventTypeMember         EventType = "m.room.member"
	EventTypeJoinRules      EventType = "m.room.join_rules"
	EventTypeCanonicalAlias EventType = "m.room.canonical_alias"
)
