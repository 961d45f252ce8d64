// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package view

import (
	"slices"

	"github.com/huddlechat/huddle/chat"
	"github.com/huddlechat/huddle/lib/failure"
	"github.com/huddlechat/huddle/lib/ref"
)

// MessageList projects the open room's messages, oldest first.
//
// It accepts only messages for the room and subscription generation
// set by the last Reset. Events that slipped past a room switch are
// dropped here even if the subscription manager let them through.
type MessageList struct {
	roomID     ref.RoomID
	generation uint64
	items      []chat.Message
	seen       map[ref.EventID]bool
	notice     string
}

// NewMessageList creates an empty list showing no room.
func NewMessageList() *MessageList {
	return &MessageList{seen: make(map[ref.EventID]bool)}
}

// Reset clears the list and shows roomID for the subscription with
// the given generation.
func (l *MessageList) Reset(roomID ref.RoomID, generation uint64) {
	l.roomID = roomID
	l.generation = generation
	l.items = nil
	l.notice = ""
	clear(l.seen)
}

// RoomID returns the room shown.
func (l *MessageList) RoomID() ref.RoomID { return l.roomID }

// Generation returns the subscription generation accepted.
func (l *MessageList) Generation() uint64 { return l.generation }

// Append merges fetched or live messages into the list by Timestamp.
// Messages with equal timestamps keep their arrival order, so a wider
// history window fetched after live events lands before them. Messages
// for other rooms and already shown event IDs are skipped. It returns
// how many were added.
func (l *MessageList) Append(messages ...chat.Message) int {
	added := 0
	for _, message := range messages {
		if message.RoomID != l.roomID || l.seen[message.ID] {
			continue
		}
		l.seen[message.ID] = true
		at := len(l.items)
		for at > 0 && l.items[at-1].Timestamp.After(message.Timestamp) {
			at--
		}
		l.items = slices.Insert(l.items, at, message)
		added++
	}
	return added
}

// Apply folds a subscription event into the list. It reports whether
// the event belonged to the shown room and generation.
func (l *MessageList) Apply(event chat.Event) bool {
	if event.RoomID != l.roomID || event.Generation != l.generation {
		return false
	}
	switch event.Kind {
	case chat.NewMessage:
		l.Append(event.Message)
	case chat.SubscriptionError:
		l.notice = failure.Notice(event.Err)
	}
	return true
}

// Items returns the messages, newest last.
func (l *MessageList) Items() []chat.Message { return l.items }

// Notice returns the text of the last subscription error, if any.
func (l *MessageList) Notice() string { return l.notice }
