// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"sync"

	"github.com/huddlechat/huddle/chat"
)

// inbox queues subscription events for the REPL goroutine. deliver
// never blocks, so a room switch or logout running on the REPL
// goroutine can always wait for the delivery goroutine to stop.
type inbox struct {
	mu      sync.Mutex
	pending []chat.Event
	ready   chan struct{}
}

func newInbox() *inbox {
	return &inbox{ready: make(chan struct{}, 1)}
}

// deliver is the chat.Listener.
func (b *inbox) deliver(event chat.Event) {
	b.mu.Lock()
	b.pending = append(b.pending, event)
	b.mu.Unlock()
	select {
	case b.ready <- struct{}{}:
	default:
	}
}

// Ready receives a value when events are pending.
func (b *inbox) Ready() <-chan struct{} { return b.ready }

// drain returns the pending events in delivery order.
func (b *inbox) drain() []chat.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	events := b.pending
	b.pending = nil
	return events
}
