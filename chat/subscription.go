// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/huddlechat/huddle/lib/failure"
	"github.com/huddlechat/huddle/lib/metrics"
	"github.com/huddlechat/huddle/lib/ref"
	"github.com/huddlechat/huddle/messaging"
)

// State is a subscription's lifecycle state.
type State int

const (
	StateIdle State = iota
	StateSubscribing
	StateActive
	StateErrored
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSubscribing:
		return "subscribing"
	case StateActive:
		return "active"
	case StateErrored:
		return "errored"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// EventKind distinguishes subscription events.
type EventKind int

const (
	// NewMessage carries a message in Event.Message.
	NewMessage EventKind = iota
	// SubscriptionError carries the error that ended the feed in
	// Event.Err. It is the last event of its subscription.
	SubscriptionError
)

func (k EventKind) String() string {
	if k == SubscriptionError {
		return "subscription_error"
	}
	return "new_message"
}

// Event is delivered to a Listener. RoomID and Generation identify the
// subscription that produced it.
type Event struct {
	Kind       EventKind
	RoomID     ref.RoomID
	Generation uint64
	Message    Message
	Err        error
}

// Listener receives subscription events on the subscription's delivery
// goroutine, one at a time. It must not call Subscribe, Unsubscribe or
// Close synchronously: those wait for delivery to finish. Forward the
// event through a channel instead.
type Listener func(Event)

// SubscriptionsConfig configures a Subscriptions manager.
type SubscriptionsConfig struct {
	// SyncRetries bounds consecutive transient /sync failures. Zero
	// uses messaging.DefaultSyncRetries.
	SyncRetries int
	// LongPollTimeout is the /sync hold time. Zero uses
	// messaging.DefaultLongPollTimeout.
	LongPollTimeout time.Duration
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Metrics records deliveries and errors. May be nil.
	Metrics *metrics.Metrics
}

// Subscriptions keeps at most one active room feed.
//
// Lock order: deliveryMu before mu. deliveryMu is held while a
// listener runs, so bumping the generation under it guarantees no
// event of a superseded subscription is delivered afterwards.
type Subscriptions struct {
	session         messaging.Session
	syncRetries     int
	longPollTimeout time.Duration
	logger          *slog.Logger
	metrics         *metrics.Metrics

	subscribeMu sync.Mutex
	deliveryMu  sync.Mutex

	mu         sync.Mutex
	generation uint64
	current    *Subscription
	closed     bool
}

// NewSubscriptions creates a manager for session.
func NewSubscriptions(session messaging.Session, config SubscriptionsConfig) *Subscriptions {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Subscriptions{
		session:         session,
		syncRetries:     config.SyncRetries,
		longPollTimeout: config.LongPollTimeout,
		logger:          logger,
		metrics:         config.Metrics,
	}
}

// Subscription is one room feed.
type Subscription struct {
	manager      *Subscriptions
	roomID       ref.RoomID
	messageLimit int
	generation   uint64
	done         chan struct{}

	// cancel is set before the subscription is published and never
	// changes. It stops the opening sync and the delivery goroutine.
	cancel context.CancelFunc

	// state is guarded by manager.mu.
	state State
}

// RoomID returns the subscribed room.
func (s *Subscription) RoomID() ref.RoomID { return s.roomID }

// MessageLimit returns the replay bound the subscription was opened with.
func (s *Subscription) MessageLimit() int { return s.messageLimit }

// Generation returns the subscription's generation number.
func (s *Subscription) Generation() uint64 { return s.generation }

// State returns the current lifecycle state.
func (s *Subscription) State() State {
	s.manager.mu.Lock()
	defer s.manager.mu.Unlock()
	return s.state
}

// Done is closed when the delivery goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Close stops the subscription. Closing a superseded or already closed
// subscription is a no-op.
func (s *Subscription) Close() {
	m := s.manager
	m.deliveryMu.Lock()
	m.mu.Lock()
	if m.current == s {
		m.generation++
		m.current = nil
	}
	m.mu.Unlock()
	m.deliveryMu.Unlock()
	s.stop()
}

// stop cancels the feed, waits for the delivery goroutine and marks
// the subscription Closed unless it already ended in error.
func (s *Subscription) stop() {
	s.cancel()
	<-s.done
	s.manager.mu.Lock()
	if s.state == StateSubscribing || s.state == StateActive {
		s.state = StateClosed
	}
	s.manager.mu.Unlock()
}

// Subscribe opens a live feed for roomID and tears down the previous
// one first. Up to messageLimit recent messages are replayed as
// NewMessage events before live ones; zero means no replay.
//
// ctx bounds only the opening /sync; the feed runs until it is
// superseded, closed, or fails. A failure while opening leaves the
// subscription Errored and is returned.
func (m *Subscriptions) Subscribe(ctx context.Context, roomID ref.RoomID, messageLimit int, listener Listener) (*Subscription, error) {
	if listener == nil {
		return nil, fmt.Errorf("chat: subscribe requires a listener")
	}
	if messageLimit < 0 {
		messageLimit = 0
	}

	m.subscribeMu.Lock()
	defer m.subscribeMu.Unlock()

	m.deliveryMu.Lock()
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		m.deliveryMu.Unlock()
		return nil, classify(failure.SubscriptionError, ErrSubscribeFailed, "subscribe", ErrNotConnected)
	}
	m.generation++
	previous := m.current
	runCtx, cancel := context.WithCancel(context.Background())
	subscription := &Subscription{
		manager:      m,
		roomID:       roomID,
		messageLimit: messageLimit,
		generation:   m.generation,
		cancel:       cancel,
		done:         make(chan struct{}),
		state:        StateSubscribing,
	}
	m.current = subscription
	m.mu.Unlock()
	m.deliveryMu.Unlock()

	if previous != nil {
		previous.stop()
		m.logger.Debug("subscription superseded",
			"room_id", previous.roomID,
			"generation", previous.generation,
		)
	}

	// Stopping the subscription also aborts the opening sync.
	openCtx, cancelOpen := context.WithCancel(ctx)
	defer cancelOpen()
	stopOpening := context.AfterFunc(runCtx, cancelOpen)
	defer stopOpening()

	watcher, err := messaging.WatchRoom(openCtx, m.session, roomID, messaging.WatchOptions{
		Filter: &messaging.SyncFilter{
			TimelineTypes: []string{ref.EventTypeMessage.String()},
			TimelineLimit: messageLimit,
			ExcludeState:  true,
		},
		Replay:          messageLimit > 0,
		SyncRetries:     m.syncRetries,
		LongPollTimeout: m.longPollTimeout,
		Logger:          m.logger,
	})
	if err != nil {
		m.mu.Lock()
		superseded := m.current != subscription
		if superseded {
			subscription.state = StateClosed
		} else {
			subscription.state = StateErrored
			m.current = nil
		}
		m.mu.Unlock()
		cancel()
		close(subscription.done)
		if superseded {
			return nil, classify(failure.SubscriptionError, ErrSubscribeFailed, "subscribe", context.Canceled)
		}
		m.metrics.SubscriptionError()
		return nil, classify(failure.SubscriptionError, ErrSubscribeFailed, "subscribe", err)
	}

	m.mu.Lock()
	if m.current != subscription {
		// Closed while the opening sync was in flight.
		subscription.state = StateClosed
		m.mu.Unlock()
		cancel()
		close(subscription.done)
		return nil, classify(failure.SubscriptionError, ErrSubscribeFailed, "subscribe", context.Canceled)
	}
	subscription.state = StateActive
	m.mu.Unlock()

	m.logger.Info("subscribed to room",
		"room_id", roomID,
		"generation", subscription.generation,
		"message_limit", messageLimit,
	)

	go m.run(runCtx, subscription, watcher, listener)
	return subscription, nil
}

// run is the delivery goroutine.
func (m *Subscriptions) run(ctx context.Context, subscription *Subscription, watcher *messaging.RoomWatcher, listener Listener) {
	defer close(subscription.done)
	for {
		events, err := watcher.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.fail(subscription, listener, err)
			return
		}
		for _, event := range events {
			message, ok := messageFromEvent(subscription.roomID, event)
			if !ok {
				continue
			}
			if !m.deliver(subscription, listener, Event{
				Kind:       NewMessage,
				RoomID:     subscription.roomID,
				Generation: subscription.generation,
				Message:    message,
			}) {
				return
			}
			m.metrics.MessagesReceived(1)
		}
	}
}

// deliver hands event to listener if subscription is still the current
// active one.
func (m *Subscriptions) deliver(subscription *Subscription, listener Listener, event Event) bool {
	m.deliveryMu.Lock()
	defer m.deliveryMu.Unlock()

	m.mu.Lock()
	live := m.current == subscription &&
		subscription.generation == m.generation &&
		subscription.state == StateActive
	m.mu.Unlock()
	if !live {
		return false
	}
	listener(event)
	return true
}

// fail ends a live subscription with one SubscriptionError event.
func (m *Subscriptions) fail(subscription *Subscription, listener Listener, cause error) {
	err := classify(failure.SubscriptionError, ErrSubscribeFailed, "live updates", cause)

	m.deliveryMu.Lock()
	defer m.deliveryMu.Unlock()

	m.mu.Lock()
	live := m.current == subscription &&
		subscription.generation == m.generation &&
		subscription.state == StateActive
	if live {
		subscription.state = StateErrored
		m.current = nil
	}
	m.mu.Unlock()
	if !live {
		return
	}

	m.metrics.SubscriptionError()
	m.logger.Warn("room subscription failed",
		"room_id", subscription.roomID,
		"generation", subscription.generation,
		"error", cause,
	)
	listener(Event{
		Kind:       SubscriptionError,
		RoomID:     subscription.roomID,
		Generation: subscription.generation,
		Err:        err,
	})
}

// Active returns the active subscription, or nil.
func (m *Subscriptions) Active() *Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current != nil && m.current.state == StateActive {
		return m.current
	}
	return nil
}

// Unsubscribe closes the current subscription, if any.
func (m *Subscriptions) Unsubscribe() {
	m.deliveryMu.Lock()
	m.mu.Lock()
	previous := m.current
	m.current = nil
	m.generation++
	m.mu.Unlock()
	m.deliveryMu.Unlock()

	if previous != nil {
		previous.stop()
		m.logger.Info("unsubscribed from room", "room_id", previous.roomID)
	}
}

// Close unsubscribes and rejects further subscriptions. Idempotent.
func (m *Subscriptions) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.Unsubscribe()
}
