// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/huddlechat/huddle/lib/ref"
)

// SyncFilter configures what events a RoomWatcher receives from /sync.
// The watched room is always included automatically.
//
// A nil *SyncFilter means "all events from the watched room".
type SyncFilter struct {
	// TimelineTypes restricts timeline events to these Matrix event types
	// (e.g., "m.room.message"). An empty slice means all timeline types.
	TimelineTypes []string `json:"timeline_types,omitempty"`

	// TimelineLimit caps the number of timeline events per /sync response.
	// Zero means no explicit limit (server default).
	TimelineLimit int `json:"timeline_limit,omitempty"`

	// ExcludeState suppresses state events from the /sync response.
	ExcludeState bool `json:"exclude_state,omitempty"`
}

// buildInlineFilter constructs the inline JSON filter string for /sync,
// scoped to the given room.
func buildInlineFilter(roomID ref.RoomID, filter *SyncFilter) string {
	roomFilter := map[string]any{
		"rooms": []string{roomID.String()},
	}

	if filter != nil {
		timeline := map[string]any{}
		if len(filter.TimelineTypes) > 0 {
			timeline["types"] = filter.TimelineTypes
		}
		if filter.TimelineLimit > 0 {
			timeline["limit"] = filter.TimelineLimit
		}
		if len(timeline) > 0 {
			roomFilter["timeline"] = timeline
		}
		if filter.ExcludeState {
			roomFilter["state"] = map[string]any{"types": []string{}}
		}
	}

	top := map[string]any{
		"room":         roomFilter,
		"presence":     map[string]any{"types": []string{}},
		"account_data": map[string]any{"types": []string{}},
	}

	data, _ := json.Marshal(top)
	return string(data)
}

// Defaults for WatchOptions.
const (
	DefaultSyncRetries     = 5
	DefaultLongPollTimeout = 30 * time.Second
)

// retryTimeout is the server-side timeout used after a transient /sync
// error. The HTTP round-trip itself provides the backoff.
const retryTimeout = time.Second

// WatchOptions configures WatchRoom.
type WatchOptions struct {
	// Filter restricts the events delivered. Nil means everything in
	// the room.
	Filter *SyncFilter

	// Replay makes the first Next call return the timeline events of
	// the initial sync (bounded by Filter.TimelineLimit) instead of
	// only events arriving after WatchRoom returns.
	Replay bool

	// SyncRetries is the number of consecutive transient /sync
	// failures tolerated before Next returns an error. Zero uses
	// DefaultSyncRetries; a negative value disables retries.
	SyncRetries int

	// LongPollTimeout is the server-side hold time for each /sync.
	// Zero uses DefaultLongPollTimeout.
	LongPollTimeout time.Duration

	// Logger receives retry diagnostics. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// RoomWatcher captures a position in the Matrix /sync stream for a
// specific room. Create one with WatchRoom, then call Next to receive
// batches of events arriving after the checkpoint.
//
// All waiting uses Matrix /sync long-polling: the server holds the
// connection until new events arrive, then returns immediately.
//
// RoomWatcher is not safe for concurrent use by multiple goroutines.
// Independent watchers on the same Session each keep their own sync
// position because the since token travels as a query parameter.
type RoomWatcher struct {
	session     Session
	roomID      ref.RoomID
	filter      string
	nextBatch   string
	pending     []Event
	maxRetries  int
	longPoll    time.Duration
	syncRetries int
	logger      *slog.Logger
}

// WatchRoom captures the current position in the Matrix /sync stream
// with an immediate /sync (timeout=0). Without Replay, the returned
// RoomWatcher only sees events arriving after this call.
func WatchRoom(ctx context.Context, session Session, roomID ref.RoomID, options WatchOptions) (*RoomWatcher, error) {
	if roomID.IsZero() {
		return nil, fmt.Errorf("messaging: WatchRoom requires a non-zero room ID")
	}
	inlineFilter := buildInlineFilter(roomID, options.Filter)
	response, err := session.Sync(ctx, SyncOptions{
		SetTimeout: true,
		Timeout:    0,
		Filter:     inlineFilter,
	})
	if err != nil {
		return nil, fmt.Errorf("messaging: initial sync for room watch: %w", err)
	}

	maxRetries := options.SyncRetries
	if maxRetries == 0 {
		maxRetries = DefaultSyncRetries
	} else if maxRetries < 0 {
		maxRetries = 0
	}
	longPoll := options.LongPollTimeout
	if longPoll <= 0 {
		longPoll = DefaultLongPollTimeout
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.Default()
	}

	watcher := &RoomWatcher{
		session:    session,
		roomID:     roomID,
		filter:     inlineFilter,
		nextBatch:  response.NextBatch,
		maxRetries: maxRetries,
		longPoll:   longPoll,
		logger:     logger,
	}
	if options.Replay {
		if joined, ok := response.Rooms.Join[roomID]; ok {
			watcher.pending = watcher.stamp(joined.Timeline.Events)
		}
	}
	return watcher, nil
}

// Next blocks until at least one event arrives in the watched room and
// returns the batch in delivery order (state before timeline). Bounded
// by ctx.
//
// Transient transport errors are retried up to the configured limit
// with a short server timeout, dropping idle connections between
// attempts. A structured homeserver error (*MatrixError) is returned
// immediately.
func (w *RoomWatcher) Next(ctx context.Context) ([]Event, error) {
	if len(w.pending) > 0 {
		events := w.pending
		w.pending = nil
		return events, nil
	}
	for {
		events, err := w.poll(ctx)
		if err != nil {
			return nil, err
		}
		if len(events) > 0 {
			return events, nil
		}
	}
}

// poll performs one successful /sync (with retries) and returns the
// watched room's events from it, possibly none.
func (w *RoomWatcher) poll(ctx context.Context) ([]Event, error) {
	for {
		timeout := w.longPoll
		if w.syncRetries > 0 {
			timeout = retryTimeout
		}
		response, err := w.session.Sync(ctx, SyncOptions{
			Since:      w.nextBatch,
			SetTimeout: true,
			Timeout:    int(timeout / time.Millisecond),
			Filter:     w.filter,
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("messaging: watching room %s: %w", w.roomID, ctx.Err())
			}
			var matrixErr *MatrixError
			if errors.As(err, &matrixErr) {
				return nil, fmt.Errorf("messaging: sync rejected while watching room %s: %w", w.roomID, err)
			}
			w.syncRetries++
			if closer, ok := w.session.(interface{ CloseIdleConnections() }); ok {
				closer.CloseIdleConnections()
			}
			if w.syncRetries > w.maxRetries {
				return nil, fmt.Errorf("messaging: sync failed %d consecutive times watching room %s: %w",
					w.syncRetries, w.roomID, err)
			}
			w.logger.Debug("room watcher sync error, retrying",
				"room_id", w.roomID,
				"attempt", w.syncRetries,
				"max_attempts", w.maxRetries,
				"error", err,
			)
			continue
		}
		w.syncRetries = 0
		w.nextBatch = response.NextBatch

		joined, ok := response.Rooms.Join[w.roomID]
		if !ok {
			return nil, nil
		}
		events := make([]Event, 0, len(joined.State.Events)+len(joined.Timeline.Events))
		events = append(events, joined.State.Events...)
		events = append(events, joined.Timeline.Events...)
		return w.stamp(events), nil
	}
}

// stamp fills in the room ID, which /sync omits from per-room events.
func (w *RoomWatcher) stamp(events []Event) []Event {
	for i := range events {
		if events[i].RoomID.IsZero() {
			events[i].RoomID = w.roomID
		}
	}
	return events
}
