// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/huddlechat/huddle/lib/clock"
	"github.com/huddlechat/huddle/lib/failure"
	"github.com/huddlechat/huddle/lib/identity"
	"github.com/huddlechat/huddle/lib/metrics"
	"github.com/huddlechat/huddle/lib/ref"
	"github.com/huddlechat/huddle/messaging"
)

// DefaultHistoryLimit is the FetchMessages window when none is given.
const DefaultHistoryLimit = 100

// roomDiscoveryFilter asks /sync for the state that describes each
// joined room and a minimal timeline.
const roomDiscoveryFilter = `{"room":{"timeline":{"limit":1},` +
	`"state":{"types":["m.room.name","m.room.join_rules","m.room.member","m.room.canonical_alias"]}},` +
	`"presence":{"types":[]},"account_data":{"types":[]}}`

// messageEventFilter restricts /messages to m.room.message events.
const messageEventFilter = `{"types":["m.room.message"]}`

// Config configures Connect.
type Config struct {
	// HomeserverURL is the Matrix homeserver base URL. Required.
	HomeserverURL string
	// TokenProviderURL issues access tokens for an email. Required.
	TokenProviderURL string

	// HistoryLimit is the default FetchMessages window. Zero uses
	// DefaultHistoryLimit.
	HistoryLimit int

	// SendRate is the sustained SendMessage rate per second. Zero or
	// negative disables pacing.
	SendRate float64
	// SendBurst is the number of sends allowed back to back. Values
	// below 1 are treated as 1.
	SendBurst int

	// SyncRetries and LongPollTimeout configure subscriptions. See
	// SubscriptionsConfig.
	SyncRetries     int
	LongPollTimeout time.Duration

	// HTTPClient is shared by the token provider and the homeserver
	// client. If nil, each creates its own.
	HTTPClient *http.Client
	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Clock stamps transaction IDs. If nil, clock.Real() is used.
	Clock clock.Clock
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// Hash orders direct-room participants. If nil, BLAKE3Hash is used.
	Hash HashFunc
}

// Session is a connected chat session for one user. Methods are safe
// for concurrent use.
type Session struct {
	matrix        messaging.Session
	userID        ref.UserID
	logger        *slog.Logger
	metrics       *metrics.Metrics
	limiter       *rate.Limiter
	hash          HashFunc
	historyLimit  int
	subscriptions *Subscriptions

	// directMu serializes OpenDirectRoom so two local calls for the
	// same peer cannot both create.
	directMu sync.Mutex

	mu        sync.Mutex
	connected bool
	rooms     []Room
	position  string
}

// Connect exchanges the identity's email for a chat token, validates
// it, and loads the room snapshot. Every failure wraps ErrConnectFailed
// and carries failure.ConnectFailed.
func Connect(ctx context.Context, config Config, user identity.Identity) (*Session, error) {
	if user.Email == "" {
		return nil, classify(failure.ConnectFailed, ErrConnectFailed, "connect",
			errors.New("identity has no email"))
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := messaging.NewTokenProvider(messaging.TokenProviderConfig{
		URL:        config.TokenProviderURL,
		HTTPClient: config.HTTPClient,
		Logger:     logger,
	})
	if err != nil {
		return nil, classify(failure.ConnectFailed, ErrConnectFailed, "connect", err)
	}
	client, err := messaging.NewClient(messaging.ClientConfig{
		HomeserverURL: config.HomeserverURL,
		HTTPClient:    config.HTTPClient,
		Logger:        logger,
		Clock:         config.Clock,
	})
	if err != nil {
		return nil, classify(failure.ConnectFailed, ErrConnectFailed, "connect", err)
	}

	token, err := provider.Token(ctx, user.Email)
	if err != nil {
		return nil, classify(failure.ConnectFailed, ErrConnectFailed, "connect", err)
	}
	matrix := client.SessionFromBuffer(token.UserID, token.AccessToken)

	session := newSession(matrix, config, logger)
	if err := session.validate(ctx); err != nil {
		matrix.Close()
		return nil, classify(failure.ConnectFailed, ErrConnectFailed, "connect", err)
	}
	if err := session.refreshRooms(ctx); err != nil {
		matrix.Close()
		return nil, classify(failure.ConnectFailed, ErrConnectFailed, "connect", err)
	}

	logger.Info("chat session connected",
		"user_id", session.userID,
		"rooms", len(session.rooms),
	)
	return session, nil
}

func newSession(matrix messaging.Session, config Config, logger *slog.Logger) *Session {
	limit := rate.Inf
	if config.SendRate > 0 {
		limit = rate.Limit(config.SendRate)
	}
	burst := max(config.SendBurst, 1)

	historyLimit := config.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}

	hash := config.Hash
	if hash == nil {
		hash = BLAKE3Hash
	}

	return &Session{
		matrix:       matrix,
		userID:       matrix.UserID(),
		logger:       logger,
		metrics:      config.Metrics,
		limiter:      rate.NewLimiter(limit, burst),
		hash:         hash,
		historyLimit: historyLimit,
		subscriptions: NewSubscriptions(matrix, SubscriptionsConfig{
			SyncRetries:     config.SyncRetries,
			LongPollTimeout: config.LongPollTimeout,
			Logger:          logger,
			Metrics:         config.Metrics,
		}),
		connected: true,
	}
}

func (s *Session) validate(ctx context.Context) error {
	userID, err := s.matrix.WhoAmI(ctx)
	if err != nil {
		return fmt.Errorf("validating access token: %w", err)
	}
	if userID != s.userID {
		return fmt.Errorf("access token belongs to %s, token provider issued it for %s", userID, s.userID)
	}
	return nil
}

// UserID returns the signed-in user.
func (s *Session) UserID() ref.UserID { return s.userID }

// Connected reports whether the session is open.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connected
}

func (s *Session) checkConnected() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return ErrNotConnected
	}
	return nil
}

// Rooms returns a copy of the room snapshot, ordered by name then ID.
func (s *Session) Rooms() []Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]Room, len(s.rooms))
	for i, room := range s.rooms {
		rooms[i] = room.clone()
	}
	return rooms
}

// RoomByName returns the first room whose name is name, compared
// exactly and then case-insensitively.
func (s *Session) RoomByName(name string) (Room, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range s.rooms {
		if room.Name == name {
			return room.clone(), true
		}
	}
	for _, room := range s.rooms {
		if strings.EqualFold(room.Name, name) {
			return room.clone(), true
		}
	}
	return Room{}, false
}

// FindRoom looks query up as a room ID and then as a name.
func (s *Session) FindRoom(query string) (Room, bool) {
	s.mu.Lock()
	for _, room := range s.rooms {
		if room.ID.String() == query {
			s.mu.Unlock()
			return room.clone(), true
		}
	}
	s.mu.Unlock()
	return s.RoomByName(query)
}

// RefreshRooms reloads the room snapshot from the homeserver.
func (s *Session) RefreshRooms(ctx context.Context) error {
	if err := s.checkConnected(); err != nil {
		return classify(failure.ConnectFailed, ErrConnectFailed, "refresh rooms", err)
	}
	if err := s.refreshRooms(ctx); err != nil {
		return classify(failure.ConnectFailed, ErrConnectFailed, "refresh rooms", err)
	}
	return nil
}

func (s *Session) refreshRooms(ctx context.Context) error {
	response, err := s.matrix.Sync(ctx, messaging.SyncOptions{
		Timeout:    0,
		SetTimeout: true,
		Filter:     roomDiscoveryFilter,
	})
	if err != nil {
		return fmt.Errorf("room discovery sync: %w", err)
	}

	rooms := make([]Room, 0, len(response.Rooms.Join))
	for roomID, joined := range response.Rooms.Join {
		rooms = append(rooms, roomFromSync(roomID, joined))
	}
	sortRooms(rooms)

	s.mu.Lock()
	s.rooms = rooms
	s.position = response.NextBatch
	s.mu.Unlock()

	s.logger.Debug("room snapshot loaded", "user_id", s.userID, "rooms", len(rooms))
	return nil
}

// SyncPosition returns the sync token of the last room discovery.
func (s *Session) SyncPosition() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.position
}

// addRoom inserts or replaces room in the snapshot.
func (s *Session) addRoom(room Room) {
	s.mu.Lock()
	defer s.mu.Unlock()
	index := slices.IndexFunc(s.rooms, func(existing Room) bool { return existing.ID == room.ID })
	if index >= 0 {
		s.rooms[index] = room
	} else {
		s.rooms = append(s.rooms, room)
	}
	sortRooms(s.rooms)
}

// SendMessage posts text to roomID. Markdown in text is rendered into
// an HTML formatted body alongside the plain one.
func (s *Session) SendMessage(ctx context.Context, roomID ref.RoomID, text string) (ref.EventID, error) {
	if err := s.checkConnected(); err != nil {
		return ref.EventID{}, classify(failure.SendFailed, ErrSendFailed, "send message", err)
	}
	if strings.TrimSpace(text) == "" {
		return ref.EventID{}, classify(failure.SendFailed, ErrSendFailed, "send message", ErrEmptyMessage)
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return ref.EventID{}, classify(failure.SendFailed, ErrSendFailed, "send message", err)
	}

	eventID, err := s.matrix.SendMessage(ctx, roomID, messaging.NewTextMessage(text))
	if err != nil {
		s.logger.Warn("message send failed", "room_id", roomID, "error", err)
		return ref.EventID{}, classify(failure.SendFailed, ErrSendFailed, "send message", err)
	}
	s.metrics.MessageSent()
	s.logger.Debug("message sent", "room_id", roomID, "event_id", eventID)
	return eventID, nil
}

// FetchMessages returns the most recent window of at most limit text
// messages in roomID, ordered by direction. A limit of zero or less
// uses the session's history limit.
func (s *Session) FetchMessages(ctx context.Context, roomID ref.RoomID, direction Direction, limit int) ([]Message, error) {
	if err := s.checkConnected(); err != nil {
		return nil, classify(failure.FetchFailed, ErrFetchFailed, "fetch messages", err)
	}
	if limit <= 0 {
		limit = s.historyLimit
	}

	response, err := s.matrix.RoomMessages(ctx, roomID, messaging.RoomMessagesOptions{
		Direction: messaging.DirectionBackward,
		Limit:     limit,
		Filter:    messageEventFilter,
	})
	if err != nil {
		return nil, classify(failure.FetchFailed, ErrFetchFailed, "fetch messages", err)
	}

	messages := make([]Message, 0, len(response.Chunk))
	for _, event := range response.Chunk {
		if message, ok := messageFromEvent(roomID, event); ok {
			messages = append(messages, message)
		}
		if len(messages) == limit {
			break
		}
	}
	// Backward pagination yields newest first.
	if direction == OlderFirst {
		slices.Reverse(messages)
	}
	return messages, nil
}

// CreateRoom creates a room named name and invites memberIDs. The room
// is added to the snapshot.
//
// A private room between the session user and one peer that carries
// their DirectRoomName is opened with OpenDirectRoom instead, so asking
// for it again returns the existing room rather than a second one.
func (s *Session) CreateRoom(ctx context.Context, name string, private bool, memberIDs []ref.UserID) (Room, error) {
	if err := s.checkConnected(); err != nil {
		return Room{}, classify("", ErrRoomFailed, "create room", err)
	}
	if strings.TrimSpace(name) == "" {
		return Room{}, classify("", ErrRoomFailed, "create room", errors.New("room name is empty"))
	}
	if private {
		if peer, ok := s.solePeer(memberIDs); ok && name == DirectRoomName(s.userID, peer, s.hash) {
			return s.OpenDirectRoom(ctx, peer)
		}
	}

	preset := messaging.PresetPublicChat
	if private {
		preset = messaging.PresetPrivateChat
	}
	members := []ref.UserID{s.userID}
	invite := make([]string, 0, len(memberIDs))
	for _, memberID := range memberIDs {
		if memberID == s.userID || slices.Contains(members, memberID) {
			continue
		}
		members = append(members, memberID)
		invite = append(invite, memberID.String())
	}

	response, err := s.matrix.CreateRoom(ctx, messaging.CreateRoomRequest{
		Name:   name,
		Preset: preset,
		Invite: invite,
	})
	if err != nil {
		return Room{}, classify("", ErrRoomFailed, "create room", err)
	}

	sortUserIDs(members)
	room := Room{ID: response.RoomID, Name: name, Private: private, MemberIDs: members}
	s.addRoom(room)
	s.logger.Info("room created", "room_id", room.ID, "private", private, "invited", len(invite))
	return room.clone(), nil
}

// solePeer returns the one member other than the session user.
func (s *Session) solePeer(memberIDs []ref.UserID) (ref.UserID, bool) {
	var peer ref.UserID
	for _, memberID := range memberIDs {
		if memberID.IsZero() || memberID == s.userID || memberID == peer {
			continue
		}
		if !peer.IsZero() {
			return ref.UserID{}, false
		}
		peer = memberID
	}
	return peer, !peer.IsZero()
}

// OpenDirectRoom returns the private two-party room between the
// session user and other, creating it if neither side has yet. Both
// participants derive the same room name and alias, so the alias on
// the session user's server decides which room wins a concurrent
// create.
func (s *Session) OpenDirectRoom(ctx context.Context, other ref.UserID) (Room, error) {
	if err := s.checkConnected(); err != nil {
		return Room{}, classify("", ErrRoomFailed, "open direct room", err)
	}
	if other.IsZero() || other == s.userID {
		return Room{}, classify("", ErrRoomFailed, "open direct room",
			fmt.Errorf("invalid peer %q", other))
	}

	s.directMu.Lock()
	defer s.directMu.Unlock()

	name := DirectRoomName(s.userID, other, s.hash)
	if room, ok := s.RoomByName(name); ok && room.Private && room.Name == name {
		return room, nil
	}

	alias, err := ref.NewRoomAlias(name, s.userID.Server())
	if err != nil {
		return Room{}, classify("", ErrRoomFailed, "open direct room", err)
	}

	roomID, err := s.matrix.ResolveAlias(ctx, alias)
	switch {
	case err == nil:
		return s.joinDirectRoom(ctx, roomID, name, other)
	case !messaging.IsMatrixError(err, messaging.ErrCodeNotFound):
		return Room{}, classify("", ErrRoomFailed, "open direct room", err)
	}

	response, err := s.matrix.CreateRoom(ctx, messaging.CreateRoomRequest{
		Name:     name,
		Alias:    alias.Localpart(),
		Preset:   messaging.PresetPrivateChat,
		Invite:   []string{other.String()},
		IsDirect: true,
	})
	if messaging.IsMatrixError(err, messaging.ErrCodeRoomInUse) {
		s.logger.Debug("direct room created concurrently, joining", "alias", alias)
		roomID, err = s.matrix.ResolveAlias(ctx, alias)
		if err != nil {
			return Room{}, classify("", ErrRoomFailed, "open direct room", err)
		}
		return s.joinDirectRoom(ctx, roomID, name, other)
	}
	if err != nil {
		return Room{}, classify("", ErrRoomFailed, "open direct room", err)
	}

	room := directRoom(response.RoomID, name, s.userID, other)
	s.addRoom(room)
	s.logger.Info("direct room created", "room_id", room.ID, "peer", other)
	return room.clone(), nil
}

func (s *Session) joinDirectRoom(ctx context.Context, roomID ref.RoomID, name string, other ref.UserID) (Room, error) {
	joined, err := s.matrix.JoinRoom(ctx, roomID)
	if err != nil {
		return Room{}, classify("", ErrRoomFailed, "open direct room", err)
	}
	room := directRoom(joined, name, s.userID, other)
	s.addRoom(room)
	s.logger.Info("direct room joined", "room_id", room.ID, "peer", other)
	return room.clone(), nil
}

func directRoom(roomID ref.RoomID, name string, a, b ref.UserID) Room {
	members := []ref.UserID{a, b}
	sortUserIDs(members)
	return Room{ID: roomID, Name: name, Private: true, MemberIDs: members}
}

// Subscribe opens the live feed for roomID, replacing any previous
// one. See Subscriptions.Subscribe.
func (s *Session) Subscribe(ctx context.Context, roomID ref.RoomID, messageLimit int, listener Listener) (*Subscription, error) {
	if err := s.checkConnected(); err != nil {
		return nil, classify(failure.SubscriptionError, ErrSubscribeFailed, "subscribe", err)
	}
	return s.subscriptions.Subscribe(ctx, roomID, messageLimit, listener)
}

// Unsubscribe closes the active feed, if any.
func (s *Session) Unsubscribe() { s.subscriptions.Unsubscribe() }

// ActiveSubscription returns the active feed, or nil.
func (s *Session) ActiveSubscription() *Subscription { return s.subscriptions.Active() }

// Close stops the active subscription and zeroes the access token.
// Later operations fail with ErrNotConnected. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.connected = false
	s.rooms = nil
	s.mu.Unlock()

	s.subscriptions.Close()
	if err := s.matrix.Close(); err != nil {
		return fmt.Errorf("chat: closing session: %w", err)
	}
	s.logger.Info("chat session closed", "user_id", s.userID)
	return nil
}

// Logout invalidates the access token on the homeserver, when the
// underlying session supports it, and then closes the session.
func (s *Session) Logout(ctx context.Context) error {
	var logoutErr error
	if s.Connected() {
		if logouter, ok := s.matrix.(interface{ Logout(context.Context) error }); ok {
			s.subscriptions.Close()
			if err := logouter.Logout(ctx); err != nil {
				logoutErr = fmt.Errorf("chat: logout: %w", err)
				s.logger.Warn("logout request failed", "user_id", s.userID, "error", err)
			}
		}
	}
	return errors.Join(logoutErr, s.Close())
}
