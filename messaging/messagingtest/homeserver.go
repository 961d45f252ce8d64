// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package messagingtest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/huddlechat/huddle/lib/ref"
	"github.com/huddlechat/huddle/messaging"
)

// Endpoint names accepted by Fail and Calls.
const (
	EndpointToken        = "token"
	EndpointWhoAmI       = "whoami"
	EndpointSync         = "sync"
	EndpointMessages     = "messages"
	EndpointSend         = "send"
	EndpointCreateRoom   = "createRoom"
	EndpointJoin         = "join"
	EndpointResolveAlias = "directory"
)

// baseTimestamp anchors origin_server_ts; each stream position adds
// one second.
const baseTimestamp int64 = 1_767_225_600_000

// defaultTimelineLimit applies when a sync filter sets no limit.
const defaultTimelineLimit = 10

// Fault describes one injected failure. At most one of the fields
// should be set. The zero Fault lets its request through, so a queue
// can target a later call to the same endpoint.
type Fault struct {
	// Status and Code produce a Matrix error response. Status without
	// Code produces a plain-text body, as a failing proxy would; clients
	// see that as a transport-level failure rather than a Matrix error.
	Status int
	Code   string
	// Drop closes the connection without a response, which the client
	// sees as a transport error.
	Drop bool
	// Stall holds the request until the client cancels it.
	Stall bool
}

type room struct {
	id       ref.RoomID
	name     string
	public   bool
	alias    ref.RoomAlias
	members  map[ref.UserID]string
	timeline []messaging.Event
}

type streamEntry struct {
	position int
	roomID   ref.RoomID
	event    messaging.Event
}

// Homeserver is an in-memory Matrix homeserver backed by httptest.
// All methods are safe for concurrent use.
type Homeserver struct {
	serverName string
	server     *httptest.Server

	mu           sync.Mutex
	tokens       map[string]ref.UserID
	emails       map[string]string
	rooms        map[ref.RoomID]*room
	aliases      map[string]ref.RoomID
	stream       []streamEntry
	position     int
	roomCounter  int
	transactions map[string]ref.EventID
	faults       map[string][]Fault
	calls        map[string]int
	wake         chan struct{}
	done         chan struct{}
}

// New starts a homeserver for serverName. It is closed when the test
// ends.
func New(t testing.TB, serverName string) *Homeserver {
	t.Helper()
	h := &Homeserver{
		serverName:   serverName,
		tokens:       make(map[string]ref.UserID),
		emails:       make(map[string]string),
		rooms:        make(map[ref.RoomID]*room),
		aliases:      make(map[string]ref.RoomID),
		transactions: make(map[string]ref.EventID),
		faults:       make(map[string][]Fault),
		calls:        make(map[string]int),
		wake:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	h.server = httptest.NewServer(h.handler())
	t.Cleanup(func() {
		// Release held long-polls and stalls so Close does not wait on them.
		close(h.done)
		h.server.Close()
	})
	return h
}

// URL returns the homeserver base URL.
func (h *Homeserver) URL() string { return h.server.URL }

// TokenURL returns the token provider endpoint.
func (h *Homeserver) TokenURL() string { return h.server.URL + "/token" }

// ServerName returns the Matrix server name used in IDs.
func (h *Homeserver) ServerName() string { return h.serverName }

// AddUser registers a user. The token provider issues token for email,
// and token authenticates as the user.
func (h *Homeserver) AddUser(localpart, email, token string) ref.UserID {
	userID := ref.MustParseUserID("@" + localpart + ":" + h.serverName)
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tokens[token] = userID
	if email != "" {
		h.emails[email] = token
	}
	return userID
}

// AddRoom creates a room with ID !localpart:server. Members are joined.
func (h *Homeserver) AddRoom(localpart, name string, public bool, members ...ref.UserID) ref.RoomID {
	roomID := ref.MustParseRoomID("!" + localpart + ":" + h.serverName)
	h.mu.Lock()
	defer h.mu.Unlock()
	r := &room{id: roomID, name: name, public: public, members: make(map[ref.UserID]string)}
	for _, member := range members {
		r.members[member] = "join"
	}
	h.rooms[roomID] = r
	return roomID
}

// SetAlias points alias at roomID and records it as the room's
// canonical alias.
func (h *Homeserver) SetAlias(alias ref.RoomAlias, roomID ref.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.aliases[alias.String()] = roomID
	if r, ok := h.rooms[roomID]; ok {
		r.alias = alias
	}
}

// Post appends a text message from sender to roomID and wakes pending
// long-polls.
func (h *Homeserver) Post(roomID ref.RoomID, sender ref.UserID, body string) ref.EventID {
	h.mu.Lock()
	defer h.mu.Unlock()
	event := h.appendLocked(roomID, sender, ref.EventTypeMessage, map[string]any{
		"msgtype": "m.text",
		"body":    body,
	})
	return event.EventID
}

// Messages returns roomID's timeline, oldest first.
func (h *Homeserver) Messages(roomID ref.RoomID) []messaging.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[roomID]
	if !ok {
		return nil
	}
	return slices.Clone(r.timeline)
}

// Membership returns userID's membership in roomID ("" when none).
func (h *Homeserver) Membership(roomID ref.RoomID, userID ref.UserID) string {
	h.mu.Lock()
	defer h.mu.Unlock()
	if r, ok := h.rooms[roomID]; ok {
		return r.members[userID]
	}
	return ""
}

// RoomCount returns the number of rooms on the server.
func (h *Homeserver) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// ResolveAlias returns the room an alias points to.
func (h *Homeserver) ResolveAlias(alias ref.RoomAlias) (ref.RoomID, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	roomID, ok := h.aliases[alias.String()]
	return roomID, ok
}

// Fail queues faults for endpoint. Each request to the endpoint
// consumes one fault until the queue is empty.
func (h *Homeserver) Fail(endpoint string, faults ...Fault) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.faults[endpoint] = append(h.faults[endpoint], faults...)
}

// Calls returns how many requests endpoint has received.
func (h *Homeserver) Calls(endpoint string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[endpoint]
}

// appendLocked records an event in the room timeline and the global
// stream. Callers hold h.mu.
func (h *Homeserver) appendLocked(roomID ref.RoomID, sender ref.UserID, eventType ref.EventType, content map[string]any) messaging.Event {
	h.position++
	event := messaging.Event{
		EventID:        ref.MustParseEventID(fmt.Sprintf("$e%d", h.position)),
		Type:           eventType,
		Sender:         sender,
		OriginServerTS: baseTimestamp + int64(h.position)*1000,
		Content:        content,
	}
	if r, ok := h.rooms[roomID]; ok {
		r.timeline = append(r.timeline, event)
	}
	h.stream = append(h.stream, streamEntry{position: h.position, roomID: roomID, event: event})
	close(h.wake)
	h.wake = make(chan struct{})
	return event
}

// take records a call to endpoint and pops its next fault.
func (h *Homeserver) take(endpoint string) (Fault, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls[endpoint]++
	queue := h.faults[endpoint]
	if len(queue) == 0 {
		return Fault{}, false
	}
	h.faults[endpoint] = queue[1:]
	return queue[0], true
}

// inject applies a queued fault. It reports whether the response has
// been handled.
func (h *Homeserver) inject(w http.ResponseWriter, r *http.Request, endpoint string) bool {
	fault, ok := h.take(endpoint)
	if !ok || fault == (Fault{}) {
		return false
	}
	switch {
	case fault.Stall:
		select {
		case <-r.Context().Done():
		case <-h.done:
		}
	case fault.Drop:
		hijacker, ok := w.(http.Hijacker)
		if !ok {
			http.Error(w, "hijack unsupported", http.StatusInternalServerError)
			return true
		}
		conn, _, err := hijacker.Hijack()
		if err == nil {
			conn.Close()
		}
	case fault.Code == "":
		http.Error(w, "injected fault", fault.Status)
	default:
		writeError(w, fault.Status, fault.Code, "injected fault")
	}
	return true
}

func (h *Homeserver) authenticate(w http.ResponseWriter, r *http.Request) (ref.UserID, bool) {
	token, found := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !found || token == "" {
		writeError(w, http.StatusUnauthorized, messaging.ErrCodeMissingToken, "missing access token")
		return ref.UserID{}, false
	}
	h.mu.Lock()
	userID, ok := h.tokens[token]
	h.mu.Unlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, messaging.ErrCodeUnknownToken, "unknown access token")
		return ref.UserID{}, false
	}
	return userID, true
}

// handler routes requests. Paths are split on the raw (still escaped)
// path so encoded room IDs and aliases survive intact.
func (h *Homeserver) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rawPath := r.URL.RawPath
		if rawPath == "" {
			rawPath = r.URL.Path
		}

		if rawPath == "/token" && r.Method == http.MethodPost {
			if h.inject(w, r, EndpointToken) {
				return
			}
			h.handleToken(w, r)
			return
		}

		const clientPrefix = "/_matrix/client/v3/"
		if !strings.HasPrefix(rawPath, clientPrefix) {
			http.NotFound(w, r)
			return
		}
		rest := rawPath[len(clientPrefix):]

		endpoint := endpointFor(rest)
		if endpoint != "" && h.inject(w, r, endpoint) {
			return
		}

		userID, ok := h.authenticate(w, r)
		if !ok {
			return
		}

		switch {
		case rest == "account/whoami" && r.Method == http.MethodGet:
			writeJSON(w, messaging.WhoAmIResponse{UserID: userID})
		case rest == "sync" && r.Method == http.MethodGet:
			h.handleSync(w, r, userID)
		case rest == "createRoom" && r.Method == http.MethodPost:
			h.handleCreateRoom(w, r, userID)
		case rest == "logout" && r.Method == http.MethodPost:
			h.handleLogout(w, r)
		case strings.HasPrefix(rest, "join/") && r.Method == http.MethodPost:
			roomID, err := ref.ParseRoomID(unescape(rest[len("join/"):]))
			if err != nil {
				writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, err.Error())
				return
			}
			h.handleJoin(w, userID, roomID)
		case strings.HasPrefix(rest, "directory/room/") && r.Method == http.MethodGet:
			h.handleResolveAlias(w, unescape(rest[len("directory/room/"):]))
		case strings.HasPrefix(rest, "rooms/"):
			h.handleRoom(w, r, userID, rest[len("rooms/"):])
		default:
			http.NotFound(w, r)
		}
	})
}

func endpointFor(rest string) string {
	switch {
	case rest == "account/whoami":
		return EndpointWhoAmI
	case rest == "sync":
		return EndpointSync
	case rest == "createRoom":
		return EndpointCreateRoom
	case strings.HasPrefix(rest, "join/"):
		return EndpointJoin
	case strings.HasPrefix(rest, "directory/room/"):
		return EndpointResolveAlias
	case strings.HasPrefix(rest, "rooms/"):
		segments := strings.SplitN(rest[len("rooms/"):], "/", 3)
		if len(segments) < 2 {
			return ""
		}
		switch segments[1] {
		case "messages":
			return EndpointMessages
		case "send":
			return EndpointSend
		}
	}
	return ""
}

func (h *Homeserver) handleRoom(w http.ResponseWriter, r *http.Request, userID ref.UserID, rest string) {
	segments := strings.SplitN(rest, "/", 2)
	if len(segments) < 2 {
		http.NotFound(w, r)
		return
	}
	roomID, err := ref.ParseRoomID(unescape(segments[0]))
	if err != nil {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, err.Error())
		return
	}
	action := segments[1]

	switch {
	case action == "messages" && r.Method == http.MethodGet:
		h.handleMessages(w, r, userID, roomID)
	case strings.HasPrefix(action, "send/") && r.Method == http.MethodPut:
		parts := strings.SplitN(action[len("send/"):], "/", 2)
		if len(parts) != 2 {
			http.NotFound(w, r)
			return
		}
		h.handleSend(w, r, userID, roomID, ref.EventType(unescape(parts[0])), unescape(parts[1]))
	default:
		http.NotFound(w, r)
	}
}

func (h *Homeserver) handleToken(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if r.PostForm.Get("grant_type") != "client_credentials" {
		writeJSONStatus(w, http.StatusBadRequest, map[string]string{"error": "unsupported_grant_type"})
		return
	}
	email := r.PostForm.Get("user_id")
	h.mu.Lock()
	token, ok := h.emails[email]
	userID := h.tokens[token]
	h.mu.Unlock()
	if !ok {
		writeJSONStatus(w, http.StatusForbidden, map[string]string{"error": "unknown user"})
		return
	}
	writeJSON(w, map[string]any{
		"access_token": token,
		"user_id":      userID.String(),
		"expires_in":   3600,
	})
}

type syncFilter struct {
	Room struct {
		Rooms    []string `json:"rooms"`
		Timeline struct {
			Limit int      `json:"limit"`
			Types []string `json:"types"`
		} `json:"timeline"`
		State *struct {
			Types []string `json:"types"`
		} `json:"state"`
	} `json:"room"`
}

func (f *syncFilter) includesRoom(roomID ref.RoomID) bool {
	return f.Room.Rooms == nil || slices.Contains(f.Room.Rooms, roomID.String())
}

func (f *syncFilter) includesType(eventType ref.EventType) bool {
	return len(f.Room.Timeline.Types) == 0 || slices.Contains(f.Room.Timeline.Types, eventType.String())
}

func (f *syncFilter) excludesState() bool {
	return f.Room.State != nil && f.Room.State.Types != nil && len(f.Room.State.Types) == 0
}

func (f *syncFilter) timelineLimit() int {
	if f.Room.Timeline.Limit > 0 {
		return f.Room.Timeline.Limit
	}
	return defaultTimelineLimit
}

// handleSync serves initial syncs (full state plus the last timeline
// window of each joined room) and incremental long-polls that return
// as soon as a matching event arrives after since.
func (h *Homeserver) handleSync(w http.ResponseWriter, r *http.Request, userID ref.UserID) {
	query := r.URL.Query()
	var filter syncFilter
	if raw := query.Get("filter"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &filter); err != nil {
			writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, "bad filter: "+err.Error())
			return
		}
	}
	timeoutMS, _ := strconv.Atoi(query.Get("timeout"))

	since := query.Get("since")
	if since == "" {
		h.mu.Lock()
		response := h.initialSyncLocked(userID, &filter)
		h.mu.Unlock()
		writeJSON(w, response)
		return
	}

	sincePosition, err := strconv.Atoi(strings.TrimPrefix(since, "s"))
	if err != nil {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, "bad since token")
		return
	}

	deadline := time.NewTimer(time.Duration(timeoutMS) * time.Millisecond)
	defer deadline.Stop()
	for {
		h.mu.Lock()
		response, found := h.incrementalSyncLocked(userID, &filter, sincePosition)
		wake := h.wake
		h.mu.Unlock()
		if found || timeoutMS <= 0 {
			writeJSON(w, response)
			return
		}
		select {
		case <-wake:
		case <-deadline.C:
			timeoutMS = 0
		case <-r.Context().Done():
			return
		case <-h.done:
			return
		}
	}
}

func (h *Homeserver) initialSyncLocked(userID ref.UserID, filter *syncFilter) messaging.SyncResponse {
	response := messaging.SyncResponse{
		NextBatch: "s" + strconv.Itoa(h.position),
		Rooms: messaging.RoomsSection{
			Join:   make(map[ref.RoomID]messaging.JoinedRoom),
			Invite: make(map[ref.RoomID]messaging.InvitedRoom),
		},
	}
	for roomID, r := range h.rooms {
		if !filter.includesRoom(roomID) {
			continue
		}
		switch r.members[userID] {
		case "join":
			joined := messaging.JoinedRoom{}
			if !filter.excludesState() {
				joined.State.Events = r.stateEvents()
			}
			var timeline []messaging.Event
			for _, event := range r.timeline {
				if filter.includesType(event.Type) {
					timeline = append(timeline, event)
				}
			}
			if limit := filter.timelineLimit(); len(timeline) > limit {
				timeline = timeline[len(timeline)-limit:]
				joined.Timeline.Limited = true
			}
			joined.Timeline.Events = timeline
			response.Rooms.Join[roomID] = joined
		case "invite":
			response.Rooms.Invite[roomID] = messaging.InvitedRoom{
				InviteState: messaging.StateSection{Events: r.stateEvents()},
			}
		}
	}
	return response
}

func (h *Homeserver) incrementalSyncLocked(userID ref.UserID, filter *syncFilter, since int) (messaging.SyncResponse, bool) {
	response := messaging.SyncResponse{
		NextBatch: "s" + strconv.Itoa(h.position),
		Rooms: messaging.RoomsSection{
			Join: make(map[ref.RoomID]messaging.JoinedRoom),
		},
	}
	found := false
	for _, entry := range h.stream {
		if entry.position <= since || !filter.includesRoom(entry.roomID) || !filter.includesType(entry.event.Type) {
			continue
		}
		r, ok := h.rooms[entry.roomID]
		if !ok || r.members[userID] != "join" {
			continue
		}
		joined := response.Rooms.Join[entry.roomID]
		joined.Timeline.Events = append(joined.Timeline.Events, entry.event)
		response.Rooms.Join[entry.roomID] = joined
		found = true
	}
	return response, found
}

func (r *room) stateEvents() []messaging.Event {
	state := func(eventType ref.EventType, stateKey string, content map[string]any) messaging.Event {
		key := stateKey
		return messaging.Event{Type: eventType, StateKey: &key, Content: content}
	}
	joinRule := "invite"
	if r.public {
		joinRule = "public"
	}
	events := []messaging.Event{
		state(ref.EventTypeJoinRules, "", map[string]any{"join_rule": joinRule}),
	}
	if r.name != "" {
		events = append(events, state(ref.EventTypeRoomName, "", map[string]any{"name": r.name}))
	}
	if !r.alias.IsZero() {
		events = append(events, state(ref.EventTypeCanonicalAlias, "", map[string]any{"alias": r.alias.String()}))
	}
	members := make([]ref.UserID, 0, len(r.members))
	for member := range r.members {
		members = append(members, member)
	}
	slices.SortFunc(members, func(a, b ref.UserID) int { return strings.Compare(a.String(), b.String()) })
	for _, member := range members {
		events = append(events, state(ref.EventTypeMember, member.String(), map[string]any{"membership": r.members[member]}))
	}
	return events
}

func (h *Homeserver) handleMessages(w http.ResponseWriter, r *http.Request, userID ref.UserID, roomID ref.RoomID) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	if limit <= 0 {
		limit = defaultTimelineLimit
	}

	h.mu.Lock()
	rm, ok := h.rooms[roomID]
	var timeline []messaging.Event
	var joined bool
	if ok {
		timeline = slices.Clone(rm.timeline)
		joined = rm.members[userID] == "join"
	}
	h.mu.Unlock()

	if !ok {
		writeError(w, http.StatusNotFound, messaging.ErrCodeNotFound, "unknown room")
		return
	}
	if !joined {
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "not a member of the room")
		return
	}

	var chunk []messaging.Event
	if query.Get("dir") == messaging.DirectionForward {
		chunk = timeline[:min(limit, len(timeline))]
	} else {
		slices.Reverse(timeline)
		chunk = timeline[:min(limit, len(timeline))]
	}
	writeJSON(w, messaging.RoomMessagesResponse{Start: "t0", End: "t" + strconv.Itoa(len(chunk)), Chunk: chunk})
}

func (h *Homeserver) handleSend(w http.ResponseWriter, r *http.Request, userID ref.UserID, roomID ref.RoomID, eventType ref.EventType, transactionID string) {
	var content map[string]any
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, "bad content")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[roomID]
	if !ok {
		writeError(w, http.StatusNotFound, messaging.ErrCodeNotFound, "unknown room")
		return
	}
	if rm.members[userID] != "join" {
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "not a member of the room")
		return
	}
	key := userID.String() + "\x00" + transactionID
	if eventID, seen := h.transactions[key]; seen {
		writeJSON(w, messaging.SendEventResponse{EventID: eventID})
		return
	}
	event := h.appendLocked(roomID, userID, eventType, content)
	h.transactions[key] = event.EventID
	writeJSON(w, messaging.SendEventResponse{EventID: event.EventID})
}

func (h *Homeserver) handleCreateRoom(w http.ResponseWriter, r *http.Request, userID ref.UserID) {
	var request messaging.CreateRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, "bad request")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var alias ref.RoomAlias
	if request.Alias != "" {
		var err error
		alias, err = ref.NewRoomAlias(request.Alias, h.serverName)
		if err != nil {
			writeError(w, http.StatusBadRequest, messaging.ErrCodeInvalidParam, err.Error())
			return
		}
		if _, taken := h.aliases[alias.String()]; taken {
			writeError(w, http.StatusBadRequest, messaging.ErrCodeRoomInUse, "room alias already taken")
			return
		}
	}

	h.roomCounter++
	roomID := ref.MustParseRoomID(fmt.Sprintf("!room%d:%s", h.roomCounter, h.serverName))
	rm := &room{
		id:      roomID,
		name:    request.Name,
		public:  request.Preset == messaging.PresetPublicChat,
		alias:   alias,
		members: map[ref.UserID]string{userID: "join"},
	}
	for _, invitee := range request.Invite {
		if parsed, err := ref.ParseUserID(invitee); err == nil && parsed != userID {
			rm.members[parsed] = "invite"
		}
	}
	h.rooms[roomID] = rm
	if !alias.IsZero() {
		h.aliases[alias.String()] = roomID
	}
	writeJSON(w, messaging.CreateRoomResponse{RoomID: roomID})
}

func (h *Homeserver) handleJoin(w http.ResponseWriter, userID ref.UserID, roomID ref.RoomID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	rm, ok := h.rooms[roomID]
	if !ok {
		writeError(w, http.StatusNotFound, messaging.ErrCodeNotFound, "unknown room")
		return
	}
	if !rm.public && rm.members[userID] == "" {
		writeError(w, http.StatusForbidden, messaging.ErrCodeForbidden, "room is invite-only")
		return
	}
	rm.members[userID] = "join"
	writeJSON(w, map[string]string{"room_id": roomID.String()})
}

func (h *Homeserver) handleResolveAlias(w http.ResponseWriter, alias string) {
	h.mu.Lock()
	roomID, ok := h.aliases[alias]
	h.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, messaging.ErrCodeNotFound, fmt.Sprintf("room alias %q not found", alias))
		return
	}
	writeJSON(w, messaging.ResolveAliasResponse{RoomID: roomID, Servers: []string{h.serverName}})
}

func (h *Homeserver) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	h.mu.Lock()
	delete(h.tokens, token)
	h.mu.Unlock()
	writeJSON(w, map[string]any{})
}

func unescape(segment string) string {
	decoded, err := url.PathUnescape(segment)
	if err != nil {
		return segment
	}
	return decoded
}

func writeJSON(w http.ResponseWriter, value any) {
	writeJSONStatus(w, http.StatusOK, value)
}

func writeJSONStatus(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSONStatus(w, status, map[string]string{
		"errcode": code,
		"error":   message,
	})
}
