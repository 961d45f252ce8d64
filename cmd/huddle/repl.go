// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/huddlechat/huddle/chat"
	"github.com/huddlechat/huddle/lib/config"
	"github.com/huddlechat/huddle/lib/failure"
	"github.com/huddlechat/huddle/lib/ref"
	"github.com/huddlechat/huddle/pipeline"
	"github.com/huddlechat/huddle/view"
)

const commandHelp = `  /rooms              list joined rooms
  /join <room>        switch to a room by name or ID
  /history [n]        show up to n earlier messages
  /users              list directory users
  /dm <user>          open a direct room with a directory user
  /refresh            reload the room list
  /logout             sign out and exit
  /quit               exit
  //text              send text starting with a slash
  anything else is sent to the current room
`

// command is one parsed input line. A line that is not a command has
// an empty name and carries the message text in arg.
type command struct {
	name string
	arg  string
}

func parseLine(line string) command {
	trimmed := strings.TrimSpace(line)
	if strings.HasPrefix(trimmed, "//") {
		return command{arg: trimmed[1:]}
	}
	if !strings.HasPrefix(trimmed, "/") {
		return command{arg: line}
	}
	name, arg, _ := strings.Cut(trimmed[1:], " ")
	return command{name: strings.ToLower(name), arg: strings.TrimSpace(arg)}
}

type clientConfig struct {
	output   io.Writer
	renderer *view.Renderer

	// result is the completed sign-in the client starts from.
	result *pipeline.Result
	// inbox receives subscription events; its deliver method is the
	// listener for every subscription the client opens.
	inbox  *inbox

	historyLimit int
	messageLimit int
	timeouts     config.StageTimeouts

	// logout signs out of every service and tears the session down.
	logout func(context.Context) error
	logger *slog.Logger
}

// client is the interactive loop. All of its state is owned by the
// goroutine running run.
type client struct {
	output   io.Writer
	renderer *view.Renderer
	session  *chat.Session
	self     ref.UserID

	rooms    *view.RoomList
	messages *view.MessageList
	users    *view.UserList

	inbox *inbox

	historyLimit int
	messageLimit int
	timeouts     config.StageTimeouts
	logout       func(context.Context) error
	logger       *slog.Logger
}

func newClient(cfg clientConfig) *client {
	result := cfg.result
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}
	c := &client{
		output:       cfg.output,
		renderer:     cfg.renderer,
		session:      result.Session,
		self:         result.Session.UserID(),
		messages:     view.NewMessageList(),
		users:        view.NewUserList(result.Identity.ID, result.Identity.Email),
		inbox:        cfg.inbox,
		historyLimit: cfg.historyLimit,
		messageLimit: cfg.messageLimit,
		timeouts:     cfg.timeouts,
		logout:       cfg.logout,
		logger:       logger,
	}
	if c.historyLimit <= 0 {
		c.historyLimit = chat.DefaultHistoryLimit
	}
	c.rooms = view.NewRoomList(c.self)
	c.rooms.Set(result.Rooms)

	c.users.Set(result.Users)
	for _, notice := range result.Notices {
		if failure.Is(notice, failure.DirectoryFailed) {
			c.users.SetError(notice)
		}
	}

	if result.DefaultRoom != nil {
		var generation uint64
		if result.Subscription != nil {
			generation = result.Subscription.Generation()
		}
		c.messages.Reset(result.DefaultRoom.ID, generation)
		c.messages.Append(result.History...)
	}
	return c
}

// run prints the initial state and then serves input lines and
// subscription events until input ends, ctx is cancelled, or the user
// quits.
func (c *client) run(ctx context.Context, input io.Reader) error {
	lines := make(chan string)
	readDone := make(chan error, 1)
	go func() {
		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		readDone <- scanner.Err()
	}()

	c.printf("signed in as %s", c.self)
	c.print(c.renderer.Rooms(c.rooms, c.messages.RoomID())...)
	c.print(c.renderer.Messages(c.messages, c.self)...)
	if notice := c.users.Notice(); notice != "" {
		c.print(c.renderer.Notice(notice))
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.inbox.Ready():
			for _, event := range c.inbox.drain() {
				c.handleEvent(event)
			}
		case line := <-lines:
			quit, err := c.handle(ctx, line)
			if quit || err != nil {
				return err
			}
		case err := <-readDone:
			return err
		}
	}
}

func (c *client) handleEvent(event chat.Event) {
	if !c.messages.Apply(event) {
		return
	}
	switch event.Kind {
	case chat.NewMessage:
		c.print(c.renderer.Message(event.Message, c.self))
	case chat.SubscriptionError:
		c.print(c.renderer.Notice("live updates stopped: " + c.messages.Notice()))
	}
}

// handle runs one input line. quit is true when the loop should end.
func (c *client) handle(ctx context.Context, line string) (quit bool, err error) {
	cmd := parseLine(line)
	switch cmd.name {
	case "":
		c.send(ctx, cmd.arg)
	case "help":
		fmt.Fprint(c.output, commandHelp)
	case "rooms":
		c.print(c.renderer.Rooms(c.rooms, c.messages.RoomID())...)
	case "join":
		if cmd.arg == "" {
			c.notice("usage: /join <room>")
			return false, nil
		}
		room, ok := c.session.FindRoom(cmd.arg)
		if !ok {
			c.notice(fmt.Sprintf("no joined room matches %q", cmd.arg))
			return false, nil
		}
		c.switchRoom(ctx, room)
	case "history":
		limit := c.historyLimit
		if cmd.arg != "" {
			n, err := strconv.Atoi(cmd.arg)
			if err != nil || n <= 0 {
				c.notice("usage: /history [n]")
				return false, nil
			}
			limit = n
		}
		c.loadHistory(ctx, limit)
		c.print(c.renderer.Messages(c.messages, c.self)...)
	case "users":
		c.print(c.renderer.Users(c.users)...)
	case "dm":
		c.openDirect(ctx, cmd.arg)
	case "refresh":
		refreshCtx, cancel := withTimeout(ctx, c.timeouts.Connect)
		err := c.session.RefreshRooms(refreshCtx)
		cancel()
		if err != nil {
			c.failed(err)
			return false, nil
		}
		c.rooms.Set(c.session.Rooms())
		c.print(c.renderer.Rooms(c.rooms, c.messages.RoomID())...)
	case "logout":
		if c.logout == nil {
			return true, nil
		}
		if err := c.logout(ctx); err != nil {
			return true, fmt.Errorf("logout: %w", err)
		}
		c.notice("signed out")
		return true, nil
	case "quit", "exit":
		return true, nil
	default:
		c.notice(fmt.Sprintf("unknown command /%s (try /help)", cmd.name))
	}
	return false, nil
}

func (c *client) send(ctx context.Context, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	roomID := c.messages.RoomID()
	if roomID.IsZero() {
		c.notice("no room selected; use /join <room>")
		return
	}
	sendCtx, cancel := withTimeout(ctx, c.timeouts.Fetch)
	defer cancel()
	if _, err := c.session.SendMessage(sendCtx, roomID, text); err != nil {
		c.failed(err)
	}
}

// switchRoom subscribes to room and reloads its history. The list takes
// the new subscription's generation so late events from the previous
// room are dropped.
func (c *client) switchRoom(ctx context.Context, room chat.Room) {
	subscribeCtx, cancel := withTimeout(ctx, c.timeouts.Subscribe)
	subscription, err := c.session.Subscribe(subscribeCtx, room.ID, c.messageLimit, c.inbox.deliver)
	cancel()

	var generation uint64
	if err != nil {
		c.failed(err)
	} else {
		generation = subscription.Generation()
	}
	c.messages.Reset(room.ID, generation)
	c.loadHistory(ctx, c.historyLimit)
	c.print(c.renderer.Messages(c.messages, c.self)...)
}

func (c *client) loadHistory(ctx context.Context, limit int) {
	roomID := c.messages.RoomID()
	if roomID.IsZero() {
		c.notice("no room selected; use /join <room>")
		return
	}
	fetchCtx, cancel := withTimeout(ctx, c.timeouts.Fetch)
	defer cancel()
	history, err := c.session.FetchMessages(fetchCtx, roomID, chat.OlderFirst, limit)
	if err != nil {
		c.failed(err)
		return
	}
	c.messages.Append(history...)
}

func (c *client) openDirect(ctx context.Context, query string) {
	if query == "" {
		c.notice("usage: /dm <user>")
		return
	}
	user, ok := c.users.Find(query)
	if !ok {
		c.notice(fmt.Sprintf("no directory user matches %q", query))
		return
	}
	peer, err := user.UserID(c.self.Server())
	if err != nil {
		c.failed(err)
		return
	}
	openCtx, cancel := withTimeout(ctx, c.timeouts.Connect)
	room, err := c.session.OpenDirectRoom(openCtx, peer)
	cancel()
	if err != nil {
		c.failed(err)
		return
	}
	c.rooms.Set(c.session.Rooms())
	c.switchRoom(ctx, room)
}

func (c *client) failed(err error) {
	c.logger.Debug("command failed", "error", err)
	c.notice(failure.Notice(err))
}

func (c *client) notice(text string) {
	c.print(c.renderer.Notice(text))
}

func (c *client) printf(format string, args ...any) {
	c.print(c.renderer.Notice(fmt.Sprintf(format, args...)))
}

func (c *client) print(lines ...string) {
	for _, line := range lines {
		fmt.Fprintln(c.output, line)
	}
}

// withTimeout bounds ctx by timeout; zero or less leaves it unbounded.
func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}
