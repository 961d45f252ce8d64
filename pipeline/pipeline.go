// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// Package pipeline runs the sign-in sequence: resolve the credential
// to an identity, connect the chat session, open the default room, and
// load the user directory alongside.
//
// Stages 1-4 are strictly sequential and each runs under its own
// timeout. The directory fetch starts with the run and never fails it:
// a directory error becomes a notice on the Result with an empty user
// list. Fetch and subscribe failures in the default room are notices
// too. Only identity resolution and chat connect fail a run.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/huddlechat/huddle/chat"
	"github.com/huddlechat/huddle/lib/clock"
	"github.com/huddlechat/huddle/lib/config"
	"github.com/huddlechat/huddle/lib/directory"
	"github.com/huddlechat/huddle/lib/failure"
	"github.com/huddlechat/huddle/lib/identity"
	"github.com/huddlechat/huddle/lib/metrics"
	"github.com/huddlechat/huddle/lib/secret"
	"github.com/huddlechat/huddle/session"
)

// ErrBusy is returned by Run while another run is in flight.
var ErrBusy = errors.New("pipeline: a run is already in progress")

// ErrDefaultRoomMissing is recorded as a notice when the connected
// user is not in the default room.
var ErrDefaultRoomMissing = errors.New("pipeline: default room not found")

// Stage names, used in logs and the stage duration metric.
const (
	StageResolve   = "resolve"
	StageConnect   = "connect"
	StageFetch     = "fetch"
	StageSubscribe = "subscribe"
	StageDirectory = "directory"
)

// Resolver turns a credential into an identity. *identity.Resolver
// implements it.
type Resolver interface {
	Resolve(ctx context.Context, credential *secret.Buffer) (identity.Identity, error)
}

// Directory lists users. *directory.Client implements it.
type Directory interface {
	ListUsers(ctx context.Context) ([]directory.User, error)
}

// ConnectFunc opens a chat session for an identity.
type ConnectFunc func(ctx context.Context, user identity.Identity) (*chat.Session, error)

// Connector returns a ConnectFunc that calls chat.Connect with config.
func Connector(config chat.Config) ConnectFunc {
	return func(ctx context.Context, user identity.Identity) (*chat.Session, error) {
		return chat.Connect(ctx, config, user)
	}
}

// Config configures a Pipeline.
type Config struct {
	Resolver  Resolver
	Connect   ConnectFunc
	Directory Directory

	// Session receives the identity and chat session. If nil, the
	// pipeline creates one; Session() returns it.
	Session *session.Context

	// DefaultRoom is the room name opened after connect. Default: General
	DefaultRoom string
	// HistoryLimit bounds the initial fetch. Default: 100
	HistoryLimit int
	// MessageLimit bounds the subscription replay. Default: 100
	MessageLimit int

	// Timeouts bound each stage. Zero fields use DefaultTimeouts.
	Timeouts config.StageTimeouts

	// Listener receives events from the default room subscription.
	Listener chat.Listener

	// Logger is used for structured logging. If nil, slog.Default() is used.
	Logger *slog.Logger
	// Metrics may be nil.
	Metrics *metrics.Metrics
	// Clock times stages. If nil, clock.Real() is used.
	Clock clock.Clock
}

// DefaultTimeouts are the stage timeouts used for zero Config fields.
func DefaultTimeouts() config.StageTimeouts {
	return config.StageTimeouts{
		Resolve:   15 * time.Second,
		Connect:   20 * time.Second,
		Fetch:     15 * time.Second,
		Subscribe: 20 * time.Second,
		Directory: 10 * time.Second,
	}
}

// Result is what a run produced. Stages that failed without failing
// the run leave their fields empty and add an entry to Notices.
type Result struct {
	RunID    string
	Identity identity.Identity
	Session  *chat.Session
	Rooms    []chat.Room

	// DefaultRoom is nil when the user is not in the default room.
	DefaultRoom  *chat.Room
	History      []chat.Message
	Subscription *chat.Subscription

	Users []directory.User

	// Notices holds the non-fatal stage failures, in stage order with
	// the directory last.
	Notices []error
}

// Partial reports whether any non-fatal stage failed.
func (r *Result) Partial() bool { return len(r.Notices) > 0 }

// Pipeline runs sign-in. Only one run may be in flight; a concurrent
// Run fails with ErrBusy instead of queueing.
type Pipeline struct {
	resolver     Resolver
	connect      ConnectFunc
	directory    Directory
	session      *session.Context
	defaultRoom  string
	historyLimit int
	messageLimit int
	timeouts     config.StageTimeouts
	listener     chat.Listener
	logger       *slog.Logger
	metrics      *metrics.Metrics
	clock        clock.Clock

	running atomic.Bool
}

// New creates a Pipeline. Resolver, Connect and Directory are required.
func New(cfg Config) (*Pipeline, error) {
	var errs []error
	if cfg.Resolver == nil {
		errs = append(errs, errors.New("pipeline: Resolver is required"))
	}
	if cfg.Connect == nil {
		errs = append(errs, errors.New("pipeline: Connect is required"))
	}
	if cfg.Directory == nil {
		errs = append(errs, errors.New("pipeline: Directory is required"))
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}
	sessionContext := cfg.Session
	if sessionContext == nil {
		sessionContext = session.New(logger)
	}
	listener := cfg.Listener
	if listener == nil {
		listener = func(chat.Event) {}
	}

	defaults := DefaultTimeouts()
	timeouts := cfg.Timeouts
	timeouts.Resolve = positiveOr(timeouts.Resolve, defaults.Resolve)
	timeouts.Connect = positiveOr(timeouts.Connect, defaults.Connect)
	timeouts.Fetch = positiveOr(timeouts.Fetch, defaults.Fetch)
	timeouts.Subscribe = positiveOr(timeouts.Subscribe, defaults.Subscribe)
	timeouts.Directory = positiveOr(timeouts.Directory, defaults.Directory)

	defaultRoom := cfg.DefaultRoom
	if defaultRoom == "" {
		defaultRoom = "General"
	}

	return &Pipeline{
		resolver:     cfg.Resolver,
		connect:      cfg.Connect,
		directory:    cfg.Directory,
		session:      sessionContext,
		defaultRoom:  defaultRoom,
		historyLimit: positiveOr(cfg.HistoryLimit, chat.DefaultHistoryLimit),
		messageLimit: positiveOr(cfg.MessageLimit, chat.DefaultHistoryLimit),
		timeouts:     timeouts,
		listener:     listener,
		logger:       logger,
		metrics:      cfg.Metrics,
		clock:        clk,
	}, nil
}

func positiveOr[T int | time.Duration](value, fallback T) T {
	if value > 0 {
		return value
	}
	return fallback
}

// Session returns the session context the pipeline publishes into.
func (p *Pipeline) Session() *session.Context { return p.session }

// Running reports whether a run is in flight.
func (p *Pipeline) Running() bool { return p.running.Load() }

// Run executes the pipeline for credential. The caller keeps ownership
// of credential. A returned error is of kind AuthFailed or
// ConnectFailed (or wraps ErrBusy or the parent context's error);
// every other failure is a notice on the Result.
func (p *Pipeline) Run(ctx context.Context, credential *secret.Buffer) (*Result, error) {
	if !p.running.CompareAndSwap(false, true) {
		p.metrics.PipelineRun(metrics.ResultBusy)
		return nil, ErrBusy
	}
	defer p.running.Store(false)

	result := &Result{RunID: uuid.NewString()}
	logger := p.logger.With("run_id", result.RunID)
	logger.Info("pipeline run started")
	runStart := p.clock.Now()

	// The directory branch needs nothing from stages 1-4, so it starts
	// now and is joined at the end.
	directoryCtx, cancelDirectory := context.WithCancel(ctx)
	defer cancelDirectory()
	var group errgroup.Group
	var users []directory.User
	var directoryErr error
	group.Go(func() error {
		users, directoryErr = p.fetchDirectory(directoryCtx, logger)
		return nil
	})
	abort := func(err error) (*Result, error) {
		cancelDirectory()
		group.Wait()
		p.metrics.PipelineRun(metrics.ResultFailure)
		logger.Warn("pipeline run failed",
			"error", err,
			"duration", clock.Since(p.clock, runStart),
		)
		return nil, err
	}

	// Stage 1: identity.
	user, err := p.resolve(ctx, credential)
	if err != nil {
		return abort(err)
	}
	result.Identity = user
	p.session.SetIdentity(user)
	logger = logger.With("user_id", user.ID)

	// Stage 2: chat connect, replacing any previous session.
	if previous := p.session.Install(nil); previous != nil {
		if err := previous.Close(); err != nil {
			logger.Warn("closing previous chat session failed", "error", err)
		}
	}
	chatSession, err := p.connectChat(ctx, user)
	if err != nil {
		// No session backs the identity published in stage 1.
		p.session.ClearIdentity()
		return abort(err)
	}
	p.session.Install(chatSession)
	result.Session = chatSession

	// Stage 3: room snapshot and default room.
	result.Rooms = chatSession.Rooms()
	if room, ok := chatSession.RoomByName(p.defaultRoom); ok {
		result.DefaultRoom = &room
		// Stage 4: history and live feed. Neither fails the run.
		history, err := p.fetchHistory(ctx, chatSession, room)
		if err != nil {
			logger.Warn("initial history fetch failed", "room_id", room.ID, "error", err)
			result.Notices = append(result.Notices, err)
		}
		result.History = history

		subscription, err := p.subscribe(ctx, chatSession, room)
		if err != nil {
			logger.Warn("default room subscription failed", "room_id", room.ID, "error", err)
			result.Notices = append(result.Notices, err)
		}
		result.Subscription = subscription
	} else {
		err := fmt.Errorf("%w: %q", ErrDefaultRoomMissing, p.defaultRoom)
		logger.Warn("default room not joined", "room", p.defaultRoom)
		result.Notices = append(result.Notices, err)
	}

	group.Wait()
	result.Users = users
	if directoryErr != nil {
		result.Notices = append(result.Notices, directoryErr)
	}

	outcome := metrics.ResultSuccess
	if result.Partial() {
		outcome = metrics.ResultPartial
	}
	p.metrics.PipelineRun(outcome)
	logger.Info("pipeline run finished",
		"result", outcome,
		"rooms", len(result.Rooms),
		"history", len(result.History),
		"users", len(result.Users),
		"notices", len(result.Notices),
		"duration", clock.Since(p.clock, runStart),
	)
	return result, nil
}

// stage runs fn under the stage timeout and records its duration.
func stage[T any](ctx context.Context, p *Pipeline, name string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	stageCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	start := p.clock.Now()
	value, err := fn(stageCtx)
	p.metrics.ObserveStage(name, clock.Since(p.clock, start))
	return value, err
}

func (p *Pipeline) resolve(ctx context.Context, credential *secret.Buffer) (identity.Identity, error) {
	user, err := stage(ctx, p, StageResolve, p.timeouts.Resolve, func(ctx context.Context) (identity.Identity, error) {
		return p.resolver.Resolve(ctx, credential)
	})
	if err != nil {
		return identity.Identity{}, ensureKind(failure.AuthFailed, "resolve identity", err)
	}
	if user.Email == "" {
		return identity.Identity{}, failure.New(failure.AuthFailed, "resolve identity",
			fmt.Errorf("%w: resolved identity has no email", identity.ErrProfileUnavailable))
	}
	return user, nil
}

func (p *Pipeline) connectChat(ctx context.Context, user identity.Identity) (*chat.Session, error) {
	chatSession, err := stage(ctx, p, StageConnect, p.timeouts.Connect, func(ctx context.Context) (*chat.Session, error) {
		return p.connect(ctx, user)
	})
	if err != nil {
		return nil, ensureKind(failure.ConnectFailed, "connect chat", err)
	}
	return chatSession, nil
}

func (p *Pipeline) fetchHistory(ctx context.Context, chatSession *chat.Session, room chat.Room) ([]chat.Message, error) {
	history, err := stage(ctx, p, StageFetch, p.timeouts.Fetch, func(ctx context.Context) ([]chat.Message, error) {
		return chatSession.FetchMessages(ctx, room.ID, chat.OlderFirst, p.historyLimit)
	})
	if err != nil {
		return nil, ensureKind(failure.FetchFailed, "fetch history", err)
	}
	return history, nil
}

func (p *Pipeline) subscribe(ctx context.Context, chatSession *chat.Session, room chat.Room) (*chat.Subscription, error) {
	subscription, err := stage(ctx, p, StageSubscribe, p.timeouts.Subscribe, func(ctx context.Context) (*chat.Subscription, error) {
		return chatSession.Subscribe(ctx, room.ID, p.messageLimit, p.listener)
	})
	if err != nil {
		return nil, ensureKind(failure.SubscriptionError, "subscribe", err)
	}
	return subscription, nil
}

// fetchDirectory never returns users and an error together. On error
// the list is empty, not nil.
func (p *Pipeline) fetchDirectory(ctx context.Context, logger *slog.Logger) ([]directory.User, error) {
	users, err := stage(ctx, p, StageDirectory, p.timeouts.Directory, p.directory.ListUsers)
	if err != nil {
		p.metrics.DirectoryFetch(metrics.ResultFailure)
		err = ensureKind(failure.DirectoryFailed, "list users", err)
		logger.Warn("directory fetch failed", "error", err)
		return []directory.User{}, err
	}
	p.metrics.DirectoryFetch(metrics.ResultSuccess)
	logger.Debug("directory loaded", "users", len(users))
	return users, nil
}

// ensureKind makes kind the outermost failure of err.
func ensureKind(kind failure.Kind, op string, err error) error {
	if outer, ok := failure.KindOf(err); ok && outer == kind {
		return err
	}
	return failure.New(kind, op, err)
}

// Logout signs the current user out: the chat token is revoked on the
// homeserver when possible, then the session context is torn down.
func (p *Pipeline) Logout(ctx context.Context) error {
	var logoutErr error
	if chatSession, ok := p.session.Chat().(*chat.Session); ok && chatSession != nil {
		logoutErr = chatSession.Logout(ctx)
	}
	return errors.Join(logoutErr, p.session.Teardown())
}
