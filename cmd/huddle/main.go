// Copyright 2026 The Huddle Authors
// SPDX-License-Identifier: Apache-2.0

// huddle is a terminal chat client. It signs in with an identity
// provider credential, connects to the chat homeserver, opens the
// default room, and then reads commands and messages from stdin.
//
// Usage:
//
//	huddle --config huddle.yaml [--credential-file path|-]
//
// Without --credential-file the credential is prompted for on the
// terminal, or read from the first line of stdin when stdin is not a
// terminal.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/huddlechat/huddle/chat"
	"github.com/huddlechat/huddle/lib/config"
	"github.com/huddlechat/huddle/lib/directory"
	"github.com/huddlechat/huddle/lib/identity"
	"github.com/huddlechat/huddle/lib/metrics"
	"github.com/huddlechat/huddle/lib/netutil"
	"github.com/huddlechat/huddle/lib/secret"
	"github.com/huddlechat/huddle/lib/version"
	"github.com/huddlechat/huddle/pipeline"
	"github.com/huddlechat/huddle/session"
	"github.com/huddlechat/huddle/view"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath     string
		credentialPath string
		logLevel       string
		showVersion    bool
	)

	flagSet := pflag.NewFlagSet("huddle", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to the config file (default: $"+config.EnvironmentVariable+")")
	flagSet.StringVar(&credentialPath, "credential-file", "", "read the identity credential from this file, or - for stdin")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn, or error (overrides log.level)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		version.Print(os.Stdout, "huddle")
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration:\n%w", err)
	}
	timeouts, err := cfg.StageTimeouts()
	if err != nil {
		return err
	}

	level, err := parseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := newLogger(level)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	collectors := metrics.New()
	if cfg.Metrics.Listen != "" {
		shutdown, err := serveMetrics(cfg.Metrics.Listen, collectors, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	stdin := bufio.NewReader(os.Stdin)
	credential, err := readCredential(credentialPath, stdin)
	if err != nil {
		return err
	}
	defer credential.Close()

	httpClient := netutil.NewHTTPClient(0)
	resolver, err := identity.NewResolver(identity.Config{
		IssuerURL:     cfg.Identity.IssuerURL,
		ManagementURL: cfg.Identity.ManagementURL,
		HTTPClient:    httpClient,
		Logger:        logger,
	})
	if err != nil {
		return err
	}
	directoryClient, err := directory.NewClient(directory.Config{
		URL:        cfg.Directory.URL,
		HTTPClient: httpClient,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	events := newInbox()

	sessionContext := session.New(logger)
	// Signing out zeroes the credential this process was started with.
	sessionContext.SetLogoutHook(credential.Close)

	runner, err := pipeline.New(pipeline.Config{
		Resolver: resolver,
		Connect: pipeline.Connector(chat.Config{
			HomeserverURL:    cfg.Chat.HomeserverURL,
			TokenProviderURL: cfg.Chat.TokenProviderURL,
			HistoryLimit:     cfg.Chat.HistoryLimit,
			SendRate:         cfg.Chat.SendRate,
			SendBurst:        cfg.Chat.SendBurst,
			SyncRetries:      cfg.Chat.SyncRetries,
			HTTPClient:       httpClient,
			Logger:           logger,
			Metrics:          collectors,
		}),
		Directory:    directoryClient,
		Session:      sessionContext,
		DefaultRoom:  cfg.Chat.DefaultRoom,
		HistoryLimit: cfg.Chat.HistoryLimit,
		MessageLimit: cfg.Chat.MessageLimit,
		Timeouts:     timeouts,
		Listener:     events.deliver,
		Logger:       logger,
		Metrics:      collectors,
	})
	if err != nil {
		return err
	}
	defer sessionContext.Teardown()

	result, err := runner.Run(ctx, credential)
	if err != nil {
		return err
	}

	width := 0
	if term.IsTerminal(int(os.Stdout.Fd())) {
		if columns, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil {
			width = columns
		}
	}
	profile := termenv.NewOutput(os.Stdout).EnvColorProfile()

	client := newClient(clientConfig{
		output:       os.Stdout,
		renderer:     view.NewRenderer(os.Stdout, profile, width, view.DefaultTheme),
		result:       result,
		inbox:        events,
		historyLimit: cfg.Chat.HistoryLimit,
		messageLimit: cfg.Chat.MessageLimit,
		timeouts:     timeouts,
		logout:       runner.Logout,
		logger:       logger,
	})
	return client.run(ctx, stdin)
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// readCredential reads the identity credential from path, from stdin
// when path is "-" or stdin is not a terminal, or from a no-echo
// prompt. Only the first line of stdin is consumed; the REPL reads the
// rest from the same reader.
func readCredential(path string, stdin *bufio.Reader) (*secret.Buffer, error) {
	if path != "" && path != "-" {
		credential, err := secret.ReadFromPath(path)
		if err != nil {
			return nil, fmt.Errorf("reading credential: %w", err)
		}
		return credential, nil
	}

	fd := int(os.Stdin.Fd())
	if path == "-" || !term.IsTerminal(fd) {
		line, err := stdin.ReadBytes('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			secret.Zero(line)
			return nil, fmt.Errorf("reading credential from stdin: %w", err)
		}
		credential, err := secret.FromBytes(line)
		if err != nil {
			return nil, fmt.Errorf("reading credential from stdin: %w", err)
		}
		return credential, nil
	}

	fmt.Fprint(os.Stderr, "Credential: ")
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading credential: %w", err)
	}
	credential, err := secret.NewFromBytes(raw)
	if err != nil {
		secret.Zero(raw)
		return nil, err
	}
	return credential, nil
}

// serveMetrics exposes /metrics on address and returns a shutdown func.
func serveMetrics(address string, collectors *metrics.Metrics, logger *slog.Logger) (func(), error) {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collectors.Handler())
	server := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "address", listener.Addr().String())
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}, nil
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `huddle: terminal chat client.

Usage:
  huddle [flags]

Flags:
%s
Commands (once connected):
%s`, flagSet.FlagUsages(), commandHelp)
}
