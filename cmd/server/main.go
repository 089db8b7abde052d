package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/ccdev-ai/ccdev-backend/internal/chat"
	"github.com/ccdev-ai/ccdev-backend/internal/config"
	"github.com/ccdev-ai/ccdev-backend/internal/fs"
	"github.com/ccdev-ai/ccdev-backend/internal/historydb"
	"github.com/ccdev-ai/ccdev-backend/internal/model/anthropic"
	"github.com/ccdev-ai/ccdev-backend/internal/sandbox"
	"github.com/ccdev-ai/ccdev-backend/internal/terminal"
	"github.com/ccdev-ai/ccdev-backend/internal/tools"
)

func main() {
	app := &cli.App{
		Name:  "ccdev-server",
		Usage: "web coding assistant backend",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to TOML config file"},
			&cli.StringFlag{Name: "listen", Usage: "listen address"},
			&cli.StringFlag{Name: "workspace", Usage: "workspace root for the local sandbox"},
			&cli.StringFlag{Name: "sandbox-url", Usage: "remote sandbox sidecar URL"},
			&cli.StringFlag{Name: "sandbox-mode", Usage: "auto, remote, local or mock"},
			&cli.StringFlag{Name: "history-db", Usage: "path to the terminal history database"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return err
	}
	applyFlags(c, &cfg)

	log := newLogger(cfg.LogLevel)
	slog.SetDefault(log)

	gw, mode, err := buildGateway(cfg)
	if err != nil {
		return err
	}
	log.Info("sandbox gateway ready", "mode", mode)

	var store *historydb.Store
	if cfg.HistoryDBPath != "" {
		store, err = historydb.Open(cfg.HistoryDBPath)
		if err != nil {
			return err
		}
		defer store.Close()
		log.Info("terminal history persisted", "path", cfg.HistoryDBPath)
	}

	execTimeout := time.Duration(cfg.ExecTimeoutSeconds) * time.Second
	dispatcher := tools.NewDispatcher(gw, execTimeout)

	var loop *chat.Loop
	if cfg.AnthropicAPIKey != "" {
		provider := anthropic.New(cfg.AnthropicAPIKey)
		loop = chat.NewLoop(provider, dispatcher, chat.Options{
			Model:     cfg.Model,
			MaxTokens: cfg.MaxTokens,
			Logger:    log,
		})
	} else {
		log.Warn("no anthropic api key configured, chat endpoint disabled")
	}

	registry := terminal.NewRegistry(gw, store, cfg.HistoryLimit, log)
	server := NewServer(cfg, gw, loop, registry, log)

	httpServer := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.ListenAddr)
		errCh <- httpServer.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case sig := <-stop:
		log.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			return err
		}
	}
	return nil
}

func applyFlags(c *cli.Context, cfg *config.Config) {
	if v := c.String("listen"); v != "" {
		cfg.ListenAddr = v
	}
	if v := c.String("workspace"); v != "" {
		cfg.WorkspaceRoot = v
	}
	if v := c.String("sandbox-url"); v != "" {
		cfg.SandboxURL = v
	}
	if v := c.String("sandbox-mode"); v != "" {
		cfg.SandboxMode = v
	}
	if v := c.String("history-db"); v != "" {
		cfg.HistoryDBPath = v
	}
	if v := c.String("log-level"); v != "" {
		cfg.LogLevel = v
	}
}

// buildGateway picks the sandbox backend. Auto mode prefers the remote
// sidecar, then a local workspace, then the mock.
func buildGateway(cfg config.Config) (sandbox.Gateway, string, error) {
	mode := cfg.SandboxMode
	if mode == config.ModeAuto {
		switch {
		case cfg.SandboxURL != "":
			mode = config.ModeRemote
		case cfg.WorkspaceRoot != "":
			mode = config.ModeLocal
		default:
			mode = config.ModeMock
		}
	}
	switch mode {
	case config.ModeRemote:
		return sandbox.NewRemoteGateway(cfg.SandboxURL, cfg.SandboxToken), mode, nil
	case config.ModeLocal:
		ws, err := fs.New(cfg.WorkspaceRoot)
		if err != nil {
			return nil, mode, fmt.Errorf("workspace: %w", err)
		}
		return sandbox.NewLocalGateway(ws), mode, nil
	case config.ModeMock:
		return sandbox.NewMockGateway(), mode, nil
	}
	return nil, mode, fmt.Errorf("invalid sandbox mode: %q", mode)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
