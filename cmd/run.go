package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/mymmrac/telego"
	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/teleclaw/internal/bridge"
	"github.com/nextlevelbuilder/teleclaw/internal/config"
	"github.com/nextlevelbuilder/teleclaw/internal/coordinator"
	"github.com/nextlevelbuilder/teleclaw/internal/diffview"
	"github.com/nextlevelbuilder/teleclaw/internal/opencode"
	"github.com/nextlevelbuilder/teleclaw/internal/pending"
	"github.com/nextlevelbuilder/teleclaw/internal/store"
	"github.com/nextlevelbuilder/teleclaw/internal/stream"
	"github.com/nextlevelbuilder/teleclaw/internal/stt"
	"github.com/nextlevelbuilder/teleclaw/internal/telegram"
)

// runBridge wires every component and blocks until a signal or a fatal
// error. Config and startup Telegram failures surface as errors (exit 1);
// a clean signal shutdown returns nil (exit 0).
func runBridge(workingDir, sessionID string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	workingDir, err := filepath.Abs(config.ExpandHome(workingDir))
	if err != nil {
		return err
	}

	cfg, err := config.Load(workingDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.SessionID = sessionID
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tg, err := telegram.NewClient(cfg.BotToken, cfg.ChatID, cfg.ThreadID, cfg.SendURL)
	if err != nil {
		return err
	}
	if err := tg.Identify(ctx); err != nil {
		return fmt.Errorf("telegram startup: %w", err)
	}
	if err := tg.SetCommands(ctx, telegram.DefaultMenuCommands()); err != nil {
		slog.Warn("set bot commands failed", "error", err)
	}

	reg, watcher := setupCoordination(cfg, workingDir)
	coord := coordinator.New(reg)

	agent := opencode.NewClient(cfg.OpenCodeURL)

	var poller telegram.Poller = tg
	if cfg.UpdatesURL != "" {
		proxy, err := telegram.NewProxyPoller(cfg.UpdatesURL, cfg.ChatID, cfg.ThreadID)
		if err != nil {
			return fmt.Errorf("updates proxy: %w", err)
		}
		poller = proxy
		slog.Info("polling through updates proxy")
	}

	pend := pending.NewRegistry()
	b := bridge.New(cfg, tg, poller, agent, coord, reg, pend, stt.New(cfg.OpenAIAPIKey), Version)

	var diff stream.DiffUploader
	if dv := diffview.New(cfg.DiffViewerURL); dv.Enabled() {
		diff = dv
	}
	proj := stream.New(&projectorSender{tg: tg}, b.Topics(), agent, pend, diff, cfg.ChatID)
	events := opencode.NewEventSource(cfg.OpenCodeURL, func(ev opencode.Event) {
		proj.HandleEvent(ctx, ev)
	})

	slog.Info("teleclaw starting",
		"version", Version,
		"dir", workingDir,
		"chat_id", cfg.ChatID,
		"thread_id", cfg.ThreadID,
		"coordinated", reg != nil,
	)

	g, gctx := errgroup.WithContext(ctx)
	var nudges <-chan struct{}
	if watcher != nil {
		nudges = watcher.Nudges()
		g.Go(func() error {
			watcher.Run(gctx)
			return nil
		})
	}
	g.Go(func() error { return b.Run(gctx, nudges) })
	g.Go(func() error { return events.Run(gctx) })

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		slog.Info("teleclaw stopped")
		return nil
	}
	return err
}

// setupCoordination opens the shared store and registers this device.
// Any failure degrades to single-instance mode instead of blocking
// startup; the bridge then acts as a permanent leader.
func setupCoordination(cfg *config.Config, workingDir string) (*coordinator.Registry, *coordinator.Watcher) {
	if !cfg.UseCoordinator {
		return nil, nil
	}
	st, err := store.New(cfg.StoreRoot, config.AppName)
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			slog.Warn("shared store unavailable, running single-instance", "root", cfg.StoreRoot)
		} else {
			slog.Warn("shared store open failed, running single-instance", "error", err)
		}
		return nil, nil
	}

	hostname, _ := os.Hostname()
	deviceID := coordinator.DeviceID(cfg.DeviceName, hostname, workingDir)
	reg, err := coordinator.NewRegistry(st, deviceID, cfg.ThreadID, hostname, workingDir, os.Getpid())
	if err != nil {
		slog.Warn("device registration failed, running single-instance", "error", err)
		return nil, nil
	}

	watcher, err := coordinator.NewWatcher(st)
	if err != nil {
		slog.Warn("store watcher unavailable, relying on periodic checks", "error", err)
		return reg, nil
	}
	return reg, watcher
}

// projectorSender adapts the Telegram client to the projector's surface.
type projectorSender struct {
	tg *telegram.Client
}

func (s *projectorSender) Send(ctx context.Context, threadID int, text string, markup *telego.InlineKeyboardMarkup) (int, bool, error) {
	opts := &telegram.SendOpts{ThreadID: threadID}
	if markup != nil {
		opts.Markup = markup
	}
	res, err := s.tg.SendMessage(ctx, text, opts)
	return res.MessageID, res.UsedMarkdown, err
}

func (s *projectorSender) Edit(ctx context.Context, messageID int, text string, markup *telego.InlineKeyboardMarkup) (bool, bool, error) {
	res, err := s.tg.EditMessage(ctx, messageID, text, markup)
	return res.OK, res.UsedMarkdown, err
}

func (s *projectorSender) StartTyping(threadID int, interval time.Duration) func() {
	handle := s.tg.StartTyping(context.Background(), threadID, interval)
	return handle.Stop
}
