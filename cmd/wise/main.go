package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/wiseops/wise/internal/config"
	"github.com/wiseops/wise/internal/event"
	"github.com/wiseops/wise/internal/export/ws"
	"github.com/wiseops/wise/internal/master"
	"github.com/wiseops/wise/internal/polling"
	"github.com/wiseops/wise/internal/pool"
	"github.com/wiseops/wise/internal/rcon"
)

const ConfigPath = "config/wise.yml"

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	cfgPath := ConfigPath
	if p := os.Getenv("WISE_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.Logging.Level),
	})))
	log := slog.Default()
	log.Info("wise starting", "rcon", cfg.Rcon.Address,
		"websocket_enabled", cfg.Exporting.WebSocket.Enabled)

	store := config.NewStore(cfg)

	// Fail fast when the server is unreachable or the password is wrong;
	// everything downstream depends on working sessions.
	probe, err := rcon.Connect(ctx, store.Get().Rcon)
	if err != nil {
		return fmt.Errorf("probing rcon connectivity: %w", err)
	}
	log.Info("rcon connectivity verified", "conn", probe.ID())

	sessionPool := pool.New(log, func() rcon.Credentials {
		return store.Get().Rcon
	})
	defer sessionPool.Close()
	sessionPool.Return(probe)

	bus := event.NewBus(event.DefaultBusCapacity)
	defer bus.Close()

	gameMaster := master.New(log, bus)
	manager := polling.NewManager(log, sessionPool, gameMaster, func() polling.Settings {
		pollingCfg := store.Get().Polling
		return polling.Settings{
			Wait:            time.Duration(pollingCfg.WaitMS) * time.Millisecond,
			Cooldown:        time.Duration(pollingCfg.CooldownMS) * time.Millisecond,
			ManageLifecycle: pollingCfg.ManageLifecycle,
		}
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := store.Watch(gctx, log, cfgPath); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("config watcher: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		defer manager.Stop()
		if err := manager.Resume(gctx); err != nil {
			return fmt.Errorf("resuming polling: %w", err)
		}
		<-gctx.Done()
		return nil
	})

	if cfg.Exporting.WebSocket.Enabled {
		exporter := ws.NewServer(log, store, sessionPool, bus)
		g.Go(func() error {
			if err := exporter.Run(gctx); err != nil {
				return fmt.Errorf("websocket exporter: %w", err)
			}
			return nil
		})
	}

	return g.Wait()
}

// logLevel maps the configured verbosity onto slog levels. Positive
// values all mean debug.
func logLevel(level int) slog.Level {
	switch {
	case level <= -2:
		return slog.LevelError
	case level == -1:
		return slog.LevelWarn
	case level == 0:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}
