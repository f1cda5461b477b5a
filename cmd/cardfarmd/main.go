package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"cardfarm/internal/api"
	"cardfarm/internal/bot"
	"cardfarm/internal/config"
)

const ConfigPath = "config/cardfarm.yaml"

// restartExitCode tells the launcher wrapper to start a fresh process.
const restartExitCode = 2

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

	restart, err := run(ctx)
	if err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
	if restart {
		slog.Info("exiting for relaunch")
		os.Exit(restartExitCode)
	}
}

func run(ctx context.Context) (bool, error) {
	// Load config
	cfgPath := ConfigPath
	if p := os.Getenv("CARDFARM_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return false, fmt.Errorf("loading config: %w", err)
	}

	// Configure slog
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel(cfg.LogLevel),
	})))
	log := slog.Default()

	slog.Info("cardfarm starting", "version", bot.Version, "bots_dir", cfg.BotsDir)

	// Build the fleet
	sup, err := bot.NewSupervisor(cfg, log)
	if err != nil {
		return false, fmt.Errorf("creating supervisor: %w", err)
	}
	if err := sup.LoadBots(); err != nil {
		return false, fmt.Errorf("loading bots: %w", err)
	}

	// Run the fleet and the IPC API in parallel. The supervisor owns
	// process lifetime, so its exit tears the API down as well.
	runCtx, stop := context.WithCancel(ctx)
	defer stop()
	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		defer stop()
		if err := sup.Run(gctx); err != nil {
			return fmt.Errorf("supervisor: %w", err)
		}
		return nil
	})

	if cfg.IPCBindAddress != "" {
		srv := api.New(sup, cfg, log)
		g.Go(func() error {
			if err := srv.Run(gctx); err != nil {
				return fmt.Errorf("serving api: %w", err)
			}
			return nil
		})
	} else {
		slog.Info("ipc api disabled")
	}

	if err := g.Wait(); err != nil {
		return false, err
	}
	return sup.RestartRequested(), nil
}

func logLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
