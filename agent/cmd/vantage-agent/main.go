package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/vantagehq/vantage/agent/internal/config"
	"github.com/vantagehq/vantage/agent/internal/forward"
	"github.com/vantagehq/vantage/agent/internal/probesync"
	"github.com/vantagehq/vantage/agent/internal/supervisor"
	"github.com/vantagehq/vantage/agent/internal/zonewatch"
	"github.com/vantagehq/vantage/pkg/types"
)

func main() {
	configPath := flag.String("config", "agent.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	level := new(slog.LevelVar)
	if cfg.Debug {
		level.Set(slog.LevelDebug)
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("vantage-agent starting",
		"config", *configPath,
		"master_url", cfg.MasterURL,
		"poll_interval", cfg.PollInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := probesync.NewClient(cfg.MasterURL)

	var sup *supervisor.Supervisor
	syncer := probesync.NewSyncer(client, cfg.PollInterval, func(zone string, old, new *types.ConfigSnapshot) {
		sup.Apply(zone, old, new)
	})
	sup = supervisor.New(syncer, forward.New(cfg.MasterURL), cfg.EventBuffer)

	// The agent-wide probe set runs on the host itself and syncs
	// through /agentprobes.
	syncer.AddZone(probesync.GlobalZone)

	// Pinned zones skip discovery; the sync loop's first pass picks
	// them up.
	for _, zone := range cfg.Zones {
		syncer.AddZone(zone)
		slog.Info("tracking pinned zone", "zone", zone)
	}

	// Hot-reload applies what it can in place: the log level and the
	// pinned zone set. Anything else logs a restart warning.
	go func() {
		if err := config.Watch(ctx, *configPath, cfg, func(rel config.Reload) {
			if rel.DebugChanged {
				if rel.New.Debug {
					level.Set(slog.LevelDebug)
				} else {
					level.Set(slog.LevelInfo)
				}
				slog.Info("debug logging toggled", "debug", rel.New.Debug)
			}
			for _, zone := range rel.ZonesAdded {
				syncer.AddZone(zone)
				slog.Info("tracking pinned zone", "zone", zone)
			}
			for _, zone := range rel.ZonesRemoved {
				sup.ZoneDown(zone)
				slog.Info("dropped pinned zone", "zone", zone)
			}
		}); err != nil {
			slog.Error("config watcher stopped", "err", err)
		}
	}()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return syncer.Run(ctx) })
	g.Go(func() error { return sup.Run(ctx) })
	g.Go(func() error {
		stream, wait, err := zonewatch.StartCommand(ctx, cfg.ZoneEventCommand)
		if err != nil {
			return err
		}
		defer wait()
		return zonewatch.Run(ctx, stream, sup)
	})

	err = g.Wait()
	var fatal *zonewatch.StreamFatalError
	if errors.As(err, &fatal) {
		slog.Error("zone event stream lost, exiting", "err", fatal.Err)
		os.Exit(1)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("vantage-agent stopped with error", "err", err)
		os.Exit(1)
	}
	slog.Info("vantage-agent shutting down")
}
