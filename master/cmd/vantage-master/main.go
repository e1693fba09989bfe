package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vantagehq/vantage/master/internal/api"
	"github.com/vantagehq/vantage/master/internal/config"
	"github.com/vantagehq/vantage/master/internal/dispatch"
	"github.com/vantagehq/vantage/master/internal/eventstore"
	"github.com/vantagehq/vantage/master/internal/probes"
	"github.com/vantagehq/vantage/master/internal/users"
)

func main() {
	configPath := flag.String("config", "master.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	slog.Info("vantage-master starting",
		"config", *configPath,
		"listen_addr", cfg.ListenAddr,
		"datacenter", cfg.Datacenter,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	repo, err := probes.Load(cfg.ProbesPath)
	if err != nil {
		slog.Error("failed to load probe repository", "path", cfg.ProbesPath, "err", err)
		os.Exit(1)
	}

	directory, err := users.Load(cfg.UsersPath)
	if err != nil {
		slog.Error("failed to load user directory", "path", cfg.UsersPath, "err", err)
		os.Exit(1)
	}

	// Event store with background expiry eviction.
	st := eventstore.New()
	go st.Run(ctx)

	// Notification channels, in routing priority order.
	var channels []dispatch.Channel
	if c := cfg.Notify.Email; c != nil {
		email, err := dispatch.NewEmail(*c, cfg.Datacenter)
		if err != nil {
			slog.Error("bad email channel config", "err", err)
			os.Exit(1)
		}
		channels = append(channels, email)
	}
	if c := cfg.Notify.SMS; c != nil {
		sms, err := dispatch.NewSMS(*c, cfg.Datacenter)
		if err != nil {
			slog.Error("bad sms channel config", "err", err)
			os.Exit(1)
		}
		channels = append(channels, sms)
	}
	var chat *dispatch.Chat
	if c := cfg.Notify.Chat; c != nil {
		chat, err = dispatch.NewChat(*c, cfg.Datacenter)
		if err != nil {
			slog.Error("bad chat channel config", "err", err)
			os.Exit(1)
		}
		channels = append(channels, chat)
	}
	if cfg.Notify.Webhook {
		channels = append(channels, dispatch.NewWebhook(cfg.Datacenter))
	}
	slog.Info("notification channels registered", "count", len(channels))

	var notifier api.Notifier
	if len(channels) > 0 {
		n, err := dispatch.NewNotifier(directory, dispatch.NewEngine(channels...), cfg.Datacenter)
		if err != nil {
			slog.Error("failed to build notifier", "err", err)
			os.Exit(1)
		}
		notifier = n
	} else {
		slog.Warn("no notification channels configured, events will only be stored")
	}

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.New(repo, st, notifier),
	}
	go func() {
		slog.Info("api listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("http server stopped", "err", err)
		}
	}()

	<-ctx.Done()
	slog.Info("vantage-master shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx) //nolint:errcheck
	if chat != nil {
		chat.Close()
	}
}
