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

	"github.com/fsnotify/fsnotify"

	"github.com/noahxzhu/annual-alarm/internal/config"
	"github.com/noahxzhu/annual-alarm/internal/device"
	"github.com/noahxzhu/annual-alarm/internal/storage"
	"github.com/noahxzhu/annual-alarm/internal/web"
	"github.com/noahxzhu/annual-alarm/internal/worker"
)

func newLogger(cfg config.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the config file")
	flag.Parse()

	// Load Config
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup structured logger
	level := new(slog.LevelVar)
	if l, err := config.ParseLevel(cfg.Log.Level); err == nil {
		level.Set(l)
	}
	logger := newLogger(cfg.Log, level)
	slog.SetDefault(logger)

	if err := config.Watch(*configPath, func(c *config.Config, ev fsnotify.Event) {
		l, err := config.ParseLevel(c.Log.Level)
		if err != nil {
			return
		}
		if l != level.Level() {
			slog.Info("Log level changed", "level", l, "file", ev.Name)
			level.Set(l)
		}
	}); err != nil {
		slog.Warn("Config watch disabled", "error", err)
	}

	// Init Storage
	store, err := storage.Open(storage.Config{
		Driver:   cfg.Storage.Driver,
		FilePath: cfg.Storage.FilePath,
		DSN:      cfg.Storage.DSN,
	})
	if err != nil {
		slog.Error("Failed to open storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init Worker
	w := worker.NewWorker(store, worker.PushoverSenders(cfg.Pushover.RatePerSec))
	go w.Start(ctx)

	// Init Device and restore the stored alarm
	dev := device.New(store, device.Options{
		Logger:      logger,
		Recurring:   cfg.Schedule.Recurring,
		ScheduleKey: cfg.Schedule.Key,
		OnFired:     w.Fire,
	})
	plan, err := dev.Start(ctx)
	if err != nil {
		slog.Error("Failed to restore alarm", "error", err)
	} else {
		slog.Info("Alarm restored", "action", plan.Action.String(), "at", plan.At)
	}

	// Init Web Server
	srv := web.NewServer(store, dev, w)
	httpServer := &http.Server{
		Addr:              cfg.Server.Port,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Start HTTP Server
	go func() {
		slog.Info("Starting server", "port", cfg.Server.Port, "url", "http://localhost"+cfg.Server.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
	}
	dev.Close()
	cancel() // Stop worker
	slog.Info("Server exited")
}
