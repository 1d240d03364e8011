package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"creatorfeed/internal/bot"
	"creatorfeed/internal/config"
	"creatorfeed/internal/embed"
	"creatorfeed/internal/feed"
	"creatorfeed/internal/scheduler"
	"creatorfeed/internal/storage"
	"creatorfeed/internal/youtube"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}

	log := newLogger(cfg.LogLevel)

	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			log.Error("create data directory", "path", dir, "error", err)
			os.Exit(1)
		}
	}

	store, err := storage.NewSQLite(cfg.DatabasePath)
	if err != nil {
		log.Error("open database", "path", cfg.DatabasePath, "error", err)
		os.Exit(1)
	}
	defer func() { _ = store.Close() }()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}

	var (
		src feed.Source
		svc bot.Services
	)
	if cfg.YouTubeAPIKey != "" {
		yt, err := youtube.New(ctx, cfg.YouTubeAPIKey, cfg.UpstreamRPS)
		if err != nil {
			log.Error("create youtube client", "error", err)
			os.Exit(1)
		}
		src = yt
		svc.Directory = yt
	} else {
		log.Warn("YOUTUBE_API_KEY not set, using channel RSS feeds")
		src = youtube.NewRSS(httpClient)
	}
	svc.Runner = feed.NewAggregator(src, cfg.UpstreamTimeout, log)
	svc.OEmbed = embed.NewOEmbedClient(httpClient, cfg.InstagramOEmbedToken)

	b, err := bot.New(cfg.TelegramBotToken, store, cfg, svc, log)
	if err != nil {
		log.Error("create bot", "error", err)
		os.Exit(1)
	}

	sched := scheduler.New(cfg.SessionIdleTimeout, log, b)

	log.Info("starting bot", "rss_fallback", cfg.YouTubeAPIKey == "")

	go sched.Run(ctx)

	b.Run(ctx)

	log.Info("bot stopped")
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
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
