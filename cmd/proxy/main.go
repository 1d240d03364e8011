package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jessevdk/go-flags"

	"creatorfeed/internal/api"
	"creatorfeed/internal/cache"
	"creatorfeed/internal/embed"
	"creatorfeed/internal/feed"
	"creatorfeed/internal/scheduler"
	"creatorfeed/internal/youtube"
)

// AppConfig holds the proxy configuration from flags and environment variables.
type AppConfig struct {
	Port            string        `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	YouTubeAPIKey   string        `long:"youtube-api-key" env:"YOUTUBE_API_KEY" description:"YouTube Data API key"`
	InstagramToken  string        `long:"instagram-token" env:"INSTAGRAM_OEMBED_TOKEN" description:"Instagram Graph oEmbed access token"`
	RedisURL        string        `long:"redis-url" env:"REDIS_URL" description:"Redis URL for the shared cache tier (optional)"`
	CacheMaxEntries int           `long:"cache-max-entries" env:"CACHE_MAX_ENTRIES" default:"1000" description:"Maximum in-memory cache entries"`
	UpstreamTimeout time.Duration `long:"upstream-timeout" env:"UPSTREAM_TIMEOUT" default:"12s" description:"Timeout of each upstream call"`
	UpstreamRPS     float64       `long:"upstream-rps" env:"UPSTREAM_RPS" default:"10" description:"Upstream requests per second, 0 for unlimited"`
	LogLevel        string        `long:"log-level" env:"LOG_LEVEL" default:"info" description:"Log level: debug, info, warn, error"`
}

func main() {
	cfg, ok := loadConfig()
	if !ok {
		return
	}

	log := newLogger(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tiered := cache.New(cache.Dial(ctx, cfg.RedisURL, log), cfg.CacheMaxEntries, log)
	defer func() { _ = tiered.Close() }()

	httpClient := &http.Client{Timeout: cfg.UpstreamTimeout}
	h := &api.Handler{
		OEmbed: embed.NewOEmbedClient(httpClient, cfg.InstagramToken),
		Cache:  tiered,
		Log:    log,
	}
	if cfg.YouTubeAPIKey != "" {
		yt, err := youtube.New(ctx, cfg.YouTubeAPIKey, cfg.UpstreamRPS)
		if err != nil {
			log.Error("create youtube client", "error", err)
			os.Exit(1)
		}
		h.Search = yt
		h.Videos = feed.NewAggregator(yt, cfg.UpstreamTimeout, log)
	} else {
		log.Warn("YOUTUBE_API_KEY not set, youtube routes disabled")
	}

	sched := scheduler.New(0, log, scheduler.SweeperFunc(func(time.Duration) int {
		return tiered.Sweep()
	}))
	go sched.Run(ctx)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      api.NewServer(h, log),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting proxy", "port", cfg.Port, "redis", cfg.RedisURL != "")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error("http server", "error", err)
	}

	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown http server", "error", err)
	}
	log.Info("proxy stopped")
}

// loadConfig parses flags and environment variables. ok is false when help
// was printed.
func loadConfig() (*AppConfig, bool) {
	var cfg AppConfig
	parser := flags.NewParser(&cfg, flags.Default)
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, false
		}
		os.Exit(1)
	}
	return &cfg, true
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
