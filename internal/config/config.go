// Package config handles bot configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"
)

// Config holds the bot configuration.
type Config struct {
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	AllowedUsers     []int64

	// YouTubeAPIKey selects the Data API source; empty falls back to channel RSS feeds.
	YouTubeAPIKey        string
	InstagramOEmbedToken string
	UpstreamTimeout      time.Duration
	UpstreamRPS          float64
	SessionIdleTimeout   time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	token := os.Getenv("TELEGRAM_BOT_TOKEN")
	if token == "" {
		return nil, fmt.Errorf("TELEGRAM_BOT_TOKEN is required")
	}

	var allowedUsers []int64
	if raw := os.Getenv("ALLOWED_USERS"); raw != "" {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			uid, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid user ID %q in ALLOWED_USERS: %w", s, err)
			}
			allowedUsers = append(allowedUsers, uid)
		}
	}

	timeout, err := durationEnv("UPSTREAM_TIMEOUT", 12*time.Second)
	if err != nil {
		return nil, err
	}
	idle, err := durationEnv("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	if err != nil {
		return nil, err
	}

	rps := 10.0
	if raw := os.Getenv("UPSTREAM_RPS"); raw != "" {
		rps, err = strconv.ParseFloat(raw, 64)
		if err != nil || rps < 0 {
			return nil, fmt.Errorf("invalid UPSTREAM_RPS %q", raw)
		}
	}

	return &Config{
		TelegramBotToken:     token,
		DatabasePath:         envOrDefault("DATABASE_PATH", "./data/creatorfeed.db"),
		LogLevel:             envOrDefault("LOG_LEVEL", "info"),
		AllowedUsers:         allowedUsers,
		YouTubeAPIKey:        os.Getenv("YOUTUBE_API_KEY"),
		InstagramOEmbedToken: os.Getenv("INSTAGRAM_OEMBED_TOKEN"),
		UpstreamTimeout:      timeout,
		UpstreamRPS:          rps,
		SessionIdleTimeout:   idle,
	}, nil
}

// IsUserAllowed checks whether a user ID is in the allow list.
// Returns true if the allow list is empty (all users permitted).
func (c *Config) IsUserAllowed(userID int64) bool {
	return len(c.AllowedUsers) == 0 || slices.Contains(c.AllowedUsers, userID)
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func durationEnv(key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q", key, raw)
	}
	return d, nil
}
