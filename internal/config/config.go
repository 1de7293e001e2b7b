// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	FrontendURL string
	DBPath      string
	JWTSecret   string
	Chat        ChatConfig
	Live        LiveConfig
	Support     SupportConfig
}

// ChatConfig bounds conversation history reads.
type ChatConfig struct {
	HistoryLimit int
	HistoryMax   int
}

// LiveConfig tunes websocket connections.
type LiveConfig struct {
	SendQueue  int
	FrameRate  float64
	FrameBurst int
}

// SupportConfig controls the support bot channel.
type SupportConfig struct {
	Room      string
	Retention time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		FrontendURL: getEnv("FRONTEND_URL", ""),
		DBPath:      getEnv("DB_PATH", "./data/jobchat.db"),
		JWTSecret:   getEnv("JWT_SECRET", ""),
		Chat: ChatConfig{
			HistoryLimit: getEnvInt("CHAT_HISTORY_LIMIT", 50),
			HistoryMax:   getEnvInt("CHAT_HISTORY_MAX", 200),
		},
		Live: LiveConfig{
			SendQueue:  getEnvInt("LIVE_SEND_QUEUE", 64),
			FrameRate:  getEnvFloat("LIVE_FRAME_RATE", 5),
			FrameBurst: getEnvInt("LIVE_FRAME_BURST", 10),
		},
		Support: SupportConfig{
			Room:      getEnv("SUPPORT_ROOM", "support_chat"),
			Retention: getEnvDuration("SUPPORT_RETENTION", 30*24*time.Hour),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Chat.HistoryLimit <= 0 {
		return fmt.Errorf("CHAT_HISTORY_LIMIT must be > 0")
	}
	if c.Chat.HistoryMax < c.Chat.HistoryLimit {
		return fmt.Errorf("CHAT_HISTORY_MAX must be >= CHAT_HISTORY_LIMIT")
	}
	if c.Live.SendQueue <= 0 {
		return fmt.Errorf("LIVE_SEND_QUEUE must be > 0")
	}
	if c.Live.FrameRate > 0 && c.Live.FrameBurst <= 0 {
		return fmt.Errorf("LIVE_FRAME_BURST must be > 0 when LIVE_FRAME_RATE is set")
	}
	if c.Support.Room == "" {
		return fmt.Errorf("SUPPORT_ROOM cannot be empty")
	}
	if c.Support.Retention < 0 {
		return fmt.Errorf("SUPPORT_RETENTION cannot be negative")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the frontend.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{c.FrontendURL}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvFloat(key string, fallback float64) float64 {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return f
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
