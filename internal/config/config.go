// Package config reads process settings from the environment, after loading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/coder1568/one9wordchain/internal/engine"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Addr string

	// AllowedOrigins are host patterns accepted on websocket upgrades.
	AllowedOrigins []string

	// DictionaryPaths are merged into one word set. Empty means the embedded list.
	DictionaryPaths  []string
	DictionaryReload time.Duration

	// DatabaseDSN selects the recorder. Empty disables persistence.
	DatabaseDSN string

	JWTSecret string
	TokenTTL  time.Duration

	LogLevel  string
	LogFormat string

	JoinWindow    time.Duration
	MaxGame       time.Duration
	RecordTimeout time.Duration
}

// Load reads .env (if present) and then the environment.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function. Every bad value is
// reported, not just the first.
func FromEnv(getenv func(string) string) (Config, error) {
	e := env{get: getenv}
	c := Config{
		Addr:             e.str("ADDR", ":8080"),
		AllowedOrigins:   e.list("ALLOWED_ORIGINS"),
		DictionaryPaths:  e.list("DICTIONARY_PATH"),
		DictionaryReload: e.duration("DICTIONARY_RELOAD", 0),
		DatabaseDSN:      e.str("DATABASE_DSN", ""),
		JWTSecret:        e.str("JWT_SECRET", ""),
		TokenTTL:         e.duration("TOKEN_TTL", 24*time.Hour),
		LogLevel:         strings.ToLower(e.str("LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(e.str("LOG_FORMAT", "json")),
		JoinWindow:       time.Duration(e.integer("JOIN_SECONDS", 60)) * time.Second,
		MaxGame:          time.Duration(e.integer("MAX_GAME_MINUTES", 60)) * time.Minute,
		RecordTimeout:    e.duration("RECORD_TIMEOUT", 10*time.Second),
	}
	if c.JWTSecret == "" {
		e.fail(errors.New("JWT_SECRET is required"))
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		e.fail(fmt.Errorf("LOG_LEVEL: %w", err))
	}
	switch c.LogFormat {
	case "json", "console":
	default:
		e.fail(fmt.Errorf("LOG_FORMAT: want json or console, got %q", c.LogFormat))
	}
	if c.JoinWindow <= 0 {
		e.fail(errors.New("JOIN_SECONDS must be positive"))
	}
	if c.MaxGame < 0 {
		e.fail(errors.New("MAX_GAME_MINUTES must not be negative"))
	}
	return c, e.err
}

// Settings returns the per-mode defaults with the configured overrides applied.
func (c Config) Settings(mode engine.Mode) engine.Settings {
	s := engine.DefaultSettings(mode)
	if c.JoinWindow > 0 {
		s.JoinWindow = c.JoinWindow
		if s.MaxJoinWindow < c.JoinWindow {
			s.MaxJoinWindow = c.JoinWindow
		}
	}
	s.MaxDuration = c.MaxGame
	return s
}

type env struct {
	get func(string) string
	err error
}

func (e *env) fail(err error) { e.err = multierr.Append(e.err, err) }

func (e *env) str(key, def string) string {
	if v := strings.TrimSpace(e.get(key)); v != "" {
		return v
	}
	return def
}

func (e *env) list(key string) []string {
	var out []string
	for _, p := range strings.Split(e.get(key), ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e *env) integer(key string, def int) int {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return def
	}
	return n
}

func (e *env) duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(e.get(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(fmt.Errorf("%s: %w", key, err))
		return def
	}
	if d < 0 {
		e.fail(fmt.Errorf("%s must not be negative", key))
		return def
	}
	return d
}
