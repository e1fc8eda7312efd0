// Package config loads runtime defaults for the CLI and API server from the
// environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const environmentProduction = "production"

// Config holds the application configuration
type Config struct {
	Environment string
	Port        int
	LogLevel    string

	// Generation defaults, overridable by flags and request parameters.
	OutputDir string
	Orders    []int
	Length    int
	Count     int
	Seed      uint64
	Rhythm    string
	Policy    string
}

// LoadDotEnv loads variables from the given .env files (".env" when none
// are named). A missing file is not an error.
func LoadDotEnv(files ...string) {
	if err := godotenv.Load(files...); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to load .env file", slog.Any("error", err))
	}
}

// Load reads MARKOV2MIDI_* variables, falling back to defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("MARKOV2MIDI_ENV", "development"),
		LogLevel:    getEnv("MARKOV2MIDI_LOG_LEVEL", "info"),
		OutputDir:   getEnv("MARKOV2MIDI_OUTPUT_DIR", "."),
		Rhythm:      getEnv("MARKOV2MIDI_RHYTHM", "random"),
		Policy:      getEnv("MARKOV2MIDI_POLICY", "fallback"),
	}

	var err error
	if cfg.Port, err = getInt("MARKOV2MIDI_PORT", 8080); err != nil {
		return nil, err
	}
	if cfg.Length, err = getInt("MARKOV2MIDI_LENGTH", 40); err != nil {
		return nil, err
	}
	if cfg.Count, err = getInt("MARKOV2MIDI_COUNT", 2); err != nil {
		return nil, err
	}
	if cfg.Orders, err = ParseOrders(getEnv("MARKOV2MIDI_ORDERS", "1,2,3")); err != nil {
		return nil, fmt.Errorf("invalid MARKOV2MIDI_ORDERS: %w", err)
	}
	seed := getEnv("MARKOV2MIDI_SEED", "0")
	if cfg.Seed, err = strconv.ParseUint(seed, 10, 64); err != nil {
		return nil, fmt.Errorf("invalid MARKOV2MIDI_SEED %q: %w", seed, err)
	}
	return cfg, nil
}

// IsProduction reports whether the server should run gin in release mode.
func (c *Config) IsProduction() bool {
	return c.Environment == environmentProduction
}

// SlogLevel maps LogLevel to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger returns a text logger on stderr at the configured level.
func (c *Config) NewLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: c.SlogLevel()}))
}

// ParseOrders parses a comma separated list such as "1,2,3".
func ParseOrders(s string) ([]int, error) {
	var orders []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid order %q: %w", part, err)
		}
		if n < 0 {
			return nil, fmt.Errorf("order %d must not be negative", n)
		}
		orders = append(orders, n)
	}
	if len(orders) == 0 {
		return nil, fmt.Errorf("no orders in %q", s)
	}
	return orders, nil
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value != "" {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}
