package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the simulator.
type Config struct {
	Port            int
	LogLevel        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	WebhookTimeout  time.Duration
	SimTickInterval time.Duration
	HistoryDir      string
	ContractsFile   string
	LiquidityPolicy string
	LiquidityRatio  float64
	BarHistoryLimit int
	WSAllowedOrigin string
}

// Load reads configuration from environment variables, applies defaults,
// and validates values. Variables from a .env file in the working
// directory fill in whatever the environment leaves unset. It returns an
// error for any invalid value.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("invalid PORT: %d, must be between 1 and 65535", port)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	cfg := &Config{
		Port:            port,
		LogLevel:        logLevel,
		HistoryDir:      getStr("HISTORY_DIR", "./data"),
		ContractsFile:   getStr("CONTRACTS_FILE", ""),
		LiquidityPolicy: getStr("LIQUIDITY_POLICY", "unlimited"),
		WSAllowedOrigin: getStr("WS_ALLOWED_ORIGIN", "*"),
	}

	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"READ_TIMEOUT", 5 * time.Second, &cfg.ReadTimeout},
		{"WRITE_TIMEOUT", 10 * time.Second, &cfg.WriteTimeout},
		{"IDLE_TIMEOUT", 60 * time.Second, &cfg.IdleTimeout},
		{"SHUTDOWN_TIMEOUT", 10 * time.Second, &cfg.ShutdownTimeout},
		{"WEBHOOK_TIMEOUT", 5 * time.Second, &cfg.WebhookTimeout},
		{"SIM_TICK_INTERVAL", 500 * time.Millisecond, &cfg.SimTickInterval},
	}
	for _, d := range durations {
		v, err := getDuration(d.key, d.def)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		if v <= 0 {
			return nil, fmt.Errorf("invalid %s: %s, must be positive", d.key, v)
		}
		*d.dst = v
	}

	switch cfg.LiquidityPolicy {
	case "unlimited", "tick_volume":
	default:
		return nil, fmt.Errorf("invalid LIQUIDITY_POLICY: %q, must be one of: unlimited, tick_volume", cfg.LiquidityPolicy)
	}

	cfg.LiquidityRatio, err = getFloat("LIQUIDITY_RATIO", 1.0)
	if err != nil {
		return nil, fmt.Errorf("invalid LIQUIDITY_RATIO: %w", err)
	}
	if cfg.LiquidityRatio <= 0 {
		return nil, fmt.Errorf("invalid LIQUIDITY_RATIO: %v, must be positive", cfg.LiquidityRatio)
	}

	cfg.BarHistoryLimit, err = getInt("BAR_HISTORY_LIMIT", 500)
	if err != nil {
		return nil, fmt.Errorf("invalid BAR_HISTORY_LIMIT: %w", err)
	}
	if cfg.BarHistoryLimit < 1 {
		return nil, fmt.Errorf("invalid BAR_HISTORY_LIMIT: %d, must be positive", cfg.BarHistoryLimit)
	}

	return cfg, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getFloat(key string, defaultVal float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
