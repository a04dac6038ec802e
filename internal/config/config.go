package config

import (
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultListenAddr      = ":8080"
	defaultDBPath          = "anvil.db"
	defaultShutdownTimeout = 10 * time.Second

	envListenAddr       = "ANVIL_LISTEN_ADDR"
	envDBPath           = "ANVIL_DB_PATH"
	envLogLevel         = "ANVIL_LOG_LEVEL"
	envWorkDir          = "ANVIL_WORK_DIR"
	envMaxProcesses     = "ANVIL_MAX_PROCESSES"
	envShutdownTimeout  = "ANVIL_SHUTDOWN_TIMEOUT"
	envStrictInvariants = "ANVIL_STRICT_INVARIANTS"
	envPollersFile      = "ANVIL_POLLERS_FILE"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DBPath     string
	LogLevel   slog.Level

	// WorkDir is the working directory of spawned commands. Empty means the
	// server's own working directory.
	WorkDir string

	// MaxProcesses caps concurrently running commands; 0 means unbounded.
	MaxProcesses int64

	ShutdownTimeout  time.Duration
	StrictInvariants bool
	PollersFile      string
}

// Load reads configuration from environment variables with sensible defaults.
// Unparseable values fall back to their defaults.
func Load() Config {
	cfg := Config{
		ListenAddr:      defaultListenAddr,
		DBPath:          defaultDBPath,
		LogLevel:        slog.LevelInfo,
		ShutdownTimeout: defaultShutdownTimeout,
	}

	if v := os.Getenv(envListenAddr); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv(envDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	cfg.WorkDir = os.Getenv(envWorkDir)
	if v := os.Getenv(envMaxProcesses); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n >= 0 {
			cfg.MaxProcesses = n
		}
	}
	if v := os.Getenv(envShutdownTimeout); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.ShutdownTimeout = d
		}
	}
	if v := os.Getenv(envStrictInvariants); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.StrictInvariants = b
		}
	}
	cfg.PollersFile = os.Getenv(envPollersFile)

	return cfg
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
