package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/coordinatordb/coord/internal/config"
)

// initConfig loads the 3-tier config stack and folds in any persistent
// flags the user passed, so a flag always wins over file/env/default —
// the same precedence the teacher's cmd/bd establishes in its
// PersistentPreRun (config.Initialize, then flag overrides via config.Set).
func initConfig(cmd *cobra.Command) error {
	if err := config.Initialize(); err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}
	for _, key := range []string{"data-dir", "socket-path", "log-level"} {
		if f := cmd.Flags().Lookup(key); f != nil && f.Changed {
			config.Set(key, f.Value.String())
		}
	}
	return nil
}

// resolveDataDir returns the effective data directory: configured value,
// or ".coord" under the current directory if unset.
func resolveDataDir() (string, error) {
	dir := config.GetString("data-dir")
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("get working directory: %w", err)
		}
		dir = filepath.Join(cwd, ".coord")
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve data dir: %w", err)
	}
	return abs, nil
}

// newLogger builds the process-wide structured logger. When log-path is
// configured, logs rotate through lumberjack exactly as the teacher's
// internal/debug package rotates daemon logs; otherwise they go to
// stderr, the right default for a foreground CLI invocation.
func newLogger() *slog.Logger {
	level := parseLevel(config.GetString("log-level"))
	var w io.Writer = os.Stderr

	if path := config.GetString("log-path"); path != "" {
		w = &lumberjack.Logger{
			Filename:   path,
			MaxSize:    config.GetInt("log-max-size-mb"),
			MaxBackups: config.GetInt("log-max-backups"),
			MaxAge:     config.GetInt("log-max-age-days"),
			Compress:   true,
		}
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
