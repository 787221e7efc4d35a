// Package logger configures structured logging for TaylorDash and hosts the
// async sink that mirrors selected records into the ApplicationLog table.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Log is the process-wide base logger; component loggers derive from it.
var Log zerolog.Logger

// Config controls output format and optional on-disk rotation of the
// operator-readable stream alongside stdout.
type Config struct {
	Level      string
	Pretty     bool
	FilePath   string // empty disables file rotation
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Initialize sets up the global logger. Every component logger returned
// below derives from this one, so configuration only happens once at
// startup.
func Initialize(cfg Config) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	var out io.Writer = os.Stdout
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	if cfg.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotator)
	}

	Log = zerolog.New(out).With().Timestamp().Str("service", "taylordash").Logger()
	log.Logger = Log

	Log.Info().Str("level", level.String()).Bool("pretty", cfg.Pretty).Msg("logger initialized")
}

func component(name string) zerolog.Logger {
	return Log.With().Str("component", name).Logger()
}

// Storage returns a logger for the connection pool / query layer.
func Storage() zerolog.Logger { return component("storage") }

// Bus returns a logger for the pub/sub adapter.
func Bus() zerolog.Logger { return component("bus") }

// SinkLog returns a logger for the logging sink's own operations.
func SinkLog() zerolog.Logger { return component("logging_sink") }

// Metrics returns a logger for the metrics registry.
func Metrics() zerolog.Logger { return component("metrics") }

// Auth returns a logger for the auth service.
func Auth() zerolog.Logger { return component("auth") }

// Events returns a logger for the event pipeline.
func Events() zerolog.Logger { return component("events") }

// Plugins returns a logger for the plugin lifecycle manager.
func Plugins() zerolog.Logger { return component("plugins") }

// HTTP returns a logger for the HTTP surface.
func HTTP() zerolog.Logger { return component("http") }

// Health returns a logger for the health aggregator.
func Health() zerolog.Logger { return component("health") }
