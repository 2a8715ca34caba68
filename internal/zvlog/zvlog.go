// Package zvlog is zerovault's structured logging wrapper around
// zerolog, shaped directly on the teacher's pkg/log: one global Logger,
// a Config/Init pair, and With* helpers that attach the fields this
// codebase actually keys on (component, replica) in place of the
// teacher's cluster-node fields.
package zvlog

import (
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Logger is the global logger instance. Init must be called once at
// process startup (cmd/zerovault/main.go does this); packages that log
// before Init runs get zerolog's disabled nop logger.
var Logger zerolog.Logger

// Level names a logging verbosity, kept as a distinct string type so
// config files and CLI flags don't leak zerolog's own Level type.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration. internal/config mirrors it in
// its own LogConfig for the yaml "log:" section, since Output cannot be
// expressed in YAML.
type Config struct {
	Level  Level     `yaml:"level"`
	JSON   bool      `yaml:"json"`
	Output io.Writer `yaml:"-"`
}

// Init builds the global Logger. With JSON unset and an *os.File output
// (stdout by default), Init auto-detects a terminal via go-isatty and
// uses zerolog's console writer only when that file is a tty — piping
// zerovault's output still gets machine-readable JSON by default. Any
// other io.Writer gets the console writer unless JSON is set.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	useConsole := !cfg.JSON
	if f, ok := output.(*os.File); ok && !cfg.JSON {
		useConsole = isatty.IsTerminal(f.Fd())
	}

	if useConsole {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	}
}

// WithComponent tags a child logger with the subsystem emitting the
// log line (e.g. "engine", "sync", "broker").
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithReplica tags a child logger with the replica_id of the local
// database this log line concerns.
func WithReplica(replicaID string) zerolog.Logger {
	return Logger.With().Str("replica_id", replicaID).Logger()
}

func Info(msg string)  { Logger.Info().Msg(msg) }
func Debug(msg string) { Logger.Debug().Msg(msg) }
func Warn(msg string)  { Logger.Warn().Msg(msg) }
func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(msg string, err error) { Logger.Error().Err(err).Msg(msg) }
