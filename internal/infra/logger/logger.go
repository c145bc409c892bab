// Package logger provides structured logging using zerolog.
package logger

import (
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// Config represents logger configuration.
type Config struct {
	Output string // stdout, stderr or a file path
	Level  string // debug, info, warn or error
	File   string // used when Output is a file
}

// ConfigFromFlags builds a logger configuration from command-line flags.
func ConfigFromFlags(verbose bool, logfile string) Config {
	cfg := Config{Output: "stderr", Level: "info"}
	if verbose {
		cfg.Level = "debug"
	}
	if logfile != "" {
		cfg.Output = logfile
		cfg.File = logfile
	}
	return cfg
}

// Init installs the global zerolog logger.
// Console output is colored with short timestamps. A log file gets JSON lines
// with full timestamps. Debug level adds the caller to every entry.
func Init(cfg Config) error {
	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)
	zerolog.TimestampFieldName = "time"
	zerolog.LevelFieldName = "level"
	zerolog.MessageFieldName = "message"
	zerolog.CallerMarshalFunc = shortCaller

	var ctx zerolog.Context
	if w, ok := consoleWriter(cfg.Output); ok {
		zerolog.TimeFieldFormat = time.TimeOnly
		ctx = zerolog.New(zerolog.ConsoleWriter{
			Out:        w,
			TimeFormat: time.TimeOnly,
			PartsOrder: []string{"time", "level", "message", "caller"},
			FormatCaller: func(i interface{}) string {
				if s, ok := i.(string); ok && s != "" {
					return "(" + s + ")"
				}
				return ""
			},
		}).With()
	} else {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrapf(err, "failed to open log file %s", cfg.File)
		}
		zerolog.TimeFieldFormat = time.RFC3339
		ctx = zerolog.New(f).With()
	}

	ctx = ctx.Timestamp()
	if level == zerolog.DebugLevel {
		ctx = ctx.Caller()
	}
	logger := ctx.Logger()
	zerolog.DefaultContextLogger = &logger
	zlog.Logger = logger
	return nil
}

func consoleWriter(output string) (io.Writer, bool) {
	switch strings.ToLower(output) {
	case "stdout", "":
		return os.Stdout, true
	case "stderr":
		return os.Stderr, true
	}
	return nil, false
}

// shortCaller renders the caller as dir/file.go:line.
func shortCaller(_ uintptr, file string, line int) string {
	parts := strings.Split(file, string(filepath.Separator))
	if len(parts) > 1 {
		file = filepath.Join(parts[len(parts)-2:]...)
	}
	return file + ":" + strconv.Itoa(line)
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
