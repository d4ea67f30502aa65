package hlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/zerologr"
	"github.com/kardianos/service"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

const Program = "switchbot-mqtt"

var Logger logr.Logger = logr.Discard()

// LogToStderr forces logging to stderr, even when running unattended.
func LogToStderr() bool {
	return os.Getenv("SWITCHBOT_MQTT_LOG") == "stderr"
}

// Init initializes logging with info level as default, as befits a daemon.
func Init(verbose bool, debug bool) logr.Logger {
	return InitWithLevel(verbose, debug, zerolog.InfoLevel)
}

// InitWithLevel initializes the process-wide logger with a specific default level
func InitWithLevel(verbose bool, debug bool, defaultLevel zerolog.Level) logr.Logger {
	debugInit("Initializing logger")

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	zerologr.NameFieldName = "logger"
	zerologr.NameSeparator = "/"

	var w io.Writer
	isTerminal := IsTerminal()

	if LogToStderr() || isTerminal {
		w = os.Stderr
	} else {
		var err error
		w, err = logWriter()
		if err != nil {
			debugInit(fmt.Sprintf("Failed to create log writer, using stderr: %v", err))
			w = os.Stderr
		}
	}

	zl := zerolog.New(w)
	if isTerminal {
		zl = zl.Output(zerolog.ConsoleWriter{
			Out:        w,
			NoColor:    !isColorTerminal(),
			TimeFormat: time.RFC3339,
		})
	}

	level := parseLogLevel(verbose, debug, defaultLevel)
	zerolog.SetGlobalLevel(level)
	zl = zl.Level(level).With().Timestamp().Logger()
	if debug {
		zl = zl.With().Caller().Logger()
	}

	Logger = zerologr.New(&zl).WithName(Program)
	Logger.V(1).Info("Initialized", "level", level.String(), "verbose", verbose, "debug", debug)
	return Logger
}

func parseLogLevel(verbose bool, debug bool, defaultLevel zerolog.Level) zerolog.Level {
	if debug || os.Getenv("DELVE_DEBUGGER") != "" {
		return zerolog.TraceLevel
	}
	if verbose {
		return zerolog.InfoLevel
	}
	return defaultLevel
}

func isColorTerminal() bool {
	if os.Getenv("TERM") == "dumb" {
		return false
	}
	if _, exists := os.LookupEnv("NO_COLOR"); exists {
		return false
	}
	if _, exists := os.LookupEnv("CLICOLOR_FORCE"); exists {
		return true
	}
	if os.Getenv("CLICOLOR") == "0" {
		return false
	}
	if term := os.Getenv("TERM"); term != "" {
		if strings.HasSuffix(term, "-256color") ||
			strings.HasSuffix(term, "-color") ||
			strings.HasPrefix(term, "xterm") ||
			strings.HasPrefix(term, "screen") {
			return true
		}
	}
	return IsTerminal()
}

func logWriter() (io.Writer, error) {
	if service.Interactive() {
		return os.Stderr, nil
	}

	// journald picks up stderr
	if os.Getenv("JOURNAL_STREAM") != "" || os.Getenv("INVOCATION_ID") != "" {
		return os.Stderr, nil
	}

	logDir := getLogDir()
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory %s: %w", logDir, err)
	}

	return &lumberjack.Logger{
		Filename:   filepath.Join(logDir, Program+".log"),
		MaxSize:    10, // megabytes
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	}, nil
}

// IsContextCancellation checks if an error is due to context cancellation
func IsContextCancellation(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// ErrorIfNotCanceled logs an error only if it's not due to context cancellation
func ErrorIfNotCanceled(log logr.Logger, err error, msg string, keysAndValues ...interface{}) {
	if err != nil && !IsContextCancellation(err) {
		log.Error(err, msg, keysAndValues...)
	}
}
