package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync/atomic"
)

// Level orders log severities; messages below the current level are dropped
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var (
	infoLogger  = log.New(os.Stdout, "INFO: ", log.Ldate|log.Ltime|log.Lshortfile)
	errorLogger = log.New(os.Stderr, "ERROR: ", log.LstdFlags|log.Lshortfile)
	debugLogger = log.New(os.Stdout, "DEBUG: ", log.LstdFlags|log.Lshortfile)
	warnLogger  = log.New(os.Stdout, "WARN: ", log.LstdFlags|log.Lshortfile)

	level atomic.Int32
)

func init() {
	level.Store(int32(LevelInfo))
}

// ParseLevel converts "debug", "info", "warn" or "error" to a Level
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func SetLevel(l Level) {
	level.Store(int32(l))
}

// SetOutput redirects every level to w. Used by tests.
func SetOutput(w io.Writer) {
	for _, l := range []*log.Logger{infoLogger, errorLogger, debugLogger, warnLogger} {
		l.SetOutput(w)
	}
}

func enabled(l Level) bool {
	return Level(level.Load()) <= l
}

// calldepth 3 reports the caller of Info/Infof rather than this file
func output(l *log.Logger, s string) {
	_ = l.Output(3, s)
}

func Info(v ...any) {
	if enabled(LevelInfo) {
		output(infoLogger, fmt.Sprintln(v...))
	}
}
func Infof(format string, v ...any) {
	if enabled(LevelInfo) {
		output(infoLogger, fmt.Sprintf(format, v...))
	}
}

func Error(v ...any) {
	output(errorLogger, fmt.Sprintln(v...))
}

func Errorf(format string, v ...any) {
	output(errorLogger, fmt.Sprintf(format, v...))
}

func Warn(v ...any) {
	if enabled(LevelWarn) {
		output(warnLogger, fmt.Sprintln(v...))
	}
}

func Warnf(format string, v ...any) {
	if enabled(LevelWarn) {
		output(warnLogger, fmt.Sprintf(format, v...))
	}
}

func Debug(v ...any) {
	if enabled(LevelDebug) {
		output(debugLogger, fmt.Sprintln(v...))
	}
}
func Debugf(format string, v ...any) {
	if enabled(LevelDebug) {
		output(debugLogger, fmt.Sprintf(format, v...))
	}
}

// Fatalf logs at error level and exits
func Fatalf(format string, v ...any) {
	output(errorLogger, fmt.Sprintf(format, v...))
	os.Exit(1)
}
