package container

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Level is a logging level hint. The values line up with slog levels.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
	LevelFatal Level = 12
)

// String returns the upper-case level name
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Slog converts the level to the equivalent slog level
func (l Level) Slog() slog.Level {
	return slog.Level(l)
}

// MarshalText implements encoding.TextMarshaler
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (l *Level) UnmarshalText(text []byte) error {
	parsed, err := ParseLevel(string(text))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}

// ParseLevel parses a level name (case-insensitive) or an integer value
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG", "TRACE":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	}

	i, err := strconv.Atoi(s)
	if err != nil {
		return LevelInfo, fmt.Errorf("unknown log level '%s'", s)
	}
	return Level(i), nil
}

// Logger is the logging collaborator a Log Service offers to its scope
type Logger interface {
	Log(message string, level Level)
}

// LoggerFunc adapts a function to Logger
type LoggerFunc func(message string, level Level)

// Log calls f
func (f LoggerFunc) Log(message string, level Level) {
	f(message, level)
}
