package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

type ZeroLogger struct {
	l zerolog.Logger
}

// New builds a logger writing to stdout. format is "json" or "console";
// unknown levels fall back to info.
func New(level, format string) *ZeroLogger {
	var out io.Writer = os.Stdout
	if format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}
	return NewWithWriter(out, level)
}

func NewWithWriter(w io.Writer, level string) *ZeroLogger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return &ZeroLogger{l: zerolog.New(w).Level(lvl).With().Timestamp().Logger()}
}

// Nop discards everything.
func Nop() *ZeroLogger {
	return &ZeroLogger{l: zerolog.Nop()}
}

func (z *ZeroLogger) Debug(msg string, args ...any) {
	z.l.Debug().Fields(args).Msg(msg)
}

func (z *ZeroLogger) Info(msg string, args ...any) {
	z.l.Info().Fields(args).Msg(msg)
}

func (z *ZeroLogger) Error(msg string, args ...any) {
	z.l.Error().Fields(args).Msg(msg)
}

// With returns a logger that adds the given key/value pairs to every event.
func (z *ZeroLogger) With(args ...any) Logger {
	return &ZeroLogger{l: z.l.With().Fields(args).Logger()}
}
