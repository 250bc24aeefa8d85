// Package logging builds the process logger and routes gnark's internal
// logger through it.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	gnarklogger "github.com/consensys/gnark/logger"
	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects the output of New.
type Options struct {
	Level  string // trace, debug, info, warn, error; defaults to info
	Format string // console or json
	File   string // optional rotating log file
	Writer io.Writer
}

// New returns a logger writing to stderr (or Options.Writer) and, when File
// is set, to a size-rotated file.
func New(o Options) zerolog.Logger {
	var out io.Writer = os.Stderr
	if o.Writer != nil {
		out = o.Writer
	}
	if !strings.EqualFold(o.Format, "json") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}
	if o.File != "" {
		out = zerolog.MultiLevelWriter(out, &lumberjack.Logger{
			Filename:   o.File,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
		})
	}
	return zerolog.New(out).Level(ParseLevel(o.Level)).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	l, err := zerolog.ParseLevel(strings.ToLower(s))
	if err != nil {
		return zerolog.InfoLevel
	}
	return l
}

// RouteGnark sends gnark's compile and solver logs to l, tagged with the
// component name.
func RouteGnark(l zerolog.Logger) {
	gnarklogger.Set(l.With().Str("component", "gnark").Logger())
}

// SilenceGnark disables gnark's logger until the returned func is called.
func SilenceGnark() (restore func()) {
	prev := gnarklogger.Logger()
	gnarklogger.Set(zerolog.New(io.Discard).Level(zerolog.Disabled))
	return func() { gnarklogger.Set(prev) }
}
