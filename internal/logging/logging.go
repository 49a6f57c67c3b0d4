// Package logging sets up process logging and adapts it to the
// diagnostic-text sink the GPS worker reports into.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"gpsdrain/internal/gps"
)

// Config selects level and output format.
type Config struct {
	Level  string
	Pretty bool
}

// New builds the process logger. Extra writers (e.g. a web log buffer)
// receive the same lines as stderr.
func New(cfg Config, extra ...io.Writer) (zerolog.Logger, error) {
	lvl := zerolog.InfoLevel
	if s := strings.TrimSpace(cfg.Level); s != "" {
		parsed, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), err
		}
		lvl = parsed
	}

	var out io.Writer = os.Stderr
	if cfg.Pretty {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	if len(extra) > 0 {
		out = zerolog.MultiLevelWriter(append([]io.Writer{out}, extra...)...)
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger(), nil
}

// LogSink forwards worker diagnostics to a zerolog logger at info level.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(l zerolog.Logger) LogSink {
	return LogSink{log: l.With().Str("component", "gps").Logger()}
}

func (s LogSink) Emit(text string) {
	s.log.Info().Msg(text)
}

// Tee fans diagnostic text out to every non-nil sink in order.
func Tee(sinks ...gps.LogSink) gps.LogSink {
	out := make([]gps.LogSink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return gps.LogFunc(func(text string) {
		for _, s := range out {
			s.Emit(text)
		}
	})
}
