// Package logger wraps zerolog behind the call shape the rest of the codebase uses:
// Infof/Warnf/Errorf/Debugf, plus a no-arg Info() for section separators.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

var base zerolog.Logger

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
	Init("info", os.Stdout)
}

// Init (re)configures the process-wide logger. Safe to call once at startup; not meant to be
// called from arbitrary call sites per the "no lazy construction" rule in spec §9.
func Init(level string, w io.Writer) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	console := zerolog.ConsoleWriter{Out: w, TimeFormat: "2006-01-02 15:04:05"}
	base = zerolog.New(console).Level(lvl).With().Timestamp().Logger()
}

// With returns a child logger tagged with a component name, e.g. logger.With("orchestrator").
func With(component string) *Logger {
	l := base.With().Str("component", component).Logger()
	return &Logger{l: l}
}

// Logger is a component-scoped logger.
type Logger struct {
	l zerolog.Logger
}

func (lg *Logger) Infof(format string, args ...any)  { lg.l.Info().Msgf(format, args...) }
func (lg *Logger) Warnf(format string, args ...any)  { lg.l.Warn().Msgf(format, args...) }
func (lg *Logger) Errorf(format string, args ...any) { lg.l.Error().Msgf(format, args...) }
func (lg *Logger) Debugf(format string, args ...any) { lg.l.Debug().Msgf(format, args...) }
func (lg *Logger) Info(args ...any) {
	if len(args) == 0 {
		lg.l.Info().Msg("")
		return
	}
	lg.l.Info().Msgf("%v", args[0])
}

// Package-level convenience functions operate on an unscoped default logger, matching the
// teacher's bare logger.Infof(...) call sites outside any particular component.
func Infof(format string, args ...any)  { base.Info().Msgf(format, args...) }
func Warnf(format string, args ...any)  { base.Warn().Msgf(format, args...) }
func Errorf(format string, args ...any) { base.Error().Msgf(format, args...) }
func Debugf(format string, args ...any) { base.Debug().Msgf(format, args...) }
func Info(args ...any) {
	if len(args) == 0 {
		base.Info().Msg("")
		return
	}
	base.Info().Msgf("%v", args[0])
}
