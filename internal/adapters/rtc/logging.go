package rtc

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog/log"
)

// loggerFactory routes pion's internal logging into zerolog so every line
// carries the same structure as the rest of the agent.
type loggerFactory struct{}

func (f *loggerFactory) NewLogger(scope string) logging.LeveledLogger {
	return &pionLogger{scope: scope}
}

type pionLogger struct {
	scope string
}

func (l *pionLogger) Trace(msg string) { log.Trace().Str("module", "pion."+l.scope).Msg(msg) }
func (l *pionLogger) Debug(msg string) { log.Debug().Str("module", "pion."+l.scope).Msg(msg) }
func (l *pionLogger) Info(msg string)  { log.Info().Str("module", "pion."+l.scope).Msg(msg) }
func (l *pionLogger) Warn(msg string)  { log.Warn().Str("module", "pion."+l.scope).Msg(msg) }
func (l *pionLogger) Error(msg string) { log.Error().Str("module", "pion."+l.scope).Msg(msg) }

func (l *pionLogger) Tracef(format string, args ...any) {
	log.Trace().Str("module", "pion."+l.scope).Msgf(format, args...)
}

func (l *pionLogger) Debugf(format string, args ...any) {
	log.Debug().Str("module", "pion."+l.scope).Msgf(format, args...)
}

func (l *pionLogger) Infof(format string, args ...any) {
	log.Info().Str("module", "pion."+l.scope).Msgf(format, args...)
}

func (l *pionLogger) Warnf(format string, args ...any) {
	log.Warn().Str("module", "pion."+l.scope).Msgf(format, args...)
}

func (l *pionLogger) Errorf(format string, args ...any) {
	log.Error().Str("module", "pion."+l.scope).Msgf(format, args...)
}
