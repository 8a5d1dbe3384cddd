package rtc

import (
	"github.com/pion/logging"
	"github.com/rs/zerolog"

	"github.com/frogrtc/frog/pkg/logger"
)

// pionLog plugs the zerolog-based logger into pion's logger factory.
type pionLog struct {
	log *logger.Logger
}

const trace = zerolog.Level(logger.TraceLevel)

func newPionLogger(root *logger.Logger, level logger.Level) pionLog {
	return pionLog{log: root.Extend(root.Level(zerolog.Level(level)).With())}
}

func (p pionLog) NewLogger(scope string) logging.LeveledLogger {
	return pionLog{log: p.log.Extend(p.log.With().Str("mod", scope))}
}

func (p pionLog) Debug(msg string)                  { p.log.Debug().Msg(msg) }
func (p pionLog) Debugf(format string, args ...any) { p.log.Debug().Msgf(format, args...) }
func (p pionLog) Error(msg string)                  { p.log.Error().Msg(msg) }
func (p pionLog) Errorf(format string, args ...any) { p.log.Error().Msgf(format, args...) }
func (p pionLog) Info(msg string)                   { p.log.Info().Msg(msg) }
func (p pionLog) Infof(format string, args ...any)  { p.log.Info().Msgf(format, args...) }
func (p pionLog) Trace(msg string)                  { p.log.WithLevel(trace).Msg(msg) }
func (p pionLog) Tracef(format string, args ...any) { p.log.WithLevel(trace).Msgf(format, args...) }
func (p pionLog) Warn(msg string)                   { p.log.Warn().Msg(msg) }
func (p pionLog) Warnf(format string, args ...any)  { p.log.Warn().Msgf(format, args...) }
