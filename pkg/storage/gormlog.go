package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// SlowQueryThreshold marks queries logged at warn level.
const SlowQueryThreshold = 200 * time.Millisecond

// GormLogger routes gorm's log output into zerolog.
type GormLogger struct {
	logger zerolog.Logger
	level  gormlogger.LogLevel
	slow   time.Duration
}

var _ gormlogger.Interface = (*GormLogger)(nil)

// NewGormLogger creates a gorm logger at warn level.
// SQL statements are logged at debug level once LogMode(Info) is set.
func NewGormLogger(logger zerolog.Logger) *GormLogger {
	return &GormLogger{
		logger: logger.With().Str("component", "gorm").Logger(),
		level:  gormlogger.Warn,
		slow:   SlowQueryThreshold,
	}
}

// LogMode returns a copy of the logger at level.
func (l *GormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	out := *l
	out.level = level
	return &out
}

// Info logs a gorm message at info level.
func (l *GormLogger) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Info {
		l.logger.Info().Msg(fmt.Sprintf(msg, args...))
	}
}

// Warn logs a gorm message at warn level.
func (l *GormLogger) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Warn {
		l.logger.Warn().Msg(fmt.Sprintf(msg, args...))
	}
}

// Error logs a gorm message at error level.
func (l *GormLogger) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= gormlogger.Error {
		l.logger.Error().Msg(fmt.Sprintf(msg, args...))
	}
}

// Trace logs a finished statement. Record-not-found and duplicate-key results
// are routine and are not logged as errors; the DAO reports them to callers.
func (l *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= gormlogger.Silent {
		return
	}

	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= gormlogger.Error && !isRoutine(err):
		sql, rows := fc()
		l.logger.Error().
			Err(err).
			Str("sql", sql).
			Int64("rows", rows).
			Dur("duration", elapsed).
			Msg("Query failed")
	case l.slow > 0 && elapsed > l.slow && l.level >= gormlogger.Warn:
		sql, rows := fc()
		l.logger.Warn().
			Str("sql", sql).
			Int64("rows", rows).
			Dur("duration", elapsed).
			Msg("Slow query")
	case l.level >= gormlogger.Info:
		sql, rows := fc()
		l.logger.Debug().
			Str("sql", sql).
			Int64("rows", rows).
			Dur("duration", elapsed).
			Msg("Query")
	}
}

func isRoutine(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound) || errors.Is(err, gorm.ErrDuplicatedKey)
}
