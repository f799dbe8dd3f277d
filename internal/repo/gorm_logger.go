package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const defaultSlowQuery = 200 * time.Millisecond

// gormZerolog routes GORM diagnostics through zerolog so SQL errors and slow
// queries land in the same structured stream as request logs.
type gormZerolog struct {
	lg            zerolog.Logger
	level         logger.LogLevel
	slowThreshold time.Duration
}

// NewGormLogger returns a GORM logger at Warn level that ignores
// record-not-found errors.
func NewGormLogger() logger.Interface {
	return &gormZerolog{
		lg:            log.With().Str("component", "gorm").Logger(),
		level:         logger.Warn,
		slowThreshold: defaultSlowQuery,
	}
}

func (l *gormZerolog) LogMode(level logger.LogLevel) logger.Interface {
	cloned := *l
	cloned.level = level
	return &cloned
}

func (l *gormZerolog) Info(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Info {
		l.lg.Info().Ctx(ctx).Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *gormZerolog) Warn(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Warn {
		l.lg.Warn().Ctx(ctx).Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *gormZerolog) Error(ctx context.Context, msg string, args ...any) {
	if l.level >= logger.Error {
		l.lg.Error().Ctx(ctx).Msg(fmt.Sprintf(msg, args...))
	}
}

func (l *gormZerolog) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level == logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && l.level >= logger.Error && !errors.Is(err, gorm.ErrRecordNotFound):
		sql, rows := fc()
		l.lg.Error().Ctx(ctx).Err(err).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("gorm query failed")
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		l.lg.Warn().Ctx(ctx).Dur("elapsed", elapsed).Dur("slow_threshold", l.slowThreshold).Int64("rows", rows).Str("sql", sql).Msg("gorm slow query")
	case l.level >= logger.Info:
		sql, rows := fc()
		l.lg.Debug().Ctx(ctx).Dur("elapsed", elapsed).Int64("rows", rows).Str("sql", sql).Msg("gorm query")
	}
}
