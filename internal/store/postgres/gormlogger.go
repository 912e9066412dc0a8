package postgres

import (
	"context"
	"time"

	log "AccountDesk/internal/logger"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const slowQuery = 500 * time.Millisecond

// gormLogger routes gorm's statement log into the store logger.
type gormLogger struct {
	l     *log.Logger
	level gormlogger.LogLevel
}

func newGormLogger(l *log.Logger) gormlogger.Interface {
	return &gormLogger{l: l, level: gormlogger.Warn}
}

func (g *gormLogger) LogMode(level gormlogger.LogLevel) gormlogger.Interface {
	cp := *g
	cp.level = level
	return &cp
}

func (g *gormLogger) Info(_ context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Info {
		g.l.Info("gorm: "+msg, args...)
	}
}

func (g *gormLogger) Warn(_ context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Warn {
		g.l.Info("gorm: "+msg, args...)
	}
}

func (g *gormLogger) Error(_ context.Context, msg string, args ...interface{}) {
	if g.level >= gormlogger.Error {
		g.l.Error("gorm: "+msg, args...)
	}
}

func (g *gormLogger) Trace(_ context.Context, begin time.Time, fc func() (string, int64), err error) {
	if g.level <= gormlogger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && g.level >= gormlogger.Error:
		sql, rows := fc()
		g.l.Error("%s [%s, %d rows]: %v", sql, elapsed, rows, err)
	case elapsed > slowQuery && g.level >= gormlogger.Warn:
		sql, rows := fc()
		g.l.Info("slow query %s [%s, %d rows]", sql, elapsed, rows)
	case g.level >= gormlogger.Info:
		sql, rows := fc()
		g.l.Debug("%s [%s, %d rows]", sql, elapsed, rows)
	}
}
