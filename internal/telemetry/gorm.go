package telemetry

import (
	"log/slog"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

// NewGormLogger routes GORM's statement log through l at info level. It is
// silent unless echo is set, mirroring the DB_ECHO switch.
func NewGormLogger(l *slog.Logger, echo bool) gormlogger.Interface {
	level := gormlogger.Silent
	if echo {
		level = gormlogger.Info
	}
	return gormlogger.New(
		slog.NewLogLogger(l.With("component", "gorm").Handler(), slog.LevelInfo),
		gormlogger.Config{
			SlowThreshold:             500 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
}
