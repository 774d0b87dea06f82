package backend

import (
	"fmt"

	log15adapter "github.com/jackc/pgx-log15"
	"github.com/jackc/pgx/v5/tracelog"
	"github.com/vaughan0/go-ini"
	log "gopkg.in/inconshreveable/log15.v2"
)

// NewLogger builds the root logger from the [log] section. level defaults to warn.
func NewLogger(conf ini.File) (log.Logger, error) {
	level, _ := conf.Get("log", "level")
	if level == "" {
		level = "warn"
	}

	logger := log.New()
	err := setFilterHandler(level, logger, log.StdoutHandler)
	if err != nil {
		return nil, err
	}

	return logger, nil
}

func setFilterHandler(level string, logger log.Logger, handler log.Handler) error {
	if level == "none" {
		logger.SetHandler(log.DiscardHandler())
		return nil
	}

	lvl, err := log.LvlFromString(level)
	if err != nil {
		return fmt.Errorf("bad log level: %w", err)
	}
	logger.SetHandler(log.LvlFilterHandler(lvl, handler))

	return nil
}

// newQueryTracer routes pgx query logging to a child of logger. pgx_level in the [log] section controls
// both the tracer level and the child handler.
func newQueryTracer(conf ini.File, logger log.Logger) (*tracelog.TraceLog, error) {
	logger = logger.New("module", "pgx")

	traceLevel := tracelog.LogLevelWarn
	if level, ok := conf.Get("log", "pgx_level"); ok {
		if err := setFilterHandler(level, logger, log.StdoutHandler); err != nil {
			return nil, err
		}

		if level == "none" {
			traceLevel = tracelog.LogLevelNone
		} else {
			var err error
			traceLevel, err = tracelog.LogLevelFromString(level)
			if err != nil {
				return nil, fmt.Errorf("bad pgx log level: %w", err)
			}
		}
	}

	return &tracelog.TraceLog{
		Logger:   log15adapter.NewLogger(logger),
		LogLevel: traceLevel,
	}, nil
}
