// Package logger exposes the process-wide sugared logger used by the
// migration pipeline. It defaults to a no-op logger so library code can
// log before Initialize is called without nil checks.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var log *zap.SugaredLogger = zap.NewNop().Sugar()

// Initialize builds the real logger. JSON output is meant for machine
// consumption; the default is a human-readable console encoder without
// sampling, since a migration run is short-lived and every line matters.
func Initialize(jsonOutput bool) error {
	var (
		zl  *zap.Logger
		err error
	)
	if jsonOutput {
		cfg := zap.NewProductionConfig()
		cfg.Sampling = nil
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
		zl, err = cfg.Build()
	} else {
		cfg := zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
		zl, err = cfg.Build()
	}
	if err != nil {
		return err
	}
	log = zl.Sugar()
	return nil
}

// Sync flushes buffered log entries. Safe on the no-op logger.
func Sync() {
	_ = log.Sync()
}

func Infof(format string, v ...interface{}) {
	log.Infof(format, v...)
}

func Warnf(format string, v ...interface{}) {
	log.Warnf(format, v...)
}

func Errorf(format string, v ...interface{}) {
	log.Errorf(format, v...)
}

func Debugf(format string, v ...interface{}) {
	log.Debugf(format, v...)
}
