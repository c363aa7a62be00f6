// Package logging builds the zap loggers used by the CLI and optionally
// forwards important entries to an external notification command.
package logging

import (
	"fmt"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config selects the logger flavor.
type Config struct {
	// Development switches to a colored console encoder.
	Development bool
	// Level is the minimum level written, "info" when empty.
	Level string
	// Handler is an optional command run for entries at or above
	// HandlerLevel, invoked as `handler <level> <message>`.
	Handler      string
	HandlerLevel string
}

// New builds a zap.Logger from cfg.
func New(cfg Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Level != "" {
		parsed, err := ParseLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("log level: %w", err)
		}
		level = parsed
	}

	var zcfg zap.Config
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
		zcfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zcfg = zap.NewProductionConfig()
		zcfg.DisableStacktrace = false
	}
	zcfg.EncoderConfig.TimeKey = "ts"
	zcfg.Level = zap.NewAtomicLevelAt(level)

	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	if cfg.Handler == "" {
		return logger, nil
	}

	handlerLevel := zapcore.WarnLevel
	if cfg.HandlerLevel != "" {
		if handlerLevel, err = ParseLevel(cfg.HandlerLevel); err != nil {
			return nil, fmt.Errorf("handler level: %w", err)
		}
	}
	return WithHandler(logger, cfg.Handler, handlerLevel), nil
}
